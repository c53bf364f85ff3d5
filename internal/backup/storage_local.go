package backup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStorageProvider implements StorageProvider on the local file system
type LocalStorageProvider struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalStorageProvider creates the provider and its base directory
func NewLocalStorageProvider(config *LocalConfig) (*LocalStorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("local storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid local storage configuration", err)
	}

	provider := &LocalStorageProvider{
		basePath:    config.BasePath,
		permissions: config.Permissions,
	}
	if provider.permissions == 0 {
		provider.permissions = 0755
	}
	if err := os.MkdirAll(provider.basePath, provider.permissions); err != nil {
		return nil, NewStorageError("failed to create base directory "+provider.basePath, err)
	}
	return provider, nil
}

// Store writes the payload and its metadata
func (lsp *LocalStorageProvider) Store(ctx context.Context, artifact *Artifact) error {
	if artifact == nil || artifact.Metadata == nil {
		return NewValidationError("artifact with metadata is required", nil)
	}
	dir := lsp.artifactDir(artifact.Metadata.ID)
	if err := prepareForStore(artifact, dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, lsp.permissions); err != nil {
		return NewStorageError("failed to create artifact directory", err)
	}

	if err := os.WriteFile(filepath.Join(dir, artifactDataName), artifact.Data, 0600); err != nil {
		return NewStorageError("failed to write artifact payload", err)
	}
	metadata, err := artifact.Metadata.ToJSON()
	if err != nil {
		return NewStorageError("failed to serialize metadata", err)
	}
	if err := os.WriteFile(filepath.Join(dir, artifactMetadataName), metadata, 0600); err != nil {
		return NewStorageError("failed to write metadata", err)
	}
	return nil
}

// Retrieve reads an artifact and verifies its checksum
func (lsp *LocalStorageProvider) Retrieve(ctx context.Context, artifactID string) (*Artifact, error) {
	if artifactID == "" {
		return nil, NewValidationError("artifact ID cannot be empty", nil)
	}
	dir := lsp.artifactDir(artifactID)

	metadata, err := os.ReadFile(filepath.Join(dir, artifactMetadataName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(artifactID, err)
	}
	if err != nil {
		return nil, NewStorageError("failed to read metadata", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, artifactDataName))
	if err != nil {
		return nil, NewStorageError("failed to read artifact payload", err)
	}
	return decodeStoredArtifact(artifactID, metadata, data)
}

// Delete removes an artifact directory
func (lsp *LocalStorageProvider) Delete(ctx context.Context, artifactID string) error {
	if artifactID == "" {
		return NewValidationError("artifact ID cannot be empty", nil)
	}
	dir := lsp.artifactDir(artifactID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return notFound(artifactID, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return NewStorageError("failed to delete artifact directory", err)
	}
	return nil
}

// List scans the artifact directories under the base path
func (lsp *LocalStorageProvider) List(ctx context.Context, filter StorageFilter) ([]*ArtifactMetadata, error) {
	entries, err := os.ReadDir(lsp.basePath)
	if err != nil {
		return nil, NewStorageError("failed to list artifacts", err)
	}

	var items []*ArtifactMetadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metadata, err := lsp.loadMetadata(entry.Name())
		if err != nil {
			// directories without readable metadata are not artifacts
			continue
		}
		if matchesFilter(metadata, filter) {
			items = append(items, metadata)
		}
	}
	return finishListing(items, filter), nil
}

// GetMetadata reads the metadata of one artifact
func (lsp *LocalStorageProvider) GetMetadata(ctx context.Context, artifactID string) (*ArtifactMetadata, error) {
	if artifactID == "" {
		return nil, NewValidationError("artifact ID cannot be empty", nil)
	}
	metadata, err := lsp.loadMetadata(sanitizeArtifactID(artifactID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(artifactID, err)
	}
	return metadata, err
}

// BasePath returns the directory holding the artifacts
func (lsp *LocalStorageProvider) BasePath() string {
	return lsp.basePath
}

func (lsp *LocalStorageProvider) artifactDir(id string) string {
	return filepath.Join(lsp.basePath, sanitizeArtifactID(id))
}

func (lsp *LocalStorageProvider) loadMetadata(dirName string) (*ArtifactMetadata, error) {
	data, err := os.ReadFile(filepath.Join(lsp.basePath, dirName, artifactMetadataName))
	if err != nil {
		return nil, err
	}
	var metadata ArtifactMetadata
	if err := metadata.FromJSON(data); err != nil {
		return nil, err
	}
	return &metadata, nil
}
