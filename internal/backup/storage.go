package backup

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// StorageProvider keeps archived artifacts. Each artifact is stored as a
// payload object plus a JSON metadata object under <prefix><id>/.
type StorageProvider interface {
	Store(ctx context.Context, artifact *Artifact) error
	Retrieve(ctx context.Context, artifactID string) (*Artifact, error)
	Delete(ctx context.Context, artifactID string) error
	// List returns matching metadata, newest first
	List(ctx context.Context, filter StorageFilter) ([]*ArtifactMetadata, error)
	GetMetadata(ctx context.Context, artifactID string) (*ArtifactMetadata, error)
}

const (
	artifactDataName     = "artifact.bin"
	artifactMetadataName = "metadata.json"
)

// sanitizeArtifactID removes characters that could escape the artifact's directory
func sanitizeArtifactID(id string) string {
	sanitized := strings.ReplaceAll(id, "/", "_")
	sanitized = strings.ReplaceAll(sanitized, "\\", "_")
	return strings.ReplaceAll(sanitized, "..", "_")
}

func objectKey(prefix, id, name string) string {
	return prefix + sanitizeArtifactID(id) + "/" + name
}

func matchesFilter(metadata *ArtifactMetadata, filter StorageFilter) bool {
	if filter.IsolationID != "" && metadata.IsolationID != filter.IsolationID {
		return false
	}
	if filter.Prefix != "" && !strings.HasPrefix(metadata.ID, filter.Prefix) {
		return false
	}
	return true
}

// finishListing sorts newest first and applies MaxItems
func finishListing(items []*ArtifactMetadata, filter StorageFilter) []*ArtifactMetadata {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if filter.MaxItems > 0 && len(items) > filter.MaxItems {
		items = items[:filter.MaxItems]
	}
	return items
}

// prepareForStore checks an artifact before any provider writes it
func prepareForStore(artifact *Artifact, location string) error {
	if artifact == nil {
		return NewValidationError("artifact cannot be nil", nil)
	}
	if artifact.Metadata != nil {
		artifact.Metadata.StorageLocation = location
		if artifact.Metadata.Checksum == "" {
			artifact.Metadata.Checksum = CalculateDataChecksum(artifact.Data)
		}
	}
	if err := artifact.Validate(); err != nil {
		return NewValidationError("invalid artifact", err)
	}
	return nil
}

// decodeStoredArtifact assembles an artifact read back from a provider and
// checks its payload against the recorded checksum
func decodeStoredArtifact(id string, metadataJSON, data []byte) (*Artifact, error) {
	var metadata ArtifactMetadata
	if err := metadata.FromJSON(metadataJSON); err != nil {
		return nil, NewCorruptionError("invalid metadata of artifact "+id, err)
	}
	artifact := &Artifact{Metadata: &metadata, Data: data}
	if !artifact.VerifyChecksum() {
		return nil, NewCorruptionError("checksum verification failed for artifact "+id, nil).
			WithContext("artifact_id", id)
	}
	return artifact, nil
}

// notFound keeps both ErrNotFound and the provider's own error in the chain
func notFound(id string, cause error) *BackupError {
	if cause != nil {
		cause = errors.Join(ErrNotFound, cause)
	}
	err := NewNotFoundError("artifact "+id+" not found", cause)
	return err.WithContext("artifact_id", id)
}
