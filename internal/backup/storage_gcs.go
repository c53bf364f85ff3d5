package backup

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStorageProvider implements StorageProvider for Google Cloud Storage
type GCSStorageProvider struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGCSStorageProvider creates a client from a credentials file or the
// default application credentials
func NewGCSStorageProvider(ctx context.Context, config *GCSConfig) (*GCSStorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("GCS storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid GCS storage configuration", err)
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}
	if config.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(config.ProjectID))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, NewStorageError("failed to create GCS client", err)
	}

	return &GCSStorageProvider{
		client:     client,
		bucketName: config.Bucket,
		prefix:     defaultObjectPrefix,
	}, nil
}

// Store uploads the payload and its metadata
func (gcsp *GCSStorageProvider) Store(ctx context.Context, artifact *Artifact) error {
	if artifact == nil || artifact.Metadata == nil {
		return NewValidationError("artifact with metadata is required", nil)
	}
	id := artifact.Metadata.ID
	location := fmt.Sprintf("gs://%s/%s", gcsp.bucketName, objectKey(gcsp.prefix, id, ""))
	if err := prepareForStore(artifact, location); err != nil {
		return err
	}

	err := gcsp.put(ctx, objectKey(gcsp.prefix, id, artifactDataName), "application/octet-stream", artifact.Data,
		map[string]string{
			"artifact-id": id,
			"tenant-id":   artifact.Metadata.IsolationID,
			"checksum":    artifact.Metadata.Checksum,
		})
	if err != nil {
		return err
	}

	metadata, err := artifact.Metadata.ToJSON()
	if err != nil {
		return NewStorageError("failed to serialize metadata", err)
	}
	return gcsp.put(ctx, objectKey(gcsp.prefix, id, artifactMetadataName), "application/json", metadata, nil)
}

func (gcsp *GCSStorageProvider) put(ctx context.Context, name, contentType string, data []byte, meta map[string]string) error {
	w := gcsp.client.Bucket(gcsp.bucketName).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = meta
	if _, err := w.Write(data); err != nil {
		w.Close()
		return NewStorageError("failed to write "+name+" to GCS", err)
	}
	if err := w.Close(); err != nil {
		return NewStorageError("failed to upload "+name+" to GCS", err)
	}
	return nil
}

// Retrieve downloads an artifact and verifies its checksum
func (gcsp *GCSStorageProvider) Retrieve(ctx context.Context, artifactID string) (*Artifact, error) {
	if artifactID == "" {
		return nil, NewValidationError("artifact ID cannot be empty", nil)
	}
	metadata, err := gcsp.get(ctx, artifactID, artifactMetadataName)
	if err != nil {
		return nil, err
	}
	data, err := gcsp.get(ctx, artifactID, artifactDataName)
	if err != nil {
		return nil, err
	}
	return decodeStoredArtifact(artifactID, metadata, data)
}

func (gcsp *GCSStorageProvider) get(ctx context.Context, id, name string) ([]byte, error) {
	r, err := gcsp.client.Bucket(gcsp.bucketName).Object(objectKey(gcsp.prefix, id, name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, notFound(id, err)
	}
	if err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to download %s of artifact %s", name, id), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewStorageError("failed to read GCS object", err)
	}
	return data, nil
}

// Delete removes every object of the artifact
func (gcsp *GCSStorageProvider) Delete(ctx context.Context, artifactID string) error {
	if artifactID == "" {
		return NewValidationError("artifact ID cannot be empty", nil)
	}

	bucket := gcsp.client.Bucket(gcsp.bucketName)
	it := bucket.Objects(ctx, &storage.Query{Prefix: objectKey(gcsp.prefix, artifactID, "")})
	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return NewStorageError("failed to list artifact objects", err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil {
			return NewStorageError("failed to delete object "+attrs.Name, err)
		}
		deleted++
	}
	if deleted == 0 {
		return notFound(artifactID, nil)
	}
	return nil
}

// List reads the metadata object of every artifact under the prefix
func (gcsp *GCSStorageProvider) List(ctx context.Context, filter StorageFilter) ([]*ArtifactMetadata, error) {
	var items []*ArtifactMetadata

	it := gcsp.client.Bucket(gcsp.bucketName).Objects(ctx, &storage.Query{Prefix: gcsp.prefix + filter.Prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, NewStorageError("failed to list artifacts in GCS", err)
		}
		id := artifactIDFromKey(gcsp.prefix, attrs.Name)
		if id == "" {
			continue
		}
		metadata, err := gcsp.GetMetadata(ctx, id)
		if err != nil {
			continue
		}
		if matchesFilter(metadata, filter) {
			items = append(items, metadata)
		}
	}
	return finishListing(items, filter), nil
}

// GetMetadata downloads the metadata object of one artifact
func (gcsp *GCSStorageProvider) GetMetadata(ctx context.Context, artifactID string) (*ArtifactMetadata, error) {
	if artifactID == "" {
		return nil, NewValidationError("artifact ID cannot be empty", nil)
	}
	data, err := gcsp.get(ctx, artifactID, artifactMetadataName)
	if err != nil {
		return nil, err
	}
	var metadata ArtifactMetadata
	if err := metadata.FromJSON(data); err != nil {
		return nil, NewCorruptionError("invalid metadata of artifact "+artifactID, err)
	}
	return &metadata, nil
}

// Close releases the client
func (gcsp *GCSStorageProvider) Close() error {
	return gcsp.client.Close()
}
