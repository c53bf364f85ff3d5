package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureStorageProvider implements StorageProvider for Azure Blob Storage
type AzureStorageProvider struct {
	containerURL  azblob.ContainerURL
	containerName string
	prefix        string
}

// NewAzureStorageProvider creates a provider authenticated with the account's shared key
func NewAzureStorageProvider(config *AzureConfig) (*AzureStorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("Azure storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid Azure storage configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewStorageError("failed to create Azure credentials", err)
	}
	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, NewStorageError("failed to parse Azure service URL", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	return &AzureStorageProvider{
		containerURL:  azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		containerName: config.ContainerName,
		prefix:        defaultObjectPrefix,
	}, nil
}

// Store uploads the payload and its metadata as block blobs
func (azp *AzureStorageProvider) Store(ctx context.Context, artifact *Artifact) error {
	if artifact == nil || artifact.Metadata == nil {
		return NewValidationError("artifact with metadata is required", nil)
	}
	id := artifact.Metadata.ID
	location := fmt.Sprintf("azure://%s/%s", azp.containerName, objectKey(azp.prefix, id, ""))
	if err := prepareForStore(artifact, location); err != nil {
		return err
	}

	err := azp.put(ctx, objectKey(azp.prefix, id, artifactDataName), "application/octet-stream", artifact.Data,
		azblob.Metadata{
			"artifactid": id,
			"tenantid":   artifact.Metadata.IsolationID,
			"checksum":   artifact.Metadata.Checksum,
		})
	if err != nil {
		return err
	}

	metadata, err := artifact.Metadata.ToJSON()
	if err != nil {
		return NewStorageError("failed to serialize metadata", err)
	}
	return azp.put(ctx, objectKey(azp.prefix, id, artifactMetadataName), "application/json", metadata, nil)
}

func (azp *AzureStorageProvider) put(ctx context.Context, name, contentType string, data []byte, meta azblob.Metadata) error {
	_, err := azblob.UploadBufferToBlockBlob(ctx, data, azp.containerURL.NewBlockBlobURL(name), azblob.UploadToBlockBlobOptions{
		BlockSize:       4 * 1024 * 1024,
		Parallelism:     4,
		Metadata:        meta,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{ContentType: contentType},
	})
	if err != nil {
		return NewStorageError("failed to upload "+name+" to Azure", err)
	}
	return nil
}

// Retrieve downloads an artifact and verifies its checksum
func (azp *AzureStorageProvider) Retrieve(ctx context.Context, artifactID string) (*Artifact, error) {
	if artifactID == "" {
		return nil, NewValidationError("artifact ID cannot be empty", nil)
	}
	metadata, err := azp.get(ctx, artifactID, artifactMetadataName)
	if err != nil {
		return nil, err
	}
	data, err := azp.get(ctx, artifactID, artifactDataName)
	if err != nil {
		return nil, err
	}
	return decodeStoredArtifact(artifactID, metadata, data)
}

func (azp *AzureStorageProvider) get(ctx context.Context, id, name string) ([]byte, error) {
	blobURL := azp.containerURL.NewBlockBlobURL(objectKey(azp.prefix, id, name))
	resp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		var serr azblob.StorageError
		if errors.As(err, &serr) && serr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
			return nil, notFound(id, err)
		}
		return nil, NewStorageError(fmt.Sprintf("failed to download %s of artifact %s", name, id), err)
	}

	body := resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20})
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, NewStorageError("failed to read Azure blob", err)
	}
	return data, nil
}

// Delete removes every blob of the artifact
func (azp *AzureStorageProvider) Delete(ctx context.Context, artifactID string) error {
	if artifactID == "" {
		return NewValidationError("artifact ID cannot be empty", nil)
	}

	names, err := azp.listNames(ctx, objectKey(azp.prefix, artifactID, ""))
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return notFound(artifactID, nil)
	}
	for _, name := range names {
		_, err := azp.containerURL.NewBlockBlobURL(name).Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
		if err != nil {
			return NewStorageError("failed to delete blob "+name, err)
		}
	}
	return nil
}

// List reads the metadata blob of every artifact under the prefix
func (azp *AzureStorageProvider) List(ctx context.Context, filter StorageFilter) ([]*ArtifactMetadata, error) {
	names, err := azp.listNames(ctx, azp.prefix+filter.Prefix)
	if err != nil {
		return nil, err
	}

	var items []*ArtifactMetadata
	for _, name := range names {
		id := artifactIDFromKey(azp.prefix, name)
		if id == "" {
			continue
		}
		metadata, err := azp.GetMetadata(ctx, id)
		if err != nil {
			continue
		}
		if matchesFilter(metadata, filter) {
			items = append(items, metadata)
		}
	}
	return finishListing(items, filter), nil
}

func (azp *AzureStorageProvider) listNames(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := azp.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{Prefix: prefix})
		if err != nil {
			return nil, NewStorageError("failed to list Azure blobs", err)
		}
		for _, blob := range resp.Segment.BlobItems {
			names = append(names, blob.Name)
		}
		marker = resp.NextMarker
	}
	return names, nil
}

// GetMetadata downloads the metadata blob of one artifact
func (azp *AzureStorageProvider) GetMetadata(ctx context.Context, artifactID string) (*ArtifactMetadata, error) {
	if artifactID == "" {
		return nil, NewValidationError("artifact ID cannot be empty", nil)
	}
	data, err := azp.get(ctx, artifactID, artifactMetadataName)
	if err != nil {
		return nil, err
	}
	var metadata ArtifactMetadata
	if err := metadata.FromJSON(data); err != nil {
		return nil, NewCorruptionError("invalid metadata of artifact "+artifactID, err)
	}
	return &metadata, nil
}
