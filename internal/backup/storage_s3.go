package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

const defaultObjectPrefix = "tenant-backups/"

// S3StorageProvider implements StorageProvider for Amazon S3 and compatible stores
type S3StorageProvider struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// NewS3StorageProvider creates a provider from config. Static credentials are
// used when given, otherwise the default AWS credential chain.
func NewS3StorageProvider(config *S3Config) (*S3StorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("S3 storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid S3 storage configuration", err)
	}

	awsConfig := &aws.Config{Region: aws.String(config.Region)}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}
	return NewS3StorageProviderWithClient(s3.New(sess), config.Bucket), nil
}

// NewS3StorageProviderWithClient wraps an existing client
func NewS3StorageProviderWithClient(client s3iface.S3API, bucket string) *S3StorageProvider {
	return &S3StorageProvider{client: client, bucket: bucket, prefix: defaultObjectPrefix}
}

// Store uploads the payload and its metadata
func (s3p *S3StorageProvider) Store(ctx context.Context, artifact *Artifact) error {
	if artifact == nil || artifact.Metadata == nil {
		return NewValidationError("artifact with metadata is required", nil)
	}
	id := artifact.Metadata.ID
	location := fmt.Sprintf("s3://%s/%s", s3p.bucket, objectKey(s3p.prefix, id, ""))
	if err := prepareForStore(artifact, location); err != nil {
		return err
	}

	_, err := s3p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s3p.bucket),
		Key:         aws.String(objectKey(s3p.prefix, id, artifactDataName)),
		Body:        bytes.NewReader(artifact.Data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]*string{
			"artifact-id": aws.String(id),
			"tenant-id":   aws.String(artifact.Metadata.IsolationID),
			"checksum":    aws.String(artifact.Metadata.Checksum),
		},
	})
	if err != nil {
		return NewStorageError("failed to upload artifact to S3", err)
	}

	metadata, err := artifact.Metadata.ToJSON()
	if err != nil {
		return NewStorageError("failed to serialize metadata", err)
	}
	_, err = s3p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s3p.bucket),
		Key:         aws.String(objectKey(s3p.prefix, id, artifactMetadataName)),
		Body:        bytes.NewReader(metadata),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return NewStorageError("failed to upload metadata to S3", err)
	}
	return nil
}

// Retrieve downloads an artifact and verifies its checksum
func (s3p *S3StorageProvider) Retrieve(ctx context.Context, artifactID string) (*Artifact, error) {
	if artifactID == "" {
		return nil, NewValidationError("artifact ID cannot be empty", nil)
	}
	metadata, err := s3p.get(ctx, artifactID, artifactMetadataName)
	if err != nil {
		return nil, err
	}
	data, err := s3p.get(ctx, artifactID, artifactDataName)
	if err != nil {
		return nil, err
	}
	return decodeStoredArtifact(artifactID, metadata, data)
}

// Delete removes every object of the artifact
func (s3p *S3StorageProvider) Delete(ctx context.Context, artifactID string) error {
	if artifactID == "" {
		return NewValidationError("artifact ID cannot be empty", nil)
	}

	listed, err := s3p.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s3p.bucket),
		Prefix: aws.String(objectKey(s3p.prefix, artifactID, "")),
	})
	if err != nil {
		return NewStorageError("failed to list artifact objects", err)
	}
	if len(listed.Contents) == 0 {
		return notFound(artifactID, nil)
	}

	objects := make([]*s3.ObjectIdentifier, 0, len(listed.Contents))
	for _, obj := range listed.Contents {
		objects = append(objects, &s3.ObjectIdentifier{Key: obj.Key})
	}
	_, err = s3p.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s3p.bucket),
		Delete: &s3.Delete{Objects: objects},
	})
	if err != nil {
		return NewStorageError("failed to delete artifact objects from S3", err)
	}
	return nil
}

// List reads the metadata object of every artifact under the prefix
func (s3p *S3StorageProvider) List(ctx context.Context, filter StorageFilter) ([]*ArtifactMetadata, error) {
	var items []*ArtifactMetadata
	var fetchErr error

	err := s3p.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s3p.bucket),
		Prefix: aws.String(s3p.prefix + filter.Prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			id := artifactIDFromKey(s3p.prefix, aws.StringValue(obj.Key))
			if id == "" {
				continue
			}
			metadata, err := s3p.GetMetadata(ctx, id)
			if err != nil {
				var be *BackupError
				if errors.As(err, &be) && be.Type == BackupErrorTypeStorage {
					fetchErr = err
					return false
				}
				continue
			}
			if matchesFilter(metadata, filter) {
				items = append(items, metadata)
			}
		}
		return true
	})
	if err != nil {
		return nil, NewStorageError("failed to list artifacts in S3", err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return finishListing(items, filter), nil
}

// GetMetadata downloads the metadata object of one artifact
func (s3p *S3StorageProvider) GetMetadata(ctx context.Context, artifactID string) (*ArtifactMetadata, error) {
	if artifactID == "" {
		return nil, NewValidationError("artifact ID cannot be empty", nil)
	}
	data, err := s3p.get(ctx, artifactID, artifactMetadataName)
	if err != nil {
		return nil, err
	}
	var metadata ArtifactMetadata
	if err := metadata.FromJSON(data); err != nil {
		return nil, NewCorruptionError("invalid metadata of artifact "+artifactID, err)
	}
	return &metadata, nil
}

func (s3p *S3StorageProvider) get(ctx context.Context, id, name string) ([]byte, error) {
	out, err := s3p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(objectKey(s3p.prefix, id, name)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, notFound(id, err)
		}
		return nil, NewStorageError(fmt.Sprintf("failed to download %s of artifact %s", name, id), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, NewStorageError("failed to read S3 object body", err)
	}
	return data, nil
}

// artifactIDFromKey returns the artifact ID of a metadata object key, or ""
func artifactIDFromKey(prefix, key string) string {
	suffix := "/" + artifactMetadataName
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
		return ""
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
