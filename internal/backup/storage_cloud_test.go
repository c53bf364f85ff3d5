package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory. Methods the provider does not call panic
// through the embedded nil interface.
type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
	failGet error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) keys(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) ListObjectsV2WithContext(ctx aws.Context, in *s3.ListObjectsV2Input, _ ...request.Option) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for _, key := range f.keys(aws.StringValue(in.Prefix)) {
		out.Contents = append(out.Contents, &s3.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	keys := f.keys(aws.StringValue(in.Prefix))
	// two objects per page to exercise paging
	for start := 0; start < len(keys); start += 2 {
		end := start + 2
		if end > len(keys) {
			end = len(keys)
		}
		page := &s3.ListObjectsV2Output{}
		for _, key := range keys[start:end] {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(key)})
		}
		if !fn(page, end == len(keys)) {
			return nil
		}
	}
	return nil
}

func (f *fakeS3) DeleteObjectsWithContext(ctx aws.Context, in *s3.DeleteObjectsInput, _ ...request.Option) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, obj := range in.Delete.Objects {
		delete(f.objects, aws.StringValue(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestS3Config_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  S3Config
		wantErr bool
	}{
		{"valid with static credentials", S3Config{Bucket: "b", Region: "us-east-1", AccessKey: "a", SecretKey: "s"}, false},
		{"valid with default chain", S3Config{Bucket: "b", Region: "us-east-1"}, false},
		{"missing bucket", S3Config{Region: "us-east-1"}, true},
		{"missing region", S3Config{Bucket: "b"}, true},
		{"access key without secret", S3Config{Bucket: "b", Region: "us-east-1", AccessKey: "a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCloudProviders_RejectMissingConfig(t *testing.T) {
	_, err := NewS3StorageProvider(nil)
	assert.Error(t, err)
	_, err = NewAzureStorageProvider(nil)
	assert.Error(t, err)
	_, err = NewGCSStorageProvider(context.Background(), nil)
	assert.Error(t, err)
}

func TestS3StorageProvider_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	provider := NewS3StorageProviderWithClient(client, "backups")

	artifact := newTestArtifact("artifact-1", tenantA, fixedNow, "payload")
	require.NoError(t, provider.Store(ctx, artifact))
	assert.Equal(t, "s3://backups/tenant-backups/artifact-1/", artifact.Metadata.StorageLocation)
	assert.Equal(t, []string{
		"tenant-backups/artifact-1/artifact.bin",
		"tenant-backups/artifact-1/metadata.json",
	}, client.keys(defaultObjectPrefix))

	got, err := provider.Retrieve(ctx, "artifact-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got.Data)
	assert.Equal(t, tenantA, got.Metadata.IsolationID)

	metadata, err := provider.GetMetadata(ctx, "artifact-1")
	require.NoError(t, err)
	assert.Equal(t, artifact.Metadata.Checksum, metadata.Checksum)
}

func TestS3StorageProvider_NotFoundAndCorruption(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	provider := NewS3StorageProviderWithClient(client, "backups")

	_, err := provider.Retrieve(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(provider.Delete(ctx, "missing"), ErrNotFound))

	require.NoError(t, provider.Store(ctx, newTestArtifact("artifact-1", tenantA, fixedNow, "payload")))
	client.objects["tenant-backups/artifact-1/artifact.bin"] = []byte("tampered")
	_, err = provider.Retrieve(ctx, "artifact-1")
	var be *BackupError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, BackupErrorTypeCorruption, be.Type)

	client.failGet = errors.New("connection reset")
	_, err = provider.GetMetadata(ctx, "artifact-1")
	require.True(t, errors.As(err, &be))
	assert.Equal(t, BackupErrorTypeStorage, be.Type)
	assert.True(t, IsRetryable(err))
}

func TestS3StorageProvider_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	provider := NewS3StorageProviderWithClient(newFakeS3(), "backups")
	for i, tenant := range []string{tenantA, tenantB, tenantA} {
		id := "artifact-" + string(rune('a'+i))
		require.NoError(t, provider.Store(ctx, newTestArtifact(id, tenant, fixedNow.AddDate(0, 0, i), "data")))
	}

	listed, err := provider.List(ctx, StorageFilter{IsolationID: tenantA})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "artifact-c", listed[0].ID)
	assert.Equal(t, "artifact-a", listed[1].ID)

	require.NoError(t, provider.Delete(ctx, "artifact-c"))
	listed, err = provider.List(ctx, StorageFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestArtifactIDFromKey(t *testing.T) {
	tests := map[string]string{
		"tenant-backups/abc/metadata.json":   "abc",
		"tenant-backups/abc/artifact.bin":    "",
		"tenant-backups/a/b/metadata.json":   "",
		"other/abc/metadata.json":            "",
		"tenant-backups/x-1_2/metadata.json": "x-1_2",
	}
	for key, want := range tests {
		assert.Equal(t, want, artifactIDFromKey(defaultObjectPrefix, key), key)
	}
}
