package backup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedArtifacts stores n artifacts of tenant, one day apart, the newest
// created at fixedNow. <tenant>-artifact-00 is the newest.
func seedArtifacts(t *testing.T, provider StorageProvider, tenant string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-artifact-%02d", tenant, i)
		artifact := newTestArtifact(id, tenant, fixedNow.AddDate(0, 0, -i), "data")
		require.NoError(t, provider.Store(context.Background(), artifact))
	}
}

func idsOf(items []*ArtifactMetadata) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func newTestRetention(provider StorageProvider, config RetentionConfig) *RetentionManager {
	rm := NewRetentionManager(provider, config, nil)
	rm.now = fixedClock
	return rm
}

func TestRetentionManager_Partition(t *testing.T) {
	tests := []struct {
		name   string
		config RetentionConfig
		keep   []string
	}{
		{
			name:   "no rules keeps everything",
			config: RetentionConfig{},
			keep:   []string{"a-00", "a-01", "a-02", "a-03", "a-04"},
		},
		{
			name:   "count",
			config: RetentionConfig{MaxArtifacts: 2},
			keep:   []string{"a-00", "a-01"},
		},
		{
			name:   "age",
			config: RetentionConfig{MaxAge: 60 * time.Hour},
			keep:   []string{"a-00", "a-01", "a-02"},
		},
		{
			name:   "either rule keeps",
			config: RetentionConfig{MaxArtifacts: 4, MaxAge: 24 * time.Hour},
			keep:   []string{"a-00", "a-01", "a-02", "a-03"},
		},
		{
			name:   "newest survives any age",
			config: RetentionConfig{MaxAge: time.Minute},
			keep:   []string{"a-00"},
		},
	}

	var artifacts []*ArtifactMetadata
	for i := 0; i < 5; i++ {
		// one day apart; a-00 is one hour old
		artifacts = append(artifacts, &ArtifactMetadata{
			ID:        fmt.Sprintf("a-%02d", i),
			CreatedAt: fixedNow.Add(-time.Hour).AddDate(0, 0, -i),
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := newTestRetention(nil, tt.config)
			toDelete, toKeep := rm.partition(artifacts)
			assert.Equal(t, tt.keep, idsOf(toKeep))
			assert.Len(t, toDelete, len(artifacts)-len(tt.keep))
		})
	}

	rm := newTestRetention(nil, RetentionConfig{MaxArtifacts: 1})
	toDelete, toKeep := rm.partition(nil)
	assert.Empty(t, toDelete)
	assert.Empty(t, toKeep)
}

func TestRetentionManager_Apply(t *testing.T) {
	ctx := context.Background()
	provider := newLocalProvider(t)
	seedArtifacts(t, provider, tenantA, 5)
	seedArtifacts(t, provider, tenantB, 2)

	rm := newTestRetention(provider, RetentionConfig{MaxArtifacts: 3})
	require.True(t, rm.Enabled())

	result, err := rm.Apply(ctx, tenantA, false)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, []string{"tenant-a-artifact-03", "tenant-a-artifact-04"}, idsOf(result.Deleted))
	assert.Len(t, result.Kept, 3)
	assert.Empty(t, result.Errors)

	remaining, err := provider.List(ctx, StorageFilter{IsolationID: tenantA})
	require.NoError(t, err)
	assert.Len(t, remaining, 3)

	others, err := provider.List(ctx, StorageFilter{IsolationID: tenantB})
	require.NoError(t, err)
	assert.Len(t, others, 2, "other tenants are untouched")
}

func TestRetentionManager_DryRun(t *testing.T) {
	ctx := context.Background()
	provider := newLocalProvider(t)
	seedArtifacts(t, provider, tenantA, 4)

	result, err := newTestRetention(provider, RetentionConfig{MaxAge: 36 * time.Hour}).Apply(ctx, tenantA, true)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, []string{"tenant-a-artifact-02", "tenant-a-artifact-03"}, idsOf(result.Deleted))

	remaining, err := provider.List(ctx, StorageFilter{IsolationID: tenantA})
	require.NoError(t, err)
	assert.Len(t, remaining, 4)
}

// flakyDeleteProvider fails deletes of one artifact
type flakyDeleteProvider struct {
	*LocalStorageProvider
	failID string
}

func (p *flakyDeleteProvider) Delete(ctx context.Context, artifactID string) error {
	if artifactID == p.failID {
		return NewStorageError("permission denied", nil)
	}
	return p.LocalStorageProvider.Delete(ctx, artifactID)
}

func TestRetentionManager_CollectsDeleteErrors(t *testing.T) {
	ctx := context.Background()
	provider := &flakyDeleteProvider{LocalStorageProvider: newLocalProvider(t), failID: "tenant-a-artifact-02"}
	seedArtifacts(t, provider, tenantA, 4)

	result, err := newTestRetention(provider, RetentionConfig{MaxArtifacts: 1}).Apply(ctx, tenantA, false)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "tenant-a-artifact-02")

	remaining, err := provider.List(ctx, StorageFilter{IsolationID: tenantA})
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-a-artifact-00", "tenant-a-artifact-02"}, idsOf(remaining))
}

func TestRetentionManager_RequiresTenant(t *testing.T) {
	_, err := newTestRetention(newLocalProvider(t), RetentionConfig{MaxArtifacts: 1}).Apply(context.Background(), "", false)
	var be *BackupError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, BackupErrorTypeValidation, be.Type)
}
