package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArtifact(id, tenant string, createdAt time.Time, payload string) *Artifact {
	data := []byte(payload)
	return &Artifact{
		Metadata: &ArtifactMetadata{
			ID:              id,
			IsolationID:     tenant,
			IsolationName:   "Tenant " + tenant,
			FileName:        "backup-" + tenant + ".xlsx",
			Format:          FormatXLSX,
			CreatedAt:       createdAt,
			Size:            int64(len(data)),
			StoredSize:      int64(len(data)),
			CompressionType: CompressionTypeNone,
			Checksum:        CalculateDataChecksum(data),
			IncludedTables:  []string{"Person"},
		},
		Data: data,
	}
}

func newLocalProvider(t *testing.T) *LocalStorageProvider {
	t.Helper()
	provider, err := NewLocalStorageProvider(&LocalConfig{BasePath: filepath.Join(t.TempDir(), "artifacts")})
	require.NoError(t, err)
	return provider
}

func TestNewLocalStorageProvider(t *testing.T) {
	t.Run("creates the base directory", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "nested", "artifacts")
		provider, err := NewLocalStorageProvider(&LocalConfig{BasePath: base, Permissions: 0750})
		require.NoError(t, err)
		assert.Equal(t, base, provider.BasePath())

		info, err := os.Stat(base)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewLocalStorageProvider(nil)
		assert.Error(t, err)
	})

	t.Run("empty base path", func(t *testing.T) {
		_, err := NewLocalStorageProvider(&LocalConfig{})
		assert.Error(t, err)
	})
}

func TestLocalStorageProvider_StoreRetrieve(t *testing.T) {
	provider := newLocalProvider(t)
	ctx := context.Background()
	artifact := newTestArtifact("artifact-1", tenantA, fixedNow, "payload-1")

	require.NoError(t, provider.Store(ctx, artifact))
	assert.Equal(t, filepath.Join(provider.BasePath(), "artifact-1"), artifact.Metadata.StorageLocation)

	for _, name := range []string{artifactDataName, artifactMetadataName} {
		info, err := os.Stat(filepath.Join(provider.BasePath(), "artifact-1", name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	got, err := provider.Retrieve(ctx, "artifact-1")
	require.NoError(t, err)
	assert.Equal(t, artifact.Data, got.Data)
	assert.Equal(t, tenantA, got.Metadata.IsolationID)
	assert.True(t, got.Metadata.CreatedAt.Equal(fixedNow))
}

func TestLocalStorageProvider_RejectsInvalidArtifacts(t *testing.T) {
	provider := newLocalProvider(t)
	ctx := context.Background()

	assert.Error(t, provider.Store(ctx, nil))
	assert.Error(t, provider.Store(ctx, &Artifact{Data: []byte("x")}))

	empty := newTestArtifact("artifact-empty", tenantA, fixedNow, "")
	assert.Error(t, provider.Store(ctx, empty))

	noTenant := newTestArtifact("artifact-2", "", fixedNow, "data")
	assert.Error(t, provider.Store(ctx, noTenant))
}

func TestLocalStorageProvider_DetectsCorruption(t *testing.T) {
	provider := newLocalProvider(t)
	ctx := context.Background()
	require.NoError(t, provider.Store(ctx, newTestArtifact("artifact-1", tenantA, fixedNow, "original")))

	path := filepath.Join(provider.BasePath(), "artifact-1", artifactDataName)
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0600))

	_, err := provider.Retrieve(ctx, "artifact-1")
	require.Error(t, err)
	var be *BackupError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, BackupErrorTypeCorruption, be.Type)
}

func TestLocalStorageProvider_NotFound(t *testing.T) {
	provider := newLocalProvider(t)
	ctx := context.Background()

	_, err := provider.Retrieve(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = provider.GetMetadata(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(provider.Delete(ctx, "missing"), ErrNotFound))

	_, err = provider.Retrieve(ctx, "")
	assert.Error(t, err)
}

func TestLocalStorageProvider_Delete(t *testing.T) {
	provider := newLocalProvider(t)
	ctx := context.Background()
	require.NoError(t, provider.Store(ctx, newTestArtifact("artifact-1", tenantA, fixedNow, "payload")))

	require.NoError(t, provider.Delete(ctx, "artifact-1"))
	_, err := os.Stat(filepath.Join(provider.BasePath(), "artifact-1"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorageProvider_List(t *testing.T) {
	provider := newLocalProvider(t)
	ctx := context.Background()
	for i, tenant := range []string{tenantA, tenantB, tenantA, tenantA} {
		id := "artifact-" + string(rune('a'+i))
		require.NoError(t, provider.Store(ctx, newTestArtifact(id, tenant, fixedNow.Add(time.Duration(i)*time.Hour), "data")))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(provider.BasePath(), "not-an-artifact"), 0755))

	all, err := provider.List(ctx, StorageFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "artifact-d", all[0].ID, "newest first")

	mine, err := provider.List(ctx, StorageFilter{IsolationID: tenantA, MaxItems: 2})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "artifact-d", mine[0].ID)
	assert.Equal(t, "artifact-c", mine[1].ID)

	prefixed, err := provider.List(ctx, StorageFilter{Prefix: "artifact-b"})
	require.NoError(t, err)
	require.Len(t, prefixed, 1)
	assert.Equal(t, tenantB, prefixed[0].IsolationID)
}

func TestSanitizeArtifactID(t *testing.T) {
	assert.Equal(t, "__etc_passwd", sanitizeArtifactID("../etc/passwd"))
	assert.Equal(t, "a_b", sanitizeArtifactID("a/b"))
	assert.Equal(t, "a_b", sanitizeArtifactID(`a\b`))
	assert.Equal(t, "tenant-backups/a_b/metadata.json", objectKey(defaultObjectPrefix, "a/b", artifactMetadataName))
}
