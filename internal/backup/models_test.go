package backup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifact_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Artifact)
		wantErr string
	}{
		{name: "valid", mutate: func(*Artifact) {}},
		{name: "missing metadata", mutate: func(a *Artifact) { a.Metadata = nil }, wantErr: "metadata"},
		{name: "empty payload", mutate: func(a *Artifact) { a.Data = nil }, wantErr: "data"},
		{name: "missing id", mutate: func(a *Artifact) { a.Metadata.ID = "" }, wantErr: "metadata.id"},
		{name: "missing tenant", mutate: func(a *Artifact) { a.Metadata.IsolationID = "" }, wantErr: "metadata.tenant_id"},
		{name: "unknown format", mutate: func(a *Artifact) { a.Metadata.Format = "pdf" }, wantErr: "metadata.format"},
		{name: "negative size", mutate: func(a *Artifact) { a.Metadata.Size = -1 }, wantErr: "metadata.size"},
		{name: "bad compression", mutate: func(a *Artifact) { a.Metadata.CompressionType = "RAR" }, wantErr: "metadata.compression_type"},
		{name: "missing checksum", mutate: func(a *Artifact) { a.Metadata.Checksum = "" }, wantErr: "metadata.checksum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artifact := newTestArtifact("artifact-1", tenantA, fixedNow, "payload")
			tt.mutate(artifact)
			err := artifact.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, validationFields(t, err), tt.wantErr)
		})
	}
}

func TestArtifact_VerifyChecksum(t *testing.T) {
	artifact := newTestArtifact("artifact-1", tenantA, fixedNow, "payload")
	assert.True(t, artifact.VerifyChecksum())

	artifact.Data = []byte("changed")
	assert.False(t, artifact.VerifyChecksum())

	artifact.Metadata.Checksum = ""
	assert.False(t, artifact.VerifyChecksum())
}

func TestArtifactMetadata_JSON(t *testing.T) {
	metadata := newTestArtifact("artifact-1", tenantA, fixedNow, "payload").Metadata
	metadata.EncryptionEnabled = true
	metadata.TotalRecords = 8

	data, err := metadata.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tenant_id": "tenant-a"`)

	var decoded ArtifactMetadata
	require.NoError(t, decoded.FromJSON(data))
	assert.Equal(t, metadata.Checksum, decoded.Checksum)
	assert.Equal(t, 8, decoded.TotalRecords)
	assert.True(t, decoded.EncryptionEnabled)
	assert.True(t, decoded.CreatedAt.Equal(fixedNow))

	assert.Error(t, decoded.FromJSON([]byte("{")))
	assert.Error(t, decoded.FromJSON([]byte(`{"id":"x"}`)), "incomplete metadata is rejected")
}

func TestGenerateArtifactID(t *testing.T) {
	first := GenerateArtifactID()
	second := GenerateArtifactID()
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "artifact-"))
	assert.Len(t, first, len("artifact-20060102-150405-")+8)
}

func TestCalculateDataChecksum(t *testing.T) {
	// sha256 of the empty input
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", CalculateDataChecksum(nil))
	assert.Len(t, CalculateDataChecksum([]byte("payload")), 64)
}
