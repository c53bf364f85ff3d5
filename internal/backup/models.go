package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validate validates the Artifact struct
func (a *Artifact) Validate() error {
	var errors ValidationErrors

	if a.Metadata == nil {
		errors.Add("metadata", "artifact metadata is required", nil)
	} else {
		errors.Merge("metadata", a.Metadata.Validate())
	}

	if len(a.Data) == 0 {
		errors.Add("data", "artifact payload is empty", nil)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// VerifyChecksum reports whether the payload matches the recorded checksum
func (a *Artifact) VerifyChecksum() bool {
	if a.Metadata == nil || a.Metadata.Checksum == "" {
		return false
	}
	return CalculateDataChecksum(a.Data) == a.Metadata.Checksum
}

// Validate validates the ArtifactMetadata struct
func (am *ArtifactMetadata) Validate() error {
	var errors ValidationErrors

	if am.ID == "" {
		errors.Add("id", "artifact ID is required", am.ID)
	}

	if am.IsolationID == "" {
		errors.Add("tenant_id", "tenant ID is required", am.IsolationID)
	}

	if am.CreatedAt.IsZero() {
		errors.Add("created_at", "creation timestamp is required", am.CreatedAt)
	}

	if !am.Format.Valid() {
		errors.Add("format", "invalid artifact format", am.Format)
	}

	if am.Size < 0 {
		errors.Add("size", "artifact size cannot be negative", am.Size)
	}

	if am.StoredSize < 0 {
		errors.Add("stored_size", "stored size cannot be negative", am.StoredSize)
	}

	if am.CompressionType != "" && !isValidCompressionType(am.CompressionType) {
		errors.Add("compression_type", "invalid compression type", am.CompressionType)
	}

	if am.Checksum == "" {
		errors.Add("checksum", "artifact checksum is required", am.Checksum)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// ToJSON serializes the ArtifactMetadata to JSON
func (am *ArtifactMetadata) ToJSON() ([]byte, error) {
	return json.MarshalIndent(am, "", "  ")
}

// FromJSON replaces am with the metadata encoded in data
func (am *ArtifactMetadata) FromJSON(data []byte) error {
	*am = ArtifactMetadata{}
	if err := json.Unmarshal(data, am); err != nil {
		return NewValidationError("failed to unmarshal artifact metadata JSON", err)
	}
	return am.Validate()
}

// GenerateArtifactID returns a sortable unique artifact ID
func GenerateArtifactID() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	shortUUID := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("artifact-%s-%s", timestamp, shortUUID)
}

// CalculateDataChecksum calculates a checksum for arbitrary data
func CalculateDataChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
