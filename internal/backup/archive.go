package backup

import (
	"context"

	"tenant-backup/internal/logging"
)

// Archive keeps exported artifacts in a storage provider. Payloads are
// compressed, then encrypted, and the checksum covers the stored bytes.
type Archive struct {
	provider  StorageProvider
	config    ArchiveConfig
	cipher    *PayloadCipher
	retention *RetentionManager
	logger    *logging.Logger
	metrics   *Metrics
	newID     func() string
}

// NewArchive creates an archive over provider. metrics may be nil.
func NewArchive(provider StorageProvider, config ArchiveConfig, logger *logging.Logger, metrics *Metrics) *Archive {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Archive{
		provider:  provider,
		config:    config,
		cipher:    NewPayloadCipher(&config.Encryption),
		retention: NewRetentionManager(provider, config.Retention, logger),
		logger:    logger,
		metrics:   metrics,
		newID:     GenerateArtifactID,
	}
}

// Save stores an export result and applies the retention policy of its
// tenant. Retention failures are logged and do not fail the save.
func (a *Archive) Save(ctx context.Context, result *ExportResult) (metadata *ArtifactMetadata, err error) {
	defer func() {
		var size int64
		if metadata != nil {
			size = metadata.StoredSize
		}
		a.metrics.ObserveArchive("save", size, err)
	}()

	if result == nil || result.Manifest == nil || len(result.Data) == 0 {
		return nil, NewValidationError("export result with manifest and data is required", nil)
	}

	payload, algorithm, err := compressPayload(a.config.Compression, result.Data)
	if err != nil {
		return nil, err
	}
	payload, err = a.cipher.Seal(payload)
	if err != nil {
		return nil, err
	}

	manifest := result.Manifest
	metadata = &ArtifactMetadata{
		ID:                a.newID(),
		IsolationID:       manifest.IsolationID,
		IsolationName:     manifest.IsolationName,
		FileName:          result.FileName,
		Format:            result.Format,
		CreatedAt:         manifest.CreatedAt,
		Size:              int64(len(result.Data)),
		StoredSize:        int64(len(payload)),
		CompressionType:   algorithm,
		EncryptionEnabled: a.cipher.Enabled(),
		Checksum:          CalculateDataChecksum(payload),
		IncludedTables:    append([]string(nil), manifest.IncludedTables...),
		TotalRecords:      result.TotalRecords,
	}
	if err := a.provider.Store(ctx, &Artifact{Metadata: metadata, Data: payload}); err != nil {
		return nil, err
	}

	a.logger.WithFields(map[string]interface{}{
		"artifact_id": metadata.ID,
		"tenant_id":   metadata.IsolationID,
		"size":        metadata.Size,
		"stored_size": metadata.StoredSize,
		"compression": string(metadata.CompressionType),
		"encrypted":   metadata.EncryptionEnabled,
	}).Info("Artifact archived")

	if a.retention.Enabled() {
		if _, rerr := a.retention.Apply(ctx, metadata.IsolationID, false); rerr != nil {
			a.logger.WithFields(map[string]interface{}{
				"tenant_id": metadata.IsolationID,
				"error":     rerr.Error(),
			}).Warn("Failed to apply retention policy")
		}
	}
	return metadata, nil
}

// Load retrieves an artifact and returns its original bytes
func (a *Archive) Load(ctx context.Context, artifactID string) (data []byte, metadata *ArtifactMetadata, err error) {
	defer func() { a.metrics.ObserveArchive("load", int64(len(data)), err) }()

	artifact, err := a.provider.Retrieve(ctx, artifactID)
	if err != nil {
		return nil, nil, err
	}
	if !artifact.VerifyChecksum() {
		return nil, nil, NewCorruptionError("checksum mismatch for artifact "+artifactID, nil)
	}

	payload := artifact.Data
	if artifact.Metadata.EncryptionEnabled {
		payload, err = a.cipher.Open(payload)
		if err != nil {
			return nil, nil, err
		}
	}
	payload, err = decompressPayload(artifact.Metadata.CompressionType, payload)
	if err != nil {
		return nil, nil, err
	}
	if int64(len(payload)) != artifact.Metadata.Size {
		return nil, nil, NewCorruptionError("restored size does not match metadata of artifact "+artifactID, nil).
			WithContext("expected", artifact.Metadata.Size).
			WithContext("actual", len(payload))
	}
	return payload, artifact.Metadata, nil
}

// List returns the artifacts of isolationID, newest first. An empty
// isolationID lists every tenant; max <= 0 means no limit.
func (a *Archive) List(ctx context.Context, isolationID string, max int) ([]*ArtifactMetadata, error) {
	return a.provider.List(ctx, StorageFilter{IsolationID: isolationID, MaxItems: max})
}

// Delete removes one artifact
func (a *Archive) Delete(ctx context.Context, artifactID string) (err error) {
	defer func() { a.metrics.ObserveArchive("delete", 0, err) }()

	if err := a.provider.Delete(ctx, artifactID); err != nil {
		return err
	}
	a.logger.WithFields(map[string]interface{}{"artifact_id": artifactID}).Info("Artifact deleted")
	return nil
}

// Inspection is the metadata of an archived artifact plus its manifest
type Inspection struct {
	Metadata *ArtifactMetadata `json:"metadata" yaml:"metadata"`
	Manifest *Manifest         `json:"manifest" yaml:"manifest"`
	Tables   map[string]int    `json:"tables,omitempty" yaml:"tables,omitempty"`
}

// Inspect loads an artifact and reads its manifest without decoding rows.
// For csv bundles the per-table row counts are included.
func (a *Archive) Inspect(ctx context.Context, artifactID string) (*Inspection, error) {
	data, metadata, err := a.Load(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	codec, err := CodecFor(metadata.Format)
	if err != nil {
		return nil, err
	}
	manifest, err := codec.ReadManifest(data)
	if err != nil {
		return nil, err
	}

	inspection := &Inspection{Metadata: metadata, Manifest: manifest}
	if bundle, ok := codec.(*BundleCodec); ok {
		tables, err := bundle.TableFiles(data)
		if err != nil {
			return nil, err
		}
		inspection.Tables = tables
	}
	return inspection, nil
}

// ApplyRetention runs the retention policy for one tenant
func (a *Archive) ApplyRetention(ctx context.Context, isolationID string, dryRun bool) (*RetentionResult, error) {
	return a.retention.Apply(ctx, isolationID, dryRun)
}
