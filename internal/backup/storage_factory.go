package backup

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tenant-backup/internal/logging"
)

// NewStorageProvider creates the provider described by config. When replicas
// are configured the result is a MultiStorageProvider.
func NewStorageProvider(ctx context.Context, config StorageConfig, logger *logging.Logger) (StorageProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid storage configuration", err)
	}

	primary, err := newSingleProvider(ctx, config)
	if err != nil {
		return nil, err
	}
	if len(config.Replicas) == 0 {
		return primary, nil
	}

	replicas := make([]StorageProvider, 0, len(config.Replicas))
	for i, rc := range config.Replicas {
		replica, err := newSingleProvider(ctx, rc)
		if err != nil {
			return nil, NewStorageError(fmt.Sprintf("failed to create replica %d (%s)", i, rc.Provider), err)
		}
		replicas = append(replicas, replica)
	}
	return NewMultiStorageProvider(primary, replicas, logger), nil
}

func newSingleProvider(ctx context.Context, config StorageConfig) (StorageProvider, error) {
	switch config.Provider {
	case StorageProviderLocal:
		return NewLocalStorageProvider(config.Local)
	case StorageProviderS3:
		return NewS3StorageProvider(config.S3)
	case StorageProviderAzure:
		return NewAzureStorageProvider(config.Azure)
	case StorageProviderGCS:
		return NewGCSStorageProvider(ctx, config.GCS)
	}
	return nil, NewConfigurationError(fmt.Sprintf("unsupported storage provider: %s", config.Provider), nil)
}

// MultiStorageProvider writes to a primary provider and copies every
// artifact to its replicas. Reads fall back to the replicas in order.
type MultiStorageProvider struct {
	primary  StorageProvider
	replicas []StorageProvider
	logger   *logging.Logger
}

// NewMultiStorageProvider creates a replicated provider
func NewMultiStorageProvider(primary StorageProvider, replicas []StorageProvider, logger *logging.Logger) *MultiStorageProvider {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &MultiStorageProvider{primary: primary, replicas: replicas, logger: logger}
}

// Store saves to the primary, then to every replica concurrently. Replica
// failures are logged and do not fail the store.
func (msp *MultiStorageProvider) Store(ctx context.Context, artifact *Artifact) error {
	if err := msp.primary.Store(ctx, artifact); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, replica := range msp.replicas {
		i, replica := i, replica
		copied := copyArtifact(artifact)
		g.Go(func() error {
			if err := replica.Store(gctx, copied); err != nil {
				msp.logger.WithFields(map[string]interface{}{
					"artifact_id": artifact.Metadata.ID,
					"replica":     i,
					"error":       err.Error(),
				}).Warn("Failed to replicate artifact")
			}
			return nil
		})
	}
	return g.Wait()
}

// Retrieve reads from the primary, falling back to the replicas
func (msp *MultiStorageProvider) Retrieve(ctx context.Context, artifactID string) (*Artifact, error) {
	var lastErr error
	for _, provider := range msp.all() {
		artifact, err := provider.Retrieve(ctx, artifactID)
		if err == nil {
			return artifact, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Delete removes the artifact everywhere. It fails with not found only when
// no provider held the artifact.
func (msp *MultiStorageProvider) Delete(ctx context.Context, artifactID string) error {
	providers := msp.all()
	errs := make([]error, len(providers))

	var g errgroup.Group
	for i, provider := range providers {
		i, provider := i, provider
		g.Go(func() error {
			errs[i] = provider.Delete(ctx, artifactID)
			return nil
		})
	}
	_ = g.Wait()

	missing := 0
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			missing++
		default:
			return err
		}
	}
	if missing == len(providers) {
		return notFound(artifactID, nil)
	}
	return nil
}

// List lists the primary
func (msp *MultiStorageProvider) List(ctx context.Context, filter StorageFilter) ([]*ArtifactMetadata, error) {
	return msp.primary.List(ctx, filter)
}

// GetMetadata reads from the primary, falling back to the replicas
func (msp *MultiStorageProvider) GetMetadata(ctx context.Context, artifactID string) (*ArtifactMetadata, error) {
	var lastErr error
	for _, provider := range msp.all() {
		metadata, err := provider.GetMetadata(ctx, artifactID)
		if err == nil {
			return metadata, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (msp *MultiStorageProvider) all() []StorageProvider {
	return append([]StorageProvider{msp.primary}, msp.replicas...)
}

func copyArtifact(a *Artifact) *Artifact {
	metadata := *a.Metadata
	metadata.IncludedTables = append([]string(nil), a.Metadata.IncludedTables...)
	return &Artifact{Metadata: &metadata, Data: a.Data}
}
