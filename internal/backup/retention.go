package backup

import (
	"context"
	"fmt"
	"time"

	"tenant-backup/internal/logging"
)

// RetentionResult reports one retention pass over a tenant's artifacts
type RetentionResult struct {
	IsolationID string              `json:"tenant_id" yaml:"tenant_id"`
	Processed   int                 `json:"processed" yaml:"processed"`
	Deleted     []*ArtifactMetadata `json:"deleted" yaml:"deleted"`
	Kept        []*ArtifactMetadata `json:"kept" yaml:"kept"`
	Errors      []string            `json:"errors,omitempty" yaml:"errors,omitempty"`
	DryRun      bool                `json:"dry_run" yaml:"dry_run"`
	Duration    time.Duration       `json:"duration" yaml:"duration"`
}

// RetentionManager prunes archived artifacts per isolation domain
type RetentionManager struct {
	provider StorageProvider
	config   RetentionConfig
	logger   *logging.Logger
	now      func() time.Time
}

// NewRetentionManager creates a retention manager over provider
func NewRetentionManager(provider StorageProvider, config RetentionConfig, logger *logging.Logger) *RetentionManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RetentionManager{provider: provider, config: config, logger: logger, now: time.Now}
}

// Enabled reports whether any retention rule is configured
func (rm *RetentionManager) Enabled() bool {
	return rm.config.MaxArtifacts > 0 || rm.config.MaxAge > 0
}

// Apply deletes the artifacts of isolationID that no rule keeps. With dryRun
// nothing is deleted.
func (rm *RetentionManager) Apply(ctx context.Context, isolationID string, dryRun bool) (*RetentionResult, error) {
	if isolationID == "" {
		return nil, NewValidationError("tenant ID is required for retention", nil)
	}
	start := rm.now()

	artifacts, err := rm.provider.List(ctx, StorageFilter{IsolationID: isolationID})
	if err != nil {
		return nil, err
	}

	toDelete, toKeep := rm.partition(artifacts)
	result := &RetentionResult{
		IsolationID: isolationID,
		Processed:   len(artifacts),
		Deleted:     toDelete,
		Kept:        toKeep,
		DryRun:      dryRun,
	}

	if !dryRun {
		for _, artifact := range toDelete {
			if err := rm.provider.Delete(ctx, artifact.ID); err != nil {
				msg := fmt.Sprintf("failed to delete artifact %s: %v", artifact.ID, err)
				result.Errors = append(result.Errors, msg)
				rm.logger.Error(msg)
				continue
			}
			rm.logger.WithFields(map[string]interface{}{
				"artifact_id": artifact.ID,
				"tenant_id":   isolationID,
				"created_at":  artifact.CreatedAt.Format(time.RFC3339),
			}).Info("Artifact removed by retention policy")
		}
	}

	result.Duration = rm.now().Sub(start)
	rm.logger.Info(fmt.Sprintf("Retention applied for tenant %s: %d processed, %d to delete, %d to keep (dry run: %v)",
		isolationID, result.Processed, len(result.Deleted), len(result.Kept), dryRun))
	return result, nil
}

// partition splits artifacts, sorted newest first, into the ones to delete
// and the ones to keep. The newest artifact is always kept.
func (rm *RetentionManager) partition(artifacts []*ArtifactMetadata) (toDelete, toKeep []*ArtifactMetadata) {
	if len(artifacts) == 0 || !rm.Enabled() {
		return nil, artifacts
	}

	keep := make(map[string]bool, len(artifacts))
	keep[artifacts[0].ID] = true

	if rm.config.MaxArtifacts > 0 {
		for i := 0; i < len(artifacts) && i < rm.config.MaxArtifacts; i++ {
			keep[artifacts[i].ID] = true
		}
	}
	if rm.config.MaxAge > 0 {
		cutoff := rm.now().Add(-rm.config.MaxAge)
		for _, artifact := range artifacts {
			if artifact.CreatedAt.After(cutoff) {
				keep[artifact.ID] = true
			}
		}
	}

	for _, artifact := range artifacts {
		if keep[artifact.ID] {
			toKeep = append(toKeep, artifact)
		} else {
			toDelete = append(toDelete, artifact)
		}
	}
	return toDelete, toKeep
}
