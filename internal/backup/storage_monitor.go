package backup

import (
	"context"
	"fmt"
	"time"
)

// UsageReport summarizes archived artifacts, overall and per tenant
type UsageReport struct {
	TotalArtifacts   int                     `json:"total_artifacts" yaml:"total_artifacts"`
	TotalSize        int64                   `json:"total_size" yaml:"total_size"`
	TotalStoredSize  int64                   `json:"total_stored_size" yaml:"total_stored_size"`
	CompressionRatio float64                 `json:"compression_ratio" yaml:"compression_ratio"`
	Largest          *ArtifactMetadata       `json:"largest,omitempty" yaml:"largest,omitempty"`
	ByTenant         map[string]*TenantUsage `json:"by_tenant" yaml:"by_tenant"`
	GeneratedAt      time.Time               `json:"generated_at" yaml:"generated_at"`
}

// TenantUsage is the archive usage of one tenant
type TenantUsage struct {
	IsolationID   string    `json:"tenant_id" yaml:"tenant_id"`
	IsolationName string    `json:"tenant_name" yaml:"tenant_name"`
	Artifacts     int       `json:"artifacts" yaml:"artifacts"`
	Size          int64     `json:"size" yaml:"size"`
	StoredSize    int64     `json:"stored_size" yaml:"stored_size"`
	Newest        time.Time `json:"newest" yaml:"newest"`
	Oldest        time.Time `json:"oldest" yaml:"oldest"`
}

// ConnectivityTest is one probe of a storage health check
type ConnectivityTest struct {
	TestType     string        `json:"test_type" yaml:"test_type"` // "write", "read", "list", "delete"
	Success      bool          `json:"success" yaml:"success"`
	ResponseTime time.Duration `json:"response_time" yaml:"response_time"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// HealthReport is the outcome of a storage health check
type HealthReport struct {
	Status    string             `json:"status" yaml:"status"` // "healthy" or "critical"
	Tests     []ConnectivityTest `json:"tests" yaml:"tests"`
	CheckedAt time.Time          `json:"checked_at" yaml:"checked_at"`
}

// Usage aggregates the metadata of every archived artifact
func (a *Archive) Usage(ctx context.Context) (*UsageReport, error) {
	artifacts, err := a.provider.List(ctx, StorageFilter{})
	if err != nil {
		return nil, err
	}

	report := &UsageReport{
		ByTenant:    make(map[string]*TenantUsage),
		GeneratedAt: time.Now().UTC(),
	}
	for _, artifact := range artifacts {
		report.TotalArtifacts++
		report.TotalSize += artifact.Size
		report.TotalStoredSize += artifact.StoredSize
		if report.Largest == nil || artifact.Size > report.Largest.Size {
			report.Largest = artifact
		}

		usage, ok := report.ByTenant[artifact.IsolationID]
		if !ok {
			usage = &TenantUsage{
				IsolationID:   artifact.IsolationID,
				IsolationName: artifact.IsolationName,
				Newest:        artifact.CreatedAt,
				Oldest:        artifact.CreatedAt,
			}
			report.ByTenant[artifact.IsolationID] = usage
		}
		usage.Artifacts++
		usage.Size += artifact.Size
		usage.StoredSize += artifact.StoredSize
		if artifact.CreatedAt.After(usage.Newest) {
			usage.Newest = artifact.CreatedAt
		}
		if artifact.CreatedAt.Before(usage.Oldest) {
			usage.Oldest = artifact.CreatedAt
		}
	}
	if report.TotalSize > 0 {
		report.CompressionRatio = float64(report.TotalStoredSize) / float64(report.TotalSize)
	}
	return report, nil
}

// CheckHealth writes, reads, lists and deletes a probe artifact. Failures
// are reported, not returned.
func (a *Archive) CheckHealth(ctx context.Context) *HealthReport {
	report := &HealthReport{Status: "healthy", CheckedAt: time.Now().UTC()}

	payload := []byte("tenant-backup health probe")
	probe := &ArtifactMetadata{
		ID:          "health-probe-" + a.newID(),
		IsolationID: "health-probe",
		Format:      FormatCSV,
		CreatedAt:   report.CheckedAt,
		Size:        int64(len(payload)),
		StoredSize:  int64(len(payload)),
		Checksum:    CalculateDataChecksum(payload),
	}

	run := func(testType string, fn func() error) bool {
		start := time.Now()
		err := fn()
		test := ConnectivityTest{TestType: testType, Success: err == nil, ResponseTime: time.Since(start)}
		if err != nil {
			test.Error = err.Error()
			report.Status = "critical"
		}
		report.Tests = append(report.Tests, test)
		return err == nil
	}

	if !run("write", func() error {
		return a.provider.Store(ctx, &Artifact{Metadata: probe, Data: payload})
	}) {
		return report
	}
	run("read", func() error {
		artifact, err := a.provider.Retrieve(ctx, probe.ID)
		if err != nil {
			return err
		}
		if string(artifact.Data) != string(payload) {
			return fmt.Errorf("probe payload mismatch")
		}
		return nil
	})
	run("list", func() error {
		_, err := a.provider.List(ctx, StorageFilter{IsolationID: probe.IsolationID, MaxItems: 1})
		return err
	})
	run("delete", func() error {
		return a.provider.Delete(ctx, probe.ID)
	})

	a.logger.WithFields(map[string]interface{}{
		"status": report.Status,
		"tests":  len(report.Tests),
	}).Info("Storage health check finished")
	return report
}
