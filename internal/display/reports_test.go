package display

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-backup/internal/backup"
)

var reportTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestExportSummary(t *testing.T) {
	service, buf := newTestService(FormatTable)
	ExportSummary(service, &backup.ExportResult{
		FileName:     "acme_2026-03-14.xlsx",
		Format:       backup.FormatXLSX,
		Size:         2048,
		TotalRecords: 5,
		TableCounts:  map[string]int{"User": 2, "Person": 3},
		Manifest:     &backup.Manifest{IsolationID: "tenant-a", IsolationName: "Acme"},
		Warnings:     []string{"table Audit skipped"},
		ArtifactID:   "artifact-001",
	})

	out := buf.String()
	assert.Contains(t, out, "acme_2026-03-14.xlsx")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "Acme (tenant-a)")
	assert.Contains(t, out, "artifact-001")
	assert.Less(t, strings.Index(out, "Person"), strings.Index(out, "User"))
	assert.Contains(t, out, "[WARN] table Audit skipped")
}

func TestValidationSummary(t *testing.T) {
	service, buf := newTestService(FormatTable)
	ValidationSummary(service, &backup.ValidationReport{
		Compatible:   false,
		TotalRecords: 1,
		TableCounts:  map[string]int{"Person": 1},
		Errors: []backup.ValidationIssue{
			{Severity: backup.SeverityError, Table: "Person", Row: 1, Field: "name", Message: "name is required"},
		},
		Warnings: []backup.ValidationIssue{
			{Severity: backup.SeverityWarning, Message: "system version differs"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "compatible:")
	assert.Contains(t, out, "false")
	assert.Contains(t, out, "name is required")
	assert.Contains(t, out, "system version differs")
	assert.Less(t, strings.Index(out, "name is required"), strings.Index(out, "system version differs"), "errors before warnings")
}

func TestArtifactTable(t *testing.T) {
	service, buf := newTestService(FormatTable)
	ArtifactTable(service, nil)
	assert.Contains(t, buf.String(), "No artifacts found")

	buf.Reset()
	ArtifactTable(service, []*backup.ArtifactMetadata{{
		ID:                "artifact-001",
		IsolationID:       "tenant-a",
		Format:            backup.FormatCSV,
		CreatedAt:         reportTime,
		TotalRecords:      8,
		StoredSize:        512,
		CompressionType:   backup.CompressionTypeZstd,
		EncryptionEnabled: true,
	}})
	out := buf.String()
	assert.Contains(t, out, "artifact-001")
	assert.Contains(t, out, "2026-03-14 09:30:00")
	assert.Contains(t, out, "ZSTD+AES")
	assert.Contains(t, out, "512 B")
}

func TestArtifactTable_JSON(t *testing.T) {
	service, buf := newTestService(FormatJSON)
	ArtifactTable(service, []*backup.ArtifactMetadata{{ID: "artifact-001", IsolationID: "tenant-a"}})

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "artifact-001", decoded[0]["id"])
	assert.Equal(t, "tenant-a", decoded[0]["tenant_id"])
}

func TestHealthSummary(t *testing.T) {
	service, buf := newTestService(FormatTable)
	HealthSummary(service, &backup.HealthReport{
		Status: "critical",
		Tests: []backup.ConnectivityTest{
			{TestType: "write", Success: false, Error: "bucket gone"},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "bucket gone")
	assert.Contains(t, out, "[ERROR] Storage is critical")
}

func TestRetentionSummary(t *testing.T) {
	service, buf := newTestService(FormatTable)
	RetentionSummary(service, &backup.RetentionResult{
		IsolationID: "tenant-a",
		Processed:   3,
		Deleted:     []*backup.ArtifactMetadata{{ID: "artifact-001", IsolationID: "tenant-a", CreatedAt: reportTime}},
		DryRun:      true,
	})
	assert.Contains(t, buf.String(), "Would delete 1 of 3 artifacts for tenant-a")
}

func TestUsageSummary(t *testing.T) {
	service, buf := newTestService(FormatTable)
	UsageSummary(service, &backup.UsageReport{
		TotalArtifacts:   2,
		TotalSize:        4096,
		TotalStoredSize:  1024,
		CompressionRatio: 0.25,
		ByTenant: map[string]*backup.TenantUsage{
			"tenant-b": {IsolationID: "tenant-b", Artifacts: 1, Newest: reportTime, Oldest: reportTime},
			"tenant-a": {IsolationID: "tenant-a", Artifacts: 1, Newest: reportTime, Oldest: reportTime},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "0.25")
	assert.Less(t, strings.Index(out, "tenant-a"), strings.Index(out, "tenant-b"))
}

func TestInspectionSummary(t *testing.T) {
	service, buf := newTestService(FormatTable)
	InspectionSummary(service, &backup.Inspection{
		Metadata: &backup.ArtifactMetadata{ID: "artifact-001", IsolationID: "tenant-a", IsolationName: "Acme", CreatedAt: reportTime},
		Manifest: &backup.Manifest{SchemaVersion: "1.0.0", IncludedTables: []string{"Person", "Rental"}},
	})
	out := buf.String()
	assert.Contains(t, out, "Acme (tenant-a)")
	assert.Contains(t, out, "1.0.0")
	assert.Less(t, strings.Index(out, "Person"), strings.Index(out, "Rental"))

	buf.Reset()
	InspectionSummary(service, &backup.Inspection{
		Metadata: &backup.ArtifactMetadata{ID: "artifact-002"},
		Tables:   map[string]int{"Person": 3},
	})
	assert.Contains(t, buf.String(), "3")
}
