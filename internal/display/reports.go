package display

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"tenant-backup/internal/backup"
)

const timeLayout = "2006-01-02 15:04:05"

// ExportSummary prints the outcome of an export
func ExportSummary(ds DisplayService, result *backup.ExportResult) {
	if ds.GetConfig().Format().IsStructured() {
		ds.PrintValue("Export", result)
		return
	}
	details := map[string]string{
		"file":     result.FileName,
		"format":   string(result.Format),
		"size":     FormatBytes(result.Size),
		"records":  strconv.Itoa(result.TotalRecords),
		"duration": result.Duration.Round(time.Millisecond).String(),
	}
	if result.Manifest != nil {
		details["tenant"] = fmt.Sprintf("%s (%s)", result.Manifest.IsolationName, result.Manifest.IsolationID)
	}
	if result.ArtifactID != "" {
		details["artifact"] = result.ArtifactID
	}
	ds.PrintSection("Export", details)
	ds.PrintTable([]string{"Table", "Records"}, countRows(result.TableCounts))
	for _, w := range result.Warnings {
		ds.Warning(w)
	}
}

// ImportSummary prints the outcome of an import
func ImportSummary(ds DisplayService, result *backup.ImportResult) {
	if ds.GetConfig().Format().IsStructured() {
		ds.PrintValue("Import", result)
		return
	}
	ds.PrintSection("Import", map[string]string{
		"tenant":   result.TargetIsolation,
		"tables":   strconv.Itoa(len(result.ImportedTables)),
		"records":  strconv.Itoa(result.TotalRecords),
		"duration": result.Duration.Round(time.Millisecond).String(),
	})
	ds.PrintTable([]string{"Table", "Records"}, orderedCountRows(result.ImportedTables, result.RecordCounts))
	for _, w := range result.Warnings {
		ds.Warning(w)
	}
	for _, e := range result.Errors {
		ds.Error(e)
	}
}

// ResetSummary prints the outcome of a reset
func ResetSummary(ds DisplayService, result *backup.ResetResult) {
	if ds.GetConfig().Format().IsStructured() {
		ds.PrintValue("Reset", result)
		return
	}
	rows := make([][]string, 0, len(result.DeletedTables))
	for _, table := range result.DeletedTables {
		rows = append(rows, []string{table, strconv.FormatInt(result.DeletedCounts[table], 10)})
	}
	ds.PrintSection("Reset", map[string]string{
		"deleted":  strconv.FormatInt(result.TotalDeleted, 10),
		"duration": result.Duration.Round(time.Millisecond).String(),
	})
	ds.PrintTable([]string{"Table", "Deleted"}, rows)
	for _, w := range result.Warnings {
		ds.Warning(w)
	}
	for _, e := range result.Errors {
		ds.Error(e)
	}
}

// ValidationSummary prints a dry-run report
func ValidationSummary(ds DisplayService, report *backup.ValidationReport) {
	if ds.GetConfig().Format().IsStructured() {
		ds.PrintValue("Validation", report)
		return
	}
	details := map[string]string{
		"compatible": strconv.FormatBool(report.Compatible),
		"records":    strconv.Itoa(report.TotalRecords),
		"estimated":  report.EstimatedDuration.Round(time.Second).String(),
	}
	if report.Manifest != nil {
		details["tenant"] = fmt.Sprintf("%s (%s)", report.Manifest.IsolationName, report.Manifest.IsolationID)
		details["schema"] = report.Manifest.SchemaVersion
		details["created"] = report.Manifest.CreatedAt.Format(timeLayout)
	}
	ds.PrintSection("Validation", details)
	ds.PrintTable([]string{"Table", "Records"}, countRows(report.TableCounts))

	issues := append(append([]backup.ValidationIssue{}, report.Errors...), report.Warnings...)
	if len(issues) == 0 {
		return
	}
	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		row := ""
		if issue.Row > 0 {
			row = strconv.Itoa(issue.Row)
		}
		rows = append(rows, []string{string(issue.Severity), issue.Table, row, issue.Field, issue.Message})
	}
	ds.PrintTable([]string{"Severity", "Table", "Row", "Field", "Message"}, rows)
}

// ArtifactTable prints archived artifacts
func ArtifactTable(ds DisplayService, artifacts []*backup.ArtifactMetadata) {
	if ds.GetConfig().Format().IsStructured() {
		ds.PrintValue("Artifacts", artifacts)
		return
	}
	if len(artifacts) == 0 {
		ds.Info("No artifacts found")
		return
	}
	rows := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		flags := string(a.CompressionType)
		if a.EncryptionEnabled {
			flags += "+AES"
		}
		rows = append(rows, []string{
			a.ID,
			a.IsolationID,
			string(a.Format),
			a.CreatedAt.Format(timeLayout),
			strconv.Itoa(a.TotalRecords),
			FormatBytes(a.StoredSize),
			flags,
		})
	}
	ds.PrintTable([]string{"ID", "Tenant", "Format", "Created", "Records", "Stored", "Encoding"}, rows)
}

// UsageSummary prints archive usage per tenant
func UsageSummary(ds DisplayService, report *backup.UsageReport) {
	if ds.GetConfig().Format().IsStructured() {
		ds.PrintValue("Usage", report)
		return
	}
	ds.PrintSection("Archive usage", map[string]string{
		"artifacts":   strconv.Itoa(report.TotalArtifacts),
		"size":        FormatBytes(report.TotalSize),
		"stored":      FormatBytes(report.TotalStoredSize),
		"compression": fmt.Sprintf("%.2f", report.CompressionRatio),
	})
	tenants := make([]string, 0, len(report.ByTenant))
	for id := range report.ByTenant {
		tenants = append(tenants, id)
	}
	sort.Strings(tenants)
	rows := make([][]string, 0, len(tenants))
	for _, id := range tenants {
		u := report.ByTenant[id]
		rows = append(rows, []string{
			id, u.IsolationName, strconv.Itoa(u.Artifacts), FormatBytes(u.StoredSize),
			u.Newest.Format(timeLayout), u.Oldest.Format(timeLayout),
		})
	}
	ds.PrintTable([]string{"Tenant", "Name", "Artifacts", "Stored", "Newest", "Oldest"}, rows)
}

// HealthSummary prints a storage health check
func HealthSummary(ds DisplayService, report *backup.HealthReport) {
	if ds.GetConfig().Format().IsStructured() {
		ds.PrintValue("Health", report)
		return
	}
	rows := make([][]string, 0, len(report.Tests))
	for _, test := range report.Tests {
		status := ds.RenderIcon("success")
		if !test.Success {
			status = ds.RenderIcon("error")
		}
		rows = append(rows, []string{test.TestType, status, test.ResponseTime.Round(time.Millisecond).String(), test.Error})
	}
	ds.PrintTable([]string{"Probe", "Status", "Time", "Error"}, rows)
	if report.Status == "healthy" {
		ds.Success("Storage is healthy")
	} else {
		ds.Error("Storage is " + report.Status)
	}
}

// RetentionSummary prints the outcome of a prune
func RetentionSummary(ds DisplayService, result *backup.RetentionResult) {
	if ds.GetConfig().Format().IsStructured() {
		ds.PrintValue("Retention", result)
		return
	}
	verb := "Deleted"
	if result.DryRun {
		verb = "Would delete"
	}
	ArtifactTable(ds, result.Deleted)
	ds.Info(fmt.Sprintf("%s %d of %d artifacts for %s", verb, len(result.Deleted), result.Processed, result.IsolationID))
	for _, e := range result.Errors {
		ds.Error(e)
	}
}

func countRows(counts map[string]int) [][]string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return orderedCountRows(names, counts)
}

func orderedCountRows(names []string, counts map[string]int) [][]string {
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strconv.Itoa(counts[name])})
	}
	return rows
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InspectionSummary prints the metadata and manifest of an archived artifact
func InspectionSummary(ds DisplayService, inspection *backup.Inspection) {
	if ds.GetConfig().Format().IsStructured() {
		ds.PrintValue("Artifact", inspection)
		return
	}
	m := inspection.Metadata
	details := map[string]string{
		"id":       m.ID,
		"tenant":   fmt.Sprintf("%s (%s)", m.IsolationName, m.IsolationID),
		"file":     m.FileName,
		"format":   string(m.Format),
		"created":  m.CreatedAt.Format(timeLayout),
		"size":     FormatBytes(m.Size),
		"stored":   FormatBytes(m.StoredSize),
		"checksum": m.Checksum,
		"location": m.StorageLocation,
	}
	if manifest := inspection.Manifest; manifest != nil {
		details["schema"] = manifest.SchemaVersion
		details["system"] = manifest.SystemVersion
		details["secrets"] = strconv.FormatBool(manifest.IncludeSecrets)
	}
	ds.PrintSection("Artifact", details)

	if len(inspection.Tables) > 0 {
		ds.PrintTable([]string{"Table", "Records"}, countRows(inspection.Tables))
		return
	}
	if inspection.Manifest != nil {
		rows := make([][]string, 0, len(inspection.Manifest.IncludedTables))
		for _, table := range inspection.Manifest.IncludedTables {
			rows = append(rows, []string{table})
		}
		ds.PrintTable([]string{"Table"}, rows)
	}
}
