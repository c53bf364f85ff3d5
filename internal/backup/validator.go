package backup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tenant-backup/internal/database"
	"tenant-backup/internal/logging"
	"tenant-backup/internal/schema"
)

// recordRule checks one record and reports its issues through add
type recordRule func(r database.Record, add func(severity IssueSeverity, field, message string))

// Validator dry-runs an artifact: it decodes and checks it without any store access
type Validator struct {
	registry *schema.Registry
	logger   *logging.Logger
	opts     engineOptions
	rules    map[string][]recordRule
}

// NewValidator creates a validator for artifacts of registry's tables
func NewValidator(registry *schema.Registry, logger *logging.Logger, opts ...Option) *Validator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Validator{
		registry: registry,
		logger:   logger,
		opts:     newEngineOptions(opts),
		rules: map[string][]recordRule{
			schema.TablePerson:         {requireText("document")},
			schema.TableFinancialTitle: {requireNumber("amount")},
			schema.TablePayment:        {requireNumber("amount")},
		},
	}
}

// Validate decodes data and checks the manifest and every record. Only
// unreadable artifacts are returned as errors; everything else is reported.
func (v *Validator) Validate(ctx context.Context, data []byte) (report *ValidationReport, err error) {
	start := time.Now()
	done := v.logger.LogOperationStart("validate", map[string]interface{}{"size": len(data)})
	defer func() {
		done(err)
		v.opts.metrics.ObserveValidation(report, time.Since(start), err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	manifest, rowsets, err := decodeArtifact(data, "")
	if err != nil {
		return nil, err
	}

	report = &ValidationReport{
		Manifest:    manifest,
		TableCounts: make(map[string]int),
	}
	add := func(issue ValidationIssue) {
		if issue.Severity == SeverityError {
			report.Errors = append(report.Errors, issue)
		} else {
			report.Warnings = append(report.Warnings, issue)
		}
	}

	compat := ValidateCompatibility(manifest)
	for _, msg := range compat.Errors {
		add(ValidationIssue{Severity: SeverityError, Message: msg})
	}
	for _, msg := range compat.Warnings {
		add(ValidationIssue{Severity: SeverityWarning, Message: msg})
	}

	listed := make(map[string]bool, len(manifest.IncludedTables))
	for _, name := range manifest.IncludedTables {
		listed[name] = true
	}

	for _, rs := range rowsets {
		report.TableCounts[rs.Table] = len(rs.Records)
		report.TotalRecords += len(rs.Records)

		if !v.registry.Has(rs.Table) {
			add(ValidationIssue{Severity: SeverityWarning, Table: rs.Table,
				Message: "unknown table, it will be skipped unless the target store provides it"})
		}
		if !listed[rs.Table] {
			add(ValidationIssue{Severity: SeverityWarning, Table: rs.Table,
				Message: "table is not listed in the manifest"})
		}

		for i, record := range rs.Records {
			row := i + 1
			issue := func(severity IssueSeverity, field, message string) {
				add(ValidationIssue{Severity: severity, Table: rs.Table, Row: row, Field: field, Message: message})
			}
			checkIdentity(record, issue)
			checkTimestamps(record, issue)
			for _, rule := range v.rules[rs.Table] {
				rule(record, issue)
			}
		}
	}

	report.Compatible = len(report.Errors) == 0
	report.EstimatedDuration = time.Duration(report.TotalRecords) * time.Second / time.Duration(v.opts.recordsPerSecond)
	return report, nil
}

func checkIdentity(r database.Record, add func(IssueSeverity, string, string)) {
	if r.ID() == "" {
		add(SeverityError, "id", "record has no id")
	}
}

func checkTimestamps(r database.Record, add func(IssueSeverity, string, string)) {
	for _, field := range []string{"createdAt", "updatedAt"} {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		if _, isTime := v.(time.Time); isTime {
			continue
		}
		if _, parsed := parseTime(fmt.Sprint(v)); !parsed {
			add(SeverityWarning, field, fmt.Sprintf("invalid date %q", fmt.Sprint(v)))
		}
	}
}

func requireText(field string) recordRule {
	return func(r database.Record, add func(IssueSeverity, string, string)) {
		v, ok := r[field]
		if !ok || v == nil || strings.TrimSpace(fmt.Sprint(v)) == "" {
			add(SeverityError, field, field+" is required")
		}
	}
}

func requireNumber(field string) recordRule {
	return func(r database.Record, add func(IssueSeverity, string, string)) {
		switch v := r[field].(type) {
		case int, int32, int64, float32, float64:
			return
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return
			}
			add(SeverityError, field, fmt.Sprintf("%s %q is not a number", field, v))
		case nil:
			add(SeverityError, field, field+" is required")
		default:
			add(SeverityError, field, fmt.Sprintf("%s has non-numeric value %v", field, v))
		}
	}
}
