package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenant-backup/internal/database"
	"tenant-backup/internal/schema"
)

// ManifestOptions select what an export contains
type ManifestOptions struct {
	IncludeSecrets bool
	IncludeLogs    bool
	// SelectedTables overrides the default export set when non-empty
	SelectedTables []string
}

// ManifestBuilder creates and checks artifact manifests
type ManifestBuilder struct {
	registry      *schema.Registry
	domains       database.DomainResolver
	schemaVersion string
	systemVersion string
	now           func() time.Time
}

// NewManifestBuilder creates a builder stamping manifests with the given system version
func NewManifestBuilder(registry *schema.Registry, domains database.DomainResolver, systemVersion string) *ManifestBuilder {
	return &ManifestBuilder{
		registry:      registry,
		domains:       domains,
		schemaVersion: SchemaVersion,
		systemVersion: systemVersion,
		now:           time.Now,
	}
}

// Generate builds the manifest of an export of isolationID
func (mb *ManifestBuilder) Generate(ctx context.Context, isolationID string, format Format, opts ManifestOptions) (*Manifest, error) {
	if !format.Valid() {
		return nil, NewFormatError(fmt.Sprintf("unknown format %q", format), nil)
	}

	name, err := mb.domains.DomainName(ctx, isolationID)
	if errors.Is(err, database.ErrDomainNotFound) {
		return nil, NewNotFoundError(fmt.Sprintf("tenant %s not found", isolationID), nil).
			WithContext("tenant_id", isolationID)
	}
	if err != nil {
		return nil, NewDatabaseError("failed to look up tenant", err).WithContext("tenant_id", isolationID)
	}

	tables := mb.registry.ExportSet(opts.IncludeLogs)
	if len(opts.SelectedTables) > 0 {
		tables = dedupe(opts.SelectedTables)
	}
	if len(tables) == 0 {
		return nil, NewValidationError("no tables selected for export", nil)
	}

	return &Manifest{
		SchemaVersion:  mb.schemaVersion,
		SystemVersion:  mb.systemVersion,
		CreatedAt:      mb.now().UTC().Truncate(time.Millisecond),
		IsolationID:    isolationID,
		IsolationName:  name,
		Format:         format,
		IncludedTables: tables,
		IncludeSecrets: opts.IncludeSecrets,
		IncludeLogs:    opts.IncludeLogs,
	}, nil
}

// ValidateCompatibility checks whether this build can restore an artifact
// described by m. A schema version mismatch only warns.
func ValidateCompatibility(m *Manifest) CompatibilityResult {
	var result CompatibilityResult
	if m == nil {
		result.Errors = append(result.Errors, "manifest is missing")
		return result
	}

	if m.SchemaVersion == "" {
		result.Errors = append(result.Errors, "manifest has no schema version")
	} else if m.SchemaVersion != SchemaVersion {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("schema version %s differs from current version %s", m.SchemaVersion, SchemaVersion))
	}

	if !m.Format.Valid() {
		result.Errors = append(result.Errors, fmt.Sprintf("unknown format %q", m.Format))
	}
	if m.IsolationID == "" {
		result.Errors = append(result.Errors, "manifest has no tenant id")
	}
	if m.CreatedAt.IsZero() {
		result.Errors = append(result.Errors, "manifest has no creation date")
	}
	if len(m.IncludedTables) == 0 {
		result.Errors = append(result.Errors, "manifest lists no tables")
	}

	result.Compatible = len(result.Errors) == 0
	return result
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
