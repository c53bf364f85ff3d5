package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tenant-backup/internal/database"
	"tenant-backup/internal/logging"
	"tenant-backup/internal/schema"
)

// ExportStore is what the exporter reads from
type ExportStore interface {
	database.Registry
	database.DomainResolver
}

// ExportOptions tune a single export
type ExportOptions struct {
	IncludeSecrets bool
	IncludeLogs    bool
	SelectedTables []string
	// ChunkSize is the page size of table reads, DefaultChunkSize when zero
	ChunkSize int
	Progress  ProgressFunc
}

// Exporter snapshots the tables of one isolation domain into an artifact.
// Tables are read and checked against the codec independently: a table that
// fails either step is skipped with a warning.
type Exporter struct {
	store     ExportStore
	registry  *schema.Registry
	manifests *ManifestBuilder
	logger    *logging.Logger
	opts      engineOptions
}

// NewExporter creates an exporter over store
func NewExporter(store ExportStore, registry *schema.Registry, logger *logging.Logger, opts ...Option) *Exporter {
	o := newEngineOptions(opts)
	manifests := NewManifestBuilder(registry, store, o.systemVersion)
	manifests.now = o.now
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Exporter{
		store:     store,
		registry:  registry,
		manifests: manifests,
		logger:    logger,
		opts:      o,
	}
}

// Export reads every included table of isolationID and encodes the artifact
func (e *Exporter) Export(ctx context.Context, isolationID string, format Format, opts ExportOptions) (result *ExportResult, err error) {
	start := e.opts.now()
	done := e.logger.LogOperationStart("export", map[string]interface{}{
		"tenant_id": isolationID,
		"format":    string(format),
	})
	defer func() {
		done(err)
		e.opts.metrics.ObserveExport(format, result, time.Since(start), err)
	}()

	codec, err := CodecFor(format)
	if err != nil {
		return nil, err
	}
	manifest, err := e.manifests.Generate(ctx, isolationID, format, ManifestOptions{
		IncludeSecrets: opts.IncludeSecrets,
		IncludeLogs:    opts.IncludeLogs,
		SelectedTables: opts.SelectedTables,
	})
	if err != nil {
		return nil, err
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	result = &ExportResult{
		Format:      format,
		Manifest:    manifest,
		TableCounts: make(map[string]int),
	}
	opts.Progress.report(0, "export started")

	var rowsets []RowSet
	for i, table := range manifest.IncludedTables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tableStart := time.Now()
		records, tableErr := e.readTable(ctx, table, isolationID, chunkSize, opts.IncludeSecrets)
		if tableErr == nil {
			tableErr = codec.CheckTable(RowSet{Table: table, Records: records})
		}
		e.logger.LogTableExport(table, len(records), time.Since(tableStart), tableErr)
		if tableErr != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("table %s skipped: %v", table, tableErr))
			result.SkippedTables = append(result.SkippedTables, table)
		} else if len(records) > 0 {
			rowsets = append(rowsets, RowSet{Table: table, Records: records})
			result.TableCounts[table] = len(records)
			result.TotalRecords += len(records)
		}

		opts.Progress.report((i+1)*90/len(manifest.IncludedTables), "exported "+table)
	}

	data, err := codec.Encode(manifest, rowsets)
	if err != nil {
		return nil, err
	}
	result.Data = data
	result.Size = int64(len(data))
	result.FileName = ArtifactFileName(manifest.IsolationName, manifest.CreatedAt, codec.Extension())

	if e.opts.archive != nil {
		opts.Progress.report(95, "archiving artifact")
		metadata, err := e.opts.archive.Save(ctx, result)
		if err != nil {
			return nil, err
		}
		result.ArtifactID = metadata.ID
	}

	result.Duration = e.opts.now().Sub(start)
	opts.Progress.report(100, "export finished")
	return result, nil
}

// readTable pages through one table until a short page is returned
func (e *Exporter) readTable(ctx context.Context, table, isolationID string, chunkSize int, includeSecrets bool) ([]database.Record, error) {
	desc, ok := e.registry.Table(table)
	if !ok {
		return nil, fmt.Errorf("unknown table %s", table)
	}
	accessor, ok := e.store.Accessor(table)
	if !ok {
		return nil, fmt.Errorf("no accessor for table %s", table)
	}

	var filter database.Filter
	if desc.MultiTenant {
		filter = database.Where(schema.TenantField, isolationID)
	}

	var records []database.Record
	for offset := 0; ; offset += chunkSize {
		page, err := accessor.Find(ctx, filter, offset, chunkSize)
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			records = append(records, maskRecord(desc, r, includeSecrets))
		}
		if len(page) < chunkSize {
			return records, nil
		}
	}
}

// ArtifactFileName builds backup-<name>-<YYYY-MM-DD>.<ext> with the domain
// name lowercased and whitespace runs turned into hyphens.
func ArtifactFileName(isolationName string, createdAt time.Time, ext string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(isolationName)), "-")
	if slug == "" {
		slug = "tenant"
	}
	return fmt.Sprintf("backup-%s-%s.%s", slug, createdAt.UTC().Format("2006-01-02"), ext)
}
