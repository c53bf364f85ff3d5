package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenant-backup/internal/database"
	"tenant-backup/internal/logging"
	"tenant-backup/internal/schema"
)

// TransactionalStore is what the importer and resetter write to
type TransactionalStore interface {
	database.Registry
	database.Transactor
}

// ImportOptions tune a single import
type ImportOptions struct {
	TargetIsolationID string
	Mode              ImportMode
	// Format forces a codec; the artifact is sniffed when empty
	Format Format
	// TxTimeout bounds the transaction, the engine default when zero
	TxTimeout time.Duration
	Progress  ProgressFunc
}

// tableWriteError marks a persistence failure inside the transaction, as
// opposed to a failure of the transaction itself
type tableWriteError struct {
	table string
	row   int
	err   error
}

func (e *tableWriteError) Error() string {
	if e.row > 0 {
		return fmt.Sprintf("table %s row %d: %v", e.table, e.row, e.err)
	}
	return fmt.Sprintf("table %s: %v", e.table, e.err)
}

func (e *tableWriteError) Unwrap() error { return e.err }

// Importer restores an artifact into an isolation domain. Every table is
// written in dependency order inside one transaction.
type Importer struct {
	store    TransactionalStore
	registry *schema.Registry
	logger   *logging.Logger
	opts     engineOptions
}

// NewImporter creates an importer writing to store
func NewImporter(store TransactionalStore, registry *schema.Registry, logger *logging.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Importer{
		store:    store,
		registry: registry,
		logger:   logger,
		opts:     newEngineOptions(opts),
	}
}

// Import decodes data and writes its records into opts.TargetIsolationID.
// Persistence failures roll the whole import back and are reported in the
// result; unreadable artifacts and transaction failures are returned as errors.
func (im *Importer) Import(ctx context.Context, data []byte, opts ImportOptions) (result *ImportResult, err error) {
	start := im.opts.now()
	done := im.logger.LogOperationStart("import", map[string]interface{}{
		"tenant_id": opts.TargetIsolationID,
		"mode":      string(opts.Mode),
	})
	defer func() {
		done(err)
		im.opts.metrics.ObserveImport(opts.Mode, result, time.Since(start), err)
	}()

	if opts.TargetIsolationID == "" {
		return nil, NewValidationError("target tenant id is required", nil)
	}
	if opts.Mode == "" {
		opts.Mode = ImportModeMerge
	}
	if opts.Mode != ImportModeMerge && opts.Mode != ImportModeReplace {
		return nil, NewValidationError(fmt.Sprintf("unknown import mode %q", opts.Mode), nil)
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = im.opts.txTimeout
	}

	opts.Progress.report(0, "decoding artifact")
	manifest, rowsets, err := decodeArtifact(data, opts.Format)
	if err != nil {
		return nil, err
	}

	result = &ImportResult{
		RecordCounts:    make(map[string]int),
		TargetIsolation: opts.TargetIsolationID,
	}

	compat := ValidateCompatibility(manifest)
	result.Warnings = append(result.Warnings, compat.Warnings...)
	if !compat.Compatible {
		result.Errors = append(result.Errors, compat.Errors...)
		result.Duration = im.opts.now().Sub(start)
		return result, nil
	}

	byTable := make(map[string]RowSet, len(rowsets))
	names := make([]string, 0, len(rowsets))
	for _, rs := range rowsets {
		byTable[rs.Table] = rs
		names = append(names, rs.Table)
	}
	order, unresolved := im.registry.ResolveImportOrder(names)
	if len(unresolved) > 0 {
		im.logger.LogUnresolvedTables("import", unresolved)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("dependency cycle among %v, imported in artifact order", unresolved))
	}

	opts.Progress.report(10, "writing records")
	txStart := time.Now()
	var warnings []string
	txErr := im.store.WithinTransaction(ctx, opts.TxTimeout, func(ctx context.Context, tx database.Registry) error {
		warnings = nil
		result.ImportedTables = nil
		result.TotalRecords = 0
		for i, table := range order {
			written, skipped, err := im.importTable(ctx, tx, byTable[table], opts)
			if err != nil {
				return err
			}
			if skipped != "" {
				warnings = append(warnings, skipped)
			} else {
				result.ImportedTables = append(result.ImportedTables, table)
				result.RecordCounts[table] = written
				result.TotalRecords += written
			}
			opts.Progress.report(10+(i+1)*85/len(order), "imported "+table)
		}
		return nil
	})
	im.logger.LogTransaction("import", len(order), time.Since(txStart), txErr == nil, txErr)
	result.Warnings = append(result.Warnings, warnings...)

	var writeErr *tableWriteError
	switch {
	case errors.As(txErr, &writeErr):
		result.Errors = append(result.Errors, writeErr.Error())
		result.ImportedTables = nil
		result.RecordCounts = make(map[string]int)
		result.TotalRecords = 0
	case txErr != nil:
		return nil, NewDatabaseError("import transaction failed", txErr).
			WithContext("tenant_id", opts.TargetIsolationID)
	default:
		result.Success = true
	}

	result.Duration = im.opts.now().Sub(start)
	opts.Progress.report(100, "import finished")
	return result, nil
}

// importTable writes one row set. A missing accessor skips the table and
// returns the warning text.
func (im *Importer) importTable(ctx context.Context, tx database.Registry, rs RowSet, opts ImportOptions) (int, string, error) {
	accessor, ok := tx.Accessor(rs.Table)
	if !ok {
		im.logger.LogTableImport(rs.Table, 0, 0, nil)
		return 0, fmt.Sprintf("table %s skipped: no accessor in target store", rs.Table), nil
	}
	desc, known := im.registry.Table(rs.Table)

	start := time.Now()
	for i, record := range rs.Records {
		if err := ctx.Err(); err != nil {
			return 0, "", err
		}
		r := im.transform(desc, known, record, opts.TargetIsolationID)

		var err error
		if opts.Mode == ImportModeReplace {
			err = accessor.Create(ctx, r)
		} else {
			err = accessor.CreateOrUpdate(ctx, r)
		}
		if err != nil {
			im.logger.LogTableImport(rs.Table, i, time.Since(start), err)
			return 0, "", &tableWriteError{table: rs.Table, row: i + 1, err: err}
		}
	}
	im.logger.LogTableImport(rs.Table, len(rs.Records), time.Since(start), nil)
	return len(rs.Records), "", nil
}

// transform re-parents a record into the target domain and applies the
// per-table import rules
func (im *Importer) transform(desc schema.TableDescriptor, known bool, record database.Record, target string) database.Record {
	r := record.Clone()
	if _, carries := r[schema.TenantField]; carries || (known && desc.MultiTenant) {
		r[schema.TenantField] = target
	}

	if desc.Name == schema.TableUser {
		r["password"] = UnusablePassword
		r["status"] = PasswordResetRequired
	}
	if known {
		unmaskRecord(desc, r)
	}
	parseDateFields(r)
	return r
}
