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

// ResetOptions scope a reset
type ResetOptions struct {
	// Modules limits the reset to the tables of these modules; empty means
	// every deletable table
	Modules []string
	// ExcludeUserID keeps the acting user's own record
	ExcludeUserID string
	TxTimeout     time.Duration
	Progress      ProgressFunc
}

// Resetter deletes the records of an isolation domain in reverse dependency
// order inside one transaction
type Resetter struct {
	store    TransactionalStore
	registry *schema.Registry
	logger   *logging.Logger
	opts     engineOptions
}

// NewResetter creates a resetter over store
func NewResetter(store TransactionalStore, registry *schema.Registry, logger *logging.Logger, opts ...Option) *Resetter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Resetter{
		store:    store,
		registry: registry,
		logger:   logger,
		opts:     newEngineOptions(opts),
	}
}

// Reset removes the domain's records. Delete failures roll everything back
// and are reported in the result.
func (rs *Resetter) Reset(ctx context.Context, isolationID string, opts ResetOptions) (result *ResetResult, err error) {
	start := rs.opts.now()
	done := rs.logger.LogOperationStart("reset", map[string]interface{}{
		"tenant_id": isolationID,
		"modules":   opts.Modules,
	})
	defer func() {
		done(err)
		rs.opts.metrics.ObserveReset(result, time.Since(start), err)
	}()

	if isolationID == "" {
		return nil, NewValidationError("tenant id is required", nil)
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = rs.opts.txTimeout
	}

	result = &ResetResult{DeletedCounts: make(map[string]int64)}

	tables := rs.registry.DeletableTables()
	if len(opts.Modules) > 0 {
		tables, err = rs.registry.ModuleTables(opts.Modules...)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.Duration = rs.opts.now().Sub(start)
			return result, nil
		}
	}

	order, unresolved := rs.registry.ResolveDeleteOrder(tables)
	if len(unresolved) > 0 {
		rs.logger.LogUnresolvedTables("reset", unresolved)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("dependency cycle among %v, deleted in reverse input order", unresolved))
	}

	opts.Progress.report(0, "reset started")
	txStart := time.Now()
	var warnings []string
	txErr := rs.store.WithinTransaction(ctx, opts.TxTimeout, func(ctx context.Context, tx database.Registry) error {
		warnings = nil
		result.DeletedTables = nil
		result.TotalDeleted = 0
		for i, table := range order {
			accessor, ok := tx.Accessor(table)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("table %s skipped: no accessor in store", table))
				continue
			}

			filter := database.Where(schema.TenantField, isolationID)
			if table == schema.TableUser && opts.ExcludeUserID != "" {
				filter = filter.Not("id", opts.ExcludeUserID)
			}
			deleted, err := accessor.DeleteMany(ctx, filter)
			rs.logger.LogTableReset(table, deleted, err)
			if err != nil {
				return &tableWriteError{table: table, err: err}
			}

			result.DeletedTables = append(result.DeletedTables, table)
			result.DeletedCounts[table] = deleted
			result.TotalDeleted += deleted
			opts.Progress.report((i+1)*100/len(order), "reset "+table)
		}
		return nil
	})
	rs.logger.LogTransaction("reset", len(order), time.Since(txStart), txErr == nil, txErr)
	result.Warnings = append(result.Warnings, warnings...)

	var writeErr *tableWriteError
	switch {
	case errors.As(txErr, &writeErr):
		result.Errors = append(result.Errors, writeErr.Error())
		result.DeletedTables = nil
		result.DeletedCounts = make(map[string]int64)
		result.TotalDeleted = 0
	case txErr != nil:
		return nil, NewDatabaseError("reset transaction failed", txErr).WithContext("tenant_id", isolationID)
	default:
		result.Success = true
	}

	result.Duration = rs.opts.now().Sub(start)
	return result, nil
}
