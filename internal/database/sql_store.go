package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tenant-backup/internal/errors"
	"tenant-backup/internal/logging"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore exposes a relational database as a Store
type SQLStore struct {
	db              *sql.DB
	dialect         Dialect
	logger          *logging.Logger
	tables          map[string]bool
	domainTable     string
	domainNameField string
}

// SQLStoreOption customizes a SQLStore
type SQLStoreOption func(*SQLStore)

// WithTables restricts the accessors handed out to the named tables
func WithTables(names ...string) SQLStoreOption {
	return func(s *SQLStore) {
		s.tables = make(map[string]bool, len(names))
		for _, name := range names {
			s.tables[name] = true
		}
	}
}

// WithDomainLookup sets the table and field that hold isolation domain names
func WithDomainLookup(table, nameField string) SQLStoreOption {
	return func(s *SQLStore) {
		s.domainTable = table
		s.domainNameField = nameField
	}
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB, dialect Dialect, logger *logging.Logger, opts ...SQLStoreOption) *SQLStore {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	s := &SQLStore{
		db:              db,
		dialect:         dialect,
		logger:          logger,
		domainTable:     "Tenant",
		domainNameField: "name",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's SQL dialect
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Accessor returns an accessor bound to the database handle
func (s *SQLStore) Accessor(table string) (Accessor, bool) {
	return s.accessor(s.db, table)
}

func (s *SQLStore) accessor(q queryer, table string) (Accessor, bool) {
	if validIdentifier(table) != nil {
		return nil, false
	}
	if s.tables != nil && !s.tables[table] {
		return nil, false
	}
	return &sqlTable{q: q, dialect: s.dialect, name: table, logger: s.logger}, true
}

type txRegistry struct {
	store *SQLStore
	tx    *sql.Tx
}

func (r *txRegistry) Accessor(table string) (Accessor, bool) {
	return r.store.accessor(r.tx, table)
}

// WithinTransaction runs fn inside a database transaction bounded by timeout
func (s *SQLStore) WithinTransaction(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx Registry) error) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapError(err, "failed to begin transaction")
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
				s.logger.WithField("error", rollbackErr.Error()).Error("Failed to rollback transaction")
			}
		}
	}()

	if err = fn(ctx, &txRegistry{store: s, tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.WrapError(err, "failed to commit transaction")
	}
	return nil
}

// DomainName looks up an isolation domain's display name
func (s *SQLStore) DomainName(ctx context.Context, id string) (string, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		s.dialect.Quote(s.domainNameField), s.dialect.Quote(s.domainTable),
		s.dialect.Quote("id"), s.dialect.Placeholder(1))

	startTime := time.Now()
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(&name)
	s.logger.LogStatement(query, time.Since(startTime), 0, err)

	if err == sql.ErrNoRows {
		return "", ErrDomainNotFound
	}
	if err != nil {
		return "", errors.WrapError(err, "failed to look up isolation domain")
	}
	return name.String, nil
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type sqlTable struct {
	q       queryer
	dialect Dialect
	name    string
	logger  *logging.Logger
}

func (t *sqlTable) where(filter Filter, argOffset int) (string, []any, error) {
	if filter.IsEmpty() {
		return "", nil, nil
	}

	var clauses []string
	var args []any
	for _, field := range sortedKeys(filter.Equals) {
		if err := validIdentifier(field); err != nil {
			return "", nil, err
		}
		args = append(args, filter.Equals[field])
		clauses = append(clauses, fmt.Sprintf("%s = %s", t.dialect.Quote(field), t.dialect.Placeholder(argOffset+len(args))))
	}
	for _, field := range sortedKeys(filter.NotEquals) {
		if err := validIdentifier(field); err != nil {
			return "", nil, err
		}
		args = append(args, filter.NotEquals[field])
		clauses = append(clauses, fmt.Sprintf("%s <> %s", t.dialect.Quote(field), t.dialect.Placeholder(argOffset+len(args))))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (t *sqlTable) Find(ctx context.Context, filter Filter, offset, limit int) ([]Record, error) {
	where, args, err := t.where(filter, 0)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s LIMIT %s OFFSET %s",
		t.dialect.Quote(t.name), where, t.dialect.Quote("id"),
		t.dialect.Placeholder(len(args)+1), t.dialect.Placeholder(len(args)+2))
	args = append(args, limit, offset)

	startTime := time.Now()
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		t.logger.LogStatement(query, time.Since(startTime), 0, err)
		return nil, t.wrap(err, "failed to read")
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	t.logger.LogStatement(query, time.Since(startTime), int64(len(records)), err)
	if err != nil {
		return nil, t.wrap(err, "failed to scan")
	}
	return records, nil
}

func (t *sqlTable) CreateOrUpdate(ctx context.Context, record Record) error {
	return t.insert(ctx, record, true)
}

func (t *sqlTable) Create(ctx context.Context, record Record) error {
	return t.insert(ctx, record, false)
}

func (t *sqlTable) insert(ctx context.Context, record Record, upsert bool) error {
	if len(record) == 0 {
		return errors.NewAppError(errors.ErrorTypeValidation, "cannot insert an empty record", nil).
			WithContext("table", t.name)
	}

	columns := sortedKeys(record)
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		if err := validIdentifier(col); err != nil {
			return errors.NewAppError(errors.ErrorTypeValidation, err.Error(), nil).WithContext("table", t.name)
		}
		quoted[i] = t.dialect.Quote(col)
		placeholders[i] = t.dialect.Placeholder(i + 1)
		value, err := toSQLValue(record[col])
		if err != nil {
			return errors.NewAppError(errors.ErrorTypeValidation,
				fmt.Sprintf("cannot encode field %s", col), err).WithContext("table", t.name)
		}
		args[i] = value
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.dialect.Quote(t.name), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if upsert {
		query += t.dialect.UpsertClause(columns)
	}

	startTime := time.Now()
	result, err := t.q.ExecContext(ctx, query, args...)
	var affected int64
	if result != nil {
		affected, _ = result.RowsAffected()
	}
	t.logger.LogStatement(query, time.Since(startTime), affected, err)
	if err != nil {
		return t.wrap(err, "failed to write").WithContext("id", record.ID())
	}
	return nil
}

func (t *sqlTable) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	where, args, err := t.where(filter, 0)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s%s", t.dialect.Quote(t.name), where)

	startTime := time.Now()
	result, err := t.q.ExecContext(ctx, query, args...)
	var affected int64
	if result != nil {
		affected, _ = result.RowsAffected()
	}
	t.logger.LogStatement(query, time.Since(startTime), affected, err)
	if err != nil {
		return 0, t.wrap(err, "failed to delete from")
	}
	return affected, nil
}

func (t *sqlTable) wrap(err error, action string) *errors.AppError {
	classified := errors.NewErrorClassifier().ClassifyError(err)
	return errors.NewAppError(classified.Type, fmt.Sprintf("%s table %s", action, t.name), err).
		WithContext("table", t.name)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []Record
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		record := make(Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
				continue
			}
			record[col] = values[i]
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func toSQLValue(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	}
	return v, nil
}
