package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tenant-backup/internal/errors"
)

// MemoryStore is an in-process Store. Transactions snapshot every table and
// restore the snapshot when fn fails. It backs the "memory" driver and tests.
type MemoryStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	tables   map[string][]Record
	failures map[string]error

	domainTable     string
	domainNameField string
}

// NewMemoryStore creates a store with an accessor for each named table
func NewMemoryStore(tables ...string) *MemoryStore {
	m := &MemoryStore{
		tables:          make(map[string][]Record, len(tables)),
		failures:        make(map[string]error),
		domainTable:     "Tenant",
		domainNameField: "name",
	}
	for _, table := range tables {
		m.tables[table] = nil
	}
	return m
}

// Seed appends records to a table, creating the table if needed
func (m *MemoryStore) Seed(table string, records ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.tables[table] = append(m.tables[table], r.Clone())
	}
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = nil
	}
}

// Records returns a copy of every record in a table
func (m *MemoryStore) Records(table string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, r.Clone())
	}
	return out
}

// Count returns the number of records in a table
func (m *MemoryStore) Count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

// FailWrites makes every write and delete on table return err. A nil err clears it.
func (m *MemoryStore) FailWrites(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, table)
		return
	}
	m.failures[table] = err
}

// Accessor returns the accessor of a known table
func (m *MemoryStore) Accessor(table string) (Accessor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		return nil, false
	}
	return &memoryTable{store: m, name: table}, true
}

// WithinTransaction runs fn against the store and restores the previous state if fn fails
func (m *MemoryStore) WithinTransaction(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx Registry) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	snapshot := m.snapshot()
	err := fn(ctx, m)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.mu.Lock()
		m.tables = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemoryStore) snapshot() map[string][]Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string][]Record, len(m.tables))
	for name, records := range m.tables {
		rows := make([]Record, len(records))
		for i, r := range records {
			rows[i] = r.Clone()
		}
		copied[name] = rows
	}
	return copied
}

// DomainName looks the domain up in the tenant table
func (m *MemoryStore) DomainName(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.tables[m.domainTable] {
		if r.ID() == id {
			name, _ := r[m.domainNameField].(string)
			return name, nil
		}
	}
	return "", ErrDomainNotFound
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

type memoryTable struct {
	store *MemoryStore
	name  string
}

func (t *memoryTable) Find(ctx context.Context, filter Filter, offset, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	var matched []Record
	for _, r := range t.store.tables[t.name] {
		if filter.Matches(r) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].ID() < matched[j].ID() })

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]Record, len(matched))
	for i, r := range matched {
		out[i] = r.Clone()
	}
	return out, nil
}

func (t *memoryTable) CreateOrUpdate(ctx context.Context, record Record) error {
	return t.write(ctx, record, true)
}

func (t *memoryTable) Create(ctx context.Context, record Record) error {
	return t.write(ctx, record, false)
}

func (t *memoryTable) write(ctx context.Context, record Record, upsert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if err := t.store.failures[t.name]; err != nil {
		return err
	}

	id := record.ID()
	rows := t.store.tables[t.name]
	if id != "" {
		for i, existing := range rows {
			if existing.ID() != id {
				continue
			}
			if !upsert {
				return errors.NewAppError(errors.ErrorTypeConstraint,
					fmt.Sprintf("duplicate id %s in table %s", id, t.name), nil)
			}
			rows[i] = record.Clone()
			return nil
		}
	}
	t.store.tables[t.name] = append(rows, record.Clone())
	return nil
}

func (t *memoryTable) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if err := t.store.failures[t.name]; err != nil {
		return 0, err
	}

	kept := t.store.tables[t.name][:0:0]
	var deleted int64
	for _, r := range t.store.tables[t.name] {
		if filter.Matches(r) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	t.store.tables[t.name] = kept
	return deleted, nil
}
