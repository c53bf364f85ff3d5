package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrDomainNotFound is returned by DomainResolver when the isolation domain does not exist
var ErrDomainNotFound = errors.New("isolation domain not found")

// Record is one row of a table, keyed by field name
type Record map[string]any

// ID returns the record's identifier as text, or "" when it has none
func (r Record) ID() string {
	v, ok := r["id"]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filter selects records by exact field matches
type Filter struct {
	Equals    map[string]any
	NotEquals map[string]any
}

// Where returns a filter matching records whose field equals value
func Where(field string, value any) Filter {
	return Filter{}.And(field, value)
}

// And adds an equality condition
func (f Filter) And(field string, value any) Filter {
	out := f.clone()
	if out.Equals == nil {
		out.Equals = make(map[string]any)
	}
	out.Equals[field] = value
	return out
}

// Not adds an inequality condition
func (f Filter) Not(field string, value any) Filter {
	out := f.clone()
	if out.NotEquals == nil {
		out.NotEquals = make(map[string]any)
	}
	out.NotEquals[field] = value
	return out
}

// IsEmpty reports whether the filter matches everything
func (f Filter) IsEmpty() bool {
	return len(f.Equals) == 0 && len(f.NotEquals) == 0
}

// Matches reports whether a record satisfies every condition. Values are compared
// by their text form so that an int64 id matches the string "7".
func (f Filter) Matches(r Record) bool {
	for field, want := range f.Equals {
		got, ok := r[field]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	for field, unwanted := range f.NotEquals {
		if got, ok := r[field]; ok && fmt.Sprint(got) == fmt.Sprint(unwanted) {
			return false
		}
	}
	return true
}

func (f Filter) clone() Filter {
	out := Filter{}
	if f.Equals != nil {
		out.Equals = make(map[string]any, len(f.Equals))
		for k, v := range f.Equals {
			out.Equals[k] = v
		}
	}
	if f.NotEquals != nil {
		out.NotEquals = make(map[string]any, len(f.NotEquals))
		for k, v := range f.NotEquals {
			out.NotEquals[k] = v
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Accessor reads and writes the records of one table
type Accessor interface {
	// Find returns up to limit records matching filter, skipping offset, ordered by id
	Find(ctx context.Context, filter Filter, offset, limit int) ([]Record, error)
	// CreateOrUpdate inserts the record or replaces the one with the same id
	CreateOrUpdate(ctx context.Context, record Record) error
	// Create inserts the record unconditionally
	Create(ctx context.Context, record Record) error
	// DeleteMany removes every matching record and returns how many were removed
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
}

// Registry maps table names to accessors
type Registry interface {
	Accessor(table string) (Accessor, bool)
}

// Transactor runs fn atomically. Accessors obtained from the registry passed to fn
// participate in the transaction; any error returned by fn rolls everything back.
type Transactor interface {
	WithinTransaction(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx Registry) error) error
}

// DomainResolver looks up an isolation domain's display name
type DomainResolver interface {
	DomainName(ctx context.Context, id string) (string, error)
}

// Store is everything the backup engines need from a record store
type Store interface {
	Registry
	Transactor
	DomainResolver
	Close() error
}
