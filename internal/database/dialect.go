package database

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Dialect renders the SQL that differs between supported engines
type Dialect interface {
	Name() string
	Quote(identifier string) string
	Placeholder(n int) string
	// UpsertClause is appended to an INSERT to turn it into an upsert keyed by id
	UpsertClause(columns []string) string
	VersionQuery() string
}

// DialectFor returns the dialect of a driver
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverMySQL:
		return mysqlDialect{}, nil
	case DriverPostgres:
		return postgresDialect{}, nil
	case DriverSQLite:
		return sqliteDialect{}, nil
	}
	return nil, fmt.Errorf("no SQL dialect for driver %q", driver)
}

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return DriverMySQL }

func (mysqlDialect) Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

func (mysqlDialect) Placeholder(int) string { return "?" }

func (d mysqlDialect) UpsertClause(columns []string) string {
	var sets []string
	for _, col := range columns {
		if col == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", d.Quote(col), d.Quote(col)))
	}
	if len(sets) == 0 {
		return fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", d.Quote("id"), d.Quote("id"))
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (mysqlDialect) VersionQuery() string { return "SELECT VERSION()" }

type postgresDialect struct{}

func (postgresDialect) Name() string { return DriverPostgres }

func (postgresDialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (d postgresDialect) UpsertClause(columns []string) string {
	return conflictClause(d, "EXCLUDED", columns)
}

func (postgresDialect) VersionQuery() string { return "SELECT version()" }

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return DriverSQLite }

func (sqliteDialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (d sqliteDialect) UpsertClause(columns []string) string {
	return conflictClause(d, "excluded", columns)
}

func (sqliteDialect) VersionQuery() string { return "SELECT sqlite_version()" }

func conflictClause(d Dialect, excluded string, columns []string) string {
	var sets []string
	for _, col := range columns {
		if col == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s.%s", d.Quote(col), excluded, d.Quote(col)))
	}
	if len(sets) == 0 {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", d.Quote("id"))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", d.Quote("id"), strings.Join(sets, ", "))
}
