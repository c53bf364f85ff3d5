package database

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Supported record store drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverMemory   = "memory"
)

// DatabaseConfig holds the configuration parameters for the record store connection
type DatabaseConfig struct {
	Driver   string        `mapstructure:"driver" yaml:"driver" validate:"omitempty,oneof=mysql postgres sqlite3 memory"`
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
	Username string        `mapstructure:"username" yaml:"username"`
	Password string        `mapstructure:"password" yaml:"password"`
	Database string        `mapstructure:"database" yaml:"database"`
	Path     string        `mapstructure:"path" yaml:"path"`
	SSLMode  string        `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// DomainTable and DomainNameField locate isolation domain display names
	DomainTable     string `mapstructure:"domain_table" yaml:"domain_table"`
	DomainNameField string `mapstructure:"domain_name_field" yaml:"domain_name_field"`
}

// SetDefaults fills unset values
func (dc *DatabaseConfig) SetDefaults() {
	if dc.Driver == "" {
		dc.Driver = DriverMySQL
	}
	if dc.Port == 0 {
		switch dc.Driver {
		case DriverMySQL:
			dc.Port = 3306
		case DriverPostgres:
			dc.Port = 5432
		}
	}
	if dc.Timeout <= 0 {
		dc.Timeout = 30 * time.Second
	}
	if dc.SSLMode == "" && dc.Driver == DriverPostgres {
		dc.SSLMode = "disable"
	}
	if dc.DomainTable == "" {
		dc.DomainTable = "Tenant"
	}
	if dc.DomainNameField == "" {
		dc.DomainNameField = "name"
	}
}

// Validate checks if the database configuration has all required parameters
func (dc *DatabaseConfig) Validate() error {
	var errs []error

	switch dc.Driver {
	case DriverMySQL, DriverPostgres:
		if dc.Host == "" {
			errs = append(errs, errors.New("host is required"))
		}
		if dc.Port <= 0 || dc.Port > 65535 {
			errs = append(errs, errors.New("port must be between 1 and 65535"))
		}
		if dc.Username == "" {
			errs = append(errs, errors.New("username is required"))
		}
		if dc.Database == "" {
			errs = append(errs, errors.New("database name is required"))
		}
	case DriverSQLite:
		if dc.Path == "" {
			errs = append(errs, errors.New("path is required for sqlite3"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported driver %q", dc.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("database configuration validation failed: %v", errs)
	}
	return nil
}

// DriverName returns the database/sql driver name registered for the configured driver
func (dc *DatabaseConfig) DriverName() string {
	if dc.Driver == DriverPostgres {
		return "pgx"
	}
	return dc.Driver
}

// DSN returns the data source name for the configured driver
func (dc *DatabaseConfig) DSN() string {
	switch dc.Driver {
	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(dc.Username, dc.Password),
			Host:   fmt.Sprintf("%s:%d", dc.Host, dc.Port),
			Path:   "/" + dc.Database,
		}
		q := url.Values{}
		q.Set("sslmode", dc.SSLMode)
		q.Set("connect_timeout", fmt.Sprintf("%d", int(dc.Timeout.Seconds())))
		u.RawQuery = q.Encode()
		return u.String()
	case DriverSQLite:
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d", dc.Path, dc.Timeout.Milliseconds())
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=%s&parseTime=true&loc=UTC",
			dc.Username, dc.Password, dc.Host, dc.Port, dc.Database, dc.Timeout)
	}
}

// Target describes the connection for log messages without exposing credentials
func (dc *DatabaseConfig) Target() string {
	switch dc.Driver {
	case DriverSQLite:
		return dc.Path
	case DriverMemory:
		return "memory"
	default:
		return fmt.Sprintf("%s:%d/%s", dc.Host, dc.Port, dc.Database)
	}
}
