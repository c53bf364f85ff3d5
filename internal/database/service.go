package database

import (
	"context"
	"database/sql"
	"time"

	"tenant-backup/internal/errors"
	"tenant-backup/internal/logging"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver, registered as "pgx"
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

// Service opens record stores
type Service struct {
	connectionTimeout time.Duration
	maxRetries        int
	retryDelay        time.Duration
	logger            *logging.Logger
	retryHandler      *errors.RetryHandler
	openDB            func(driver, dsn string) (*sql.DB, error)
}

// NewService creates a new database service with default settings
func NewService(logger *logging.Logger) *Service {
	return NewServiceWithOptions(logger, 30*time.Second, 3, 2*time.Second)
}

// NewServiceWithOptions creates a new database service with custom retry settings
func NewServiceWithOptions(logger *logging.Logger, timeout time.Duration, maxRetries int, retryDelay time.Duration) *Service {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Service{
		connectionTimeout: timeout,
		maxRetries:        maxRetries,
		retryDelay:        retryDelay,
		logger:            logger,
		retryHandler: errors.NewRetryHandler(errors.RetryConfig{
			MaxAttempts: maxRetries,
			BaseDelay:   retryDelay,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		}),
		openDB: sql.Open,
	}
}

// Open connects to the configured store. tables lists the table names accessors
// are handed out for.
func (s *Service) Open(ctx context.Context, config DatabaseConfig, tables []string) (Store, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeValidation, "invalid database configuration", err)
	}

	if config.Driver == DriverMemory {
		s.logger.LogStoreConnection(config.Driver, config.Target(), true, 0, nil)
		return NewMemoryStore(tables...), nil
	}

	dialect, err := DialectFor(config.Driver)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeValidation, err.Error(), nil)
	}

	db, err := s.Connect(ctx, config)
	if err != nil {
		return nil, err
	}

	return NewSQLStore(db, dialect, s.logger,
		WithTables(tables...),
		WithDomainLookup(config.DomainTable, config.DomainNameField),
	), nil
}

// Connect establishes a connection with retry logic
func (s *Service) Connect(ctx context.Context, config DatabaseConfig) (*sql.DB, error) {
	startTime := time.Now()

	s.logger.WithFields(map[string]interface{}{
		"driver": config.Driver,
		"target": config.Target(),
	}).Info("Attempting record store connection")

	ctx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	var db *sql.DB
	err := s.retryHandler.Retry(ctx, func() error {
		var connectErr error

		db, connectErr = s.openDB(config.DriverName(), config.DSN())
		if connectErr != nil {
			return errors.WrapError(connectErr, "failed to open database connection")
		}

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if testErr := s.TestConnection(ctx, db); testErr != nil {
			db.Close()
			return testErr
		}
		return nil
	})

	s.logger.LogStoreConnection(config.Driver, config.Target(), err == nil, time.Since(startTime), err)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// TestConnection verifies that the database connection is working
func (s *Service) TestConnection(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.WrapError(err, "failed to ping database")
	}

	s.logger.Debug("Database connection test successful")
	return nil
}

// GetVersion retrieves the server version of a SQL store
func (s *Service) GetVersion(ctx context.Context, store *SQLStore) (string, error) {
	if store == nil || store.DB() == nil {
		return "", errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	query := store.Dialect().VersionQuery()
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	var version string
	err := store.DB().QueryRowContext(ctx, query).Scan(&version)
	s.logger.LogStatement(query, time.Since(startTime), 1, err)
	if err != nil {
		return "", errors.WrapError(err, "failed to get database version")
	}
	return version, nil
}
