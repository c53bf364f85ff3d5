package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// ErrorType is the category shown to the user and used to pick hints
type ErrorType string

const (
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeSQL        ErrorType = "sql"
	// ErrorTypeSchema is a table or column the record store does not have
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeConstraint is a referential or uniqueness violation
	ErrorTypeConstraint   ErrorType = "constraint"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypePermission   ErrorType = "permission"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeInterruption ErrorType = "interruption"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// AppError is a classified error. Recoverable errors are retried by
// RetryHandler; UserMessage, when set, replaces Message on screen.
type AppError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
	UserMessage string
}

func (e *AppError) Error() string {
	msg := string(e.Type) + ": " + e.Message
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// GetUserMessage returns UserMessage, falling back to Message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage == "" {
		return e.Message
	}
	return e.UserMessage
}

func (e *AppError) IsRecoverable() bool { return e.Recoverable }

// WithContext records key for the logs and returns e
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func newError(errorType ErrorType, message string, cause error, recoverable bool) *AppError {
	return &AppError{
		Type:        errorType,
		Message:     message,
		Cause:       cause,
		Context:     make(map[string]interface{}),
		Recoverable: recoverable,
	}
}

// NewAppError creates an error that is not retried
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return newError(errorType, message, cause, false)
}

// NewRecoverableError creates an error RetryHandler retries
func NewRecoverableError(errorType ErrorType, message string, cause error) *AppError {
	return newError(errorType, message, cause, true)
}

// rule is the classification of one driver error code
type rule struct {
	errType     ErrorType
	message     string
	recoverable bool
}

func (r rule) build(cause error) *AppError {
	return newError(r.errType, r.message, cause, r.recoverable)
}

const (
	msgAccessDenied = "Database access denied - check username and password"
	msgNoDatabase   = "Database does not exist"
	msgNoTable      = "Table does not exist"
	msgNoColumn     = "Column does not exist"
	msgDuplicate    = "Duplicate entry - record already exists"
	msgForeignKey   = "Foreign key constraint violated - check dependency order"
)

var mysqlRules = map[uint16]rule{
	1045: {ErrorTypePermission, msgAccessDenied, false},
	1049: {ErrorTypeValidation, msgNoDatabase, false},
	1146: {ErrorTypeSchema, msgNoTable, false},
	1054: {ErrorTypeSchema, msgNoColumn, false},
	1062: {ErrorTypeConstraint, msgDuplicate, false},
	1451: {ErrorTypeConstraint, msgForeignKey, false},
	1452: {ErrorTypeConstraint, msgForeignKey, false},
	1205: {ErrorTypeTimeout, "Transaction lock conflict - retry the operation", true},
	1213: {ErrorTypeTimeout, "Transaction lock conflict - retry the operation", true},
	1064: {ErrorTypeSQL, "SQL syntax error", false},
	2003: {ErrorTypeConnection, "Cannot connect to MySQL server - server may be down or unreachable", true},
	2006: {ErrorTypeConnection, "MySQL server connection lost", true},
}

// postgresRules are keyed by SQLSTATE; postgresClassRules by its two
// character class and apply when no exact code matches
var (
	postgresRules = map[string]rule{
		"28P01": {ErrorTypePermission, msgAccessDenied, false},
		"28000": {ErrorTypePermission, msgAccessDenied, false},
		"3D000": {ErrorTypeValidation, msgNoDatabase, false},
		"42P01": {ErrorTypeSchema, msgNoTable, false},
		"42703": {ErrorTypeSchema, msgNoColumn, false},
		"23505": {ErrorTypeConstraint, msgDuplicate, false},
		"23503": {ErrorTypeConstraint, msgForeignKey, false},
		"40001": {ErrorTypeTimeout, "Transaction serialization conflict - retry the operation", true},
		"40P01": {ErrorTypeTimeout, "Transaction serialization conflict - retry the operation", true},
	}
	postgresClassRules = map[string]rule{
		"08": {ErrorTypeConnection, "PostgreSQL connection failure", true},
		"42": {ErrorTypeSQL, "SQL syntax or access rule violation", false},
	}
)

var sqliteRules = map[sqlite3.ErrNo]rule{
	sqlite3.ErrBusy:       {ErrorTypeTimeout, "Database file is locked - retry the operation", true},
	sqlite3.ErrLocked:     {ErrorTypeTimeout, "Database file is locked - retry the operation", true},
	sqlite3.ErrConstraint: {ErrorTypeConstraint, "Constraint violated", false},
	sqlite3.ErrPerm:       {ErrorTypePermission, "Database file is not writable", false},
	sqlite3.ErrReadonly:   {ErrorTypePermission, "Database file is not writable", false},
	sqlite3.ErrAuth:       {ErrorTypePermission, "Database file is not writable", false},
	sqlite3.ErrCantOpen:   {ErrorTypeConnection, "Unable to open database file", false},
}

// ErrorClassifier maps driver, network, context and filesystem errors onto
// the ErrorType taxonomy
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError returns err as an AppError. Errors that are already AppErrors
// are returned unchanged; anything unrecognized is ErrorTypeUnknown.
func (ec *ErrorClassifier) ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	for _, classify := range []func(error) *AppError{
		ec.classifyMySQLError,
		ec.classifyPostgresError,
		ec.classifySQLiteError,
		ec.classifyDriverError,
		ec.classifyNetworkError,
		ec.classifyContextError,
		ec.classifyFileSystemError,
	} {
		if classified := classify(err); classified != nil {
			return classified
		}
	}
	return NewAppError(ErrorTypeUnknown, "An unexpected error occurred", err)
}

func (ec *ErrorClassifier) classifyMySQLError(err error) *AppError {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return nil
	}
	r, ok := mysqlRules[mysqlErr.Number]
	if !ok {
		r = rule{ErrorTypeSQL, fmt.Sprintf("MySQL error: %s", mysqlErr.Message), false}
	}
	return r.build(err).WithContext("mysql_error_code", mysqlErr.Number)
}

func (ec *ErrorClassifier) classifyPostgresError(err error) *AppError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	r, ok := postgresRules[pgErr.Code]
	if !ok && len(pgErr.Code) == 5 {
		r, ok = postgresClassRules[pgErr.Code[:2]]
	}
	if !ok {
		r = rule{ErrorTypeSQL, fmt.Sprintf("PostgreSQL error: %s", pgErr.Message), false}
	}
	return r.build(err).WithContext("sqlstate", pgErr.Code)
}

func (ec *ErrorClassifier) classifySQLiteError(err error) *AppError {
	var liteErr sqlite3.Error
	if !errors.As(err, &liteErr) {
		return nil
	}
	r, ok := sqliteRules[liteErr.Code]
	if !ok {
		r = rule{ErrorTypeSQL, fmt.Sprintf("SQLite error: %s", liteErr.Error()), false}
	}
	return r.build(err).WithContext("sqlite_error_code", int(liteErr.Code))
}

// classifyDriverError handles the database/sql sentinels
func (ec *ErrorClassifier) classifyDriverError(err error) *AppError {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return NewAppError(ErrorTypeValidation, "No rows found", err)
	case errors.Is(err, sql.ErrTxDone):
		return NewAppError(ErrorTypeSQL, "Transaction has already been committed or rolled back", err)
	case errors.Is(err, sql.ErrConnDone):
		return NewRecoverableError(ErrorTypeConnection, "Database connection is closed", err)
	}
	return nil
}

func (ec *ErrorClassifier) classifyNetworkError(err error) *AppError {
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewRecoverableError(ErrorTypeTimeout, "Network operation timed out", err)
		}
		if netErr.Temporary() {
			return NewRecoverableError(ErrorTypeConnection, "Temporary network error", err)
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return NewRecoverableError(ErrorTypeConnection, "Failed to establish network connection", err)
		case "read", "write":
			return NewRecoverableError(ErrorTypeConnection, "Network I/O error", err)
		}
	}
	return nil
}

// classifyContextError separates a transaction deadline from a user interrupt
func (ec *ErrorClassifier) classifyContextError(err error) *AppError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewRecoverableError(ErrorTypeTimeout, "Operation timed out", err)
	case errors.Is(err, context.Canceled):
		return NewAppError(ErrorTypeInterruption, "Operation was canceled", err)
	}
	return nil
}

// classifyFileSystemError covers artifact files and sqlite databases
func (ec *ErrorClassifier) classifyFileSystemError(err error) *AppError {
	var pathErr *os.PathError
	if !errors.As(err, &pathErr) {
		return nil
	}
	switch pathErr.Err {
	case syscall.ENOENT:
		return NewAppError(ErrorTypeValidation, fmt.Sprintf("File or directory not found: %s", pathErr.Path), err)
	case syscall.EACCES:
		return NewAppError(ErrorTypePermission, fmt.Sprintf("Permission denied: %s", pathErr.Path), err)
	case syscall.ENOSPC:
		return NewAppError(ErrorTypeValidation, "No space left on device", err)
	}
	return nil
}

// RetryConfig shapes the exponential backoff of RetryHandler
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// RetryHandler reruns an operation while it fails with a recoverable error
type RetryHandler struct {
	config     RetryConfig
	classifier *ErrorClassifier
}

func NewRetryHandler(config RetryConfig) *RetryHandler {
	return &RetryHandler{config: config, classifier: NewErrorClassifier()}
}

// Retry calls operation up to MaxAttempts times. The first non-recoverable
// error is returned at once; when every attempt fails the last error carries
// the attempt count. Cancelling ctx stops between attempts.
func (rh *RetryHandler) Retry(ctx context.Context, operation func() error) error {
	var last *AppError
	for attempt := 1; attempt <= rh.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(rh.calculateDelay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return NewAppError(ErrorTypeInterruption, "Operation canceled during retry", ctx.Err())
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return NewAppError(ErrorTypeInterruption, "Operation canceled", ctx.Err())
		}

		err := operation()
		if err == nil {
			return nil
		}
		last = rh.classifier.ClassifyError(err)
		if !last.IsRecoverable() {
			return last
		}
	}
	if last == nil {
		return nil
	}
	return last.WithContext("attempts", rh.config.MaxAttempts)
}

// calculateDelay is BaseDelay * Multiplier^(attempt-1), capped at MaxDelay
func (rh *RetryHandler) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(rh.config.BaseDelay) * math.Pow(rh.config.Multiplier, float64(attempt-1)))
	return min(delay, rh.config.MaxDelay)
}

// IsRecoverableError reports whether err is a recoverable AppError
func IsRecoverableError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.IsRecoverable()
}

// GetErrorType returns the type of an AppError, ErrorTypeUnknown otherwise
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// FormatUserError is the message shown for err. Unclassified errors get a
// generic message; their details go to the log.
func FormatUserError(err error) string {
	var appErr *AppError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &appErr):
		return appErr.GetUserMessage()
	}
	return "An unexpected error occurred. Please check the logs for more details."
}

// WrapError classifies err and replaces its message, keeping err as the cause
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return newError(appErr.Type, message, err, appErr.Recoverable)
	}
	classified := NewErrorClassifier().ClassifyError(err)
	classified.Message = message
	return classified
}
