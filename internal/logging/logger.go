package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses all output except errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose shows per-table progress
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows everything, including store statements
	LogLevelDebug LogLevel = "debug"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Logger provides structured logging for backup, import and reset runs
type Logger struct {
	logger *logrus.Logger
	level  LogLevel
}

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	Output     io.Writer
	Format     string // "text" or "json"
	ShowCaller bool
	LogFile    string
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	logger.SetOutput(output)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		formatter := &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		}
		if config.ShowCaller {
			formatter.CallerPrettyfier = func(f *runtime.Frame) (string, string) {
				return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			}
		}
		logger.SetFormatter(formatter)
	}

	logger.SetLevel(toLogrusLevel(config.Level))
	logger.SetReportCaller(config.ShowCaller)

	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}
		logger.SetOutput(io.MultiWriter(output, file))
	}

	level := config.Level
	if level == "" {
		level = LogLevelNormal
	}

	return &Logger{
		logger: logger,
		level:  level,
	}, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelNormal,
		Output: os.Stderr,
		Format: "text",
	})
	return logger
}

// NewNopLogger returns a logger that discards everything. Handy in tests.
func NewNopLogger() *Logger {
	logger, _ := NewLogger(Config{Level: LogLevelQuiet, Output: io.Discard})
	return logger
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelQuiet:
		return logrus.ErrorLevel
	case LogLevelVerbose:
		return logrus.DebugLevel
	case LogLevelDebug:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLevel converts a configuration string into a LogLevel
func ParseLevel(value string) (LogLevel, error) {
	switch LogLevel(value) {
	case LogLevelQuiet, LogLevelNormal, LogLevelVerbose, LogLevelDebug:
		return LogLevel(value), nil
	case "":
		return LogLevelNormal, nil
	}
	return "", fmt.Errorf("unknown log level %q", value)
}

// WithContext returns a logger entry carrying the request ID from ctx, if any
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.logger.WithContext(ctx)
	if requestID := GetRequestIDFromContext(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	return entry
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(fields)
}

// WithField returns a logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// outcome logs fields at okLevel, or with the error attached at failLevel
func (l *Logger) outcome(fields logrus.Fields, err error, okLevel logrus.Level, okMsg string, failLevel logrus.Level, failMsg string) {
	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Log(failLevel, failMsg)
		return
	}
	l.logger.WithFields(fields).Log(okLevel, okMsg)
}

// LogStoreConnection logs a connection attempt with the password masked
func (l *Logger) LogStoreConnection(driver, target string, success bool, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "store_connection",
		"driver":    driver,
		"target":    SanitizeDSN(target),
		"duration":  duration.String(),
		"success":   success,
	}
	if !success && err == nil {
		l.logger.WithFields(fields).Error("Record store connection failed")
		return
	}
	l.outcome(fields, err, logrus.InfoLevel, "Record store connection established",
		logrus.ErrorLevel, "Record store connection failed")
}

const maxLoggedStatement = 200

// LogStatement traces a store statement; statements longer than 200 bytes
// are cut and their length recorded
func (l *Logger) LogStatement(statement string, duration time.Duration, rowsAffected int64, err error) {
	fields := logrus.Fields{
		"operation":     "store_statement",
		"duration":      duration.String(),
		"rows_affected": rowsAffected,
		"sql":           statement,
	}
	if len(statement) > maxLoggedStatement {
		fields["sql"] = statement[:maxLoggedStatement] + "..."
		fields["sql_length"] = len(statement)
	}
	l.outcome(fields, err, logrus.TraceLevel, "Store statement executed", logrus.ErrorLevel, "Store statement failed")
}

func tableFields(operation, table string, count interface{}, countKey string) logrus.Fields {
	return logrus.Fields{"operation": operation, "table": table, countKey: count}
}

// LogTableExport logs one exported table. A failed table is a warning since
// the export goes on without it.
func (l *Logger) LogTableExport(table string, records int, duration time.Duration, err error) {
	fields := tableFields("table_export", table, records, "records")
	fields["duration"] = duration.String()
	okMsg := "Table exported"
	if records == 0 {
		okMsg = "Table is empty, omitted from artifact"
	}
	l.outcome(fields, err, logrus.DebugLevel, okMsg, logrus.WarnLevel, "Table export failed, table skipped")
}

func (l *Logger) LogTableImport(table string, records int, duration time.Duration, err error) {
	fields := tableFields("table_import", table, records, "records")
	fields["duration"] = duration.String()
	l.outcome(fields, err, logrus.DebugLevel, "Table imported", logrus.ErrorLevel, "Table import failed")
}

func (l *Logger) LogTableReset(table string, deleted int64, err error) {
	l.outcome(tableFields("table_reset", table, deleted, "deleted"), err,
		logrus.DebugLevel, "Table reset", logrus.ErrorLevel, "Table reset failed")
}

// LogTransaction logs the commit or rollback of an import or reset
func (l *Logger) LogTransaction(operation string, tables int, duration time.Duration, committed bool, err error) {
	fields := logrus.Fields{
		"operation": operation,
		"tables":    tables,
		"duration":  duration.String(),
		"committed": committed,
	}
	l.outcome(fields, err, logrus.InfoLevel, "Transaction committed", logrus.ErrorLevel, "Transaction rolled back")
}

// LogUnresolvedTables warns about tables that could not be ordered by dependency
func (l *Logger) LogUnresolvedTables(operation string, tables []string) {
	if len(tables) == 0 {
		return
	}
	l.logger.WithFields(logrus.Fields{
		"operation":  operation,
		"unresolved": tables,
	}).Warn("Dependency cycle detected, remaining tables appended in input order")
}

func (l *Logger) Info(msg string)  { l.logger.Info(msg) }
func (l *Logger) Debug(msg string) { l.logger.Debug(msg) }
func (l *Logger) Warn(msg string)  { l.logger.Warn(msg) }
func (l *Logger) Error(msg string) { l.logger.Error(msg) }

func (l *Logger) GetLevel() LogLevel { return l.level }

// IsLevelEnabled reports whether messages of level are written
func (l *Logger) IsLevelEnabled(level LogLevel) bool {
	if _, err := ParseLevel(string(level)); err != nil || level == "" {
		return false
	}
	return l.logger.IsLevelEnabled(toLogrusLevel(level))
}

// LogOperationStart logs the start of operation at debug level and returns
// the function that logs its end
func (l *Logger) LogOperationStart(operation string, fields map[string]interface{}) func(error) {
	start := time.Now()
	logFields := logrus.Fields{"operation": operation, "status": "started"}
	for k, v := range fields {
		logFields[k] = v
	}
	l.logger.WithFields(logFields).Debug("Operation started")

	return func(err error) {
		logFields["status"] = "completed"
		logFields["duration"] = time.Since(start).String()
		logFields["success"] = err == nil
		l.outcome(logFields, err, logrus.InfoLevel, "Operation completed", logrus.ErrorLevel, "Operation failed")
	}
}

// CreateContextWithRequestID creates a context with a request ID for tracing
func CreateContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestIDFromContext extracts request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

var (
	urlPasswordPattern = regexp.MustCompile(`(://[^:/@\s]+:)[^@\s]*(@)`)
	kvPasswordPattern  = regexp.MustCompile(`(?i)(password=)('[^']*'|"[^"]*"|[^\s&;]*)`)
	mysqlDSNPattern    = regexp.MustCompile(`^([^:/@\s]+:)[^@\s]*(@)`)
)

// SanitizeDSN masks passwords in connection strings before they are logged
func SanitizeDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		dsn = urlPasswordPattern.ReplaceAllString(dsn, "${1}***${2}")
	} else {
		dsn = mysqlDSNPattern.ReplaceAllString(dsn, "${1}***${2}")
	}
	return kvPasswordPattern.ReplaceAllString(dsn, "${1}***")
}
