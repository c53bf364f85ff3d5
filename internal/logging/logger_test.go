package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   LogLevel
	}{
		{
			name:   "default config",
			config: Config{Level: LogLevelNormal, Format: "text"},
			want:   LogLevelNormal,
		},
		{
			name:   "verbose json config",
			config: Config{Level: LogLevelVerbose, Format: "json"},
			want:   LogLevelVerbose,
		},
		{
			name:   "quiet config",
			config: Config{Level: LogLevelQuiet, Format: "text"},
			want:   LogLevelQuiet,
		},
		{
			name:   "empty level falls back to normal",
			config: Config{},
			want:   LogLevelNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf

			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			if logger.GetLevel() != tt.want {
				t.Errorf("NewLogger() level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"quiet", LogLevelQuiet, false},
		{"debug", LogLevelDebug, false},
		{"", LogLevelNormal, false},
		{"loud", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func newBufferLogger(t *testing.T, level LogLevel) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: level, Output: &buf, Format: "text"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	return logger, &buf
}

func TestLoggerWithContext(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelVerbose)

	ctx := CreateContextWithRequestID(context.Background(), "req-42")
	logger.WithContext(ctx).Info("export started")

	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("Expected request_id field, got: %s", buf.String())
	}
	if GetRequestIDFromContext(context.Background()) != "" {
		t.Error("Expected empty request ID for bare context")
	}
}

func TestLogTableExport(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelVerbose)

	logger.LogTableExport("Rental", 12, 10*time.Millisecond, nil)
	if !strings.Contains(buf.String(), "Table exported") || !strings.Contains(buf.String(), "records=12") {
		t.Errorf("Expected export message, got: %s", buf.String())
	}

	buf.Reset()
	logger.LogTableExport("Rental", 0, time.Millisecond, errors.New("no such table"))
	if !strings.Contains(buf.String(), "table skipped") || !strings.Contains(buf.String(), "no such table") {
		t.Errorf("Expected skip warning, got: %s", buf.String())
	}
}

func TestLogTransaction(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal)

	logger.LogTransaction("import", 4, time.Second, true, nil)
	if !strings.Contains(buf.String(), "Transaction committed") {
		t.Errorf("Expected commit message, got: %s", buf.String())
	}

	buf.Reset()
	logger.LogTransaction("reset", 4, time.Second, false, errors.New("lock timeout"))
	if !strings.Contains(buf.String(), "Transaction rolled back") {
		t.Errorf("Expected rollback message, got: %s", buf.String())
	}
}

func TestLogUnresolvedTables(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal)

	logger.LogUnresolvedTables("import", nil)
	if buf.Len() != 0 {
		t.Errorf("Expected no output for empty list, got: %s", buf.String())
	}

	logger.LogUnresolvedTables("import", []string{"A", "B"})
	if !strings.Contains(buf.String(), "Dependency cycle detected") {
		t.Errorf("Expected cycle warning, got: %s", buf.String())
	}
}

func TestLogStatementTruncation(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelDebug)

	long := strings.Repeat("SELECT * FROM `Rental` ", 20)
	logger.LogStatement(long, time.Millisecond, 1, nil)

	if !strings.Contains(buf.String(), "sql_length=") {
		t.Errorf("Expected sql_length field, got: %s", buf.String())
	}
}

func TestIsLevelEnabled(t *testing.T) {
	tests := []struct {
		name        string
		loggerLevel LogLevel
		testLevel   LogLevel
		want        bool
	}{
		{"quiet logger, quiet level", LogLevelQuiet, LogLevelQuiet, true},
		{"quiet logger, normal level", LogLevelQuiet, LogLevelNormal, false},
		{"normal logger, verbose level", LogLevelNormal, LogLevelVerbose, false},
		{"debug logger, debug level", LogLevelDebug, LogLevelDebug, true},
		{"unknown level", LogLevelDebug, LogLevel("loud"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := newBufferLogger(t, tt.loggerLevel)
			if got := logger.IsLevelEnabled(tt.testLevel); got != tt.want {
				t.Errorf("IsLevelEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogOperationStart(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelVerbose)

	finish := logger.LogOperationStart("export", map[string]interface{}{"tenant": "t-1"})
	if !strings.Contains(buf.String(), "Operation started") || !strings.Contains(buf.String(), "tenant=t-1") {
		t.Errorf("Expected start message, got: %s", buf.String())
	}

	buf.Reset()
	finish(nil)
	if !strings.Contains(buf.String(), "success=true") {
		t.Errorf("Expected success=true, got: %s", buf.String())
	}

	buf.Reset()
	finish(errors.New("boom"))
	if !strings.Contains(buf.String(), "Operation failed") {
		t.Errorf("Expected failure message, got: %s", buf.String())
	}
}

func TestSanitizeDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"mysql dsn", "app:s3cret@tcp(db:3306)/rentals?parseTime=true", "app:***@tcp(db:3306)/rentals?parseTime=true"},
		{"postgres url", "postgres://app:s3cret@db:5432/rentals", "postgres://app:***@db:5432/rentals"},
		{"key value", "host=db user=app password=s3cret dbname=rentals", "host=db user=app password=*** dbname=rentals"},
		{"sqlite path", "file:backup.db?cache=shared", "file:backup.db?cache=shared"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeDSN(tt.dsn); got != tt.want {
				t.Errorf("SanitizeDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}
