package backup

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an isolation domain or artifact does not exist
	ErrNotFound = errors.New("not found")
	// ErrFormatUnsupported is returned for formats that cannot be read or written
	ErrFormatUnsupported = errors.New("format unsupported")
	// ErrMissingManifest is returned when an artifact carries no manifest
	ErrMissingManifest = errors.New("artifact has no manifest")
)

// BackupErrorType groups engine errors by the remedy they need
type BackupErrorType string

const (
	BackupErrorTypeStorage       BackupErrorType = "STORAGE_ERROR"
	BackupErrorTypeValidation    BackupErrorType = "VALIDATION_ERROR"
	BackupErrorTypeCompression   BackupErrorType = "COMPRESSION_ERROR"
	BackupErrorTypeEncryption    BackupErrorType = "ENCRYPTION_ERROR"
	BackupErrorTypeCorruption    BackupErrorType = "CORRUPTION_ERROR"
	BackupErrorTypeNetwork       BackupErrorType = "NETWORK_ERROR"
	BackupErrorTypeDatabase      BackupErrorType = "DATABASE_ERROR"
	BackupErrorTypeConfiguration BackupErrorType = "CONFIGURATION_ERROR"
	BackupErrorTypeNotFound      BackupErrorType = "NOT_FOUND_ERROR"
	BackupErrorTypeFormat        BackupErrorType = "FORMAT_ERROR"
)

// retryable types are transient failures of the storage backend
var retryable = map[BackupErrorType]bool{
	BackupErrorTypeStorage: true,
	BackupErrorTypeNetwork: true,
}

// BackupError is returned by the engines, codecs and storage providers.
// Message is meant for the user; Context carries identifiers for the logs.
type BackupError struct {
	Type    BackupErrorType        `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *BackupError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

func (e *BackupError) Unwrap() error { return e.Cause }

// WithContext records key for the logs and returns e
func (e *BackupError) WithContext(key string, value interface{}) *BackupError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewBackupError creates a new BackupError
func NewBackupError(errorType BackupErrorType, message string, cause error) *BackupError {
	return &BackupError{Type: errorType, Message: message, Cause: cause}
}

func NewStorageError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeStorage, message, cause)
}

func NewValidationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeValidation, message, cause)
}

func NewCompressionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeCompression, message, cause)
}

func NewEncryptionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeEncryption, message, cause)
}

func NewCorruptionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeCorruption, message, cause)
}

func NewDatabaseError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeDatabase, message, cause)
}

func NewConfigurationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConfiguration, message, cause)
}

// NewNotFoundError wraps ErrNotFound when cause is nil
func NewNotFoundError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeNotFound, message, orSentinel(cause, ErrNotFound))
}

// NewFormatError wraps ErrFormatUnsupported when cause is nil
func NewFormatError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeFormat, message, orSentinel(cause, ErrFormatUnsupported))
}

func orSentinel(cause, sentinel error) error {
	if cause == nil {
		return sentinel
	}
	return cause
}

// IsRetryable reports whether err is a transient storage failure
func IsRetryable(err error) bool {
	var backupErr *BackupError
	return errors.As(err, &backupErr) && retryable[backupErr.Type]
}

// ValidationError is one invalid configuration field
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid field of a configuration section
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{Field: field, Message: message, Value: value})
}

// Merge appends err under prefix, flattening nested ValidationErrors
func (e *ValidationErrors) Merge(prefix string, err error) {
	if err == nil {
		return
	}
	var nested ValidationErrors
	if !errors.As(err, &nested) {
		e.Add(prefix, err.Error(), nil)
		return
	}
	for _, ve := range nested {
		if prefix != "" {
			ve.Field = prefix + "." + ve.Field
		}
		e.Add(ve.Field, ve.Message, ve.Value)
	}
}

func (e ValidationErrors) HasErrors() bool { return len(e) > 0 }
