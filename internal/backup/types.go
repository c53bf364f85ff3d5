package backup

import (
	"os"
	"time"

	"tenant-backup/internal/database"
)

// Format identifies an artifact serialization
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Valid reports whether the format is known
func (f Format) Valid() bool {
	return f == FormatXLSX || f == FormatCSV
}

// SchemaVersion is the version written into new manifests
const SchemaVersion = "1.0.0"

// Manifest describes the contents of an artifact
type Manifest struct {
	SchemaVersion  string    `json:"schemaVersion" yaml:"schema_version"`
	SystemVersion  string    `json:"systemVersion" yaml:"system_version"`
	CreatedAt      time.Time `json:"createdAt" yaml:"created_at"`
	IsolationID    string    `json:"tenantId" yaml:"tenant_id"`
	IsolationName  string    `json:"tenantName" yaml:"tenant_name"`
	Format         Format    `json:"format" yaml:"format"`
	IncludedTables []string  `json:"includedTables" yaml:"included_tables"`
	IncludeSecrets bool      `json:"includeSecrets" yaml:"include_secrets"`
	IncludeLogs    bool      `json:"includeLogs" yaml:"include_logs"`
}

// RowSet holds the records of one table in artifact order
type RowSet struct {
	Table   string
	Records []database.Record
}

// Fields returns the field names of the first record in a stable order
func (rs RowSet) Fields() []string {
	if len(rs.Records) == 0 {
		return nil
	}
	return sortedFields(rs.Records[0])
}

// ProgressFunc receives coarse progress updates between 0 and 100
type ProgressFunc func(percent int, message string)

func (p ProgressFunc) report(percent int, message string) {
	if p != nil {
		p(percent, message)
	}
}

// ExportResult describes a produced artifact
type ExportResult struct {
	FileName      string         `json:"fileName" yaml:"file_name"`
	Format        Format         `json:"format" yaml:"format"`
	Size          int64          `json:"size" yaml:"size"`
	Data          []byte         `json:"-" yaml:"-"`
	Manifest      *Manifest      `json:"manifest" yaml:"manifest"`
	TableCounts   map[string]int `json:"tableCounts" yaml:"table_counts"`
	TotalRecords  int            `json:"totalRecords" yaml:"total_records"`
	Warnings      []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	ArtifactID    string         `json:"artifactId,omitempty" yaml:"artifact_id,omitempty"`
	Duration      time.Duration  `json:"duration" yaml:"duration"`
	SkippedTables []string       `json:"skippedTables,omitempty" yaml:"skipped_tables,omitempty"`
}

// ImportMode selects how imported records are persisted
type ImportMode string

const (
	// ImportModeMerge upserts by id
	ImportModeMerge ImportMode = "merge"
	// ImportModeReplace inserts and fails on an existing id
	ImportModeReplace ImportMode = "replace"
)

// ImportResult summarizes an import run
type ImportResult struct {
	Success         bool           `json:"success" yaml:"success"`
	ImportedTables  []string       `json:"importedTables" yaml:"imported_tables"`
	RecordCounts    map[string]int `json:"recordCounts" yaml:"record_counts"`
	TotalRecords    int            `json:"totalRecords" yaml:"total_records"`
	Errors          []string       `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings        []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Duration        time.Duration  `json:"duration" yaml:"duration"`
	TargetIsolation string         `json:"tenantId" yaml:"tenant_id"`
}

// ResetResult summarizes a reset run
type ResetResult struct {
	Success       bool             `json:"success" yaml:"success"`
	DeletedTables []string         `json:"deletedTables" yaml:"deleted_tables"`
	DeletedCounts map[string]int64 `json:"deletedCounts" yaml:"deleted_counts"`
	TotalDeleted  int64            `json:"totalDeleted" yaml:"total_deleted"`
	Errors        []string         `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings      []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Duration      time.Duration    `json:"duration" yaml:"duration"`
}

// IssueSeverity grades a validation issue
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue is one finding of a dry run. Row is 1-based and zero when
// the issue is not tied to a record.
type ValidationIssue struct {
	Severity IssueSeverity `json:"severity" yaml:"severity"`
	Table    string        `json:"table,omitempty" yaml:"table,omitempty"`
	Row      int           `json:"row,omitempty" yaml:"row,omitempty"`
	Field    string        `json:"field,omitempty" yaml:"field,omitempty"`
	Message  string        `json:"message" yaml:"message"`
}

// ValidationReport is the output of a dry run
type ValidationReport struct {
	Compatible        bool              `json:"compatible" yaml:"compatible"`
	Manifest          *Manifest         `json:"manifest" yaml:"manifest"`
	TableCounts       map[string]int    `json:"tableCounts" yaml:"table_counts"`
	TotalRecords      int               `json:"totalRecords" yaml:"total_records"`
	EstimatedDuration time.Duration     `json:"estimatedDuration" yaml:"estimated_duration"`
	Errors            []ValidationIssue `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings          []ValidationIssue `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// CompatibilityResult is the outcome of checking a manifest against this build
type CompatibilityResult struct {
	Compatible bool     `json:"compatible" yaml:"compatible"`
	Warnings   []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Errors     []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// ArtifactMetadata describes an archived artifact
type ArtifactMetadata struct {
	ID                string          `json:"id" yaml:"id"`
	IsolationID       string          `json:"tenant_id" yaml:"tenant_id"`
	IsolationName     string          `json:"tenant_name" yaml:"tenant_name"`
	FileName          string          `json:"file_name" yaml:"file_name"`
	Format            Format          `json:"format" yaml:"format"`
	CreatedAt         time.Time       `json:"created_at" yaml:"created_at"`
	Size              int64           `json:"size" yaml:"size"`
	StoredSize        int64           `json:"stored_size" yaml:"stored_size"`
	CompressionType   CompressionType `json:"compression_type" yaml:"compression_type"`
	EncryptionEnabled bool            `json:"encryption_enabled" yaml:"encryption_enabled"`
	Checksum          string          `json:"checksum" yaml:"checksum"`
	StorageLocation   string          `json:"storage_location" yaml:"storage_location"`
	IncludedTables    []string        `json:"included_tables" yaml:"included_tables"`
	TotalRecords      int             `json:"total_records" yaml:"total_records"`
}

// Artifact is the stored form of an export: metadata plus the
// compressed and encrypted payload
type Artifact struct {
	Metadata *ArtifactMetadata
	Data     []byte
}

// StorageFilter narrows storage listings
type StorageFilter struct {
	IsolationID string
	Prefix      string
	MaxItems    int
}

type CompressionType string

const (
	CompressionTypeNone CompressionType = "NONE"
	CompressionTypeGzip CompressionType = "GZIP"
	CompressionTypeLZ4  CompressionType = "LZ4"
	CompressionTypeZstd CompressionType = "ZSTD"
)

type StorageProviderType string

const (
	StorageProviderLocal StorageProviderType = "LOCAL"
	StorageProviderS3    StorageProviderType = "S3"
	StorageProviderAzure StorageProviderType = "AZURE"
	StorageProviderGCS   StorageProviderType = "GCS"
)

// StorageConfig defines storage provider configuration. Replicas, when set,
// receive a copy of every artifact stored in the primary provider.
type StorageConfig struct {
	Provider StorageProviderType `mapstructure:"provider" yaml:"provider"`
	Local    *LocalConfig        `mapstructure:"local" yaml:"local,omitempty"`
	S3       *S3Config           `mapstructure:"s3" yaml:"s3,omitempty"`
	Azure    *AzureConfig        `mapstructure:"azure" yaml:"azure,omitempty"`
	GCS      *GCSConfig          `mapstructure:"gcs" yaml:"gcs,omitempty"`
	Replicas []StorageConfig     `mapstructure:"replicas" yaml:"replicas,omitempty"`
}

// LocalConfig for local file system storage
type LocalConfig struct {
	BasePath    string      `mapstructure:"base_path" yaml:"base_path"`
	Permissions os.FileMode `mapstructure:"permissions" yaml:"permissions"`
}

// S3Config for Amazon S3 storage
type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey    string `mapstructure:"account_key" yaml:"account_key"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path"`
	ProjectID       string `mapstructure:"project_id" yaml:"project_id"`
}
