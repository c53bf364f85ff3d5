package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tenant-backup/internal/backup"
	"tenant-backup/internal/database"
	"tenant-backup/internal/logging"
)

const (
	// EnvPrefix prefixes every environment variable read by the loader
	EnvPrefix = "TENANT_BACKUP"
	// DefaultFileName is searched in the working directory and the user config dir
	DefaultFileName = ".tenant-backup"
)

// Config is the complete configuration of the tool
type Config struct {
	Database    database.DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Storage     backup.StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Compression backup.CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Encryption  backup.EncryptionConfig  `mapstructure:"encryption" yaml:"encryption"`
	Retention   backup.RetentionConfig   `mapstructure:"retention" yaml:"retention"`
	Engine      EngineConfig             `mapstructure:"engine" yaml:"engine"`
	Logging     LoggingConfig            `mapstructure:"logging" yaml:"logging"`

	source string
}

// EngineConfig tunes the export, import, reset and validation engines
type EngineConfig struct {
	ChunkSize        int           `mapstructure:"chunk_size" yaml:"chunk_size" validate:"min=1,max=100000"`
	TxTimeout        time.Duration `mapstructure:"tx_timeout" yaml:"tx_timeout" validate:"min=0"`
	SystemVersion    string        `mapstructure:"system_version" yaml:"system_version"`
	RecordsPerSecond int           `mapstructure:"records_per_second" yaml:"records_per_second" validate:"min=1"`
	DefaultFormat    string        `mapstructure:"default_format" yaml:"default_format" validate:"oneof=xlsx csv"`
	// Archive stores every export in the configured storage
	Archive bool `mapstructure:"archive" yaml:"archive"`
}

// LoggingConfig selects log verbosity and destination
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=quiet normal verbose debug"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	cfg := &Config{
		Database: database.DatabaseConfig{Driver: database.DriverMySQL, Host: "localhost", Username: "app", Database: "rentals"},
		Storage: backup.StorageConfig{
			Provider: backup.StorageProviderLocal,
			Local:    &backup.LocalConfig{BasePath: "./backups", Permissions: 0750},
		},
		Compression: backup.CompressionConfig{Enabled: true, Algorithm: backup.CompressionTypeZstd},
		Retention:   backup.RetentionConfig{MaxArtifacts: 10, MaxAge: 90 * 24 * time.Hour},
		Engine: EngineConfig{
			ChunkSize:        backup.DefaultChunkSize,
			TxTimeout:        backup.DefaultTxTimeout,
			RecordsPerSecond: backup.DefaultRecordsPerSecond,
			DefaultFormat:    string(backup.FormatXLSX),
			Archive:          true,
		},
		Logging: LoggingConfig{Level: string(logging.LogLevelNormal), Format: "text"},
	}
	cfg.SetDefaults()
	return cfg
}

// flagKeys maps CLI flag names to configuration keys
var flagKeys = map[string]string{
	"driver":       "database.driver",
	"host":         "database.host",
	"port":         "database.port",
	"username":     "database.username",
	"password":     "database.password",
	"database":     "database.database",
	"db-path":      "database.path",
	"storage":      "storage.provider",
	"storage-path": "storage.local.base_path",
	"chunk-size":   "engine.chunk_size",
	"tx-timeout":   "engine.tx_timeout",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"log-file":     "logging.file",
}

// envKeys are bound explicitly so that nested sections without defaults can
// still come from the environment
var envKeys = []string{
	"database.driver", "database.host", "database.port", "database.username",
	"database.password", "database.database", "database.path", "database.ssl_mode",
	"storage.provider", "storage.local.base_path",
	"storage.s3.bucket", "storage.s3.region", "storage.s3.access_key", "storage.s3.secret_key", "storage.s3.endpoint",
	"storage.azure.account_name", "storage.azure.account_key", "storage.azure.container_name",
	"storage.gcs.bucket", "storage.gcs.credentials_path", "storage.gcs.project_id",
	"compression.enabled", "compression.algorithm", "compression.level",
	"encryption.enabled", "encryption.key_source", "encryption.key_path", "encryption.key_env_var", "encryption.salt",
	"retention.max_artifacts", "retention.max_age",
	"engine.chunk_size", "engine.tx_timeout", "engine.system_version", "engine.archive",
	"logging.level", "logging.format", "logging.file",
}

// Load reads the configuration from path (or the default search locations
// when empty), the environment and flags, in increasing priority. Defaults
// are applied and the result is validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setupViper(v, path)
	setDefaults(v)

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.source = v.ConfigFileUsed()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/tenant-backup")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.timeout", d.Database.Timeout)

	v.SetDefault("storage.provider", string(d.Storage.Provider))

	v.SetDefault("compression.enabled", d.Compression.Enabled)
	v.SetDefault("compression.algorithm", string(d.Compression.Algorithm))
	v.SetDefault("compression.threshold", d.Compression.Threshold)

	v.SetDefault("retention.max_artifacts", d.Retention.MaxArtifacts)
	v.SetDefault("retention.max_age", d.Retention.MaxAge)

	v.SetDefault("engine.chunk_size", d.Engine.ChunkSize)
	v.SetDefault("engine.tx_timeout", d.Engine.TxTimeout)
	v.SetDefault("engine.records_per_second", d.Engine.RecordsPerSecond)
	v.SetDefault("engine.default_format", d.Engine.DefaultFormat)
	v.SetDefault("engine.archive", d.Engine.Archive)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// SetDefaults fills every unset value
func (c *Config) SetDefaults() {
	c.Database.SetDefaults()
	c.Storage.SetDefaults()
	c.Compression.SetDefaults()
	c.Encryption.SetDefaults()

	if c.Engine.ChunkSize == 0 {
		c.Engine.ChunkSize = backup.DefaultChunkSize
	}
	if c.Engine.TxTimeout == 0 {
		c.Engine.TxTimeout = backup.DefaultTxTimeout
	}
	if c.Engine.RecordsPerSecond == 0 {
		c.Engine.RecordsPerSecond = backup.DefaultRecordsPerSecond
	}
	c.Engine.DefaultFormat = strings.ToLower(c.Engine.DefaultFormat)
	if c.Engine.DefaultFormat == "" {
		c.Engine.DefaultFormat = string(backup.FormatXLSX)
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = string(logging.LogLevelNormal)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their yaml names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct constraints, then the cross-field rules of the
// archive sections. Connection settings are checked when the store is opened.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	archive := c.Archive()
	if err := archive.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	// drop the root struct name
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed the %q rule", field, fe.Tag())
	}
}

// Source returns the file the configuration was read from, if any
func (c *Config) Source() string {
	return c.source
}

// Archive returns the artifact archive settings
func (c *Config) Archive() backup.ArchiveConfig {
	return backup.ArchiveConfig{
		Storage:     c.Storage,
		Retention:   c.Retention,
		Compression: c.Compression,
		Encryption:  c.Encryption,
	}
}

// Logger returns the logger settings
func (c *Config) Logger() logging.Config {
	return logging.Config{
		Level:   logging.LogLevel(c.Logging.Level),
		Format:  c.Logging.Format,
		LogFile: c.Logging.File,
	}
}

// EnvironmentVariables lists the environment variables the loader reads
func EnvironmentVariables() []string {
	names := make([]string, 0, len(envKeys))
	for _, key := range envKeys {
		names = append(names, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
	return names
}
