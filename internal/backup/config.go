package backup

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"
)

// ArchiveConfig groups the settings of the artifact archive
type ArchiveConfig struct {
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Retention   RetentionConfig   `mapstructure:"retention" yaml:"retention"`
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Encryption  EncryptionConfig  `mapstructure:"encryption" yaml:"encryption"`
}

// RetentionConfig bounds the archived artifacts of each isolation domain.
// Zero values keep everything; the newest artifact is always kept.
type RetentionConfig struct {
	MaxArtifacts int           `mapstructure:"max_artifacts" yaml:"max_artifacts"`
	MaxAge       time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// CompressionConfig selects how artifacts are compressed at rest.
// Payloads smaller than Threshold bytes are stored as is.
type CompressionConfig struct {
	Enabled   bool            `mapstructure:"enabled" yaml:"enabled"`
	Algorithm CompressionType `mapstructure:"algorithm" yaml:"algorithm"`
	Level     int             `mapstructure:"level" yaml:"level"`
	Threshold int64           `mapstructure:"threshold" yaml:"threshold"`
}

// Key sources of EncryptionConfig
const (
	KeySourceEnv        = "env"
	KeySourceFile       = "file"
	KeySourcePassphrase = "passphrase"
)

// EncryptionConfig selects where the AES-256 key comes from. The env source
// holds a hex key, the file source 32 raw bytes, and the passphrase source a
// passphrase stretched with Salt.
type EncryptionConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	KeySource string `mapstructure:"key_source" yaml:"key_source"`
	KeyPath   string `mapstructure:"key_path" yaml:"key_path"`
	KeyEnvVar string `mapstructure:"key_env_var" yaml:"key_env_var"`
	Salt      string `mapstructure:"salt" yaml:"salt,omitempty"`

	// KeyRetriever overrides key lookup, mainly for tests
	KeyRetriever func() ([]byte, error) `mapstructure:"-" yaml:"-"`
}

// levelRange is the accepted and default level of one algorithm
type levelRange struct {
	min, max, def int
}

var compressionLevels = map[CompressionType]levelRange{
	CompressionTypeGzip: {1, 9, 6},
	CompressionTypeLZ4:  {1, 12, 1},
	CompressionTypeZstd: {1, 22, 3},
}

func isValidCompressionType(ct CompressionType) bool {
	_, ok := compressionLevels[ct]
	return ok || ct == CompressionTypeNone
}

// check adds field unless ok holds
func (e *ValidationErrors) check(ok bool, field, message string, value interface{}) {
	if !ok {
		e.Add(field, message, value)
	}
}

// err returns e as an error, or nil when it is empty
func (e ValidationErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Validate checks every section, prefixing fields with the section name
func (ac *ArchiveConfig) Validate() error {
	var errs ValidationErrors
	errs.Merge("storage", ac.Storage.Validate())
	errs.Merge("retention", ac.Retention.Validate())
	errs.Merge("compression", ac.Compression.Validate())
	errs.Merge("encryption", ac.Encryption.Validate())
	return errs.err()
}

func (ac *ArchiveConfig) SetDefaults() {
	ac.Storage.SetDefaults()
	ac.Compression.SetDefaults()
	ac.Encryption.SetDefaults()
}

func (rc *RetentionConfig) Validate() error {
	var errs ValidationErrors
	errs.check(rc.MaxArtifacts >= 0, "max_artifacts", "max artifacts cannot be negative", rc.MaxArtifacts)
	errs.check(rc.MaxAge >= 0, "max_age", "max age cannot be negative", rc.MaxAge)
	return errs.err()
}

// Validate is a no-op while compression is disabled
func (cc *CompressionConfig) Validate() error {
	if !cc.Enabled {
		return nil
	}
	var errs ValidationErrors
	errs.check(isValidCompressionType(cc.Algorithm), "algorithm", "invalid compression algorithm", cc.Algorithm)
	if r, ok := compressionLevels[cc.Algorithm]; ok {
		errs.check(cc.Level >= r.min && cc.Level <= r.max, "level",
			fmt.Sprintf("%s compression level must be between %d and %d",
				strings.ToLower(string(cc.Algorithm)), r.min, r.max), cc.Level)
	}
	errs.check(cc.Threshold >= 0, "threshold", "compression threshold cannot be negative", cc.Threshold)
	return errs.err()
}

// SetDefaults normalizes the algorithm name and picks zstd at level 3
func (cc *CompressionConfig) SetDefaults() {
	cc.Algorithm = CompressionType(strings.ToUpper(string(cc.Algorithm)))
	if cc.Enabled {
		if cc.Algorithm == "" {
			cc.Algorithm = CompressionTypeZstd
		}
		if r, ok := compressionLevels[cc.Algorithm]; ok && cc.Level == 0 {
			cc.Level = r.def
		}
	}
	if cc.Threshold == 0 {
		cc.Threshold = 1024
	}
}

// Validate is a no-op while encryption is disabled or a KeyRetriever is set
func (ec *EncryptionConfig) Validate() error {
	if !ec.Enabled || ec.KeyRetriever != nil {
		return nil
	}
	var errs ValidationErrors
	switch ec.KeySource {
	case "":
		errs.Add("key_source", "key source is required when encryption is enabled", ec.KeySource)
	case KeySourceEnv, KeySourcePassphrase:
		errs.check(ec.KeyEnvVar != "", "key_env_var",
			"key environment variable name is required for "+ec.KeySource+" key source", ec.KeyEnvVar)
	case KeySourceFile:
		errs.check(ec.KeyPath != "", "key_path", "key file path is required for file key source", ec.KeyPath)
	default:
		errs.Add("key_source", "invalid key source, must be 'env', 'file' or 'passphrase'", ec.KeySource)
	}
	if ec.Salt != "" {
		_, err := hex.DecodeString(ec.Salt)
		errs.check(err == nil, "salt", "salt must be hex encoded", ec.Salt)
	}
	return errs.err()
}

func (ec *EncryptionConfig) SetDefaults() {
	if !ec.Enabled {
		return
	}
	if ec.KeySource == "" {
		ec.KeySource = KeySourceEnv
	}
	if ec.KeyEnvVar == "" && ec.KeySource != KeySourceFile {
		ec.KeyEnvVar = "TENANT_BACKUP_ENCRYPTION_KEY"
	}
}

// GetEncryptionKey returns the 32 byte key, or nil when encryption is off
func (ec *EncryptionConfig) GetEncryptionKey() ([]byte, error) {
	if !ec.Enabled {
		return nil, nil
	}
	if ec.KeyRetriever != nil {
		return ec.KeyRetriever()
	}

	var key []byte
	switch ec.KeySource {
	case KeySourceEnv:
		encoded, err := lookupEnv(ec.KeyEnvVar, "encryption key")
		if err != nil {
			return nil, err
		}
		if key, err = hex.DecodeString(encoded); err != nil {
			return nil, fmt.Errorf("failed to decode hex key from environment variable: %w", err)
		}
	case KeySourceFile:
		var err error
		if key, err = os.ReadFile(ec.KeyPath); err != nil {
			return nil, fmt.Errorf("failed to read encryption key from file %s: %w", ec.KeyPath, err)
		}
	case KeySourcePassphrase:
		passphrase, err := lookupEnv(ec.KeyEnvVar, "passphrase")
		if err != nil {
			return nil, err
		}
		salt, err := hex.DecodeString(ec.Salt)
		if err != nil {
			return nil, fmt.Errorf("failed to decode salt: %w", err)
		}
		return DeriveKey(passphrase, salt), nil
	default:
		return nil, fmt.Errorf("invalid key source: %s", ec.KeySource)
	}

	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key from %s source must be %d bytes for AES-256, got %d bytes",
			ec.KeySource, keySize, len(key))
	}
	return key, nil
}

func lookupEnv(name, what string) (string, error) {
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("%s not found in environment variable %s", what, name)
	}
	return value, nil
}

// storageBackend ties a provider type to its config section
type storageBackend struct {
	key, label string
	section    func(*StorageConfig) interface{ Validate() error }
	ensure     func(*StorageConfig)
}

var storageBackends = map[StorageProviderType]storageBackend{
	StorageProviderLocal: {
		key: "local", label: "local",
		section: func(sc *StorageConfig) interface{ Validate() error } {
			if sc.Local == nil {
				return nil
			}
			return sc.Local
		},
		ensure: func(sc *StorageConfig) {
			if sc.Local == nil {
				sc.Local = &LocalConfig{}
			}
			sc.Local.SetDefaults()
		},
	},
	StorageProviderS3: {
		key: "s3", label: "S3",
		section: func(sc *StorageConfig) interface{ Validate() error } {
			if sc.S3 == nil {
				return nil
			}
			return sc.S3
		},
		ensure: func(sc *StorageConfig) {
			if sc.S3 == nil {
				sc.S3 = &S3Config{}
			}
			sc.S3.SetDefaults()
		},
	},
	StorageProviderAzure: {
		key: "azure", label: "Azure",
		section: func(sc *StorageConfig) interface{ Validate() error } {
			if sc.Azure == nil {
				return nil
			}
			return sc.Azure
		},
		ensure: func(sc *StorageConfig) {
			if sc.Azure == nil {
				sc.Azure = &AzureConfig{}
			}
		},
	},
	StorageProviderGCS: {
		key: "gcs", label: "GCS",
		section: func(sc *StorageConfig) interface{ Validate() error } {
			if sc.GCS == nil {
				return nil
			}
			return sc.GCS
		},
		ensure: func(sc *StorageConfig) {
			if sc.GCS == nil {
				sc.GCS = &GCSConfig{}
			}
			sc.GCS.SetDefaults()
		},
	},
}

func isValidStorageProviderType(provider StorageProviderType) bool {
	_, ok := storageBackends[provider]
	return ok
}

// Validate checks the section of the selected provider and every replica.
// Replicas cannot have replicas of their own.
func (sc *StorageConfig) Validate() error {
	var errs ValidationErrors
	backend, ok := storageBackends[sc.Provider]
	if !ok {
		errs.Add("provider", "invalid storage provider type", sc.Provider)
		return errs
	}

	if section := backend.section(sc); section != nil {
		errs.Merge(backend.key, section.Validate())
	} else {
		errs.Add(backend.key, backend.label+" storage configuration is required", nil)
	}

	for i := range sc.Replicas {
		field := fmt.Sprintf("replicas[%d]", i)
		if len(sc.Replicas[i].Replicas) > 0 {
			errs.Add(field+".replicas", "replicas cannot be nested", nil)
			continue
		}
		errs.Merge(field, sc.Replicas[i].Validate())
	}
	return errs.err()
}

// SetDefaults falls back to local storage and fills the selected section
func (sc *StorageConfig) SetDefaults() {
	sc.Provider = StorageProviderType(strings.ToUpper(string(sc.Provider)))
	if sc.Provider == "" {
		sc.Provider = StorageProviderLocal
	}
	if backend, ok := storageBackends[sc.Provider]; ok {
		backend.ensure(sc)
	}
	for i := range sc.Replicas {
		sc.Replicas[i].SetDefaults()
	}
}

func (lc *LocalConfig) Validate() error {
	var errs ValidationErrors
	errs.check(lc.BasePath != "", "base_path", "base path is required for local storage", lc.BasePath)
	return errs.err()
}

func (lc *LocalConfig) SetDefaults() {
	if lc.BasePath == "" {
		lc.BasePath = "./backups"
	}
	if lc.Permissions == 0 {
		lc.Permissions = 0755
	}
}

// Validate requires bucket and region. Credentials are optional and fall
// back to the default AWS credential chain.
func (s3c *S3Config) Validate() error {
	var errs ValidationErrors
	errs.check(s3c.Bucket != "", "bucket", "S3 bucket name is required", s3c.Bucket)
	errs.check(s3c.Region != "", "region", "S3 region is required", s3c.Region)
	errs.check((s3c.AccessKey == "") == (s3c.SecretKey == ""), "access_key",
		"S3 access key and secret key must be set together", nil)
	return errs.err()
}

func (s3c *S3Config) SetDefaults() {
	if s3c.Region == "" {
		s3c.Region = "us-east-1"
	}
}

func (ac *AzureConfig) Validate() error {
	var errs ValidationErrors
	errs.check(ac.AccountName != "", "account_name", "Azure account name is required", ac.AccountName)
	errs.check(ac.AccountKey != "", "account_key", "Azure account key is required", nil)
	errs.check(ac.ContainerName != "", "container_name", "Azure container name is required", ac.ContainerName)
	return errs.err()
}

func (gc *GCSConfig) Validate() error {
	var errs ValidationErrors
	errs.check(gc.Bucket != "", "bucket", "GCS bucket name is required", gc.Bucket)
	return errs.err()
}

// SetDefaults picks up GOOGLE_APPLICATION_CREDENTIALS
func (gc *GCSConfig) SetDefaults() {
	if gc.CredentialsPath == "" {
		gc.CredentialsPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
}
