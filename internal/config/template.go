package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const sampleHeader = `# tenant-backup configuration
#
# Values are read from this file, then from TENANT_BACKUP_* environment
# variables, then from command-line flags, each overriding the previous.
# Keep secrets such as database.password and storage credentials in the
# environment and restrict this file: chmod 600 .tenant-backup.yaml
#
# database.driver:     mysql, postgres, sqlite3 or memory
# storage.provider:    LOCAL, S3, AZURE or GCS (replicas take the same shape)
# compression:         GZIP, LZ4 or ZSTD
# encryption.key_source: env (hex key), file (32 raw bytes) or passphrase
# retention:           per tenant; the newest artifact is always kept
`

// Sample renders the default configuration as a commented YAML document
func Sample() ([]byte, error) {
	return Render(Default(), true)
}

// Render marshals cfg as YAML. With header the usage comment is prepended.
func Render(cfg *Config, header bool) ([]byte, error) {
	var buf bytes.Buffer
	if header {
		buf.WriteString(sampleHeader)
		buf.WriteString("\n")
	}
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to marshal configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal configuration: %w", err)
	}
	return buf.Bytes(), nil
}

// Redacted returns a copy of cfg with credentials replaced, for display
func Redacted(cfg *Config) *Config {
	out := *cfg
	const hidden = "********"
	if out.Database.Password != "" {
		out.Database.Password = hidden
	}
	if cfg.Storage.S3 != nil {
		s3 := *cfg.Storage.S3
		if s3.SecretKey != "" {
			s3.SecretKey = hidden
		}
		out.Storage.S3 = &s3
	}
	if cfg.Storage.Azure != nil {
		azure := *cfg.Storage.Azure
		if azure.AccountKey != "" {
			azure.AccountKey = hidden
		}
		out.Storage.Azure = &azure
	}
	return &out
}

// WriteSample writes the sample configuration to path. An existing file is
// kept as <path>.bak when force is set and refused otherwise.
func WriteSample(path string, force bool) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			return fmt.Errorf("configuration file %s already exists, use --force to overwrite", path)
		}
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("failed to back up existing configuration: %w", err)
		}
	}

	data, err := Sample()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}

// Help describes the configuration sources and their environment variables
func Help() string {
	var b strings.Builder
	b.WriteString(`Configuration sources, highest priority first:
  1. command-line flags
  2. environment variables
  3. configuration file (` + DefaultFileName + `.yaml in ., $HOME/.config/tenant-backup or $HOME)
  4. built-in defaults

Environment variables:
`)
	for _, name := range EnvironmentVariables() {
		b.WriteString("  " + name + "\n")
	}
	return b.String()
}
