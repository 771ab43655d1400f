package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains workspace and log directory configuration.
type Paths struct {
	WorkspaceDir     string `toml:"workspace_dir"`
	LogDir           string `toml:"log_dir"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// Input describes one tabular input file.
type Input struct {
	Path string `toml:"path"`
	// Format overrides extension-based detection: csv, tsv, psv, jsonl, xlsx, sqlite.
	Format    string `toml:"format"`
	Sheet     string `toml:"sheet"`
	Table     string `toml:"table"`
	Delimiter string `toml:"delimiter"`
}

// Inputs groups the event and registry inputs.
type Inputs struct {
	Events   Input `toml:"events"`
	Registry Input `toml:"registry"`
}

// EventColumns maps logical event fields to input column names.
type EventColumns struct {
	Identifier   string `toml:"identifier"`
	Public       string `toml:"udi_public"`
	Manufacturer string `toml:"manufacturer"`
	Brand        string `toml:"brand"`
	Catalog      string `toml:"catalog_number"`
	Model        string `toml:"model_number"`
}

// RegistryColumns maps logical registry fields to input column names.
type RegistryColumns struct {
	Identifier   string `toml:"identifier"`
	Manufacturer string `toml:"manufacturer"`
	Brand        string `toml:"brand"`
	Catalog      string `toml:"catalog_number"`
	Model        string `toml:"model_number"`
}

// Columns groups the event and registry column mappings.
type Columns struct {
	Events   EventColumns    `toml:"events"`
	Registry RegistryColumns `toml:"registry"`
}

// Matching controls manufacturer similarity and identifier resolution.
type Matching struct {
	SimilarityThreshold    float64 `toml:"similarity_threshold"`
	SecondaryColumnPattern string  `toml:"secondary_column_pattern"`
	SecondaryConfidence    string  `toml:"secondary_confidence"`
}

// Fallback controls synthetic identity assignment.
type Fallback struct {
	LowComplianceThreshold float64 `toml:"low_compliance_threshold"`
}

// Pipeline controls chunking, parallelism, and date coalescing.
type Pipeline struct {
	ChunkSize          int      `toml:"chunk_size"`
	Workers            int      `toml:"workers"`
	EventDateFields    []string `toml:"event_date_fields"`
	RegistryDateFields []string `toml:"registry_date_fields"`
}

// Export controls the optional CSV partition export.
type Export struct {
	Enabled    bool   `toml:"enabled"`
	Dir        string `toml:"dir"`
	S3Bucket   string `toml:"s3_bucket"`
	S3Prefix   string `toml:"s3_prefix"`
	S3Endpoint string `toml:"s3_endpoint"`
	S3Region   string `toml:"s3_region"`
}

// Metrics controls the Prometheus textfile output.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Schedule controls recurring runs started by `devicelink schedule`.
type Schedule struct {
	Cron string `toml:"cron"`
	// FreshOnChange discards stored output when the inputs or settings changed
	// since the last run, instead of failing the tick.
	FreshOnChange bool `toml:"fresh_on_change"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// S3Credentials carries object-storage credentials. They are never read from
// the TOML file, only from the environment.
type S3Credentials struct {
	AccessKey string `envconfig:"ACCESS_KEY"`
	SecretKey string `envconfig:"SECRET_KEY"`
	Endpoint  string `envconfig:"ENDPOINT"`
	Region    string `envconfig:"REGION"`
}

// Config encapsulates all configuration values for devicelink.
//
// Configuration sections by subsystem:
//   - Paths: workspace (store, lock, run logs) and log directories
//   - Inputs: event and registry files and their formats
//   - Columns: logical field to column name mapping
//   - Matching: manufacturer similarity and secondary identifiers
//   - Fallback: low-compliance threshold
//   - Pipeline: chunk size, workers, and date priorities
//   - Export: CSV partitions to a directory or S3 bucket
//   - Metrics: Prometheus textfile path
//   - Schedule: cron expression for recurring runs
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Inputs   Inputs   `toml:"inputs"`
	Columns  Columns  `toml:"columns"`
	Matching Matching `toml:"matching"`
	Fallback Fallback `toml:"fallback"`
	Pipeline Pipeline `toml:"pipeline"`
	Export   Export   `toml:"export"`
	Metrics  Metrics  `toml:"metrics"`
	Schedule Schedule `toml:"schedule"`
	Logging  Logging  `toml:"logging"`

	S3 S3Credentials `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/devicelink/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadEnvironment(&cfg, filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Finalize normalizes and validates a config assembled in code. Load already
// does this for file-based configs.
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("devicelink.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// StorePath returns the SQLite database holding resolved output and run state.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.WorkspaceDir, "devicelink.db")
}

// LockPath returns the file lock guarding the workspace against concurrent runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkspaceDir, "devicelink.lock")
}

// EnsureDirectories creates the workspace and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Export.Enabled && c.Export.Dir != "" {
		if err := os.MkdirAll(c.Export.Dir, 0o755); err != nil {
			return fmt.Errorf("create export directory %q: %w", c.Export.Dir, err)
		}
	}
	return nil
}

// ExportsToS3 reports whether export partitions go to object storage.
func (c *Config) ExportsToS3() bool {
	return c.Export.Enabled && c.Export.S3Bucket != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
