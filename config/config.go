package config

import (
	"path/filepath"
	"time"
)

// Config represents the civicload configuration
type Config struct {
	Data       DataConfig       `mapstructure:"data"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Normalize  NormalizeConfig  `mapstructure:"normalize"`
	Validation ValidationConfig `mapstructure:"validate"`
	Warehouse  WarehouseConfig  `mapstructure:"warehouse"`
	Stage      StageConfig      `mapstructure:"stage"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// DataConfig locates the on-disk working directories
type DataConfig struct {
	RawDir       string `mapstructure:"raw_dir"`       // acquisition sink root
	ValidatedDir string `mapstructure:"validated_dir"` // normalized CSVs, validated in place
	Manifest     string `mapstructure:"manifest"`      // empty = {raw_dir}/.manifest.json
}

// HTTPConfig configures the acquisition HTTP client
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // per-download bound unless the dataset overrides it
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryWaitMinMS int    `mapstructure:"retry_wait_min_ms"`
	RetryWaitMaxMS int    `mapstructure:"retry_wait_max_ms"`
	UserAgent      string `mapstructure:"user_agent"`
	BlockPrivateIP bool   `mapstructure:"block_private_ip"`
}

// CatalogConfig points at the open-data catalog API
type CatalogConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// NormalizeConfig configures format and encoding normalization
type NormalizeConfig struct {
	EncodingConfidence float64 `mapstructure:"encoding_confidence"` // 0..1, detection below this fails
}

// ValidationConfig configures contract validation
type ValidationConfig struct {
	SampleRows int `mapstructure:"sample_rows"`
}

// WarehouseConfig selects the warehouse driver and connection
type WarehouseConfig struct {
	Driver                  string `mapstructure:"driver"` // sqlite3, duckdb, postgres
	DSN                     string `mapstructure:"dsn"`
	StatementTimeoutSeconds int    `mapstructure:"statement_timeout_seconds"`
}

// StageConfig selects the staging area used by the load protocol
type StageConfig struct {
	Kind            string `mapstructure:"kind"` // local or s3
	Dir             string `mapstructure:"dir"`
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// MetricsConfig configures run metrics export
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"` // empty = metrics not written
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// Stage kinds
const (
	StageKindLocal = "local"
	StageKindS3    = "s3"
)

// ManifestPath returns the manifest location, defaulting into the raw directory.
func (c *Config) ManifestPath() string {
	if c.Data.Manifest != "" {
		return c.Data.Manifest
	}
	return filepath.Join(c.Data.RawDir, ".manifest.json")
}

// HTTPTimeout returns the default per-download timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// StatementTimeout returns the bound applied to each warehouse load.
func (c *Config) StatementTimeout() time.Duration {
	return time.Duration(c.Warehouse.StatementTimeoutSeconds) * time.Second
}
