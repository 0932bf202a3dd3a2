package config

import "github.com/teranos/civicload/errors"

// Supported warehouse drivers
var supportedDrivers = map[string]bool{
	"sqlite3":  true,
	"duckdb":   true,
	"postgres": true,
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Data.RawDir == "" {
		return errors.New("data.raw_dir cannot be empty")
	}
	if c.Data.ValidatedDir == "" {
		return errors.New("data.validated_dir cannot be empty")
	}

	if c.HTTP.TimeoutSeconds <= 0 {
		return errors.Newf("http.timeout_seconds must be > 0, got %d", c.HTTP.TimeoutSeconds)
	}
	// Zero retries is valid (single attempt), negative is not
	if c.HTTP.MaxRetries < 0 {
		return errors.Newf("http.max_retries must be >= 0, got %d", c.HTTP.MaxRetries)
	}
	if c.HTTP.RetryWaitMinMS < 0 || c.HTTP.RetryWaitMaxMS < c.HTTP.RetryWaitMinMS {
		return errors.Newf("http retry wait bounds invalid: min=%d max=%d", c.HTTP.RetryWaitMinMS, c.HTTP.RetryWaitMaxMS)
	}

	if c.Normalize.EncodingConfidence <= 0 || c.Normalize.EncodingConfidence > 1 {
		return errors.Newf("normalize.encoding_confidence must be in (0, 1], got %f", c.Normalize.EncodingConfidence)
	}

	if c.Validation.SampleRows <= 0 {
		return errors.Newf("validate.sample_rows must be > 0, got %d", c.Validation.SampleRows)
	}

	if !supportedDrivers[c.Warehouse.Driver] {
		return errors.WithHint(
			errors.Newf("warehouse.driver %q is not supported", c.Warehouse.Driver),
			"use one of: sqlite3, duckdb, postgres",
		)
	}
	if c.Warehouse.DSN == "" && c.Warehouse.Driver != "duckdb" {
		return errors.New("warehouse.dsn cannot be empty")
	}
	if c.Warehouse.StatementTimeoutSeconds < 0 {
		return errors.Newf("warehouse.statement_timeout_seconds must be >= 0, got %d", c.Warehouse.StatementTimeoutSeconds)
	}

	switch c.Stage.Kind {
	case StageKindLocal:
		if c.Stage.Dir == "" {
			return errors.New("stage.dir cannot be empty for a local stage")
		}
	case StageKindS3:
		if c.Stage.Bucket == "" || c.Stage.Endpoint == "" {
			return errors.New("stage.bucket and stage.endpoint are required for an s3 stage")
		}
	default:
		return errors.Newf("stage.kind must be %q or %q, got %q", StageKindLocal, StageKindS3, c.Stage.Kind)
	}

	return nil
}
