package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Data.RawDir != "data/raw" {
		t.Errorf("expected default raw dir 'data/raw', got %q", cfg.Data.RawDir)
	}
	if cfg.HTTP.MaxRetries != 3 {
		t.Errorf("expected default retries 3, got %d", cfg.HTTP.MaxRetries)
	}
	if cfg.Validation.SampleRows != 1000 {
		t.Errorf("expected default sample rows 1000, got %d", cfg.Validation.SampleRows)
	}
	if cfg.Normalize.EncodingConfidence != 0.7 {
		t.Errorf("expected default encoding confidence 0.7, got %f", cfg.Normalize.EncodingConfidence)
	}
	if cfg.Warehouse.Driver != "sqlite3" {
		t.Errorf("expected default driver sqlite3, got %q", cfg.Warehouse.Driver)
	}
	if got := cfg.ManifestPath(); got != filepath.Join("data/raw", ".manifest.json") {
		t.Errorf("unexpected manifest path %q", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		v := viper.New()
		SetDefaults(v)
		var cfg Config
		require.NoError(t, v.Unmarshal(&cfg))
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "zero retries is valid (single attempt)", mutate: func(c *Config) { c.HTTP.MaxRetries = 0 }},
		{name: "negative retries", mutate: func(c *Config) { c.HTTP.MaxRetries = -1 }, wantErr: "http.max_retries"},
		{name: "zero timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, wantErr: "http.timeout_seconds"},
		{name: "confidence above one", mutate: func(c *Config) { c.Normalize.EncodingConfidence = 1.5 }, wantErr: "encoding_confidence"},
		{name: "zero sample", mutate: func(c *Config) { c.Validation.SampleRows = 0 }, wantErr: "sample_rows"},
		{name: "unknown driver", mutate: func(c *Config) { c.Warehouse.Driver = "oracle" }, wantErr: "not supported"},
		{name: "duckdb in-memory", mutate: func(c *Config) { c.Warehouse.Driver = "duckdb"; c.Warehouse.DSN = "" }},
		{name: "s3 stage without bucket", mutate: func(c *Config) { c.Stage.Kind = StageKindS3 }, wantErr: "stage.bucket"},
		{name: "unknown stage kind", mutate: func(c *Config) { c.Stage.Kind = "ftp" }, wantErr: "stage.kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	defer Reset()

	path := filepath.Join(t.TempDir(), ProjectConfigName)
	content := `
[data]
raw_dir = "/srv/civicload/raw"

[warehouse]
driver = "postgres"
dsn = "postgres://loader:secret@db/warehouse"

[validate]
sample_rows = 250
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/civicload/raw", cfg.Data.RawDir)
	assert.Equal(t, "data/validated", cfg.Data.ValidatedDir)
	assert.Equal(t, "postgres", cfg.Warehouse.Driver)
	assert.Equal(t, 250, cfg.Validation.SampleRows)

	cached, err := Load()
	require.NoError(t, err)
	assert.Same(t, cfg, cached)
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	defer Reset()
	t.Setenv("CIVICLOAD_HTTP_MAX_RETRIES", "5")

	path := filepath.Join(t.TempDir(), ProjectConfigName)
	require.NoError(t, os.WriteFile(path, []byte("[http]\nmax_retries = 1\n"), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.HTTP.MaxRetries)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	defer Reset()

	path := filepath.Join(t.TempDir(), ProjectConfigName)
	require.NoError(t, os.WriteFile(path, []byte("[warehouse]\ndriver = \"oracle\"\n"), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestRender(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("stage.secret_access_key", "hunter2")
	v.Set("warehouse.dsn", "postgres://loader:pw@db/wh")

	for _, format := range []string{"toml", "yaml", "json"} {
		t.Run(format, func(t *testing.T) {
			out, err := Render(v, format)
			require.NoError(t, err)
			text := string(out)
			assert.True(t, strings.Contains(text, "sample_rows"), text)
			assert.NotContains(t, text, "hunter2")
			assert.NotContains(t, text, "loader:pw")
		})
	}

	_, err := Render(v, "ini")
	assert.Error(t, err)
}

func TestRender_LocalDSNIsShown(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	out, err := Render(v, "toml")
	require.NoError(t, err)
	assert.Contains(t, string(out), "civicload.db")
}
