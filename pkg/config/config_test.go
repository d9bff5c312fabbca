package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := NewConfig()
	cfg.Source.BaseURL = "https://api.example.org"
	return cfg
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, APIModeYearSpecific, cfg.Source.APIMode)
	assert.Equal(t, 8, cfg.Retry.MaxAttempts)
	assert.Equal(t, 4*time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, "incremental", cfg.Extraction.Mode)
	assert.Equal(t, "edfi_processed_change_versions", cfg.Watermark.BigQuery.Table)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing base url", mutate: func(c *Config) { c.Source.BaseURL = "" }, wantErr: "base_url is required"},
		{name: "bad api mode", mutate: func(c *Config) { c.Source.APIMode = "Sandbox" }, wantErr: "api_mode"},
		{name: "zero page limit", mutate: func(c *Config) { c.Source.PageLimit = 0 }, wantErr: "page_limit"},
		{name: "bad mode", mutate: func(c *Config) { c.Extraction.Mode = "delta" }, wantErr: "extraction.mode"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Extraction.MaxConcurrency = 0 }, wantErr: "max_concurrency"},
		{name: "zero attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, wantErr: "max_attempts"},
		{name: "bad compression", mutate: func(c *Config) { c.Storage.Compression = "lz4" }, wantErr: "compression"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Backend = "s3" }, wantErr: "bucket"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "ftp" }, wantErr: "storage.backend"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Watermark.Backend = "postgres" }, wantErr: "dsn"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Signal.Kind = "kafka" }, wantErr: "brokers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
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

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edsync.yaml")
	content := `
source:
  base_url: https://api.example.org
  client_id: ${EDSYNC_TEST_CLIENT}
  page_limit: 100
extraction:
  mode: full
retry:
  initial_delay: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("EDSYNC_TEST_CLIENT", "district-client")
	t.Setenv("EDSYNC_EXTRACTION_MAX_CONCURRENCY", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.org", cfg.Source.BaseURL)
	assert.Equal(t, "district-client", cfg.Source.ClientID)
	assert.Equal(t, 100, cfg.Source.PageLimit)
	assert.Equal(t, "full", cfg.Extraction.Mode)
	assert.Equal(t, 12, cfg.Extraction.MaxConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	// untouched defaults survive the merge
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, APIModeYearSpecific, cfg.Source.APIMode)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("EDSYNC_SOURCE_BASE_URL", "https://env.example.org")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.org", cfg.Source.BaseURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := validConfig()
	cfg.Storage.Backend = "minio"
	cfg.Storage.Bucket = "raw"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "minio", loaded.Storage.Backend)
	assert.Equal(t, "raw", loaded.Storage.Bucket)
}

func TestFeatureSwitches(t *testing.T) {
	cfg := NewConfig()
	assert.False(t, cfg.Storage.IsCompressionEnabled())
	assert.False(t, cfg.Source.IsRateLimited())

	cfg.Storage.Compression = "zstd"
	cfg.Source.RateLimitPerSec = 20
	assert.True(t, cfg.Storage.IsCompressionEnabled())
	assert.True(t, cfg.Source.IsRateLimited())

	cfg.Storage.Compression = ""
	assert.False(t, cfg.Storage.IsCompressionEnabled())
}
