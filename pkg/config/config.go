// Package config provides the configuration system for edsync.
// A single Config structure is organized into logical sections:
//   - Source: API location, credentials, paging and rate limits
//   - Extraction: mode, worker pool size, endpoint catalog
//   - Retry: backoff policy for source requests
//   - Storage: object store backend and partition layout
//   - Watermark: change-version bookkeeping backend
//   - Signal: downstream completion notification
//   - Logging, Metrics, Tracing: observability
//
// Example usage:
//
//	cfg, err := config.Load("edsync.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.Extraction.MaxConcurrency = 8
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ajitpratap0/edsync/pkg/logger"
)

// API modes of the source instance
const (
	// APIModeYearSpecific places the school year in every URL path
	APIModeYearSpecific = "YearSpecific"
	// APIModeSharedInstance serves every year from one path space
	APIModeSharedInstance = "SharedInstance"
)

// Config is the root configuration of an edsync deployment.
type Config struct {
	// Source describes the change-feed API
	Source SourceConfig `yaml:"source" json:"source" mapstructure:"source"`

	// Extraction controls planning and fan-out
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction" mapstructure:"extraction"`

	// Retry policy for source requests
	Retry RetryConfig `yaml:"retry" json:"retry" mapstructure:"retry"`

	// Storage selects the object store receiving partitions
	Storage StorageConfig `yaml:"storage" json:"storage" mapstructure:"storage"`

	// Watermark selects where change versions are recorded
	Watermark WatermarkConfig `yaml:"watermark" json:"watermark" mapstructure:"watermark"`

	// Signal selects how downstream consumers are notified
	Signal SignalConfig `yaml:"signal" json:"signal" mapstructure:"signal"`

	Logging logger.Config `yaml:"logging" json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
}

// SourceConfig contains the change-feed API settings.
type SourceConfig struct {
	// BaseURL is the API root, e.g. https://api.example.org
	BaseURL string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	// ClientID for the client-credentials grant
	ClientID string `yaml:"client_id" json:"client_id" mapstructure:"client_id"`
	// ClientSecret for the client-credentials grant (use env vars in production)
	ClientSecret string `yaml:"client_secret" json:"-" mapstructure:"client_secret"`
	// APIMode is YearSpecific or SharedInstance
	APIMode string `yaml:"api_mode" json:"api_mode" mapstructure:"api_mode"`
	// PageLimit is the number of records requested per page
	PageLimit int `yaml:"page_limit" json:"page_limit" mapstructure:"page_limit"`
	// RequestTimeout bounds a single HTTP exchange
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" mapstructure:"request_timeout"`
	// RateLimitPerSec limits requests per second (0 = unlimited)
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	// RateLimitBurst is the token bucket size
	RateLimitBurst int `yaml:"rate_limit_burst" json:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// ExtractionConfig contains planning and concurrency settings.
type ExtractionConfig struct {
	// Mode is full or incremental
	Mode string `yaml:"mode" json:"mode" mapstructure:"mode"`
	// MaxConcurrency bounds the number of units in flight
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" mapstructure:"max_concurrency"`
	// IncludeDeletesOnFull also plans delete feeds in full mode
	IncludeDeletesOnFull bool `yaml:"include_deletes_on_full" json:"include_deletes_on_full" mapstructure:"include_deletes_on_full"`
	// CatalogPath points at an endpoint catalog; empty uses the built-in one
	CatalogPath string `yaml:"catalog_path" json:"catalog_path" mapstructure:"catalog_path"`
}

// RetryConfig contains the backoff policy.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts" mapstructure:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay" json:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay" json:"max_delay" mapstructure:"max_delay"`
	Multiplier      float64       `yaml:"multiplier" json:"multiplier" mapstructure:"multiplier"`
	RandomizeFactor float64       `yaml:"randomize_factor" json:"randomize_factor" mapstructure:"randomize_factor"`
}

// StorageConfig contains object store settings.
type StorageConfig struct {
	// Backend is one of gcs, s3, minio, local, memory
	Backend string `yaml:"backend" json:"backend" mapstructure:"backend"`
	// Bucket receives the partitions (unused by local)
	Bucket string `yaml:"bucket" json:"bucket" mapstructure:"bucket"`
	// Root is the key prefix under which partitions are laid out
	Root string `yaml:"root" json:"root" mapstructure:"root"`
	// Compression is none, gzip or zstd
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`

	GCS   GCSConfig   `yaml:"gcs" json:"gcs" mapstructure:"gcs"`
	S3    S3Config    `yaml:"s3" json:"s3" mapstructure:"s3"`
	MinIO MinIOConfig `yaml:"minio" json:"minio" mapstructure:"minio"`
	Local LocalConfig `yaml:"local" json:"local" mapstructure:"local"`
}

// GCSConfig contains Google Cloud Storage settings.
type GCSConfig struct {
	ProjectID       string `yaml:"project_id" json:"project_id" mapstructure:"project_id"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file" mapstructure:"credentials_file"`
}

// S3Config contains AWS S3 settings.
type S3Config struct {
	Region          string `yaml:"region" json:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"-" mapstructure:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style" json:"use_path_style" mapstructure:"use_path_style"`
}

// MinIOConfig contains settings for S3-compatible MinIO servers.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" json:"-" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl" mapstructure:"use_ssl"`
	Region    string `yaml:"region" json:"region" mapstructure:"region"`
}

// LocalConfig contains filesystem store settings.
type LocalConfig struct {
	Directory string `yaml:"directory" json:"directory" mapstructure:"directory"`
}

// WatermarkConfig contains change-version bookkeeping settings.
type WatermarkConfig struct {
	// Backend is one of bigquery, postgres, file, memory
	Backend  string         `yaml:"backend" json:"backend" mapstructure:"backend"`
	BigQuery BigQueryConfig `yaml:"bigquery" json:"bigquery" mapstructure:"bigquery"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres" mapstructure:"postgres"`
	File     FileConfig     `yaml:"file" json:"file" mapstructure:"file"`
}

// BigQueryConfig contains BigQuery watermark table settings.
type BigQueryConfig struct {
	ProjectID       string `yaml:"project_id" json:"project_id" mapstructure:"project_id"`
	Dataset         string `yaml:"dataset" json:"dataset" mapstructure:"dataset"`
	Table           string `yaml:"table" json:"table" mapstructure:"table"`
	Location        string `yaml:"location" json:"location" mapstructure:"location"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file" mapstructure:"credentials_file"`
}

// PostgresConfig contains Postgres watermark table settings.
type PostgresConfig struct {
	DSN   string `yaml:"dsn" json:"-" mapstructure:"dsn"`
	Table string `yaml:"table" json:"table" mapstructure:"table"`
}

// FileConfig contains settings for the JSON-lines watermark log.
type FileConfig struct {
	Path string `yaml:"path" json:"path" mapstructure:"path"`
}

// SignalConfig contains completion signal settings.
type SignalConfig struct {
	// Kind is one of log, marker, kafka
	Kind string `yaml:"kind" json:"kind" mapstructure:"kind"`
	// MarkerName is the object written under the run prefix by the marker signal
	MarkerName string      `yaml:"marker_name" json:"marker_name" mapstructure:"marker_name"`
	Kafka      KafkaConfig `yaml:"kafka" json:"kafka" mapstructure:"kafka"`
}

// KafkaConfig contains completion topic settings.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" json:"brokers" mapstructure:"brokers"`
	Topic    string   `yaml:"topic" json:"topic" mapstructure:"topic"`
	ClientID string   `yaml:"client_id" json:"client_id" mapstructure:"client_id"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	// Addr serves /metrics when non-empty, e.g. :9090
	Addr string `yaml:"addr" json:"addr" mapstructure:"addr"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name" mapstructure:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate" mapstructure:"sample_rate"`
}

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Source: SourceConfig{
			APIMode:        APIModeYearSpecific,
			PageLimit:      500,
			RequestTimeout: 60 * time.Second,
			RateLimitBurst: 1,
		},
		Extraction: ExtractionConfig{
			Mode:           "incremental",
			MaxConcurrency: 4,
		},
		Retry: RetryConfig{
			MaxAttempts:  8,
			InitialDelay: 4 * time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
		Storage: StorageConfig{
			Backend:     "local",
			Root:        "edfi_api",
			Compression: "none",
			Local:       LocalConfig{Directory: "data"},
		},
		Watermark: WatermarkConfig{
			Backend: "file",
			BigQuery: BigQueryConfig{
				Dataset: "edfi",
				Table:   "edfi_processed_change_versions",
			},
			Postgres: PostgresConfig{Table: "edfi_processed_change_versions"},
			File:     FileConfig{Path: "data/watermarks.jsonl"},
		},
		Signal: SignalConfig{
			Kind:       "log",
			MarkerName: "_SUCCESS",
			Kafka:      KafkaConfig{Topic: "edsync.extraction.complete", ClientID: "edsync"},
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "edsync",
			SampleRate:  1.0,
		},
	}
}

// Validate validates the configuration for correctness.
// It checks required fields and ensures values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if _, err := url.ParseRequestURI(c.Source.BaseURL); err != nil {
		return fmt.Errorf("source.base_url is invalid: %w", err)
	}
	if c.Source.APIMode != APIModeYearSpecific && c.Source.APIMode != APIModeSharedInstance {
		return fmt.Errorf("source.api_mode must be %s or %s", APIModeYearSpecific, APIModeSharedInstance)
	}
	if c.Source.PageLimit <= 0 {
		return fmt.Errorf("source.page_limit must be positive")
	}
	if c.Source.RateLimitPerSec < 0 {
		return fmt.Errorf("source.rate_limit_per_sec cannot be negative")
	}
	if c.Extraction.Mode != "full" && c.Extraction.Mode != "incremental" {
		return fmt.Errorf("extraction.mode must be full or incremental")
	}
	if c.Extraction.MaxConcurrency <= 0 {
		return fmt.Errorf("extraction.max_concurrency must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}
	switch c.Storage.Compression {
	case "", "none", "gzip", "zstd":
	default:
		return fmt.Errorf("storage.compression must be none, gzip or zstd")
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.Local.Directory == "" {
			return fmt.Errorf("storage.local.directory is required")
		}
	case "gcs", "s3", "minio":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for %s", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Watermark.Backend {
	case "memory":
	case "file":
		if c.Watermark.File.Path == "" {
			return fmt.Errorf("watermark.file.path is required")
		}
	case "bigquery":
		if c.Watermark.BigQuery.ProjectID == "" || c.Watermark.BigQuery.Dataset == "" {
			return fmt.Errorf("watermark.bigquery.project_id and dataset are required")
		}
	case "postgres":
		if c.Watermark.Postgres.DSN == "" {
			return fmt.Errorf("watermark.postgres.dsn is required")
		}
	default:
		return fmt.Errorf("unknown watermark.backend %q", c.Watermark.Backend)
	}
	switch c.Signal.Kind {
	case "log", "marker":
	case "kafka":
		if len(c.Signal.Kafka.Brokers) == 0 || c.Signal.Kafka.Topic == "" {
			return fmt.Errorf("signal.kafka.brokers and topic are required")
		}
	default:
		return fmt.Errorf("unknown signal.kind %q", c.Signal.Kind)
	}
	return nil
}

// IsRateLimited returns true if rate limiting is enabled
func (s *SourceConfig) IsRateLimited() bool {
	return s.RateLimitPerSec > 0
}

// IsYearSpecific reports whether the school year belongs in URL paths.
func (s *SourceConfig) IsYearSpecific() bool {
	return s.APIMode == APIModeYearSpecific
}

// IsCompressionEnabled returns true if partitions are compressed
func (s *StorageConfig) IsCompressionEnabled() bool {
	return s.Compression != "" && s.Compression != "none"
}
