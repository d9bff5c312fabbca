package watermark

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/watermark/bigquery"
	"github.com/ajitpratap0/edsync/pkg/watermark/postgres"
	"go.uber.org/zap"
)

// Open creates the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.WatermarkConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryBackend(), nil
	case "file":
		return NewFileBackend(cfg.File.Path)
	case "bigquery":
		return bigquery.New(ctx, cfg.BigQuery, logger)
	case "postgres":
		return postgres.New(ctx, cfg.Postgres, logger)
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown watermark backend %q", cfg.Backend))
	}
}
