// Package postgres stores watermarks in an append-only Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Backend reads and appends watermark rows through a pgx pool.
type Backend struct {
	pool   *pgxpool.Pool
	table  string
	logger *zap.Logger

	mu    sync.Mutex
	ready bool
}

// New connects to cfg.DSN.
func New(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Backend, error) {
	if cfg.DSN == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgres dsn is required")
	}
	if !identifier.MatchString(cfg.Table) {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("invalid watermark table name %q", cfg.Table))
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}
	poolConfig.MaxConns = 2
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		pool:   pool,
		table:  cfg.Table,
		logger: logger.With(zap.String("component", "postgres_watermark")),
	}, nil
}

// CreateTableSQL returns the DDL of the watermark table.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	source_key TEXT NOT NULL,
	newest_change_version BIGINT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL
)`, table)
}

// LatestSQL returns the query selecting the newest row of a source key.
func LatestSQL(table string) string {
	return fmt.Sprintf(`SELECT source_key, newest_change_version, timestamp
FROM %s
WHERE source_key = $1
ORDER BY timestamp DESC
LIMIT 1`, table)
}

func (b *Backend) Latest(ctx context.Context, sourceKey string) (models.Watermark, bool, error) {
	if err := b.ensureTable(ctx); err != nil {
		return models.Watermark{}, false, err
	}

	var w models.Watermark
	err := b.pool.QueryRow(ctx, LatestSQL(b.table), sourceKey).Scan(&w.SourceKey, &w.Value, &w.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Watermark{}, false, nil
	}
	if err != nil {
		return models.Watermark{}, false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to query watermark table")
	}
	w.CapturedAt = w.CapturedAt.UTC()
	return w, true, nil
}

func (b *Backend) Append(ctx context.Context, w models.Watermark) error {
	if err := b.ensureTable(ctx); err != nil {
		return err
	}
	_, err := b.pool.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (source_key, newest_change_version, timestamp) VALUES ($1, $2, $3)", b.table),
		w.SourceKey, w.Value, w.CapturedAt.UTC())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to insert watermark row")
	}
	return nil
}

// ensureTable creates the table once per backend; failures are retried on
// the next call.
func (b *Backend) ensureTable(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}
	if _, err := b.pool.Exec(ctx, CreateTableSQL(b.table)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to create watermark table")
	}
	b.ready = true
	b.logger.Debug("watermark table ready", zap.String("table", b.table))
	return nil
}

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}
