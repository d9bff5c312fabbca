// Package bigquery stores watermarks in a BigQuery table with the columns
// source_key, newest_change_version and timestamp.
package bigquery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/models"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Schema of the watermark table.
var Schema = bq.Schema{
	{Name: "source_key", Type: bq.StringFieldType, Required: true},
	{Name: "newest_change_version", Type: bq.IntegerFieldType, Required: true},
	{Name: "timestamp", Type: bq.TimestampFieldType, Required: true},
}

// row maps one table row.
type row struct {
	SourceKey           string    `bigquery:"source_key"`
	NewestChangeVersion int64     `bigquery:"newest_change_version"`
	Timestamp           time.Time `bigquery:"timestamp"`
}

// Backend reads and appends watermark rows.
type Backend struct {
	client   *bq.Client
	dataset  string
	table    string
	location string
	logger   *zap.Logger
}

// New connects to BigQuery with cfg.
func New(ctx context.Context, cfg config.BigQueryConfig, logger *zap.Logger) (*Backend, error) {
	if cfg.ProjectID == "" || cfg.Dataset == "" || cfg.Table == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bigquery project_id, dataset and table are required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bq.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create BigQuery client")
	}
	return NewWithClient(client, cfg, logger), nil
}

// NewWithClient uses an existing client.
func NewWithClient(client *bq.Client, cfg config.BigQueryConfig, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		client:   client,
		dataset:  cfg.Dataset,
		table:    cfg.Table,
		location: cfg.Location,
		logger:   logger.With(zap.String("component", "bigquery_watermark")),
	}
}

// LatestQuery is the SQL selecting the newest row of a source key.
func LatestQuery(project, dataset, table string) string {
	return fmt.Sprintf("SELECT source_key, newest_change_version, timestamp\n"+
		"FROM `%s.%s.%s`\n"+
		"WHERE source_key = @source_key\n"+
		"ORDER BY timestamp DESC\n"+
		"LIMIT 1", project, dataset, table)
}

// Latest runs LatestQuery. A missing dataset or table means no watermark.
func (b *Backend) Latest(ctx context.Context, sourceKey string) (models.Watermark, bool, error) {
	q := b.client.Query(LatestQuery(b.client.Project(), b.dataset, b.table))
	q.Parameters = []bq.QueryParameter{{Name: "source_key", Value: sourceKey}}
	if b.location != "" {
		q.Location = b.location
	}

	it, err := q.Read(ctx)
	if err != nil {
		if isNotFound(err) {
			b.logger.Debug("watermark table not found", zap.String("table", b.table))
			return models.Watermark{}, false, nil
		}
		return models.Watermark{}, false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to query watermark table")
	}

	var r row
	switch err := it.Next(&r); {
	case err == iterator.Done:
		return models.Watermark{}, false, nil
	case err != nil:
		return models.Watermark{}, false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read watermark row")
	}
	return toWatermark(r), true, nil
}

// Append streams one row, creating the dataset and table when missing.
func (b *Backend) Append(ctx context.Context, w models.Watermark) error {
	table := b.client.Dataset(b.dataset).Table(b.table)
	err := table.Inserter().Put(ctx, fromWatermark(w))
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to insert watermark row")
	}

	if err := b.ensureTable(ctx); err != nil {
		return err
	}
	if err := table.Inserter().Put(ctx, fromWatermark(w)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to insert watermark row")
	}
	return nil
}

func (b *Backend) ensureTable(ctx context.Context) error {
	dataset := b.client.Dataset(b.dataset)
	if _, err := dataset.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to read dataset metadata")
		}
		if err := dataset.Create(ctx, &bq.DatasetMetadata{Location: b.location}); err != nil && !isConflict(err) {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create dataset")
		}
	}

	if err := dataset.Table(b.table).Create(ctx, &bq.TableMetadata{Schema: Schema}); err != nil && !isConflict(err) {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create watermark table")
	}
	b.logger.Info("created watermark table", zap.String("dataset", b.dataset), zap.String("table", b.table))
	return nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func toWatermark(r row) models.Watermark {
	return models.Watermark{SourceKey: r.SourceKey, Value: r.NewestChangeVersion, CapturedAt: r.Timestamp.UTC()}
}

func fromWatermark(w models.Watermark) *row {
	return &row{SourceKey: w.SourceKey, NewestChangeVersion: w.Value, Timestamp: w.CapturedAt.UTC()}
}

func isNotFound(err error) bool {
	return googleCode(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return googleCode(err) == http.StatusConflict
}

func googleCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
