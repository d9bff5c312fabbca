// Package partition writes batches of shaped records to deterministic
// object-store keys. A key is a function of table, temporal key, extract
// kind, endpoint and sequence number only, so writing the same partition
// twice replaces the first object.
package partition

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ajitpratap0/edsync/pkg/compression"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/edsync/pkg/json"
	"github.com/ajitpratap0/edsync/pkg/metrics"
	"github.com/ajitpratap0/edsync/pkg/models"
	"github.com/ajitpratap0/edsync/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ContentType of every partition object
const ContentType = "application/x-ndjson"

// TemporalKey identifies the run a partition belongs to. It sorts
// chronologically within a source key.
func TemporalKey(sourceKey string, startedAt time.Time) string {
	return fmt.Sprintf("source_key=%s/date_extracted=%s", sourceKey, startedAt.UTC().Format(time.RFC3339))
}

// Writer encodes records as newline-delimited JSON and puts them on an
// object store.
type Writer struct {
	store      core.ObjectStore
	root       string
	compressor compression.Compressor
	logger     *zap.Logger
}

// NewWriter creates a writer below root. A nil compressor writes plain JSON.
func NewWriter(store core.ObjectStore, root string, compressor compression.Compressor, logger *zap.Logger) *Writer {
	if compressor == nil {
		compressor, _ = compression.NewCompressor(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:      store,
		root:       strings.Trim(root, "/"),
		compressor: compressor,
		logger:     logger.With(zap.String("component", "partition_writer")),
	}
}

// EndpointSegment encodes an endpoint path as one key segment. Slashes are
// escaped, so distinct paths never share a segment.
func EndpointSegment(endpointPath string) string {
	return url.PathEscape(strings.TrimPrefix(endpointPath, "/"))
}

// Key returns the object key of a partition.
func (w *Writer) Key(key models.PartitionKey) string {
	name := fmt.Sprintf("%09d.json%s", key.Sequence, w.compressor.Algorithm().Extension())
	return path.Join(w.root, key.Table, key.TemporalKey,
		"extract_type="+string(key.Kind),
		"endpoint="+EndpointSegment(key.Endpoint),
		name)
}

// Write stores records under key and returns the object location. An empty
// record set produces an empty placeholder object.
func (w *Writer) Write(ctx context.Context, key models.PartitionKey, records []models.ShapedRecord) (location string, err error) {
	if err := validate(key); err != nil {
		return "", err
	}

	ctx, span := observability.StartSpan(ctx, "partition.write",
		attribute.String("table", key.Table),
		attribute.String("kind", string(key.Kind)),
		attribute.String("endpoint", key.Endpoint),
		attribute.Int("sequence", key.Sequence),
		attribute.Int("records", len(records)))
	defer func() {
		observability.EndSpan(span, err)
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.PartitionsWritten.WithLabelValues(string(key.Kind), status).Inc()
	}()

	body, err := jsonpool.MarshalLines(records)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to encode records")
	}
	body, err = w.compressor.Compress(body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to compress partition")
	}

	objectKey := w.Key(key)
	location, err = w.store.Put(ctx, objectKey, body, core.PutOptions{
		ContentType:     ContentType,
		ContentEncoding: w.compressor.Algorithm().ContentEncoding(),
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to write partition").WithDetail("key", objectKey)
	}

	metrics.PartitionBytes.Add(float64(len(body)))
	w.logger.Debug("partition written",
		zap.String("location", location),
		zap.Int("records", len(records)),
		zap.Int("bytes", len(body)))
	return location, nil
}

func validate(key models.PartitionKey) error {
	switch {
	case key.Table == "":
		return errors.New(errors.ErrorTypeValidation, "partition table is required")
	case key.TemporalKey == "":
		return errors.New(errors.ErrorTypeValidation, "partition temporal key is required")
	case !strings.HasPrefix(key.Endpoint, "/"):
		return errors.New(errors.ErrorTypeValidation, "partition endpoint path is required")
	case key.Kind != models.KindRecords && key.Kind != models.KindDeletes:
		return errors.New(errors.ErrorTypeValidation, fmt.Sprintf("unknown extract kind %q", key.Kind))
	case key.Sequence < 1:
		return errors.New(errors.ErrorTypeValidation, "partition sequence numbers start at 1")
	}
	return nil
}
