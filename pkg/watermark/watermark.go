// Package watermark records the change versions that runs have fully
// processed. Rows are only ever appended; the latest row per source key is
// the watermark.
package watermark

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/metrics"
	"github.com/ajitpratap0/edsync/pkg/models"
	"go.uber.org/zap"
)

// Backend persists watermark rows.
type Backend interface {
	// Latest returns the most recent row for sourceKey. ok is false when the
	// source key has no rows, or the backing table does not exist yet.
	Latest(ctx context.Context, sourceKey string) (w models.Watermark, ok bool, err error)
	// Append adds a row without touching earlier ones.
	Append(ctx context.Context, w models.Watermark) error
	Close() error
}

// Store resolves and commits watermarks on top of a Backend.
type Store struct {
	backend Backend
	logger  *zap.Logger
}

// NewStore creates a store.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend: backend,
		logger:  logger.With(zap.String("component", "watermark_store")),
	}
}

// GetPrevious returns the last committed change version of sourceKey, or
// models.NoWatermark when there is none. Lookup failures are logged and
// reported as models.NoWatermark, which makes the caller fall back to a full
// extract.
func (s *Store) GetPrevious(ctx context.Context, sourceKey string) int64 {
	w, ok, err := s.backend.Latest(ctx, sourceKey)
	switch {
	case err != nil:
		s.logger.Warn("watermark lookup failed, falling back to full extract",
			zap.String("source_key", sourceKey), zap.Error(err))
		w.Value = models.NoWatermark
	case !ok:
		w.Value = models.NoWatermark
	}

	s.logger.Info("resolved previous change version",
		zap.String("source_key", sourceKey),
		zap.Int64("previous_change_version", w.Value))
	return w.Value
}

// Latest returns the latest row and surfaces lookup errors.
func (s *Store) Latest(ctx context.Context, sourceKey string) (models.Watermark, bool, error) {
	return s.backend.Latest(ctx, sourceKey)
}

// Commit appends value as the new watermark of sourceKey.
func (s *Store) Commit(ctx context.Context, sourceKey string, value int64, capturedAt time.Time) error {
	if sourceKey == "" {
		return errors.New(errors.ErrorTypeValidation, "source key is required")
	}
	if value < 0 {
		return errors.New(errors.ErrorTypeValidation, fmt.Sprintf("invalid change version %d", value))
	}

	w := models.Watermark{SourceKey: sourceKey, Value: value, CapturedAt: capturedAt.UTC()}
	if err := s.backend.Append(ctx, w); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to commit watermark").
			WithDetail("source_key", sourceKey)
	}

	metrics.CommittedWatermark.WithLabelValues(sourceKey).Set(float64(value))
	s.logger.Info("committed change version",
		zap.String("source_key", sourceKey),
		zap.Int64("newest_change_version", value))
	return nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
