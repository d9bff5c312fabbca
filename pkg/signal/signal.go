// Package signal tells the downstream transformation stage that every
// partition of a run has been written. Signals are only emitted for
// successful runs; consumers may treat receipt as the go-ahead.
package signal

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/edsync/pkg/json"
	"github.com/ajitpratap0/edsync/pkg/models"
	"go.uber.org/zap"
)

// Completion describes a fully written run.
type Completion struct {
	RunID          string      `json:"run_id"`
	SourceKey      string      `json:"source_key"`
	Mode           models.Mode `json:"mode"`
	CurrentVersion int64       `json:"current_version"`
	TemporalKey    string      `json:"temporal_key"`
	Partitions     int         `json:"partitions"`
	Records        int64       `json:"records"`
	CompletedAt    time.Time   `json:"completed_at"`
}

// Signaler emits completion signals.
type Signaler interface {
	Signal(ctx context.Context, c Completion) error
	Close() error
}

// LogSignaler writes the signal to the log only.
type LogSignaler struct {
	logger *zap.Logger
}

// NewLogSignaler creates a log signaler.
func NewLogSignaler(logger *zap.Logger) *LogSignaler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSignaler{logger: logger.With(zap.String("component", "signal"))}
}

func (s *LogSignaler) Signal(_ context.Context, c Completion) error {
	s.logger.Info("extraction complete",
		zap.String("run_id", c.RunID),
		zap.String("source_key", c.SourceKey),
		zap.String("mode", string(c.Mode)),
		zap.Int64("current_version", c.CurrentVersion),
		zap.Int("partitions", c.Partitions),
		zap.Int64("records", c.Records))
	return nil
}

func (s *LogSignaler) Close() error { return nil }

// MarkerSignaler writes a marker object, the completion as JSON, under
// {root}/_runs/{temporalKey}/.
type MarkerSignaler struct {
	store  core.ObjectStore
	root   string
	name   string
	logger *zap.Logger
}

// NewMarkerSignaler creates a marker signaler writing objects named name.
func NewMarkerSignaler(store core.ObjectStore, root, name string, logger *zap.Logger) *MarkerSignaler {
	if name == "" {
		name = "_SUCCESS"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarkerSignaler{
		store:  store,
		root:   strings.Trim(root, "/"),
		name:   name,
		logger: logger.With(zap.String("component", "signal")),
	}
}

// MarkerKey returns the key of the marker of a run.
func (s *MarkerSignaler) MarkerKey(temporalKey string) string {
	return path.Join(s.root, "_runs", temporalKey, s.name)
}

func (s *MarkerSignaler) Signal(ctx context.Context, c Completion) error {
	body, err := jsonpool.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode completion")
	}
	location, err := s.store.Put(ctx, s.MarkerKey(c.TemporalKey), body, core.PutOptions{ContentType: "application/json"})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write completion marker")
	}
	s.logger.Info("completion marker written", zap.String("run_id", c.RunID), zap.String("location", location))
	return nil
}

// Close leaves the object store open; its owner closes it.
func (s *MarkerSignaler) Close() error { return nil }

// New creates the signaler selected by cfg.Kind. store is required by the
// marker kind only.
func New(cfg config.SignalConfig, store core.ObjectStore, root string, logger *zap.Logger) (Signaler, error) {
	switch cfg.Kind {
	case "", "log":
		return NewLogSignaler(logger), nil
	case "marker":
		if store == nil {
			return nil, errors.New(errors.ErrorTypeConfig, "marker signal requires an object store")
		}
		return NewMarkerSignaler(store, root, cfg.MarkerName, logger), nil
	case "kafka":
		return NewKafkaSignaler(cfg.Kafka, logger)
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown signal kind %q", cfg.Kind))
	}
}
