package pipeline

import (
	"context"
	"time"

	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/logger"
	"github.com/ajitpratap0/edsync/pkg/metrics"
	"github.com/ajitpratap0/edsync/pkg/models"
	"github.com/ajitpratap0/edsync/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PartitionWriter persists one page of shaped records. partition.Writer is
// the production implementation.
type PartitionWriter interface {
	Write(ctx context.Context, key models.PartitionKey, records []models.ShapedRecord) (string, error)
}

// UnitRunner drives a single extraction unit: it pulls pages from the
// source one at a time and writes each as its own partition before asking
// for the next.
type UnitRunner struct {
	source core.Source
	writer PartitionWriter
	logger *zap.Logger
}

// NewUnitRunner creates a unit runner.
func NewUnitRunner(source core.Source, writer PartitionWriter, logger *zap.Logger) *UnitRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitRunner{
		source: source,
		writer: writer,
		logger: logger.With(zap.String("component", "unit_runner")),
	}
}

// unitRun tracks the lifecycle of one unit.
type unitRun struct {
	result models.UnitResult
	logger *zap.Logger
}

func (u *unitRun) transition(state models.UnitState) {
	if u.result.State.Terminal() {
		return
	}
	u.logger.Debug("unit state change",
		zap.String("from", string(u.result.State)),
		zap.String("to", string(state)))
	u.result.State = state
}

func (u *unitRun) fail(err error) {
	u.transition(models.UnitFailed)
	u.result.Err = err
	u.result.Error = err.Error()
}

// Run extracts unit for sourceKey into partitions under temporalKey. The
// returned result is always terminal; failures are reported through it
// rather than as an error so siblings are unaffected.
//
// Sequence numbers start at 1 and grow by one per written page. A unit whose
// first page is already empty writes a single empty partition so every
// planned table is present downstream.
//
// The unit moves Pending -> Fetching and then alternates Writing and Fetching
// once per page. The empty page that ends a feed arrives while Fetching, so a
// unit that wrote data succeeds from Fetching; a unit that only wrote its
// placeholder succeeds from Writing. A fetch error fails the unit from
// Fetching, a write error from Writing.
func (r *UnitRunner) Run(ctx context.Context, sourceKey, temporalKey string, unit models.ExtractionUnit) models.UnitResult {
	start := time.Now()
	kind := unit.Endpoint.Kind()
	complete := unit.IsCompleteExtract()

	ctx = logger.WithEndpoint(ctx, unit.Endpoint.Path)
	ctx, span := observability.StartSpan(ctx, "unit.run",
		attribute.String("endpoint", unit.Endpoint.Path),
		attribute.String("mode", string(unit.Mode)),
		attribute.Bool("complete_extract", complete))

	run := &unitRun{
		result: models.UnitResult{
			Endpoint: unit.Endpoint,
			State:    models.UnitPending,
		},
		logger: r.logger.With(zap.String("endpoint", unit.Endpoint.Path)),
	}
	if unit.Bounds != nil {
		run.logger = run.logger.With(
			zap.Int64("min_change_version", unit.Bounds.From+1),
			zap.Int64("max_change_version", unit.Bounds.To))
	}

	write := func(records []models.ShapedRecord) error {
		run.transition(models.UnitWriting)
		key := models.PartitionKey{
			Table:       unit.Endpoint.Table,
			TemporalKey: temporalKey,
			Kind:        kind,
			Endpoint:    unit.Endpoint.Path,
			Sequence:    run.result.Pages + 1,
		}
		location, err := r.writer.Write(ctx, key, records)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write partition").
				WithDetail("endpoint", unit.Endpoint.Path).
				WithDetail("sequence", key.Sequence)
		}
		run.result.Pages++
		run.result.Records += int64(len(records))
		run.result.Locations = append(run.result.Locations, location)
		metrics.RecordsExtracted.WithLabelValues(unit.Endpoint.Path, string(kind)).Add(float64(len(records)))
		return nil
	}

	run.transition(models.UnitFetching)
	for page, err := range r.source.FetchPages(ctx, sourceKey, unit.Endpoint, unit.Bounds) {
		if err != nil {
			run.fail(err)
			break
		}
		if page.Empty() {
			break
		}
		if err := write(ShapePage(page, kind, complete)); err != nil {
			run.fail(err)
			break
		}
		run.transition(models.UnitFetching)
	}

	if !run.result.State.Terminal() && run.result.Pages == 0 {
		if err := write([]models.ShapedRecord{}); err != nil {
			run.fail(err)
		}
	}
	if !run.result.State.Terminal() {
		run.transition(models.UnitSucceeded)
	}

	run.result.Duration = time.Since(start)
	metrics.UnitsCompleted.WithLabelValues(string(run.result.State)).Inc()
	metrics.UnitDuration.WithLabelValues(unit.Endpoint.Path).Observe(run.result.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("pages", run.result.Pages),
		attribute.Int64("records", run.result.Records))
	observability.EndSpan(span, run.result.Err)

	if run.result.Err != nil {
		run.logger.Error("extraction unit failed",
			zap.Int("pages", run.result.Pages),
			zap.Int64("records", run.result.Records),
			zap.Error(run.result.Err))
	} else {
		run.logger.Info("extraction unit complete",
			zap.Int("pages", run.result.Pages),
			zap.Int64("records", run.result.Records),
			zap.Duration("duration", run.result.Duration))
	}
	return run.result
}
