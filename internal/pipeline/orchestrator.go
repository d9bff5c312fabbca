// Package pipeline runs one extraction of the change-feed source into the
// object store and advances the watermark when every endpoint made it.
//
// # Overview
//
// A run moves through these steps:
//   - Resolve the previous watermark (absent or unreadable means -1)
//   - Ask the source for its newest change version
//   - Plan one extraction unit per endpoint
//   - Run the units on a bounded worker pool
//   - Commit the new watermark and signal downstream, only if all succeeded
//
// # Basic Usage
//
//	orchestrator := pipeline.NewOrchestrator(
//	    source,
//	    watermarks,
//	    partition.NewWriter(store, "edfi", compressor, logger),
//	    signal.NewLogSignaler(logger),
//	    catalog.Default().Endpoints(),
//	    pipeline.Options{MaxConcurrency: 8},
//	    logger,
//	)
//
//	result, err := orchestrator.Run(ctx, models.RunContext{
//	    RunID:     "scheduled__2024-03-01T06:00:00",
//	    StartedAt: time.Now(),
//	}, "2024", models.ModeIncremental)
//
// A failed endpoint does not stop its siblings. It does keep the watermark
// where it was, so the next incremental run covers the same window again.
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
	"github.com/ajitpratap0/edsync/pkg/partition"
	"github.com/ajitpratap0/edsync/pkg/signal"
	"github.com/ajitpratap0/edsync/pkg/watermark"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrency is used when Options.MaxConcurrency is not positive.
const DefaultMaxConcurrency = 8

// Options tunes a run.
type Options struct {
	// MaxConcurrency bounds the number of units in flight
	MaxConcurrency int
	// IncludeDeletesOnFull also extracts delete feeds in full mode
	IncludeDeletesOnFull bool
}

// Orchestrator fans a run out over the endpoint catalog.
type Orchestrator struct {
	source     core.Source
	watermarks *watermark.Store
	runner     *UnitRunner
	signaler   signal.Signaler
	endpoints  []models.Endpoint
	opts       Options
	logger     *zap.Logger

	// now is replaceable in tests
	now func() time.Time
}

// NewOrchestrator creates an orchestrator. A nil signaler logs completions.
func NewOrchestrator(
	source core.Source,
	watermarks *watermark.Store,
	writer PartitionWriter,
	signaler signal.Signaler,
	endpoints []models.Endpoint,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if signaler == nil {
		signaler = signal.NewLogSignaler(logger)
	}
	return &Orchestrator{
		source:     source,
		watermarks: watermarks,
		runner:     NewUnitRunner(source, writer, logger),
		signaler:   signaler,
		endpoints:  endpoints,
		opts:       opts,
		logger:     logger.With(zap.String("component", "orchestrator")),
		now:        time.Now,
	}
}

// Plan resolves the watermark range of a run without extracting anything.
// It returns the effective mode, both versions and the planned units.
func (o *Orchestrator) Plan(ctx context.Context, sourceKey string, mode models.Mode) (*RunPlan, error) {
	previous := o.watermarks.GetPrevious(ctx, sourceKey)

	current, err := o.source.CurrentVersion(ctx, sourceKey)
	if err != nil {
		if mode == models.ModeIncremental || errors.IsCancellation(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to resolve current change version")
		}
		o.logger.Warn("current change version unavailable, the watermark will not advance",
			zap.String("source_key", sourceKey),
			zap.Error(err))
		current = models.NoWatermark
	}

	effective := mode
	switch {
	case mode != models.ModeIncremental:
	case previous == models.NoWatermark:
		o.logger.Info("no previous watermark, running a full extract",
			zap.String("source_key", sourceKey))
		effective = models.ModeFull
	case current < previous:
		o.logger.Warn("source change version moved backwards, running a full extract",
			zap.String("source_key", sourceKey),
			zap.Int64("previous_change_version", previous),
			zap.Int64("current_change_version", current))
		effective = models.ModeFull
	}

	return &RunPlan{
		SourceKey:     sourceKey,
		Mode:          mode,
		EffectiveMode: effective,
		Previous:      previous,
		Current:       current,
		Units: Plan(o.endpoints, PlanOptions{
			Mode:                 effective,
			Previous:             previous,
			Current:              current,
			IncludeDeletesOnFull: o.opts.IncludeDeletesOnFull,
		}),
	}, nil
}

// RunPlan is the resolved shape of a run.
type RunPlan struct {
	SourceKey     string                  `json:"source_key"`
	Mode          models.Mode             `json:"mode"`
	EffectiveMode models.Mode             `json:"effective_mode"`
	Previous      int64                   `json:"previous_change_version"`
	Current       int64                   `json:"current_change_version"`
	Units         []models.ExtractionUnit `json:"units"`
}

// Run performs one extraction for sourceKey. An error is returned when the
// run could not start, or when committing or signalling failed; endpoint
// failures are reported through the result with Success unset.
func (o *Orchestrator) Run(ctx context.Context, rc models.RunContext, sourceKey string, mode models.Mode) (result *models.RunResult, err error) {
	if rc.RunID == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "run id is required")
	}
	if rc.StartedAt.IsZero() {
		return nil, errors.New(errors.ErrorTypeValidation, "run start time is required")
	}

	ctx = logger.WithRun(ctx, rc.RunID, sourceKey)
	ctx, span := observability.StartSpan(ctx, "extraction.run",
		attribute.String("run_id", rc.RunID),
		attribute.String("source_key", sourceKey),
		attribute.String("mode", string(mode)))
	log := o.logger.With(zap.String("run_id", rc.RunID), zap.String("source_key", sourceKey))

	status := "aborted"
	effective := mode
	defer func() {
		observability.EndSpan(span, err)
		metrics.Runs.WithLabelValues(string(effective), status).Inc()
	}()

	plan, err := o.Plan(ctx, sourceKey, mode)
	if err != nil {
		log.Error("run aborted", zap.Error(err))
		return nil, err
	}
	effective = plan.EffectiveMode

	temporalKey := partition.TemporalKey(sourceKey, rc.StartedAt)
	log.Info("starting extraction",
		zap.String("mode", string(mode)),
		zap.String("effective_mode", string(effective)),
		zap.Int64("previous_change_version", plan.Previous),
		zap.Int64("current_change_version", plan.Current),
		zap.Int("units", len(plan.Units)),
		zap.String("temporal_key", temporalKey))

	result = &models.RunResult{
		RunID:           rc.RunID,
		SourceKey:       sourceKey,
		Mode:            mode,
		EffectiveMode:   effective,
		PreviousVersion: plan.Previous,
		CurrentVersion:  plan.Current,
		RecordCounts:    make(map[string]int64, len(plan.Units)),
		StartedAt:       rc.StartedAt,
	}
	result.Units = o.runUnits(ctx, sourceKey, temporalKey, plan.Units)
	o.aggregate(result)
	result.Success = len(result.FailedEndpoints) == 0

	if !result.Success {
		status = "failure"
		result.FinishedAt = o.now()
		log.Error("extraction finished with failed endpoints, watermark not advanced",
			zap.Strings("failed_endpoints", result.FailedEndpoints),
			zap.Int64("previous_change_version", plan.Previous))
		return result, nil
	}

	if err := o.commit(ctx, result, log); err != nil {
		status = "failure"
		result.Success = false
		result.FinishedAt = o.now()
		return result, err
	}

	partitions := 0
	for _, u := range result.Units {
		partitions += u.Pages
	}
	err = o.signaler.Signal(ctx, signal.Completion{
		RunID:          rc.RunID,
		SourceKey:      sourceKey,
		Mode:           effective,
		CurrentVersion: plan.Current,
		TemporalKey:    temporalKey,
		Partitions:     partitions,
		Records:        result.ChangedRecords + result.DeletedRecords,
		CompletedAt:    o.now(),
	})
	if err != nil {
		status = "failure"
		result.Success = false
		result.FinishedAt = o.now()
		return result, errors.Wrap(err, errors.ErrorTypeConnection, "failed to signal completion")
	}

	status = "success"
	result.FinishedAt = o.now()
	log.Info("extraction complete",
		zap.Int64("changed_records", result.ChangedRecords),
		zap.Int64("deleted_records", result.DeletedRecords),
		zap.Bool("committed", result.Committed),
		zap.Duration("duration", result.FinishedAt.Sub(rc.StartedAt)))
	return result, nil
}

// runUnits runs every unit with at most MaxConcurrency in flight. Units do
// not cancel each other; only ctx does.
func (o *Orchestrator) runUnits(ctx context.Context, sourceKey, temporalKey string, units []models.ExtractionUnit) []models.UnitResult {
	results := make([]models.UnitResult, len(units))
	throughput := metrics.NewThroughputTracker(sourceKey)

	var g errgroup.Group
	g.SetLimit(o.opts.MaxConcurrency)
	for i, unit := range units {
		g.Go(func() error {
			metrics.UnitsInFlight.Inc()
			defer metrics.UnitsInFlight.Dec()

			results[i] = o.runner.Run(ctx, sourceKey, temporalKey, unit)
			throughput.Increment(results[i].Records)
			return nil
		})
	}
	_ = g.Wait()

	throughput.GetAndReset()
	return results
}

func (o *Orchestrator) aggregate(result *models.RunResult) {
	for _, u := range result.Units {
		result.RecordCounts[u.Endpoint.Path] = u.Records
		if u.Endpoint.IsDeleteVariant {
			result.DeletedRecords += u.Records
		} else {
			result.ChangedRecords += u.Records
		}
		if u.State != models.UnitSucceeded {
			result.FailedEndpoints = append(result.FailedEndpoints, u.Endpoint.Path)
		}
	}
}

// commit records the current version. An unknown current version, or one
// below the previous watermark, is skipped rather than committed.
func (o *Orchestrator) commit(ctx context.Context, result *models.RunResult, log *zap.Logger) error {
	switch {
	case result.CurrentVersion == models.NoWatermark:
		log.Warn("current change version unknown, watermark not advanced")
		return nil
	case result.CurrentVersion < result.PreviousVersion:
		log.Warn("current change version below the committed watermark, watermark not advanced",
			zap.Int64("previous_change_version", result.PreviousVersion),
			zap.Int64("current_change_version", result.CurrentVersion))
		return nil
	}

	if err := o.watermarks.Commit(ctx, result.SourceKey, result.CurrentVersion, o.now()); err != nil {
		log.Error("failed to commit watermark", zap.Error(err))
		return err
	}
	result.Committed = true
	return nil
}
