package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/edsync/internal/pipeline"
	"github.com/ajitpratap0/edsync/pkg/compression"
	"github.com/ajitpratap0/edsync/pkg/connector/core"
	"github.com/ajitpratap0/edsync/pkg/connector/registry"
	"github.com/ajitpratap0/edsync/pkg/models"
	"github.com/ajitpratap0/edsync/pkg/observability"
	"github.com/ajitpratap0/edsync/pkg/partition"
	"github.com/ajitpratap0/edsync/pkg/signal"
	"github.com/ajitpratap0/edsync/pkg/watermark"
)

// engine bundles the collaborators of a run. close releases them in reverse
// order of creation.
type engine struct {
	source     core.WritableSource
	store      core.ObjectStore
	watermarks *watermark.Store
	signaler   signal.Signaler
	orch       *pipeline.Orchestrator
	closers    []func() error
}

func (e *engine) close(log *zap.Logger) {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			log.Warn("failed to release resource", zap.Error(err))
		}
	}
}

// buildEngine wires the configured source, object store, watermark backend
// and signaler into an orchestrator.
func (a *app) buildEngine(ctx context.Context) (*engine, error) {
	e := &engine{}
	fail := func(err error) (*engine, error) {
		e.close(a.log)
		return nil, err
	}

	source, err := registry.CreateSource(sourceName, a.cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to create source '%s': %w", sourceName, err))
	}
	e.source = source
	e.closers = append(e.closers, source.Close)

	store, err := registry.CreateStore(a.cfg.Storage.Backend, a.cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to create object store '%s': %w", a.cfg.Storage.Backend, err))
	}
	e.store = store
	e.closers = append(e.closers, store.Close)

	// a nil compressor writes plain NDJSON
	var compressor compression.Compressor
	if a.cfg.Storage.IsCompressionEnabled() {
		algorithm, err := compression.ParseAlgorithm(a.cfg.Storage.Compression)
		if err != nil {
			return fail(err)
		}
		if compressor, err = compression.NewCompressor(&compression.Config{Algorithm: algorithm, Level: compression.Default}); err != nil {
			return fail(fmt.Errorf("failed to create compressor: %w", err))
		}
	}

	backend, err := watermark.Open(ctx, a.cfg.Watermark, a.log)
	if err != nil {
		return fail(fmt.Errorf("failed to open watermark backend '%s': %w", a.cfg.Watermark.Backend, err))
	}
	e.watermarks = watermark.NewStore(backend, a.log)
	e.closers = append(e.closers, e.watermarks.Close)

	signaler, err := signal.New(a.cfg.Signal, store, a.cfg.Storage.Root, a.log)
	if err != nil {
		return fail(fmt.Errorf("failed to create signal '%s': %w", a.cfg.Signal.Kind, err))
	}
	e.signaler = signaler
	e.closers = append(e.closers, signaler.Close)

	e.orch = pipeline.NewOrchestrator(
		source,
		e.watermarks,
		partition.NewWriter(store, a.cfg.Storage.Root, compressor, a.log),
		signaler,
		a.catalog.Endpoints(),
		pipeline.Options{
			MaxConcurrency:       a.cfg.Extraction.MaxConcurrency,
			IncludeDeletesOnFull: a.cfg.Extraction.IncludeDeletesOnFull,
		},
		a.log,
	)
	return e, nil
}

// resolveMode returns the flag value, falling back to the configured mode.
func (a *app) resolveMode(flag string) (models.Mode, error) {
	if flag == "" {
		flag = a.cfg.Extraction.Mode
	}
	return models.ParseMode(flag)
}

func (a *app) runCmd() *cobra.Command {
	var sourceKey, mode, runID, metricsAddr string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract every catalog endpoint for one source key",
		Long: `Run one extraction. The previous watermark and the newest change version of
the source bound an incremental run; without a watermark the run degrades to a
full extract. The result is printed as JSON and the command exits non-zero
when any endpoint failed.

Example:
  edsync run --config edsync.yaml --source-key 2024 --mode incremental`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			m, err := a.resolveMode(mode)
			if err != nil {
				return err
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}
			return a.run(commandContext(cmd), sourceKey, m, runID, metricsAddr, timeout)
		},
	}

	cmd.Flags().StringVarP(&sourceKey, "source-key", "k", "", "Source key, the school year in YearSpecific mode")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Extraction mode: full or incremental (default from config)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier supplied by the scheduler (default manual__<timestamp>)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this duration (0 = no limit)")
	return cmd
}

func (a *app) run(parent context.Context, sourceKey string, mode models.Mode, runID, metricsAddr string, timeout time.Duration) error {
	ctx, stop := ossignal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	startedAt := time.Now().UTC()
	if runID == "" {
		runID = "manual__" + startedAt.Format(time.RFC3339)
	}

	shutdownTracing, err := observability.Init(observability.TracingConfig{
		Enabled:        a.cfg.Tracing.Enabled,
		ServiceName:    a.cfg.Tracing.ServiceName,
		ServiceVersion: version,
		SamplingRate:   a.cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			a.log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	if metricsAddr != "" {
		server := serveMetrics(metricsAddr, a.log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	e, err := a.buildEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close(a.log)

	a.log.Info("starting run",
		zap.String("run_id", runID),
		zap.String("source_key", sourceKey),
		zap.String("mode", string(mode)),
		zap.Int("endpoints", a.catalog.Len()))

	result, err := e.orch.Run(ctx, models.RunContext{RunID: runID, StartedAt: startedAt}, sourceKey, mode)
	if result != nil {
		if printErr := a.printJSON(result); printErr != nil {
			a.log.Warn("failed to print result", zap.Error(printErr))
		}
	}
	if err != nil {
		return fmt.Errorf("run %s failed: %w", runID, err)
	}
	if !result.Success {
		return fmt.Errorf("run %s failed: endpoints %s", runID, strings.Join(result.FailedEndpoints, ", "))
	}
	return nil
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return server
}

func (a *app) planCmd() *cobra.Command {
	var sourceKey, mode string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the units a run would extract, without extracting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			m, err := a.resolveMode(mode)
			if err != nil {
				return err
			}

			ctx := commandContext(cmd)
			e, err := a.buildEngine(ctx)
			if err != nil {
				return err
			}
			defer e.close(a.log)

			plan, err := e.orch.Plan(ctx, sourceKey, m)
			if err != nil {
				return err
			}
			return a.printJSON(plan)
		},
	}

	cmd.Flags().StringVarP(&sourceKey, "source-key", "k", "", "Source key, the school year in YearSpecific mode")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Extraction mode: full or incremental (default from config)")
	return cmd
}
