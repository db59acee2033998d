package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studiowebux/loadtest/internal/config"
	"github.com/studiowebux/loadtest/internal/export"
	"github.com/studiowebux/loadtest/internal/loadtest"
	"github.com/studiowebux/loadtest/internal/metrics"
	"github.com/studiowebux/loadtest/internal/plan"
	"github.com/studiowebux/loadtest/internal/report"
	"github.com/studiowebux/loadtest/internal/scenario"
	"github.com/studiowebux/loadtest/internal/storage"
)

// ErrBelowThreshold is returned when a run finishes under the required success rate
var ErrBelowThreshold = errors.New("success rate below threshold")

// RunOptions contains options for running a plan in CLI mode
type RunOptions struct {
	PlanPath       string
	Format         string // console, json, prometheus
	OutputPath     string // empty writes to Stdout
	DatabasePath   string
	NoSave         bool
	MetricsAddr    string // serve live Prometheus metrics when set
	Progress       time.Duration
	Duration       time.Duration // overrides the plan when non-zero
	Warmup         time.Duration // overrides the plan when WarmupSet
	WarmupSet      bool
	MinSuccessRate float64

	Logger *zap.Logger
	Stdout io.Writer
}

// Run executes a plan and renders its report
func Run(ctx context.Context, opts RunOptions) error {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	if opts.Format == "" {
		opts.Format = string(report.FormatConsole)
	}
	if _, err := report.Lookup(opts.Format); err != nil {
		return err
	}

	path, err := config.ResolvePlan(opts.PlanPath)
	if err != nil {
		return err
	}
	p, err := plan.Load(path)
	if err != nil {
		return err
	}

	cfg, err := p.LoadTestConfig()
	if err != nil {
		return err
	}
	if opts.Duration > 0 {
		cfg.Duration = opts.Duration
	}
	if opts.WarmupSet {
		cfg.Warmup = opts.Warmup
	}

	pat, err := p.BuildPattern()
	if err != nil {
		return err
	}
	client, err := p.NewHTTPClient(cfg.MaxConcurrent)
	if err != nil {
		return fmt.Errorf("failed to create http client: %w", err)
	}
	entries, err := p.BuildScenarios(client)
	if err != nil {
		return err
	}

	shared := scenario.Shared(p.Shared).Clone(map[string]any{scenario.ClientKey: client})
	runID := uuid.New()
	ltOpts := []loadtest.Option{
		loadtest.WithLogger(log),
		loadtest.WithShared(shared),
		loadtest.WithRunID(runID),
	}
	if p.Seed != 0 {
		ltOpts = append(ltOpts, loadtest.WithSeed(p.Seed))
	}

	var (
		mgr *storage.Manager
		run *storage.Run
		rec *storage.Recorder
	)
	if !opts.NoSave {
		dbPath := opts.DatabasePath
		if dbPath == "" {
			dbPath = config.DatabasePath
		}
		mgr, err = storage.NewManager(dbPath)
		if err != nil {
			return err
		}
		defer mgr.Close()

		run = &storage.Run{RunUUID: runID.String(), Name: cfg.Name, PlanFile: path, Pattern: pat.Name()}
		if err := mgr.CreateRun(run); err != nil {
			return err
		}
		rec = storage.NewRecorder(mgr, run.ID, storage.DefaultBatchSize, log)
		ltOpts = append(ltOpts, loadtest.WithObserver(rec))
	}

	// The exporter reads whichever phase collector is live
	var lt *loadtest.LoadTest
	var exporter *export.Exporter
	if opts.MetricsAddr != "" {
		exporter = export.New(export.DefaultNamespace, func() *metrics.Collector { return lt.Metrics() })
		ltOpts = append(ltOpts, loadtest.WithObserver(exporter))
	}

	lt = loadtest.New(cfg, ltOpts...)
	for _, e := range entries {
		if err := lt.AddScenario(e.Scenario, e.Weight); err != nil {
			return err
		}
	}
	lt.SetPattern(pat)

	if exporter != nil {
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: metricsMux(exporter)}
		go func() {
			log.Info("serving metrics", zap.String("addr", opts.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// First Ctrl+C stops gracefully, the second one cancels outstanding work
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
		case <-runCtx.Done():
			return
		}
		fmt.Fprintln(os.Stderr, "\nStopping load test, press Ctrl+C again to abort")
		lt.Stop()
		select {
		case <-sigChan:
			lt.Abort()
			cancel()
		case <-runCtx.Done():
		}
	}()

	if opts.Progress > 0 {
		stopProgress := startProgress(runCtx, lt, opts.Progress, log)
		defer stopProgress()
	}

	result, err := lt.Run(runCtx)
	if rec != nil {
		rec.Close()
	}
	if err != nil {
		if mgr != nil {
			_ = mgr.FailRun(run)
		}
		return fmt.Errorf("load test failed: %w", err)
	}
	if mgr != nil {
		if err := mgr.CompleteRun(run, result); err != nil {
			log.Error("failed to save run", zap.Error(err))
		} else {
			log.Info("run saved", zap.Int64("id", run.ID), zap.Int64("samples", rec.Saved()))
		}
	}

	if err := writeReport(stdout, opts, result); err != nil {
		return err
	}

	if opts.MinSuccessRate > 0 && result.SuccessRate() < opts.MinSuccessRate {
		return fmt.Errorf("%w: %.2f%% < %.2f%%", ErrBelowThreshold, result.SuccessRate(), opts.MinSuccessRate)
	}
	return nil
}

func metricsMux(e *export.Exporter) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	return mux
}

func writeReport(stdout io.Writer, opts RunOptions, result *loadtest.TestResult) error {
	if opts.OutputPath == "" {
		if opts.Format == string(report.FormatConsole) {
			return report.Console{Styled: true}.Generate(stdout, result)
		}
		return report.Render(stdout, opts.Format, result)
	}

	f, err := os.OpenFile(opts.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, config.FilePermissions)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := report.Render(f, opts.Format, result); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	fmt.Fprintf(stdout, "Report written to %s\n", opts.OutputPath)
	return nil
}

// startProgress logs live statistics every interval until the returned func is called
func startProgress(ctx context.Context, lt *loadtest.LoadTest, interval time.Duration, log *zap.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := lt.Metrics().Statistics()
				log.Info("progress",
					zap.Float64("elapsed_sec", stats.Duration),
					zap.Int64("requests", stats.TotalRequests),
					zap.Float64("throughput", stats.Throughput),
					zap.Float64("success_rate", stats.SuccessRate),
					zap.Float64("p95", stats.P95ResponseTime),
				)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
