package loadtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studiowebux/loadtest/internal/metrics"
	"github.com/studiowebux/loadtest/internal/pattern"
	"github.com/studiowebux/loadtest/internal/runner"
	"github.com/studiowebux/loadtest/internal/scenario"
)

// ErrRunning is returned by Run while another Run of the same LoadTest is active
var ErrRunning = errors.New("load test is already running")

// Option configures a LoadTest
type Option func(*LoadTest)

// WithLogger sets the structured logger
func WithLogger(log *zap.Logger) Option {
	return func(lt *LoadTest) {
		if log != nil {
			lt.log = log
		}
	}
}

// WithShared seeds the context map handed to every scenario execution
func WithShared(shared scenario.Shared) Option {
	return func(lt *LoadTest) {
		lt.shared = shared
	}
}

// WithObserver registers an observer for every sample of the measured phase.
// Warmup samples are never observed.
func WithObserver(o runner.Observer) Option {
	return func(lt *LoadTest) {
		lt.observers = append(lt.observers, o)
	}
}

// WithSeed makes weighted scenario selection deterministic
func WithSeed(seed uint64) Option {
	return func(lt *LoadTest) {
		lt.set = scenario.NewSetWithSeed(seed)
	}
}

// WithRunID sets the identifier of the next run instead of generating one
func WithRunID(id uuid.UUID) Option {
	return func(lt *LoadTest) {
		lt.runID = id
	}
}

// LoadTest wraps a warmup phase and a measured phase around the runner
type LoadTest struct {
	cfg       Config
	log       *zap.Logger
	set       *scenario.Set
	pattern   pattern.Pattern
	shared    scenario.Shared
	observers []runner.Observer
	runID     uuid.UUID

	mu        sync.Mutex
	running   bool
	stopped   bool
	active    *runner.Runner
	collector *metrics.Collector
}

// New creates a load test session. The configuration is validated by Run.
func New(cfg Config, opts ...Option) *LoadTest {
	lt := &LoadTest{
		cfg:       cfg,
		log:       zap.NewNop(),
		set:       scenario.NewSet(),
		collector: metrics.NewCollector(),
	}
	for _, opt := range opts {
		opt(lt)
	}
	return lt
}

// Config returns the session configuration
func (lt *LoadTest) Config() Config {
	return lt.cfg
}

// AddScenario registers a scenario with a relative selection weight
func (lt *LoadTest) AddScenario(s scenario.Scenario, weight float64) error {
	return lt.set.Add(s, weight)
}

// SetPattern sets the rate pattern driving both phases
func (lt *LoadTest) SetPattern(p pattern.Pattern) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.pattern = p
}

// Metrics returns the collector of the current phase, or of the last measured phase once Run returned
func (lt *LoadTest) Metrics() *metrics.Collector {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.collector
}

// Stop ends the current phase and skips any phase that has not started yet.
// Run still returns a result populated with what the measured phase recorded.
func (lt *LoadTest) Stop() {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.stopped = true
	if lt.active != nil {
		lt.active.Stop()
	}
	if lt.pattern != nil {
		lt.pattern.Stop()
	}
}

// Abort stops like Stop and also cancels in-flight executions immediately
func (lt *LoadTest) Abort() {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.stopped = true
	if lt.active != nil {
		lt.active.Abort()
	}
	if lt.pattern != nil {
		lt.pattern.Stop()
	}
}

func (lt *LoadTest) validate() error {
	if lt.set.Len() == 0 {
		return ErrNoScenarios
	}
	if lt.pattern == nil {
		return ErrNoPattern
	}
	return lt.cfg.Validate()
}

// Run executes the optional warmup and then the measured phase.
// Configuration errors are returned before any request is launched;
// once started, Run always returns a result, even if every request failed.
func (lt *LoadTest) Run(ctx context.Context) (*TestResult, error) {
	lt.mu.Lock()
	if lt.running {
		lt.mu.Unlock()
		return nil, ErrRunning
	}
	if err := lt.validate(); err != nil {
		lt.mu.Unlock()
		return nil, err
	}
	lt.running = true
	lt.stopped = false
	lt.mu.Unlock()

	defer func() {
		lt.mu.Lock()
		lt.running = false
		lt.active = nil
		lt.mu.Unlock()
	}()

	runID := lt.runID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	lt.runID = uuid.Nil
	log := lt.log.With(zap.String("run_id", runID.String()), zap.String("name", lt.cfg.Name))

	if lt.cfg.Warmup > 0 {
		log.Info("warmup started", zap.Duration("warmup", lt.cfg.Warmup))
		if err := lt.phase(ctx, lt.cfg.Warmup, nil, log.With(zap.String("phase", "warmup"))); err != nil {
			return nil, err
		}
		log.Info("warmup finished")
	}

	collector := metrics.NewCollector()
	result := &TestResult{
		RunID:     runID,
		Name:      lt.cfg.Name,
		Config:    lt.cfg,
		StartTime: time.Now(),
		Metrics:   collector,
	}

	if lt.halted(ctx) {
		log.Info("load test stopped before the measured phase")
	} else {
		log.Info("load test started",
			zap.Duration("duration", lt.cfg.Duration),
			zap.Int("max_concurrent", lt.cfg.MaxConcurrent),
			zap.String("pattern", lt.pattern.Name()),
		)
		if err := lt.phase(ctx, lt.cfg.Duration, collector, log.With(zap.String("phase", "measured"))); err != nil {
			return nil, err
		}
	}

	collector.MarkEnd()
	result.EndTime = time.Now()

	stats := collector.Statistics()
	result.TotalRequests = stats.TotalRequests
	result.SuccessfulRequests = stats.SuccessfulRequests
	result.FailedRequests = stats.FailedRequests
	result.Status = StatusCompleted
	if lt.halted(ctx) {
		result.Status = StatusCancelled
	}

	log.Info("load test finished",
		zap.String("status", string(result.Status)),
		zap.Int64("total_requests", result.TotalRequests),
		zap.Float64("success_rate", result.SuccessRate()),
		zap.Duration("duration", result.Duration()),
	)
	return result, nil
}

// phase runs the pattern for d into collector. A nil collector marks the
// warmup: its samples go to a throwaway collector and are never observed.
func (lt *LoadTest) phase(ctx context.Context, d time.Duration, collector *metrics.Collector, log *zap.Logger) error {
	var observers []runner.Observer
	if collector == nil {
		collector = metrics.NewCollector()
	} else {
		observers = lt.observers
	}

	r, err := runner.New(lt.set, lt.pattern, collector, runner.Config{
		MaxConcurrent:  lt.cfg.MaxConcurrent,
		Tick:           lt.cfg.Tick,
		GracePeriod:    lt.cfg.GracePeriod,
		Pacing:         lt.cfg.Pacing,
		TrackQueueWait: lt.cfg.TrackQueueWait,
		Shared:         lt.shared,
		Observers:      observers,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	lt.mu.Lock()
	lt.active = r
	lt.collector = collector
	if lt.stopped {
		r.Stop()
	}
	lt.mu.Unlock()

	phaseCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	if err := r.Run(phaseCtx); err != nil {
		return fmt.Errorf("runner failed: %w", err)
	}
	return nil
}

func (lt *LoadTest) halted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.stopped
}
