package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/studiowebux/loadtest/internal/metrics"
	"github.com/studiowebux/loadtest/internal/pattern"
	"github.com/studiowebux/loadtest/internal/scenario"
)

const (
	DefaultMaxConcurrent = 1000
	DefaultTick          = 100 * time.Millisecond
	DefaultGracePeriod   = 5 * time.Second
)

// ErrAlreadyRunning is returned by Run while a previous Run is still active
var ErrAlreadyRunning = errors.New("runner is already running")

// Pacing selects how a sampled rate becomes a launch count per tick
type Pacing int

const (
	// PacingRound launches max(1, round(rate·tick)) executions whenever rate > 0
	PacingRound Pacing = iota
	// PacingCarry accumulates fractional launches across ticks so rates below 1/tick are honoured
	PacingCarry
)

func (p Pacing) String() string {
	if p == PacingCarry {
		return "carry"
	}
	return "round"
}

// Sample describes one recorded execution
type Sample struct {
	Scenario   string
	Scheduled  time.Time
	Elapsed    time.Duration // since Scheduled, queue wait included
	QueueWait  time.Duration
	Success    bool
	StatusCode int
	Detail     string
}

// Observer is notified of every recorded execution.
// Observe is called concurrently from execution goroutines.
type Observer interface {
	Observe(Sample)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Sample)

// Observe implements Observer
func (f ObserverFunc) Observe(s Sample) {
	f(s)
}

// Config tunes a Runner. Zero values select the defaults.
type Config struct {
	MaxConcurrent int
	Tick          time.Duration
	GracePeriod   time.Duration
	Pacing        Pacing
	// TrackQueueWait records the semaphore wait as the "queue_wait" custom metric
	TrackQueueWait bool
	Shared         scenario.Shared
	Observers      []Observer
	Logger         *zap.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Runner turns a rate pattern into concurrent scenario executions
type Runner struct {
	set       *scenario.Set
	pattern   pattern.Pattern
	collector *metrics.Collector
	cfg       Config
	log       *zap.Logger
	sem       *semaphore.Weighted

	running  atomic.Bool
	launched atomic.Int64
	pending  atomic.Int64
	inFlight atomic.Int64

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
	abort   context.CancelFunc
	aborted bool
}

// New creates a runner that records every outcome into collector
func New(set *scenario.Set, p pattern.Pattern, collector *metrics.Collector, cfg Config) (*Runner, error) {
	if set == nil {
		return nil, errors.New("scenario set is required")
	}
	if p == nil {
		return nil, errors.New("rate pattern is required")
	}
	if collector == nil {
		return nil, errors.New("metrics collector is required")
	}
	cfg.applyDefaults()

	return &Runner{
		set:       set,
		pattern:   p,
		collector: collector,
		cfg:       cfg,
		log:       cfg.Logger.With(zap.String("pattern", p.Name())),
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		stop:      make(chan struct{}),
	}, nil
}

// Launched returns the number of executions scheduled by the current or last run
func (r *Runner) Launched() int64 {
	return r.launched.Load()
}

// Pending returns the executions that are queued or running
func (r *Runner) Pending() int64 {
	return r.pending.Load()
}

// InFlight returns the executions currently holding a concurrency permit
func (r *Runner) InFlight() int64 {
	return r.inFlight.Load()
}

// Stop ends the active run, or the next one when none is active.
// Run still drains in-flight executions before returning.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.stopped = true
		close(r.stop)
	}
}

// Abort stops the active run, or the next one, and cancels its executions
// without waiting for the grace period. Cancelled executions are not recorded.
func (r *Runner) Abort() {
	r.Stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted = true
	if r.abort != nil {
		r.abort()
	}
}

func (r *Runner) setAbort(cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abort = cancel
	if cancel != nil && r.aborted {
		cancel()
	}
}

func (r *Runner) stopSignal() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop
}

func (r *Runner) rearm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		r.stop = make(chan struct{})
		r.stopped = false
	}
	r.aborted = false
}

// Run executes until ctx is done, Stop is called or the pattern is exhausted.
// It returns after every launched execution finished or was abandoned
// once the grace period elapsed. Scenario failures never end a run.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)
	defer r.rearm()

	r.launched.Store(0)
	stop := r.stopSignal()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	go func() {
		select {
		case <-stop:
			cancelLoop()
		case <-loopCtx.Done():
		}
	}()

	// Executions outlive the loop so they can finish during the grace period
	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelExec()
	r.setAbort(cancelExec)
	defer r.setAbort(nil)

	shared := r.cfg.Shared.Clone(map[string]any{scenario.MetricsKey: r.collector})
	seq := r.pattern.Generate().Every(r.cfg.Tick)

	r.log.Debug("runner started",
		zap.Int("max_concurrent", r.cfg.MaxConcurrent),
		zap.Duration("tick", r.cfg.Tick),
		zap.Stringer("pacing", r.cfg.Pacing),
	)

	var wg sync.WaitGroup
	var carry float64

ticks:
	for {
		rate, ok := seq.Next(loopCtx)
		if !ok {
			break
		}
		tickStart := time.Now()

		n := r.launchCount(rate, &carry)
		if n == 0 {
			continue
		}
		spacing := r.cfg.Tick / time.Duration(n)
		for i := 0; i < n; i++ {
			if i > 0 && !sleepUntil(loopCtx, tickStart.Add(spacing*time.Duration(i))) {
				break ticks
			}
			sc, ok := r.set.Select()
			if !ok {
				continue
			}
			r.launch(execCtx, &wg, sc, shared)
		}
	}

	r.drain(&wg, cancelExec)
	return nil
}

func (r *Runner) launchCount(rate float64, carry *float64) int {
	if rate <= 0 {
		*carry = 0
		return 0
	}
	want := rate * r.cfg.Tick.Seconds()
	if r.cfg.Pacing == PacingCarry {
		*carry += want
		n := math.Floor(*carry)
		*carry -= n
		return int(n)
	}
	return max(1, int(math.Round(want)))
}

func (r *Runner) launch(ctx context.Context, wg *sync.WaitGroup, sc scenario.Scenario, shared scenario.Shared) {
	scheduled := time.Now()
	r.launched.Add(1)
	r.pending.Add(1)
	wg.Add(1)

	go func() {
		defer wg.Done()
		defer r.pending.Add(-1)

		// Queue for a permit instead of dropping the execution
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer r.sem.Release(1)

		r.inFlight.Add(1)
		started := time.Now()
		out, err := execute(ctx, sc, shared)
		r.inFlight.Add(-1)

		if ctx.Err() != nil {
			// Cancelled after the grace period; the result is not meaningful
			return
		}
		r.record(Sample{
			Scenario:   sc.Name(),
			Scheduled:  scheduled,
			Elapsed:    time.Since(scheduled),
			QueueWait:  started.Sub(scheduled),
			Success:    err == nil && out.Success,
			StatusCode: out.StatusCode,
			Detail:     detail(out, err),
		})
	}()
}

func (r *Runner) record(s Sample) {
	r.collector.RecordOutcome(metrics.Outcome{
		Elapsed:    s.Elapsed,
		Success:    s.Success,
		StatusCode: s.StatusCode,
		Detail:     s.Detail,
	})
	if r.cfg.TrackQueueWait {
		r.collector.Record("queue_wait", s.QueueWait.Seconds())
	}
	for _, o := range r.cfg.Observers {
		o.Observe(s)
	}
}

// drain waits for outstanding executions, cancelling them once the grace period elapses
func (r *Runner) drain(wg *sync.WaitGroup, cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(r.cfg.GracePeriod)
	defer grace.Stop()

	select {
	case <-done:
		r.log.Debug("runner cleaned up", zap.Int64("launched", r.launched.Load()))
		return
	case <-grace.C:
	}

	r.log.Warn("grace period elapsed, cancelling executions",
		zap.Duration("grace_period", r.cfg.GracePeriod),
		zap.Int64("pending", r.pending.Load()),
		zap.Int64("in_flight", r.inFlight.Load()),
	)
	cancel()

	abandon := time.NewTimer(r.cfg.GracePeriod)
	defer abandon.Stop()
	select {
	case <-done:
		r.log.Debug("runner cleaned up", zap.Int64("launched", r.launched.Load()))
	case <-abandon.C:
		r.log.Error("executions ignored cancellation and were abandoned",
			zap.Int64("pending", r.pending.Load()),
		)
	}
}

func execute(ctx context.Context, sc scenario.Scenario, shared scenario.Shared) (out scenario.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return sc.Execute(ctx, shared)
}

func detail(out scenario.Outcome, err error) string {
	if err != nil {
		return err.Error()
	}
	if out.Success {
		return ""
	}
	return out.Detail
}

// sleepUntil waits for deadline and reports false if ctx ended first
func sleepUntil(ctx context.Context, deadline time.Time) bool {
	wait := time.Until(deadline)
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
