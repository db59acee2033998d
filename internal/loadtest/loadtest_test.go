package loadtest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/studiowebux/loadtest/internal/pattern"
	"github.com/studiowebux/loadtest/internal/runner"
	"github.com/studiowebux/loadtest/internal/scenario"
)

func quickConfig(duration, warmup time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.Duration = duration
	cfg.Warmup = warmup
	cfg.GracePeriod = time.Second
	return cfg
}

func counting(n *atomic.Int64, success bool) scenario.Scenario {
	return scenario.Func("count", func(context.Context, scenario.Shared) (scenario.Outcome, error) {
		n.Add(1)
		if !success {
			return scenario.Outcome{}, errors.New("ServerError: boom")
		}
		return scenario.Outcome{Success: true, StatusCode: 200}, nil
	})
}

func constant(t *testing.T, rate float64) pattern.Pattern {
	t.Helper()
	p, err := pattern.NewConstant(rate)
	if err != nil {
		t.Fatalf("NewConstant failed: %v", err)
	}
	return p
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero duration", func(c *Config) { c.Duration = 0 }},
		{"negative warmup", func(c *Config) { c.Warmup = -time.Second }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrent = 0 }},
		{"negative grace", func(c *Config) { c.GracePeriod = -1 }},
		{"negative tick", func(c *Config) { c.Tick = -1 }},
		{"unknown pacing", func(c *Config) { c.Pacing = runner.Pacing(7) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestRun_ConfigurationErrors(t *testing.T) {
	var n atomic.Int64

	lt := New(quickConfig(time.Second, 0))
	lt.SetPattern(constant(t, 10))
	if _, err := lt.Run(context.Background()); !errors.Is(err, ErrNoScenarios) {
		t.Errorf("Expected ErrNoScenarios, got %v", err)
	}

	lt = New(quickConfig(time.Second, 0))
	_ = lt.AddScenario(counting(&n, true), 1)
	if _, err := lt.Run(context.Background()); !errors.Is(err, ErrNoPattern) {
		t.Errorf("Expected ErrNoPattern, got %v", err)
	}

	lt = New(quickConfig(0, 0))
	_ = lt.AddScenario(counting(&n, true), 1)
	lt.SetPattern(constant(t, 10))
	if _, err := lt.Run(context.Background()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}

	if n.Load() != 0 {
		t.Errorf("Expected no executions on configuration errors, got %d", n.Load())
	}
}

func TestRun_EndToEnd(t *testing.T) {
	var n atomic.Int64
	lt := New(quickConfig(time.Second, 0), WithSeed(3))
	if err := lt.AddScenario(counting(&n, true), 1); err != nil {
		t.Fatalf("AddScenario failed: %v", err)
	}
	lt.SetPattern(constant(t, 20))

	result, err := lt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Expected completed status, got %s", result.Status)
	}
	if result.TotalRequests < 14 || result.TotalRequests > 26 {
		t.Errorf("Expected about 20 requests, got %d", result.TotalRequests)
	}
	if result.SuccessfulRequests != result.TotalRequests || result.FailedRequests != 0 {
		t.Errorf("Expected all requests to succeed, got %+v", result)
	}
	if result.SuccessRate() != 100 {
		t.Errorf("Expected 100%% success rate, got %v", result.SuccessRate())
	}
	if result.Duration() < time.Second {
		t.Errorf("Expected duration of at least 1s, got %s", result.Duration())
	}
	if result.RunID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("Expected a run ID")
	}
	if lt.Metrics() != result.Metrics {
		t.Error("Expected Metrics to return the measured collector after Run")
	}
	if stats := result.Statistics(); stats.StatusCodes[200] != result.TotalRequests {
		t.Errorf("Expected every status to be 200, got %v", stats.StatusCodes)
	}
}

func TestRun_AllFailuresStillReturnResult(t *testing.T) {
	var n atomic.Int64
	lt := New(quickConfig(500*time.Millisecond, 0))
	_ = lt.AddScenario(counting(&n, false), 1)
	lt.SetPattern(constant(t, 20))

	result, err := lt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.TotalRequests == 0 || result.SuccessfulRequests != 0 {
		t.Fatalf("Expected only failures, got %+v", result)
	}
	if result.SuccessRate() != 0 {
		t.Errorf("Expected 0%% success rate, got %v", result.SuccessRate())
	}
	if result.Statistics().Errors["ServerError"] != result.TotalRequests {
		t.Errorf("Expected errors grouped by type, got %v", result.Statistics().Errors)
	}
}

func TestRun_WarmupIsDiscarded(t *testing.T) {
	var executed, observed atomic.Int64
	lt := New(quickConfig(500*time.Millisecond, 500*time.Millisecond),
		WithObserver(runner.ObserverFunc(func(runner.Sample) { observed.Add(1) })),
	)
	_ = lt.AddScenario(counting(&executed, true), 1)
	lt.SetPattern(constant(t, 20))

	result, err := lt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if executed.Load() <= result.TotalRequests {
		t.Errorf("Expected warmup executions outside the result: %d executed, %d recorded", executed.Load(), result.TotalRequests)
	}
	if observed.Load() != result.TotalRequests {
		t.Errorf("Expected observers to see only measured samples: %d observed, %d recorded", observed.Load(), result.TotalRequests)
	}
	if result.TotalRequests > 14 {
		t.Errorf("Expected measured phase only (about 10 requests), got %d", result.TotalRequests)
	}
}

func TestStop_DuringWarmupSkipsMeasuredPhase(t *testing.T) {
	var n atomic.Int64
	lt := New(quickConfig(10*time.Second, 10*time.Second))
	_ = lt.AddScenario(counting(&n, true), 1)
	lt.SetPattern(constant(t, 20))

	go func() {
		time.Sleep(200 * time.Millisecond)
		lt.Stop()
	}()

	start := time.Now()
	result, err := lt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Expected Stop to end the run promptly, took %s", elapsed)
	}
	if result.Status != StatusCancelled {
		t.Errorf("Expected cancelled status, got %s", result.Status)
	}
	if result.TotalRequests != 0 {
		t.Errorf("Expected no measured requests, got %d", result.TotalRequests)
	}
	if n.Load() == 0 {
		t.Error("Expected warmup executions before Stop")
	}
}

func TestAbort_CancelsInFlightAfterStop(t *testing.T) {
	var cancelled atomic.Int64
	blocking := scenario.Func("blocking", func(ctx context.Context, _ scenario.Shared) (scenario.Outcome, error) {
		<-ctx.Done()
		cancelled.Add(1)
		return scenario.Outcome{}, ctx.Err()
	})

	cfg := quickConfig(10*time.Second, 0)
	cfg.GracePeriod = 6 * time.Second
	lt := New(cfg)
	_ = lt.AddScenario(blocking, 1)
	lt.SetPattern(constant(t, 20))

	aborted := make(chan time.Time, 1)
	go func() {
		time.Sleep(200 * time.Millisecond)
		lt.Stop()
		time.Sleep(200 * time.Millisecond)
		aborted <- time.Now()
		lt.Abort()
	}()

	result, err := lt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if elapsed := time.Since(<-aborted); elapsed > 2*time.Second {
		t.Errorf("Expected Abort to end the run well inside the grace period, took %s", elapsed)
	}
	if result.Status != StatusCancelled {
		t.Errorf("Expected cancelled status, got %s", result.Status)
	}
	if cancelled.Load() == 0 {
		t.Error("Expected in-flight executions to be cancelled")
	}
	if result.TotalRequests != 0 {
		t.Errorf("Expected aborted executions not to be recorded, got %d", result.TotalRequests)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	var n atomic.Int64
	lt := New(quickConfig(10*time.Second, 0))
	_ = lt.AddScenario(counting(&n, true), 1)
	lt.SetPattern(constant(t, 20))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	result, err := lt.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Status != StatusCancelled {
		t.Errorf("Expected cancelled status, got %s", result.Status)
	}
	if result.TotalRequests == 0 {
		t.Error("Expected requests before cancellation")
	}
}

func TestResult_ZeroRequests(t *testing.T) {
	var r TestResult
	if r.SuccessRate() != 0 {
		t.Errorf("Expected 0 success rate, got %v", r.SuccessRate())
	}
	if stats := r.Statistics(); stats.TotalRequests != 0 || stats.SuccessRate != 0 {
		t.Errorf("Expected empty statistics, got %+v", stats)
	}
}

func TestRun_WithRunID(t *testing.T) {
	var n atomic.Int64
	id := uuid.MustParse("0b6a8e44-1f0e-4d8e-9a7c-3c1b2a9f0d11")
	lt := New(quickConfig(200*time.Millisecond, 0), WithRunID(id))
	_ = lt.AddScenario(counting(&n, true), 1)
	lt.SetPattern(constant(t, 10))

	first, err := lt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if first.RunID != id {
		t.Errorf("Expected run ID %s, got %s", id, first.RunID)
	}

	second, err := lt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if second.RunID == id || second.RunID == uuid.Nil {
		t.Errorf("Expected a fresh run ID for the second run, got %s", second.RunID)
	}
}
