package loadtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/studiowebux/loadtest/internal/runner"
)

var (
	// ErrNoScenarios is returned by Run when no scenario was added
	ErrNoScenarios = errors.New("no scenarios configured")
	// ErrNoPattern is returned by Run when no rate pattern was set
	ErrNoPattern = errors.New("no rate pattern configured")
	// ErrInvalidConfig wraps every configuration validation failure
	ErrInvalidConfig = errors.New("invalid load test config")
)

// Config describes one load test session
type Config struct {
	Name          string        `json:"name" yaml:"name"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
	Warmup        time.Duration `json:"warmup" yaml:"warmup"`
	MaxConcurrent int           `json:"max_concurrent" yaml:"max_concurrent"`
	GracePeriod   time.Duration `json:"grace_period,omitempty" yaml:"grace_period,omitempty"`
	Tick          time.Duration `json:"tick,omitempty" yaml:"tick,omitempty"`
	Pacing        runner.Pacing `json:"pacing" yaml:"pacing"`
	// TrackQueueWait records the time spent waiting for a concurrency permit as a custom metric
	TrackQueueWait bool `json:"track_queue_wait,omitempty" yaml:"track_queue_wait,omitempty"`
}

// DefaultConfig returns a 60s test with a 5s warmup and up to 1000 concurrent executions
func DefaultConfig() Config {
	return Config{
		Name:          "load test",
		Duration:      60 * time.Second,
		Warmup:        5 * time.Second,
		MaxConcurrent: runner.DefaultMaxConcurrent,
		GracePeriod:   runner.DefaultGracePeriod,
		Tick:          runner.DefaultTick,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidConfig, c.Duration)
	}
	if c.Warmup < 0 {
		return fmt.Errorf("%w: warmup must not be negative, got %s", ErrInvalidConfig, c.Warmup)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("%w: max_concurrent must be positive, got %d", ErrInvalidConfig, c.MaxConcurrent)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("%w: grace_period must not be negative, got %s", ErrInvalidConfig, c.GracePeriod)
	}
	if c.Tick < 0 {
		return fmt.Errorf("%w: tick must not be negative, got %s", ErrInvalidConfig, c.Tick)
	}
	if c.Pacing != runner.PacingRound && c.Pacing != runner.PacingCarry {
		return fmt.Errorf("%w: unknown pacing %d", ErrInvalidConfig, c.Pacing)
	}
	return nil
}
