package loadtest

import (
	"time"

	"github.com/google/uuid"

	"github.com/studiowebux/loadtest/internal/metrics"
)

// Status is the final state of a run
type Status string

const (
	StatusCompleted Status = "completed" // measured phase ran for its full duration or the pattern ended
	StatusCancelled Status = "cancelled" // stopped or the caller's context ended first
)

// TestResult is the outcome of one LoadTest run.
// It is populated once when Run returns and never modified afterwards.
type TestResult struct {
	RunID              uuid.UUID
	Name               string
	Config             Config
	StartTime          time.Time // start of the measured phase
	EndTime            time.Time
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	Status             Status
	Metrics            *metrics.Collector
}

// Duration returns the wall time of the measured phase
func (r *TestResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// SuccessRate returns the percentage of successful requests, 0 when nothing ran
func (r *TestResult) SuccessRate() float64 {
	if r.TotalRequests == 0 {
		return 0
	}
	return float64(r.SuccessfulRequests) / float64(r.TotalRequests) * 100
}

// Statistics computes the full statistics of the measured phase
func (r *TestResult) Statistics() metrics.Statistics {
	if r.Metrics == nil {
		return metrics.NewCollector().Statistics()
	}
	return r.Metrics.Statistics()
}
