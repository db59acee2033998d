package storage

import "time"

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Run represents a stored load test run
type Run struct {
	ID                 int64
	RunUUID            string
	Name               string
	PlanFile           string
	Pattern            string
	StartedAt          time.Time
	CompletedAt        *time.Time
	Status             string
	Config             string // JSON encoded loadtest.Config
	DurationSec        float64
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	SuccessRate        float64
	Throughput         float64
	MinResponseTime    float64
	MaxResponseTime    float64
	MeanResponseTime   float64
	P50ResponseTime    float64
	P95ResponseTime    float64
	P99ResponseTime    float64
	P999ResponseTime   float64
	StatusCodes        map[int]int64
	Errors             map[string]int64
}

// IsRunning returns true if the run is currently in progress
func (r *Run) IsRunning() bool {
	return r.Status == StatusRunning
}

// IsCompleted returns true if the run has finished
func (r *Run) IsCompleted() bool {
	return r.Status == StatusCompleted || r.Status == StatusCancelled || r.Status == StatusFailed
}

// Sample represents one stored execution
type Sample struct {
	ID          int64
	RunID       int64
	Scenario    string
	ScheduledAt time.Time
	ElapsedMs   float64
	QueueWaitMs float64
	Success     bool
	StatusCode  int
	Detail      string
}
