package metrics

import (
	"strings"
	"sync"
	"time"
)

// Outcome is the result of one scenario execution as seen by the collector
type Outcome struct {
	Elapsed    time.Duration
	Success    bool
	StatusCode int    // 0 when the scenario reported no status
	Detail     string // failure detail, ignored on success
}

// Snapshot is the delta view returned by Collector.Snapshot
type Snapshot struct {
	Timestamp     time.Time
	ResponseTimes []float64 // seconds, since the previous snapshot
	RequestCount  int64
	SuccessCount  int64
	ErrorCount    int64
	StatusCodes   map[int]int64
}

// Collector accumulates per-request outcomes and computes aggregate statistics.
// All methods are safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	responseTimes []float64
	total         int64
	successful    int64
	failed        int64
	statusCodes   map[int]int64
	errors        map[string]int64
	custom        map[string][]float64

	start time.Time
	end   time.Time // zero while the collector is live
	now   func() time.Time
}

// Option configures a Collector
type Option func(*Collector)

// WithClock overrides the wall clock used for duration and throughput
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// NewCollector creates an empty collector whose duration clock starts now
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resetLocked()
	return c
}

func (c *Collector) resetLocked() {
	c.responseTimes = make([]float64, 0, 1000)
	c.total = 0
	c.successful = 0
	c.failed = 0
	c.statusCodes = make(map[int]int64)
	c.errors = make(map[string]int64)
	c.custom = make(map[string][]float64)
	c.start = c.now()
	c.end = time.Time{}
}

// RecordResponseTime records one elapsed-time sample
func (c *Collector) RecordResponseTime(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseTimes = append(c.responseTimes, elapsed.Seconds())
}

// RecordSuccess counts a successful request
func (c *Collector) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.successful++
}

// RecordFailure counts a failed request, grouping it by error type when detail is set
func (c *Collector) RecordFailure(detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordFailureLocked(detail)
}

func (c *Collector) recordFailureLocked(detail string) {
	c.total++
	c.failed++
	if kind := ErrorType(detail); kind != "" {
		c.errors[kind]++
	}
}

// RecordStatusCode counts one occurrence of a status code
func (c *Collector) RecordStatusCode(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCodes[code]++
}

// Record appends a sample to a named custom metric
func (c *Collector) Record(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.custom[name] = append(c.custom[name], value)
}

// RecordOutcome records elapsed time, result and status code of one request atomically
func (c *Collector) RecordOutcome(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.responseTimes = append(c.responseTimes, o.Elapsed.Seconds())
	if o.Success {
		c.total++
		c.successful++
	} else {
		c.recordFailureLocked(o.Detail)
	}
	if o.StatusCode != 0 {
		c.statusCodes[o.StatusCode]++
	}
}

// ErrorType reduces an error detail to its type: the text before the first colon
func ErrorType(detail string) string {
	detail = strings.TrimSpace(detail)
	if i := strings.Index(detail, ":"); i >= 0 {
		return strings.TrimSpace(detail[:i])
	}
	return detail
}

// MarkEnd freezes the duration clock; later statistics report the duration up to now
func (c *Collector) MarkEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.end.IsZero() {
		c.end = c.now()
	}
}

// Statistics returns a consistent snapshot of everything recorded so far
func (c *Collector) Statistics() Statistics {
	c.mu.Lock()
	times := make([]float64, len(c.responseTimes))
	copy(times, c.responseTimes)
	custom := make(map[string][]float64, len(c.custom))
	for name, values := range c.custom {
		custom[name] = append([]float64(nil), values...)
	}
	stats := Statistics{
		TotalRequests:      c.total,
		SuccessfulRequests: c.successful,
		FailedRequests:     c.failed,
		StatusCodes:        make(map[int]int64, len(c.statusCodes)),
		Errors:             make(map[string]int64, len(c.errors)),
		CustomMetrics:      make(map[string]Summary, len(custom)),
	}
	for code, count := range c.statusCodes {
		stats.StatusCodes[code] = count
	}
	for kind, count := range c.errors {
		stats.Errors[kind] = count
	}
	end := c.end
	if end.IsZero() {
		end = c.now()
	}
	stats.Duration = end.Sub(c.start).Seconds()
	c.mu.Unlock()

	// Sorting happens on private copies so recorders are never blocked by it
	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests) * 100
		stats.ErrorRate = float64(stats.FailedRequests) / float64(stats.TotalRequests) * 100
	}
	if stats.Duration > 0 {
		stats.Throughput = float64(stats.TotalRequests) / stats.Duration
	}

	if sum, sorted := summarize(times); sum.Count > 0 {
		stats.ResponseTimeCount = int64(sum.Count)
		stats.ResponseTimeSum = sum.Sum
		stats.MinResponseTime = sum.Min
		stats.MaxResponseTime = sum.Max
		stats.MeanResponseTime = sum.Mean
		stats.MedianResponseTime = sum.Median
		stats.P50ResponseTime = sum.Median
		stats.P95ResponseTime = sum.P95
		stats.P99ResponseTime = sum.P99
		stats.P999ResponseTime = Percentile(sorted, 99.9)
	}

	for name, values := range custom {
		if sum, _ := summarize(values); sum.Count > 0 {
			stats.CustomMetrics[name] = sum
		}
	}

	return stats
}

// Snapshot returns the samples recorded since the previous snapshot and clears that buffer.
// Cumulative counters are reported but not reset.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Timestamp:     c.now(),
		ResponseTimes: c.responseTimes,
		RequestCount:  c.total,
		SuccessCount:  c.successful,
		ErrorCount:    c.failed,
		StatusCodes:   make(map[int]int64, len(c.statusCodes)),
	}
	for code, count := range c.statusCodes {
		snap.StatusCodes[code] = count
	}
	c.responseTimes = make([]float64, 0, cap(c.responseTimes))
	return snap
}

// Reset clears all recorded data and restarts the duration clock
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Merge folds the data recorded by other into c
func (c *Collector) Merge(other *Collector) {
	if other == nil || other == c {
		return
	}

	other.mu.Lock()
	times := append([]float64(nil), other.responseTimes...)
	total, successful, failed := other.total, other.successful, other.failed
	codes := make(map[int]int64, len(other.statusCodes))
	for code, count := range other.statusCodes {
		codes[code] = count
	}
	errs := make(map[string]int64, len(other.errors))
	for kind, count := range other.errors {
		errs[kind] = count
	}
	custom := make(map[string][]float64, len(other.custom))
	for name, values := range other.custom {
		custom[name] = append([]float64(nil), values...)
	}
	other.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseTimes = append(c.responseTimes, times...)
	c.total += total
	c.successful += successful
	c.failed += failed
	for code, count := range codes {
		c.statusCodes[code] += count
	}
	for kind, count := range errs {
		c.errors[kind] += count
	}
	for name, values := range custom {
		c.custom[name] = append(c.custom[name], values...)
	}
}
