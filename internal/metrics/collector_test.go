package metrics

import (
	"math"
	"sync"
	"testing"
	"time"
)

func sequential(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i + 1)
	}
	return values
}

func TestPercentile(t *testing.T) {
	data := sequential(100)

	tests := []struct {
		name     string
		p        float64
		expected float64
	}{
		{"p0", 0, 1},
		{"p50", 50, 50.5},
		{"p95", 95, 95.05},
		{"p99", 99, 99.01},
		{"p99.9", 99.9, 99.901},
		{"p100", 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(data, tt.p)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Percentile(%v) = %v, expected %v", tt.p, got, tt.expected)
			}
		})
	}
}

func TestPercentile_EdgeCases(t *testing.T) {
	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("Expected 0 for empty data, got %v", got)
	}
	if got := Percentile([]float64{7}, 99.9); got != 7 {
		t.Errorf("Expected 7 for single sample, got %v", got)
	}
	if got := Percentile([]float64{1, 3}, 50); got != 2 {
		t.Errorf("Expected 2, got %v", got)
	}
}

func TestCollector_ZeroSamples(t *testing.T) {
	c := NewCollector()
	stats := c.Statistics()

	values := map[string]float64{
		"success_rate":         stats.SuccessRate,
		"error_rate":           stats.ErrorRate,
		"min_response_time":    stats.MinResponseTime,
		"max_response_time":    stats.MaxResponseTime,
		"mean_response_time":   stats.MeanResponseTime,
		"median_response_time": stats.MedianResponseTime,
		"p95_response_time":    stats.P95ResponseTime,
		"p99_response_time":    stats.P99ResponseTime,
		"p999_response_time":   stats.P999ResponseTime,
	}
	for key, value := range values {
		if value != 0 || math.IsNaN(value) {
			t.Errorf("Expected %s to be 0, got %v", key, value)
		}
	}
	if stats.TotalRequests != 0 {
		t.Errorf("Expected 0 requests, got %d", stats.TotalRequests)
	}
	if len(stats.CustomMetrics) != 0 {
		t.Errorf("Expected no custom metrics, got %d", len(stats.CustomMetrics))
	}
}

func TestCollector_RecordAndStatistics(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewCollector(WithClock(func() time.Time { return now }))

	for i := 1; i <= 100; i++ {
		c.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}
	for i := 0; i < 90; i++ {
		c.RecordSuccess()
	}
	for i := 0; i < 10; i++ {
		c.RecordFailure("timeout: upstream took too long")
	}
	c.RecordStatusCode(200)
	c.RecordStatusCode(200)
	c.RecordStatusCode(503)
	c.Record("payload_bytes", 10)
	c.Record("payload_bytes", 30)

	now = now.Add(10 * time.Second)
	stats := c.Statistics()

	if stats.TotalRequests != 100 || stats.SuccessfulRequests != 90 || stats.FailedRequests != 10 {
		t.Fatalf("Unexpected counters: %+v", stats)
	}
	if stats.SuccessRate != 90 {
		t.Errorf("Expected success rate 90, got %v", stats.SuccessRate)
	}
	if stats.ErrorRate != 10 {
		t.Errorf("Expected error rate 10, got %v", stats.ErrorRate)
	}
	if stats.Duration != 10 {
		t.Errorf("Expected duration 10s, got %v", stats.Duration)
	}
	if stats.Throughput != 10 {
		t.Errorf("Expected throughput 10, got %v", stats.Throughput)
	}
	if math.Abs(stats.MinResponseTime-0.001) > 1e-12 {
		t.Errorf("Expected min 0.001, got %v", stats.MinResponseTime)
	}
	if math.Abs(stats.MaxResponseTime-0.1) > 1e-12 {
		t.Errorf("Expected max 0.1, got %v", stats.MaxResponseTime)
	}
	if math.Abs(stats.MedianResponseTime-0.0505) > 1e-9 {
		t.Errorf("Expected median 0.0505, got %v", stats.MedianResponseTime)
	}
	if stats.StatusCodes[200] != 2 || stats.StatusCodes[503] != 1 {
		t.Errorf("Unexpected status codes: %v", stats.StatusCodes)
	}
	if stats.Errors["timeout"] != 10 {
		t.Errorf("Expected errors grouped by type, got %v", stats.Errors)
	}

	payload, ok := stats.CustomMetrics["payload_bytes"]
	if !ok {
		t.Fatal("Expected payload_bytes custom metric")
	}
	if payload.Count != 2 || payload.Min != 10 || payload.Max != 30 || payload.Mean != 20 || payload.Median != 20 {
		t.Errorf("Unexpected custom summary: %+v", payload)
	}
}

func TestCollector_MapKeys(t *testing.T) {
	c := NewCollector()
	c.RecordOutcome(Outcome{Elapsed: time.Millisecond, Success: true, StatusCode: 200})

	m := c.Statistics().Map()
	keys := []string{
		"total_requests", "successful_requests", "failed_requests", "success_rate", "error_rate",
		"duration", "throughput", "min_response_time", "max_response_time", "mean_response_time",
		"median_response_time", "p95_response_time", "p99_response_time", "p999_response_time",
		"status_codes", "errors", "custom_metrics",
	}
	for _, key := range keys {
		if _, ok := m[key]; !ok {
			t.Errorf("Expected key %q in statistics map", key)
		}
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		detail   string
		expected string
	}{
		{"", ""},
		{"boom", "boom"},
		{"ConnectionError: refused", "ConnectionError"},
		{"unexpected status 500", "unexpected status 500"},
	}
	for _, tt := range tests {
		if got := ErrorType(tt.detail); got != tt.expected {
			t.Errorf("ErrorType(%q) = %q, expected %q", tt.detail, got, tt.expected)
		}
	}
}

func TestCollector_ConcurrentRecordKeepsTotals(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	done := make(chan struct{})

	// Reader runs concurrently and must never see total != success + fail
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			s := c.Statistics()
			if s.TotalRequests != s.SuccessfulRequests+s.FailedRequests {
				t.Errorf("Inconsistent snapshot: %d != %d + %d", s.TotalRequests, s.SuccessfulRequests, s.FailedRequests)
				return
			}
		}
	}()

	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.RecordOutcome(Outcome{
					Elapsed: time.Millisecond,
					Success: (w+i)%3 != 0,
					Detail:  "failed",
				})
			}
		}(w)
	}
	wg.Wait()
	close(done)

	s := c.Statistics()
	if s.TotalRequests != 10000 {
		t.Errorf("Expected 10000 requests, got %d", s.TotalRequests)
	}
	if s.TotalRequests != s.SuccessfulRequests+s.FailedRequests {
		t.Errorf("Totals do not add up: %+v", s)
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := NewCollector()
	c.RecordOutcome(Outcome{Elapsed: 10 * time.Millisecond, Success: true, StatusCode: 200})
	c.RecordOutcome(Outcome{Elapsed: 20 * time.Millisecond, Success: false, Detail: "boom"})

	snap := c.Snapshot()
	if len(snap.ResponseTimes) != 2 {
		t.Fatalf("Expected 2 response times, got %d", len(snap.ResponseTimes))
	}
	if snap.RequestCount != 2 || snap.SuccessCount != 1 || snap.ErrorCount != 1 {
		t.Errorf("Unexpected snapshot counters: %+v", snap)
	}

	next := c.Snapshot()
	if len(next.ResponseTimes) != 0 {
		t.Errorf("Expected response time buffer to be reset, got %d", len(next.ResponseTimes))
	}
	if next.RequestCount != 2 {
		t.Errorf("Expected cumulative counters to survive snapshot, got %d", next.RequestCount)
	}
}

func TestCollector_ResponseTimeCountAndSum(t *testing.T) {
	c := NewCollector()
	c.RecordOutcome(Outcome{Elapsed: 100 * time.Millisecond, Success: true})
	c.RecordOutcome(Outcome{Elapsed: 300 * time.Millisecond, Success: true})
	c.RecordSuccess()

	stats := c.Statistics()
	if stats.TotalRequests != 3 || stats.ResponseTimeCount != 2 {
		t.Errorf("Expected 3 requests and 2 timed samples, got %d and %d", stats.TotalRequests, stats.ResponseTimeCount)
	}
	if math.Abs(stats.ResponseTimeSum-0.4) > 1e-9 {
		t.Errorf("Expected response time sum 0.4, got %v", stats.ResponseTimeSum)
	}

	c.Snapshot()
	stats = c.Statistics()
	if stats.ResponseTimeCount != 0 || stats.ResponseTimeSum != 0 || stats.TotalRequests != 3 {
		t.Errorf("Expected timed samples to follow the buffer after Snapshot, got %+v", stats)
	}
}

func TestCollector_ResetAndMerge(t *testing.T) {
	a := NewCollector()
	b := NewCollector()
	a.RecordOutcome(Outcome{Elapsed: time.Millisecond, Success: true, StatusCode: 200})
	b.RecordOutcome(Outcome{Elapsed: time.Millisecond, Success: false, StatusCode: 500, Detail: "HTTPError: 500"})
	b.Record("ttfb", 0.2)

	a.Merge(b)
	a.Merge(a)
	s := a.Statistics()
	if s.TotalRequests != 2 || s.FailedRequests != 1 {
		t.Errorf("Unexpected merged counters: %+v", s)
	}
	if s.StatusCodes[500] != 1 || s.Errors["HTTPError"] != 1 {
		t.Errorf("Unexpected merged maps: %v %v", s.StatusCodes, s.Errors)
	}
	if s.CustomMetrics["ttfb"].Count != 1 {
		t.Errorf("Expected merged custom metric")
	}

	a.Reset()
	if s := a.Statistics(); s.TotalRequests != 0 || len(s.StatusCodes) != 0 {
		t.Errorf("Expected empty collector after reset, got %+v", s)
	}
}

func TestCollector_MarkEndFreezesDuration(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewCollector(WithClock(func() time.Time { return now }))
	now = now.Add(2 * time.Second)
	c.MarkEnd()
	now = now.Add(time.Hour)

	if d := c.Statistics().Duration; d != 2 {
		t.Errorf("Expected frozen duration 2s, got %v", d)
	}
}
