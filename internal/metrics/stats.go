package metrics

import (
	"math"
	"sort"
)

// Statistics is a consistent snapshot of a Collector.
// Response times are expressed in seconds.
type Statistics struct {
	TotalRequests      int64              `json:"total_requests"`
	SuccessfulRequests int64              `json:"successful_requests"`
	FailedRequests     int64              `json:"failed_requests"`
	SuccessRate        float64            `json:"success_rate"`
	ErrorRate          float64            `json:"error_rate"`
	Duration           float64            `json:"duration"`
	Throughput         float64            `json:"throughput"`
	ResponseTimeCount  int64              `json:"response_time_count"`
	ResponseTimeSum    float64            `json:"response_time_sum"`
	MinResponseTime    float64            `json:"min_response_time"`
	MaxResponseTime    float64            `json:"max_response_time"`
	MeanResponseTime   float64            `json:"mean_response_time"`
	MedianResponseTime float64            `json:"median_response_time"`
	P50ResponseTime    float64            `json:"p50_response_time"`
	P95ResponseTime    float64            `json:"p95_response_time"`
	P99ResponseTime    float64            `json:"p99_response_time"`
	P999ResponseTime   float64            `json:"p999_response_time"`
	StatusCodes        map[int]int64      `json:"status_codes"`
	Errors             map[string]int64   `json:"errors"`
	CustomMetrics      map[string]Summary `json:"custom_metrics"`
}

// Summary describes the distribution of one custom metric
type Summary struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// Map returns the statistics keyed the way report generators and dashboards expect them
func (s Statistics) Map() map[string]any {
	statusCodes := make(map[int]int64, len(s.StatusCodes))
	for code, count := range s.StatusCodes {
		statusCodes[code] = count
	}
	errs := make(map[string]int64, len(s.Errors))
	for kind, count := range s.Errors {
		errs[kind] = count
	}
	custom := make(map[string]any, len(s.CustomMetrics))
	for name, sum := range s.CustomMetrics {
		custom[name] = map[string]any{
			"count":  sum.Count,
			"min":    sum.Min,
			"max":    sum.Max,
			"mean":   sum.Mean,
			"median": sum.Median,
			"p95":    sum.P95,
			"p99":    sum.P99,
		}
	}

	return map[string]any{
		"total_requests":       s.TotalRequests,
		"successful_requests":  s.SuccessfulRequests,
		"failed_requests":      s.FailedRequests,
		"success_rate":         s.SuccessRate,
		"error_rate":           s.ErrorRate,
		"duration":             s.Duration,
		"throughput":           s.Throughput,
		"min_response_time":    s.MinResponseTime,
		"max_response_time":    s.MaxResponseTime,
		"mean_response_time":   s.MeanResponseTime,
		"median_response_time": s.MedianResponseTime,
		"p50_response_time":    s.P50ResponseTime,
		"p95_response_time":    s.P95ResponseTime,
		"p99_response_time":    s.P99ResponseTime,
		"p999_response_time":   s.P999ResponseTime,
		"status_codes":         statusCodes,
		"errors":               errs,
		"custom_metrics":       custom,
	}
}

// Percentile calculates the p-th percentile (0-100) of an ascending slice
// using linear interpolation between order statistics (R-7).
// An empty slice yields 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	k := float64(n-1) * p / 100
	f := int(math.Floor(k))
	c := f + 1
	if c > n-1 {
		c = n - 1
	}
	frac := k - float64(f)
	return sorted[f]*(1-frac) + sorted[c]*frac
}

// summarize copies and sorts values, then computes the distribution summary
func summarize(values []float64) (Summary, []float64) {
	if len(values) == 0 {
		return Summary{}, nil
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}

	return Summary{
		Count:  len(sorted),
		Sum:    total,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   total / float64(len(sorted)),
		Median: Percentile(sorted, 50),
		P95:    Percentile(sorted, 95),
		P99:    Percentile(sorted, 99),
	}, sorted
}
