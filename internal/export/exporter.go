package export

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studiowebux/loadtest/internal/metrics"
	"github.com/studiowebux/loadtest/internal/runner"
)

// DefaultNamespace prefixes every exported metric name
const DefaultNamespace = "loadtest"

// Source returns the collector of the phase being exported, or nil when no run is active
type Source func() *metrics.Collector

// Exporter exposes load test metrics to Prometheus.
//
// Aggregate statistics are read from the Source on every scrape. Per-scenario
// latency histograms are fed live through Observe, so the exporter can be
// registered as a runner.Observer.
type Exporter struct {
	source Source

	requests    *prometheus.Desc
	outcomes    *prometheus.Desc
	statusCodes *prometheus.Desc
	errors      *prometheus.Desc
	latency     *prometheus.Desc
	throughput  *prometheus.Desc
	duration    *prometheus.Desc
	custom      *prometheus.Desc

	scenarioLatency *prometheus.HistogramVec
	scenarioResults *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates an exporter and registers it on a private registry
func New(namespace string, source Source) *Exporter {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	e := &Exporter{
		source: source,
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_total"),
			"Total number of executed requests",
			nil, nil,
		),
		outcomes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_by_outcome_total"),
			"Executed requests by outcome",
			[]string{"outcome"}, nil,
		),
		statusCodes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "status_codes_total"),
			"Responses by status code",
			[]string{"code"}, nil,
		),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "errors_total"),
			"Failed requests by error type",
			[]string{"type"}, nil,
		),
		latency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "response_time_seconds"),
			"Response time of executed requests",
			nil, nil,
		),
		throughput: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "throughput_requests_per_second"),
			"Requests per second since the phase started",
			nil, nil,
		),
		duration: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "duration_seconds"),
			"Elapsed time of the current phase",
			nil, nil,
		),
		custom: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "custom_metric"),
			"Custom metrics recorded by scenarios",
			[]string{"name"}, nil,
		),
		scenarioLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scenario_duration_seconds",
				Help:      "Response time per scenario, queue wait included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scenario"},
		),
		scenarioResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scenario_requests_total",
				Help:      "Executed requests per scenario and outcome",
			},
			[]string{"scenario", "outcome"},
		),
		registry: prometheus.NewRegistry(),
	}

	e.registry.MustRegister(e, e.scenarioLatency, e.scenarioResults)
	return e
}

// Registry returns the registry holding the exporter's metrics
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Observe implements runner.Observer
func (e *Exporter) Observe(s runner.Sample) {
	e.scenarioLatency.WithLabelValues(s.Scenario).Observe(s.Elapsed.Seconds())
	e.scenarioResults.WithLabelValues(s.Scenario, outcome(s.Success)).Inc()
}

// Describe implements prometheus.Collector
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.requests
	ch <- e.outcomes
	ch <- e.statusCodes
	ch <- e.errors
	ch <- e.latency
	ch <- e.throughput
	ch <- e.duration
	ch <- e.custom
}

// Collect implements prometheus.Collector
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	if e.source == nil {
		return
	}
	c := e.source()
	if c == nil {
		return
	}
	stats := c.Statistics()

	ch <- prometheus.MustNewConstMetric(e.requests, prometheus.CounterValue, float64(stats.TotalRequests))
	ch <- prometheus.MustNewConstMetric(e.outcomes, prometheus.CounterValue, float64(stats.SuccessfulRequests), outcome(true))
	ch <- prometheus.MustNewConstMetric(e.outcomes, prometheus.CounterValue, float64(stats.FailedRequests), outcome(false))
	for code, count := range stats.StatusCodes {
		ch <- prometheus.MustNewConstMetric(e.statusCodes, prometheus.CounterValue, float64(count), strconv.Itoa(code))
	}
	for kind, count := range stats.Errors {
		ch <- prometheus.MustNewConstMetric(e.errors, prometheus.CounterValue, float64(count), kind)
	}

	quantiles := map[float64]float64{
		0.5:   stats.P50ResponseTime,
		0.95:  stats.P95ResponseTime,
		0.99:  stats.P99ResponseTime,
		0.999: stats.P999ResponseTime,
	}
	ch <- prometheus.MustNewConstSummary(e.latency, uint64(stats.ResponseTimeCount), stats.ResponseTimeSum, quantiles)

	ch <- prometheus.MustNewConstMetric(e.throughput, prometheus.GaugeValue, stats.Throughput)
	ch <- prometheus.MustNewConstMetric(e.duration, prometheus.GaugeValue, stats.Duration)
	for name, s := range stats.CustomMetrics {
		ch <- prometheus.MustNewConstMetric(e.custom, prometheus.GaugeValue, s.Mean, name)
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
