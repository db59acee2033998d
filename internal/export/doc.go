// Package export publishes load test metrics for Prometheus scraping.
package export
