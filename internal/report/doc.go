// Package report renders load test results as a console summary, a JSON
// document or Prometheus text exposition. Further formats can be registered.
package report
