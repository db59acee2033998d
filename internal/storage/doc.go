// Package storage keeps the history of load test runs in SQLite.
//
// A Manager stores one row per run with its final statistics plus the
// status code and error breakdown. A Recorder registered as a runner
// observer persists every sample of the measured phase in batches.
package storage
