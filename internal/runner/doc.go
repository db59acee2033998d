// Package runner is the execution engine of a load test.
//
// Once per tick the runner samples the target rate of a pattern, launches
// that tick's share of executions spaced evenly across it, and records every
// outcome into a metrics collector. A weighted semaphore bounds concurrency;
// launches beyond the ceiling queue in FIFO order and the wait shows up as
// latency. On termination no new work is launched and outstanding executions
// get a grace period before they are cancelled.
package runner
