/*
Package metrics collects per-request outcomes during a load test and turns them
into aggregate statistics.

A Collector is owned by exactly one test phase. Executions record into it
concurrently; Statistics may be called at any time and reflects every record
call that completed before it. Each record call is atomic with respect to
readers, so TotalRequests always equals SuccessfulRequests + FailedRequests in a
snapshot.

Percentiles use linear interpolation between order statistics (R-7):

	k := (n-1) * p / 100
	f := floor(k)
	c := min(f+1, n-1)
	value := sorted[f]*(1-(k-f)) + sorted[c]*(k-f)

With no samples every statistic is 0.
*/
package metrics
