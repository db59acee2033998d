// Package loadtest orchestrates a load test session.
//
// A LoadTest runs an optional warmup phase followed by the measured phase,
// each on its own runner and metrics collector. Warmup samples are discarded.
// The measured collector ends up in a TestResult:
//
//	lt := loadtest.New(cfg, loadtest.WithLogger(log))
//	_ = lt.AddScenario(checkout, 3)
//	_ = lt.AddScenario(browse, 1)
//	lt.SetPattern(ramp)
//	result, err := lt.Run(ctx)
package loadtest
