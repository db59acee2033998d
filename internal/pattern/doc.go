// Package pattern generates time-varying target rates in requests per second.
//
// A Pattern is a state machine keyed by the time elapsed since its own start.
// Each call to Generate returns a fresh Sequence whose phase starts at t=0:
//
//	seq := p.Generate()
//	for {
//		rate, ok := seq.Next(ctx)
//		if !ok {
//			break
//		}
//		// launch work at rate
//	}
//
// Source exposes the same rate function without the cadence so callers can
// evaluate a pattern at arbitrary offsets.
package pattern
