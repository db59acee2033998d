package pattern

import (
	"math"
	"sort"
	"time"
)

// CurveFunc maps elapsed seconds to a rate
type CurveFunc func(t float64) float64

// CustomCurve evaluates a user function of elapsed seconds.
// With a positive duration the rate freezes at f(duration) afterwards.
type CustomCurve struct {
	base
	fn       CurveFunc
	duration time.Duration
}

// NewCustomCurve creates a curve pattern. A zero duration leaves the curve unbounded.
func NewCustomCurve(fn CurveFunc, duration time.Duration) (*CustomCurve, error) {
	if fn == nil {
		return nil, invalid("curve function is required")
	}
	if err := checkNonNegative("duration", duration); err != nil {
		return nil, err
	}
	p := &CustomCurve{fn: fn, duration: duration}
	p.init("CustomCurve", func() Source { return SourceFunc(p.at) })
	return p, nil
}

// Length reports the freeze point when one is set
func (p *CustomCurve) Length() (time.Duration, bool) {
	return p.duration, p.duration > 0
}

func (p *CustomCurve) at(elapsed time.Duration) float64 {
	if p.duration > 0 && elapsed >= p.duration {
		elapsed = p.duration
	}
	return p.fn(seconds(elapsed))
}

// Point is one vertex of a piecewise linear curve
type Point struct {
	T    float64 `json:"t" yaml:"t"`       // seconds
	Rate float64 `json:"rate" yaml:"rate"` // requests per second
}

// PiecewiseLinear interpolates linearly between points ordered by T.
// Before the first point and after the last one the curve is flat.
func PiecewiseLinear(points []Point) (CurveFunc, error) {
	if len(points) == 0 {
		return nil, invalid("curve needs at least one point")
	}
	pts := append([]Point(nil), points...)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].T < pts[j].T })
	for i, pt := range pts {
		if math.IsNaN(pt.T) || pt.T < 0 {
			return nil, invalid("point %d has invalid time %v", i, pt.T)
		}
		if err := checkRate("point rate", pt.Rate); err != nil {
			return nil, err
		}
		if i > 0 && pt.T == pts[i-1].T {
			return nil, invalid("duplicate point at t=%v", pt.T)
		}
	}

	return func(t float64) float64 {
		if t <= pts[0].T {
			return pts[0].Rate
		}
		last := pts[len(pts)-1]
		if t >= last.T {
			return last.Rate
		}
		i := sort.Search(len(pts), func(i int) bool { return pts[i].T > t })
		a, b := pts[i-1], pts[i]
		frac := (t - a.T) / (b.T - a.T)
		return a.Rate + frac*(b.Rate-a.Rate)
	}, nil
}
