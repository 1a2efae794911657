// Package forecast estimates the next value of a measured vector series.
package forecast

import (
	"gonum.org/v1/gonum/floats"
)

// Forecast is fed one measurement per iteration and exposes its current
// estimate.
type Forecast interface {
	Measure(x []float64)
	Value() []float64
}

// LastValue forecasts the last measurement.
type LastValue struct {
	x []float64
}

// NewLastValue returns a forecast seeded with x0.
func NewLastValue(x0 []float64) *LastValue {
	return &LastValue{x: append([]float64(nil), x0...)}
}

func (f *LastValue) Measure(x []float64) { f.x = append([]float64(nil), x...) }
func (f *LastValue) Value() []float64    { return f.x }

// FiniteExponential is a discount weighted mean over the last N measurements.
// The i-th most recent sample weighs DiscountFactor^i and the weights are
// normalized by those actually present.
type FiniteExponential struct {
	N              int
	DiscountFactor float64

	history [][]float64
	x       []float64
}

// Default parameters of the flexibility needs forecast.
const (
	DefaultHistory        = 5
	DefaultDiscountFactor = 0
)

// NewFiniteExponential returns a forecast seeded with x0. The seed counts as
// the first sample of the history.
func NewFiniteExponential(x0 []float64, n int, discount float64) *FiniteExponential {
	if n < 1 {
		n = 1
	}
	seed := append([]float64(nil), x0...)
	return &FiniteExponential{
		N:              n,
		DiscountFactor: discount,
		history:        [][]float64{seed},
		x:              append([]float64(nil), seed...),
	}
}

// Measure records x as the most recent sample, evicting the oldest one when
// the history is full, and recomputes the estimate.
func (f *FiniteExponential) Measure(x []float64) {
	if len(f.history) == f.N {
		f.history = f.history[:f.N-1]
	}
	f.history = append([][]float64{append([]float64(nil), x...)}, f.history...)

	est := make([]float64, len(x))
	weight, total := 1.0, 0.0
	for _, h := range f.history {
		if len(h) == len(est) {
			floats.AddScaled(est, weight, h)
			total += weight
		}
		weight *= f.DiscountFactor
	}
	floats.Scale(1/total, est)
	f.x = est
}

// Value returns the current estimate.
func (f *FiniteExponential) Value() []float64 { return f.x }

// History returns the retained samples, most recent first.
func (f *FiniteExponential) History() [][]float64 { return f.history }
