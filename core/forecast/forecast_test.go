package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// A constant input fills the history and the estimate matches it whatever the
// discount factor.
func TestFiniteExponentialConvergesToConstant(t *testing.T) {
	for _, df := range []float64{0, 0.3, 0.5, 1} {
		f := NewFiniteExponential([]float64{9, -9}, DefaultHistory, df)
		x := []float64{1.5, -2}
		for i := 0; i < DefaultHistory; i++ {
			f.Measure(x)
		}
		assert.InDeltaSlice(t, x, f.Value(), 1e-12, "df=%v", df)
		assert.Len(t, f.History(), DefaultHistory)
	}
}

func TestFiniteExponentialWeights(t *testing.T) {
	f := NewFiniteExponential([]float64{0}, 3, 0.5)
	f.Measure([]float64{4})
	// (4 + 0.5*0) / 1.5
	assert.InDelta(t, 4/1.5, f.Value()[0], 1e-12)
	f.Measure([]float64{8})
	// (8 + 0.5*4 + 0.25*0) / 1.75
	assert.InDelta(t, 10/1.75, f.Value()[0], 1e-12)
	f.Measure([]float64{8})
	// seed evicted: (8 + 4 + 1) / 1.75
	assert.InDelta(t, 13/1.75, f.Value()[0], 1e-12)
}

func TestFiniteExponentialZeroDiscountIsLastValue(t *testing.T) {
	f := NewFiniteExponential(make([]float64, 2), DefaultHistory, DefaultDiscountFactor)
	f.Measure([]float64{1, 2})
	f.Measure([]float64{3, 4})
	assert.Equal(t, []float64{3, 4}, f.Value())
}

func TestLastValue(t *testing.T) {
	var f Forecast = NewLastValue([]float64{1})
	assert.Equal(t, []float64{1}, f.Value())
	f.Measure([]float64{2, 3})
	assert.Equal(t, []float64{2, 3}, f.Value())
}

func TestLastValueKeepsReturnedSlice(t *testing.T) {
	f := NewLastValue([]float64{1, 2})
	held := f.Value()
	f.Measure([]float64{5, 6})
	assert.Equal(t, []float64{1, 2}, held)
	assert.Equal(t, []float64{5, 6}, f.Value())
}
