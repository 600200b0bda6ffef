package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	xs := []float64{10, 20, 30, 40, 50}

	assert.Equal(t, 10.0, Percentile(xs, 0))
	assert.Equal(t, 50.0, Percentile(xs, 1))
	assert.Equal(t, 30.0, Percentile(xs, 0.5))
	// Interpolated between the 2nd and 3rd order statistics.
	assert.InDelta(t, 25.0, Percentile(xs, 0.375), 1e-12)
}

func TestNormInvRoundTrips(t *testing.T) {
	for _, p := range []float64{0.01, 0.05, 0.5, 0.95, 0.99} {
		z := NormInv(p)
		assert.InDelta(t, p, NormCDF(z), 1e-8, "p=%g", p)
	}

	assert.InDelta(t, 2.3263, NormInv(0.99), 1e-4)
	assert.Equal(t, 0.0, NormInv(0.5))
}

func TestMaxDrawdown(t *testing.T) {
	// Path: 1.0 -> 1.1 -> 0.88 -> 0.968. Peak 1.1, trough 0.88.
	returns := []float64{0.10, -0.20, 0.10}
	assert.InDelta(t, 0.20, MaxDrawdown(returns), 1e-12)

	assert.Equal(t, 0.0, MaxDrawdown([]float64{0.01, 0.02, 0.03}))
}

func TestBeta(t *testing.T) {
	benchmark := []float64{0.01, -0.02, 0.015, 0.005, -0.01}

	doubled := make([]float64, len(benchmark))
	for i, r := range benchmark {
		doubled[i] = 2 * r
	}

	assert.InDelta(t, 2.0, Beta(doubled, benchmark), 1e-12)
	assert.InDelta(t, 1.0, Beta(benchmark, benchmark), 1e-12)
}

func TestSharpeAndSortino(t *testing.T) {
	returns := []float64{0.01, 0.02, -0.005, 0.015, -0.01, 0.02}

	sharpe := SharpeRatio(returns, 0.02, 252)
	sortino := SortinoRatio(returns, 0.02, 252)

	assert.False(t, math.IsNaN(sharpe))
	assert.False(t, math.IsNaN(sortino))
	// Downside deviation only counts below-target observations, so Sortino
	// exceeds Sharpe for a series with more upside than downside spread.
	assert.Greater(t, sortino, sharpe)
}

func TestShockSourceDeterminism(t *testing.T) {
	a := NewShockSource(7)
	b := NewShockSource(7)

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Normal(), b.Normal())
	}
}
