package estimator

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

type stubReturns struct {
	series map[string][]float64
}

func (s *stubReturns) GetReturns(_ context.Context, id string, window int) ([]float64, error) {
	returns, ok := s.series[id]
	if !ok {
		return nil, errors.DataUnavailable(id)
	}
	if window > 0 && window < len(returns) {
		return returns[len(returns)-window:], nil
	}
	return returns, nil
}

func testSeries() *stubReturns {
	n := 60
	a := make([]float64, n)
	b := make([]float64, n)
	for t := 0; t < n; t++ {
		a[t] = 0.01 * math.Sin(float64(t)/3)
		b[t] = 0.008*math.Sin(float64(t)/3) + 0.004*math.Cos(float64(t)/5)
	}
	return &stubReturns{series: map[string][]float64{"A": a, "B": b}}
}

func TestEwmaWeights(t *testing.T) {
	t.Run("sum to one within tolerance", func(t *testing.T) {
		for _, obs := range []int{2, 10, 252} {
			weights, err := ewmaWeights(obs, 0.94)
			require.NoError(t, err)

			var sum float64
			for _, w := range weights {
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		}
	})

	t.Run("most recent observation carries the largest weight", func(t *testing.T) {
		weights, err := ewmaWeights(20, 0.94)
		require.NoError(t, err)

		for i := 0; i < len(weights)-1; i++ {
			assert.Less(t, weights[i], weights[i+1])
		}
	})
}

func TestSampleCovariance(t *testing.T) {
	est := NewEstimator(testSeries())
	cov, err := est.Covariance(context.Background(), []string{"A", "B"}, 60, Spec{Method: models.CovMethodSample})
	require.NoError(t, err)

	t.Run("exactly symmetric", func(t *testing.T) {
		for i := 0; i < cov.Dim(); i++ {
			for j := 0; j < cov.Dim(); j++ {
				assert.Equal(t, cov.At(i, j), cov.At(j, i))
			}
		}
	})

	t.Run("positive diagonal", func(t *testing.T) {
		for i := 0; i < cov.Dim(); i++ {
			assert.Greater(t, cov.At(i, i), 0.0)
		}
	})
}

func TestEWMACovariance(t *testing.T) {
	est := NewEstimator(testSeries())

	cov, err := est.Covariance(context.Background(), []string{"A", "B"}, 60, Spec{
		Method:     models.CovMethodEWMA,
		EwmaLambda: 0.94,
	})
	require.NoError(t, err)

	for i := 0; i < cov.Dim(); i++ {
		for j := 0; j < cov.Dim(); j++ {
			assert.Equal(t, cov.At(i, j), cov.At(j, i))
		}
	}

	t.Run("rejects lambda outside (0,1)", func(t *testing.T) {
		_, err := EWMACovariance([][]float64{{0.01, 0.02}, {0.02, 0.01}}, 1.0)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})
}

func TestSeriesInsufficientHistory(t *testing.T) {
	stub := &stubReturns{series: map[string][]float64{"A": {0.01, 0.02, 0.01}}}
	est := NewEstimator(stub)

	_, err := est.Series(context.Background(), []string{"A"}, 252)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInsufficientHistory))
	assert.Contains(t, err.Error(), "A")
}

func TestCorrelationToCovariance(t *testing.T) {
	vols := []float64{0.2, 0.1}
	index := map[string]int{"equity": 0, "rates": 1}

	cov, err := CorrelationToCovariance(vols, index, []models.FactorCorrelation{
		{FactorA: "equity", FactorB: "rates", Correlation: -0.3},
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.04, cov.At(0, 0), 1e-12)
	assert.InDelta(t, 0.01, cov.At(1, 1), 1e-12)
	assert.InDelta(t, -0.3*0.2*0.1, cov.At(0, 1), 1e-12)
	assert.Equal(t, cov.At(0, 1), cov.At(1, 0))

	t.Run("rejects out-of-range correlation", func(t *testing.T) {
		_, err := CorrelationToCovariance(vols, index, []models.FactorCorrelation{
			{FactorA: "equity", FactorB: "rates", Correlation: 1.5},
		})
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})

	t.Run("rejects unknown factor", func(t *testing.T) {
		_, err := CorrelationToCovariance(vols, index, []models.FactorCorrelation{
			{FactorA: "equity", FactorB: "fx", Correlation: 0.5},
		})
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})
}
