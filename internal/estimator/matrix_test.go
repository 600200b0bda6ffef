package estimator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/risk-engine/pkg/utils/errors"
)

func TestCholesky(t *testing.T) {
	t.Run("factorizes a positive definite matrix", func(t *testing.T) {
		m := MatrixFromRows([][]float64{
			{4, 2},
			{2, 3},
		})

		l, err := Cholesky(m)
		require.NoError(t, err)

		// Reconstruct L·Lᵗ and compare against the input.
		for i := 0; i < m.Dim(); i++ {
			for j := 0; j < m.Dim(); j++ {
				var sum float64
				for k := 0; k < m.Dim(); k++ {
					sum += l.At(i, k) * l.At(j, k)
				}
				assert.InDelta(t, m.At(i, j), sum, 1e-12)
			}
		}
	})

	t.Run("singular matrix fails with a typed error", func(t *testing.T) {
		// Second row is a multiple of the first, so the matrix has rank 1.
		m := MatrixFromRows([][]float64{
			{1, 2},
			{2, 4},
		})

		_, err := Cholesky(m)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNonPSDCovariance))
	})

	t.Run("negative definite matrix fails", func(t *testing.T) {
		m := MatrixFromRows([][]float64{
			{-1, 0},
			{0, -1},
		})

		_, err := Cholesky(m)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNonPSDCovariance))
	})
}

func TestValidatePSD(t *testing.T) {
	good := MatrixFromRows([][]float64{{2, 0.5}, {0.5, 1}})
	assert.NoError(t, ValidatePSD(good))

	bad := MatrixFromRows([][]float64{{1, 2}, {2, 1}})
	assert.Error(t, ValidatePSD(bad))
}

func TestQuadraticForm(t *testing.T) {
	m := MatrixFromRows([][]float64{
		{2, 1},
		{1, 3},
	})
	// wᵗMw with w = (1, 2): 2 + 2·(1·2) + 3·4 = 18.
	assert.InDelta(t, 18.0, m.QuadraticForm([]float64{1, 2}), 1e-12)
}

func TestCorrelatedShock(t *testing.T) {
	m := MatrixFromRows([][]float64{
		{1, 0.8},
		{0.8, 1},
	})
	l, err := Cholesky(m)
	require.NoError(t, err)

	// With z = (1, 0) the shock is the first column of L.
	shock := CorrelatedShock(l, []float64{1, 0})
	assert.InDelta(t, 1.0, shock[0], 1e-12)
	assert.InDelta(t, 0.8, shock[1], 1e-12)
}

func TestSymmetrize(t *testing.T) {
	m := MatrixFromRows([][]float64{
		{1, 0.5},
		{0.3, 1},
	})
	m.Symmetrize()
	assert.InDelta(t, 0.4, m.At(0, 1), 1e-12)
	assert.Equal(t, m.At(0, 1), m.At(1, 0))
}

func TestAddJitter(t *testing.T) {
	m := NewMatrix(2)
	m.AddJitter(1e-8)
	assert.Equal(t, 1e-8, m.At(0, 0))
	assert.Equal(t, 0.0, m.At(0, 1))
	assert.False(t, math.IsNaN(m.At(1, 1)))
}
