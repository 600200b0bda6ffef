package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/risk-engine/internal/estimator"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

func TestBrinson(t *testing.T) {
	groups := []Group{
		{Name: "equity", Wp: 0.60, Wb: 0.50, Rp: 0.08, Rb: 0.06},
		{Name: "bond", Wp: 0.30, Wb: 0.40, Rp: 0.03, Rb: 0.035},
		{Name: "cash", Wp: 0.10, Wb: 0.10, Rp: 0.01, Rb: 0.01},
	}

	result, err := Brinson("asset_class", groups)
	require.NoError(t, err)
	require.Len(t, result.Effects, 3)

	t.Run("per-group identity holds", func(t *testing.T) {
		for _, e := range result.Effects {
			assert.InDelta(t, e.ActiveReturn, e.Allocation+e.Selection+e.Interaction, 1e-12, "group %s", e.Group)
		}
	})

	t.Run("totals reconcile to active return", func(t *testing.T) {
		effectSum := result.TotalAllocation + result.TotalSelection + result.TotalInteraction
		assert.InDelta(t, result.TotalActiveReturn, effectSum, 1e-12)

		// Portfolio return 0.058, benchmark return 0.045.
		assert.InDelta(t, 0.058-0.045, result.TotalActiveReturn, 1e-12)
	})

	t.Run("effect formulas", func(t *testing.T) {
		equity := result.Effects[0]
		assert.InDelta(t, (0.60-0.50)*0.06, equity.Allocation, 1e-12)
		assert.InDelta(t, 0.50*(0.08-0.06), equity.Selection, 1e-12)
		assert.InDelta(t, (0.60-0.50)*(0.08-0.06), equity.Interaction, 1e-12)
	})
}

func TestFactorDecomposition(t *testing.T) {
	factors := []string{"equity_market", "rates"}
	cov := estimator.MatrixFromRows([][]float64{
		{0.04, -0.006},
		{-0.006, 0.01},
	})
	exposure := []float64{0.8, 0.3}

	t.Run("contributions sum to one minus specific", func(t *testing.T) {
		// Use the full quadratic form as portfolio variance; specific risk is
		// then exactly zero.
		variance := cov.QuadraticForm(exposure)
		contributions, specific, err := FactorDecomposition(factors, exposure, cov, variance)
		require.NoError(t, err)
		require.Len(t, contributions, 2)

		var systematic float64
		for _, c := range contributions {
			systematic += c.Contribution
		}
		assert.InDelta(t, 1.0, systematic+specific, 1e-9)
		assert.InDelta(t, 0.0, specific, 1e-9)
	})

	t.Run("specific risk in unit interval when portfolio variance exceeds factor variance", func(t *testing.T) {
		factorVariance := cov.QuadraticForm(exposure)
		portfolioVariance := factorVariance / 0.8

		contributions, specific, err := FactorDecomposition(factors, exposure, cov, portfolioVariance)
		require.NoError(t, err)

		var systematic float64
		for _, c := range contributions {
			systematic += c.Contribution
		}
		assert.InDelta(t, 0.8, systematic, 1e-9)
		assert.InDelta(t, 0.2, specific, 1e-9)
	})

	t.Run("residual outside unit interval fails loud", func(t *testing.T) {
		// Portfolio variance far below the factor variance forces systematic
		// share above one.
		_, _, err := FactorDecomposition(factors, exposure, cov, cov.QuadraticForm(exposure)/2)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
	})

	t.Run("dimension mismatch rejected", func(t *testing.T) {
		_, _, err := FactorDecomposition([]string{"equity_market"}, exposure, cov, 0.01)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})

	t.Run("non-positive variance rejected", func(t *testing.T) {
		_, _, err := FactorDecomposition(factors, exposure, cov, 0)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNonPositiveVariance))
	})
}
