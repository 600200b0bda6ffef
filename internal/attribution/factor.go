// Package attribution decomposes portfolio risk into factor contributions
// and active return into Brinson allocation/selection/interaction effects.
package attribution

import (
	"github.com/riskd/risk-engine/internal/estimator"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

// specificTolerance is the allowed negative drift of the specific-risk
// residual before the decomposition is declared inconsistent.
const specificTolerance = 1e-6

// FactorDecomposition splits total portfolio variance into per-factor
// contributions. Contribution of factor f is e_f·(Σe)_f normalized by total
// portfolio variance; the residual is specific risk. A negative residual
// beyond tolerance signals a modeling inconsistency and fails loudly rather
// than being clipped.
func FactorDecomposition(factors []string, exposure []float64, cov *estimator.Matrix, portfolioVariance float64) ([]models.FactorContribution, float64, error) {
	if len(factors) != len(exposure) || cov.Dim() != len(factors) {
		return nil, 0, errors.InvalidArgument("factor decomposition dimensions disagree: %d factors, %d exposures, %d-dim covariance",
			len(factors), len(exposure), cov.Dim())
	}
	if portfolioVariance <= 0 {
		return nil, 0, errors.NonPositiveVariance(portfolioVariance)
	}

	sigmaE := cov.MulVec(exposure)

	contributions := make([]models.FactorContribution, len(factors))
	var systematic float64
	for f := range factors {
		share := exposure[f] * sigmaE[f] / portfolioVariance
		systematic += share
		contributions[f] = models.FactorContribution{
			Factor:       factors[f],
			Exposure:     exposure[f],
			Contribution: share,
		}
	}

	specific := 1 - systematic
	if specific < -specificTolerance || specific > 1+specificTolerance {
		return nil, 0, errors.Internal("specific risk residual %g outside [0,1]; factor model is inconsistent with portfolio variance", specific)
	}
	if specific < 0 {
		specific = 0
	}
	if specific > 1 {
		specific = 1
	}

	return contributions, specific, nil
}
