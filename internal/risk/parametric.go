package risk

import (
	"context"
	"math"

	"github.com/riskd/risk-engine/internal/estimator"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

// parametricStrategy computes variance-covariance VaR: portfolio variance is
// wᵗΣw over dollar position weights, VaR the normal quantile of the implied
// distribution and CVaR its tail expectation.
type parametricStrategy struct {
	calc *Calculator
}

func (s *parametricStrategy) Estimate(ctx context.Context, input Input) (Estimate, error) {
	params := input.Model.Parameters

	cov, err := s.calc.covariance.Covariance(ctx, input.Snapshot.Symbols(), params.LookbackWindow, estimator.Spec{
		Method:     params.CovMethod,
		EwmaLambda: params.EwmaLambda,
	})
	if err != nil {
		return Estimate{}, err
	}

	weights := make([]float64, len(input.Snapshot.Positions))
	for i, p := range input.Snapshot.Positions {
		weights[i] = p.MarketValue
	}

	variance := cov.QuadraticForm(weights)
	if variance < 0 {
		// A negative quadratic form means the covariance estimate is not
		// PSD; propagate instead of clamping to zero.
		return Estimate{}, errors.NonPositiveVariance(variance)
	}
	sigma := math.Sqrt(variance)

	confidence := params.ConfidenceLevel
	z := NormInv(confidence)
	scale := holdingScale(params.HoldingPeriod)

	return Estimate{
		Method:     models.VaRMethodParametric,
		VaR:        z * sigma * scale,
		CVaR:       sigma * NormPDF(z) / (1 - confidence) * scale,
		Volatility: sigma / input.Snapshot.TotalValue,
	}, nil
}
