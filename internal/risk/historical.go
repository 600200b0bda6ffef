package risk

import (
	"context"

	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

// historicalStrategy revalues the snapshot under each of the last
// lookback-window joint observations and reads VaR/CVaR off the empirical
// P&L distribution.
type historicalStrategy struct {
	calc *Calculator
}

func (s *historicalStrategy) Estimate(ctx context.Context, input Input) (Estimate, error) {
	params := input.Model.Parameters
	confidence := params.ConfidenceLevel

	if minObs := minTailObservations(confidence); params.LookbackWindow < minObs {
		return Estimate{}, errors.InsufficientHistory(input.Snapshot.PortfolioID, params.LookbackWindow, minObs)
	}

	series, err := s.calc.positionSeries(ctx, input)
	if err != nil {
		return Estimate{}, err
	}

	pnl := portfolioPnL(input.Snapshot, series)
	varLoss, cvar := tailMetrics(pnl, confidence)

	scale := holdingScale(params.HoldingPeriod)

	portfolioReturns := make([]float64, len(pnl))
	for i, v := range pnl {
		portfolioReturns[i] = v / input.Snapshot.TotalValue
	}

	return Estimate{
		Method:     models.VaRMethodHistorical,
		VaR:        varLoss * scale,
		CVaR:       cvar * scale,
		Volatility: StdDev(portfolioReturns),
	}, nil
}
