package risk

import (
	"context"

	"github.com/riskd/risk-engine/pkg/models"
)

// PositionContributions apportions total VaR across positions proportionally
// to each position's marginal contribution: the covariance of its dollar
// return with the portfolio P&L, normalized by portfolio variance. The
// fractions sum to one by construction.
func (c *Calculator) PositionContributions(ctx context.Context, input Input, totalVaR float64) ([]models.PositionContribution, error) {
	series, err := c.positionSeries(ctx, input)
	if err != nil {
		return nil, err
	}

	pnl := portfolioPnL(input.Snapshot, series)
	pnlMean := Mean(pnl)

	var portfolioVariance float64
	for _, v := range pnl {
		portfolioVariance += (v - pnlMean) * (v - pnlMean)
	}

	contributions := make([]models.PositionContribution, len(input.Snapshot.Positions))
	for i, p := range input.Snapshot.Positions {
		var cov float64
		sMean := Mean(series[i])
		for t, r := range series[i] {
			cov += (p.MarketValue*r - p.MarketValue*sMean) * (pnl[t] - pnlMean)
		}

		fraction := 0.0
		if portfolioVariance != 0 {
			fraction = cov / portfolioVariance
		}

		contributions[i] = models.PositionContribution{
			Symbol:       p.Symbol,
			Value:        p.MarketValue,
			Contribution: fraction * totalVaR,
			Percentage:   fraction,
		}
	}

	return contributions, nil
}
