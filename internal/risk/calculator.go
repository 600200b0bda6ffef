// Package risk implements the VaR/CVaR estimation strategies. Historical
// simulation, parametric variance-covariance and Monte Carlo all share one
// Estimator contract and one portfolio valuation model, so they are
// interchangeable per risk model and independently testable.
package risk

import (
	"context"
	"math"
	"sort"

	"github.com/riskd/risk-engine/internal/estimator"
	"github.com/riskd/risk-engine/internal/marketdata"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

// Input is the request handed to a VaR estimation strategy.
type Input struct {
	Snapshot *models.PortfolioSnapshot
	Model    models.RiskModel
}

// Estimate is the holding-period-scaled, confidence-level-tagged result every
// strategy produces.
type Estimate struct {
	Method     models.VaRMethod
	VaR        float64
	CVaR       float64
	Volatility float64
}

// VaREstimator is the common contract behind the three methodologies.
type VaREstimator interface {
	Estimate(ctx context.Context, input Input) (Estimate, error)
}

// Calculator owns the estimation strategies and their shared data access.
type Calculator struct {
	returns     marketdata.ReturnsFeed
	covariance  *estimator.Estimator
	workerCount int
	defaultSeed int64
	log         *logger.Logger
}

// NewCalculator creates a risk calculator over the given feeds.
func NewCalculator(returns marketdata.ReturnsFeed, covariance *estimator.Estimator, workerCount int, defaultSeed int64) *Calculator {
	if workerCount <= 0 {
		workerCount = 4
	}
	return &Calculator{
		returns:     returns,
		covariance:  covariance,
		workerCount: workerCount,
		defaultSeed: defaultSeed,
		log:         logger.GetLogger("risk.calculator"),
	}
}

// ForModel selects the estimation strategy for a resolved risk model.
func (c *Calculator) ForModel(model models.RiskModel) VaREstimator {
	switch model.Method {
	case models.VaRMethodParametric:
		return &parametricStrategy{calc: c}
	case models.VaRMethodMonteCarlo:
		return &monteCarloStrategy{calc: c}
	default:
		return &historicalStrategy{calc: c}
	}
}

// positionSeries fetches aligned return series for every position over the
// model's lookback window.
func (c *Calculator) positionSeries(ctx context.Context, input Input) ([][]float64, error) {
	lookback := input.Model.Parameters.LookbackWindow
	series := make([][]float64, len(input.Snapshot.Positions))
	for i, p := range input.Snapshot.Positions {
		returns, err := c.returns.GetReturns(ctx, p.Symbol, lookback)
		if err != nil {
			return nil, err
		}
		if len(returns) < lookback {
			return nil, errors.InsufficientHistory(p.Symbol, len(returns), lookback)
		}
		series[i] = returns[len(returns)-lookback:]
	}
	return series, nil
}

// portfolioPnL revalues the snapshot under each joint observation.
func portfolioPnL(snapshot *models.PortfolioSnapshot, series [][]float64) []float64 {
	if len(series) == 0 {
		return nil
	}
	obs := len(series[0])
	pnl := make([]float64, obs)
	for i, p := range snapshot.Positions {
		for t := 0; t < obs; t++ {
			pnl[t] += p.MarketValue * series[i][t]
		}
	}
	return pnl
}

// tailMetrics computes VaR and CVaR from a P&L distribution. VaR is the loss
// at the (1-confidence) empirical percentile with linear interpolation
// between order statistics; CVaR is the mean of all losses at or beyond it.
func tailMetrics(pnl []float64, confidence float64) (float64, float64) {
	losses := make([]float64, len(pnl))
	for i, v := range pnl {
		losses[i] = -v
	}
	sort.Float64s(losses)

	varLoss := percentileSorted(losses, confidence)

	var tailSum float64
	var tailCount int
	for i := len(losses) - 1; i >= 0; i-- {
		if losses[i] < varLoss {
			break
		}
		tailSum += losses[i]
		tailCount++
	}
	cvar := varLoss
	if tailCount > 0 {
		cvar = tailSum / float64(tailCount)
	}
	return varLoss, cvar
}

// minTailObservations is the smallest sample that gives a stable tail
// estimate at the given confidence level.
func minTailObservations(confidence float64) int {
	return int(math.Ceil(1 / (1 - confidence)))
}

func holdingScale(holdingPeriod int) float64 {
	if holdingPeriod <= 1 {
		return 1
	}
	return math.Sqrt(float64(holdingPeriod))
}
