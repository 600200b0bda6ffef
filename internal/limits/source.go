package limits

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/riskd/risk-engine/internal/marketdata"
	"github.com/riskd/risk-engine/internal/portfolio"
	"github.com/riskd/risk-engine/internal/risk"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

// CalculatedSource computes limit metrics from live portfolio data. All
// values are expressed as fractions of portfolio value so thresholds are
// portable across portfolio sizes.
type CalculatedSource struct {
	portfolios marketdata.PortfolioProvider
	registry   marketdata.ModelRegistry
	builder    *portfolio.Builder
	calculator *risk.Calculator
}

// NewCalculatedSource creates a metric source over the engine's data access.
func NewCalculatedSource(
	portfolios marketdata.PortfolioProvider,
	registry marketdata.ModelRegistry,
	builder *portfolio.Builder,
	calculator *risk.Calculator,
) *CalculatedSource {
	return &CalculatedSource{
		portfolios: portfolios,
		registry:   registry,
		builder:    builder,
		calculator: calculator,
	}
}

// CurrentValue implements MetricSource.
func (s *CalculatedSource) CurrentValue(ctx context.Context, limit models.RiskLimit, date time.Time) (float64, error) {
	snapshot, err := s.snapshot(ctx, limit.PortfolioID, date)
	if err != nil {
		return 0, err
	}

	switch limit.Type {
	case models.LimitTypeVaR:
		return s.varFraction(ctx, snapshot, limit)
	case models.LimitTypeConcentration:
		return s.concentration(snapshot, limit), nil
	case models.LimitTypeExposure:
		return s.factorExposure(ctx, snapshot, limit)
	case models.LimitTypeSensitivity:
		return s.sensitivity(ctx, snapshot, limit)
	default:
		return 0, errors.InvalidArgument("unsupported limit type: %s", limit.Type)
	}
}

func (s *CalculatedSource) snapshot(ctx context.Context, portfolioID string, date time.Time) (*models.PortfolioSnapshot, error) {
	positions, err := s.portfolios.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return s.builder.BuildSnapshot(ctx, portfolioID, positions, date)
}

// varFraction computes VaR under the limit's model as a fraction of
// portfolio value.
func (s *CalculatedSource) varFraction(ctx context.Context, snapshot *models.PortfolioSnapshot, limit models.RiskLimit) (float64, error) {
	modelID := limit.Parameters["model_id"]
	if modelID == "" {
		return 0, errors.InvalidArgument("var limit %s names no model_id parameter", limit.ID)
	}
	model, err := s.registry.GetModel(ctx, modelID)
	if err != nil {
		return 0, err
	}

	estimate, err := s.calculator.ForModel(model).Estimate(ctx, risk.Input{Snapshot: snapshot, Model: model})
	if err != nil {
		return 0, err
	}
	if snapshot.TotalValue == 0 {
		return 0, nil
	}
	return estimate.VaR / snapshot.TotalValue, nil
}

// concentration is the weight of the named symbol or sector, or the largest
// single-position weight when neither is named.
func (s *CalculatedSource) concentration(snapshot *models.PortfolioSnapshot, limit models.RiskLimit) float64 {
	symbol := limit.Parameters["symbol"]
	sector := limit.Parameters["sector"]

	var value float64
	for i, p := range snapshot.Positions {
		w := snapshot.Weight(i)
		switch {
		case symbol != "":
			if p.Symbol == symbol {
				value += w
			}
		case sector != "":
			if p.Sector == sector {
				value += w
			}
		default:
			if w > value {
				value = w
			}
		}
	}
	return value
}

// factorExposure is the value-weighted portfolio exposure to the named
// factor.
func (s *CalculatedSource) factorExposure(ctx context.Context, snapshot *models.PortfolioSnapshot, limit models.RiskLimit) (float64, error) {
	factor := limit.Parameters["factor"]
	if factor == "" {
		return 0, errors.InvalidArgument("exposure limit %s names no factor parameter", limit.ID)
	}

	exposure, err := s.portfolioFactorExposure(ctx, snapshot, limit.ID, factor)
	if err != nil {
		return 0, err
	}
	return exposure, nil
}

// sensitivity is the portfolio P&L fraction under a unit shock to the named
// factor, scaled by the limit's shock parameter.
func (s *CalculatedSource) sensitivity(ctx context.Context, snapshot *models.PortfolioSnapshot, limit models.RiskLimit) (float64, error) {
	factor := limit.Parameters["factor"]
	if factor == "" {
		return 0, errors.InvalidArgument("sensitivity limit %s names no factor parameter", limit.ID)
	}
	shock, err := strconv.ParseFloat(limit.Parameters["shock"], 64)
	if err != nil {
		return 0, errors.InvalidArgument("sensitivity limit %s has invalid shock parameter: %v", limit.ID, err)
	}

	exposure, err := s.portfolioFactorExposure(ctx, snapshot, limit.ID, factor)
	if err != nil {
		return 0, err
	}
	return math.Abs(exposure * shock), nil
}

func (s *CalculatedSource) portfolioFactorExposure(ctx context.Context, snapshot *models.PortfolioSnapshot, limitID, factor string) (float64, error) {
	model := models.RiskModel{
		ID:         "limit:" + limitID,
		Parameters: models.ModelParameters{Factors: []string{factor}},
	}
	matrix, err := s.builder.ResolveExposures(ctx, snapshot, model)
	if err != nil {
		return 0, err
	}
	return portfolio.PortfolioExposure(snapshot, matrix)[0], nil
}
