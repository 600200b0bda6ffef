// Package portfolio normalizes raw positions into priced snapshots and
// resolves per-position factor exposures. It is the leaf dependency of every
// calculator.
package portfolio

import (
	"context"
	"strings"
	"time"

	"github.com/riskd/risk-engine/internal/marketdata"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

// Builder constructs portfolio snapshots and exposure matrices.
type Builder struct {
	prices    marketdata.PriceFeed
	exposures marketdata.ExposureProvider
	log       *logger.Logger
}

// NewBuilder creates a snapshot builder over the given feeds.
func NewBuilder(prices marketdata.PriceFeed, exposures marketdata.ExposureProvider) *Builder {
	return &Builder{
		prices:    prices,
		exposures: exposures,
		log:       logger.GetLogger("portfolio.builder"),
	}
}

// BuildSnapshot validates and prices positions into a snapshot. Long-only
// instrument classes reject non-positive quantities; a symbol that cannot be
// priced fails the whole request.
func (b *Builder) BuildSnapshot(ctx context.Context, portfolioID string, positions []models.Position, date time.Time) (*models.PortfolioSnapshot, error) {
	if len(positions) == 0 {
		return nil, errors.InvalidArgument("portfolio %s has no positions", portfolioID)
	}

	snapshot := &models.PortfolioSnapshot{
		PortfolioID:     portfolioID,
		Positions:       make([]models.Position, 0, len(positions)),
		CalculationDate: date,
	}

	for _, p := range positions {
		if p.Quantity <= 0 && p.AssetClass.LongOnly() {
			return nil, errors.InvalidPosition(p.Symbol, "non-positive quantity for long-only asset class")
		}
		if p.Quantity == 0 {
			return nil, errors.InvalidPosition(p.Symbol, "zero quantity")
		}

		if p.MarketValue == 0 {
			value, err := b.price(ctx, p)
			if err != nil {
				return nil, err
			}
			p.MarketValue = value
		}

		snapshot.Positions = append(snapshot.Positions, p)
		snapshot.TotalValue += p.MarketValue
	}

	return snapshot, nil
}

func (b *Builder) price(ctx context.Context, p models.Position) (float64, error) {
	series, err := b.prices.GetPriceSeries(ctx, p.Symbol, 1)
	if err != nil || len(series) == 0 {
		return 0, errors.InvalidPosition(p.Symbol, "symbol cannot be priced")
	}
	return series[len(series)-1] * p.Quantity, nil
}

// ResolveExposures derives the positions × factors exposure matrix for a
// factor-model calculation. Every position must have a loadings row; a
// missing asset-class mapping fails with the symbol and factor identified.
func (b *Builder) ResolveExposures(ctx context.Context, snapshot *models.PortfolioSnapshot, model models.RiskModel) (*models.ExposureMatrix, error) {
	factors := model.Parameters.Factors
	if len(factors) == 0 {
		return nil, errors.InvalidArgument("model %s defines no factors", model.ID)
	}

	matrix := &models.ExposureMatrix{
		Symbols:   snapshot.Symbols(),
		Factors:   factors,
		Exposures: make([][]float64, len(snapshot.Positions)),
	}

	for i, p := range snapshot.Positions {
		loadings, err := b.exposures.GetFactorLoadings(ctx, p.AssetClass, factors)
		if err != nil {
			if errors.IsType(err, errors.ErrorTypeMissingExposure) {
				return nil, errors.MissingExposure(p.Symbol, missingFactor(err, factors))
			}
			return nil, err
		}

		row := make([]float64, len(factors))
		for j, f := range factors {
			row[j] = loadings[f]
		}
		matrix.Exposures[i] = row
	}

	return matrix, nil
}

// PortfolioExposure aggregates position exposures into value-weighted
// portfolio factor exposures.
func PortfolioExposure(snapshot *models.PortfolioSnapshot, matrix *models.ExposureMatrix) []float64 {
	out := make([]float64, len(matrix.Factors))
	for i := range snapshot.Positions {
		w := snapshot.Weight(i)
		for j, e := range matrix.Row(i) {
			out[j] += w * e
		}
	}
	return out
}

// missingFactor recovers the factor named in a MissingExposure error so the
// caller-facing error can name the position instead of the asset class.
func missingFactor(err error, factors []string) string {
	msg := err.Error()
	for _, f := range factors {
		if strings.Contains(msg, f) {
			return f
		}
	}
	if len(factors) > 0 {
		return factors[0]
	}
	return "unknown"
}
