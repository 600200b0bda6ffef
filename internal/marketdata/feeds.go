// Package marketdata defines the narrow interfaces through which the engine
// consumes external market, reference and portfolio data. The engine treats a
// fetch failure as a propagated error; it never substitutes stale or
// synthetic data.
package marketdata

import (
	"context"

	"github.com/riskd/risk-engine/pkg/models"
)

// PriceFeed serves historical price series, ordered oldest first.
type PriceFeed interface {
	GetPriceSeries(ctx context.Context, symbol string, window int) ([]float64, error)
}

// ReturnsFeed serves return series for a single asset or factor id. Both the
// asset and factor sides of the covariance estimator consume this shape.
type ReturnsFeed interface {
	GetReturns(ctx context.Context, id string, window int) ([]float64, error)
}

// ModelRegistry resolves risk model ids to immutable parameter snapshots.
type ModelRegistry interface {
	GetModel(ctx context.Context, id string) (models.RiskModel, error)
}

// PortfolioProvider resolves portfolio ids to position lists. The engine
// never writes positions.
type PortfolioProvider interface {
	GetPortfolio(ctx context.Context, id string) ([]models.Position, error)
}

// ExposureProvider serves per-asset-class factor loadings from reference
// data.
type ExposureProvider interface {
	GetFactorLoadings(ctx context.Context, assetClass models.AssetClass, factors []string) (map[string]float64, error)
}

// ReturnsFromPrices converts a price series into simple returns. The result
// is one observation shorter than the input.
func ReturnsFromPrices(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = prices[i]/prices[i-1] - 1
		}
	}
	return returns
}
