package marketdata

import (
	"context"
	"sync"

	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

// MemoryStore is an in-memory implementation of the feed interfaces, used by
// tests and the reference wiring. Unknown ids return DataUnavailableError
// rather than generated data.
type MemoryStore struct {
	mu             sync.RWMutex
	prices         map[string][]float64
	returns        map[string][]float64
	factorReturns  map[string][]float64
	factorLoadings map[models.AssetClass]map[string]float64
	modelsByID     map[string]models.RiskModel
	portfolios     map[string][]models.Position
	log            *logger.Logger
}

// NewMemoryStore creates an empty in-memory data store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prices:         make(map[string][]float64),
		returns:        make(map[string][]float64),
		factorReturns:  make(map[string][]float64),
		factorLoadings: make(map[models.AssetClass]map[string]float64),
		modelsByID:     make(map[string]models.RiskModel),
		portfolios:     make(map[string][]models.Position),
		log:            logger.GetLogger("marketdata.memory"),
	}
}

// SetPriceSeries seeds a price series for a symbol and derives its returns.
func (s *MemoryStore) SetPriceSeries(symbol string, prices []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = prices
	s.returns[symbol] = ReturnsFromPrices(prices)
}

// SetReturns seeds a return series for a symbol directly.
func (s *MemoryStore) SetReturns(symbol string, returns []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returns[symbol] = returns
}

// SetFactorReturns seeds a return series for a factor id.
func (s *MemoryStore) SetFactorReturns(factorID string, returns []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factorReturns[factorID] = returns
}

// SetFactorLoadings seeds the factor loadings for an asset class.
func (s *MemoryStore) SetFactorLoadings(assetClass models.AssetClass, loadings map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factorLoadings[assetClass] = loadings
}

// SetModel seeds a risk model definition.
func (s *MemoryStore) SetModel(model models.RiskModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelsByID[model.ID] = model
}

// SetPortfolio seeds positions for a portfolio id.
func (s *MemoryStore) SetPortfolio(id string, positions []models.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[id] = positions
}

// GetPriceSeries implements PriceFeed.
func (s *MemoryStore) GetPriceSeries(_ context.Context, symbol string, window int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prices, ok := s.prices[symbol]
	if !ok {
		return nil, errors.DataUnavailable(symbol)
	}
	return tail(prices, window), nil
}

// GetReturns implements ReturnsFeed over both symbols and factor ids.
func (s *MemoryStore) GetReturns(_ context.Context, id string, window int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if returns, ok := s.returns[id]; ok {
		return tail(returns, window), nil
	}
	if returns, ok := s.factorReturns[id]; ok {
		return tail(returns, window), nil
	}
	return nil, errors.DataUnavailable(id)
}

// GetFactorLoadings implements ExposureProvider.
func (s *MemoryStore) GetFactorLoadings(_ context.Context, assetClass models.AssetClass, factors []string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loadings, ok := s.factorLoadings[assetClass]
	if !ok {
		return nil, errors.MissingExposure(string(assetClass), "any")
	}

	out := make(map[string]float64, len(factors))
	for _, f := range factors {
		loading, ok := loadings[f]
		if !ok {
			return nil, errors.MissingExposure(string(assetClass), f)
		}
		out[f] = loading
	}
	return out, nil
}

// GetModel implements ModelRegistry.
func (s *MemoryStore) GetModel(_ context.Context, id string) (models.RiskModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	model, ok := s.modelsByID[id]
	if !ok {
		return models.RiskModel{}, errors.NotFound("risk model not found: %s", id)
	}
	return model, nil
}

// GetPortfolio implements PortfolioProvider.
func (s *MemoryStore) GetPortfolio(_ context.Context, id string) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions, ok := s.portfolios[id]
	if !ok {
		return nil, errors.NotFound("portfolio not found: %s", id)
	}
	out := make([]models.Position, len(positions))
	copy(out, positions)
	return out, nil
}

func tail(xs []float64, window int) []float64 {
	if window <= 0 || window >= len(xs) {
		out := make([]float64, len(xs))
		copy(out, xs)
		return out
	}
	out := make([]float64, window)
	copy(out, xs[len(xs)-window:])
	return out
}
