package models

import (
	"time"
)

// AssetClass identifies the broad instrument category of a position.
type AssetClass string

const (
	AssetClassEquity      AssetClass = "equity"
	AssetClassBond        AssetClass = "bond"
	AssetClassFund        AssetClass = "fund"
	AssetClassCommodity   AssetClass = "commodity"
	AssetClassFX          AssetClass = "fx"
	AssetClassDerivative  AssetClass = "derivative"
	AssetClassAlternative AssetClass = "alternative"
)

// LongOnly reports whether the asset class admits only positive quantities.
func (a AssetClass) LongOnly() bool {
	switch a {
	case AssetClassEquity, AssetClassFund:
		return true
	}
	return false
}

// Position is a single priced holding within a portfolio. It is an immutable
// input to a calculation and is never persisted by the engine.
type Position struct {
	Symbol      string     `json:"symbol"`
	Quantity    float64    `json:"quantity"`
	AssetClass  AssetClass `json:"asset_class"`
	MarketValue float64    `json:"market_value"`
	Sector      string     `json:"sector,omitempty"`
}

// PortfolioSnapshot is an ordered set of positions valued as of a calculation
// date. Constructed per request; not a long-lived entity.
type PortfolioSnapshot struct {
	PortfolioID     string     `json:"portfolio_id"`
	Positions       []Position `json:"positions"`
	CalculationDate time.Time  `json:"calculation_date"`
	TotalValue      float64    `json:"total_value"`
}

// Weight returns the position's share of total portfolio value.
func (s *PortfolioSnapshot) Weight(i int) float64 {
	if s.TotalValue == 0 {
		return 0
	}
	return s.Positions[i].MarketValue / s.TotalValue
}

// Symbols returns the position symbols in portfolio order.
func (s *PortfolioSnapshot) Symbols() []string {
	symbols := make([]string, len(s.Positions))
	for i, p := range s.Positions {
		symbols[i] = p.Symbol
	}
	return symbols
}
