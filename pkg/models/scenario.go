package models

import (
	"time"
)

// ScenarioType identifies how a scenario's shocks were derived.
type ScenarioType string

const (
	ScenarioTypeHistorical   ScenarioType = "historical"
	ScenarioTypeHypothetical ScenarioType = "hypothetical"
	ScenarioTypeMonteCarlo   ScenarioType = "monte_carlo"
)

// FactorShock is a deterministic shock applied to a named risk factor,
// expressed as a fractional return (-0.10 = a 10% drop).
type FactorShock struct {
	Factor string  `json:"factor"`
	Shock  float64 `json:"shock"`
}

// FactorSpec parameterizes one factor's marginal distribution in a Monte
// Carlo scenario. Draws are clipped to [Min, Max].
type FactorSpec struct {
	Factor     string  `json:"factor"`
	Mean       float64 `json:"mean"`
	Volatility float64 `json:"volatility"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
}

// FactorCorrelation is one pairwise entry of the scenario correlation list.
type FactorCorrelation struct {
	FactorA     string  `json:"factor_a"`
	FactorB     string  `json:"factor_b"`
	Correlation float64 `json:"correlation"`
}

// Scenario is an immutable shock definition. Updating a scenario creates a
// new version with a refreshed UpdatedAt.
type Scenario struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	Type              ScenarioType          `json:"type"`
	FactorShocks      []FactorShock         `json:"factor_shocks,omitempty"`
	AssetClassImpacts map[AssetClass]float64 `json:"asset_class_impacts,omitempty"`
	FactorSpecs       []FactorSpec          `json:"factor_specs,omitempty"`
	Correlations      []FactorCorrelation   `json:"correlations,omitempty"`
	Simulations       int                   `json:"simulations,omitempty"`
	Distribution      Distribution          `json:"distribution,omitempty"`
	DegreesOfFreedom  int                   `json:"degrees_of_freedom,omitempty"`
	Seed              int64                 `json:"seed,omitempty"`
	Version           int                   `json:"version"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// NewVersion returns a copy of the scenario with the version bumped and
// UpdatedAt refreshed. The receiver is left untouched.
func (s Scenario) NewVersion(now time.Time) Scenario {
	s.Version++
	s.UpdatedAt = now
	return s
}

// StressTest is a named sequence of period impacts applied to a portfolio.
// Impacts are fractional changes applied sequentially, each relative to the
// already-stressed value of the prior period.
type StressTest struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	PeriodLabels  []string      `json:"period_labels"`
	PeriodImpacts []float64     `json:"period_impacts"`
	Scenario      *Scenario     `json:"scenario,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
