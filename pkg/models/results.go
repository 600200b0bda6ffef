package models

import (
	"time"
)

// PositionContribution apportions a portfolio-level metric to one position.
type PositionContribution struct {
	Symbol       string  `json:"symbol"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
	Percentage   float64 `json:"percentage"`
}

// RiskMetrics is the single-number risk summary for one (portfolio, model)
// pair. Percentage forms are value / portfolio value.
type RiskMetrics struct {
	PortfolioID       string                 `json:"portfolio_id"`
	ModelID           string                 `json:"model_id"`
	Method            VaRMethod              `json:"method"`
	CalculationDate   time.Time              `json:"calculation_date"`
	PortfolioValue    float64                `json:"portfolio_value"`
	ConfidenceLevel   float64                `json:"confidence_level"`
	HoldingPeriod     int                    `json:"holding_period"`
	ValueAtRisk       float64                `json:"value_at_risk"`
	ValueAtRiskPct    float64                `json:"value_at_risk_pct"`
	CVaR              float64                `json:"cvar"`
	CVaRPct           float64                `json:"cvar_pct"`
	Volatility        float64                `json:"volatility"`
	Beta              float64                `json:"beta,omitempty"`
	SharpeRatio       float64                `json:"sharpe_ratio,omitempty"`
	SortinoRatio      float64                `json:"sortino_ratio,omitempty"`
	MaxDrawdown       float64                `json:"max_drawdown,omitempty"`
	PositionLevel     []PositionContribution `json:"position_level,omitempty"`
}

// FactorContribution is one factor's share of total portfolio risk.
type FactorContribution struct {
	Factor       string  `json:"factor"`
	Exposure     float64 `json:"exposure"`
	Contribution float64 `json:"contribution"`
}

// DecompositionResult splits total portfolio risk into factor contributions
// plus a specific (idiosyncratic) residual.
type DecompositionResult struct {
	PortfolioID          string                 `json:"portfolio_id"`
	ModelID              string                 `json:"model_id"`
	CalculationDate      time.Time              `json:"calculation_date"`
	TotalRisk            float64                `json:"total_risk"`
	FactorContributions  []FactorContribution   `json:"factor_contributions"`
	SpecificRisk         float64                `json:"specific_risk"`
	PositionContributions []PositionContribution `json:"position_contributions,omitempty"`
}

// BrinsonEffect is the allocation/selection/interaction split for one group.
type BrinsonEffect struct {
	Group        string  `json:"group"`
	Allocation   float64 `json:"allocation"`
	Selection    float64 `json:"selection"`
	Interaction  float64 `json:"interaction"`
	ActiveReturn float64 `json:"active_return"`
}

// BrinsonResult is the full attribution of active return vs. a benchmark.
type BrinsonResult struct {
	Dimension         string          `json:"dimension"`
	Effects           []BrinsonEffect `json:"effects"`
	TotalAllocation   float64         `json:"total_allocation"`
	TotalSelection    float64         `json:"total_selection"`
	TotalInteraction  float64         `json:"total_interaction"`
	TotalActiveReturn float64         `json:"total_active_return"`
}

// PositionImpact is one position's value change under a scenario.
type PositionImpact struct {
	Symbol        string  `json:"symbol"`
	BaseValue     float64 `json:"base_value"`
	Impact        float64 `json:"impact"`
	ImpactPct     float64 `json:"impact_pct"`
	StressedValue float64 `json:"stressed_value"`
}

// ScenarioImpact is the deterministic outcome of applying one scenario.
type ScenarioImpact struct {
	ScenarioID        string           `json:"scenario_id"`
	ScenarioName      string           `json:"scenario_name"`
	CalculationDate   time.Time        `json:"calculation_date"`
	PortfolioValue    float64          `json:"portfolio_value"`
	PortfolioImpact   float64          `json:"portfolio_impact"`
	PortfolioImpactPct float64         `json:"portfolio_impact_pct"`
	PositionImpacts   []PositionImpact `json:"position_impacts"`
}

// DistributionStats summarizes a simulated P&L distribution.
type DistributionStats struct {
	Mean         float64 `json:"mean"`
	Median       float64 `json:"median"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	StdDev       float64 `json:"std_dev"`
	Percentile1  float64 `json:"percentile_1"`
	Percentile5  float64 `json:"percentile_5"`
	Percentile95 float64 `json:"percentile_95"`
	Percentile99 float64 `json:"percentile_99"`
}

// FactorRealizedStats reports the realized draw distribution of one factor,
// for calibration sanity-checking against its configured spec.
type FactorRealizedStats struct {
	Factor         string  `json:"factor"`
	RealizedMean   float64 `json:"realized_mean"`
	RealizedStdDev float64 `json:"realized_std_dev"`
	RealizedMin    float64 `json:"realized_min"`
	RealizedMax    float64 `json:"realized_max"`
}

// PositionDistribution is the per-position view of a Monte Carlo run.
type PositionDistribution struct {
	Symbol string            `json:"symbol"`
	Stats  DistributionStats `json:"stats"`
}

// MonteCarloResult is the outcome of a correlated Monte Carlo scenario run.
type MonteCarloResult struct {
	ScenarioID      string                 `json:"scenario_id"`
	CalculationDate time.Time              `json:"calculation_date"`
	Simulations     int                    `json:"simulations"`
	Seed            int64                  `json:"seed"`
	PortfolioValue  float64                `json:"portfolio_value"`
	Portfolio       DistributionStats      `json:"portfolio"`
	Positions       []PositionDistribution `json:"positions"`
	Factors         []FactorRealizedStats  `json:"factors"`
}

// PeriodImpact is one step of a sequential stress path. Values compound: each
// period's impact applies to the prior period's stressed value.
type PeriodImpact struct {
	Label          string  `json:"label"`
	ImpactPct      float64 `json:"impact_pct"`
	PortfolioValue float64 `json:"portfolio_value"`
	ValueChange    float64 `json:"value_change"`
}

// StressTestResult is the outcome of a stress test run.
type StressTestResult struct {
	StressTestID    string           `json:"stress_test_id"`
	CalculationDate time.Time        `json:"calculation_date"`
	BaseValue       float64          `json:"base_value"`
	FinalValue      float64          `json:"final_value"`
	OverallImpact   float64          `json:"overall_impact"`
	OverallImpactPct float64         `json:"overall_impact_pct"`
	TimeSeries      []PeriodImpact   `json:"time_series,omitempty"`
	PositionImpacts []PositionImpact `json:"position_impacts,omitempty"`
	RiskMetrics     *RiskMetrics     `json:"risk_metrics,omitempty"`
}

// LimitCheckOutcome is the before/after view of one limit over a check cycle.
type LimitCheckOutcome struct {
	LimitID      string      `json:"limit_id"`
	Type         LimitType   `json:"type"`
	PriorStatus  LimitStatus `json:"prior_status"`
	Status       LimitStatus `json:"status"`
	PriorValue   float64     `json:"prior_value"`
	Value        float64     `json:"value"`
	BreachOpened string      `json:"breach_opened,omitempty"`
	BreachClosed string      `json:"breach_closed,omitempty"`
}

// LimitCheckReport summarizes one check cycle for a portfolio.
type LimitCheckReport struct {
	PortfolioID   string              `json:"portfolio_id"`
	CheckedAt     time.Time           `json:"checked_at"`
	LimitsChecked int                 `json:"limits_checked"`
	Breached      int                 `json:"breached"`
	Warning       int                 `json:"warning"`
	Active        int                 `json:"active"`
	Outcomes      []LimitCheckOutcome `json:"outcomes"`
}
