package models

// ModelType identifies the kind of risk model being applied.
type ModelType string

const (
	ModelTypeVaR         ModelType = "var"
	ModelTypeCVaR        ModelType = "cvar"
	ModelTypeFactorModel ModelType = "factor_model"
)

// VaRMethod selects the estimation strategy for VaR-type models.
type VaRMethod string

const (
	VaRMethodHistorical VaRMethod = "historical"
	VaRMethodParametric VaRMethod = "parametric"
	VaRMethodMonteCarlo VaRMethod = "monte_carlo"
)

// CovMethod selects the covariance estimator variant.
type CovMethod string

const (
	CovMethodSample CovMethod = "sample"
	CovMethodEWMA   CovMethod = "ewma"
)

// Distribution selects the sampling distribution for Monte Carlo draws.
type Distribution string

const (
	DistributionNormal   Distribution = "normal"
	DistributionStudentT Distribution = "student_t"
)

// ModelParameters is the resolved, immutable parameter set for a calculation.
// The engine never mutates model state; the registry owns the record.
type ModelParameters struct {
	ConfidenceLevel  float64      `json:"confidence_level"`
	HoldingPeriod    int          `json:"holding_period"`
	LookbackWindow   int          `json:"lookback_window"`
	Simulations      int          `json:"simulations"`
	Factors          []string     `json:"factors,omitempty"`
	CovMethod        CovMethod    `json:"cov_method"`
	EwmaLambda       float64      `json:"ewma_lambda,omitempty"`
	Distribution     Distribution `json:"distribution,omitempty"`
	DegreesOfFreedom int          `json:"degrees_of_freedom,omitempty"`
	Seed             int64        `json:"seed,omitempty"`
}

// RiskModel is the resolved model definition handed to a calculation.
type RiskModel struct {
	ID         string          `json:"id"`
	Type       ModelType       `json:"type"`
	Method     VaRMethod       `json:"method"`
	AssetClass AssetClass      `json:"asset_class,omitempty"`
	Parameters ModelParameters `json:"parameters"`
}

// ExposureMatrix maps positions to their sensitivities against named risk
// factors. Rows follow portfolio order; every position has a row when a
// factor model is in use.
type ExposureMatrix struct {
	Symbols   []string    `json:"symbols"`
	Factors   []string    `json:"factors"`
	Exposures [][]float64 `json:"exposures"`
}

// Row returns the exposure row for position index i.
func (m *ExposureMatrix) Row(i int) []float64 {
	return m.Exposures[i]
}
