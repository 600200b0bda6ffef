package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

func stressSnapshot() *models.PortfolioSnapshot {
	return &models.PortfolioSnapshot{
		PortfolioID: "port-1",
		Positions: []models.Position{
			{Symbol: "AAPL", Quantity: 100, AssetClass: models.AssetClassEquity, MarketValue: 750000},
			{Symbol: "GOVT", Quantity: 200, AssetClass: models.AssetClassBond, MarketValue: 500000},
		},
		CalculationDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		TotalValue:      1250000,
	}
}

func TestRunStressPathCompounds(t *testing.T) {
	engine := NewEngine(4)

	// A 20% first-quarter drawdown followed by three recovery quarters. Each
	// quarter's percentage applies to the prior quarter's stressed value.
	test := &models.StressTest{
		ID:            "crisis-recovery",
		Name:          "Crisis and recovery",
		PeriodLabels:  []string{"Q1", "Q2", "Q3", "Q4"},
		PeriodImpacts: []float64{-0.20, 0.0625, 1.0 / 17.0, 1.0 / 18.0},
	}

	result, err := engine.RunStressPath(stressSnapshot(), test)
	require.NoError(t, err)
	require.Len(t, result.TimeSeries, 4)

	assert.Equal(t, 1250000.0, result.BaseValue)
	assert.InDelta(t, 1000000.0, result.TimeSeries[0].PortfolioValue, 1e-6)
	assert.InDelta(t, 1062500.0, result.TimeSeries[1].PortfolioValue, 1e-6)
	assert.InDelta(t, 1125000.0, result.TimeSeries[2].PortfolioValue, 1e-6)
	assert.InDelta(t, 1187500.0, result.TimeSeries[3].PortfolioValue, 1e-6)

	assert.InDelta(t, 1187500.0, result.FinalValue, 1e-6)
	assert.InDelta(t, -62500.0, result.OverallImpact, 1e-6)
	assert.InDelta(t, -0.05, result.OverallImpactPct, 1e-9)

	t.Run("position impacts pro-rata", func(t *testing.T) {
		require.Len(t, result.PositionImpacts, 2)
		for _, p := range result.PositionImpacts {
			assert.InDelta(t, result.OverallImpactPct, p.ImpactPct, 1e-12)
		}
	})

	t.Run("empty path rejected", func(t *testing.T) {
		_, err := engine.RunStressPath(stressSnapshot(), &models.StressTest{ID: "empty"})
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})
}

func TestApplyAssetClassImpacts(t *testing.T) {
	engine := NewEngine(4)
	sc := &models.Scenario{
		ID:   "equity-crash",
		Name: "Equity crash",
		Type: models.ScenarioTypeHypothetical,
		AssetClassImpacts: map[models.AssetClass]float64{
			models.AssetClassEquity: -0.30,
			models.AssetClassBond:   0.05,
		},
	}

	impact, err := engine.Apply(stressSnapshot(), sc, nil)
	require.NoError(t, err)

	assert.InDelta(t, 750000*-0.30+500000*0.05, impact.PortfolioImpact, 1e-6)
	require.Len(t, impact.PositionImpacts, 2)
	assert.InDelta(t, -225000.0, impact.PositionImpacts[0].Impact, 1e-6)
	assert.InDelta(t, 525000.0, impact.PositionImpacts[0].StressedValue, 1e-6)
}

func TestApplyFactorShocks(t *testing.T) {
	engine := NewEngine(4)
	sc := &models.Scenario{
		ID:   "rates-shock",
		Name: "Rates shock",
		Type: models.ScenarioTypeHypothetical,
		FactorShocks: []models.FactorShock{
			{Factor: "rates", Shock: -0.10},
		},
	}
	exposures := &models.ExposureMatrix{
		Symbols:   []string{"AAPL", "GOVT"},
		Factors:   []string{"rates"},
		Exposures: [][]float64{{-0.2}, {0.9}},
	}

	impact, err := engine.Apply(stressSnapshot(), sc, exposures)
	require.NoError(t, err)

	// AAPL: 750000 · (-0.2 · -0.10) = +15000; GOVT: 500000 · (0.9 · -0.10) = -45000.
	assert.InDelta(t, -30000.0, impact.PortfolioImpact, 1e-6)

	t.Run("missing exposure matrix fails", func(t *testing.T) {
		_, err := engine.Apply(stressSnapshot(), sc, nil)
		assert.True(t, errors.IsType(err, errors.ErrorTypeMissingExposure))
	})
}

func TestCompareOrdersWorstFirst(t *testing.T) {
	engine := NewEngine(4)
	impacts := []models.ScenarioImpact{
		{ScenarioID: "mild", PortfolioImpact: -10000},
		{ScenarioID: "severe", PortfolioImpact: -90000},
		{ScenarioID: "benign", PortfolioImpact: 5000},
	}

	ordered := engine.Compare(impacts)
	require.Len(t, ordered, 3)
	assert.Equal(t, "severe", ordered[0].ScenarioID)
	assert.Equal(t, "mild", ordered[1].ScenarioID)
	assert.Equal(t, "benign", ordered[2].ScenarioID)
}

func monteCarloScenario() *models.Scenario {
	return &models.Scenario{
		ID:   "mc-1",
		Name: "Correlated factor simulation",
		Type: models.ScenarioTypeMonteCarlo,
		FactorSpecs: []models.FactorSpec{
			{Factor: "equity_market", Mean: -0.02, Volatility: 0.05, Min: -0.30, Max: 0.30},
			{Factor: "rates", Mean: 0.0, Volatility: 0.02, Min: -0.10, Max: 0.10},
		},
		Correlations: []models.FactorCorrelation{
			{FactorA: "equity_market", FactorB: "rates", Correlation: -0.4},
		},
		Simulations: 2000,
		Seed:        11,
	}
}

func mcExposures() *models.ExposureMatrix {
	return &models.ExposureMatrix{
		Symbols:   []string{"AAPL", "GOVT"},
		Factors:   []string{"equity_market", "rates"},
		Exposures: [][]float64{{1.0, -0.2}, {0.1, 0.9}},
	}
}

func TestRunMonteCarlo(t *testing.T) {
	engine := NewEngine(4)
	snapshot := stressSnapshot()

	result, err := engine.RunMonteCarlo(context.Background(), snapshot, monteCarloScenario(), mcExposures())
	require.NoError(t, err)

	assert.Equal(t, 2000, result.Simulations)
	require.Len(t, result.Positions, 2)
	require.Len(t, result.Factors, 2)

	t.Run("draws respect clipping bounds", func(t *testing.T) {
		assert.GreaterOrEqual(t, result.Factors[0].RealizedMin, -0.30)
		assert.LessOrEqual(t, result.Factors[0].RealizedMax, 0.30)
		assert.GreaterOrEqual(t, result.Factors[1].RealizedMin, -0.10)
		assert.LessOrEqual(t, result.Factors[1].RealizedMax, 0.10)
	})

	t.Run("distribution percentiles ordered", func(t *testing.T) {
		p := result.Portfolio
		assert.LessOrEqual(t, p.Min, p.Percentile1)
		assert.LessOrEqual(t, p.Percentile1, p.Percentile5)
		assert.LessOrEqual(t, p.Percentile5, p.Percentile95)
		assert.LessOrEqual(t, p.Percentile95, p.Percentile99)
		assert.LessOrEqual(t, p.Percentile99, p.Max)
	})

	t.Run("reproducible under fixed seed", func(t *testing.T) {
		again, err := engine.RunMonteCarlo(context.Background(), snapshot, monteCarloScenario(), mcExposures())
		require.NoError(t, err)
		assert.Equal(t, result.Portfolio, again.Portfolio)
	})

	t.Run("rejects non monte carlo scenarios", func(t *testing.T) {
		sc := monteCarloScenario()
		sc.Type = models.ScenarioTypeHypothetical
		_, err := engine.RunMonteCarlo(context.Background(), snapshot, sc, mcExposures())
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})
}

func TestStoreVersioning(t *testing.T) {
	store := NewStore()

	created := store.CreateScenario(models.Scenario{Name: "v1"})
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.Version)

	created.Name = "v2"
	updated, err := store.UpdateScenario(created)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "v2", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	t.Run("unknown id rejected", func(t *testing.T) {
		_, err := store.UpdateScenario(models.Scenario{ID: "missing"})
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})

	t.Run("stress tests round trip", func(t *testing.T) {
		test := store.CreateStressTest(models.StressTest{Name: "path", PeriodImpacts: []float64{-0.1}})
		got, err := store.GetStressTest(test.ID)
		require.NoError(t, err)
		assert.Equal(t, test.ID, got.ID)
	})
}
