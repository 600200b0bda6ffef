package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/risk-engine/internal/cache"
	"github.com/riskd/risk-engine/internal/estimator"
	"github.com/riskd/risk-engine/internal/marketdata"
	"github.com/riskd/risk-engine/internal/portfolio"
	"github.com/riskd/risk-engine/internal/risk"
	"github.com/riskd/risk-engine/internal/scenario"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

const lookback = 120

type countingCache struct {
	inner *cache.MemoryCache
	gets  int
	hits  int
	sets  int
}

func (c *countingCache) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	c.gets++
	hit, err := c.inner.Get(ctx, key, out)
	if hit {
		c.hits++
	}
	return hit, err
}

func (c *countingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets++
	return c.inner.Set(ctx, key, value, ttl)
}

func seededStore() *marketdata.MemoryStore {
	store := marketdata.NewMemoryStore()

	series := func(amp, freq, phase float64) []float64 {
		out := make([]float64, lookback)
		for t := 0; t < lookback; t++ {
			out[t] = amp * math.Sin(float64(t)/freq+phase)
		}
		return out
	}

	store.SetReturns("AAPL", series(0.012, 4, 0))
	store.SetReturns("GOVT", series(0.004, 7, 1))
	store.SetReturns("SPX", series(0.009, 5, 0.5))
	store.SetFactorReturns("equity_market", series(0.005, 5, 0.2))
	store.SetFactorReturns("rates", series(0.003, 9, 1.3))

	store.SetFactorLoadings(models.AssetClassEquity, map[string]float64{"equity_market": 1.0, "rates": -0.2})
	store.SetFactorLoadings(models.AssetClassBond, map[string]float64{"equity_market": 0.1, "rates": 0.9})

	store.SetPortfolio("port-1", []models.Position{
		{Symbol: "AAPL", Quantity: 100, AssetClass: models.AssetClassEquity, MarketValue: 600000},
		{Symbol: "GOVT", Quantity: 500, AssetClass: models.AssetClassBond, MarketValue: 400000},
	})

	store.SetModel(models.RiskModel{
		ID:     "var-historical-99",
		Type:   models.ModelTypeVaR,
		Method: models.VaRMethodHistorical,
		Parameters: models.ModelParameters{
			ConfidenceLevel: 0.99,
			HoldingPeriod:   1,
			LookbackWindow:  lookback,
			CovMethod:       models.CovMethodSample,
		},
	})
	store.SetModel(models.RiskModel{
		ID:   "factor-model",
		Type: models.ModelTypeFactorModel,
		Parameters: models.ModelParameters{
			ConfidenceLevel: 0.99,
			LookbackWindow:  lookback,
			CovMethod:       models.CovMethodSample,
			Factors:         []string{"equity_market", "rates"},
		},
	})

	return store
}

func testEngine(t *testing.T) (*Engine, *countingCache, *scenario.Store) {
	t.Helper()

	store := seededStore()
	builder := portfolio.NewBuilder(store, store)
	covariance := estimator.NewEstimator(store)
	calculator := risk.NewCalculator(store, covariance, 4, 42)
	scenarios := scenario.NewEngine(4)
	scenarioStore := scenario.NewStore()
	resultCache := &countingCache{inner: cache.NewMemoryCache()}

	eng := New(store, store, store, builder, calculator, covariance, scenarios, scenarioStore, resultCache, nil, Settings{
		BenchmarkSymbol: "SPX",
		RiskFreeRate:    0.02,
		CacheTTL:        time.Minute,
	})
	return eng, resultCache, scenarioStore
}

func TestCalculatePortfolioRisk(t *testing.T) {
	eng, resultCache, _ := testEngine(t)
	date := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	req := CalculationRequest{PortfolioID: "port-1", ModelIDs: []string{"var-historical-99"}, Date: date}
	result, err := eng.CalculatePortfolioRisk(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)

	m := result.Results[0]
	assert.Equal(t, 1000000.0, result.PortfolioValue)
	assert.Greater(t, m.ValueAtRisk, 0.0)
	assert.GreaterOrEqual(t, m.CVaR, m.ValueAtRisk)
	assert.InDelta(t, m.ValueAtRisk/1000000.0, m.ValueAtRiskPct, 1e-12)
	assert.NotZero(t, m.Beta)
	assert.Equal(t, 1, resultCache.sets)

	t.Run("second call served from cache", func(t *testing.T) {
		again, err := eng.CalculatePortfolioRisk(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 1, resultCache.hits)
		assert.Equal(t, 1, resultCache.sets)
		assert.Equal(t, m.ValueAtRisk, again.Results[0].ValueAtRisk)
	})

	t.Run("position level bypasses cache", func(t *testing.T) {
		detailed := req
		detailed.PositionLevel = true
		result, err := eng.CalculatePortfolioRisk(context.Background(), detailed)
		require.NoError(t, err)
		require.Len(t, result.Results[0].PositionLevel, 2)
		assert.Equal(t, 1, resultCache.sets)
	})

	t.Run("no models rejected", func(t *testing.T) {
		_, err := eng.CalculatePortfolioRisk(context.Background(), CalculationRequest{PortfolioID: "port-1"})
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})

	t.Run("unknown portfolio", func(t *testing.T) {
		_, err := eng.CalculatePortfolioRisk(context.Background(), CalculationRequest{
			PortfolioID: "missing", ModelIDs: []string{"var-historical-99"},
		})
		require.Error(t, err)
	})
}

func TestCalculateRiskDecomposition(t *testing.T) {
	eng, _, _ := testEngine(t)

	result, err := eng.CalculateRiskDecomposition(context.Background(), "port-1", "factor-model", time.Now(), false)
	require.NoError(t, err)

	assert.Greater(t, result.TotalRisk, 0.0)
	require.Len(t, result.FactorContributions, 2)

	var systematic float64
	for _, c := range result.FactorContributions {
		systematic += c.Contribution
	}
	assert.InDelta(t, 1.0, systematic+result.SpecificRisk, 1e-9)

	// The seeded position returns carry variation the factors do not explain,
	// so the decomposition must leave a real idiosyncratic share.
	assert.Greater(t, result.SpecificRisk, 0.3)
	assert.Less(t, result.SpecificRisk, 1.0)

	t.Run("non factor model rejected", func(t *testing.T) {
		_, err := eng.CalculateRiskDecomposition(context.Background(), "port-1", "var-historical-99", time.Now(), false)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})
}

func TestRunScenarioAnalysis(t *testing.T) {
	eng, _, scenarioStore := testEngine(t)

	mild := scenarioStore.CreateScenario(models.Scenario{
		Name: "mild equity dip",
		Type: models.ScenarioTypeHypothetical,
		AssetClassImpacts: map[models.AssetClass]float64{
			models.AssetClassEquity: -0.05,
		},
	})
	severe := scenarioStore.CreateScenario(models.Scenario{
		Name: "equity crash",
		Type: models.ScenarioTypeHypothetical,
		AssetClassImpacts: map[models.AssetClass]float64{
			models.AssetClassEquity: -0.35,
		},
	})

	analysis, err := eng.RunScenarioAnalysis(context.Background(), "port-1", []string{mild.ID, severe.ID}, time.Now())
	require.NoError(t, err)
	require.Len(t, analysis.Impacts, 2)
	assert.Equal(t, severe.ID, analysis.Impacts[0].ScenarioID)
	assert.Less(t, analysis.Impacts[0].PortfolioImpact, analysis.Impacts[1].PortfolioImpact)

	t.Run("factor scenario resolves exposures", func(t *testing.T) {
		rates := scenarioStore.CreateScenario(models.Scenario{
			Name:         "rates up",
			Type:         models.ScenarioTypeHypothetical,
			FactorShocks: []models.FactorShock{{Factor: "rates", Shock: 0.02}},
		})
		analysis, err := eng.RunScenarioAnalysis(context.Background(), "port-1", []string{rates.ID}, time.Now())
		require.NoError(t, err)
		require.Len(t, analysis.Impacts, 1)
	})

	t.Run("empty scenario list rejected", func(t *testing.T) {
		_, err := eng.RunScenarioAnalysis(context.Background(), "port-1", nil, time.Now())
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})
}

func TestRunStressTest(t *testing.T) {
	eng, _, scenarioStore := testEngine(t)

	test := scenarioStore.CreateStressTest(models.StressTest{
		Name:          "two quarter drawdown",
		PeriodLabels:  []string{"Q1", "Q2"},
		PeriodImpacts: []float64{-0.10, -0.05},
	})

	result, err := eng.RunStressTest(context.Background(), "port-1", test.ID, time.Now(), true)
	require.NoError(t, err)
	assert.InDelta(t, 1000000*0.9*0.95, result.FinalValue, 1e-6)
	assert.Len(t, result.TimeSeries, 2)

	t.Run("time series omitted unless requested", func(t *testing.T) {
		result, err := eng.RunStressTest(context.Background(), "port-1", test.ID, time.Now(), false)
		require.NoError(t, err)
		assert.Nil(t, result.TimeSeries)
		assert.InDelta(t, 1000000*0.9*0.95, result.FinalValue, 1e-6)
	})
}

func TestCalibrationJobs(t *testing.T) {
	eng, _, _ := testEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.StartJobs(ctx)

	t.Run("unknown model fails fast", func(t *testing.T) {
		_, err := eng.SubmitCalibrationJob(ctx, CalibrationRequest{ModelID: "missing"})
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})

	t.Run("missing model id rejected", func(t *testing.T) {
		_, err := eng.SubmitCalibrationJob(ctx, CalibrationRequest{})
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	})

	job, err := eng.SubmitCalibrationJob(ctx, CalibrationRequest{ModelID: "factor-model"})
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, job.Status)

	require.Eventually(t, func() bool {
		got, err := eng.JobStatus(job.ID)
		return err == nil && got.Status == JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	got, err := eng.JobStatus(job.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)

	t.Run("var model has nothing to calibrate", func(t *testing.T) {
		job, err := eng.SubmitCalibrationJob(ctx, CalibrationRequest{ModelID: "var-historical-99"})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			got, err := eng.JobStatus(job.ID)
			return err == nil && got.Status == JobStatusFailed
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("unknown job id", func(t *testing.T) {
		_, err := eng.JobStatus("missing")
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})
}
