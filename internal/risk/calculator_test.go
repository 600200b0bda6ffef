package risk

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskd/risk-engine/internal/estimator"
	"github.com/riskd/risk-engine/internal/marketdata"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

const lookback = 120

func testStore() *marketdata.MemoryStore {
	store := marketdata.NewMemoryStore()

	a := make([]float64, lookback)
	b := make([]float64, lookback)
	for t := 0; t < lookback; t++ {
		a[t] = 0.012*math.Sin(float64(t)/4) + 0.002*math.Cos(float64(t)/9)
		b[t] = 0.006*math.Sin(float64(t)/6) - 0.003*math.Cos(float64(t)/4)
	}
	store.SetReturns("AAPL", a)
	store.SetReturns("GOVT", b)
	return store
}

func testSnapshot() *models.PortfolioSnapshot {
	return &models.PortfolioSnapshot{
		PortfolioID: "port-1",
		Positions: []models.Position{
			{Symbol: "AAPL", Quantity: 100, AssetClass: models.AssetClassEquity, MarketValue: 600000},
			{Symbol: "GOVT", Quantity: 200, AssetClass: models.AssetClassBond, MarketValue: 400000},
		},
		CalculationDate: time.Now(),
		TotalValue:      1000000,
	}
}

func testCalculator() *Calculator {
	store := testStore()
	return NewCalculator(store, estimator.NewEstimator(store), 4, 42)
}

func model(method models.VaRMethod, confidence float64) models.RiskModel {
	return models.RiskModel{
		ID:     "test-model",
		Type:   models.ModelTypeVaR,
		Method: method,
		Parameters: models.ModelParameters{
			ConfidenceLevel: confidence,
			HoldingPeriod:   1,
			LookbackWindow:  lookback,
			Simulations:     2000,
			CovMethod:       models.CovMethodSample,
			Seed:            7,
		},
	}
}

func TestHistoricalVaRMonotoneInConfidence(t *testing.T) {
	calc := testCalculator()
	snapshot := testSnapshot()

	var prev float64
	for _, confidence := range []float64{0.90, 0.95, 0.99} {
		m := model(models.VaRMethodHistorical, confidence)
		est, err := calc.ForModel(m).Estimate(context.Background(), Input{Snapshot: snapshot, Model: m})
		require.NoError(t, err)

		assert.GreaterOrEqual(t, est.VaR, prev, "VaR at %.2f should not be below VaR at lower confidence", confidence)
		prev = est.VaR
	}
}

func TestCVaRDominatesVaR(t *testing.T) {
	calc := testCalculator()
	snapshot := testSnapshot()

	for _, method := range []models.VaRMethod{
		models.VaRMethodHistorical,
		models.VaRMethodParametric,
		models.VaRMethodMonteCarlo,
	} {
		t.Run(string(method), func(t *testing.T) {
			m := model(method, 0.95)
			est, err := calc.ForModel(m).Estimate(context.Background(), Input{Snapshot: snapshot, Model: m})
			require.NoError(t, err)

			assert.Equal(t, method, est.Method)
			assert.GreaterOrEqual(t, est.CVaR, est.VaR)
			assert.Greater(t, est.Volatility, 0.0)
		})
	}
}

func TestHistoricalRequiresMinimumObservations(t *testing.T) {
	calc := testCalculator()
	snapshot := testSnapshot()

	// At 99.9% confidence the window must cover at least 1000 observations.
	m := model(models.VaRMethodHistorical, 0.999)
	_, err := calc.ForModel(m).Estimate(context.Background(), Input{Snapshot: snapshot, Model: m})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInsufficientHistory))
}

func TestMonteCarloReproducibleUnderFixedSeed(t *testing.T) {
	snapshot := testSnapshot()
	m := model(models.VaRMethodMonteCarlo, 0.99)

	run := func(workers int) Estimate {
		store := testStore()
		calc := NewCalculator(store, estimator.NewEstimator(store), workers, 42)
		est, err := calc.ForModel(m).Estimate(context.Background(), Input{Snapshot: snapshot, Model: m})
		require.NoError(t, err)
		return est
	}

	first := run(4)
	second := run(4)
	assert.Equal(t, first.VaR, second.VaR)
	assert.Equal(t, first.CVaR, second.CVaR)
	assert.Equal(t, first.Volatility, second.Volatility)
}

func TestMonteCarloStudentTRejectsLowDegreesOfFreedom(t *testing.T) {
	calc := testCalculator()
	snapshot := testSnapshot()

	m := model(models.VaRMethodMonteCarlo, 0.99)
	m.Parameters.Distribution = models.DistributionStudentT
	m.Parameters.DegreesOfFreedom = 2

	_, err := calc.ForModel(m).Estimate(context.Background(), Input{Snapshot: snapshot, Model: m})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestParametricSingleAssetMatchesClosedForm(t *testing.T) {
	store := marketdata.NewMemoryStore()
	returns := make([]float64, lookback)
	for i := 0; i < lookback; i++ {
		returns[i] = 0.01 * math.Sin(float64(i)/3)
	}
	store.SetReturns("AAPL", returns)

	calc := NewCalculator(store, estimator.NewEstimator(store), 1, 42)
	snapshot := &models.PortfolioSnapshot{
		PortfolioID: "single",
		Positions: []models.Position{
			{Symbol: "AAPL", Quantity: 1, AssetClass: models.AssetClassEquity, MarketValue: 1000000},
		},
		TotalValue: 1000000,
	}

	m := model(models.VaRMethodParametric, 0.99)
	est, err := calc.ForModel(m).Estimate(context.Background(), Input{Snapshot: snapshot, Model: m})
	require.NoError(t, err)

	// For one asset the portfolio sigma is the dollar return sigma, so VaR
	// must equal z(0.99)·sigma.
	sampleVar := 0.0
	mean := Mean(returns)
	for _, r := range returns {
		sampleVar += (r - mean) * (r - mean)
	}
	sampleVar /= float64(len(returns) - 1)
	sigma := math.Sqrt(sampleVar) * 1000000

	assert.InDelta(t, NormInv(0.99)*sigma, est.VaR, 1e-6*est.VaR)
	assert.GreaterOrEqual(t, est.CVaR, est.VaR)
}

func TestHoldingPeriodScaling(t *testing.T) {
	calc := testCalculator()
	snapshot := testSnapshot()

	oneDay := model(models.VaRMethodHistorical, 0.95)
	tenDay := model(models.VaRMethodHistorical, 0.95)
	tenDay.Parameters.HoldingPeriod = 10

	one, err := calc.ForModel(oneDay).Estimate(context.Background(), Input{Snapshot: snapshot, Model: oneDay})
	require.NoError(t, err)
	ten, err := calc.ForModel(tenDay).Estimate(context.Background(), Input{Snapshot: snapshot, Model: tenDay})
	require.NoError(t, err)

	assert.InDelta(t, one.VaR*math.Sqrt(10), ten.VaR, 1e-9)
}

func TestPositionContributionsSumToTotal(t *testing.T) {
	calc := testCalculator()
	snapshot := testSnapshot()

	m := model(models.VaRMethodHistorical, 0.95)
	est, err := calc.ForModel(m).Estimate(context.Background(), Input{Snapshot: snapshot, Model: m})
	require.NoError(t, err)

	contributions, err := calc.PositionContributions(context.Background(), Input{Snapshot: snapshot, Model: m}, est.VaR)
	require.NoError(t, err)
	require.Len(t, contributions, 2)

	var totalFraction, totalContribution float64
	for _, c := range contributions {
		totalFraction += c.Percentage
		totalContribution += c.Contribution
	}
	assert.InDelta(t, 1.0, totalFraction, 1e-9)
	assert.InDelta(t, est.VaR, totalContribution, 1e-6*est.VaR)
}

func TestMissingSeriesFailsCalculation(t *testing.T) {
	calc := testCalculator()
	snapshot := testSnapshot()
	snapshot.Positions = append(snapshot.Positions, models.Position{
		Symbol: "UNKNOWN", Quantity: 1, AssetClass: models.AssetClassEquity, MarketValue: 1000,
	})

	m := model(models.VaRMethodHistorical, 0.95)
	_, err := calc.ForModel(m).Estimate(context.Background(), Input{Snapshot: snapshot, Model: m})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDataUnavailable))
}
