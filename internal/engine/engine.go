// Package engine is the orchestration façade over the calculators. It
// resolves portfolios and models, consults the result cache, and hands
// fully-resolved inputs to the risk, scenario and attribution layers.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/riskd/risk-engine/internal/attribution"
	"github.com/riskd/risk-engine/internal/cache"
	"github.com/riskd/risk-engine/internal/estimator"
	"github.com/riskd/risk-engine/internal/marketdata"
	"github.com/riskd/risk-engine/internal/portfolio"
	"github.com/riskd/risk-engine/internal/risk"
	"github.com/riskd/risk-engine/internal/scenario"
	"github.com/riskd/risk-engine/pkg/metrics"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

// tradingDaysPerYear is the annualization basis for performance ratios.
const tradingDaysPerYear = 252

// Settings carries the engine-level calculation defaults.
type Settings struct {
	BenchmarkSymbol string
	RiskFreeRate    float64
	CacheTTL        time.Duration
}

// Engine wires the calculators to data access, caching and metrics.
type Engine struct {
	portfolios marketdata.PortfolioProvider
	registry   marketdata.ModelRegistry
	returns    marketdata.ReturnsFeed
	builder    *portfolio.Builder
	calculator *risk.Calculator
	covariance *estimator.Estimator
	scenarios  *scenario.Engine
	store      *scenario.Store
	cache      cache.Cache
	recorder   *metrics.Recorder
	settings   Settings
	jobs       *jobRunner
	log        *logger.Logger
}

// New creates an engine over the given collaborators. The cache may be nil,
// in which case every calculation is computed fresh.
func New(
	portfolios marketdata.PortfolioProvider,
	registry marketdata.ModelRegistry,
	returns marketdata.ReturnsFeed,
	builder *portfolio.Builder,
	calculator *risk.Calculator,
	covariance *estimator.Estimator,
	scenarios *scenario.Engine,
	store *scenario.Store,
	resultCache cache.Cache,
	recorder *metrics.Recorder,
	settings Settings,
) *Engine {
	e := &Engine{
		portfolios: portfolios,
		registry:   registry,
		returns:    returns,
		builder:    builder,
		calculator: calculator,
		covariance: covariance,
		scenarios:  scenarios,
		store:      store,
		cache:      resultCache,
		recorder:   recorder,
		settings:   settings,
		log:        logger.GetLogger("engine"),
	}
	e.jobs = newJobRunner(e)
	return e
}

// CalculationRequest asks for risk metrics over one portfolio under one or
// more models.
type CalculationRequest struct {
	PortfolioID   string    `json:"portfolio_id"`
	ModelIDs      []string  `json:"model_ids"`
	PositionLevel bool      `json:"position_level,omitempty"`
	Date          time.Time `json:"date,omitempty"`
}

// CalculationResult is the per-model outcome of one calculation request.
type CalculationResult struct {
	PortfolioID     string               `json:"portfolio_id"`
	CalculationDate time.Time            `json:"calculation_date"`
	PortfolioValue  float64              `json:"portfolio_value"`
	Results         []models.RiskMetrics `json:"results"`
}

// CalculatePortfolioRisk runs every requested model against a single
// portfolio snapshot. Results are cached per (snapshot, model, date); a model
// failure fails the whole request rather than returning a partial result set.
func (e *Engine) CalculatePortfolioRisk(ctx context.Context, req CalculationRequest) (*CalculationResult, error) {
	if len(req.ModelIDs) == 0 {
		return nil, errors.InvalidArgument("at least one model id is required")
	}
	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}

	snapshot, err := e.snapshot(ctx, req.PortfolioID, date)
	if err != nil {
		return nil, err
	}

	result := &CalculationResult{
		PortfolioID:     req.PortfolioID,
		CalculationDate: date,
		PortfolioValue:  snapshot.TotalValue,
		Results:         make([]models.RiskMetrics, 0, len(req.ModelIDs)),
	}

	for _, modelID := range req.ModelIDs {
		model, err := e.registry.GetModel(ctx, modelID)
		if err != nil {
			return nil, err
		}

		key := cache.Key(snapshot, model, date)
		if e.cache != nil && !req.PositionLevel {
			var cached models.RiskMetrics
			hit, err := e.cache.Get(ctx, key, &cached)
			if err != nil {
				e.log.Warnf("cache lookup failed for %s: %v", key, err)
			} else if hit {
				result.Results = append(result.Results, cached)
				continue
			}
		}

		riskMetrics, err := e.computeRiskMetrics(ctx, snapshot, model, date, req.PositionLevel)
		if err != nil {
			return nil, err
		}

		if e.cache != nil && !req.PositionLevel {
			if err := e.cache.Set(ctx, key, riskMetrics, e.settings.CacheTTL); err != nil {
				e.log.Warnf("cache store failed for %s: %v", key, err)
			}
		}

		result.Results = append(result.Results, riskMetrics)
	}

	return result, nil
}

func (e *Engine) computeRiskMetrics(ctx context.Context, snapshot *models.PortfolioSnapshot, model models.RiskModel, date time.Time, positionLevel bool) (models.RiskMetrics, error) {
	input := risk.Input{Snapshot: snapshot, Model: model}

	start := time.Now()
	estimate, err := e.calculator.ForModel(model).Estimate(ctx, input)
	if e.recorder != nil {
		e.recorder.RecordCalculation(string(model.Method), err, time.Since(start))
	}
	if err != nil {
		return models.RiskMetrics{}, err
	}

	out := models.RiskMetrics{
		PortfolioID:     snapshot.PortfolioID,
		ModelID:         model.ID,
		Method:          estimate.Method,
		CalculationDate: date,
		PortfolioValue:  snapshot.TotalValue,
		ConfidenceLevel: model.Parameters.ConfidenceLevel,
		HoldingPeriod:   model.Parameters.HoldingPeriod,
		ValueAtRisk:     estimate.VaR,
		CVaR:            estimate.CVaR,
		Volatility:      estimate.Volatility,
	}
	if snapshot.TotalValue != 0 {
		out.ValueAtRiskPct = estimate.VaR / snapshot.TotalValue
		out.CVaRPct = estimate.CVaR / snapshot.TotalValue
	}

	if err := e.attachPerformance(ctx, snapshot, model, &out); err != nil {
		// Performance ratios are supplementary; a missing benchmark series
		// does not invalidate the VaR numbers.
		e.log.Warnf("performance ratios unavailable for %s: %v", snapshot.PortfolioID, err)
	}

	if positionLevel {
		contributions, err := e.calculator.PositionContributions(ctx, input, estimate.VaR)
		if err != nil {
			return models.RiskMetrics{}, err
		}
		out.PositionLevel = contributions
	}

	if e.recorder != nil {
		e.recorder.RecordRiskMetrics(snapshot.PortfolioID, model.ID, estimate.VaR, estimate.CVaR)
	}

	return out, nil
}

// attachPerformance computes beta, Sharpe, Sortino and max drawdown from the
// weighted portfolio return series against the configured benchmark.
func (e *Engine) attachPerformance(ctx context.Context, snapshot *models.PortfolioSnapshot, model models.RiskModel, out *models.RiskMetrics) error {
	lookback := model.Parameters.LookbackWindow
	portfolioReturns, err := e.portfolioReturns(ctx, snapshot, lookback)
	if err != nil {
		return err
	}

	out.SharpeRatio = risk.SharpeRatio(portfolioReturns, e.settings.RiskFreeRate, tradingDaysPerYear)
	out.SortinoRatio = risk.SortinoRatio(portfolioReturns, e.settings.RiskFreeRate, tradingDaysPerYear)
	out.MaxDrawdown = risk.MaxDrawdown(portfolioReturns)

	if e.settings.BenchmarkSymbol != "" {
		benchmark, err := e.returns.GetReturns(ctx, e.settings.BenchmarkSymbol, lookback)
		if err != nil {
			return err
		}
		out.Beta = risk.Beta(portfolioReturns, benchmark)
	}
	return nil
}

// portfolioReturns builds the value-weighted portfolio return series over the
// lookback window.
func (e *Engine) portfolioReturns(ctx context.Context, snapshot *models.PortfolioSnapshot, lookback int) ([]float64, error) {
	out := make([]float64, lookback)
	for i, p := range snapshot.Positions {
		series, err := e.returns.GetReturns(ctx, p.Symbol, lookback)
		if err != nil {
			return nil, err
		}
		if len(series) < lookback {
			return nil, errors.InsufficientHistory(p.Symbol, len(series), lookback)
		}
		series = series[len(series)-lookback:]
		w := snapshot.Weight(i)
		for t, r := range series {
			out[t] += w * r
		}
	}
	return out, nil
}

// CalculateRiskDecomposition splits a factor-model portfolio's risk into
// factor contributions plus specific risk.
func (e *Engine) CalculateRiskDecomposition(ctx context.Context, portfolioID, modelID string, date time.Time, positionLevel bool) (*models.DecompositionResult, error) {
	if date.IsZero() {
		date = time.Now()
	}

	snapshot, err := e.snapshot(ctx, portfolioID, date)
	if err != nil {
		return nil, err
	}
	model, err := e.registry.GetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if len(model.Parameters.Factors) == 0 {
		return nil, errors.InvalidArgument("model %s is not a factor model", modelID)
	}

	exposures, err := e.builder.ResolveExposures(ctx, snapshot, model)
	if err != nil {
		return nil, err
	}
	portfolioExposure := portfolio.PortfolioExposure(snapshot, exposures)

	cov, err := e.covariance.Covariance(ctx, model.Parameters.Factors, model.Parameters.LookbackWindow, estimator.Spec{
		Method:     model.Parameters.CovMethod,
		EwmaLambda: model.Parameters.EwmaLambda,
	})
	if err != nil {
		return nil, err
	}

	// Specific risk is measured against realized portfolio variance over the
	// lookback; the factor-implied quadratic form feeds only the factor
	// numerators.
	series, err := e.portfolioReturns(ctx, snapshot, model.Parameters.LookbackWindow)
	if err != nil {
		return nil, err
	}
	sigma := risk.StdDev(series)
	portfolioVariance := sigma * sigma
	contributions, specific, err := attribution.FactorDecomposition(model.Parameters.Factors, portfolioExposure, cov, portfolioVariance)
	if err != nil {
		return nil, err
	}

	result := &models.DecompositionResult{
		PortfolioID:         portfolioID,
		ModelID:             modelID,
		CalculationDate:     date,
		TotalRisk:           snapshot.TotalValue * math.Sqrt(portfolioVariance),
		FactorContributions: contributions,
		SpecificRisk:        specific,
	}

	if positionLevel {
		positions, err := e.calculator.PositionContributions(ctx, risk.Input{Snapshot: snapshot, Model: model}, result.TotalRisk)
		if err != nil {
			return nil, err
		}
		result.PositionContributions = positions
	}

	return result, nil
}

// ScenarioAnalysis is the outcome of applying several scenarios to one
// snapshot, ordered worst impact first.
type ScenarioAnalysis struct {
	PortfolioID     string                  `json:"portfolio_id"`
	CalculationDate time.Time               `json:"calculation_date"`
	PortfolioValue  float64                 `json:"portfolio_value"`
	Impacts         []models.ScenarioImpact `json:"impacts"`
}

// RunScenarioAnalysis applies each named scenario to the portfolio and ranks
// the impacts worst first.
func (e *Engine) RunScenarioAnalysis(ctx context.Context, portfolioID string, scenarioIDs []string, date time.Time) (*ScenarioAnalysis, error) {
	if len(scenarioIDs) == 0 {
		return nil, errors.InvalidArgument("at least one scenario id is required")
	}
	if date.IsZero() {
		date = time.Now()
	}

	snapshot, err := e.snapshot(ctx, portfolioID, date)
	if err != nil {
		return nil, err
	}

	impacts := make([]models.ScenarioImpact, 0, len(scenarioIDs))
	for _, id := range scenarioIDs {
		sc, err := e.store.GetScenario(id)
		if err != nil {
			return nil, err
		}

		exposures, err := e.scenarioExposures(ctx, snapshot, &sc)
		if err != nil {
			return nil, err
		}

		impact, err := e.scenarios.Apply(snapshot, &sc, exposures)
		if err != nil {
			return nil, err
		}
		impacts = append(impacts, impact)
	}

	if e.recorder != nil {
		e.recorder.RecordScenarioRun("scenario")
	}

	return &ScenarioAnalysis{
		PortfolioID:     portfolioID,
		CalculationDate: date,
		PortfolioValue:  snapshot.TotalValue,
		Impacts:         e.scenarios.Compare(impacts),
	}, nil
}

// RunMonteCarloAnalysis runs a correlated Monte Carlo scenario against the
// portfolio.
func (e *Engine) RunMonteCarloAnalysis(ctx context.Context, portfolioID, scenarioID string, date time.Time) (*models.MonteCarloResult, error) {
	if date.IsZero() {
		date = time.Now()
	}

	snapshot, err := e.snapshot(ctx, portfolioID, date)
	if err != nil {
		return nil, err
	}
	sc, err := e.store.GetScenario(scenarioID)
	if err != nil {
		return nil, err
	}

	exposures, err := e.scenarioExposures(ctx, snapshot, &sc)
	if err != nil {
		return nil, err
	}

	result, err := e.scenarios.RunMonteCarlo(ctx, snapshot, &sc, exposures)
	if err != nil {
		return nil, err
	}

	if e.recorder != nil {
		e.recorder.RecordScenarioRun("monte_carlo")
	}
	return &result, nil
}

// RunStressTest replays a stress test's period impacts against the portfolio.
// The per-period time series is included only on request.
func (e *Engine) RunStressTest(ctx context.Context, portfolioID, stressTestID string, date time.Time, includeTimeSeries bool) (*models.StressTestResult, error) {
	if date.IsZero() {
		date = time.Now()
	}

	snapshot, err := e.snapshot(ctx, portfolioID, date)
	if err != nil {
		return nil, err
	}
	test, err := e.store.GetStressTest(stressTestID)
	if err != nil {
		return nil, err
	}

	result, err := e.scenarios.RunStressPath(snapshot, &test)
	if err != nil {
		return nil, err
	}
	if !includeTimeSeries {
		result.TimeSeries = nil
	}

	if e.recorder != nil {
		e.recorder.RecordScenarioRun("stress")
	}
	return &result, nil
}

// snapshot resolves a portfolio id into a priced snapshot as of date.
func (e *Engine) snapshot(ctx context.Context, portfolioID string, date time.Time) (*models.PortfolioSnapshot, error) {
	positions, err := e.portfolios.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return e.builder.BuildSnapshot(ctx, portfolioID, positions, date)
}

// scenarioExposures resolves the exposure matrix a scenario needs. Scenarios
// that shock only asset classes need no exposures at all.
func (e *Engine) scenarioExposures(ctx context.Context, snapshot *models.PortfolioSnapshot, sc *models.Scenario) (*models.ExposureMatrix, error) {
	factors := scenarioFactors(sc)
	if len(factors) == 0 {
		return nil, nil
	}

	// The scenario's factor list stands in for a model definition here; the
	// exposure provider only needs the factor names.
	model := models.RiskModel{
		ID:         "scenario:" + sc.ID,
		Parameters: models.ModelParameters{Factors: factors},
	}
	return e.builder.ResolveExposures(ctx, snapshot, model)
}

func scenarioFactors(sc *models.Scenario) []string {
	seen := make(map[string]bool)
	var factors []string
	for _, fs := range sc.FactorShocks {
		if !seen[fs.Factor] {
			seen[fs.Factor] = true
			factors = append(factors, fs.Factor)
		}
	}
	for _, spec := range sc.FactorSpecs {
		if !seen[spec.Factor] {
			seen[spec.Factor] = true
			factors = append(factors, spec.Factor)
		}
	}
	return factors
}
