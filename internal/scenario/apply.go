// Package scenario applies deterministic shocks, sequential stress paths and
// correlated Monte Carlo scenario generation to portfolio snapshots.
package scenario

import (
	"sort"

	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

// Engine applies scenarios and stress tests. All methods are pure functions
// of their inputs.
type Engine struct {
	workerCount int
	log         *logger.Logger
}

// NewEngine creates a scenario engine.
func NewEngine(workerCount int) *Engine {
	if workerCount <= 0 {
		workerCount = 4
	}
	return &Engine{
		workerCount: workerCount,
		log:         logger.GetLogger("scenario.engine"),
	}
}

// positionShock resolves a position's fractional impact under a scenario:
// an asset-class impact when the scenario defines one, otherwise the
// factor-exposure-weighted sum of the scenario's factor shocks.
func positionShock(p models.Position, scenario *models.Scenario, exposures *models.ExposureMatrix, row int) (float64, error) {
	if impact, ok := scenario.AssetClassImpacts[p.AssetClass]; ok {
		return impact, nil
	}

	if len(scenario.FactorShocks) == 0 {
		return 0, errors.InvalidArgument("scenario %s defines no impact for asset class %s", scenario.ID, p.AssetClass)
	}
	if exposures == nil {
		return 0, errors.MissingExposure(p.Symbol, scenario.FactorShocks[0].Factor)
	}

	factorIndex := make(map[string]int, len(exposures.Factors))
	for i, f := range exposures.Factors {
		factorIndex[f] = i
	}

	var shock float64
	for _, fs := range scenario.FactorShocks {
		j, ok := factorIndex[fs.Factor]
		if !ok {
			return 0, errors.MissingExposure(p.Symbol, fs.Factor)
		}
		shock += exposures.Exposures[row][j] * fs.Shock
	}
	return shock, nil
}

// Apply runs a deterministic scenario against a snapshot. Each position's
// impact is its market value times its resolved shock; the portfolio impact
// is the sum.
func (e *Engine) Apply(snapshot *models.PortfolioSnapshot, scenario *models.Scenario, exposures *models.ExposureMatrix) (models.ScenarioImpact, error) {
	impact := models.ScenarioImpact{
		ScenarioID:      scenario.ID,
		ScenarioName:    scenario.Name,
		CalculationDate: snapshot.CalculationDate,
		PortfolioValue:  snapshot.TotalValue,
		PositionImpacts: make([]models.PositionImpact, 0, len(snapshot.Positions)),
	}

	for i, p := range snapshot.Positions {
		shock, err := positionShock(p, scenario, exposures, i)
		if err != nil {
			return models.ScenarioImpact{}, err
		}

		change := p.MarketValue * shock
		impact.PositionImpacts = append(impact.PositionImpacts, models.PositionImpact{
			Symbol:        p.Symbol,
			BaseValue:     p.MarketValue,
			Impact:        change,
			ImpactPct:     shock,
			StressedValue: p.MarketValue + change,
		})
		impact.PortfolioImpact += change
	}

	if snapshot.TotalValue != 0 {
		impact.PortfolioImpactPct = impact.PortfolioImpact / snapshot.TotalValue
	}
	return impact, nil
}

// RunStressPath applies a sequence of period impacts to a snapshot. Impacts
// compound: each period's percentage applies to the already-stressed value of
// the prior period, not the original baseline, so later-period recovery is
// relative to the stressed level.
func (e *Engine) RunStressPath(snapshot *models.PortfolioSnapshot, test *models.StressTest) (models.StressTestResult, error) {
	if len(test.PeriodImpacts) == 0 {
		return models.StressTestResult{}, errors.InvalidArgument("stress test %s defines no period impacts", test.ID)
	}

	result := models.StressTestResult{
		StressTestID:    test.ID,
		CalculationDate: snapshot.CalculationDate,
		BaseValue:       snapshot.TotalValue,
		TimeSeries:      make([]models.PeriodImpact, 0, len(test.PeriodImpacts)),
	}

	value := snapshot.TotalValue
	for i, pct := range test.PeriodImpacts {
		change := value * pct
		value += change

		label := ""
		if i < len(test.PeriodLabels) {
			label = test.PeriodLabels[i]
		}
		result.TimeSeries = append(result.TimeSeries, models.PeriodImpact{
			Label:          label,
			ImpactPct:      pct,
			PortfolioValue: value,
			ValueChange:    change,
		})
	}

	result.FinalValue = value
	result.OverallImpact = value - snapshot.TotalValue
	if snapshot.TotalValue != 0 {
		result.OverallImpactPct = result.OverallImpact / snapshot.TotalValue
	}

	// Position impacts under the cumulative path, pro-rata by market value.
	cumulative := result.OverallImpactPct
	result.PositionImpacts = make([]models.PositionImpact, 0, len(snapshot.Positions))
	for _, p := range snapshot.Positions {
		change := p.MarketValue * cumulative
		result.PositionImpacts = append(result.PositionImpacts, models.PositionImpact{
			Symbol:        p.Symbol,
			BaseValue:     p.MarketValue,
			Impact:        change,
			ImpactPct:     cumulative,
			StressedValue: p.MarketValue + change,
		})
	}

	return result, nil
}

// Compare aggregates already-computed scenario impacts, worst first.
func (e *Engine) Compare(impacts []models.ScenarioImpact) []models.ScenarioImpact {
	out := make([]models.ScenarioImpact, len(impacts))
	copy(out, impacts)
	sort.Slice(out, func(i, j int) bool {
		return out[i].PortfolioImpact < out[j].PortfolioImpact
	})
	return out
}
