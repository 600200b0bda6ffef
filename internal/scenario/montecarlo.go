package scenario

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/riskd/risk-engine/internal/estimator"
	"github.com/riskd/risk-engine/internal/risk"
	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
)

// RunMonteCarlo generates correlated factor shocks from the scenario's
// per-factor specs and correlation list, clips each draw to the factor's
// [min, max] band, applies the deterministic impact logic per draw and
// aggregates distributional statistics at the portfolio, position and factor
// level.
func (e *Engine) RunMonteCarlo(ctx context.Context, snapshot *models.PortfolioSnapshot, sc *models.Scenario, exposures *models.ExposureMatrix) (models.MonteCarloResult, error) {
	if sc.Type != models.ScenarioTypeMonteCarlo {
		return models.MonteCarloResult{}, errors.InvalidArgument("scenario %s is not a monte_carlo scenario", sc.ID)
	}
	if len(sc.FactorSpecs) == 0 {
		return models.MonteCarloResult{}, errors.InvalidArgument("scenario %s defines no factor specs", sc.ID)
	}
	if exposures == nil {
		return models.MonteCarloResult{}, errors.MissingExposure(snapshot.PortfolioID, sc.FactorSpecs[0].Factor)
	}

	nf := len(sc.FactorSpecs)
	vols := make([]float64, nf)
	index := make(map[string]int, nf)
	for i, spec := range sc.FactorSpecs {
		vols[i] = spec.Volatility
		index[spec.Factor] = i
	}

	cov, err := estimator.CorrelationToCovariance(vols, index, sc.Correlations)
	if err != nil {
		return models.MonteCarloResult{}, err
	}
	chol, err := estimator.Cholesky(cov)
	if err != nil {
		return models.MonteCarloResult{}, err
	}

	// Map exposure rows onto the scenario's factor ordering once.
	loadings, err := factorLoadings(snapshot, exposures, sc.FactorSpecs)
	if err != nil {
		return models.MonteCarloResult{}, err
	}

	studentT := sc.Distribution == models.DistributionStudentT
	if studentT {
		if err := risk.ValidateDegreesOfFreedom(sc.DegreesOfFreedom); err != nil {
			return models.MonteCarloResult{}, err
		}
	}

	sims := sc.Simulations
	if sims <= 0 {
		sims = 10000
	}
	seed := sc.Seed
	if seed == 0 {
		seed = 1
	}

	np := len(snapshot.Positions)
	portfolioImpacts := make([]float64, sims)
	positionImpacts := make([][]float64, np)
	for i := range positionImpacts {
		positionImpacts[i] = make([]float64, sims)
	}
	factorDraws := make([][]float64, nf)
	for f := range factorDraws {
		factorDraws[f] = make([]float64, sims)
	}

	workers := e.workerCount
	if workers > sims {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := sims / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if w == workers-1 {
			end = sims
		}
		source := risk.NewShockSource(seed + int64(w))

		g.Go(func() error {
			for s := start; s < end; s++ {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				z := source.NormalVec(nf)
				shocks := estimator.CorrelatedShock(chol, z)
				var tScale float64 = 1
				if studentT {
					tScale = source.TScale(sc.DegreesOfFreedom)
				}

				for f, spec := range sc.FactorSpecs {
					v := spec.Mean + shocks[f]*tScale
					if v < spec.Min {
						v = spec.Min
					}
					if v > spec.Max {
						v = spec.Max
					}
					factorDraws[f][s] = v
				}

				var total float64
				for i, p := range snapshot.Positions {
					var shock float64
					for f := range sc.FactorSpecs {
						shock += loadings[i][f] * factorDraws[f][s]
					}
					impact := p.MarketValue * shock
					positionImpacts[i][s] = impact
					total += impact
				}
				portfolioImpacts[s] = total
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return models.MonteCarloResult{}, err
	}

	result := models.MonteCarloResult{
		ScenarioID:      sc.ID,
		CalculationDate: snapshot.CalculationDate,
		Simulations:     sims,
		Seed:            seed,
		PortfolioValue:  snapshot.TotalValue,
		Portfolio:       distributionStats(portfolioImpacts),
		Positions:       make([]models.PositionDistribution, np),
		Factors:         make([]models.FactorRealizedStats, nf),
	}

	for i, p := range snapshot.Positions {
		result.Positions[i] = models.PositionDistribution{
			Symbol: p.Symbol,
			Stats:  distributionStats(positionImpacts[i]),
		}
	}
	for f, spec := range sc.FactorSpecs {
		stats := distributionStats(factorDraws[f])
		result.Factors[f] = models.FactorRealizedStats{
			Factor:         spec.Factor,
			RealizedMean:   stats.Mean,
			RealizedStdDev: stats.StdDev,
			RealizedMin:    stats.Min,
			RealizedMax:    stats.Max,
		}
	}

	return result, nil
}

// factorLoadings aligns exposure rows to the scenario's factor order.
func factorLoadings(snapshot *models.PortfolioSnapshot, exposures *models.ExposureMatrix, specs []models.FactorSpec) ([][]float64, error) {
	cols := make([]int, len(specs))
	exposureIndex := make(map[string]int, len(exposures.Factors))
	for j, f := range exposures.Factors {
		exposureIndex[f] = j
	}
	for i, spec := range specs {
		j, ok := exposureIndex[spec.Factor]
		if !ok {
			return nil, errors.MissingExposure(snapshot.PortfolioID, spec.Factor)
		}
		cols[i] = j
	}

	loadings := make([][]float64, len(snapshot.Positions))
	for i := range snapshot.Positions {
		row := make([]float64, len(specs))
		for f, j := range cols {
			row[f] = exposures.Exposures[i][j]
		}
		loadings[i] = row
	}
	return loadings, nil
}

func distributionStats(xs []float64) models.DistributionStats {
	if len(xs) == 0 {
		return models.DistributionStats{}
	}

	min, max := xs[0], xs[0]
	for _, x := range xs {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}

	return models.DistributionStats{
		Mean:         risk.Mean(xs),
		Median:       risk.Median(xs),
		Min:          min,
		Max:          max,
		StdDev:       risk.StdDev(xs),
		Percentile1:  risk.Percentile(xs, 0.01),
		Percentile5:  risk.Percentile(xs, 0.05),
		Percentile95: risk.Percentile(xs, 0.95),
		Percentile99: risk.Percentile(xs, 0.99),
	}
}
