package risk

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/riskd/risk-engine/internal/estimator"
	"github.com/riskd/risk-engine/pkg/models"
)

// monteCarloStrategy draws correlated factor-shock vectors via Cholesky
// factorization of the covariance estimate, revalues the snapshot under each
// draw, then applies the historical-simulation tail logic to the simulated
// distribution. Draws are split across workers with fixed per-worker seed
// offsets, so a run is bit-reproducible for a given global seed and worker
// count.
type monteCarloStrategy struct {
	calc *Calculator
}

func (s *monteCarloStrategy) Estimate(ctx context.Context, input Input) (Estimate, error) {
	params := input.Model.Parameters

	cov, err := s.calc.covariance.Covariance(ctx, input.Snapshot.Symbols(), params.LookbackWindow, estimator.Spec{
		Method:     params.CovMethod,
		EwmaLambda: params.EwmaLambda,
	})
	if err != nil {
		return Estimate{}, err
	}

	chol, err := estimator.Cholesky(cov)
	if err != nil {
		return Estimate{}, err
	}

	studentT := params.Distribution == models.DistributionStudentT
	if studentT {
		if err := ValidateDegreesOfFreedom(params.DegreesOfFreedom); err != nil {
			return Estimate{}, err
		}
	}

	sims := params.Simulations
	if sims <= 0 {
		sims = 10000
	}
	seed := params.Seed
	if seed == 0 {
		seed = s.calc.defaultSeed
	}

	values := make([]float64, len(input.Snapshot.Positions))
	for i, p := range input.Snapshot.Positions {
		values[i] = p.MarketValue
	}

	pnl, err := s.simulate(ctx, chol, values, sims, seed, studentT, params.DegreesOfFreedom)
	if err != nil {
		return Estimate{}, err
	}

	varLoss, cvar := tailMetrics(pnl, params.ConfidenceLevel)
	scale := holdingScale(params.HoldingPeriod)

	portfolioReturns := make([]float64, len(pnl))
	for i, v := range pnl {
		portfolioReturns[i] = v / input.Snapshot.TotalValue
	}

	return Estimate{
		Method:     models.VaRMethodMonteCarlo,
		VaR:        varLoss * scale,
		CVaR:       cvar * scale,
		Volatility: StdDev(portfolioReturns),
	}, nil
}

// simulate fans the simulation count out across workers. Worker w fills its
// own contiguous slice segment from a source seeded at seed+w, and segments
// concatenate in worker order, keeping results deterministic.
func (s *monteCarloStrategy) simulate(ctx context.Context, chol *estimator.Matrix, values []float64, sims int, seed int64, studentT bool, df int) ([]float64, error) {
	workers := s.calc.workerCount
	if workers > sims {
		workers = 1
	}

	pnl := make([]float64, sims)
	n := len(values)

	g, ctx := errgroup.WithContext(ctx)
	chunk := sims / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if w == workers-1 {
			end = sims
		}
		source := NewShockSource(seed + int64(w))

		g.Go(func() error {
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				z := source.NormalVec(n)
				shocks := estimator.CorrelatedShock(chol, z)
				if studentT {
					tScale := source.TScale(df)
					for j := range shocks {
						shocks[j] *= tScale
					}
				}

				var v float64
				for j, mv := range values {
					v += mv * shocks[j]
				}
				pnl[i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pnl, nil
}
