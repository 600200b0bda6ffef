package estimator

import (
	"context"
	"math"

	"github.com/riskd/risk-engine/pkg/models"
	"github.com/riskd/risk-engine/pkg/utils/errors"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

// weightTolerance is the allowed deviation of the normalized EWMA weight sum
// from 1.
const weightTolerance = 1e-9

// ReturnsSource provides historical return series for assets or factors.
// Series are ordered oldest first.
type ReturnsSource interface {
	GetReturns(ctx context.Context, id string, window int) ([]float64, error)
}

// Spec selects the covariance estimator variant for one calculation.
type Spec struct {
	Method     models.CovMethod
	EwmaLambda float64
	Regularize bool
	Jitter     float64
}

// Estimator builds return series and covariance matrices from a returns
// source.
type Estimator struct {
	source ReturnsSource
	log    *logger.Logger
}

// NewEstimator creates a covariance estimator over the given returns source.
func NewEstimator(source ReturnsSource) *Estimator {
	return &Estimator{
		source: source,
		log:    logger.GetLogger("estimator.covariance"),
	}
}

// Series fetches aligned return series for the given ids. Every series must
// cover the full lookback window; shorter series fail rather than silently
// truncate or pad.
func (e *Estimator) Series(ctx context.Context, ids []string, lookback int) ([][]float64, error) {
	series := make([][]float64, len(ids))
	for i, id := range ids {
		returns, err := e.source.GetReturns(ctx, id, lookback)
		if err != nil {
			return nil, err
		}
		if len(returns) < lookback {
			return nil, errors.InsufficientHistory(id, len(returns), lookback)
		}
		series[i] = returns[len(returns)-lookback:]
	}
	return series, nil
}

// Covariance estimates the covariance matrix for the given ids over the
// lookback window using the method selected by spec.
func (e *Estimator) Covariance(ctx context.Context, ids []string, lookback int, spec Spec) (*Matrix, error) {
	series, err := e.Series(ctx, ids, lookback)
	if err != nil {
		return nil, err
	}

	var cov *Matrix
	switch spec.Method {
	case models.CovMethodEWMA:
		cov, err = EWMACovariance(series, spec.EwmaLambda)
	default:
		cov, err = SampleCovariance(series)
	}
	if err != nil {
		return nil, err
	}

	if spec.Regularize {
		jitter := spec.Jitter
		if jitter == 0 {
			jitter = 1e-8
		}
		e.log.Warnf("applying explicit diagonal regularization jitter=%g to %d-factor covariance", jitter, len(ids))
		cov.AddJitter(jitter)
	}

	return cov, nil
}

// SampleCovariance estimates an equally weighted covariance matrix from
// aligned return series. The raw estimate is symmetrized by construction.
func SampleCovariance(series [][]float64) (*Matrix, error) {
	n := len(series)
	if n == 0 {
		return nil, errors.InvalidArgument("no return series supplied")
	}
	obs := len(series[0])
	if obs < 2 {
		return nil, errors.InsufficientHistory("sample covariance", obs, 2)
	}

	means := make([]float64, n)
	for i, s := range series {
		means[i] = mean(s)
	}

	cov := NewMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for k := 0; k < obs; k++ {
				sum += (series[i][k] - means[i]) * (series[j][k] - means[j])
			}
			cov.Set(i, j, sum/float64(obs-1))
		}
	}

	cov.Symmetrize()
	return cov, nil
}

// EWMACovariance estimates a recency-weighted covariance matrix. Weights are
// λ^k from the most recent observation and are normalized by their finite sum
// over the window, so they total 1 within tolerance regardless of truncation.
func EWMACovariance(series [][]float64, lambda float64) (*Matrix, error) {
	n := len(series)
	if n == 0 {
		return nil, errors.InvalidArgument("no return series supplied")
	}
	if lambda <= 0 || lambda >= 1 {
		return nil, errors.InvalidArgument("ewma lambda must be in (0, 1), got %g", lambda)
	}
	obs := len(series[0])
	if obs < 2 {
		return nil, errors.InsufficientHistory("ewma covariance", obs, 2)
	}

	weights, err := ewmaWeights(obs, lambda)
	if err != nil {
		return nil, err
	}

	means := make([]float64, n)
	for i, s := range series {
		for k, r := range s {
			means[i] += weights[k] * r
		}
	}

	cov := NewMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for k := 0; k < obs; k++ {
				sum += weights[k] * (series[i][k] - means[i]) * (series[j][k] - means[j])
			}
			cov.Set(i, j, sum)
		}
	}

	cov.Symmetrize()
	return cov, nil
}

// ewmaWeights returns normalized weights indexed oldest first, matching the
// series ordering. weights[obs-1] (most recent) carries λ^0.
func ewmaWeights(obs int, lambda float64) ([]float64, error) {
	weights := make([]float64, obs)
	var total float64
	for k := 0; k < obs; k++ {
		w := math.Pow(lambda, float64(k))
		weights[obs-1-k] = w
		total += w
	}

	var check float64
	for i := range weights {
		weights[i] /= total
		check += weights[i]
	}
	if math.Abs(check-1) > weightTolerance {
		return nil, errors.Internal("ewma weights sum to %g, expected 1 within %g", check, weightTolerance)
	}
	return weights, nil
}

// CorrelationToCovariance builds a covariance matrix from per-factor
// volatilities and a pairwise correlation list, as used by Monte Carlo
// scenarios.
func CorrelationToCovariance(vols []float64, index map[string]int, correlations []models.FactorCorrelation) (*Matrix, error) {
	n := len(vols)
	cov := NewMatrix(n)
	for i := 0; i < n; i++ {
		cov.Set(i, i, vols[i]*vols[i])
	}

	for _, c := range correlations {
		i, oki := index[c.FactorA]
		j, okj := index[c.FactorB]
		if !oki || !okj {
			return nil, errors.InvalidArgument("correlation references unknown factor %s/%s", c.FactorA, c.FactorB)
		}
		if c.Correlation < -1 || c.Correlation > 1 {
			return nil, errors.InvalidArgument("correlation %s/%s out of range: %g", c.FactorA, c.FactorB, c.Correlation)
		}
		v := c.Correlation * vols[i] * vols[j]
		cov.Set(i, j, v)
		cov.Set(j, i, v)
	}

	return cov, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
