package risk

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean of xs.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation of xs.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var variance float64
	for _, x := range xs {
		variance += (x - m) * (x - m)
	}
	return math.Sqrt(variance / float64(len(xs)))
}

// Percentile returns the p-th percentile (p in [0, 1]) of xs using linear
// interpolation between order statistics. xs need not be sorted.
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	upper := lower + 1
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// Median returns the 50th percentile of xs.
func Median(xs []float64) float64 {
	return Percentile(xs, 0.5)
}

// NormPDF is the standard normal density at z.
func NormPDF(z float64) float64 {
	return math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
}

// NormCDF is the standard normal cumulative distribution at z.
func NormCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// NormInv is the inverse standard normal CDF (probit), computed with the
// Acklam rational approximation. Accurate to ~1e-9 over (0, 1).
func NormInv(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const pLow = 0.02425
	const pHigh = 1 - pLow

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > pHigh:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}

// MaxDrawdown returns the largest peak-to-trough decline of a cumulative
// value path implied by a return series, as a positive fraction.
func MaxDrawdown(returns []float64) float64 {
	value := 1.0
	peak := 1.0
	var maxDD float64
	for _, r := range returns {
		value *= 1 + r
		if value > peak {
			peak = value
		}
		if dd := (peak - value) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// SharpeRatio returns the annualized Sharpe ratio of a daily return series.
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear float64) float64 {
	sd := StdDev(returns)
	if sd == 0 {
		return 0
	}
	excess := Mean(returns) - riskFreeRate/periodsPerYear
	return excess / sd * math.Sqrt(periodsPerYear)
}

// SortinoRatio returns the annualized Sortino ratio, penalizing only
// downside deviation.
func SortinoRatio(returns []float64, riskFreeRate float64, periodsPerYear float64) float64 {
	target := riskFreeRate / periodsPerYear
	var downside float64
	for _, r := range returns {
		if r < target {
			downside += (r - target) * (r - target)
		}
	}
	if downside == 0 {
		return 0
	}
	downsideDev := math.Sqrt(downside / float64(len(returns)))
	return (Mean(returns) - target) / downsideDev * math.Sqrt(periodsPerYear)
}

// Beta returns the slope of portfolio returns against benchmark returns.
func Beta(portfolio, benchmark []float64) float64 {
	n := len(portfolio)
	if n < 2 || len(benchmark) < n {
		return 0
	}
	benchmark = benchmark[len(benchmark)-n:]

	mp := Mean(portfolio)
	mb := Mean(benchmark)
	var cov, varB float64
	for i := 0; i < n; i++ {
		cov += (portfolio[i] - mp) * (benchmark[i] - mb)
		varB += (benchmark[i] - mb) * (benchmark[i] - mb)
	}
	if varB == 0 {
		return 0
	}
	return cov / varB
}
