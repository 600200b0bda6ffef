package estimator

import (
	"math"

	"github.com/riskd/risk-engine/pkg/utils/errors"
)

// pivotTolerance is the smallest diagonal pivot accepted during Cholesky
// factorization. Near-singular matrices below this are a defined failure.
const pivotTolerance = 1e-10

// Matrix is a square, row-major matrix used for covariance and correlation
// structures.
type Matrix struct {
	n    int
	data []float64
}

// NewMatrix creates an n×n zero matrix.
func NewMatrix(n int) *Matrix {
	return &Matrix{n: n, data: make([]float64, n*n)}
}

// MatrixFromRows creates a matrix from row slices. Rows must be square.
func MatrixFromRows(rows [][]float64) *Matrix {
	n := len(rows)
	m := NewMatrix(n)
	for i, row := range rows {
		for j, v := range row {
			m.Set(i, j, v)
		}
	}
	return m
}

// Dim returns the matrix dimension.
func (m *Matrix) Dim() int { return m.n }

// At returns the element at (i, j).
func (m *Matrix) At(i, j int) float64 { return m.data[i*m.n+j] }

// Set assigns the element at (i, j).
func (m *Matrix) Set(i, j int, v float64) { m.data[i*m.n+j] = v }

// Symmetrize replaces the matrix with (M + Mᵗ)/2, guarding against numerical
// asymmetry from raw estimation.
func (m *Matrix) Symmetrize() {
	for i := 0; i < m.n; i++ {
		for j := i + 1; j < m.n; j++ {
			avg := (m.At(i, j) + m.At(j, i)) / 2
			m.Set(i, j, avg)
			m.Set(j, i, avg)
		}
	}
}

// MulVec returns M·x.
func (m *Matrix) MulVec(x []float64) []float64 {
	out := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		var sum float64
		for j := 0; j < m.n; j++ {
			sum += m.At(i, j) * x[j]
		}
		out[i] = sum
	}
	return out
}

// QuadraticForm returns wᵗMw.
func (m *Matrix) QuadraticForm(w []float64) float64 {
	var total float64
	for i, mi := range m.MulVec(w) {
		total += w[i] * mi
	}
	return total
}

// AddJitter adds epsilon to the diagonal. Only invoked when a caller has
// explicitly opted into regularization; the default is to fail on non-PSD
// input rather than silently perturb risk numbers.
func (m *Matrix) AddJitter(epsilon float64) {
	for i := 0; i < m.n; i++ {
		m.Set(i, i, m.At(i, i)+epsilon)
	}
}

// Cholesky computes the lower-triangular factor L with M = L·Lᵗ. A
// non-positive pivot means the matrix is not positive definite within
// tolerance and yields a NonPSDCovarianceError.
func Cholesky(m *Matrix) (*Matrix, error) {
	n := m.Dim()
	l := NewMatrix(n)

	for j := 0; j < n; j++ {
		d := m.At(j, j)
		for k := 0; k < j; k++ {
			d -= l.At(j, k) * l.At(j, k)
		}
		if d <= pivotTolerance {
			return nil, errors.NonPSDCovariance("factorization pivot is not positive")
		}
		l.Set(j, j, math.Sqrt(d))

		for i := j + 1; i < n; i++ {
			s := m.At(i, j)
			for k := 0; k < j; k++ {
				s -= l.At(i, k) * l.At(j, k)
			}
			l.Set(i, j, s/l.At(j, j))
		}
	}

	return l, nil
}

// ValidatePSD reports whether the matrix admits a Cholesky factorization.
func ValidatePSD(m *Matrix) error {
	_, err := Cholesky(m)
	return err
}

// CorrelatedShock maps an independent standard-normal vector z through the
// Cholesky factor: shock = L·z.
func CorrelatedShock(l *Matrix, z []float64) []float64 {
	n := l.Dim()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j <= i; j++ {
			sum += l.At(i, j) * z[j]
		}
		out[i] = sum
	}
	return out
}
