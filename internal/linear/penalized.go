// SPDX-License-Identifier: MPL-2.0

package linear

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// maxIRLS caps the outer re-weighting loop of logistic fits.
const maxIRLS = 100

// minWeight keeps logistic working weights away from zero.
const minWeight = 1e-5

// Penalized is an elastic-net estimator fitted by cyclic coordinate descent.
// L1Ratio 1 is the lasso; Weights scales the penalty per feature and
// defaults to all ones. An infinite weight pins the coefficient at zero.
type Penalized struct {
	Alpha   float64
	L1Ratio float64
	Weights []float64
	MaxIter int
	Tol     float64
	Binary  bool

	coef      []float64
	intercept float64
	nIter     int
	converged bool
}

// Fit estimates the coefficients on x and y.
func (m *Penalized) Fit(x mat.Matrix, y []float64) error {
	n, p, err := checkShape(x, y)
	if err != nil {
		return err
	}
	if m.Weights != nil && len(m.Weights) != p {
		return fmt.Errorf("%w: %d penalty weights for %d features", ErrShape, len(m.Weights), p)
	}
	if m.MaxIter <= 0 {
		m.MaxIter = DefaultMaxIter
	}
	if m.Tol <= 0 {
		m.Tol = DefaultTol
	}
	cols := columns(x, n, p)
	m.coef = make([]float64, p)
	m.intercept = 0

	if !m.Binary {
		w := make([]float64, n)
		for i := range w {
			w[i] = 1
		}
		m.intercept = floats.Sum(y) / float64(n)
		m.nIter, m.converged = m.descend(cols, y, w)
		return nil
	}

	for _, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: got %g", ErrNotBinary, v)
		}
	}
	mean := floats.Sum(y) / float64(n)
	mean = math.Min(math.Max(mean, minWeight), 1-minWeight)
	m.intercept = math.Log(mean / (1 - mean))

	z := make([]float64, n)
	w := make([]float64, n)
	m.converged = false
	for range maxIRLS {
		eta := m.eta(cols, n)
		for i := range n {
			pr := sigmoid(eta[i])
			wi := math.Max(pr*(1-pr), minWeight)
			w[i] = wi
			z[i] = eta[i] + (y[i]-pr)/wi
		}
		prevCoef := slices.Clone(m.coef)
		prevIntercept := m.intercept
		iters, _ := m.descend(cols, z, w)
		m.nIter += iters

		delta := math.Abs(m.intercept - prevIntercept)
		for j := range m.coef {
			delta = math.Max(delta, math.Abs(m.coef[j]-prevCoef[j]))
		}
		if delta < m.Tol {
			m.converged = true
			break
		}
	}
	return nil
}

// descend runs weighted coordinate descent on 1/(2n) sum_i w_i (z_i - b0 - x_i b)^2
// plus the penalty, starting from the current coefficients.
func (m *Penalized) descend(cols [][]float64, z, w []float64) (int, bool) {
	n := len(z)
	fn := float64(n)
	sumW := floats.Sum(w)

	r := make([]float64, n)
	eta := m.eta(cols, n)
	for i := range n {
		r[i] = z[i] - eta[i]
	}

	norms := make([]float64, len(cols))
	for j, col := range cols {
		var s float64
		for i, v := range col {
			s += w[i] * v * v
		}
		norms[j] = s / fn
	}

	for iter := 1; iter <= m.MaxIter; iter++ {
		var maxDelta float64

		// Unpenalised intercept.
		var rs float64
		for i := range n {
			rs += w[i] * r[i]
		}
		if d := rs / sumW; d != 0 {
			m.intercept += d
			for i := range n {
				r[i] -= d
			}
			maxDelta = math.Abs(d)
		}

		for j, col := range cols {
			pw := m.penaltyWeight(j)
			if norms[j] == 0 || math.IsInf(pw, 1) {
				if m.coef[j] != 0 {
					floats.AddScaled(r, m.coef[j], col)
					m.coef[j] = 0
				}
				continue
			}
			old := m.coef[j]
			var rho float64
			for i, v := range col {
				rho += w[i] * v * r[i]
			}
			rho = rho/fn + norms[j]*old
			updated := softThreshold(rho, m.Alpha*pw*m.L1Ratio) / (norms[j] + m.Alpha*pw*(1-m.L1Ratio))
			if d := updated - old; d != 0 {
				floats.AddScaled(r, -d, col)
				m.coef[j] = updated
				maxDelta = math.Max(maxDelta, math.Abs(d))
			}
		}
		if maxDelta < m.Tol {
			return iter, true
		}
	}
	return m.MaxIter, false
}

func (m *Penalized) penaltyWeight(j int) float64 {
	if m.Weights == nil {
		return 1
	}
	return m.Weights[j]
}

func (m *Penalized) eta(cols [][]float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = m.intercept
	}
	for j, col := range cols {
		if m.coef[j] != 0 {
			floats.AddScaled(out, m.coef[j], col)
		}
	}
	return out
}

// Predict returns predictions for x.
func (m *Penalized) Predict(x mat.Matrix) []float64 {
	out := linearPredictor(x, m.coef, m.intercept)
	if m.Binary {
		for i, v := range out {
			out[i] = sigmoid(v)
		}
	}
	return out
}

// Coef returns a copy of the coefficients.
func (m *Penalized) Coef() []float64 { return slices.Clone(m.coef) }

// Intercept returns the fitted intercept.
func (m *Penalized) Intercept() float64 { return m.intercept }

// Converged reports whether the last Fit met the tolerance before MaxIter.
func (m *Penalized) Converged() bool { return m.converged }

// Iterations returns the coordinate-descent sweeps used by the last Fit.
func (m *Penalized) Iterations() int { return m.nIter }

// columns copies x into column-major slices for cache-friendly sweeps.
func columns(x mat.Matrix, n, p int) [][]float64 {
	cols := make([][]float64, p)
	for j := range p {
		cols[j] = mat.Col(make([]float64, n), j, x)
	}
	return cols
}
