// SPDX-License-Identifier: MPL-2.0

package linear

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// adaptiveEps keeps adaptive weights finite for zero initial coefficients.
const adaptiveEps = 1e-4

// Adaptive is the adaptive lasso: a ridge fit provides initial coefficients
// b0, then a lasso is fitted with penalty weights 1/(|b0_j| + eps)^Gamma.
type Adaptive struct {
	Alpha   float64
	Gamma   float64
	MaxIter int
	Tol     float64
	Binary  bool

	weights []float64
	lasso   *Penalized
}

// Fit runs the initial ridge fit and the weighted lasso.
func (m *Adaptive) Fit(x mat.Matrix, y []float64) error {
	var initial Estimator
	if m.Binary {
		initial = &Penalized{Alpha: m.Alpha, MaxIter: m.MaxIter, Tol: m.Tol, Binary: true}
	} else {
		initial = &Ridge{Alpha: m.Alpha}
	}
	if err := initial.Fit(x, y); err != nil {
		return err
	}

	b0 := initial.Coef()
	m.weights = make([]float64, len(b0))
	for j, b := range b0 {
		m.weights[j] = 1 / math.Pow(math.Abs(b)+adaptiveEps, m.Gamma)
	}
	m.lasso = &Penalized{
		Alpha:   m.Alpha,
		L1Ratio: 1,
		Weights: m.weights,
		MaxIter: m.MaxIter,
		Tol:     m.Tol,
		Binary:  m.Binary,
	}
	return m.lasso.Fit(x, y)
}

// Predict returns predictions of the weighted lasso, or nil before Fit.
func (m *Adaptive) Predict(x mat.Matrix) []float64 {
	if m.lasso == nil {
		return nil
	}
	return m.lasso.Predict(x)
}

// Coef returns a copy of the weighted-lasso coefficients, or nil before Fit.
func (m *Adaptive) Coef() []float64 {
	if m.lasso == nil {
		return nil
	}
	return m.lasso.Coef()
}

// Weights returns the penalty weights derived from the initial fit.
func (m *Adaptive) Weights() []float64 { return slices.Clone(m.weights) }
