// SPDX-License-Identifier: MPL-2.0

package linear

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when the normal equations cannot be factorised.
var ErrSingular = errors.New("normal equations are singular")

// Ridge solves least squares with an l2 penalty in closed form on centred
// data. Alpha 0 is ordinary least squares.
type Ridge struct {
	Alpha float64

	coef      []float64
	intercept float64
}

// Fit estimates the coefficients on x and y.
func (m *Ridge) Fit(x mat.Matrix, y []float64) error {
	n, p, err := checkShape(x, y)
	if err != nil {
		return err
	}
	yMean := floats.Sum(y) / float64(n)
	if p == 0 {
		m.coef, m.intercept = nil, yMean
		return nil
	}

	xc := mat.DenseCopyOf(x)
	means := make([]float64, p)
	for j := range p {
		col := mat.Col(nil, j, xc)
		means[j] = floats.Sum(col) / float64(n)
		floats.AddConst(-means[j], col)
		xc.SetCol(j, col)
	}
	yc := mat.NewVecDense(n, nil)
	for i, v := range y {
		yc.SetVec(i, v-yMean)
	}

	beta := mat.NewVecDense(p, nil)
	if m.Alpha == 0 {
		// Least squares through QR (tall) or LQ (wide, minimum norm).
		err := beta.SolveVec(xc, yc)
		var cond mat.Condition
		if err != nil && !errors.As(err, &cond) {
			return fmt.Errorf("%w: %w", ErrSingular, err)
		}
	} else {
		gram := mat.NewSymDense(p, nil)
		gram.SymOuterK(1, xc.T())
		for j := range p {
			gram.SetSym(j, j, gram.At(j, j)+float64(n)*m.Alpha)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(gram); !ok {
			return ErrSingular
		}
		var xty mat.VecDense
		xty.MulVec(xc.T(), yc)
		if err := chol.SolveVecTo(beta, &xty); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return fmt.Errorf("%w: %w", ErrSingular, err)
			}
		}
	}

	m.coef = make([]float64, p)
	for j := range p {
		m.coef[j] = beta.AtVec(j)
	}
	m.intercept = yMean - floats.Dot(means, m.coef)
	return nil
}

// Predict returns the linear predictor for x.
func (m *Ridge) Predict(x mat.Matrix) []float64 {
	return linearPredictor(x, m.coef, m.intercept)
}

// Coef returns a copy of the coefficients.
func (m *Ridge) Coef() []float64 { return slices.Clone(m.coef) }

// Intercept returns the fitted intercept.
func (m *Ridge) Intercept() float64 { return m.intercept }
