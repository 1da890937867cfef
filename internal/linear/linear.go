// SPDX-License-Identifier: MPL-2.0

package linear

import (
	"errors"
	"fmt"
	"math"

	"github.com/stabl-dev/stabl/pkg/grid"

	"gonum.org/v1/gonum/mat"
)

const (
	// KindLasso is an l1-penalised fit.
	KindLasso Kind = "lasso"
	// KindAdaptiveLasso is a weighted lasso with ridge-derived weights.
	KindAdaptiveLasso Kind = "alasso"
	// KindElasticNet mixes l1 and l2 penalties.
	KindElasticNet Kind = "elastic_net"
	// KindOLS is unpenalised least squares (or logistic regression).
	KindOLS Kind = "ols"
	// KindRidge is an l2-penalised fit.
	KindRidge Kind = "ridge"

	// DefaultTol stops coordinate descent when no coefficient moves more than this.
	DefaultTol = 1e-4
	// DefaultMaxIter caps coordinate-descent sweeps when Spec.MaxIter is unset.
	DefaultMaxIter = 1000
	// DefaultL1Ratio is used by elastic net when the grid point has no l1_ratio.
	DefaultL1Ratio = 0.5
	// DefaultGamma is used by adaptive lasso when the grid point has no gamma.
	DefaultGamma = 1.0
	// DefaultAlpha is used when the grid point has no alpha.
	DefaultAlpha = 1.0
)

var (
	// ErrUnknownKind is returned by New for an unsupported estimator kind.
	ErrUnknownKind = errors.New("unknown estimator kind")
	// ErrInvalidSpec is returned by New for out-of-range parameters.
	ErrInvalidSpec = errors.New("invalid estimator spec")
	// ErrShape is returned when X and y disagree, or X has no rows.
	ErrShape = errors.New("inconsistent shapes")
	// ErrNotBinary is returned by logistic fits when y holds values other than 0 and 1.
	ErrNotBinary = errors.New("logistic outcome must be 0 or 1")
)

type (
	// Kind names an estimator family.
	Kind string

	// Spec fully describes one estimator.
	Spec struct {
		Kind    Kind
		Alpha   float64
		L1Ratio float64
		Gamma   float64
		MaxIter int
		Tol     float64
		// Binary selects the logistic loss.
		Binary bool
	}

	// Estimator is a fitted-or-fittable linear model.
	Estimator interface {
		Fit(x mat.Matrix, y []float64) error
		// Predict returns the linear predictor for continuous outcomes and the
		// positive-class probability for binary ones. It returns nil before Fit.
		Predict(x mat.Matrix) []float64
		// Coef returns a copy of the non-intercept coefficients, nil before Fit.
		Coef() []float64
	}
)

// FromPoint builds a Spec from a hyperparameter grid point, filling the
// parameters the point does not carry with package defaults.
func FromPoint(kind Kind, p grid.Point, maxIter int, binary bool) Spec {
	return Spec{
		Kind:    kind,
		Alpha:   p.Get("alpha", DefaultAlpha),
		L1Ratio: p.Get("l1_ratio", DefaultL1Ratio),
		Gamma:   p.Get("gamma", DefaultGamma),
		MaxIter: maxIter,
		Binary:  binary,
	}
}

// New returns an unfitted estimator for spec.
func New(spec Spec) (Estimator, error) {
	if spec.MaxIter <= 0 {
		spec.MaxIter = DefaultMaxIter
	}
	if spec.Tol <= 0 {
		spec.Tol = DefaultTol
	}
	if spec.Alpha < 0 || math.IsNaN(spec.Alpha) {
		return nil, fmt.Errorf("%w: alpha %g", ErrInvalidSpec, spec.Alpha)
	}

	switch spec.Kind {
	case KindLasso:
		return &Penalized{Alpha: spec.Alpha, L1Ratio: 1, MaxIter: spec.MaxIter, Tol: spec.Tol, Binary: spec.Binary}, nil
	case KindElasticNet:
		if spec.L1Ratio <= 0 || spec.L1Ratio > 1 {
			return nil, fmt.Errorf("%w: l1_ratio %g", ErrInvalidSpec, spec.L1Ratio)
		}
		return &Penalized{Alpha: spec.Alpha, L1Ratio: spec.L1Ratio, MaxIter: spec.MaxIter, Tol: spec.Tol, Binary: spec.Binary}, nil
	case KindAdaptiveLasso:
		if spec.Gamma <= 0 {
			return nil, fmt.Errorf("%w: gamma %g", ErrInvalidSpec, spec.Gamma)
		}
		return &Adaptive{Alpha: spec.Alpha, Gamma: spec.Gamma, MaxIter: spec.MaxIter, Tol: spec.Tol, Binary: spec.Binary}, nil
	case KindOLS:
		if spec.Binary {
			return &Penalized{MaxIter: spec.MaxIter, Tol: spec.Tol, Binary: true}, nil
		}
		return &Ridge{}, nil
	case KindRidge:
		if spec.Binary {
			return &Penalized{Alpha: spec.Alpha, MaxIter: spec.MaxIter, Tol: spec.Tol, Binary: true}, nil
		}
		return &Ridge{Alpha: spec.Alpha}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}

func checkShape(x mat.Matrix, y []float64) (n, p int, err error) {
	n, p = x.Dims()
	if n == 0 || n != len(y) {
		return n, p, fmt.Errorf("%w: X is %dx%d, y has %d values", ErrShape, n, p, len(y))
	}
	return n, p, nil
}

// linearPredictor returns intercept + X coef, or nil when coef does not
// match the columns of x, as for an unfitted model.
func linearPredictor(x mat.Matrix, coef []float64, intercept float64) []float64 {
	n, p := x.Dims()
	if len(coef) != p {
		return nil
	}
	out := make([]float64, n)
	for i := range n {
		s := intercept
		for j := range p {
			if coef[j] != 0 {
				s += x.At(i, j) * coef[j]
			}
		}
		out[i] = s
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func softThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}
