// SPDX-License-Identifier: MPL-2.0

package decoy

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// sShrink keeps the equicorrelated s strictly inside the feasible region.
	sShrink = 1 - 1e-6
	// minS floors s when the feature covariance is singular.
	minS = 1e-6
	// jitterStart is the first diagonal jitter tried on a non-PD matrix.
	jitterStart = 1e-8
	// jitterTries bounds the number of times the jitter grows tenfold.
	jitterTries = 12
	// wideShrinkage floors the Ledoit-Wolf intensity when p >= n, where the
	// sample covariance is singular.
	wideShrinkage = 0.1
)

// ErrNotPositiveDefinite is returned when jitter cannot make a covariance factorisable.
var ErrNotPositiveDefinite = errors.New("covariance is not positive definite")

// knockoffs draws second-order Gaussian model-X knockoffs with the
// equicorrelated construction on standardised columns of x, in batches of p
// columns until k are available. The feature covariance is the Ledoit-Wolf
// estimate, which stays positive definite when p >= n.
func knockoffs(rng *rand.Rand, x *mat.Dense, k int) (*mat.Dense, error) {
	n, p := x.Dims()
	xs := standardise(x)

	sigma, _ := ledoitWolf(xs)

	var eig mat.EigenSym
	s := minS
	if eig.Factorize(sigma, false) {
		lambdaMin := floats.Min(eig.Values(nil))
		s = math.Max(math.Min(1, 2*lambdaMin)*sShrink, minS)
	}

	sigmaChol, err := factorise(sigma)
	if err != nil {
		return nil, err
	}
	var sigmaInv mat.SymDense
	if err := sigmaChol.InverseTo(&sigmaInv); err != nil {
		return nil, err
	}

	// mean = xs (I - s Sigma^-1)
	proj := mat.NewDense(p, p, nil)
	for i := range p {
		for j := range p {
			v := -s * sigmaInv.At(i, j)
			if i == j {
				v++
			}
			proj.Set(i, j, v)
		}
	}
	var mean mat.Dense
	mean.Mul(xs, proj)

	// cov = 2 s I - s^2 Sigma^-1
	cov := mat.NewSymDense(p, nil)
	for i := range p {
		for j := i; j < p; j++ {
			v := -s * s * sigmaInv.At(i, j)
			if i == j {
				v += 2 * s
			}
			cov.SetSym(i, j, v)
		}
	}
	covChol, err := factorise(cov)
	if err != nil {
		return nil, err
	}
	var lower mat.TriDense
	covChol.LTo(&lower)

	out := mat.NewDense(n, k, nil)
	z := mat.NewDense(n, p, nil)
	var batch mat.Dense
	for filled := 0; filled < k; {
		for i := range n {
			for j := range p {
				z.Set(i, j, rng.NormFloat64())
			}
		}
		batch.Mul(z, lower.T())
		batch.Add(&batch, &mean)
		take := min(p, k-filled)
		for j := range take {
			for i := range n {
				out.Set(i, filled+j, batch.At(i, j))
			}
		}
		filled += take
	}
	return out, nil
}

// ledoitWolf shrinks the sample covariance of the centred columns of xs
// towards mu*I, mu being its mean variance, with the Ledoit-Wolf intensity.
// It returns the shrunk matrix and the intensity in [0, 1].
func ledoitWolf(xs *mat.Dense) (*mat.SymDense, float64) {
	n, p := xs.Dims()
	cov := mat.NewSymDense(p, nil)
	cov.SymOuterK(1/float64(n), xs.T())
	mu := mat.Trace(cov) / float64(p)

	// delta = ||S - mu I||^2, norm = ||S||^2 (Frobenius)
	var delta, norm float64
	for i := range p {
		for j := range p {
			v := cov.At(i, j)
			norm += v * v
			if i == j {
				v -= mu
			}
			delta += v * v
		}
	}

	// beta = sum_k ||x_k x_k' - S||^2 / n^2
	var beta float64
	row := make([]float64, p)
	xk := mat.NewVecDense(p, row)
	var sx mat.VecDense
	for i := range n {
		mat.Row(row, i, xs)
		sx.MulVec(cov, xk)
		sq := floats.Dot(row, row)
		beta += sq*sq - 2*mat.Dot(xk, &sx) + norm
	}
	beta /= float64(n) * float64(n)

	rho := 1.0
	if delta > 0 {
		rho = math.Min(beta, delta) / delta
	}
	if p >= n {
		rho = math.Max(rho, wideShrinkage)
	}

	shrunk := mat.NewSymDense(p, nil)
	for i := range p {
		for j := i; j < p; j++ {
			v := (1 - rho) * cov.At(i, j)
			if i == j {
				v += rho * mu
			}
			shrunk.SetSym(i, j, v)
		}
	}
	return shrunk, rho
}

// factorise returns the Cholesky factor of a, adding growing diagonal jitter
// until it succeeds.
func factorise(a *mat.SymDense) (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if chol.Factorize(a) {
		return &chol, nil
	}
	p := a.SymmetricDim()
	jittered := mat.NewSymDense(p, nil)
	jitter := jitterStart
	for range jitterTries {
		jittered.CopySym(a)
		for i := range p {
			jittered.SetSym(i, i, a.At(i, i)+jitter)
		}
		if chol.Factorize(jittered) {
			return &chol, nil
		}
		jitter *= 10
	}
	return nil, ErrNotPositiveDefinite
}

// standardise centres every column and scales it to unit population variance.
// Constant columns are only centred.
func standardise(x *mat.Dense) *mat.Dense {
	n, p := x.Dims()
	out := mat.DenseCopyOf(x)
	col := make([]float64, n)
	for j := range p {
		mat.Col(col, j, out)
		mean := floats.Sum(col) / float64(n)
		floats.AddConst(-mean, col)
		sd := math.Sqrt(floats.Dot(col, col) / float64(n))
		if sd > 0 {
			floats.Scale(1/sd, col)
		}
		out.SetCol(j, col)
	}
	return out
}
