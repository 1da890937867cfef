// SPDX-License-Identifier: MPL-2.0

// Package preprocess fits the per-fold feature pipeline: a low-information
// filter, a variance threshold, median imputation and standard scaling.
// Every statistic is learned on the training fold and replayed on held-out rows.
package preprocess

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNoFeatures is returned when every feature is filtered out.
	ErrNoFeatures = errors.New("no feature survives preprocessing")
	// ErrNotFitted is returned by Transform before Fit.
	ErrNotFitted = errors.New("pipeline is not fitted")
	// ErrShape is returned when a matrix does not have the fitted column count.
	ErrShape = errors.New("column count does not match the fitted pipeline")
)

type (
	// Options holds the thresholds of one trial.
	Options struct {
		// MaxNaNFraction drops features whose fraction of missing training
		// values is above it.
		MaxNaNFraction float64
		// VarianceThreshold drops features whose training variance is not
		// above it.
		VarianceThreshold float64
		// NoScale disables standard scaling.
		NoScale bool
	}

	// Pipeline is a fitted preprocessing pipeline.
	Pipeline struct {
		opts     Options
		inCols   int
		keep     []int
		features []string
		median   []float64
		mean     []float64
		scale    []float64
	}
)

// New returns an unfitted pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// Fit learns the surviving columns and their statistics from x, whose
// columns are named by names.
func (p *Pipeline) Fit(x mat.Matrix, names []string) error {
	n, c := x.Dims()
	if len(names) != c {
		return fmt.Errorf("%w: %d names for %d columns", ErrShape, len(names), c)
	}
	p.inCols = c
	p.keep, p.features = nil, nil
	p.median, p.mean, p.scale = nil, nil, nil

	col := make([]float64, n)
	for j := range c {
		mat.Col(col, j, x)
		observed := finite(col)
		if n == 0 || float64(n-len(observed))/float64(n) > p.opts.MaxNaNFraction {
			continue
		}
		if len(observed) == 0 {
			continue
		}
		_, variance := stat.PopMeanVariance(observed, nil)
		if !(variance > p.opts.VarianceThreshold) {
			continue
		}

		med := median(observed)
		imputed := make([]float64, n)
		for i, v := range col {
			if !isFinite(v) {
				v = med
			}
			imputed[i] = v
		}
		mean, std := stat.PopMeanStdDev(imputed, nil)
		if std == 0 || p.opts.NoScale {
			std = 1
		}
		if p.opts.NoScale {
			mean = 0
		}

		p.keep = append(p.keep, j)
		p.features = append(p.features, names[j])
		p.median = append(p.median, med)
		p.mean = append(p.mean, mean)
		p.scale = append(p.scale, std)
	}
	if len(p.keep) == 0 {
		return fmt.Errorf("%w (%d features, max NaN fraction %g, variance threshold %g)",
			ErrNoFeatures, c, p.opts.MaxNaNFraction, p.opts.VarianceThreshold)
	}
	return nil
}

// Transform applies the fitted pipeline to x.
func (p *Pipeline) Transform(x mat.Matrix) (*mat.Dense, error) {
	if p.keep == nil {
		return nil, ErrNotFitted
	}
	n, c := x.Dims()
	if c != p.inCols {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrShape, c, p.inCols)
	}
	if n == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(n, len(p.keep), nil)
	for k, j := range p.keep {
		for i := range n {
			v := x.At(i, j)
			if !isFinite(v) {
				v = p.median[k]
			}
			out.Set(i, k, (v-p.mean[k])/p.scale[k])
		}
	}
	return out, nil
}

// FitTransform fits on x and transforms it.
func (p *Pipeline) FitTransform(x mat.Matrix, names []string) (*mat.Dense, error) {
	if err := p.Fit(x, names); err != nil {
		return nil, err
	}
	return p.Transform(x)
}

// Features returns the surviving feature names in input order.
func (p *Pipeline) Features() []string { return slices.Clone(p.features) }

// Kept returns the input column indices of the surviving features.
func (p *Pipeline) Kept() []int { return slices.Clone(p.keep) }

func finite(col []float64) []float64 {
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if isFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// median averages the two middle values of an even-length sample.
func median(x []float64) float64 {
	s := slices.Clone(x)
	slices.Sort(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}
