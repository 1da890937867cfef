// SPDX-License-Identifier: MPL-2.0

package preprocess

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"
)

var nan = math.NaN()

func trainMatrix() *mat.Dense {
	// columns: mostly missing, constant, informative with one NaN, informative
	return mat.NewDense(4, 4, []float64{
		nan, 5, 1, 2,
		nan, 5, nan, 4,
		nan, 5, 3, 6,
		1, 5, 5, 8,
	})
}

func TestPipeline_Fit(t *testing.T) {
	t.Parallel()

	names := []string{"sparse", "const", "a", "b"}
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{name: "a quarter missing", opts: Options{MaxNaNFraction: 0.25}, want: []string{"a", "b"}},
		{name: "lenient lif", opts: Options{MaxNaNFraction: 0.8}, want: []string{"a", "b"}},
		{name: "strict lif", opts: Options{MaxNaNFraction: 0}, want: []string{"b"}},
		{name: "variance", opts: Options{MaxNaNFraction: 1, VarianceThreshold: 3}, want: []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := New(tt.opts)
			if err := p.Fit(trainMatrix(), names); err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			if got := p.Features(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Features() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPipeline_Transform(t *testing.T) {
	t.Parallel()

	p := New(Options{MaxNaNFraction: 0.5})
	train, err := p.FitTransform(trainMatrix(), []string{"sparse", "const", "a", "b"})
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}
	if r, c := train.Dims(); r != 4 || c != 2 {
		t.Fatalf("FitTransform() dims = %dx%d, want 4x2", r, c)
	}
	// Column a: the NaN is imputed with median(1,3,5) = 3, so mean is 3.
	if got := train.At(1, 0); got != 0 {
		t.Errorf("imputed cell = %v, want 0", got)
	}
	for j := range 2 {
		col := mat.Col(nil, j, train)
		var sum, sq float64
		for _, v := range col {
			sum += v
			sq += v * v
		}
		if math.Abs(sum) > 1e-12 || math.Abs(sq/4-1) > 1e-12 {
			t.Errorf("column %d not standardised: sum %v, mean square %v", j, sum, sq/4)
		}
	}

	test := mat.NewDense(1, 4, []float64{9, 9, nan, 5})
	out, err := p.Transform(test)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if got := out.At(0, 0); got != 0 {
		t.Errorf("Transform() imputed test cell = %v, want 0 (training median)", got)
	}
	if got := out.At(0, 1); got != 0 {
		t.Errorf("Transform() b = %v, want 0 at the training mean", got)
	}
}

func TestPipeline_Errors(t *testing.T) {
	t.Parallel()

	p := New(Options{})
	if _, err := p.Transform(trainMatrix()); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Transform() before Fit error = %v, want ErrNotFitted", err)
	}
	if err := p.Fit(trainMatrix(), []string{"x"}); !errors.Is(err, ErrShape) {
		t.Errorf("Fit() with short names error = %v, want ErrShape", err)
	}

	all := New(Options{MaxNaNFraction: 1, VarianceThreshold: 100})
	if err := all.Fit(trainMatrix(), []string{"s", "c", "a", "b"}); !errors.Is(err, ErrNoFeatures) {
		t.Errorf("Fit() error = %v, want ErrNoFeatures", err)
	}

	ok := New(Options{MaxNaNFraction: 1})
	if err := ok.Fit(trainMatrix(), []string{"s", "c", "a", "b"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ok.Transform(mat.NewDense(1, 3, nil)); !errors.Is(err, ErrShape) {
		t.Errorf("Transform() with 3 columns error = %v, want ErrShape", err)
	}
}

func TestPipeline_InfiniteCells(t *testing.T) {
	t.Parallel()

	x := trainMatrix()
	x.Set(1, 2, math.Inf(1))
	x.Set(0, 3, math.Inf(-1))

	p := New(Options{MaxNaNFraction: 0.5})
	out, err := p.FitTransform(x, []string{"sparse", "const", "a", "b"})
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}
	r, c := out.Dims()
	for i := range r {
		for j := range c {
			if v := out.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("FitTransform()[%d,%d] = %v, want a finite value", i, j, v)
			}
		}
	}
	// +Inf in column a is imputed with median(1,3,5) = 3, the column mean.
	if got := out.At(1, 0); got != 0 {
		t.Errorf("imputed +Inf cell = %v, want 0", got)
	}
}
