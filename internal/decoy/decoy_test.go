// SPDX-License-Identifier: MPL-2.0

package decoy

import (
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"slices"
	"testing"

	"github.com/stabl-dev/stabl/pkg/experiment"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func sample(n, p int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, 7))
	data := make([]float64, n*p)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(n, p, data)
}

func TestCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		p          int
		proportion float64
		want       int
	}{
		{p: 10, proportion: 1, want: 10},
		{p: 10, proportion: 0.25, want: 2},
		{p: 3, proportion: 0.1, want: 1},
		{p: 4, proportion: 2.5, want: 10},
	}
	for _, tt := range tests {
		if got := Count(tt.p, tt.proportion); got != tt.want {
			t.Errorf("Count(%d, %g) = %d, want %d", tt.p, tt.proportion, got, tt.want)
		}
	}
}

func TestNames(t *testing.T) {
	t.Parallel()

	if got, want := Names(3), []string{"artificial_0", "artificial_1", "artificial_2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names(3) = %v, want %v", got, want)
	}
	if !IsDecoy("artificial_12") || IsDecoy("CD4_pSTAT1") || IsDecoy(Prefix) {
		t.Error("IsDecoy() misclassifies names")
	}
}

func TestGenerate_RandomPermutation(t *testing.T) {
	t.Parallel()

	x := sample(20, 4, 1)
	d, err := Generate(rand.New(rand.NewPCG(3, 4)), x, experiment.DecoyRandomPermutation, 0.5)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if r, c := d.Dims(); r != 20 || c != 2 {
		t.Fatalf("Generate() dims = %dx%d, want 20x2", r, c)
	}

	// Every decoy column is a row permutation of some source column.
	for c := range 2 {
		got := mat.Col(nil, c, d)
		slices.Sort(got)
		found := false
		for j := range 4 {
			src := mat.Col(nil, j, x)
			slices.Sort(src)
			if slices.Equal(got, src) {
				found = true
			}
		}
		if !found {
			t.Errorf("decoy %d is not a permutation of any feature", c)
		}
	}

	again, _ := Generate(rand.New(rand.NewPCG(3, 4)), x, experiment.DecoyRandomPermutation, 0.5)
	if !mat.Equal(d, again) {
		t.Error("Generate() is not reproducible for the same RNG seed")
	}
}

func TestGenerate_MoreDecoysThanFeatures(t *testing.T) {
	t.Parallel()

	x := sample(10, 2, 2)
	d, err := Generate(rand.New(rand.NewPCG(1, 1)), x, experiment.DecoyRandomPermutation, 3)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, c := d.Dims(); c != 6 {
		t.Errorf("Generate() columns = %d, want 6", c)
	}
}

func TestGenerate_Knockoff(t *testing.T) {
	t.Parallel()

	x := sample(400, 5, 5)
	d, err := Generate(rand.New(rand.NewPCG(9, 9)), x, experiment.DecoyKnockoff, 1.4)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if r, c := d.Dims(); r != 400 || c != 7 {
		t.Fatalf("Generate() dims = %dx%d, want 400x7", r, c)
	}
	for j := range 7 {
		col := mat.Col(nil, j, d)
		for _, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("knockoff %d has a non-finite value", j)
			}
		}
	}
	// For nearly independent features the knockoff of feature j is nearly
	// independent of it.
	for j := range 5 {
		r := stat.Correlation(mat.Col(nil, j, x), mat.Col(nil, j, d), nil)
		if math.Abs(r) > 0.3 {
			t.Errorf("corr(x%d, knockoff%d) = %v, want near 0", j, j, r)
		}
	}
}

func TestGenerate_KnockoffCollinear(t *testing.T) {
	t.Parallel()

	x := sample(50, 3, 6)
	for i := range 50 {
		x.Set(i, 2, 2*x.At(i, 0))
	}
	if _, err := Generate(rand.New(rand.NewPCG(1, 2)), x, experiment.DecoyKnockoff, 1); err != nil {
		t.Errorf("Generate() on collinear features error = %v", err)
	}
}

func TestGenerate_KnockoffWide(t *testing.T) {
	t.Parallel()

	// More features than samples: the sample covariance is singular.
	x := sample(20, 60, 11)
	d, err := Generate(rand.New(rand.NewPCG(3, 4)), x, experiment.DecoyKnockoff, 1)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	var mean float64
	for j := range 60 {
		mean += stat.Correlation(mat.Col(nil, j, x), mat.Col(nil, j, d), nil) / 60
	}
	if mean > 0.5 {
		t.Errorf("mean corr(x_j, knockoff_j) = %v, want well below 1", mean)
	}
}

func TestLedoitWolf(t *testing.T) {
	t.Parallel()

	// two strongly correlated pairs leave little to shrink
	paired := sample(500, 4, 2)
	for i := range 500 {
		paired.Set(i, 1, paired.At(i, 0)+0.1*paired.At(i, 1))
		paired.Set(i, 3, paired.At(i, 2)+0.1*paired.At(i, 3))
	}

	tests := []struct {
		name   string
		x      *mat.Dense
		minRho float64
		maxRho float64
	}{
		{name: "correlated pairs", x: paired, minRho: 0, maxRho: 0.2},
		{name: "independent", x: sample(500, 4, 4), minRho: 0.5, maxRho: 1},
		{name: "wide", x: sample(10, 40, 3), minRho: wideShrinkage, maxRho: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sigma, rho := ledoitWolf(standardise(tt.x))
			if rho < tt.minRho || rho > tt.maxRho {
				t.Errorf("ledoitWolf() intensity = %v, want in [%v, %v]", rho, tt.minRho, tt.maxRho)
			}
			var chol mat.Cholesky
			if !chol.Factorize(sigma) {
				t.Error("ledoitWolf() is not positive definite")
			}
		})
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	x := sample(5, 2, 1)
	if _, err := Generate(rng, x, "gaussian", 1); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("Generate(gaussian) error = %v, want ErrUnknownStrategy", err)
	}
	if _, err := Generate(rng, x, experiment.DecoyKnockoff, 0); !errors.Is(err, ErrInvalidProportion) {
		t.Errorf("Generate(proportion 0) error = %v, want ErrInvalidProportion", err)
	}
	if _, err := Generate(rng, &mat.Dense{}, experiment.DecoyKnockoff, 1); !errors.Is(err, ErrEmptyMatrix) {
		t.Errorf("Generate(empty) error = %v, want ErrEmptyMatrix", err)
	}
}

func TestAugment(t *testing.T) {
	t.Parallel()

	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	d := mat.NewDense(2, 1, []float64{9, 8})
	got := Augment(x, d)
	want := mat.NewDense(2, 3, []float64{1, 2, 9, 3, 4, 8})
	if !mat.Equal(got, want) {
		t.Errorf("Augment() = %v, want %v", mat.Formatted(got), mat.Formatted(want))
	}
}
