// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// Cohort describes a synthetic study: Patients patients with Timepoints
// samples each, named P<nn>_T<t>. The outcome is a linear combination of
// the features plus Gaussian noise.
type Cohort struct {
	Dataset    string
	Features   []string
	Patients   int
	Timepoints int
	// Coef weights the features in order; missing entries are zero.
	Coef  []float64
	Noise float64
	Seed  [2]uint64
}

// WriteCohort writes <dir>/<Dataset>.csv and <dir>/outcome.csv with a
// sampleID column and an outcome column named ga.
func WriteCohort(t testing.TB, dir string, c Cohort) {
	t.Helper()
	rng := rand.New(rand.NewPCG(c.Seed[0], c.Seed[1]))

	var features, outcome strings.Builder
	features.WriteString("sampleID," + strings.Join(c.Features, ",") + "\n")
	outcome.WriteString("sampleID,ga\n")
	x := make([]float64, len(c.Features))
	for p := range c.Patients {
		for tp := range c.Timepoints {
			id := fmt.Sprintf("P%02d_T%d", p, tp)
			features.WriteString(id)
			for j := range x {
				x[j] = rng.NormFloat64()
				fmt.Fprintf(&features, ",%g", x[j])
			}
			features.WriteString("\n")
			fmt.Fprintf(&outcome, "%s,%g\n", id, combine(c.Coef, x)+c.Noise*rng.NormFloat64())
		}
	}
	MustWriteFile(t, filepath.Join(dir, c.Dataset+".csv"), features.String())
	MustWriteFile(t, filepath.Join(dir, "outcome.csv"), outcome.String())
}

// Regression returns an n x p standard normal design and y = X*coef + noise.
func Regression(seed1, seed2 uint64, n, p int, coef []float64, noise float64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewPCG(seed1, seed2))
	x := mat.NewDense(n, p, nil)
	y := make([]float64, n)
	row := make([]float64, p)
	for i := range n {
		for j := range p {
			row[j] = rng.NormFloat64()
			x.Set(i, j, row[j])
		}
		y[i] = combine(coef, row) + noise*rng.NormFloat64()
	}
	return x, y
}

func combine(coef, x []float64) float64 {
	var s float64
	for j, c := range coef {
		if j < len(x) {
			s += c * x[j]
		}
	}
	return s
}
