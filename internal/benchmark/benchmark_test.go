// SPDX-License-Identifier: MPL-2.0

package benchmark

import (
	"fmt"
	"io"
	"testing"

	"github.com/stabl-dev/stabl/internal/linear"
	"github.com/stabl-dev/stabl/internal/run"
	"github.com/stabl-dev/stabl/internal/stability"
	"github.com/stabl-dev/stabl/internal/testutil"
	"github.com/stabl-dev/stabl/internal/tuning"
	"github.com/stabl-dev/stabl/pkg/experiment"
	"github.com/stabl-dev/stabl/pkg/grid"
)

const (
	// sampleManifest is a representative manifest: two datasets, two models
	// and a small trial grid.
	sampleManifest = `
name: "preterm"
datasets: ["immune", "proteome"]
models: {lasso: true, stabl_lasso: true, stabl_elastic_net: true}
general: {
	inner_cv: [5, 2]
	n_jobs: {stabl: -1, plain: 2}
}
preprocessing: lif_thresholds: [0.2, 0.4]
stabl: {
	n_bootstraps: [200, 500]
	replace: [false, true]
	artificial_types: ["random_permutation", "knockoff"]
	fdr_thresholds: [[0.3, 0.6, 0.01], [0.6, 1.0, 0.05]]
}
hyperparameters: {
	lasso: {alpha: {type: "log", val: [-2, 2, 30]}}
	stabl_lasso: {alpha: {type: "log", val: [-2, 1, 30]}}
	stabl_elastic_net: {
		alpha: {type: "log", val: [-2, 1, 30]}
		l1_ratio: {type: "lin", val: [0.5, 0.9, 3]}
		max_iter: 5000
	}
}
data: stims: ["unstim", "LPS"]
final_model: {
	kind: "ridge"
	hyperparameters: alpha: {type: "log", val: [-3, 2, 20]}
}
`

	sampleTOML = `
name = "preterm"
datasets = ["immune", "proteome"]

[models]
lasso = true
stabl_lasso = true

[hyperparameters.lasso]
alpha = { type = "log", val = [-2, 2, 30] }

[hyperparameters.stabl_lasso]
alpha = { type = "log", val = [-2, 1, 30] }
`
)

// BenchmarkManifestParsing benchmarks CUE schema unification and validation.
// This exercises the hot path in pkg/cueutil/parse.go.
func BenchmarkManifestParsing(b *testing.B) {
	data := []byte(sampleManifest)

	b.ResetTimer()
	for b.Loop() {
		if _, err := experiment.Parse(data, "experiment.cue"); err != nil {
			b.Fatalf("Parse failed: %v", err)
		}
	}
}

// BenchmarkManifestParsingTOML benchmarks the TOML to CUE path.
func BenchmarkManifestParsingTOML(b *testing.B) {
	data := []byte(sampleTOML)

	b.ResetTimer()
	for b.Loop() {
		if _, err := experiment.Parse(data, "experiment.toml"); err != nil {
			b.Fatalf("Parse failed: %v", err)
		}
	}
}

// BenchmarkTrials benchmarks trial expansion and threshold merging.
func BenchmarkTrials(b *testing.B) {
	m, err := experiment.Parse([]byte(sampleManifest), "experiment.cue")
	if err != nil {
		b.Fatalf("Parse failed: %v", err)
	}

	b.ResetTimer()
	for b.Loop() {
		if len(m.Trials()) != 16 {
			b.Fatal("unexpected trial count")
		}
		if _, err := m.Thresholds(); err != nil {
			b.Fatalf("Thresholds failed: %v", err)
		}
	}
}

// BenchmarkFit benchmarks one coordinate-descent fit per estimator family
// on a 200 x 100 design.
func BenchmarkFit(b *testing.B) {
	x, y := testutil.Regression(1, 2, 200, 100, []float64{3, -2, 1.5, 1}, 0.5)
	binary := make([]float64, len(y))
	for i, v := range y {
		if v > 0 {
			binary[i] = 1
		}
	}

	specs := []struct {
		name string
		spec linear.Spec
		y    []float64
	}{
		{"lasso", linear.Spec{Kind: linear.KindLasso, Alpha: 0.1}, y},
		{"elastic_net", linear.Spec{Kind: linear.KindElasticNet, Alpha: 0.1, L1Ratio: 0.5}, y},
		{"alasso", linear.Spec{Kind: linear.KindAdaptiveLasso, Alpha: 0.1, Gamma: 1}, y},
		{"ridge", linear.Spec{Kind: linear.KindRidge, Alpha: 1}, y},
		{"logistic_lasso", linear.Spec{Kind: linear.KindLasso, Alpha: 0.05, Binary: true}, binary},
	}
	for _, s := range specs {
		b.Run(s.name, func(b *testing.B) {
			for b.Loop() {
				est, err := linear.New(s.spec)
				if err != nil {
					b.Fatalf("New failed: %v", err)
				}
				if err := est.Fit(x, s.y); err != nil {
					b.Fatalf("Fit failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkTune benchmarks the inner-CV grid search of a plain model.
func BenchmarkTune(b *testing.B) {
	x, y := testutil.Regression(3, 4, 120, 40, []float64{2, 0, -1}, 0.3)
	points, err := grid.Spec{Scale: grid.ScaleLog, Low: -2, High: 1, Count: 10}.Values()
	if err != nil {
		b.Fatalf("grid failed: %v", err)
	}
	cfg := tuning.Config{
		Kind:    linear.KindLasso,
		Points:  grid.Product(map[string][]float64{"alpha": points}),
		Folds:   5,
		Repeats: 1,
		Seed:    42,
		Workers: 4,
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := tuning.Tune(b.Context(), x, y, cfg); err != nil {
			b.Fatalf("Tune failed: %v", err)
		}
	}
}

// BenchmarkStabilitySelect benchmarks bootstraps, decoys and the FDR sweep.
func BenchmarkStabilitySelect(b *testing.B) {
	const n, p = 100, 50
	x, y := testutil.Regression(5, 6, n, p, []float64{3, 2, -2}, 0.2)
	names := make([]string, p)
	for j := range names {
		names[j] = fmt.Sprintf("f%d", j)
	}
	cfg := stability.Config{
		Base:            linear.KindLasso,
		Path:            grid.Product(map[string][]float64{"alpha": {0.05, 0.1, 0.3, 1}}),
		NBootstraps:     50,
		SampleFraction:  0.5,
		Decoy:           experiment.DecoyRandomPermutation,
		DecoyProportion: 1,
		Thresholds:      []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
		Workers:         4,
		Seed:            42,
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := stability.Select(b.Context(), x, y, names, cfg); err != nil {
			b.Fatalf("Select failed: %v", err)
		}
	}
}

// BenchmarkFullRun benchmarks a complete run: loading, outer CV, tuning,
// stability selection and checkpointing.
func BenchmarkFullRun(b *testing.B) {
	dataDir := b.TempDir()
	testutil.WriteCohort(b, dataDir, testutil.Cohort{
		Dataset:    "immune",
		Features:   []string{"f0", "f1", "f2", "f3", "f4", "f5"},
		Patients:   20,
		Timepoints: 2,
		Coef:       []float64{2, -1},
		Noise:      0.1,
		Seed:       [2]uint64{7, 9},
	})
	m := experiment.Default()
	m.Name = "bench"
	m.Datasets = []experiment.DatasetID{"immune"}
	m.Data.Dir = dataDir
	m.General.InnerCV = experiment.InnerCV{3, 1}
	m.Stabl.NBootstraps = []int{20}
	m.OuterCV.Splits = 2

	b.ResetTimer()
	for b.Loop() {
		r := run.New(m, run.Options{ResultsDir: b.TempDir(), ProgressOutput: io.Discard})
		if _, err := r.Run(b.Context()); err != nil {
			b.Fatalf("Run failed: %v", err)
		}
	}
}
