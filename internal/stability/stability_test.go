// SPDX-License-Identifier: MPL-2.0

package stability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"testing"

	"github.com/stabl-dev/stabl/internal/linear"
	"github.com/stabl-dev/stabl/internal/testutil"
	"github.com/stabl-dev/stabl/pkg/experiment"
	"github.com/stabl-dev/stabl/pkg/grid"

	"gonum.org/v1/gonum/mat"
)

// problem returns 80 samples of 8 standard-normal features where only the
// first two drive the outcome.
func problem() (*mat.Dense, []float64, []string) {
	const n, p = 80, 8
	x, y := testutil.Regression(11, 13, n, p, []float64{3, 2}, 0.1)
	names := make([]string, p)
	for j := range names {
		names[j] = fmt.Sprintf("f%d", j)
	}
	return x, y, names
}

func baseConfig() Config {
	return Config{
		Base:            linear.KindLasso,
		Path:            grid.Product(map[string][]float64{"alpha": {0.1, 0.3, 1}}),
		NBootstraps:     20,
		SampleFraction:  0.5,
		Decoy:           experiment.DecoyRandomPermutation,
		DecoyProportion: 1,
		Thresholds:      []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
		Workers:         1,
		Seed:            42,
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	x, y, names := problem()
	res, err := Select(context.Background(), x, y, names, baseConfig())
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if !slices.Contains(res.Selected, "f0") || !slices.Contains(res.Selected, "f1") {
		t.Errorf("Selected = %v, want f0 and f1 among them", res.Selected)
	}
	if res.Scores[0] != 1 || res.Scores[1] != 1 {
		t.Errorf("Scores[0:2] = %v, want [1 1]", res.Scores[:2])
	}
	if len(res.DecoyScores) != 8 || len(res.Path) != 3 || len(res.Path[0]) != 16 {
		t.Errorf("result shapes: %d decoy scores, %d path rows of %d", len(res.DecoyScores), len(res.Path), len(res.Path[0]))
	}
	if len(res.FDP) != len(res.Thresholds) || res.Hard {
		t.Errorf("FDP has %d values for %d thresholds, Hard = %v", len(res.FDP), len(res.Thresholds), res.Hard)
	}
	if !slices.Contains(res.Thresholds, res.Threshold) {
		t.Errorf("Threshold = %v, want one of the swept thresholds", res.Threshold)
	}
	for k, j := range res.SelectedIndex {
		if names[j] != res.Selected[k] || res.Scores[j] < res.Threshold {
			t.Errorf("selected %s has score %v below threshold %v", res.Selected[k], res.Scores[j], res.Threshold)
		}
	}
}

func TestSelect_DeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	x, y, names := problem()
	serial, err := Select(context.Background(), x, y, names, baseConfig())
	if err != nil {
		t.Fatal(err)
	}
	cfg := baseConfig()
	cfg.Workers = 4
	parallel, err := Select(context.Background(), x, y, names, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(serial, parallel) {
		t.Error("Select() result depends on the number of workers")
	}
}

func TestSelect_HardThreshold(t *testing.T) {
	t.Parallel()

	x, y, names := problem()
	cfg := baseConfig()
	hard := 1.0
	cfg.HardThreshold = &hard
	cfg.Thresholds = nil
	cfg.Replace = true

	res, err := Select(context.Background(), x, y, names, cfg)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !res.Hard || res.Threshold != 1 || !math.IsNaN(res.MinFDP) {
		t.Errorf("Hard = %v, Threshold = %v, MinFDP = %v", res.Hard, res.Threshold, res.MinFDP)
	}
	for k, j := range res.SelectedIndex {
		if res.Scores[j] != 1 {
			t.Errorf("selected %s has score %v, want 1", res.Selected[k], res.Scores[j])
		}
	}
}

func TestSelect_Errors(t *testing.T) {
	t.Parallel()

	x, y, names := problem()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "no path", mutate: func(c *Config) { c.Path = nil }, want: ErrNoPath},
		{name: "no thresholds", mutate: func(c *Config) { c.Thresholds = nil }, want: ErrNoThresholds},
		{name: "tiny fraction", mutate: func(c *Config) { c.SampleFraction = 0.01 }, want: ErrSubsampleTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			tt.mutate(&cfg)
			if _, err := Select(context.Background(), x, y, names, cfg); !errors.Is(err, tt.want) {
				t.Errorf("Select() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Select(context.Background(), x, y, names[:3], baseConfig()); !errors.Is(err, linear.ErrShape) {
		t.Errorf("Select() with short names error = %v, want ErrShape", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Select(ctx, x, y, names, baseConfig()); !errors.Is(err, context.Canceled) {
		t.Errorf("Select() with cancelled context error = %v, want context.Canceled", err)
	}
}

func TestSweep(t *testing.T) {
	t.Parallel()

	scores := []float64{1, 0.9, 0.5, 0.2}
	decoys := []float64{0.6, 0.1}
	thresholds := []float64{0.3, 0.5, 0.7, 0.95}

	fdp, best, minFDP := Sweep(scores, decoys, thresholds)
	// t=0.3: (1+1)/3; t=0.5: (1+1)/3; t=0.7: 1/2; t=0.95: 1/1.
	want := []float64{2.0 / 3, 2.0 / 3, 0.5, 1}
	for i := range want {
		if math.Abs(fdp[i]-want[i]) > 1e-12 {
			t.Errorf("FDP[%d] = %v, want %v", i, fdp[i], want[i])
		}
	}
	if best != 0.7 || minFDP != 0.5 {
		t.Errorf("Sweep() best = %v, min = %v, want 0.7, 0.5", best, minFDP)
	}

	// Ties keep the smallest threshold.
	_, best, _ = Sweep([]float64{1, 1}, nil, []float64{0.2, 0.4, 0.6})
	if best != 0.2 {
		t.Errorf("Sweep() tie best = %v, want 0.2", best)
	}

	_, best, minFDP = Sweep(scores, decoys, nil)
	if !math.IsNaN(best) || !math.IsNaN(minFDP) {
		t.Errorf("Sweep(no thresholds) = %v, %v, want NaN, NaN", best, minFDP)
	}
}
