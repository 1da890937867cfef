// SPDX-License-Identifier: MPL-2.0

package refit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"testing"

	"github.com/stabl-dev/stabl/internal/dataset"
	"github.com/stabl-dev/stabl/internal/store"
	"github.com/stabl-dev/stabl/pkg/experiment"
	"github.com/stabl-dev/stabl/pkg/grid"

	"gonum.org/v1/gonum/mat"
)

func linearData() *dataset.Dataset {
	const n = 30
	ids := make([]string, n)
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := range n {
		ids[i] = fmt.Sprintf("s%02d", i)
		f0 := math.Mod(float64(i)*0.37, 3)
		x.Set(i, 0, f0)
		x.Set(i, 1, math.Cos(float64(i)))
		y[i] = 2*f0 + 0.05*math.Sin(float64(i))
	}
	return &dataset.Dataset{Table: dataset.Table{IDs: ids, Features: []string{"f0", "noise"}, X: x}, Y: y}
}

func refitManifest() *experiment.Manifest {
	m := experiment.Default()
	m.Name = "refit"
	m.Datasets = []experiment.DatasetID{"immune"}
	m.FinalModel = experiment.FinalModel{
		Kind: experiment.FinalRidge,
		Hyperparameters: map[string]experiment.GridSpec{
			experiment.ParamAlpha: {Type: grid.ScaleLog, Val: experiment.GridBounds{-3, 2, 2}},
		},
	}
	return m
}

func refitFolds(m *experiment.Manifest, selected []string) []store.FoldResult {
	t := m.Trials()[0]
	d := linearData()
	var folds []store.FoldResult
	for k := range 3 {
		ids := d.IDs[k*10 : (k+1)*10]
		folds = append(folds, store.FoldResult{
			Key:      store.FoldKey{Trial: t.Key(), Dataset: "immune", Model: "stabl_lasso", Fold: k},
			TestIDs:  ids,
			Selected: selected,
		})
	}
	folds = append(folds, store.FoldResult{
		Key:     store.FoldKey{Trial: t.PlainKey(), Dataset: "immune", Model: "lasso", Fold: 0},
		TestIDs: d.IDs[:10],
	})
	return folds
}

func loader(id experiment.DatasetID) (*dataset.Dataset, error) {
	if id != "immune" {
		return nil, fmt.Errorf("unexpected dataset %s", id)
	}
	return linearData(), nil
}

func TestRefit(t *testing.T) {
	t.Parallel()

	m := refitManifest()
	res, err := Refit(context.Background(), m, store.RunInfo{ID: "r1", Experiment: "refit"}, refitFolds(m, []string{"f0"}), Options{Load: loader, Workers: 2})
	if err != nil {
		t.Fatalf("Refit() error: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1 (plain folds are skipped)", len(res.Entries))
	}
	e := res.Entries[0]
	if e.Model != "stabl_lasso" || e.Folds != 3 || !slices.Equal(e.Trials, []string{"t000"}) {
		t.Errorf("entry = %s, %d folds, %v, want stabl_lasso, 3, [t000]", e.Model, e.Folds, e.Trials)
	}
	if got := e.Best.Get("alpha", -1); math.Abs(got-0.001) > 1e-12 {
		t.Errorf("best alpha = %v, want 0.001", got)
	}
	if len(e.Grid) != 2 || e.Grid[0].RMSE >= e.Grid[1].RMSE {
		t.Errorf("grid = %+v, want the small penalty to win", e.Grid)
	}
	if float64(e.RMSE) > 0.2 {
		t.Errorf("RMSE = %v, want below 0.2", e.RMSE)
	}

	path, err := res.Write(t.TempDir())
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("refit.json: %v", err)
	}
	if decoded.Kind != experiment.FinalRidge || len(decoded.Entries) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestRefit_EmptySelection(t *testing.T) {
	t.Parallel()

	m := refitManifest()
	res, err := Refit(context.Background(), m, store.RunInfo{}, refitFolds(m, nil), Options{Load: loader})
	if err != nil {
		t.Fatalf("Refit() error: %v", err)
	}
	g := res.Entries[0].Grid
	// every point predicts the training mean
	if g[0].RMSE != g[1].RMSE {
		t.Errorf("grid RMSE = %v, %v, want equal", g[0].RMSE, g[1].RMSE)
	}
	if got := res.Entries[0].Best.Get("alpha", -1); math.Abs(got-0.001) > 1e-12 {
		t.Errorf("best alpha = %v, want the first point on ties", got)
	}
}

func TestRefit_Errors(t *testing.T) {
	t.Parallel()

	m := refitManifest()
	ctx := context.Background()

	plainOnly := refitFolds(m, nil)[3:]
	if _, err := Refit(ctx, m, store.RunInfo{}, plainOnly, Options{Load: loader}); !errors.Is(err, ErrNoStabilityFolds) {
		t.Errorf("Refit(plain only) error = %v, want ErrNoStabilityFolds", err)
	}

	unknown := refitFolds(m, []string{"f0"})
	unknown[0].TestIDs = []string{"ghost"}
	if _, err := Refit(ctx, m, store.RunInfo{}, unknown, Options{Load: loader}); !errors.Is(err, ErrUnknownSample) {
		t.Errorf("Refit(unknown sample) error = %v, want ErrUnknownSample", err)
	}

	missing := refitFolds(m, []string{"dropped"})
	if _, err := Refit(ctx, m, store.RunInfo{}, missing, Options{Load: loader}); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("Refit(unknown feature) error = %v, want ErrUnknownFeature", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := Refit(cancelled, m, store.RunInfo{}, refitFolds(m, []string{"f0"}), Options{Load: loader}); !errors.Is(err, context.Canceled) {
		t.Errorf("Refit(cancelled) error = %v, want context.Canceled", err)
	}
}
