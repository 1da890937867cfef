// SPDX-License-Identifier: MPL-2.0

package run

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/stabl-dev/stabl/internal/cv"
	"github.com/stabl-dev/stabl/internal/dataset"
	"github.com/stabl-dev/stabl/internal/evaluate"
	"github.com/stabl-dev/stabl/internal/linear"
	"github.com/stabl-dev/stabl/internal/logging"
	"github.com/stabl-dev/stabl/internal/preprocess"
	"github.com/stabl-dev/stabl/internal/stability"
	"github.com/stabl-dev/stabl/internal/store"
	"github.com/stabl-dev/stabl/internal/tuning"
	"github.com/stabl-dev/stabl/pkg/experiment"

	"gonum.org/v1/gonum/mat"
)

// executor fits single folds. It holds only read-only state.
type executor struct {
	m          *experiment.Manifest
	seed       int64
	thresholds []float64
	stablJobs  int
	plainJobs  int
	binary     bool
}

// fitFold computes one fold: preprocessing, fit and held-out predictions.
func (ex *executor) fitFold(ctx context.Context, d *dataset.Dataset, split cv.Split, u unit) (*store.FoldResult, error) {
	train := d.Subset(split.Train)
	test := d.Subset(split.Test)

	pre := preprocess.New(preprocess.Options{
		MaxNaNFraction:    u.trial.LIFThreshold,
		VarianceThreshold: u.trial.VarianceThreshold,
	})
	xTrain, err := pre.FitTransform(train.X, train.Features)
	if err != nil {
		return nil, err
	}
	xTest, err := pre.Transform(test.X)
	if err != nil {
		return nil, err
	}
	names := pre.Features()
	seed := foldSeed(ex.seed, u.key)

	res := &store.FoldResult{
		Key:      u.key,
		TestIDs:  test.IDs,
		Truth:    test.Y,
		Features: len(names),
	}

	if !u.model.IsStability() {
		err = ex.fitPlain(ctx, res, xTrain, train.Y, xTest, names, u.model, seed)
	} else {
		err = ex.fitStability(ctx, res, xTrain, train, xTest, names, u.trial, u.model, seed)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (ex *executor) fitPlain(
	ctx context.Context,
	res *store.FoldResult,
	xTrain *mat.Dense, y []float64,
	xTest *mat.Dense,
	names []string,
	model experiment.ModelName,
	seed int64,
) error {
	points, err := ex.m.Hyperparameters[model].Points()
	if err != nil {
		return err
	}
	tuned, err := tuning.Tune(ctx, xTrain, y, tuning.Config{
		Kind:    linear.Kind(model.Base()),
		Points:  points,
		Folds:   ex.m.General.InnerCV.Folds(),
		Repeats: ex.m.General.InnerCV.Repeats(),
		Seed:    seed,
		MaxIter: ex.m.MaxIter(model),
		Binary:  ex.binary,
		Workers: ex.plainJobs,
	})
	if err != nil {
		return err
	}

	res.Params = tuned.Best
	res.Coef = nonZero(names, tuned.Estimator.Coef())
	res.Selected = ordered(names, res.Coef)
	res.Predictions = tuned.Estimator.Predict(xTest)
	return nil
}

func (ex *executor) fitStability(
	ctx context.Context,
	res *store.FoldResult,
	xTrain *mat.Dense,
	train *dataset.Dataset,
	xTest *mat.Dense,
	names []string,
	trial experiment.Trial,
	model experiment.ModelName,
	seed int64,
) error {
	path, err := ex.m.Hyperparameters[model].Points()
	if err != nil {
		return err
	}
	pre := &dataset.Dataset{
		Table: dataset.Table{IDs: train.IDs, Features: names, X: xTrain},
		Y:     train.Y,
	}
	blocks, err := pre.SplitByStim(ex.m.Data.Stims)
	if err != nil {
		return err
	}

	selected := make(map[string]bool)
	for b, block := range blocks {
		xb := pre.Columns(block.Index)
		sel, err := stability.Select(ctx, xb.X, train.Y, block.Features, stability.Config{
			Base:            linear.Kind(model.Base()),
			Path:            path,
			NBootstraps:     trial.NBootstraps,
			Replace:         trial.Replace,
			SampleFraction:  trial.SampleFraction,
			Decoy:           trial.ArtificialType,
			DecoyProportion: trial.ArtificialProportion,
			Thresholds:      ex.thresholds,
			HardThreshold:   ex.m.Stabl.HardThreshold,
			MaxIter:         ex.m.MaxIter(model),
			Binary:          ex.binary,
			Workers:         ex.stablJobs,
			Seed:            seed + int64(b),
		})
		if err != nil {
			return fmt.Errorf("block %s: %w", block.Name, err)
		}
		slog.Debug("block selected", logging.KeyBlock, block.Name, "threshold", sel.Threshold, "selected", len(sel.Selected))
		res.Blocks = append(res.Blocks, store.BlockResult{
			Name:        block.Name,
			Features:    sel.Features,
			Scores:      sel.Scores,
			DecoyScores: sel.DecoyScores,
			Thresholds:  sel.Thresholds,
			FDP:         sel.FDP,
			Threshold:   sel.Threshold,
			MinFDP:      store.MinFDP(sel.MinFDP),
			Hard:        sel.Hard,
			Selected:    sel.Selected,
		})
		for _, name := range sel.Selected {
			selected[name] = true
		}
	}
	res.Selected = ordered(names, selected)

	cols := make([]int, 0, len(res.Selected))
	for j, name := range names {
		if selected[name] {
			cols = append(cols, j)
		}
	}
	if len(cols) == 0 {
		// Nothing stable: predict the training mean (or prevalence).
		mean := evaluate.Mean(train.Y)
		n, _ := xTest.Dims()
		res.Predictions = make([]float64, n)
		for i := range res.Predictions {
			res.Predictions[i] = mean
		}
		return nil
	}

	points, err := ex.m.FinalModel.Points()
	if err != nil {
		return err
	}
	xSel := selectColumns(xTrain, cols)
	folds := ex.m.General.InnerCV.Folds()
	if n, _ := xSel.Dims(); n < folds {
		folds = max(2, n)
	}
	final, err := tuning.Tune(ctx, xSel, train.Y, tuning.Config{
		Kind:    linear.Kind(ex.m.FinalModel.Kind),
		Points:  points,
		Folds:   folds,
		Repeats: ex.m.General.InnerCV.Repeats(),
		Seed:    seed,
		MaxIter: ex.m.General.MaxIter,
		Binary:  ex.binary,
		Workers: ex.plainJobs,
	})
	if err != nil {
		return fmt.Errorf("final model: %w", err)
	}
	res.Params = final.Best
	coef := final.Estimator.Coef()
	res.Coef = make(map[string]float64, len(cols))
	for k, j := range cols {
		res.Coef[names[j]] = coef[k]
	}
	res.Predictions = final.Estimator.Predict(selectColumns(xTest, cols))
	return nil
}

func nonZero(names []string, coef []float64) map[string]float64 {
	out := make(map[string]float64)
	for j, c := range coef {
		if math.Abs(c) > stability.SelectionEps {
			out[names[j]] = c
		}
	}
	return out
}

// ordered returns the keys of set in the order they appear in names.
func ordered[V any](names []string, set map[string]V) []string {
	var out []string
	for _, name := range names {
		if _, ok := set[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func selectColumns(x *mat.Dense, cols []int) *mat.Dense {
	n, _ := x.Dims()
	out := mat.NewDense(n, len(cols), nil)
	for k, j := range cols {
		for i := range n {
			out.Set(i, k, x.At(i, j))
		}
	}
	return out
}
