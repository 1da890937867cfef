// SPDX-License-Identifier: MPL-2.0

// Package refit grid-searches the final model of a finished run. For every
// stability model it refits each final_model hyperparameter combination on
// the features each outer fold selected and keeps the lowest out-of-fold RMSE.
package refit

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/stabl-dev/stabl/internal/dataset"
	"github.com/stabl-dev/stabl/internal/evaluate"
	"github.com/stabl-dev/stabl/internal/linear"
	"github.com/stabl-dev/stabl/internal/preprocess"
	"github.com/stabl-dev/stabl/internal/report"
	"github.com/stabl-dev/stabl/internal/store"
	"github.com/stabl-dev/stabl/pkg/experiment"
	"github.com/stabl-dev/stabl/pkg/grid"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// File is the name of the refit output.
const File = "refit.json"

var (
	// ErrNoStabilityFolds is returned when the run holds no stability model fold.
	ErrNoStabilityFolds = errors.New("run has no stability model folds")
	// ErrUnknownSample is returned when a fold refers to a sample missing from the data.
	ErrUnknownSample = errors.New("sample not in dataset")
	// ErrUnknownFeature is returned when a selected feature is missing after preprocessing.
	ErrUnknownFeature = errors.New("selected feature not in preprocessed data")
)

type (
	// Loader reads one dataset joined with its outcome.
	Loader func(experiment.DatasetID) (*dataset.Dataset, error)

	// Options configures Refit.
	Options struct {
		Load    Loader
		Workers int
	}

	// Candidate is one final_model grid point and its out-of-fold RMSE.
	Candidate struct {
		Params grid.Point   `json:"params"`
		RMSE   report.Value `json:"rmse"`
	}

	// Entry is the best final model of one stability model.
	Entry struct {
		Trials   []string                `json:"trials"`
		TrialKey string                  `json:"trial_key"`
		Dataset  string                  `json:"dataset"`
		Model    string                  `json:"model"`
		Folds    int                     `json:"folds"`
		Best     grid.Point              `json:"best"`
		RMSE     report.Value            `json:"rmse"`
		Scores   map[string]report.Value `json:"scores"`
		Grid     []Candidate             `json:"grid"`
	}

	// Result is the content of refit.json.
	Result struct {
		RunID      string                    `json:"run_id"`
		Experiment string                    `json:"experiment"`
		Kind       experiment.FinalModelKind `json:"kind"`
		Entries    []Entry                   `json:"entries"`
	}

	// prepared is one outer fold reduced to its selected features.
	prepared struct {
		xTrain, xTest *mat.Dense
		yTrain        []float64
		testIDs       []string
		truth         []float64
	}

	groupKey struct {
		trial, dataset, model string
	}
)

// Refit grid-searches m.FinalModel for every stability model in folds.
func Refit(ctx context.Context, m *experiment.Manifest, info store.RunInfo, folds []store.FoldResult, opts Options) (*Result, error) {
	points, err := m.FinalModel.Points()
	if err != nil {
		return nil, err
	}
	trialByKey := make(map[string]experiment.Trial)
	idsByKey := make(map[string][]string)
	for _, t := range m.Trials() {
		k := t.Key()
		if _, ok := trialByKey[k]; !ok {
			trialByKey[k] = t
		}
		idsByKey[k] = append(idsByKey[k], t.ID)
	}

	groups := make(map[groupKey][]store.FoldResult)
	var order []groupKey
	for _, f := range folds {
		if !experiment.ModelName(f.Key.Model).IsStability() {
			continue
		}
		if _, ok := trialByKey[f.Key.Trial]; !ok {
			slog.Warn("skipping folds of a trial no longer in the manifest", "trial", f.Key.Trial)
			continue
		}
		k := groupKey{f.Key.Trial, f.Key.Dataset, f.Key.Model}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], f)
	}
	if len(order) == 0 {
		return nil, ErrNoStabilityFolds
	}
	slices.SortFunc(order, func(a, b groupKey) int {
		return cmp.Or(
			cmp.Compare(slices.Index(m.Datasets, experiment.DatasetID(a.dataset)), slices.Index(m.Datasets, experiment.DatasetID(b.dataset))),
			cmp.Compare(trialByKey[a.trial].Index, trialByKey[b.trial].Index),
			cmp.Compare(a.model, b.model),
		)
	})

	binary := m.General.VariableType == experiment.VariableBinary
	data := make(map[string]*dataset.Dataset)
	res := &Result{RunID: info.ID, Experiment: info.Experiment, Kind: m.FinalModel.Kind}
	for _, k := range order {
		d, ok := data[k.dataset]
		if !ok {
			if d, err = opts.Load(experiment.DatasetID(k.dataset)); err != nil {
				return nil, err
			}
			data[k.dataset] = d
		}
		fs := groups[k]
		slices.SortFunc(fs, func(a, b store.FoldResult) int { return cmp.Compare(a.Key.Fold, b.Key.Fold) })

		prep := make([]prepared, len(fs))
		for i, f := range fs {
			if prep[i], err = prepare(d, f, trialByKey[k.trial]); err != nil {
				return nil, fmt.Errorf("%s fold %d: %w", k.model, f.Key.Fold, err)
			}
		}

		entry, err := search(ctx, prep, points, m, binary, opts.Workers)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", k.dataset, k.model, err)
		}
		entry.Trials = idsByKey[k.trial]
		entry.TrialKey = k.trial
		entry.Dataset = k.dataset
		entry.Model = k.model
		entry.Folds = len(fs)
		slog.Info("final model refit", "dataset", k.dataset, "model", k.model, "best", entry.Best.String(), "rmse", float64(entry.RMSE))
		res.Entries = append(res.Entries, *entry)
	}
	return res, nil
}

// prepare rebuilds the outer fold: the test samples recorded in f, the rest
// as training data, preprocessed with the trial's settings and reduced to
// the features the fold selected.
func prepare(d *dataset.Dataset, f store.FoldResult, t experiment.Trial) (prepared, error) {
	row := make(map[string]int, len(d.IDs))
	for i, id := range d.IDs {
		row[id] = i
	}
	test := make([]int, len(f.TestIDs))
	inTest := make(map[int]bool, len(f.TestIDs))
	for i, id := range f.TestIDs {
		r, ok := row[id]
		if !ok {
			return prepared{}, fmt.Errorf("%w: %s", ErrUnknownSample, id)
		}
		test[i] = r
		inTest[r] = true
	}
	var train []int
	for i := range d.IDs {
		if !inTest[i] {
			train = append(train, i)
		}
	}
	trainSet, testSet := d.Subset(train), d.Subset(test)

	pre := preprocess.New(preprocess.Options{
		MaxNaNFraction:    t.LIFThreshold,
		VarianceThreshold: t.VarianceThreshold,
	})
	xTrain, err := pre.FitTransform(trainSet.X, trainSet.Features)
	if err != nil {
		return prepared{}, err
	}
	xTest, err := pre.Transform(testSet.X)
	if err != nil {
		return prepared{}, err
	}

	index := make(map[string]int)
	for j, name := range pre.Features() {
		index[name] = j
	}
	cols := make([]int, len(f.Selected))
	for k, name := range f.Selected {
		j, ok := index[name]
		if !ok {
			return prepared{}, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
		}
		cols[k] = j
	}
	p := prepared{yTrain: trainSet.Y, testIDs: f.TestIDs, truth: testSet.Y}
	if len(cols) > 0 {
		p.xTrain, p.xTest = columns(xTrain, cols), columns(xTest, cols)
	}
	return p, nil
}

// search scores every grid point and keeps the lowest RMSE; ties keep the
// earlier point.
func search(ctx context.Context, folds []prepared, points []grid.Point, m *experiment.Manifest, binary bool, workers int) (*Entry, error) {
	kind := linear.Kind(m.FinalModel.Kind)
	rmse := make([]float64, len(points))
	scores := make([]evaluate.Scores, len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for i, point := range points {
		g.Go(func() error {
			truth, pred, err := outOfFold(gctx, folds, linear.FromPoint(kind, point, m.General.MaxIter, binary))
			if err != nil {
				return fmt.Errorf("grid point %s: %w", point, err)
			}
			rmse[i] = evaluate.RMSE(truth, pred)
			scores[i], err = evaluate.Score(truth, pred, binary)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := 0
	entry := &Entry{Grid: make([]Candidate, len(points))}
	for i, p := range points {
		entry.Grid[i] = Candidate{Params: p, RMSE: report.Value(rmse[i])}
		if rmse[i] < rmse[best] || math.IsNaN(rmse[best]) && !math.IsNaN(rmse[i]) {
			best = i
		}
	}
	entry.Best = points[best]
	entry.RMSE = report.Value(rmse[best])
	entry.Scores = make(map[string]report.Value, len(scores[best]))
	for k, v := range scores[best] {
		entry.Scores[k] = report.Value(v)
	}
	return entry, nil
}

// outOfFold fits spec on every fold and returns the truth and the median
// prediction per sample.
func outOfFold(ctx context.Context, folds []prepared, spec linear.Spec) ([]float64, []float64, error) {
	var ids []string
	var preds []float64
	truth := make(map[string]float64)
	for _, f := range folds {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		ids = append(ids, f.testIDs...)
		for i, id := range f.testIDs {
			truth[id] = f.truth[i]
		}
		if f.xTrain == nil {
			mean := evaluate.Mean(f.yTrain)
			for range f.testIDs {
				preds = append(preds, mean)
			}
			continue
		}
		est, err := linear.New(spec)
		if err != nil {
			return nil, nil, err
		}
		if err := est.Fit(f.xTrain, f.yTrain); err != nil {
			return nil, nil, err
		}
		preds = append(preds, est.Predict(f.xTest)...)
	}
	order, median := evaluate.MedianBySample(ids, preds)
	y := make([]float64, len(order))
	for i, id := range order {
		y[i] = truth[id]
	}
	return y, median, nil
}

func columns(x *mat.Dense, cols []int) *mat.Dense {
	n, _ := x.Dims()
	out := mat.NewDense(n, len(cols), nil)
	for k, j := range cols {
		for i := range n {
			out.Set(i, k, x.At(i, j))
		}
	}
	return out
}

// Write writes refit.json into dir and returns its path.
func (r *Result) Write(dir string) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, File)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
