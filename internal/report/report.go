// SPDX-License-Identifier: MPL-2.0

package report

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/stabl-dev/stabl/internal/evaluate"
	"github.com/stabl-dev/stabl/internal/store"
	"github.com/stabl-dev/stabl/pkg/experiment"

	"golang.org/x/exp/maps"
)

// Value is a score that encodes as JSON null when it is not finite.
type Value float64

type (
	// FeatureCount is how often a feature was selected across outer folds.
	FeatureCount struct {
		Feature   string  `json:"feature"`
		Folds     int     `json:"folds"`
		Frequency float64 `json:"frequency"`
	}

	// Row is the aggregate of every fold of one model on one dataset under one trial.
	Row struct {
		// Trials lists the trial ids sharing these folds; plain models are
		// shared by every trial with the same preprocessing.
		Trials       []string         `json:"trials"`
		TrialKey     string           `json:"trial_key"`
		Dataset      string           `json:"dataset"`
		Model        string           `json:"model"`
		DisplayName  string           `json:"display_name"`
		Folds        int              `json:"folds"`
		Samples      int              `json:"samples"`
		Scores       map[string]Value `json:"scores"`
		MeanSelected Value            `json:"mean_selected"`
		Selection    []FeatureCount   `json:"selection,omitempty"`

		ids        []string
		truth      []float64
		prediction []float64
		nPred      []int
		folds      []store.FoldResult
	}

	// Summary is the content of summary.json.
	Summary struct {
		RunID      string     `json:"run_id"`
		Experiment string     `json:"experiment"`
		Seed       int64      `json:"seed"`
		SeedDrawn  bool       `json:"seed_drawn,omitempty"`
		StartedAt  time.Time  `json:"started_at"`
		FinishedAt *time.Time `json:"finished_at,omitempty"`
		Splits     int        `json:"splits"`
		Folds      int        `json:"folds"`
		Rows       []*Row     `json:"rows"`
	}

	// Report is a built report, ready to be written.
	Report struct {
		Manifest *experiment.Manifest
		Info     store.RunInfo
		Summary  Summary
	}

	groupKey struct {
		trial, dataset, model string
	}
)

// MarshalJSON encodes non-finite values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// String formats the value for tables.
func (v Value) String() string {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", f)
}

// Build aggregates folds of the run described by info and m.
func Build(m *experiment.Manifest, info store.RunInfo, folds []store.FoldResult) (*Report, error) {
	binary := m.General.VariableType == experiment.VariableBinary
	trialsByKey, trialIndex := trialIDs(m)

	groups := make(map[groupKey]*Row)
	for _, f := range folds {
		k := groupKey{f.Key.Trial, f.Key.Dataset, f.Key.Model}
		row, ok := groups[k]
		if !ok {
			row = &Row{
				Trials:      trialsByKey[k.trial+"|"+k.model],
				TrialKey:    k.trial,
				Dataset:     k.dataset,
				Model:       k.model,
				DisplayName: experiment.ModelName(k.model).DisplayName(),
			}
			groups[k] = row
		}
		row.folds = append(row.folds, f)
	}

	rows := maps.Values(groups)
	datasetIndex := func(id string) int { return slices.Index(m.Datasets, experiment.DatasetID(id)) }
	modelIndex := func(name string) int { return slices.Index(experiment.Models(), experiment.ModelName(name)) }
	firstTrial := func(r *Row) int {
		if len(r.Trials) == 0 {
			return math.MaxInt
		}
		return trialIndex[r.Trials[0]]
	}
	slices.SortFunc(rows, func(a, b *Row) int {
		return cmp.Or(
			cmp.Compare(datasetIndex(a.Dataset), datasetIndex(b.Dataset)),
			cmp.Compare(firstTrial(a), firstTrial(b)),
			cmp.Compare(modelIndex(a.Model), modelIndex(b.Model)),
			cmp.Compare(a.TrialKey, b.TrialKey),
		)
	})

	for _, row := range rows {
		if err := row.aggregate(binary); err != nil {
			return nil, fmt.Errorf("%s %s %s: %w", row.TrialKey, row.Dataset, row.Model, err)
		}
	}

	s := Summary{
		RunID:      info.ID,
		Experiment: info.Experiment,
		Seed:       info.Seed,
		SeedDrawn:  info.SeedDrawn,
		StartedAt:  info.StartedAt,
		Splits:     info.Splits,
		Folds:      len(folds),
		Rows:       rows,
	}
	if !info.FinishedAt.IsZero() {
		finished := info.FinishedAt
		s.FinishedAt = &finished
	}
	return &Report{Manifest: m, Info: info, Summary: s}, nil
}

// aggregate computes the median prediction per sample, the scores and the
// selection counts.
func (r *Row) aggregate(binary bool) error {
	slices.SortFunc(r.folds, func(a, b store.FoldResult) int { return cmp.Compare(a.Key.Fold, b.Key.Fold) })
	r.Folds = len(r.folds)

	var ids []string
	var preds []float64
	truth := make(map[string]float64)
	counts := make(map[string]int)
	var selected int
	for _, f := range r.folds {
		ids = append(ids, f.TestIDs...)
		preds = append(preds, f.Predictions...)
		for i, id := range f.TestIDs {
			truth[id] = f.Truth[i]
		}
		for _, name := range f.Selected {
			counts[name]++
		}
		selected += len(f.Selected)
	}

	r.ids, r.prediction = evaluate.MedianBySample(ids, preds)
	pos := make(map[string]int, len(r.ids))
	r.truth = make([]float64, len(r.ids))
	for i, id := range r.ids {
		pos[id] = i
		r.truth[i] = truth[id]
	}
	r.nPred = make([]int, len(r.ids))
	for _, id := range ids {
		r.nPred[pos[id]]++
	}
	r.Samples = len(r.ids)

	scores, err := evaluate.Score(r.truth, r.prediction, binary)
	if err != nil {
		return err
	}
	r.Scores = make(map[string]Value, len(scores))
	for k, v := range scores {
		r.Scores[k] = Value(v)
	}
	r.MeanSelected = Value(float64(selected) / float64(max(1, r.Folds)))

	for name, c := range counts {
		r.Selection = append(r.Selection, FeatureCount{Feature: name, Folds: c, Frequency: float64(c) / float64(r.Folds)})
	}
	slices.SortFunc(r.Selection, func(a, b FeatureCount) int {
		return cmp.Or(cmp.Compare(b.Folds, a.Folds), cmp.Compare(a.Feature, b.Feature))
	})
	return nil
}

// FirstTrial returns the id used to name the row's files.
func (r *Row) FirstTrial() string {
	if len(r.Trials) == 0 {
		return "orphan"
	}
	return r.Trials[0]
}

// trialIDs maps "checkpoint key|model" to the trial ids that share it, and
// trial ids to their index.
func trialIDs(m *experiment.Manifest) (map[string][]string, map[string]int) {
	byKey := make(map[string][]string)
	index := make(map[string]int)
	for _, t := range m.Trials() {
		index[t.ID] = t.Index
		for _, model := range experiment.Models() {
			k := t.KeyFor(model) + "|" + string(model)
			byKey[k] = append(byKey[k], t.ID)
		}
	}
	return byKey, index
}
