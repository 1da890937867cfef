// SPDX-License-Identifier: MPL-2.0

package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/stabl-dev/stabl/internal/store"
	"github.com/stabl-dev/stabl/pkg/experiment"
)

const (
	// SummaryFile holds the aggregated scores.
	SummaryFile = "summary.json"
	// SelectedFile lists selected features per fold.
	SelectedFile = "selected_features.csv"
	// MarkdownFile is the human-readable report.
	MarkdownFile = "report.md"
	// ManifestFile is the normalised manifest.
	ManifestFile = "manifest.cue"
	// PredictionsDir holds one CSV per trial, dataset and model.
	PredictionsDir = "predictions"
)

// ErrEmptyRun is returned when a checkpoint holds no completed fold.
var ErrEmptyRun = errors.New("run has no completed folds")

// Load builds the report of the checkpoint at path. The manifest is the
// one recorded when the run started.
func Load(path string) (*Report, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()

	info, err := st.Run()
	if err != nil {
		return nil, err
	}
	folds, err := st.Folds()
	if err != nil {
		return nil, err
	}
	if len(folds) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyRun)
	}
	m, err := experiment.Parse([]byte(info.Manifest), ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("recorded manifest: %w", err)
	}
	return Build(m, *info, folds)
}

// Write writes every report file into dir and returns their paths.
func (r *Report) Write(dir string) ([]string, error) {
	if err := os.MkdirAll(filepath.Join(dir, PredictionsDir), 0o755); err != nil {
		return nil, err
	}
	var written []string
	put := func(name string, data []byte) error {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if err := put(ManifestFile, []byte(experiment.GenerateCUE(r.Manifest))); err != nil {
		return written, err
	}
	summary, err := json.MarshalIndent(r.Summary, "", "  ")
	if err != nil {
		return written, fmt.Errorf("encode summary: %w", err)
	}
	if err := put(SummaryFile, append(summary, '\n')); err != nil {
		return written, err
	}

	for _, row := range r.Summary.Rows {
		path := filepath.Join(dir, PredictionsDir, row.FirstTrial()+"_"+row.Dataset+"_"+row.Model+".csv")
		if err := writeCSV(path, row.predictionRecords()); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	path := filepath.Join(dir, SelectedFile)
	if err := writeCSV(path, r.selectedRecords()); err != nil {
		return written, err
	}
	written = append(written, path)

	// an empty table is not written; plain-only runs have no blocks
	if rows := r.FrequencyRows(); len(rows) > 0 {
		path := filepath.Join(dir, FrequencyFile)
		if err := WriteFrequencies(path, rows); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if err := put(MarkdownFile, []byte(r.Markdown())); err != nil {
		return written, err
	}
	return written, nil
}

func (r *Row) predictionRecords() [][]string {
	records := [][]string{{"sample_id", "truth", "prediction", "n_predictions"}}
	for i, id := range r.ids {
		records = append(records, []string{
			id,
			formatFloat(r.truth[i]),
			formatFloat(r.prediction[i]),
			strconv.Itoa(r.nPred[i]),
		})
	}
	return records
}

func (r *Report) selectedRecords() [][]string {
	records := [][]string{{"trial", "trial_key", "dataset", "model", "fold", "feature"}}
	for _, row := range r.Summary.Rows {
		for _, f := range row.folds {
			for _, name := range f.Selected {
				records = append(records, []string{
					row.FirstTrial(), row.TrialKey, row.Dataset, row.Model, strconv.Itoa(f.Key.Fold), name,
				})
			}
		}
	}
	return records
}

func writeCSV(path string, records [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
