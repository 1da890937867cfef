// SPDX-License-Identifier: MPL-2.0

package report

import (
	"fmt"
	"slices"

	"github.com/stabl-dev/stabl/internal/decoy"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// FrequencyFile is the name of the selection frequency table.
const FrequencyFile = "selection_frequencies.parquet"

// FrequencyRow is one feature of one stim block in one outer fold: the
// maximum selection frequency over the regularisation path and whether it
// passed the fold's threshold.
type FrequencyRow struct {
	Trial     string  `parquet:"name=trial, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TrialKey  string  `parquet:"name=trial_key, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Dataset   string  `parquet:"name=dataset, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Model     string  `parquet:"name=model, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Fold      int32   `parquet:"name=fold, type=INT32"`
	Block     string  `parquet:"name=block, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Feature   string  `parquet:"name=feature, type=BYTE_ARRAY, convertedtype=UTF8"`
	MaxScore  float64 `parquet:"name=max_score, type=DOUBLE"`
	Threshold float64 `parquet:"name=threshold, type=DOUBLE"`
	Selected  bool    `parquet:"name=selected, type=BOOLEAN"`
	Decoy     bool    `parquet:"name=decoy, type=BOOLEAN"`
}

// FrequencyRows flattens the block results of every stability row.
func (r *Report) FrequencyRows() []FrequencyRow {
	var out []FrequencyRow
	for _, row := range r.Summary.Rows {
		for _, f := range row.folds {
			for _, b := range f.Blocks {
				base := FrequencyRow{
					Trial:     row.FirstTrial(),
					TrialKey:  row.TrialKey,
					Dataset:   row.Dataset,
					Model:     row.Model,
					Fold:      int32(f.Key.Fold),
					Block:     b.Name,
					Threshold: b.Threshold,
				}
				for i, name := range b.Features {
					rec := base
					rec.Feature = name
					rec.MaxScore = b.Scores[i]
					rec.Selected = slices.Contains(b.Selected, name)
					out = append(out, rec)
				}
				for i, name := range decoy.Names(len(b.DecoyScores)) {
					rec := base
					rec.Feature = name
					rec.MaxScore = b.DecoyScores[i]
					rec.Decoy = true
					out = append(out, rec)
				}
			}
		}
	}
	return out
}

// WriteFrequencies writes rows to a snappy-compressed parquet file.
func WriteFrequencies(path string, rows []FrequencyRow) (err error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := fw.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	pw, err := writer.NewParquetWriter(fw, new(FrequencyRow), 1)
	if err != nil {
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish %s: %w", path, err)
	}
	return nil
}

// ReadFrequencies reads a file written by WriteFrequencies.
func ReadFrequencies(path string) (_ []FrequencyRow, err error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if closeErr := fr.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	pr, err := reader.NewParquetReader(fr, new(FrequencyRow), 1)
	if err != nil {
		return nil, fmt.Errorf("parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]FrequencyRow, pr.GetNumRows())
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
