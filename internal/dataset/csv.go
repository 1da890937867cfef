// SPDX-License-Identifier: MPL-2.0

package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrEmptyTable is returned for a CSV file without data rows.
	ErrEmptyTable = errors.New("table has no data rows")
	// ErrColumnNotFound is returned when a named column is absent from the header.
	ErrColumnNotFound = errors.New("column not found")
	// ErrDuplicateID is returned when two rows share a sample id.
	ErrDuplicateID = errors.New("duplicate sample id")
)

// missingTokens are cell values read as NaN, compared case-insensitively.
// Infinite values are read as NaN too.
var missingTokens = []string{"", "na", "nan", "null", "none"}

// CSVOptions configures LoadCSV and ReadCSV.
type CSVOptions struct {
	// IDColumn names the sample-id column; empty means the first column.
	IDColumn string
}

// LoadCSV reads a wide feature table from path.
func LoadCSV(path string, opts CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadCSV reads a wide feature table: a header row of column names, then one
// row per sample.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	header := records[0]
	idCol, err := columnIndex(header, opts.IDColumn)
	if err != nil {
		return nil, err
	}

	var features []string
	var featureCols []int
	seenFeature := make(map[string]bool, len(header))
	for j, name := range header {
		if j == idCol {
			continue
		}
		name = strings.TrimSpace(name)
		if seenFeature[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seenFeature[name] = true
		features = append(features, name)
		featureCols = append(featureCols, j)
	}

	rows := records[1:]
	ids := make([]string, len(rows))
	seenID := make(map[string]int, len(rows))
	x := emptyDense(len(rows), len(features))
	for i, rec := range rows {
		id := strings.TrimSpace(rec[idCol])
		if prev, ok := seenID[id]; ok {
			return nil, fmt.Errorf("%w %q on lines %d and %d", ErrDuplicateID, id, prev+2, i+2)
		}
		seenID[id] = i
		ids[i] = id
		for k, j := range featureCols {
			v, err := parseCell(rec[j])
			if err != nil {
				return nil, fmt.Errorf("line %d, column %q: %w", i+2, features[k], err)
			}
			x.Set(i, k, v)
		}
	}
	return &Table{IDs: ids, Features: features, X: x}, nil
}

// LoadOutcome reads the outcome table at path. column selects the outcome
// column; when empty the table must have exactly one column besides the id.
func LoadOutcome(path, column string, opts CSVOptions) (map[string]float64, error) {
	t, err := LoadCSV(path, opts)
	if err != nil {
		return nil, err
	}
	var j int
	switch {
	case column != "":
		j = slices.Index(t.Features, column)
		if j < 0 {
			return nil, fmt.Errorf("%s: %w: %q (have %s)", path, ErrColumnNotFound, column, strings.Join(t.Features, ", "))
		}
	case t.Cols() == 1:
		j = 0
	default:
		return nil, fmt.Errorf("%s: %d outcome columns (%s); set data.outcome_column", path, t.Cols(), strings.Join(t.Features, ", "))
	}

	out := make(map[string]float64, t.Rows())
	for i, id := range t.IDs {
		out[id] = t.X.At(i, j)
	}
	return out, nil
}

func readRecords(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, ErrEmptyTable
	}
	// Strip a UTF-8 byte order mark written by spreadsheet exports.
	records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	return records, nil
}

func columnIndex(header []string, name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	for j, h := range header {
		if strings.TrimSpace(h) == name {
			return j, nil
		}
	}
	return 0, fmt.Errorf("%w: id column %q", ErrColumnNotFound, name)
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if slices.Contains(missingTokens, strings.ToLower(s)) {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) {
		return math.NaN(), nil
	}
	return v, nil
}
