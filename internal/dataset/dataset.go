// SPDX-License-Identifier: MPL-2.0

package dataset

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoOutcome is returned when no sample has a finite outcome after a join.
	ErrNoOutcome = errors.New("no sample with a finite outcome")
	// ErrNoStimFeatures is returned when no feature matches any configured stim.
	ErrNoStimFeatures = errors.New("no feature matches the configured stims")
	// ErrNotBinary is returned when a binary outcome holds values other than 0 and 1.
	ErrNotBinary = errors.New("outcome is not binary")
)

type (
	// Table is a feature matrix with named rows and columns.
	Table struct {
		IDs      []string
		Features []string
		// X is len(IDs) x len(Features); missing values are NaN.
		X *mat.Dense
	}

	// Dataset is a Table joined with a finite outcome per sample.
	Dataset struct {
		Table
		Y []float64
	}

	// Block is the subset of features belonging to one stimulation.
	Block struct {
		Name     string
		Features []string
		// Index holds column indices into the parent dataset.
		Index []int
	}
)

// Rows returns the number of samples.
func (t *Table) Rows() int { return len(t.IDs) }

// Cols returns the number of features.
func (t *Table) Cols() int { return len(t.Features) }

// Column copies one feature column.
func (t *Table) Column(j int) []float64 {
	out := make([]float64, t.Rows())
	mat.Col(out, j, t.X)
	return out
}

// Join keeps the samples of t that have a finite outcome, in t's row order.
func Join(t *Table, outcome map[string]float64) (*Dataset, error) {
	var rows []int
	var y []float64
	for i, id := range t.IDs {
		v, ok := outcome[id]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		rows = append(rows, i)
		y = append(y, v)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w (%d samples in table, %d in outcome)", ErrNoOutcome, t.Rows(), len(outcome))
	}
	sub := t.subsetRows(rows)
	return &Dataset{Table: *sub, Y: y}, nil
}

// Groups returns the group label of every sample: the id up to its first '_'.
// Samples of one patient share a group so outer splits never divide them.
func (d *Dataset) Groups() []string {
	out := make([]string, len(d.IDs))
	for i, id := range d.IDs {
		group, _, _ := strings.Cut(id, "_")
		out[i] = group
	}
	return out
}

// CheckBinary returns ErrNotBinary when an outcome value is neither 0 nor 1.
func (d *Dataset) CheckBinary() error {
	for i, v := range d.Y {
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: sample %s has %g", ErrNotBinary, d.IDs[i], v)
		}
	}
	return nil
}

// Subset returns the given rows, in the given order.
func (d *Dataset) Subset(rows []int) *Dataset {
	y := make([]float64, len(rows))
	for i, r := range rows {
		y[i] = d.Y[r]
	}
	return &Dataset{Table: *d.subsetRows(rows), Y: y}
}

// Columns returns the given feature columns for every sample.
func (d *Dataset) Columns(cols []int) *Dataset {
	features := make([]string, len(cols))
	x := emptyDense(d.Rows(), len(cols))
	for k, j := range cols {
		features[k] = d.Features[j]
		for i := range d.Rows() {
			x.Set(i, k, d.X.At(i, j))
		}
	}
	return &Dataset{
		Table: Table{IDs: slices.Clone(d.IDs), Features: features, X: x},
		Y:     slices.Clone(d.Y),
	}
}

// SplitByStim assigns features to stimulation blocks. A feature belongs to a
// stim when one of its '_' or '.' separated name tokens equals the stim,
// ignoring case. Without stims the whole dataset is one block named "all".
// Stims matching no feature produce no block.
func (d *Dataset) SplitByStim(stims []string) ([]Block, error) {
	if len(stims) == 0 {
		idx := make([]int, d.Cols())
		for j := range idx {
			idx[j] = j
		}
		return []Block{{Name: "all", Features: slices.Clone(d.Features), Index: idx}}, nil
	}

	var blocks []Block
	for _, stim := range stims {
		b := Block{Name: stim}
		for j, name := range d.Features {
			if hasToken(name, stim) {
				b.Features = append(b.Features, name)
				b.Index = append(b.Index, j)
			}
		}
		if len(b.Index) > 0 {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStimFeatures, strings.Join(stims, ", "))
	}
	return blocks, nil
}

func hasToken(feature, stim string) bool {
	tokens := strings.FieldsFunc(feature, func(r rune) bool { return r == '_' || r == '.' })
	for _, tok := range tokens {
		if strings.EqualFold(tok, stim) {
			return true
		}
	}
	return false
}

func (t *Table) subsetRows(rows []int) *Table {
	ids := make([]string, len(rows))
	x := emptyDense(len(rows), t.Cols())
	for i, r := range rows {
		ids[i] = t.IDs[r]
		if t.Cols() > 0 {
			x.SetRow(i, t.X.RawRowView(r))
		}
	}
	return &Table{IDs: ids, Features: slices.Clone(t.Features), X: x}
}

// emptyDense returns a zeroed r x c matrix, or an empty one when either
// dimension is zero since mat.NewDense rejects zero lengths.
func emptyDense(r, c int) *mat.Dense {
	if r == 0 || c == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(r, c, nil)
}
