// SPDX-License-Identifier: MPL-2.0

package experiment

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stabl-dev/stabl/pkg/grid"
)

const minimalCUE = `
name: "cytof"
datasets: ["immune", "proteome"]
models: {stabl_lasso: true, lasso: false}
hyperparameters: {
	stabl_lasso: {alpha: {type: "log", val: [-2, 1, 30]}}
}
`

const minimalTOML = `
name = "cytof"
datasets = ["immune", "proteome"]

[models]
stabl_lasso = true
lasso = false

[hyperparameters.stabl_lasso]
alpha = { type = "log", val = [-2, 1, 30] }
`

const minimalYAML = `
name: cytof
datasets: [immune, proteome]
models:
  stabl_lasso: true
  lasso: false
hyperparameters:
  stabl_lasso:
    alpha: {type: log, val: [-2, 1, 30]}
`

const minimalJSON = `{
  "name": "cytof",
  "datasets": ["immune", "proteome"],
  "models": {"stabl_lasso": true, "lasso": false},
  "hyperparameters": {"stabl_lasso": {"alpha": {"type": "log", "val": [-2, 1, 30]}}}
}`

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(minimalCUE), "experiment.cue")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if m.Name != "cytof" {
		t.Errorf("Name = %q, want cytof", m.Name)
	}
	if got := m.EnabledModels(); !reflect.DeepEqual(got, []ModelName{ModelStablLasso}) {
		t.Errorf("EnabledModels() = %v, want [stabl_lasso]", got)
	}
	if m.General.VariableType != VariableContinuous {
		t.Errorf("VariableType = %q, want continuous", m.General.VariableType)
	}
	if m.General.InnerCV != (InnerCV{5, 1}) {
		t.Errorf("InnerCV = %v, want [5 1]", m.General.InnerCV)
	}
	if m.General.MaxIter != 10000 {
		t.Errorf("MaxIter = %d, want 10000", m.General.MaxIter)
	}
	if !m.General.RandomSeed.Enabled || m.General.RandomSeed.Value != 42 {
		t.Errorf("RandomSeed = %+v, want enabled 42", m.General.RandomSeed)
	}
	if !reflect.DeepEqual(m.Stabl.FDRThresholds, []ThresholdRange{{0.3, 1.0, 0.01}}) {
		t.Errorf("FDRThresholds = %v, want [[0.3 1 0.01]]", m.Stabl.FDRThresholds)
	}
	if m.Stabl.HardThreshold != nil {
		t.Errorf("HardThreshold = %v, want nil", *m.Stabl.HardThreshold)
	}
	if m.OuterCV != (OuterCVParams{Splits: 100, TestSize: 0.2, Seed: 42}) {
		t.Errorf("OuterCV = %+v, want 100/0.2/42", m.OuterCV)
	}
	if m.FinalModel.Kind != FinalOLS {
		t.Errorf("FinalModel.Kind = %q, want ols", m.FinalModel.Kind)
	}
	alpha := m.Hyperparameters[ModelStablLasso].Params[ParamAlpha]
	if alpha.Type != grid.ScaleLog || alpha.Val != (GridBounds{-2, 1, 30}) {
		t.Errorf("stabl_lasso alpha = %+v, want log [-2 1 30]", alpha)
	}
}

func TestParse_FormatsAgree(t *testing.T) {
	t.Parallel()

	want, err := Parse([]byte(minimalCUE), "experiment.cue")
	if err != nil {
		t.Fatalf("Parse(cue) error = %v", err)
	}

	tests := []struct {
		filename string
		data     string
	}{
		{"experiment.toml", minimalTOML},
		{"experiment.yaml", minimalYAML},
		{"experiment.yml", minimalYAML},
		{"experiment.json", minimalJSON},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			t.Parallel()
			got, err := Parse([]byte(tt.data), tt.filename)
			if err != nil {
				t.Fatalf("Parse(%s) error = %v", tt.filename, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Parse(%s) = %+v, want %+v", tt.filename, got, want)
			}
		})
	}
}

func TestParse_SchemaErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		data     string
		contains string
	}{
		{
			name:     "unknown model",
			filename: "bad.cue",
			data:     strings.Replace(minimalCUE, "lasso: false", "ridge: true", 1),
			contains: "ridge",
		},
		{
			name:     "fdr stop above one",
			filename: "bad.cue",
			data:     minimalCUE + "stabl: fdr_thresholds: [[0.3, 1.5, 0.01]]\n",
			contains: "fdr_thresholds",
		},
		{
			name:     "unknown variable type",
			filename: "bad.yaml",
			data:     minimalYAML + "general:\n  variable_type: survival\n",
			contains: "variable_type",
		},
		{
			name:     "missing name",
			filename: "bad.json",
			data:     `{"datasets": ["a"], "models": {"lasso": true}, "hyperparameters": {"lasso": {"alpha": {"type": "log", "val": [-1, 1, 3]}}}}`,
			contains: "name",
		},
		{
			name:     "grid count too large",
			filename: "bad.json",
			data:     strings.Replace(minimalJSON, "[-2, 1, 30]", "[-3, 1, 1000000000000000]", 1),
			contains: "alpha",
		},
		{
			name:     "bad toml",
			filename: "bad.toml",
			data:     "name = ",
			contains: "invalid TOML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.data), tt.filename)
			if err == nil {
				t.Fatalf("Parse() succeeded, want error containing %q", tt.contains)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Parse() error = %q, want it to contain %q", err, tt.contains)
			}
		})
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		data   string
		target error
	}{
		{
			name: "enabled model without alpha",
			data: minimalCUE + `models: alasso: true
hyperparameters: alasso: {gamma: {type: "lin", val: [0.5, 2, 4]}}
`,
			target: ErrMissingHyperparameters,
		},
		{
			name:   "no model enabled",
			data:   strings.Replace(minimalCUE, "stabl_lasso: true", "stabl_lasso: false", 1),
			target: ErrNoModelEnabled,
		},
		{
			name:   "duplicate dataset",
			data:   strings.Replace(minimalCUE, `["immune", "proteome"]`, `["immune", "immune"]`, 1),
			target: ErrInvalidDatasetID,
		},
		{
			name:   "grid bounds reversed",
			data:   strings.Replace(minimalCUE, "[-2, 1, 30]", "[1, -2, 30]", 1),
			target: ErrInvalidGridSpec,
		},
		{
			name: "l1 ratio above one",
			data: minimalCUE + `models: stabl_elastic_net: true
hyperparameters: stabl_elastic_net: {
	alpha: {type: "log", val: [-2, 1, 5]}
	l1_ratio: {type: "lin", val: [0.5, 1.5, 3]}
}
`,
			target: ErrInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.data), "experiment.cue")
			if !errors.Is(err, ErrInvalidManifest) {
				t.Fatalf("Parse() error = %v, want ErrInvalidManifest", err)
			}
			var invalid *InvalidManifestError
			if !errors.As(err, &invalid) {
				t.Fatalf("Parse() error type = %T, want *InvalidManifestError", err)
			}
			found := false
			for _, fieldErr := range invalid.FieldErrors {
				if errors.Is(fieldErr, tt.target) {
					found = true
				}
			}
			if !found {
				t.Errorf("FieldErrors = %v, want one wrapping %v", invalid.FieldErrors, tt.target)
			}
		})
	}
}

func TestParse_SchemaFieldErrors(t *testing.T) {
	t.Parallel()

	data := strings.Replace(minimalYAML, "[-2, 1, 30]", "[-3, 1, 20000]", 1) + "general:\n  variable_type: survival\n"
	_, err := Parse([]byte(data), "bad.yaml")
	var invalid *InvalidManifestError
	if !errors.As(err, &invalid) {
		t.Fatalf("Parse() error = %v (%T), want *InvalidManifestError", err, err)
	}
	var fields []string
	for _, fe := range invalid.FieldErrors {
		var param *InvalidParameterError
		if !errors.As(fe, &param) {
			t.Errorf("field error %v is %T, want *InvalidParameterError", fe, fe)
			continue
		}
		fields = append(fields, param.Field)
	}
	for _, want := range []string{"general.variable_type", "hyperparameters.stabl_lasso.alpha.val[2]"} {
		found := false
		for _, f := range fields {
			found = found || strings.HasPrefix(f, want)
		}
		if !found {
			t.Errorf("field errors at %v, want one at %s", fields, want)
		}
	}
	if !strings.Contains(err.Error(), "variable_type") {
		t.Errorf("Parse() error = %q, want it to list variable_type", err)
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(minimalCUE), "experiment.ini")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Parse(.ini) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestParseFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "experiment.toml")
	if err := os.WriteFile(path, []byte(minimalTOML), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if got := m.DatasetPath(dir, "immune"); got != filepath.Join(dir, "data", "immune.csv") {
		t.Errorf("DatasetPath() = %q, want %q", got, filepath.Join(dir, "data", "immune.csv"))
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.cue")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ParseFile(missing) error = %v, want os.ErrNotExist", err)
	}
}
