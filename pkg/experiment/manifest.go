// SPDX-License-Identifier: MPL-2.0

package experiment

import (
	"fmt"
	"maps"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"github.com/stabl-dev/stabl/pkg/grid"
)

// knownParams lists the hyperparameters each base estimator consumes.
var knownParams = map[ModelName][]string{
	ModelLasso:      {ParamAlpha},
	ModelALasso:     {ParamAlpha, ParamGamma},
	ModelElasticNet: {ParamAlpha, ParamL1Ratio},
}

// KnownParams returns the hyperparameter names a model consumes.
func KnownParams(m ModelName) []string {
	return slices.Clone(knownParams[m.Base()])
}

// EnabledModels returns the enabled models in canonical order.
func (m *Manifest) EnabledModels() []ModelName {
	var out []ModelName
	for _, name := range canonicalModels {
		if m.Models[name] {
			out = append(out, name)
		}
	}
	return out
}

// HasStabilityModel reports whether any enabled model runs stability selection.
func (m *Manifest) HasStabilityModel() bool {
	return slices.ContainsFunc(m.EnabledModels(), ModelName.IsStability)
}

// MaxIter returns the solver iteration cap for model, honouring the
// per-model override.
func (m *Manifest) MaxIter(model ModelName) int {
	if block, ok := m.Hyperparameters[model]; ok && block.MaxIter > 0 {
		return block.MaxIter
	}
	return m.General.MaxIter
}

// Thresholds merges every fdr_thresholds range into one sorted sweep.
func (m *Manifest) Thresholds() ([]float64, error) {
	ranges := make([]grid.Range, len(m.Stabl.FDRThresholds))
	for i, r := range m.Stabl.FDRThresholds {
		ranges[i] = r.Range()
	}
	return grid.Sweep(ranges)
}

// DatasetPath returns the CSV file of a dataset under data.dir, resolved
// against baseDir when data.dir is relative.
func (m *Manifest) DatasetPath(baseDir string, id DatasetID) string {
	return resolve(baseDir, m.Data.Dir, string(id)+".csv")
}

// OutcomePath returns the outcome table path, resolved like DatasetPath.
func (m *Manifest) OutcomePath(baseDir string) string {
	return resolve(baseDir, m.Data.Dir, m.Data.Outcome)
}

// IsValid runs every check the schema cannot express and returns all
// field errors at once.
func (m *Manifest) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := m.Name.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}

	if len(m.Datasets) == 0 {
		errs = append(errs, &InvalidParameterError{Field: "datasets", Value: "[]", Reason: "at least one dataset required"})
	}
	seen := make(map[DatasetID]bool, len(m.Datasets))
	for _, id := range m.Datasets {
		if valid, fieldErrs := id.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
			continue
		}
		if seen[id] {
			errs = append(errs, &InvalidDatasetIDError{Value: id, Reason: "listed more than once"})
		}
		seen[id] = true
	}

	for _, name := range slices.Sorted(maps.Keys(m.Models)) {
		if valid, fieldErrs := name.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if len(m.EnabledModels()) == 0 {
		errs = append(errs, ErrNoModelEnabled)
	}

	for _, check := range []func() (bool, []error){
		m.General.IsValid,
		m.Preprocessing.IsValid,
		m.Stabl.IsValid,
		m.validateHyperparameters,
		m.validateData,
		m.validateOuterCV,
		m.validateFinalModel,
	} {
		if valid, fieldErrs := check(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	return len(errs) == 0, errs
}

func (m *Manifest) validateHyperparameters() (bool, []error) {
	var errs []error
	for _, model := range slices.Sorted(maps.Keys(m.Hyperparameters)) {
		if valid, fieldErrs := model.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
			continue
		}
		block := m.Hyperparameters[model]
		for _, param := range slices.Sorted(maps.Keys(block.Params)) {
			spec := block.Params[param]
			if valid, specErrs := spec.IsValid(); !valid {
				for _, e := range specErrs {
					errs = append(errs, &InvalidGridSpecError{Model: model, Param: param, Cause: e})
				}
				continue
			}
			errs = append(errs, checkParamRange(model, param, spec)...)
		}
	}
	for _, model := range m.EnabledModels() {
		if _, ok := m.Hyperparameters[model].Params[ParamAlpha]; !ok {
			errs = append(errs, &MissingHyperparametersError{Model: model})
		}
	}
	return len(errs) == 0, errs
}

// checkParamRange enforces the domain of known parameters on the expanded grid.
func checkParamRange(model ModelName, param string, spec GridSpec) []error {
	values, err := spec.Values()
	if err != nil {
		return []error{&InvalidGridSpecError{Model: model, Param: param, Cause: err}}
	}
	field := fmt.Sprintf("hyperparameters.%s.%s", model, param)
	for _, v := range values {
		switch param {
		case ParamAlpha:
			if !(v > 0) || math.IsInf(v, 0) {
				return []error{&InvalidParameterError{Field: field, Value: v, Reason: "penalty must be finite and > 0"}}
			}
		case ParamL1Ratio:
			if !(v > 0 && v <= 1) {
				return []error{&InvalidParameterError{Field: field, Value: v, Reason: "must be in (0, 1]"}}
			}
		case ParamGamma:
			if !(v > 0) || math.IsInf(v, 0) {
				return []error{&InvalidParameterError{Field: field, Value: v, Reason: "must be finite and > 0"}}
			}
		}
	}
	return nil
}

func (m *Manifest) validateData() (bool, []error) {
	var errs []error
	if strings.TrimSpace(m.Data.Dir) == "" {
		errs = append(errs, &InvalidParameterError{Field: "data.dir", Value: `""`, Reason: "must be non-empty"})
	}
	if strings.TrimSpace(m.Data.Outcome) == "" {
		errs = append(errs, &InvalidParameterError{Field: "data.outcome", Value: `""`, Reason: "must be non-empty"})
	}
	seen := make(map[string]bool, len(m.Data.Stims))
	for _, stim := range m.Data.Stims {
		key := strings.ToLower(stim)
		if seen[key] {
			errs = append(errs, &InvalidParameterError{Field: "data.stims", Value: stim, Reason: "listed more than once"})
		}
		seen[key] = true
	}
	return len(errs) == 0, errs
}

func (m *Manifest) validateOuterCV() (bool, []error) {
	var errs []error
	if m.OuterCV.Splits < 1 {
		errs = append(errs, &InvalidParameterError{Field: "outer_cv.splits", Value: m.OuterCV.Splits, Reason: "must be >= 1"})
	}
	if !(m.OuterCV.TestSize > 0 && m.OuterCV.TestSize < 1) {
		errs = append(errs, &InvalidParameterError{Field: "outer_cv.test_size", Value: m.OuterCV.TestSize, Reason: "must be in (0, 1)"})
	}
	return len(errs) == 0, errs
}

func (m *Manifest) validateFinalModel() (bool, []error) {
	var errs []error
	if valid, fieldErrs := m.FinalModel.Kind.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	for _, param := range slices.Sorted(maps.Keys(m.FinalModel.Hyperparameters)) {
		spec := m.FinalModel.Hyperparameters[param]
		if valid, specErrs := spec.IsValid(); !valid {
			for _, e := range specErrs {
				errs = append(errs, fmt.Errorf("final_model.hyperparameters.%s: %w", param, e))
			}
		}
	}
	return len(errs) == 0, errs
}

// Warnings reports settings that are accepted but have no effect.
func (m *Manifest) Warnings() []string {
	var out []string
	for _, model := range slices.Sorted(maps.Keys(m.Hyperparameters)) {
		if !m.Models[model] {
			out = append(out, fmt.Sprintf("hyperparameters.%s is set but model %s is not enabled; the block is ignored", model, model))
			continue
		}
		known := KnownParams(model)
		for _, param := range slices.Sorted(maps.Keys(m.Hyperparameters[model].Params)) {
			if !slices.Contains(known, param) {
				out = append(out, fmt.Sprintf("hyperparameters.%s.%s is not used by %s (uses: %s)", model, param, model, strings.Join(known, ", ")))
			}
		}
	}
	if !m.HasStabilityModel() && m.Stabl.HardThreshold != nil {
		out = append(out, "stabl.hard_threshold is set but no stability model is enabled")
	}
	if m.Stabl.HardThreshold != nil && len(m.Stabl.FDRThresholds) > 0 {
		out = append(out, fmt.Sprintf("stabl.hard_threshold %g overrides the fdr_thresholds sweep", *m.Stabl.HardThreshold))
	}
	if !m.General.RandomSeed.Enabled {
		out = append(out, "general.random_seed is disabled; a seed is drawn at run time and recorded in the summary")
	}
	if m.FinalModel.Kind == FinalOLS && len(m.FinalModel.Hyperparameters) > 0 {
		out = append(out, "final_model.hyperparameters are ignored for kind ols")
	}
	return out
}

func resolve(baseDir, dir, name string) string {
	if filepath.IsAbs(dir) || baseDir == "" {
		return filepath.Join(dir, name)
	}
	return filepath.Join(baseDir, dir, name)
}
