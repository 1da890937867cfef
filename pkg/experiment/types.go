// SPDX-License-Identifier: MPL-2.0

package experiment

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/stabl-dev/stabl/internal/platform"
	"github.com/stabl-dev/stabl/pkg/grid"
)

const (
	// ModelLasso is an L1-penalised linear model tuned by inner cross-validation.
	ModelLasso ModelName = "lasso"
	// ModelALasso is the adaptive lasso tuned by inner cross-validation.
	ModelALasso ModelName = "alasso"
	// ModelElasticNet mixes L1 and L2 penalties, tuned by inner cross-validation.
	ModelElasticNet ModelName = "elastic_net"
	// ModelStablLasso runs stability selection with a lasso base estimator.
	ModelStablLasso ModelName = "stabl_lasso"
	// ModelStablALasso runs stability selection with an adaptive lasso base estimator.
	ModelStablALasso ModelName = "stabl_alasso"
	// ModelStablElasticNet runs stability selection with an elastic-net base estimator.
	ModelStablElasticNet ModelName = "stabl_elastic_net"

	// VariableContinuous treats the outcome as a regression target.
	VariableContinuous VariableType = "continuous"
	// VariableBinary treats the outcome as a 0/1 classification target.
	VariableBinary VariableType = "binary"

	// DecoyRandomPermutation builds decoys by permuting rows of real features.
	DecoyRandomPermutation DecoyStrategy = "random_permutation"
	// DecoyKnockoff builds second-order Gaussian model-X knockoffs.
	DecoyKnockoff DecoyStrategy = "knockoff"

	// FinalOLS refits selected features without a penalty.
	FinalOLS FinalModelKind = "ols"
	// FinalRidge refits selected features with an L2 penalty.
	FinalRidge FinalModelKind = "ridge"
	// FinalElasticNet refits selected features with an elastic-net penalty.
	FinalElasticNet FinalModelKind = "elastic_net"

	// ParamAlpha is the penalty strength of every model.
	ParamAlpha = "alpha"
	// ParamL1Ratio is the elastic-net mixing parameter.
	ParamL1Ratio = "l1_ratio"
	// ParamGamma is the adaptive-lasso weight exponent.
	ParamGamma = "gamma"
)

var (
	// ErrInvalidModelName is returned when a ModelName value is not recognized.
	ErrInvalidModelName = errors.New("invalid model name")
	// ErrInvalidVariableType is returned when a VariableType value is not recognized.
	ErrInvalidVariableType = errors.New("invalid variable type")
	// ErrInvalidDecoyStrategy is returned when a DecoyStrategy value is not recognized.
	ErrInvalidDecoyStrategy = errors.New("invalid artificial feature type")
	// ErrInvalidFinalModelKind is returned when a FinalModelKind value is not recognized.
	ErrInvalidFinalModelKind = errors.New("invalid final model kind")
	// ErrInvalidExperimentName is returned when the experiment name is blank.
	ErrInvalidExperimentName = errors.New("invalid experiment name")
	// ErrInvalidDatasetID is returned when a dataset identifier is blank or duplicated.
	ErrInvalidDatasetID = errors.New("invalid dataset identifier")
	// ErrInvalidParameter is the sentinel error wrapped by InvalidParameterError.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidGridSpec is the sentinel error wrapped by InvalidGridSpecError.
	ErrInvalidGridSpec = errors.New("invalid hyperparameter grid")
	// ErrMissingHyperparameters is returned when an enabled model has no usable grid.
	ErrMissingHyperparameters = errors.New("missing hyperparameters")
	// ErrNoModelEnabled is returned when every model flag is false.
	ErrNoModelEnabled = errors.New("no model enabled")
	// ErrInvalidManifest is the sentinel error wrapped by InvalidManifestError.
	ErrInvalidManifest = errors.New("invalid experiment manifest")

	// canonicalModels fixes the iteration order of models everywhere.
	canonicalModels = []ModelName{
		ModelLasso, ModelALasso, ModelElasticNet,
		ModelStablLasso, ModelStablALasso, ModelStablElasticNet,
	}
)

type (
	// ModelName identifies one of the six model variants.
	ModelName string

	// InvalidModelNameError is returned when a ModelName value is not recognized.
	InvalidModelNameError struct {
		Value ModelName
	}

	// VariableType selects regression or classification.
	VariableType string

	// InvalidVariableTypeError is returned when a VariableType value is not recognized.
	InvalidVariableTypeError struct {
		Value VariableType
	}

	// DecoyStrategy selects how artificial features are generated.
	DecoyStrategy string

	// InvalidDecoyStrategyError is returned when a DecoyStrategy value is not recognized.
	InvalidDecoyStrategyError struct {
		Value DecoyStrategy
	}

	// FinalModelKind selects the estimator refit on stably selected features.
	FinalModelKind string

	// InvalidFinalModelKindError is returned when a FinalModelKind value is not recognized.
	InvalidFinalModelKindError struct {
		Value FinalModelKind
	}

	// ExperimentName names an experiment; it is also the directory holding
	// its runs under the results directory.
	ExperimentName string

	// InvalidExperimentNameError is returned when the experiment name cannot
	// be used as a directory name.
	InvalidExperimentNameError struct {
		Value  ExperimentName
		Reason string
	}

	// DatasetID identifies a dataset; it resolves to <data.dir>/<id>.csv.
	DatasetID string

	// InvalidDatasetIDError is returned for blank or duplicated dataset identifiers.
	InvalidDatasetIDError struct {
		Value  DatasetID
		Reason string
	}

	// InvalidParameterError reports a field whose value breaks a numeric rule.
	InvalidParameterError struct {
		Field  string
		Value  any
		Reason string
	}

	// InvalidGridSpecError reports a grid whose bounds or count are unusable.
	InvalidGridSpecError struct {
		Model ModelName
		Param string
		Cause error
	}

	// MissingHyperparametersError is returned when an enabled model lacks an alpha grid.
	MissingHyperparametersError struct {
		Model ModelName
	}

	// InvalidManifestError collects every field-level error of a Manifest,
	// from the schema and from the Go-side checks alike.
	// It wraps ErrInvalidManifest for errors.Is() compatibility.
	InvalidManifestError struct {
		FieldErrors []error
	}

	// InnerCV is the ordered pair [folds, repeats] of the inner cross-validation.
	InnerCV [2]int

	// SeedPolicy controls reproducibility. Value is only used when Enabled.
	SeedPolicy struct {
		Enabled bool  `json:"enabled"`
		Value   int64 `json:"value"`
	}

	// Parallelism sets worker counts for stability runs and plain runs
	// independently. -1 means one worker per CPU.
	Parallelism struct {
		Stabl int `json:"stabl"`
		Plain int `json:"plain"`
	}

	// GeneralParams holds run-wide settings.
	GeneralParams struct {
		VariableType VariableType `json:"variable_type"`
		InnerCV      InnerCV      `json:"inner_cv"`
		MaxIter      int          `json:"max_iter"`
		RandomSeed   SeedPolicy   `json:"random_seed"`
		NJobs        Parallelism  `json:"n_jobs"`
	}

	// PreprocessingParams lists candidate filter thresholds.
	PreprocessingParams struct {
		// VarianceThresholds drops features whose training variance is at or below the value.
		VarianceThresholds []float64 `json:"variance_thresholds"`
		// LIFThresholds drops features whose fraction of missing values exceeds the value.
		LIFThresholds []float64 `json:"lif_thresholds"`
	}

	// ThresholdRange is a [start, stop, step] FDR-threshold sweep with exclusive stop.
	ThresholdRange [3]float64

	// StablParams lists candidate stability-selection settings.
	StablParams struct {
		NBootstraps           []int            `json:"n_bootstraps"`
		Replace               []bool           `json:"replace"`
		ArtificialTypes       []DecoyStrategy  `json:"artificial_types"`
		ArtificialProportions []float64        `json:"artificial_proportions"`
		SampleFractions       []float64        `json:"sample_fractions"`
		FDRThresholds         []ThresholdRange `json:"fdr_thresholds"`
		HardThreshold         *float64         `json:"hard_threshold,omitempty"`
	}

	// GridBounds is the [low, high, count] triple of a grid.
	GridBounds [3]float64

	// GridSpec is a hyperparameter grid on a log or linear scale.
	GridSpec struct {
		Type grid.Scale `json:"type"`
		Val  GridBounds `json:"val"`
	}

	// HyperparameterBlock maps hyperparameter names to grids for one model.
	// MaxIter overrides general.max_iter for that model when positive.
	HyperparameterBlock struct {
		Params  map[string]GridSpec
		MaxIter int
	}

	// DataSource locates dataset files and describes their layout.
	DataSource struct {
		Dir           string   `json:"dir"`
		Outcome       string   `json:"outcome"`
		OutcomeColumn string   `json:"outcome_column"`
		IDColumn      string   `json:"id_column"`
		Stims         []string `json:"stims"`
	}

	// OuterCVParams configures the outer group-shuffle split.
	OuterCVParams struct {
		Splits   int     `json:"splits"`
		TestSize float64 `json:"test_size"`
		Seed     int64   `json:"seed"`
	}

	// FinalModel is refit on the union of stably selected features.
	FinalModel struct {
		Kind            FinalModelKind      `json:"kind"`
		Hyperparameters map[string]GridSpec `json:"hyperparameters"`
	}

	// Manifest is a complete experiment definition.
	Manifest struct {
		Name            ExperimentName                    `json:"name"`
		Datasets        []DatasetID                       `json:"datasets"`
		Models          map[ModelName]bool                `json:"models"`
		General         GeneralParams                     `json:"general"`
		Preprocessing   PreprocessingParams               `json:"preprocessing"`
		Stabl           StablParams                       `json:"stabl"`
		Hyperparameters map[ModelName]HyperparameterBlock `json:"hyperparameters"`
		Data            DataSource                        `json:"data"`
		OuterCV         OuterCVParams                     `json:"outer_cv"`
		FinalModel      FinalModel                        `json:"final_model"`
	}
)

// Models returns every model name in canonical order.
func Models() []ModelName {
	out := make([]ModelName, len(canonicalModels))
	copy(out, canonicalModels)
	return out
}

// String returns the string representation of the ModelName.
func (m ModelName) String() string { return string(m) }

// IsValid returns whether the ModelName is one of the six variants.
func (m ModelName) IsValid() (bool, []error) {
	for _, known := range canonicalModels {
		if m == known {
			return true, nil
		}
	}
	return false, []error{&InvalidModelNameError{Value: m}}
}

// IsStability reports whether the model runs stability selection.
func (m ModelName) IsStability() bool {
	return strings.HasPrefix(string(m), "stabl_")
}

// Base returns the penalised estimator a model is built on
// (stabl_lasso -> lasso); plain models return themselves.
func (m ModelName) Base() ModelName {
	return ModelName(strings.TrimPrefix(string(m), "stabl_"))
}

// DisplayName returns the label used in reports, e.g. "STABL ALasso".
func (m ModelName) DisplayName() string {
	var base string
	switch m.Base() {
	case ModelLasso:
		base = "Lasso"
	case ModelALasso:
		base = "ALasso"
	case ModelElasticNet:
		base = "ElasticNet"
	default:
		return string(m)
	}
	if m.IsStability() {
		return "STABL " + base
	}
	return base
}

// Error implements the error interface for InvalidModelNameError.
func (e *InvalidModelNameError) Error() string {
	return fmt.Sprintf("invalid model name %q (valid: lasso, alasso, elastic_net, stabl_lasso, stabl_alasso, stabl_elastic_net)", e.Value)
}

// Unwrap returns ErrInvalidModelName for errors.Is() compatibility.
func (e *InvalidModelNameError) Unwrap() error { return ErrInvalidModelName }

// String returns the string representation of the VariableType.
func (v VariableType) String() string { return string(v) }

// IsValid returns whether the VariableType is continuous or binary.
func (v VariableType) IsValid() (bool, []error) {
	switch v {
	case VariableContinuous, VariableBinary:
		return true, nil
	default:
		return false, []error{&InvalidVariableTypeError{Value: v}}
	}
}

// Error implements the error interface for InvalidVariableTypeError.
func (e *InvalidVariableTypeError) Error() string {
	return fmt.Sprintf("invalid variable type %q (valid: continuous, binary)", e.Value)
}

// Unwrap returns ErrInvalidVariableType for errors.Is() compatibility.
func (e *InvalidVariableTypeError) Unwrap() error { return ErrInvalidVariableType }

// String returns the string representation of the DecoyStrategy.
func (d DecoyStrategy) String() string { return string(d) }

// IsValid returns whether the DecoyStrategy is random_permutation or knockoff.
func (d DecoyStrategy) IsValid() (bool, []error) {
	switch d {
	case DecoyRandomPermutation, DecoyKnockoff:
		return true, nil
	default:
		return false, []error{&InvalidDecoyStrategyError{Value: d}}
	}
}

// Error implements the error interface for InvalidDecoyStrategyError.
func (e *InvalidDecoyStrategyError) Error() string {
	return fmt.Sprintf("invalid artificial feature type %q (valid: random_permutation, knockoff)", e.Value)
}

// Unwrap returns ErrInvalidDecoyStrategy for errors.Is() compatibility.
func (e *InvalidDecoyStrategyError) Unwrap() error { return ErrInvalidDecoyStrategy }

// String returns the string representation of the FinalModelKind.
func (k FinalModelKind) String() string { return string(k) }

// IsValid returns whether the FinalModelKind is ols, ridge or elastic_net.
func (k FinalModelKind) IsValid() (bool, []error) {
	switch k {
	case FinalOLS, FinalRidge, FinalElasticNet:
		return true, nil
	default:
		return false, []error{&InvalidFinalModelKindError{Value: k}}
	}
}

// Error implements the error interface for InvalidFinalModelKindError.
func (e *InvalidFinalModelKindError) Error() string {
	return fmt.Sprintf("invalid final model kind %q (valid: ols, ridge, elastic_net)", e.Value)
}

// Unwrap returns ErrInvalidFinalModelKind for errors.Is() compatibility.
func (e *InvalidFinalModelKindError) Unwrap() error { return ErrInvalidFinalModelKind }

// String returns the string representation of the ExperimentName.
func (n ExperimentName) String() string { return string(n) }

// IsValid returns whether the ExperimentName is usable as a directory name.
func (n ExperimentName) IsValid() (bool, []error) {
	if reason := fileStemProblem(string(n)); reason != "" {
		return false, []error{&InvalidExperimentNameError{Value: n, Reason: reason}}
	}
	return true, nil
}

// Error implements the error interface for InvalidExperimentNameError.
func (e *InvalidExperimentNameError) Error() string {
	return fmt.Sprintf("invalid experiment name %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidExperimentName for errors.Is() compatibility.
func (e *InvalidExperimentNameError) Unwrap() error { return ErrInvalidExperimentName }

// String returns the string representation of the DatasetID.
func (d DatasetID) String() string { return string(d) }

// IsValid returns whether the DatasetID is non-blank and usable as a file stem.
func (d DatasetID) IsValid() (bool, []error) {
	if reason := fileStemProblem(string(d)); reason != "" {
		return false, []error{&InvalidDatasetIDError{Value: d, Reason: reason}}
	}
	return true, nil
}

// fileStemProblem describes why s cannot name a file or directory on every
// platform, or returns "".
func fileStemProblem(s string) string {
	switch {
	case strings.TrimSpace(s) == "":
		return "must be non-empty"
	case strings.ContainsAny(s, `/\`):
		return "must not contain path separators"
	case s == "." || s == "..":
		return "must not be a relative directory"
	case platform.IsWindowsReservedName(s):
		return "is a reserved file name on Windows"
	}
	return ""
}

// Error implements the error interface for InvalidDatasetIDError.
func (e *InvalidDatasetIDError) Error() string {
	return fmt.Sprintf("invalid dataset %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidDatasetID for errors.Is() compatibility.
func (e *InvalidDatasetIDError) Unwrap() error { return ErrInvalidDatasetID }

// Error implements the error interface for InvalidParameterError.
// Schema violations carry no Value.
func (e *InvalidParameterError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap returns ErrInvalidParameter for errors.Is() compatibility.
func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }

// Error implements the error interface for InvalidGridSpecError.
func (e *InvalidGridSpecError) Error() string {
	return fmt.Sprintf("invalid grid hyperparameters.%s.%s: %v", e.Model, e.Param, e.Cause)
}

// Unwrap returns ErrInvalidGridSpec for errors.Is() compatibility.
func (e *InvalidGridSpecError) Unwrap() error { return ErrInvalidGridSpec }

// Error implements the error interface for MissingHyperparametersError.
func (e *MissingHyperparametersError) Error() string {
	return fmt.Sprintf("model %q is enabled but hyperparameters.%s.alpha is not set", e.Model, e.Model)
}

// Unwrap returns ErrMissingHyperparameters for errors.Is() compatibility.
func (e *MissingHyperparametersError) Unwrap() error { return ErrMissingHyperparameters }

// Error implements the error interface for InvalidManifestError.
// Every field error is listed on its own line.
func (e *InvalidManifestError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid experiment manifest: %d field error(s)", len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		sb.WriteString("\n    - " + fe.Error())
	}
	return sb.String()
}

// Unwrap returns ErrInvalidManifest for errors.Is() compatibility.
func (e *InvalidManifestError) Unwrap() error { return ErrInvalidManifest }

// Folds returns the number of inner folds.
func (c InnerCV) Folds() int { return c[0] }

// Repeats returns how many times the inner K-fold is repeated.
func (c InnerCV) Repeats() int { return c[1] }

// IsValid returns whether folds >= 2 and repeats >= 1.
func (c InnerCV) IsValid() (bool, []error) {
	var errs []error
	if c.Folds() < 2 {
		errs = append(errs, &InvalidParameterError{Field: "general.inner_cv[0]", Value: c.Folds(), Reason: "at least 2 folds required"})
	}
	if c.Repeats() < 1 {
		errs = append(errs, &InvalidParameterError{Field: "general.inner_cv[1]", Value: c.Repeats(), Reason: "at least 1 repeat required"})
	}
	return len(errs) == 0, errs
}

// Workers resolves a worker count, mapping -1 to cpus.
func Workers(n, cpus int) int {
	if n < 0 {
		return max(1, cpus)
	}
	return max(1, n)
}

// IsValid returns whether both worker counts are >= 1 or -1.
func (p Parallelism) IsValid() (bool, []error) {
	var errs []error
	if p.Stabl == 0 || p.Stabl < -1 {
		errs = append(errs, &InvalidParameterError{Field: "general.n_jobs.stabl", Value: p.Stabl, Reason: "must be >= 1 or -1"})
	}
	if p.Plain == 0 || p.Plain < -1 {
		errs = append(errs, &InvalidParameterError{Field: "general.n_jobs.plain", Value: p.Plain, Reason: "must be >= 1 or -1"})
	}
	return len(errs) == 0, errs
}

// IsValid returns whether the general parameters are usable.
func (g GeneralParams) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := g.VariableType.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := g.InnerCV.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if g.MaxIter < 1 {
		errs = append(errs, &InvalidParameterError{Field: "general.max_iter", Value: g.MaxIter, Reason: "must be >= 1"})
	}
	if valid, fieldErrs := g.NJobs.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	return len(errs) == 0, errs
}

// IsValid returns whether every candidate threshold is in range.
func (p PreprocessingParams) IsValid() (bool, []error) {
	var errs []error
	if len(p.VarianceThresholds) == 0 {
		errs = append(errs, &InvalidParameterError{Field: "preprocessing.variance_thresholds", Value: "[]", Reason: "at least one candidate required"})
	}
	for i, v := range p.VarianceThresholds {
		if !(v >= 0) || math.IsInf(v, 0) {
			errs = append(errs, &InvalidParameterError{Field: fmt.Sprintf("preprocessing.variance_thresholds[%d]", i), Value: v, Reason: "must be finite and >= 0"})
		}
	}
	if len(p.LIFThresholds) == 0 {
		errs = append(errs, &InvalidParameterError{Field: "preprocessing.lif_thresholds", Value: "[]", Reason: "at least one candidate required"})
	}
	for i, v := range p.LIFThresholds {
		if !(v >= 0 && v <= 1) {
			errs = append(errs, &InvalidParameterError{Field: fmt.Sprintf("preprocessing.lif_thresholds[%d]", i), Value: v, Reason: "must be in [0, 1]"})
		}
	}
	return len(errs) == 0, errs
}

// Start returns the first threshold of the sweep.
func (r ThresholdRange) Start() float64 { return r[0] }

// Stop returns the exclusive upper end of the sweep.
func (r ThresholdRange) Stop() float64 { return r[1] }

// Step returns the sweep increment.
func (r ThresholdRange) Step() float64 { return r[2] }

// Range converts the triple to a grid.Range.
func (r ThresholdRange) Range() grid.Range {
	return grid.Range{Start: r.Start(), Stop: r.Stop(), Step: r.Step()}
}

// IsValid returns whether the sweep lies in [0, 1] and produces values.
func (r ThresholdRange) IsValid() (bool, []error) {
	if valid, errs := r.Range().IsValid(); !valid {
		return false, errs
	}
	if r.Start() < 0 || r.Stop() > 1 {
		return false, []error{&InvalidParameterError{Field: "stabl.fdr_thresholds", Value: [3]float64(r), Reason: "thresholds must lie in [0, 1]"}}
	}
	return true, nil
}

// IsValid returns whether every stability candidate list is non-empty and in range.
func (s StablParams) IsValid() (bool, []error) {
	var errs []error
	required := map[string]int{
		"stabl.n_bootstraps":           len(s.NBootstraps),
		"stabl.replace":                len(s.Replace),
		"stabl.artificial_types":       len(s.ArtificialTypes),
		"stabl.artificial_proportions": len(s.ArtificialProportions),
		"stabl.sample_fractions":       len(s.SampleFractions),
		"stabl.fdr_thresholds":         len(s.FDRThresholds),
	}
	for _, field := range []string{
		"stabl.n_bootstraps", "stabl.replace", "stabl.artificial_types",
		"stabl.artificial_proportions", "stabl.sample_fractions", "stabl.fdr_thresholds",
	} {
		if required[field] == 0 {
			errs = append(errs, &InvalidParameterError{Field: field, Value: "[]", Reason: "at least one candidate required"})
		}
	}
	for i, b := range s.NBootstraps {
		if b < 1 {
			errs = append(errs, &InvalidParameterError{Field: fmt.Sprintf("stabl.n_bootstraps[%d]", i), Value: b, Reason: "must be >= 1"})
		}
	}
	for _, d := range s.ArtificialTypes {
		if valid, fieldErrs := d.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	for i, p := range s.ArtificialProportions {
		if !(p > 0) || math.IsInf(p, 0) {
			errs = append(errs, &InvalidParameterError{Field: fmt.Sprintf("stabl.artificial_proportions[%d]", i), Value: p, Reason: "must be finite and > 0"})
		}
	}
	for i, f := range s.SampleFractions {
		if !(f > 0 && f <= 1) {
			errs = append(errs, &InvalidParameterError{Field: fmt.Sprintf("stabl.sample_fractions[%d]", i), Value: f, Reason: "must be in (0, 1]"})
		}
	}
	for _, r := range s.FDRThresholds {
		if valid, fieldErrs := r.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if s.HardThreshold != nil && !(*s.HardThreshold > 0 && *s.HardThreshold <= 1) {
		errs = append(errs, &InvalidParameterError{Field: "stabl.hard_threshold", Value: *s.HardThreshold, Reason: "must be in (0, 1]"})
	}
	return len(errs) == 0, errs
}

// Low returns the lower bound (an exponent for log grids).
func (b GridBounds) Low() float64 { return b[0] }

// High returns the upper bound (an exponent for log grids).
func (b GridBounds) High() float64 { return b[1] }

// Count returns the number of grid values.
func (b GridBounds) Count() int { return int(b[2]) }

// Spec converts the grid to a grid.Spec.
func (g GridSpec) Spec() grid.Spec {
	return grid.Spec{Scale: g.Type, Low: g.Val.Low(), High: g.Val.High(), Count: g.Val.Count()}
}

// Values expands the grid.
func (g GridSpec) Values() ([]float64, error) {
	return g.Spec().Values()
}

// IsValid returns whether the grid has low < high and an integral count in
// [1, grid.MaxCount]. The count is checked before the conversion to grid.Spec.
func (g GridSpec) IsValid() (bool, []error) {
	switch count := g.Val[2]; {
	case count != math.Trunc(count):
		return false, []error{&InvalidParameterError{Field: "val[2]", Value: count, Reason: "count must be an integer"}}
	case count < 1 || count > grid.MaxCount:
		return false, []error{&InvalidParameterError{Field: "val[2]", Value: count, Reason: fmt.Sprintf("count must be in [1, %d]", grid.MaxCount)}}
	}
	return g.Spec().IsValid()
}

// UnmarshalJSON splits max_iter from the named grids.
func (b *HyperparameterBlock) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Params = make(map[string]GridSpec, len(raw))
	for name, msg := range raw {
		if name == "max_iter" {
			if err := json.Unmarshal(msg, &b.MaxIter); err != nil {
				return fmt.Errorf("max_iter: %w", err)
			}
			continue
		}
		var spec GridSpec
		if err := json.Unmarshal(msg, &spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		b.Params[name] = spec
	}
	return nil
}

// MarshalJSON writes the grids and max_iter as one flat object.
func (b HyperparameterBlock) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Params)+1)
	for name, spec := range b.Params {
		out[name] = spec
	}
	if b.MaxIter > 0 {
		out["max_iter"] = b.MaxIter
	}
	return json.Marshal(out)
}

// Expand returns the concrete values of every grid in the block.
func (b HyperparameterBlock) Expand() (map[string][]float64, error) {
	out := make(map[string][]float64, len(b.Params))
	for name, spec := range b.Params {
		vals, err := spec.Values()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = vals
	}
	return out, nil
}

// Points returns the cartesian product of the block's grids.
func (b HyperparameterBlock) Points() ([]grid.Point, error) {
	named, err := b.Expand()
	if err != nil {
		return nil, err
	}
	return grid.Product(named), nil
}

// Points returns the cartesian product of the final model's grids. A model
// without hyperparameters yields one empty point.
func (f FinalModel) Points() ([]grid.Point, error) {
	return HyperparameterBlock{Params: f.Hyperparameters}.Points()
}
