// SPDX-License-Identifier: MPL-2.0

// Package experiment defines the STABL experiment manifest.
//
// A manifest names an experiment and its datasets, enables a subset of the
// six model variants (lasso, adaptive lasso, elastic net and their stability
// selection counterparts), and lists candidate values for preprocessing and
// stability-selection parameters together with per-model hyperparameter grids.
//
// Manifests may be written in CUE, TOML, YAML or JSON. Every format is checked
// against the embedded #Experiment schema (experiment_schema.cue) and then by
// the IsValid methods, which cover the cross-field rules the schema cannot
// express. Trials expands the candidate lists into the concrete settings a
// run iterates over.
package experiment
