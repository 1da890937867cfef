// SPDX-License-Identifier: MPL-2.0

// Package report aggregates the folds of a run into scores and feature
// selections and writes them next to the checkpoint:
//
//	manifest.cue                    normalised manifest
//	summary.json                    scores per trial, dataset and model
//	predictions/<t>_<ds>_<m>.csv    median out-of-fold prediction per sample
//	selected_features.csv           selected features per fold
//	selection_frequencies.parquet   max selection frequency per feature, block and fold
//	report.md                       human-readable summary
package report
