// SPDX-License-Identifier: MPL-2.0

// Package run executes an experiment manifest: for every dataset, trial,
// enabled model and outer split it preprocesses the training fold, fits a
// tuned plain model or runs stability selection per stim block followed by a
// final-model refit, predicts the held-out samples and checkpoints the fold.
//
// Runs live under <results_dir>/<experiment>/<run-id>/ and can be resumed:
// folds already in the checkpoint are skipped.
package run
