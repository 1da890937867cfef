// SPDX-License-Identifier: MPL-2.0

// Package dataset loads wide CSV feature tables, joins them with an outcome
// table and slices them by sample, feature and stimulation.
//
// Missing cells (empty, NA, NaN, null) are kept as NaN; the preprocess
// package decides what to do with them.
package dataset
