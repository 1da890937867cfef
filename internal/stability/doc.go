// SPDX-License-Identifier: MPL-2.0

// Package stability implements STABL stability selection: decoy-augmented
// bootstrap fits along a regularisation path, per-feature max selection
// frequencies, and the FDP+ threshold sweep that picks the reported features.
package stability
