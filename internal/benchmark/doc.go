// SPDX-License-Identifier: MPL-2.0

// Package benchmark provides benchmarks for PGO profile generation.
// They cover the hot paths of a stabl run:
//   - manifest parsing and schema validation
//   - coordinate-descent fits of every estimator family
//   - inner-CV grid search and stability selection
//   - an end-to-end run over a synthetic cohort
//
// To generate a PGO profile, run:
//
//	go test -run '^$' -bench . -cpuprofile default.pgo ./internal/benchmark
package benchmark
