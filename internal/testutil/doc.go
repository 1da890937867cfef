// SPDX-License-Identifier: MPL-2.0

// Package testutil provides fixtures and helpers shared by the stabl tests.
//
// Cohort writes synthetic dataset and outcome CSVs laid out the way a run
// reads them, and Regression builds the same kind of data in memory for
// estimator tests and benchmarks. The Must* helpers fail the test on error
// so setup code stays short.
package testutil
