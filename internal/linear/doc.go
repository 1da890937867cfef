// SPDX-License-Identifier: MPL-2.0

// Package linear implements the linear estimators used by stability selection
// and its final refits: coordinate-descent lasso and elastic net (least squares
// or logistic), adaptive lasso, and closed-form OLS and ridge.
//
// Penalised fits minimise
//
//	1/(2n) ||y - Xb - b0||^2 + alpha * sum_j w_j (rho |b_j| + (1-rho)/2 b_j^2)
//
// with rho the l1 ratio and w_j per-feature penalty factors. Logistic fits
// replace the squared loss with the mean negative log-likelihood and are
// solved by iteratively re-weighted coordinate descent.
package linear
