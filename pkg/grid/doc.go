// SPDX-License-Identifier: MPL-2.0

// Package grid expands hyperparameter grid specifications into concrete values.
//
// A Spec describes a one-dimensional grid on a linear or base-10 logarithmic
// scale (the numpy linspace/logspace conventions). Product combines several
// named grids into the cartesian product of points in a deterministic order,
// and Sweep turns half-open [start, stop) ranges into threshold lists.
package grid
