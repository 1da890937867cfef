// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of Markdown guidance
// for the failures users hit most often: manifests that do not load, data files
// that cannot be joined, runs that stop half-way.
package issue
