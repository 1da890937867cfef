// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the stabl command-line interface.
//
// Every command is built by a constructor taking the App, the composition
// root holding the configuration provider and the values of the global
// flags, so tests can build a fresh command tree per case.
package cmd
