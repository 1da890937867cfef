// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates documents against embedded CUE schemas.
//
// Manifests and the application config share one flow:
//
//  1. Compile the embedded schema
//  2. Build the user value, either by compiling CUE source or by encoding a
//     Go value decoded from TOML, YAML or JSON
//  3. Unify with the schema definition, validate, and decode into a Go struct
//
// Decoding goes through JSON so that json.Unmarshaler implementations on the
// target types take part.
//
// # Usage
//
//	//go:embed experiment_schema.cue
//	var schemaBytes []byte
//
//	result, err := cueutil.ParseAndDecode[Manifest](
//	    schemaBytes,
//	    userFileBytes,
//	    "#Experiment",
//	    cueutil.WithFilename("experiment.cue"),
//	)
package cueutil
