// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// The configuration file is config.cue in the user configuration directory
// ($XDG_CONFIG_HOME/stabl on Linux, os.UserConfigDir elsewhere), or stabl.cue in
// the working directory, or the file given with --config. It is validated against
// the embedded #Config schema (config_schema.cue) and merged over the defaults.
// STABL_* environment variables override both, e.g. STABL_LOG_LEVEL=debug or
// STABL_RUN_PROGRESS=false.
//
// Application configuration covers where results go and how the CLI behaves.
// Everything that changes the numbers of an experiment lives in its manifest.
package config
