// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stabl-dev/stabl/internal/logging"
)

var (
	// ErrInvalidResultsDir is returned when results_dir is blank.
	ErrInvalidResultsDir = errors.New("invalid results directory")
	// ErrInvalidCheckpointName is returned when run.checkpoint is not a plain file name.
	ErrInvalidCheckpointName = errors.New("invalid checkpoint file name")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidLoadOptions is the sentinel error wrapped by InvalidLoadOptionsError.
	ErrInvalidLoadOptions = errors.New("invalid load options")
)

type (
	// InvalidResultsDirError is returned when results_dir is blank.
	InvalidResultsDirError struct {
		Value string
	}

	// InvalidCheckpointNameError is returned when run.checkpoint contains a
	// path separator or is blank.
	InvalidCheckpointNameError struct {
		Value string
	}

	// InvalidConfigError collects every field error of a Config.
	// It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// LogConfig selects the log level and output format.
	LogConfig struct {
		Level  logging.Level  `json:"level" mapstructure:"level"`
		Format logging.Format `json:"format" mapstructure:"format"`
	}

	// RunConfig holds defaults for 'stabl run'.
	RunConfig struct {
		// Progress shows per-dataset progress bars on stderr.
		Progress bool `json:"progress" mapstructure:"progress"`
		// Resume reuses completed folds from the latest run of the same experiment.
		Resume bool `json:"resume" mapstructure:"resume"`
		// Checkpoint is the bbolt file name inside the run directory.
		Checkpoint string `json:"checkpoint" mapstructure:"checkpoint"`
	}

	// Config is the application configuration.
	Config struct {
		// ResultsDir is the root under which run directories are created.
		ResultsDir string `json:"results_dir" mapstructure:"results_dir"`
		// DataDir overrides the manifest's data.dir when set.
		DataDir string    `json:"data_dir" mapstructure:"data_dir"`
		Log     LogConfig `json:"log" mapstructure:"log"`
		Run     RunConfig `json:"run" mapstructure:"run"`
	}
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		ResultsDir: "results",
		Log: LogConfig{
			Level:  logging.LevelInfo,
			Format: logging.FormatText,
		},
		Run: RunConfig{
			Progress:   true,
			Checkpoint: "checkpoint.db",
		},
	}
}

// Error implements the error interface for InvalidResultsDirError.
func (e *InvalidResultsDirError) Error() string {
	return fmt.Sprintf("invalid results_dir %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidResultsDir for errors.Is() compatibility.
func (e *InvalidResultsDirError) Unwrap() error { return ErrInvalidResultsDir }

// Error implements the error interface for InvalidCheckpointNameError.
func (e *InvalidCheckpointNameError) Error() string {
	return fmt.Sprintf("invalid run.checkpoint %q: must be a file name without path separators", e.Value)
}

// Unwrap returns ErrInvalidCheckpointName for errors.Is() compatibility.
func (e *InvalidCheckpointNameError) Unwrap() error { return ErrInvalidCheckpointName }

// IsValid returns whether the level and format are known.
func (c LogConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Format.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	return len(errs) == 0, errs
}

// IsValid returns whether the checkpoint name is a plain file name.
func (c RunConfig) IsValid() (bool, []error) {
	if strings.TrimSpace(c.Checkpoint) == "" || strings.ContainsAny(c.Checkpoint, `/\`) {
		return false, []error{&InvalidCheckpointNameError{Value: c.Checkpoint}}
	}
	return true, nil
}

// IsValid returns whether every field of the Config is valid.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(c.ResultsDir) == "" {
		errs = append(errs, &InvalidResultsDirError{Value: c.ResultsDir})
	}
	if valid, fieldErrs := c.Log.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Run.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }
