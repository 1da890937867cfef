// SPDX-License-Identifier: MPL-2.0

package cmd

import "fmt"

const (
	// ExitFailure is the exit code of any failed command.
	ExitFailure = 1
	// ExitInvalidManifest is returned when a manifest fails to parse or validate.
	ExitInvalidManifest = 2
)

// ExitError carries an exit code out of a RunE handler. A nil Err exits
// silently; the handler has already reported the problem.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the wrapped message, or the exit status.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}
