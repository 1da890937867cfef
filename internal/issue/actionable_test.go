// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "load experiment manifest"},
			expected: "failed to load experiment manifest",
		},
		{
			name:     "operation with resource",
			err:      &ActionableError{Operation: "load dataset", Resource: "data/immune.csv"},
			expected: "failed to load dataset: data/immune.csv",
		},
		{
			name:     "operation with cause",
			err:      &ActionableError{Operation: "open checkpoint", Cause: errors.New("timeout")},
			expected: "failed to open checkpoint: timeout",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "load dataset",
				Resource:  "data/immune.csv",
				Cause:     errors.New("file not found"),
			},
			expected: "failed to load dataset: data/immune.csv: file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ActionableError{Operation: "run experiment", Cause: fmt.Errorf("fold 3: %w", cause)}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if (&ActionableError{Operation: "run experiment"}).Unwrap() != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestActionableError_Format(t *testing.T) {
	tests := []struct {
		name     string
		err      *ActionableError
		verbose  bool
		contains []string
		excludes []string
	}{
		{
			name:     "no suggestions",
			err:      &ActionableError{Operation: "load config"},
			contains: []string{"failed to load config"},
			excludes: []string{"•", "Error chain"},
		},
		{
			name: "suggestions",
			err: &ActionableError{
				Operation:   "load experiment manifest",
				Resource:    "experiment.cue",
				Suggestions: []string{"Run 'stabl validate'", "Check the file extension"},
			},
			contains: []string{
				"failed to load experiment manifest: experiment.cue",
				"• Run 'stabl validate'",
				"• Check the file extension",
			},
		},
		{
			name: "verbose chain",
			err: &ActionableError{
				Operation: "run experiment",
				Cause:     fmt.Errorf("dataset immune: %w", errors.New("no rows")),
			},
			verbose: true,
			contains: []string{
				"Error chain:",
				"1. dataset immune: no rows",
				"2. no rows",
			},
		},
		{
			name: "non-verbose hides chain",
			err: &ActionableError{
				Operation: "run experiment",
				Cause:     fmt.Errorf("dataset immune: %w", errors.New("no rows")),
			},
			excludes: []string{"Error chain:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Format(tt.verbose)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("Format(%v) = %q, want it to contain %q", tt.verbose, got, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("Format(%v) = %q, want it to exclude %q", tt.verbose, got, s)
				}
			}
		})
	}
}

func TestErrorContext_Build(t *testing.T) {
	cause := errors.New("boom")
	ae := NewErrorContext().
		WithOperation("load dataset").
		WithResource("data/immune.csv").
		WithSuggestion("first").
		WithSuggestions("second", "third").
		WithIssue(DatasetNotFoundId).
		Wrap(cause).
		Build()

	if ae == nil {
		t.Fatal("Build() returned nil")
	}
	if ae.Operation != "load dataset" || ae.Resource != "data/immune.csv" {
		t.Errorf("Build() = %+v, want operation and resource set", ae)
	}
	if len(ae.Suggestions) != 3 || !ae.HasSuggestions() {
		t.Errorf("Suggestions = %v, want 3", ae.Suggestions)
	}
	if !errors.Is(ae, cause) {
		t.Error("Build() should wrap the cause")
	}
	if got := ae.Issue(); got == nil || got.Id() != DatasetNotFoundId {
		t.Errorf("Issue() = %v, want DatasetNotFoundId", got)
	}
}

func TestErrorContext_BuildWithoutOperation(t *testing.T) {
	if ae := NewErrorContext().WithResource("x").Build(); ae != nil {
		t.Errorf("Build() = %v, want nil without an operation", ae)
	}
	if err := NewErrorContext().BuildError(); err != nil {
		t.Errorf("BuildError() = %v, want untyped nil", err)
	}
}

func TestWrapHelpers(t *testing.T) {
	if WrapWithOperation(nil, "x") != nil {
		t.Error("WrapWithOperation(nil) should return nil")
	}
	if WrapWithContext(nil, "x", "y") != nil {
		t.Error("WrapWithContext(nil) should return nil")
	}

	cause := errors.New("denied")
	ae := WrapWithContext(cause, "write report", "results/run")
	if got, want := ae.Error(), "failed to write report: results/run: denied"; got != want {
		t.Errorf("WrapWithContext().Error() = %q, want %q", got, want)
	}
	if ae.Issue() != nil {
		t.Errorf("Issue() = %v, want nil without an issue id", ae.Issue())
	}
	if got := NewActionableError("plan").Error(); got != "failed to plan" {
		t.Errorf("NewActionableError().Error() = %q", got)
	}
}
