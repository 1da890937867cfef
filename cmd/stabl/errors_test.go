// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/stabl-dev/stabl/internal/dataset"
	"github.com/stabl-dev/stabl/internal/issue"
	"github.com/stabl-dev/stabl/internal/report"
	"github.com/stabl-dev/stabl/internal/run"
	"github.com/stabl-dev/stabl/internal/store"
	"github.com/stabl-dev/stabl/pkg/experiment"
)

func TestActionable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"locked", fmt.Errorf("open: %w", store.ErrLocked), issue.CheckpointLockedId},
		{"no run to resume", run.ErrNoRunToResume, issue.RunNotFoundId},
		{"empty run", report.ErrEmptyRun, issue.RunNotFoundId},
		{"no stim features", dataset.ErrNoStimFeatures, issue.NoStimFeaturesId},
		{"dataset missing", &run.DataError{Path: "data/x.csv", Err: fs.ErrNotExist}, issue.DatasetNotFoundId},
		{"bad dataset", &run.DataError{Path: "data/x.csv", Err: errors.New("no column ga")}, issue.OutcomeMissingId},
		{"permission", fmt.Errorf("write: %w", fs.ErrPermission), issue.PermissionDeniedId},
		{"non-finite fold", fmt.Errorf("%w: t000/ds/lasso/0000: NaN", store.ErrNonFinite), issue.RunFailedId},
		{"other", errors.New("boom"), issue.RunFailedId},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := actionable(tt.err, "run experiment", "x.cue")
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("actionable(%v) = %T, want *issue.ActionableError", tt.err, err)
			}
			if ae.IssueID != tt.want {
				t.Errorf("actionable(%v) issue = %d, want %d", tt.err, ae.IssueID, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("actionable(%v) does not wrap the cause", tt.err)
			}
		})
	}

	if actionable(nil, "op", "res") != nil {
		t.Error("actionable(nil) != nil")
	}
	already := issue.NewErrorContext().WithIssue(issue.ManifestNotFoundId).Wrap(errors.New("x")).BuildError()
	if got := actionable(already, "op", "res"); got != already {
		t.Errorf("actionable(actionable) = %v, want it unchanged", got)
	}
}

func TestManifestError_FieldErrors(t *testing.T) {
	t.Parallel()

	err := manifestError(&experiment.InvalidManifestError{FieldErrors: []error{
		errors.New("datasets: duplicate immune"),
		errors.New("hyperparameters: lasso has no grid"),
	}}, "x.cue")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitInvalidManifest {
		t.Fatalf("manifestError() = %v, want exit code %d", err, ExitInvalidManifest)
	}
	msg := err.Error()
	for _, want := range []string{"duplicate immune", "lasso has no grid"} {
		if !strings.Contains(msg, want) {
			t.Errorf("manifestError() = %q, want it to list %q", msg, want)
		}
	}
}

func TestPrintActionable(t *testing.T) {
	t.Parallel()

	err := issue.NewErrorContext().
		WithOperation("open run").
		WithSuggestion("Start a run").
		WithIssue(issue.RunNotFoundId).
		Wrap(errors.New("missing")).
		BuildError()

	quiet := NewApp(Dependencies{})
	var w bytes.Buffer
	if !quiet.printActionable(&w, err) {
		t.Fatal("printActionable() = false for an actionable error")
	}
	if !strings.Contains(w.String(), "--verbose") {
		t.Errorf("printActionable() = %q, want the --verbose hint", w.String())
	}

	w.Reset()
	if !quiet.printActionable(&w, &ExitError{Code: 3}) {
		t.Error("printActionable() = false for a silent exit")
	}
	if w.Len() != 0 {
		t.Errorf("silent exit printed %q", w.String())
	}
	if quiet.printActionable(&w, errors.New("plain")) {
		t.Error("printActionable() = true for a plain error")
	}
}
