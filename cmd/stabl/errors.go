// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/stabl-dev/stabl/internal/dataset"
	"github.com/stabl-dev/stabl/internal/issue"
	"github.com/stabl-dev/stabl/internal/report"
	"github.com/stabl-dev/stabl/internal/run"
	"github.com/stabl-dev/stabl/internal/store"

	"github.com/charmbracelet/fang"
)

// issueStyle is the glamour style of troubleshooting help.
const issueStyle = "dark"

// handleError prints a failed command's error. Actionable errors are shown
// with their suggestions and, in verbose mode, the matching catalog entry.
func (a *App) handleError(w io.Writer, styles fang.Styles, err error) {
	if !a.printActionable(w, err) {
		fang.DefaultErrorHandler(w, styles, err)
	}
}

// printError prints err outside of fang, e.g. between watch iterations.
func (a *App) printError(w io.Writer, err error) {
	if !a.printActionable(w, err) {
		fmt.Fprintln(w, ErrorStyle.Render("Error:"), err)
	}
}

// printActionable reports whether err was handled: silent exits and
// actionable errors are, anything else is left to the caller.
func (a *App) printActionable(w io.Writer, err error) bool {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return true
	}
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		return false
	}
	fmt.Fprintln(w, ErrorStyle.Render("Error:")+" "+ae.Format(a.flags.verbose))
	if ae.IssueID == 0 {
		return true
	}
	if !a.flags.verbose {
		fmt.Fprintln(w, SubtitleStyle.Render("\nRun with --verbose for troubleshooting help."))
		return true
	}
	if entry := issue.Get(ae.IssueID); entry != nil {
		rendered, renderErr := entry.Render(issueStyle)
		if renderErr != nil {
			slog.Warn("failed to render troubleshooting help", "issue", ae.IssueID, "error", renderErr)
			return true
		}
		fmt.Fprint(w, rendered)
	}
	return true
}

// actionable attaches an operation, a resource and a catalog entry to err
// based on what went wrong. Errors that are already actionable pass through.
func actionable(err error, operation, resource string) error {
	if err == nil {
		return nil
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return err
	}
	ec := issue.NewErrorContext().WithOperation(operation).WithResource(resource).Wrap(err)

	var dataErr *run.DataError
	switch {
	case errors.Is(err, store.ErrLocked):
		ec.WithIssue(issue.CheckpointLockedId).
			WithSuggestion("Another stabl process is using this run; wait for it or pick another run directory")
	case errors.Is(err, run.ErrNoRunToResume), errors.Is(err, store.ErrNoRun), errors.Is(err, report.ErrEmptyRun):
		ec.WithIssue(issue.RunNotFoundId).
			WithSuggestion("Start a run with 'stabl run <manifest>'")
	case errors.Is(err, dataset.ErrNoStimFeatures):
		ec.WithIssue(issue.NoStimFeaturesId).
			WithSuggestion("Check data.stims against the feature names of the dataset")
	case errors.As(err, &dataErr) && errors.Is(err, fs.ErrNotExist):
		ec.WithIssue(issue.DatasetNotFoundId).
			WithSuggestion("Datasets are read from <data.dir>/<id>.csv; override the directory with --data-dir")
	case errors.As(err, &dataErr):
		ec.WithIssue(issue.OutcomeMissingId).
			WithSuggestion("Check data.id_column and data.outcome_column against the CSV headers")
	case errors.Is(err, fs.ErrPermission):
		ec.WithIssue(issue.PermissionDeniedId)
	case errors.Is(err, store.ErrNonFinite):
		ec.WithIssue(issue.RunFailedId).
			WithSuggestion("A model diverged; raise general.max_iter or narrow the alpha grid")
	default:
		ec.WithIssue(issue.RunFailedId)
	}
	return ec.BuildError()
}

// manifestError turns a failed parse into an actionable error. Invalid
// manifests exit with ExitInvalidManifest.
func manifestError(err error, path string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return issue.NewErrorContext().
			WithOperation("load experiment manifest").
			WithResource(path).
			WithSuggestion("Create one with 'stabl experiment init " + path + "'").
			WithIssue(issue.ManifestNotFoundId).
			Wrap(err).
			BuildError()
	}
	return &ExitError{
		Code: ExitInvalidManifest,
		Err: issue.NewErrorContext().
			WithOperation("validate experiment manifest").
			WithResource(path).
			WithSuggestion("Compare with 'stabl experiment init' output for the expected layout").
			WithIssue(issue.ManifestInvalidId).
			Wrap(err).
			BuildError(),
	}
}
