// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/stabl-dev/stabl/internal/issue"
	"github.com/stabl-dev/stabl/internal/report"

	"github.com/spf13/cobra"
)

// checkpointIn returns the checkpoint of the run directory dir, which may
// also be the checkpoint file itself.
func (a *App) checkpointIn(dir string) (path, runDir string, err error) {
	path, runDir = filepath.Join(dir, a.settings().Run.Checkpoint), dir
	if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
		path, runDir = dir, filepath.Dir(dir)
	}
	if _, err := os.Stat(path); err != nil {
		return "", runDir, issue.NewErrorContext().
			WithOperation("open run").
			WithResource(runDir).
			WithSuggestion("Pass a directory under the results directory, e.g. results/<experiment>/<run-id>").
			WithIssue(issue.RunNotFoundId).
			Wrap(err).
			BuildError()
	}
	return path, runDir, nil
}

func newReportCommand(app *App) *cobra.Command {
	var (
		style   string
		printMD bool
	)
	cmd := &cobra.Command{
		Use:   "report <run-dir>",
		Short: "Write the report of a run",
		Long: `Aggregate the folds of a run into scores and stable features and write
summary.json, per-model prediction CSVs, selected_features.csv,
selection_frequencies.parquet and report.md into the run directory.
Works on unfinished runs too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, dir, err := app.checkpointIn(args[0])
			if err != nil {
				return err
			}
			rep, err := report.Load(path)
			if err != nil {
				return actionable(err, "build report", dir)
			}
			written, err := rep.Write(dir)
			if err != nil {
				return actionable(err, "write report", dir)
			}
			w := cmd.OutOrStdout()
			if printMD {
				rendered, err := report.Render(rep.Markdown(), style)
				if err != nil {
					return err
				}
				fmt.Fprint(w, rendered)
			}
			for _, p := range written {
				fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("✓"), p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&printMD, "print", "p", false, "also render report.md on stdout")
	cmd.Flags().StringVar(&style, "style", "auto", "glamour style for --print: auto, dark, light or notty")
	return cmd
}
