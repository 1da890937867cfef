// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "stabl",
		Short: "Stability selection experiments with decoy-calibrated FDR",
		Long: TitleStyle.Render("stabl") + SubtitleStyle.Render(" - stability selection with decoy-calibrated FDR") + `

stabl runs lasso, adaptive lasso and elastic-net models, with and without
stability selection, over an outer cross-validation described by an
experiment manifest, and reports scores and stable features.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Write a manifest:       stabl experiment init experiment.cue
  2. Check it:               stabl validate experiment.cue
  3. See what will be fit:   stabl plan experiment.cue
  4. Run it:                 stabl run experiment.cue
  5. Summarise a run:        stabl report results/<name>/<run-id>`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&app.flags.configPath, "config", "", "config file (default is <user config dir>/stabl/config.cue, then ./stabl.cue)")
	pf.BoolVarP(&app.flags.verbose, "verbose", "v", false, "verbose output and troubleshooting help on errors")
	pf.StringVar(&app.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&app.flags.logFormat, "log-format", "", "log format: text, json or logfmt")

	root.AddCommand(
		newValidateCommand(app),
		newPlanCommand(app),
		newRunCommand(app),
		newReportCommand(app),
		newRefitCommand(app),
		newExperimentCommand(app),
		newConfigCommand(app),
	)
	return root
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the code of the failure, if any.
func Execute() {
	app := NewApp(Dependencies{})
	err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(versionString()),
		fang.WithErrorHandler(app.handleError),
		fang.WithNotifySignal(os.Interrupt),
	)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(ExitFailure)
	}
}
