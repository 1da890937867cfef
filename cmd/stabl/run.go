// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/stabl-dev/stabl/internal/report"
	"github.com/stabl-dev/stabl/internal/run"

	"github.com/spf13/cobra"
)

type runFlags struct {
	resume     bool
	runID      string
	resultsDir string
	dataDir    string
	checkpoint string
	progress   bool
	noReport   bool
}

func newRunCommand(app *App) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Run an experiment",
		Long: `Run every trial, dataset and model of an experiment over the outer
cross-validation. Each completed fold is checkpointed, so an interrupted
run continues with --resume. The report is written into the run directory
when the run completes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(args[0])
			if err != nil {
				return err
			}
			cfg := app.settings()
			flags := cmd.Flags()
			opts := run.Options{
				ResultsDir:     cfg.ResultsDir,
				DataDir:        cfg.DataDir,
				BaseDir:        filepath.Dir(args[0]),
				Checkpoint:     cfg.Run.Checkpoint,
				Resume:         cfg.Run.Resume,
				Progress:       cfg.Run.Progress,
				ProgressOutput: cmd.ErrOrStderr(),
				CPUs:           app.CPUs,
			}
			if flags.Changed("results-dir") {
				opts.ResultsDir = f.resultsDir
			}
			if flags.Changed("data-dir") {
				opts.DataDir = f.dataDir
			}
			if flags.Changed("checkpoint") {
				opts.Checkpoint = f.checkpoint
			}
			if flags.Changed("resume") {
				opts.Resume = f.resume
			}
			if flags.Changed("progress") {
				opts.Progress = f.progress
			}
			if f.runID != "" {
				opts.RunID = f.runID
				opts.Resume = true
			}

			out, err := run.New(m, opts).Run(cmd.Context())
			if err != nil {
				return actionable(err, "run experiment "+string(m.Name), args[0])
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s run %s finished: %d fold(s) computed, %d resumed\n",
				SuccessStyle.Render("✓"), out.ID, out.Computed, out.Resumed)
			fmt.Fprintf(w, "  %s: %s\n", KeyStyle.Render("directory"), out.Dir)
			fmt.Fprintf(w, "  %s: %d\n", KeyStyle.Render("seed"), out.Seed)

			if f.noReport {
				return nil
			}
			rep, err := report.Load(out.Checkpoint)
			if err != nil {
				return actionable(err, "build report", out.Dir)
			}
			if _, err := rep.Write(out.Dir); err != nil {
				return actionable(err, "write report", out.Dir)
			}
			fmt.Fprintf(w, "  %s: %s\n", KeyStyle.Render("report"), filepath.Join(out.Dir, report.MarkdownFile))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.resume, "resume", false, "continue the latest run of this experiment")
	fl.StringVar(&f.runID, "run-id", "", "continue the run with this id (implies --resume)")
	fl.StringVar(&f.resultsDir, "results-dir", "", "root of the run directories (default from config: results)")
	fl.StringVar(&f.dataDir, "data-dir", "", "directory holding the dataset and outcome CSVs, overriding data.dir")
	fl.StringVar(&f.checkpoint, "checkpoint", "", "checkpoint file name inside the run directory")
	fl.BoolVar(&f.progress, "progress", true, "show progress bars on stderr")
	fl.BoolVar(&f.noReport, "no-report", false, "do not write the report after the run")
	return cmd
}
