// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/stabl-dev/stabl/internal/refit"
	"github.com/stabl-dev/stabl/internal/run"
	"github.com/stabl-dev/stabl/internal/store"
	"github.com/stabl-dev/stabl/pkg/experiment"

	"github.com/spf13/cobra"
)

func newRefitCommand(app *App) *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "refit <run-dir>",
		Short: "Grid-search the final model on the selected features of a run",
		Long: `For every stability model of a run, refit each final_model
hyperparameter combination on the features every outer fold selected and
keep the one with the lowest out-of-fold RMSE. Writes refit.json into the
run directory. Relative data directories resolve against the working
directory unless --data-dir is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, dir, err := app.checkpointIn(args[0])
			if err != nil {
				return err
			}
			info, folds, err := readRun(path)
			if err != nil {
				return actionable(err, "read run", dir)
			}
			m, err := experiment.Parse([]byte(info.Manifest), run.ManifestFile)
			if err != nil {
				return manifestError(err, path)
			}
			if dataDir == "" {
				dataDir = app.settings().DataDir
			}
			runner := run.New(m, run.Options{DataDir: dataDir, CPUs: app.CPUs})
			res, err := refit.Refit(cmd.Context(), m, *info, folds, refit.Options{
				Load:    runner.LoadDataset,
				Workers: experiment.Workers(m.General.NJobs.Plain, app.CPUs),
			})
			if err != nil {
				return actionable(err, "refit final models", dir)
			}
			out, err := res.Write(dir)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, e := range res.Entries {
				fmt.Fprintf(w, "  %s %s %s: %s rmse %s\n", e.Dataset, experiment.ModelName(e.Model).DisplayName(), e.Trials, e.Best, e.RMSE)
			}
			fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("✓"), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding the dataset and outcome CSVs")
	return cmd
}

// readRun reads the metadata and folds of a checkpoint.
func readRun(path string) (*store.RunInfo, []store.FoldResult, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = st.Close() }()
	info, err := st.Run()
	if err != nil {
		return nil, nil, err
	}
	folds, err := st.Folds()
	if err != nil {
		return nil, nil, err
	}
	return info, folds, nil
}
