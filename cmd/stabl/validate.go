// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stabl-dev/stabl/internal/watch"
	"github.com/stabl-dev/stabl/pkg/experiment"

	"github.com/spf13/cobra"
)

// loadManifest parses and validates the manifest at path.
func loadManifest(path string) (*experiment.Manifest, error) {
	m, err := experiment.ParseFile(path)
	if err != nil {
		return nil, manifestError(err, path)
	}
	return m, nil
}

func newValidateCommand(app *App) *cobra.Command {
	var watchMode bool
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Check an experiment manifest",
		Long: `Check an experiment manifest against the schema and the consistency rules
(grid bounds, enabled models with hyperparameters, threshold ranges).

With --watch the manifest is checked again whenever it or the data
directory changes, until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()
			if !watchMode {
				_, err := validateOnce(out, path)
				return err
			}
			return watchManifest(cmd.Context(), app, out, cmd.ErrOrStderr(), path)
		},
	}
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "re-validate when the manifest or its data change")
	return cmd
}

// validateOnce reports the outcome of one validation on out.
func validateOnce(out io.Writer, path string) (*experiment.Manifest, error) {
	m, err := loadManifest(path)
	if err != nil {
		return nil, err
	}
	for _, w := range m.Warnings() {
		fmt.Fprintf(out, "%s %s\n", WarningStyle.Render("!"), w)
	}
	fmt.Fprintf(out, "%s %s is valid: experiment %s, %d trial(s), %d model(s), %d dataset(s)\n",
		SuccessStyle.Render("✓"), path, m.Name, len(m.Trials()), len(m.EnabledModels()), len(m.Datasets))
	return m, nil
}

func watchManifest(ctx context.Context, app *App, out, errOut io.Writer, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	base := filepath.Dir(abs)

	report := func() *experiment.Manifest {
		m, err := validateOnce(out, path)
		if err != nil {
			app.printError(errOut, err)
		}
		return m
	}

	var roots []string
	if m := report(); m != nil {
		dataDir := app.dataDir(m, base)
		if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
			roots = append(roots, dataDir)
		}
	}

	w, err := watch.New(watch.Config{
		BaseDir:  base,
		Roots:    roots,
		Patterns: watch.ManifestPatterns,
		OnChange: func(context.Context, []string) error {
			fmt.Fprintln(out)
			report()
			return nil
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s watching %s (Ctrl+C to stop)\n", SubtitleStyle.Render("→"), base)
	return w.Run(ctx)
}

// dataDir is the directory datasets are read from: the configured data_dir,
// or the manifest's data.dir resolved against its directory.
func (a *App) dataDir(m *experiment.Manifest, base string) string {
	if d := a.settings().DataDir; d != "" {
		return d
	}
	return filepath.Dir(m.OutcomePath(base))
}
