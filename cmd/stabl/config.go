// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/stabl-dev/stabl/internal/config"
	"github.com/stabl-dev/stabl/internal/issue"

	"github.com/spf13/cobra"
)

func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stabl configuration",
		Long: `Manage stabl configuration.

Configuration is stored in:
  - Linux: ~/.config/stabl/config.cue
  - macOS: ~/Library/Application Support/stabl/config.cue
  - Windows: %APPDATA%\stabl\config.cue

A stabl.cue file next to the manifest is used when no user config exists.
Every key can be overridden by a STABL_ environment variable, for example
STABL_RESULTS_DIR or STABL_LOG_LEVEL.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfig(cmd, app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.CreateDefaultConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Configuration at %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			file, err := config.ConfigFilePath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config directory: %s\n", dir)
			fmt.Fprintf(out, "Config file: %s\n", file)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(cmd *cobra.Command, app *App) error {
	cfg, path, err := app.loadConfig(cmd.Context())
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(path).
			WithSuggestion("Run 'stabl config dump' after fixing the file to check the result").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)
	if path != "" {
		field(out, "Config file", path)
	} else {
		field(out, "Config file", SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(out)

	field(out, "results_dir", cfg.ResultsDir)
	if cfg.DataDir != "" {
		field(out, "data_dir", cfg.DataDir)
	} else {
		field(out, "data_dir", SubtitleStyle.Render("(from manifest)"))
	}
	fmt.Fprintf(out, "%s:\n", KeyStyle.Render("log"))
	field(out, "  level", string(cfg.Log.Level))
	field(out, "  format", string(cfg.Log.Format))
	fmt.Fprintf(out, "%s:\n", KeyStyle.Render("run"))
	field(out, "  progress", fmt.Sprint(cfg.Run.Progress))
	field(out, "  resume", fmt.Sprint(cfg.Run.Resume))
	field(out, "  checkpoint", cfg.Run.Checkpoint)
	return nil
}

func field(w io.Writer, key, value string) {
	fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render(key), value)
}
