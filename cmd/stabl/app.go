// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"runtime"

	"github.com/stabl-dev/stabl/internal/config"
	"github.com/stabl-dev/stabl/internal/logging"

	"github.com/spf13/cobra"
)

type (
	// App is the composition root of the CLI: command handlers read the
	// loaded configuration and global flags through it.
	App struct {
		Config config.Provider
		// CPUs resolves n_jobs = -1.
		CPUs int

		flags rootFlags
		cfg   *config.Config
	}

	// Dependencies are the injection points of NewApp; nil fields get
	// production defaults.
	Dependencies struct {
		Config config.Provider
		CPUs   int
	}

	rootFlags struct {
		configPath string
		verbose    bool
		logLevel   string
		logFormat  string
	}
)

// NewApp builds an App from deps.
func NewApp(deps Dependencies) *App {
	app := &App{Config: deps.Config, CPUs: deps.CPUs}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.CPUs <= 0 {
		app.CPUs = runtime.NumCPU()
	}
	return app
}

// setup loads the configuration and installs the logger. Flags win over
// the configuration file; --verbose implies debug unless --log-level is set.
func (a *App) setup(cmd *cobra.Command) error {
	cfg, err := a.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		return err
	}
	a.cfg = cfg

	opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if a.flags.verbose {
		opts.Level = logging.LevelDebug
	}
	if a.flags.logLevel != "" {
		opts.Level = logging.Level(a.flags.logLevel)
	}
	if a.flags.logFormat != "" {
		opts.Format = logging.Format(a.flags.logFormat)
	}
	_, err = logging.Setup(cmd.ErrOrStderr(), opts)
	return err
}

// settings returns the loaded configuration, or the defaults before setup ran.
func (a *App) settings() *config.Config {
	if a.cfg == nil {
		return config.DefaultConfig()
	}
	return a.cfg
}

// loadConfig reloads the configuration for the config subcommands, which
// report the file it came from.
func (a *App) loadConfig(ctx context.Context) (*config.Config, string, error) {
	return config.LoadWithPath(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
}
