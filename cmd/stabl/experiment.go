// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/stabl-dev/stabl/pkg/experiment"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ErrManifestExists is returned by 'experiment init' when the target exists.
var ErrManifestExists = errors.New("manifest already exists")

func newExperimentCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Create and inspect experiment manifests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var (
		force bool
		name  string
	)
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a manifest with every default spelled out",
		Long: `Write a manifest with every default spelled out. The format follows the
extension of path: .cue (default), .json, .yaml/.yml or .toml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "experiment.cue"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: %s (use --force to overwrite)", ErrManifestExists, path)
			}
			format, err := experiment.FormatFromPath(path)
			if err != nil {
				return err
			}
			m := experiment.Default()
			if name != "" {
				m.Name = experiment.ExperimentName(name)
				if ok, errs := m.Name.IsValid(); !ok {
					return errs[0]
				}
			}
			data, err := encodeManifest(m, format)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s created %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	initCmd.Flags().StringVar(&name, "name", "", "experiment name")

	var format string
	dumpCmd := &cobra.Command{
		Use:   "dump <manifest>",
		Short: "Print a manifest with defaults filled in",
		Long: `Print a manifest after schema defaults are applied and it has been
validated. Use --format to convert between cue, json, yaml and toml.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(args[0])
			if err != nil {
				return err
			}
			data, err := encodeManifest(m, experiment.Format(strings.ToLower(format)))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	dumpCmd.Flags().StringVar(&format, "format", string(experiment.FormatCUE), "output format: cue, json, yaml or toml")

	cmd.AddCommand(initCmd, dumpCmd)
	return cmd
}

// encodeManifest serialises m. Non-CUE formats go through the JSON form,
// keeping integers distinct from floats and dropping null fields.
func encodeManifest(m *experiment.Manifest, format experiment.Format) ([]byte, error) {
	if format == experiment.FormatCUE {
		return []byte(experiment.GenerateCUE(m)), nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	doc = plain(doc)

	switch format {
	case experiment.FormatJSON:
		out, err := json.MarshalIndent(doc, "", "  ")
		return append(out, '\n'), err
	case experiment.FormatYAML:
		return yaml.Marshal(doc)
	case experiment.FormatTOML:
		return toml.Marshal(doc)
	default:
		return nil, fmt.Errorf("%w: %q", experiment.ErrUnsupportedFormat, format)
	}
}

// plain converts decoded JSON numbers to int64 or float64 and drops nulls.
func plain(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			if e != nil {
				out[k] = plain(e)
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = plain(e)
		}
		return out
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	default:
		return v
	}
}
