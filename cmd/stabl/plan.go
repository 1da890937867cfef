// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/stabl-dev/stabl/internal/run"
	"github.com/stabl-dev/stabl/pkg/experiment"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newPlanCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <manifest>",
		Short: "Show the trials and folds a run would compute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(args[0])
			if err != nil {
				return err
			}
			thresholds, err := m.Thresholds()
			if err != nil {
				return manifestError(err, args[0])
			}
			r := run.New(m, run.Options{CPUs: app.CPUs})
			printPlan(cmd.OutOrStdout(), m, len(thresholds), r.Units())
			return nil
		},
	}
}

func printPlan(w io.Writer, m *experiment.Manifest, thresholds, units int) {
	models := make([]string, 0, len(m.EnabledModels()))
	for _, model := range m.EnabledModels() {
		models = append(models, model.DisplayName())
	}
	datasets := make([]string, len(m.Datasets))
	for i, d := range m.Datasets {
		datasets[i] = string(d)
	}

	fmt.Fprintln(w, TitleStyle.Render("Experiment "+string(m.Name)))
	line := func(key, value string) { fmt.Fprintf(w, "  %s: %s\n", KeyStyle.Render(key), value) }
	line("datasets", strings.Join(datasets, ", "))
	line("models", strings.Join(models, ", "))
	line("outcome", string(m.General.VariableType))
	line("outer splits", fmt.Sprintf("%d (test size %g, seed %d)", m.OuterCV.Splits, m.OuterCV.TestSize, m.OuterCV.Seed))
	line("inner cv", fmt.Sprintf("%d folds x %d repeats", m.General.InnerCV.Folds(), m.General.InnerCV.Repeats()))
	if m.Stabl.HardThreshold != nil {
		line("threshold", fmt.Sprintf("%g (fixed)", *m.Stabl.HardThreshold))
	} else {
		line("threshold", fmt.Sprintf("FDR sweep over %d values", thresholds))
	}
	line("final model", string(m.FinalModel.Kind))

	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("Trials"))
	fmt.Fprintln(w, trialTable(m.Trials()))
	fmt.Fprintf(w, "%s %d fold(s) per dataset, %d in total\n", SubtitleStyle.Render("→"), units, units*len(m.Datasets))
}

// trialTable lays the trials out as aligned columns.
func trialTable(trials []experiment.Trial) string {
	headers := []string{"ID", "variance", "lif", "bootstraps", "replace", "decoys", "proportion", "fraction"}
	cells := make([][]string, len(headers))
	for _, t := range trials {
		row := []string{
			t.ID,
			fmtFloat(t.VarianceThreshold),
			fmtFloat(t.LIFThreshold),
			strconv.Itoa(t.NBootstraps),
			strconv.FormatBool(t.Replace),
			string(t.ArtificialType),
			fmtFloat(t.ArtificialProportion),
			fmtFloat(t.SampleFraction),
		}
		for c, v := range row {
			cells[c] = append(cells[c], v)
		}
	}
	cols := make([]string, len(headers))
	for c, h := range headers {
		col := []string{tableHeaderStyle.Render(h)}
		for _, v := range cells[c] {
			col = append(col, tableCellStyle.Render(v))
		}
		cols[c] = lipgloss.JoinVertical(lipgloss.Left, col...)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
