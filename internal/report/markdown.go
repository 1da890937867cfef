// SPDX-License-Identifier: MPL-2.0

package report

import (
	"fmt"
	"strings"

	"github.com/stabl-dev/stabl/internal/evaluate"

	"github.com/charmbracelet/glamour"
)

// topFeatures bounds the stable-feature tables in report.md.
const topFeatures = 20

var (
	continuousMetrics = []string{evaluate.MetricRMSE, evaluate.MetricMAE, evaluate.MetricR2, evaluate.MetricPearson}
	binaryMetrics     = []string{evaluate.MetricAUC, evaluate.MetricLogLoss}

	metricLabels = map[string]string{
		evaluate.MetricRMSE:    "RMSE",
		evaluate.MetricMAE:     "MAE",
		evaluate.MetricR2:      "R²",
		evaluate.MetricPearson: "Pearson r",
		evaluate.MetricAUC:     "ROC AUC",
		evaluate.MetricLogLoss: "Log loss",
	}
)

// Markdown renders the report as markdown.
func (r *Report) Markdown() string {
	var sb strings.Builder
	s := r.Summary
	fmt.Fprintf(&sb, "# STABL report: %s\n\n", s.Experiment)
	fmt.Fprintf(&sb, "- Run: `%s`\n", s.RunID)
	if s.SeedDrawn {
		fmt.Fprintf(&sb, "- Seed: %d (drawn at start)\n", s.Seed)
	} else {
		fmt.Fprintf(&sb, "- Seed: %d\n", s.Seed)
	}
	fmt.Fprintf(&sb, "- Started: %s\n", s.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if s.FinishedAt != nil {
		fmt.Fprintf(&sb, "- Finished: %s\n", s.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	} else {
		sb.WriteString("- Finished: incomplete\n")
	}
	fmt.Fprintf(&sb, "- Outer splits: %d, completed folds: %d\n", s.Splits, s.Folds)

	metrics := continuousMetrics
	if len(s.Rows) > 0 {
		if _, ok := s.Rows[0].Scores[evaluate.MetricAUC]; ok {
			metrics = binaryMetrics
		}
	}

	sb.WriteString("\n## Scores\n")
	dataset := ""
	for _, row := range s.Rows {
		if row.Dataset != dataset {
			dataset = row.Dataset
			fmt.Fprintf(&sb, "\n### %s\n\n", dataset)
			sb.WriteString("| Trial | Model | Folds | Samples |")
			for _, m := range metrics {
				sb.WriteString(" " + metricLabels[m] + " |")
			}
			sb.WriteString(" Mean selected |\n|---|---|---|---|")
			sb.WriteString(strings.Repeat("---|", len(metrics)+1) + "\n")
		}
		fmt.Fprintf(&sb, "| %s | %s | %d | %d |", strings.Join(row.Trials, ", "), row.DisplayName, row.Folds, row.Samples)
		for _, m := range metrics {
			sb.WriteString(" " + row.Scores[m].String() + " |")
		}
		sb.WriteString(" " + row.MeanSelected.String() + " |\n")
	}

	wroteHeader := false
	for _, row := range s.Rows {
		if len(row.Selection) == 0 {
			continue
		}
		if !wroteHeader {
			sb.WriteString("\n## Stable features\n")
			wroteHeader = true
		}
		fmt.Fprintf(&sb, "\n### %s · %s · %s\n\n", row.Dataset, row.DisplayName, row.FirstTrial())
		sb.WriteString("| Feature | Folds | Frequency |\n|---|---|---|\n")
		for i, fc := range row.Selection {
			if i == topFeatures {
				fmt.Fprintf(&sb, "\n_%d more in %s._\n", len(row.Selection)-topFeatures, SelectedFile)
				break
			}
			fmt.Fprintf(&sb, "| %s | %d/%d | %.2f |\n", fc.Feature, fc.Folds, row.Folds, fc.Frequency)
		}
	}

	if trials := r.Manifest.Trials(); len(trials) > 1 {
		sb.WriteString("\n## Trials\n\n| Trial | Settings |\n|---|---|\n")
		for _, t := range trials {
			fmt.Fprintf(&sb, "| %s | `%s` |\n", t.ID, t.Key())
		}
	}
	return sb.String()
}

// Render renders markdown for a terminal with the named glamour style
// ("dark", "light", "notty", ...).
func Render(md, style string) (string, error) {
	return glamour.Render(md, style)
}
