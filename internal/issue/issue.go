// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ManifestNotFoundId Id = iota + 1
	ManifestInvalidId
	DatasetNotFoundId
	OutcomeMissingId
	NoStimFeaturesId
	ConfigLoadFailedId
	CheckpointLockedId
	RunFailedId
	RunNotFoundId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to look up the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external references on the method
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the message and its links as terminal Markdown.
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	manifestNotFoundIssue = &Issue{
		id: ManifestNotFoundId,
		mdMsg: `
# Experiment manifest not found!

The manifest path given on the command line does not exist.

## Things you can try:
- Create a manifest with every default written out:
~~~
$ stabl experiment init experiment.cue
~~~

- Manifests may be written in CUE, TOML, YAML or JSON. The format is picked
  from the file extension (` + "`.cue`, `.toml`, `.yaml`/`.yml`, `.json`" + `).`,
	}

	manifestInvalidIssue = &Issue{
		id: ManifestInvalidId,
		mdMsg: `
# Experiment manifest is invalid!

The manifest failed schema or consistency checks.

## Common causes:
- A model is enabled under ` + "`models`" + ` but has no ` + "`alpha`" + ` grid under ` + "`hyperparameters`" + `
- A grid has ` + "`low >= high`" + ` or a non-integral count
- An ` + "`fdr_thresholds`" + ` triple does not satisfy ` + "`0 <= start < stop <= 1`" + `
- A model name is misspelled (valid: lasso, alasso, elastic_net,
  stabl_lasso, stabl_alasso, stabl_elastic_net)

## Things you can try:
~~~
$ stabl validate experiment.cue
$ stabl experiment dump experiment.cue
~~~`,
	}

	datasetNotFoundIssue = &Issue{
		id: DatasetNotFoundId,
		mdMsg: `
# Dataset file not found!

Every entry of ` + "`datasets`" + ` is read from ` + "`<data.dir>/<dataset>.csv`" + `.

## Things you can try:
- Check ` + "`data.dir`" + ` in the manifest, or pass ` + "`--data-dir`" + `
- Relative directories are resolved against the manifest's directory
- Dataset files are wide CSV: one row per sample, the first column (or
  ` + "`data.id_column`" + `) holds the sample id`,
	}

	outcomeMissingIssue = &Issue{
		id: OutcomeMissingId,
		mdMsg: `
# No usable outcome!

No sample of the dataset has a finite outcome value after joining with the
outcome table.

## Things you can try:
- Check that sample ids match between the dataset and ` + "`data.outcome`" + `
- Set ` + "`data.outcome_column`" + ` when the outcome table has several columns
- For ` + "`variable_type: \"binary\"`" + ` the outcome must be 0 or 1`,
	}

	noStimFeaturesIssue = &Issue{
		id: NoStimFeaturesId,
		mdMsg: `
# No feature matches the configured stims!

Features are assigned to a stim block when one of their ` + "`_`" + ` or ` + "`.`" + `
separated name tokens equals the stim (case-insensitive).

## Things you can try:
- Compare ` + "`data.stims`" + ` with the feature names in the CSV header
- Remove ` + "`data.stims`" + ` to run stability selection on all features at once`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The application configuration file could not be read or does not match the
schema.

## Things you can try:
- Show where stabl looks for the file:
~~~
$ stabl config path
~~~

- Write a fresh default file:
~~~
$ stabl config init
~~~

- Every key can also be set through a ` + "`STABL_`" + ` environment variable,
  for example ` + "`STABL_LOG_LEVEL=debug`",
	}

	checkpointLockedIssue = &Issue{
		id: CheckpointLockedId,
		mdMsg: `
# Checkpoint is locked!

Another stabl process holds the checkpoint database of this run.

## Things you can try:
- Wait for the other run to finish, or stop it
- Start a new run without ` + "`--resume`" + ` to use a fresh run directory`,
	}

	runFailedIssue = &Issue{
		id: RunFailedId,
		mdMsg: `
# Experiment run failed!

A fold could not be fitted. Completed folds are stored in the checkpoint.

## Things you can try:
- Resume from the last completed fold:
~~~
$ stabl run experiment.cue --resume
~~~

- Re-run with ` + "`--verbose`" + ` for the full error chain
- Lower ` + "`general.max_iter`" + ` or widen the alpha grid if solvers do not converge`,
		extLinks: []HttpLink{
			"https://doi.org/10.1038/s41587-023-02033-x",
		},
	}

	runNotFoundIssue = &Issue{
		id: RunNotFoundId,
		mdMsg: `
# Run directory not found!

` + "`stabl report`" + ` and ` + "`stabl refit`" + ` read a finished run directory
(` + "`<results_dir>/<experiment>/<run-id>`" + `), which contains
` + "`manifest.cue`" + ` and ` + "`checkpoint.db`" + `.

## Things you can try:
~~~
$ ls results/<experiment>/
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

stabl could not write to the results directory.

## Things you can try:
- Check the permissions of ` + "`results_dir`" + `
- Point ` + "`--results-dir`" + ` at a directory you own`,
	}

	issues = map[Id]*Issue{
		manifestNotFoundIssue.Id(): manifestNotFoundIssue,
		manifestInvalidIssue.Id():  manifestInvalidIssue,
		datasetNotFoundIssue.Id():  datasetNotFoundIssue,
		outcomeMissingIssue.Id():   outcomeMissingIssue,
		noStimFeaturesIssue.Id():   noStimFeaturesIssue,
		configLoadFailedIssue.Id(): configLoadFailedIssue,
		checkpointLockedIssue.Id(): checkpointLockedIssue,
		runFailedIssue.Id():        runFailedIssue,
		runNotFoundIssue.Id():      runNotFoundIssue,
		permissionDeniedIssue.Id(): permissionDeniedIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	out := maps.Values(issues)
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
