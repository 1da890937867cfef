// SPDX-License-Identifier: MPL-2.0

package run

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/stabl-dev/stabl/internal/cv"
	"github.com/stabl-dev/stabl/internal/dataset"
	"github.com/stabl-dev/stabl/internal/logging"
	"github.com/stabl-dev/stabl/internal/store"
	"github.com/stabl-dev/stabl/pkg/experiment"

	"github.com/google/uuid"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

const (
	// ManifestFile is the normalised manifest written into every run directory.
	ManifestFile = "manifest.cue"
	// DefaultCheckpoint is the checkpoint file name when Options.Checkpoint is empty.
	DefaultCheckpoint = "checkpoint.db"
)

// ErrNoRunToResume is returned by Run with Resume when no earlier run exists.
var ErrNoRunToResume = errors.New("no earlier run to resume")

type (
	// Options configures a Runner.
	Options struct {
		// ResultsDir holds one directory per experiment.
		ResultsDir string
		// DataDir, when set, replaces BaseDir for resolving data.dir.
		DataDir string
		// BaseDir is the manifest's directory.
		BaseDir    string
		Checkpoint string
		// Resume continues the latest run of the experiment (or RunID when set).
		Resume bool
		RunID  string
		// Progress draws one progress bar per dataset on ProgressOutput.
		Progress       bool
		ProgressOutput io.Writer
		// CPUs resolves n_jobs = -1; zero means runtime.NumCPU.
		CPUs int
		// Now is the clock used for seeds and timestamps; nil means time.Now.
		Now func() time.Time
	}

	// Runner executes one manifest.
	Runner struct {
		m    *experiment.Manifest
		opts Options
	}

	// Outcome summarises a finished run.
	Outcome struct {
		ID  string
		Dir string
		// Checkpoint is the bbolt file of the run.
		Checkpoint string
		Seed       int64
		Computed   int
		Resumed    int
	}

	// unit is one fold to compute.
	unit struct {
		trial experiment.Trial
		model experiment.ModelName
		fold  int
		key   store.FoldKey
	}
)

// New returns a Runner for m.
func New(m *experiment.Manifest, opts Options) *Runner {
	if opts.Checkpoint == "" {
		opts.Checkpoint = DefaultCheckpoint
	}
	if opts.CPUs <= 0 {
		opts.CPUs = runtime.NumCPU()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ProgressOutput == nil {
		opts.ProgressOutput = os.Stderr
	}
	return &Runner{m: m, opts: opts}
}

// ExperimentDir returns the directory holding every run of the experiment.
func (r *Runner) ExperimentDir() string {
	return filepath.Join(r.opts.ResultsDir, string(r.m.Name))
}

// Run executes the experiment until every fold is checkpointed or ctx is done.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	thresholds, err := r.m.Thresholds()
	if err != nil {
		return nil, err
	}

	info, dir, err := r.prepare()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(filepath.Join(dir, r.opts.Checkpoint))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if prev, err := st.Run(); err == nil {
		info = *prev
		slog.Info("resuming run", logging.KeyRun, info.ID, "completed_folds", st.Count())
	} else if !errors.Is(err, store.ErrNoRun) {
		return nil, err
	} else if err := st.PutRun(info); err != nil {
		return nil, err
	}

	out := &Outcome{ID: info.ID, Dir: dir, Checkpoint: st.Path(), Seed: info.Seed}
	log := slog.With(logging.KeyExperiment, r.m.Name, logging.KeyRun, info.ID)
	log.Info("run started", "seed", info.Seed, "datasets", len(r.m.Datasets), "trials", len(r.m.Trials()), "models", len(r.m.EnabledModels()))

	outcome, err := r.loadOutcome()
	if err != nil {
		return nil, err
	}

	var progress *mpb.Progress
	if r.opts.Progress {
		progress = mpb.NewWithContext(ctx, mpb.WithOutput(r.opts.ProgressOutput), mpb.WithWidth(60))
	}

	ex := &executor{
		m:          r.m,
		seed:       info.Seed,
		thresholds: thresholds,
		stablJobs:  experiment.Workers(r.m.General.NJobs.Stabl, r.opts.CPUs),
		plainJobs:  experiment.Workers(r.m.General.NJobs.Plain, r.opts.CPUs),
		binary:     r.m.General.VariableType == experiment.VariableBinary,
	}

	for _, id := range r.m.Datasets {
		computed, resumed, err := r.runDataset(ctx, ex, st, progress, id, outcome, log)
		out.Computed += computed
		out.Resumed += resumed
		if err != nil {
			if progress != nil {
				progress.Shutdown()
			}
			return out, err
		}
	}
	if progress != nil {
		progress.Wait()
	}

	info.FinishedAt = r.opts.Now().UTC()
	if err := st.PutRun(info); err != nil {
		return out, err
	}
	log.Info("run finished", "computed_folds", out.Computed, "resumed_folds", out.Resumed, "dir", dir)
	return out, nil
}

func (r *Runner) runDataset(
	ctx context.Context,
	ex *executor,
	st *store.Store,
	progress *mpb.Progress,
	id experiment.DatasetID,
	outcome map[string]float64,
	log *slog.Logger,
) (computed, resumed int, err error) {
	log = log.With(logging.KeyDataset, id)
	d, err := r.loadDataset(id, outcome)
	if err != nil {
		return 0, 0, err
	}
	splits, err := cv.GroupShuffleSplit{
		Splits:   r.m.OuterCV.Splits,
		TestSize: r.m.OuterCV.TestSize,
		Seed:     r.m.OuterCV.Seed,
	}.Split(d.Groups())
	if err != nil {
		return 0, 0, fmt.Errorf("dataset %s: %w", id, err)
	}
	log.Info("dataset loaded", "samples", d.Rows(), "features", d.Cols(), "splits", len(splits))

	units := r.units(id, len(splits))
	var bar *mpb.Bar
	if progress != nil && len(units) > 0 {
		bar = progress.AddBar(int64(len(units)),
			mpb.PrependDecorators(
				decor.Name(string(id)+" ", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d/%d", decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done"),
			),
		)
		defer func() {
			if err != nil {
				bar.Abort(false)
			}
		}()
	}

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return computed, resumed, err
		}
		if st.Has(u.key) {
			resumed++
			if bar != nil {
				bar.Increment()
			}
			continue
		}

		start := time.Now()
		res, err := ex.fitFold(ctx, d, splits[u.fold], u)
		if err != nil {
			return computed, resumed, fmt.Errorf("%s: %w", u.key, err)
		}
		res.Seconds = time.Since(start).Seconds()
		if err := st.Put(*res); err != nil {
			return computed, resumed, err
		}
		computed++
		log.Debug("fold done", logging.KeyTrial, u.trial.ID, logging.KeyModel, u.model, logging.KeyFold, u.fold,
			"selected", len(res.Selected), "seconds", res.Seconds)
		if bar != nil {
			bar.Increment()
		}
	}
	return computed, resumed, nil
}

// Units returns the number of folds a complete run computes per dataset.
// Plain models are counted once per distinct preprocessing setting.
func (r *Runner) Units() int {
	if len(r.m.Datasets) == 0 {
		return 0
	}
	return len(r.units(r.m.Datasets[0], r.m.OuterCV.Splits))
}

// units lists every fold of a dataset. Plain models depend only on the
// preprocessing settings, so trials sharing them share one set of folds.
func (r *Runner) units(id experiment.DatasetID, splits int) []unit {
	var out []unit
	seen := make(map[store.FoldKey]bool)
	for _, trial := range r.m.Trials() {
		for _, model := range r.m.EnabledModels() {
			for fold := range splits {
				key := store.FoldKey{Trial: trial.KeyFor(model), Dataset: string(id), Model: string(model), Fold: fold}
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, unit{trial: trial, model: model, fold: fold, key: key})
			}
		}
	}
	return out
}

func (r *Runner) dataBase() string {
	if r.opts.DataDir != "" {
		return r.opts.DataDir
	}
	return r.opts.BaseDir
}

// LoadDataset reads dataset id joined with the outcome file, as a run does.
func (r *Runner) LoadDataset(id experiment.DatasetID) (*dataset.Dataset, error) {
	outcome, err := r.loadOutcome()
	if err != nil {
		return nil, err
	}
	return r.loadDataset(id, outcome)
}

func (r *Runner) loadOutcome() (map[string]float64, error) {
	path := r.m.OutcomePath(r.dataBase())
	out, err := dataset.LoadOutcome(path, r.m.Data.OutcomeColumn, dataset.CSVOptions{IDColumn: r.m.Data.IDColumn})
	if err != nil {
		return nil, &DataError{Path: path, Err: err}
	}
	return out, nil
}

func (r *Runner) loadDataset(id experiment.DatasetID, outcome map[string]float64) (*dataset.Dataset, error) {
	path := r.m.DatasetPath(r.dataBase(), id)
	t, err := dataset.LoadCSV(path, dataset.CSVOptions{IDColumn: r.m.Data.IDColumn})
	if err != nil {
		return nil, &DataError{Path: path, Err: err}
	}
	d, err := dataset.Join(t, outcome)
	if err != nil {
		return nil, &DataError{Path: path, Err: err}
	}
	if r.m.General.VariableType == experiment.VariableBinary {
		if err := d.CheckBinary(); err != nil {
			return nil, &DataError{Path: path, Err: err}
		}
	}
	if len(r.m.Data.Stims) > 0 {
		if _, err := d.SplitByStim(r.m.Data.Stims); err != nil {
			return nil, &DataError{Path: path, Err: err}
		}
	}
	return d, nil
}

// DataError reports a dataset or outcome file that cannot be used.
type DataError struct {
	Path string
	Err  error
}

func (e *DataError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *DataError) Unwrap() error { return e.Err }

// foldSeed derives the RNG seed of one fold from the run seed and its key,
// so results do not depend on the order folds are computed in.
func foldSeed(seed int64, key store.FoldKey) int64 {
	h := fnv.New64a()
	_, _ = io.WriteString(h, key.String())
	return seed ^ int64(h.Sum64()>>1)
}

// newRunID returns a fresh run identifier.
func newRunID() string {
	return uuid.NewString()
}
