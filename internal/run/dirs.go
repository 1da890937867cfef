// SPDX-License-Identifier: MPL-2.0

package run

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stabl-dev/stabl/internal/store"
	"github.com/stabl-dev/stabl/pkg/experiment"
)

// prepare resolves the run directory and the metadata of a new run. When
// resuming, the metadata stored in the checkpoint takes precedence.
func (r *Runner) prepare() (store.RunInfo, string, error) {
	manifest := experiment.GenerateCUE(r.m)
	now := r.opts.Now().UTC()
	seed, drawn := r.m.General.RandomSeed.Value, false
	if !r.m.General.RandomSeed.Enabled {
		seed, drawn = now.UnixNano(), true
	}
	info := store.RunInfo{
		Experiment: string(r.m.Name),
		Seed:       seed,
		SeedDrawn:  drawn,
		Splits:     r.m.OuterCV.Splits,
		StartedAt:  now,
		Manifest:   manifest,
	}

	if r.opts.Resume {
		id := r.opts.RunID
		if id == "" {
			latest, err := LatestRun(r.ExperimentDir(), r.opts.Checkpoint)
			if err != nil {
				return info, "", err
			}
			id = latest
		}
		dir := filepath.Join(r.ExperimentDir(), id)
		if _, err := os.Stat(filepath.Join(dir, r.opts.Checkpoint)); err != nil {
			return info, "", fmt.Errorf("%w: %s", ErrNoRunToResume, dir)
		}
		if prev, err := os.ReadFile(filepath.Join(dir, ManifestFile)); err == nil && string(prev) != manifest {
			slog.Warn("manifest changed since the run started; completed folds are kept", "dir", dir)
		}
		info.ID = id
		return info, dir, nil
	}

	info.ID = newRunID()
	dir := filepath.Join(r.ExperimentDir(), info.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return info, "", err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644); err != nil {
		return info, "", err
	}
	return info, dir, nil
}

// LatestRun returns the id of the run under experimentDir whose checkpoint
// was modified last.
func LatestRun(experimentDir, checkpoint string) (string, error) {
	if checkpoint == "" {
		checkpoint = DefaultCheckpoint
	}
	entries, err := os.ReadDir(experimentDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoRunToResume, experimentDir)
		}
		return "", err
	}

	var latest string
	var latestInfo fs.FileInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		fi, err := os.Stat(filepath.Join(experimentDir, e.Name(), checkpoint))
		if err != nil {
			continue
		}
		if latestInfo == nil || fi.ModTime().After(latestInfo.ModTime()) {
			latest, latestInfo = e.Name(), fi
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w in %s", ErrNoRunToResume, experimentDir)
	}
	return latest, nil
}
