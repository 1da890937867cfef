// SPDX-License-Identifier: MPL-2.0

// Package watch re-runs a callback when experiment files change.
//
// It watches a base directory (usually the manifest's) and any extra roots
// such as an out-of-tree data directory, filters events by glob pattern and
// coalesces bursts into one callback per quiet period.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

var (
	// ManifestPatterns select manifest sources and data tables.
	ManifestPatterns = []string{"**/*.cue", "**/*.json", "**/*.yaml", "**/*.yml", "**/*.toml", "**/*.csv"}

	// defaultIgnores are never watched: VCS metadata, run outputs and
	// editor temporaries.
	defaultIgnores = []string{
		"**/.git/**",
		"**/results/**",
		"**/*.db",
		"**/*.parquet",
		"**/*.swp",
		"**/*~",
		"**/.DS_Store",
	}

	// ErrInvalidConfig is the sentinel wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid watch configuration")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("watcher already running")
)

type (
	// Config configures a Watcher.
	Config struct {
		// BaseDir is watched recursively and changed paths are reported
		// relative to it. Empty means the working directory.
		BaseDir string
		// Roots are further directories to watch, e.g. a data directory
		// outside BaseDir.
		Roots []string
		// Patterns are doublestar globs matched against the path relative to
		// its root. Empty matches every file.
		Patterns []string
		// Ignore extends the built-in ignore list.
		Ignore []string
		// Debounce is the quiet period before OnChange fires.
		Debounce time.Duration
		// OnChange receives the sorted changed paths. Its error is logged
		// and watching goes on.
		OnChange func(ctx context.Context, changed []string) error
	}

	// InvalidConfigError lists every invalid field of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Watcher watches a set of directory trees.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		base     string
		roots    []string
		ignores  []string
		debounce time.Duration
		running  bool
	}
)

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid watch configuration: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// IsValid checks every glob pattern and returns all failures.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	check := func(label string, patterns []string) {
		for _, p := range patterns {
			if p == "" || !doublestar.ValidatePattern(p) {
				errs = append(errs, fmt.Errorf("%s pattern %q is not a valid glob", label, p))
			}
		}
	}
	check("watch", c.Patterns)
	check("ignore", c.Ignore)
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce %s is negative", c.Debounce))
	}
	return len(errs) == 0, errs
}

// New validates cfg and registers every non-ignored directory under the
// base directory and the extra roots.
func New(cfg Config) (*Watcher, error) {
	if ok, errs := cfg.IsValid(); !ok {
		return nil, &InvalidConfigError{FieldErrors: errs}
	}
	base := cfg.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		base = wd
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	roots := []string{base}
	for _, r := range cfg.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(roots, abs) && !within(base, abs) {
			roots = append(roots, abs)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		base:     base,
		roots:    roots,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: cmpOr(cfg.Debounce, defaultDebounce),
	}
	for _, r := range roots {
		if err := w.addTree(r); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run processes events until ctx is done and returns nil then. Callbacks run
// on the event loop, so they never overlap; events arriving meanwhile are
// picked up by the next quiet period. A watcher can run once.
func (w *Watcher) Run(ctx context.Context) error {
	if w.running {
		return ErrAlreadyRunning
	}
	w.running = true
	defer func() { _ = w.fsw.Close() }()

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			clear(pending)
			slices.Sort(changed)
			slog.Debug("files changed", "count", len(changed))
			if w.cfg.OnChange != nil {
				if err := w.cfg.OnChange(ctx, changed); err != nil {
					slog.Warn("watch callback failed", "error", err)
				}
			}

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			rel, display, ok := w.locate(evt.Name)
			if !ok || w.ignored(rel) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
					if err := w.addTree(evt.Name); err != nil {
						slog.Warn("cannot watch new directory", "dir", evt.Name, "error", err)
					}
					continue
				}
			}
			if !w.matches(rel) {
				continue
			}
			pending[display] = true
			timer.Reset(w.debounce)
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			if exhausted(err) {
				return fmt.Errorf("watcher out of resources: %w", err)
			}
			slog.Warn("watch error", "error", err)
		}
	}
}

// addTree registers dir and its non-ignored subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _, ok := w.locate(path); ok && rel != "." && (w.ignored(rel) || w.ignored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// locate returns path relative to the root containing it, for matching,
// and the path to report: relative to the base directory when inside it,
// absolute otherwise.
func (w *Watcher) locate(path string) (rel, display string, ok bool) {
	for _, root := range w.roots {
		if !within(root, path) {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if root == w.base {
			return rel, rel, true
		}
		return rel, path, true
	}
	return "", "", false
}

func (w *Watcher) ignored(rel string) bool {
	return anyMatch(w.ignores, rel)
}

func (w *Watcher) matches(rel string) bool {
	return len(w.cfg.Patterns) == 0 || anyMatch(w.cfg.Patterns, rel)
}

func anyMatch(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// within reports whether path is root or below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func cmpOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// DefaultIgnores returns a copy of the built-in ignore list.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}
