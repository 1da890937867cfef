// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

// recorder collects callback invocations.
type recorder struct {
	mu    sync.Mutex
	calls [][]string
	fired chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan struct{}, 16)}
}

func (r *recorder) onChange(_ context.Context, changed []string) error {
	r.mu.Lock()
	r.calls = append(r.calls, changed)
	r.mu.Unlock()
	r.fired <- struct{}{}
	return nil
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// start runs w until the test ends.
func start(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() error: %v", err)
		}
	})
}

func waitFired(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func write(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_Debounce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec := newRecorder()
	w, err := New(Config{BaseDir: dir, Patterns: ManifestPatterns, Debounce: 100 * time.Millisecond, OnChange: rec.onChange})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	for _, name := range []string{"stabl.cue", "outcome.csv", "immune.csv"} {
		write(t, filepath.Join(dir, name))
		time.Sleep(10 * time.Millisecond)
	}
	waitFired(t, rec)
	time.Sleep(200 * time.Millisecond)

	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("callbacks = %d, want 1", len(calls))
	}
	want := []string{"immune.csv", "outcome.csv", "stabl.cue"}
	if !slices.Equal(calls[0], want) {
		t.Errorf("changed = %v, want %v", calls[0], want)
	}
}

func TestWatcher_Filtering(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "results", "preterm"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	w, err := New(Config{
		BaseDir:  dir,
		Patterns: ManifestPatterns,
		Ignore:   []string{"**/scratch.cue"},
		Debounce: 50 * time.Millisecond,
		OnChange: rec.onChange,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	write(t, filepath.Join(dir, "notes.txt"))
	write(t, filepath.Join(dir, "scratch.cue"))
	write(t, filepath.Join(dir, "checkpoint.db"))
	write(t, filepath.Join(dir, "results", "preterm", "summary.json"))
	time.Sleep(300 * time.Millisecond)
	if calls := rec.snapshot(); len(calls) != 0 {
		t.Fatalf("callbacks for ignored files: %v", calls)
	}

	write(t, filepath.Join(dir, "stabl.json"))
	waitFired(t, rec)
	if calls := rec.snapshot(); !slices.Equal(calls[0], []string{"stabl.json"}) {
		t.Errorf("changed = %v, want [stabl.json]", calls[0])
	}
}

func TestWatcher_NewDirectoryAndRoots(t *testing.T) {
	t.Parallel()

	base, data := t.TempDir(), t.TempDir()
	rec := newRecorder()
	w, err := New(Config{BaseDir: base, Roots: []string{data, base}, Patterns: ManifestPatterns, Debounce: 50 * time.Millisecond, OnChange: rec.onChange})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	sub := filepath.Join(base, "extra")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	write(t, filepath.Join(sub, "more.yaml"))
	waitFired(t, rec)
	if calls := rec.snapshot(); !slices.Contains(calls[len(calls)-1], "extra/more.yaml") {
		t.Errorf("changed = %v, want extra/more.yaml", calls[len(calls)-1])
	}

	outside := filepath.Join(data, "immune.csv")
	write(t, outside)
	waitFired(t, rec)
	calls := rec.snapshot()
	if last := calls[len(calls)-1]; !slices.Contains(last, outside) {
		t.Errorf("changed = %v, want absolute %s", last, outside)
	}
}

func TestWatcher_CallbackErrorKeepsWatching(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fired := make(chan struct{}, 4)
	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 50 * time.Millisecond,
		OnChange: func(context.Context, []string) error {
			fired <- struct{}{}
			return errors.New("invalid manifest")
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	for i := range 2 {
		write(t, filepath.Join(dir, "stabl.cue"))
		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatalf("callback %d did not fire", i)
		}
	}
}

func TestWatcher_RunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if err := w.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestConfig_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      Config
		wantErrs int
	}{
		{"zero value", Config{}, 0},
		{"manifest patterns", Config{Patterns: ManifestPatterns, Ignore: []string{"**/tmp/**"}}, 0},
		{"empty pattern", Config{Patterns: []string{""}}, 1},
		{"unclosed bracket", Config{Patterns: []string{"[abc"}, Ignore: []string{"{a,b"}}, 2},
		{"negative debounce", Config{Debounce: -time.Second}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, errs := tt.cfg.IsValid()
			if ok != (tt.wantErrs == 0) || len(errs) != tt.wantErrs {
				t.Errorf("IsValid() = %v, %d errors, want %d errors", ok, len(errs), tt.wantErrs)
			}
		})
	}

	_, err := New(Config{Patterns: []string{"[abc"}})
	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) || !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(invalid) error = %v, want InvalidConfigError", err)
	}
}

func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	w := &Watcher{ignores: DefaultIgnores()}
	for _, rel := range []string{".git/HEAD", "results/preterm/run/checkpoint.db", "checkpoint.db", "stabl.cue.swp", "stabl.cue~", "a/.DS_Store"} {
		if !w.ignored(rel) {
			t.Errorf("ignored(%q) = false, want true", rel)
		}
	}
	for _, rel := range []string{"stabl.cue", "data/immune.csv"} {
		if w.ignored(rel) {
			t.Errorf("ignored(%q) = true, want false", rel)
		}
	}

	got := DefaultIgnores()
	got[0] = "changed"
	if DefaultIgnores()[0] == "changed" {
		t.Error("DefaultIgnores() returned the shared slice")
	}
}
