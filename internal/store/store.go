// SPDX-License-Identifier: MPL-2.0

// Package store persists run metadata and completed fold results in a bbolt
// checkpoint so an interrupted run can resume where it stopped.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

const (
	bucketRuns  = "runs"
	bucketFolds = "folds"
	keyRun      = "run"

	// openTimeout bounds the wait for another process's file lock.
	openTimeout = time.Second
)

var (
	// ErrLocked is returned when another process holds the checkpoint.
	ErrLocked = errors.New("checkpoint is locked by another process")
	// ErrNoRun is returned when the checkpoint has no run metadata.
	ErrNoRun = errors.New("checkpoint holds no run")
	// ErrInvalidKey is returned when a fold key cannot be parsed.
	ErrInvalidKey = errors.New("invalid fold key")
	// ErrNonFinite is returned when a record holds a NaN or infinite number,
	// which JSON cannot encode.
	ErrNonFinite = errors.New("record holds a non-finite value")
)

type (
	// Store is an open checkpoint.
	Store struct {
		db   *bbolt.DB
		path string
	}

	// FoldKey identifies one outer fold of one model on one dataset in one trial.
	FoldKey struct {
		Trial   string `json:"trial"`
		Dataset string `json:"dataset"`
		Model   string `json:"model"`
		Fold    int    `json:"fold"`
	}

	// RunInfo describes a run.
	RunInfo struct {
		ID         string    `json:"id"`
		Experiment string    `json:"experiment"`
		Seed       int64     `json:"seed"`
		SeedDrawn  bool      `json:"seed_drawn,omitempty"`
		Splits     int       `json:"splits"`
		StartedAt  time.Time `json:"started_at"`
		FinishedAt time.Time `json:"finished_at,omitzero"`
		// Manifest is the normalised CUE manifest the run was started with.
		Manifest string `json:"manifest"`
	}

	// BlockResult is the stability selection outcome on one stim block.
	BlockResult struct {
		Name        string    `json:"name"`
		Features    []string  `json:"features"`
		Scores      []float64 `json:"scores"`
		DecoyScores []float64 `json:"decoy_scores"`
		Thresholds  []float64 `json:"thresholds,omitempty"`
		FDP         []float64 `json:"fdp,omitempty"`
		Threshold   float64   `json:"threshold"`
		// MinFDP is nil when a hard threshold replaced the sweep.
		MinFDP   *float64 `json:"min_fdp,omitempty"`
		Hard     bool     `json:"hard,omitempty"`
		Selected []string `json:"selected"`
	}

	// FoldResult is everything kept about one completed fold.
	FoldResult struct {
		Key         FoldKey            `json:"key"`
		TestIDs     []string           `json:"test_ids"`
		Truth       []float64          `json:"truth"`
		Predictions []float64          `json:"predictions"`
		Features    int                `json:"features"`
		Params      map[string]float64 `json:"params,omitempty"`
		Coef        map[string]float64 `json:"coef,omitempty"`
		Selected    []string           `json:"selected,omitempty"`
		Blocks      []BlockResult      `json:"blocks,omitempty"`
		Seconds     float64            `json:"seconds"`
	}
)

// String renders the key as trial/dataset/model/fold, with the fold
// zero-padded so keys sort in fold order.
func (k FoldKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%04d", k.Trial, k.Dataset, k.Model, k.Fold)
}

// ParseFoldKey is the inverse of FoldKey.String.
func ParseFoldKey(s string) (FoldKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 4 {
		return FoldKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	var fold int
	if _, err := fmt.Sscanf(parts[3], "%d", &fold); err != nil {
		return FoldKey{}, fmt.Errorf("%w: %q: %w", ErrInvalidKey, s, err)
	}
	return FoldKey{Trial: parts[0], Dataset: parts[1], Model: parts[2], Fold: fold}, nil
}

// MinFDP converts a possibly-NaN minimum FDP into its stored form.
func MinFDP(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// Open opens or creates the checkpoint at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		if errors.Is(err, berrors.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("failed to open checkpoint %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketRuns, bucketFolds} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the checkpoint file path.
func (s *Store) Path() string { return s.path }

// PutRun records the run metadata.
func (s *Store) PutRun(info RunInfo) error {
	return s.put(bucketRuns, keyRun, info)
}

// Run returns the run metadata.
func (s *Store) Run() (*RunInfo, error) {
	var info RunInfo
	found, err := s.get(bucketRuns, keyRun, &info)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoRun
	}
	return &info, nil
}

// Put records a completed fold.
func (s *Store) Put(r FoldResult) error {
	return s.put(bucketFolds, r.Key.String(), r)
}

// Get returns the fold stored under key, if any.
func (s *Store) Get(key FoldKey) (*FoldResult, bool, error) {
	var r FoldResult
	found, err := s.get(bucketFolds, key.String(), &r)
	if err != nil || !found {
		return nil, found, err
	}
	return &r, true, nil
}

// Has reports whether key has a stored fold.
func (s *Store) Has(key FoldKey) bool {
	var exists bool
	_ = s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket([]byte(bucketFolds)).Get([]byte(key.String())) != nil
		return nil
	})
	return exists
}

// Folds returns every stored fold in key order.
func (s *Store) Folds() ([]FoldResult, error) {
	var out []FoldResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketFolds)).ForEach(func(k, v []byte) error {
			var r FoldResult
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("fold %s: %w", k, err)
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

// Count returns the number of stored folds.
func (s *Store) Count() int {
	var n int
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(bucketFolds)).Stats().KeyN
		return nil
	})
	return n
}

func (s *Store) put(bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if uv := (*json.UnsupportedValueError)(nil); errors.As(err, &uv) {
		return fmt.Errorf("%w: %s: %s", ErrNonFinite, key, uv.Str)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

func (s *Store) get(bucket, key string, v any) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	return found, err
}
