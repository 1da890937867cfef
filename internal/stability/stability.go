// SPDX-License-Identifier: MPL-2.0

package stability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/stabl-dev/stabl/internal/decoy"
	"github.com/stabl-dev/stabl/internal/linear"
	"github.com/stabl-dev/stabl/pkg/experiment"
	"github.com/stabl-dev/stabl/pkg/grid"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const (
	// SelectionEps is the coefficient magnitude above which a feature counts as selected.
	SelectionEps = 1e-5
	// thresholdEps absorbs rounding between k/B frequencies and threshold literals.
	thresholdEps = 1e-12

	// RNG stream numbers; bootstrap b uses streamBootstrap + b.
	streamDecoy     = 1
	streamBootstrap = 1 << 16
)

var (
	// ErrNoPath is returned when the configuration has no regularisation points.
	ErrNoPath = errors.New("empty regularisation path")
	// ErrNoThresholds is returned when neither thresholds nor a hard threshold are configured.
	ErrNoThresholds = errors.New("no thresholds to sweep")
	// ErrSubsampleTooSmall is returned when a bootstrap would draw fewer than two rows.
	ErrSubsampleTooSmall = errors.New("bootstrap subsample is too small")
)

type (
	// Config describes one stability-selection fit.
	Config struct {
		// Base is the estimator fitted on every bootstrap.
		Base linear.Kind
		// Path holds the hyperparameter points swept per bootstrap.
		Path           []grid.Point
		NBootstraps    int
		Replace        bool
		SampleFraction float64
		Decoy          experiment.DecoyStrategy
		// DecoyProportion sets the number of decoys relative to the real features.
		DecoyProportion float64
		// Thresholds are the FDR sweep candidates in ascending order.
		Thresholds []float64
		// HardThreshold, when set, replaces the FDR-chosen threshold.
		HardThreshold *float64
		MaxIter       int
		Binary        bool
		Workers       int
		Seed          int64
	}

	// Result is the outcome of Select.
	Result struct {
		Features []string
		// Path is the selection frequency per path point, real features first
		// then decoys.
		Path   [][]float64
		Points []grid.Point
		// Scores holds the max frequency over the path for each real feature.
		Scores []float64
		// DecoyScores holds the max frequency for each decoy.
		DecoyScores []float64
		Thresholds  []float64
		// FDP is FDP+ at each threshold.
		FDP []float64
		// Threshold is the threshold used for the final selection.
		Threshold float64
		// MinFDP is the smallest FDP+ over the sweep, NaN without a sweep.
		MinFDP        float64
		Hard          bool
		Selected      []string
		SelectedIndex []int
	}
)

// Select runs stability selection on the training matrix x with outcome y.
func Select(ctx context.Context, x *mat.Dense, y []float64, features []string, cfg Config) (*Result, error) {
	n, p := x.Dims()
	if len(features) != p || len(y) != n {
		return nil, fmt.Errorf("%w: X is %dx%d, %d names, %d outcomes", linear.ErrShape, n, p, len(features), len(y))
	}
	if len(cfg.Path) == 0 {
		return nil, ErrNoPath
	}
	if len(cfg.Thresholds) == 0 && cfg.HardThreshold == nil {
		return nil, ErrNoThresholds
	}
	m := int(math.Floor(cfg.SampleFraction * float64(n)))
	if m < 2 {
		return nil, fmt.Errorf("%w: %d of %d rows", ErrSubsampleTooSmall, m, n)
	}
	if cfg.NBootstraps < 1 {
		cfg.NBootstraps = 1
	}

	decoys, err := decoy.Generate(newRNG(cfg.Seed, streamDecoy), x, cfg.Decoy, cfg.DecoyProportion)
	if err != nil {
		return nil, err
	}
	xa := decoy.Augment(x, decoys)
	_, total := xa.Dims()

	slog.Debug("stability selection",
		"base", cfg.Base, "samples", n, "features", p, "decoys", total-p,
		"path", len(cfg.Path), "bootstraps", cfg.NBootstraps)

	counts := make([][]int, len(cfg.Path))
	for i := range counts {
		counts[i] = make([]int, total)
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.Workers))
	for b := range cfg.NBootstraps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			local, err := bootstrap(gctx, xa, y, m, b, cfg)
			if err != nil {
				return fmt.Errorf("bootstrap %d: %w", b, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for i, row := range local {
				for j, sel := range row {
					if sel {
						counts[i][j]++
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Features:    slices.Clone(features),
		Points:      cfg.Path,
		Path:        make([][]float64, len(cfg.Path)),
		Scores:      make([]float64, p),
		DecoyScores: make([]float64, total-p),
		Thresholds:  slices.Clone(cfg.Thresholds),
	}
	for i, row := range counts {
		freq := make([]float64, total)
		for j, c := range row {
			freq[j] = float64(c) / float64(cfg.NBootstraps)
		}
		res.Path[i] = freq
		for j, f := range freq {
			if j < p {
				res.Scores[j] = math.Max(res.Scores[j], f)
			} else {
				res.DecoyScores[j-p] = math.Max(res.DecoyScores[j-p], f)
			}
		}
	}

	res.FDP, res.Threshold, res.MinFDP = Sweep(res.Scores, res.DecoyScores, res.Thresholds)
	if cfg.HardThreshold != nil {
		res.Threshold = *cfg.HardThreshold
		res.Hard = true
	}
	for j, s := range res.Scores {
		if s >= res.Threshold-thresholdEps {
			res.Selected = append(res.Selected, features[j])
			res.SelectedIndex = append(res.SelectedIndex, j)
		}
	}

	slog.Debug("stability selection done",
		"threshold", res.Threshold, "min_fdp", res.MinFDP, "selected", len(res.Selected))
	return res, nil
}

// bootstrap draws one subsample and fits the base estimator at every path
// point, returning which columns were selected at each.
func bootstrap(ctx context.Context, xa *mat.Dense, y []float64, m, b int, cfg Config) ([][]bool, error) {
	n, total := xa.Dims()
	rng := newRNG(cfg.Seed, uint64(streamBootstrap+b))

	rows := make([]int, m)
	if cfg.Replace {
		for i := range rows {
			rows[i] = rng.IntN(n)
		}
	} else {
		copy(rows, rng.Perm(n)[:m])
	}

	xs := mat.NewDense(m, total, nil)
	ys := make([]float64, m)
	for i, r := range rows {
		xs.SetRow(i, xa.RawRowView(r))
		ys[i] = y[r]
	}

	out := make([][]bool, len(cfg.Path))
	for i, point := range cfg.Path {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		est, err := linear.New(linear.FromPoint(cfg.Base, point, cfg.MaxIter, cfg.Binary))
		if err != nil {
			return nil, err
		}
		if err := est.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("fit at %s: %w", point, err)
		}
		sel := make([]bool, total)
		for j, c := range est.Coef() {
			sel[j] = math.Abs(c) > SelectionEps
		}
		out[i] = sel
	}
	return out, nil
}

// Sweep computes FDP+ = (1 + #decoys >= t) / max(1, #real >= t) at every
// threshold and returns the curve, the smallest threshold attaining the
// minimum, and that minimum. Without thresholds it returns NaNs.
func Sweep(scores, decoyScores, thresholds []float64) (fdp []float64, best, minFDP float64) {
	best, minFDP = math.NaN(), math.NaN()
	fdp = make([]float64, len(thresholds))
	for i, t := range thresholds {
		var nDecoy, nReal int
		for _, s := range decoyScores {
			if s >= t-thresholdEps {
				nDecoy++
			}
		}
		for _, s := range scores {
			if s >= t-thresholdEps {
				nReal++
			}
		}
		fdp[i] = float64(1+nDecoy) / float64(max(1, nReal))
		if math.IsNaN(minFDP) || fdp[i] < minFDP || (fdp[i] == minFDP && t < best) {
			minFDP, best = fdp[i], t
		}
	}
	return fdp, best, minFDP
}

func newRNG(seed int64, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), stream))
}
