// SPDX-License-Identifier: MPL-2.0

// Package tuning picks hyperparameters of plain models by repeated K-fold
// cross-validation on the outer training fold.
package tuning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/stabl-dev/stabl/internal/cv"
	"github.com/stabl-dev/stabl/internal/evaluate"
	"github.com/stabl-dev/stabl/internal/linear"
	"github.com/stabl-dev/stabl/pkg/grid"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ErrNoPoints is returned when the grid is empty.
var ErrNoPoints = errors.New("empty hyperparameter grid")

type (
	// Config describes one grid search.
	Config struct {
		Kind    linear.Kind
		Points  []grid.Point
		Folds   int
		Repeats int
		Seed    int64
		MaxIter int
		Binary  bool
		Workers int
	}

	// Result holds the winning point and the estimator refitted with it on
	// all rows.
	Result struct {
		Best      grid.Point
		BestLoss  float64
		Losses    []float64
		Estimator linear.Estimator
	}
)

// Tune evaluates every grid point by its mean validation loss (MSE, or
// log-loss for binary outcomes) across RepeatedKFold splits. Ties keep the
// earlier point.
func Tune(ctx context.Context, x *mat.Dense, y []float64, cfg Config) (*Result, error) {
	if len(cfg.Points) == 0 {
		return nil, ErrNoPoints
	}
	n, _ := x.Dims()
	splits, err := cv.RepeatedKFold{Folds: cfg.Folds, Repeats: cfg.Repeats, Seed: cfg.Seed}.Split(n)
	if err != nil {
		return nil, err
	}

	losses := make([]float64, len(cfg.Points))
	if len(cfg.Points) == 1 {
		// Nothing to compare; skip the inner folds.
		losses[0] = math.NaN()
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(1, cfg.Workers))
		for i, point := range cfg.Points {
			g.Go(func() error {
				loss, err := crossValidate(gctx, x, y, splits, linear.FromPoint(cfg.Kind, point, cfg.MaxIter, cfg.Binary))
				if err != nil {
					return fmt.Errorf("grid point %s: %w", point, err)
				}
				losses[i] = loss
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	best := 0
	for i, l := range losses {
		if l < losses[best] || math.IsNaN(losses[best]) && !math.IsNaN(l) {
			best = i
		}
	}
	slog.Debug("inner tuning", "kind", cfg.Kind, "points", len(cfg.Points), "best", cfg.Points[best].String(), "loss", losses[best])

	est, err := linear.New(linear.FromPoint(cfg.Kind, cfg.Points[best], cfg.MaxIter, cfg.Binary))
	if err != nil {
		return nil, err
	}
	if err := est.Fit(x, y); err != nil {
		return nil, err
	}
	return &Result{Best: cfg.Points[best], BestLoss: losses[best], Losses: losses, Estimator: est}, nil
}

func crossValidate(ctx context.Context, x *mat.Dense, y []float64, splits []cv.Split, spec linear.Spec) (float64, error) {
	var total float64
	for _, s := range splits {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		est, err := linear.New(spec)
		if err != nil {
			return 0, err
		}
		xTrain, yTrain := Rows(x, y, s.Train)
		if err := est.Fit(xTrain, yTrain); err != nil {
			return 0, err
		}
		xTest, yTest := Rows(x, y, s.Test)
		loss := evaluate.Loss(yTest, est.Predict(xTest), spec.Binary)
		if math.IsNaN(loss) {
			loss = math.Inf(1)
		}
		total += loss
	}
	return total / float64(len(splits)), nil
}

// Rows copies the given rows of x and y.
func Rows(x *mat.Dense, y []float64, rows []int) (*mat.Dense, []float64) {
	_, p := x.Dims()
	xs := mat.NewDense(len(rows), p, nil)
	ys := make([]float64, len(rows))
	for i, r := range rows {
		xs.SetRow(i, x.RawRowView(r))
		ys[i] = y[r]
	}
	return xs, ys
}
