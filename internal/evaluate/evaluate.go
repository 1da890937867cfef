// SPDX-License-Identifier: MPL-2.0

// Package evaluate scores out-of-fold predictions.
package evaluate

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// probClip bounds probabilities away from 0 and 1 in LogLoss.
const probClip = 1e-15

// Metric names as they appear in summaries and reports.
const (
	MetricRMSE    = "rmse"
	MetricMAE     = "mae"
	MetricR2      = "r2"
	MetricPearson = "pearson_r"
	MetricAUC     = "roc_auc"
	MetricLogLoss = "log_loss"
)

// ErrLength is returned when truth and predictions differ in length or are empty.
var ErrLength = errors.New("truth and predictions must have the same non-zero length")

// Scores maps a metric name to its value.
type Scores map[string]float64

// RMSE returns the root mean squared error.
func RMSE(y, pred []float64) float64 {
	return math.Sqrt(MSE(y, pred))
}

// MSE returns the mean squared error.
func MSE(y, pred []float64) float64 {
	var s float64
	for i := range y {
		d := y[i] - pred[i]
		s += d * d
	}
	return s / float64(len(y))
}

// MAE returns the mean absolute error.
func MAE(y, pred []float64) float64 {
	var s float64
	for i := range y {
		s += math.Abs(y[i] - pred[i])
	}
	return s / float64(len(y))
}

// R2 returns the coefficient of determination, 1 - SSres/SStot. It is not
// finite for a constant truth.
func R2(y, pred []float64) float64 {
	return stat.RSquaredFrom(pred, y, nil)
}

// Pearson returns the Pearson correlation of y and pred.
func Pearson(y, pred []float64) float64 {
	return stat.Correlation(y, pred, nil)
}

// AUC returns the area under the ROC curve for binary truth and scores,
// counting ties as one half. It is NaN when only one class is present.
func AUC(y, score []float64) float64 {
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return score[idx[a]] < score[idx[b]] })

	// Average ranks over ties (Mann-Whitney U).
	ranks := make([]float64, len(y))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && score[idx[j+1]] == score[idx[i]] {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = r
		}
		i = j + 1
	}

	var nPos, nNeg, sumPos float64
	for i, v := range y {
		if v == 1 {
			nPos++
			sumPos += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return math.NaN()
	}
	return (sumPos - nPos*(nPos+1)/2) / (nPos * nNeg)
}

// LogLoss returns the mean binary cross-entropy of probabilities prob.
func LogLoss(y, prob []float64) float64 {
	var s float64
	for i := range y {
		p := math.Min(math.Max(prob[i], probClip), 1-probClip)
		if y[i] == 1 {
			s -= math.Log(p)
		} else {
			s -= math.Log(1 - p)
		}
	}
	return s / float64(len(y))
}

// Score computes the metrics for the outcome type.
func Score(y, pred []float64, binary bool) (Scores, error) {
	if len(y) == 0 || len(y) != len(pred) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLength, len(y), len(pred))
	}
	if binary {
		return Scores{MetricAUC: AUC(y, pred), MetricLogLoss: LogLoss(y, pred)}, nil
	}
	return Scores{
		MetricRMSE:    RMSE(y, pred),
		MetricMAE:     MAE(y, pred),
		MetricR2:      R2(y, pred),
		MetricPearson: Pearson(y, pred),
	}, nil
}

// Loss is the validation loss used for tuning: MSE or log-loss.
func Loss(y, pred []float64, binary bool) float64 {
	if binary {
		return LogLoss(y, pred)
	}
	return MSE(y, pred)
}

// MedianBySample aggregates repeated out-of-fold predictions: ids[i] was
// predicted pred[i] in some split. It returns the sample ids in first-seen
// order and the median prediction of each.
func MedianBySample(ids []string, pred []float64) ([]string, []float64) {
	var order []string
	bySample := make(map[string][]float64)
	for i, id := range ids {
		if _, ok := bySample[id]; !ok {
			order = append(order, id)
		}
		bySample[id] = append(bySample[id], pred[i])
	}
	out := make([]float64, len(order))
	for k, id := range order {
		out[k] = median(bySample[id])
	}
	return order, out
}

func median(x []float64) float64 {
	s := slices.Clone(x)
	slices.Sort(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

// Mean returns the arithmetic mean, or NaN for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return floats.Sum(x) / float64(len(x))
}
