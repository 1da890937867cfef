// SPDX-License-Identifier: MPL-2.0

// Package decoy generates artificial features that carry no information about
// the outcome. Stability selection mixes them with the real features and uses
// how often they get selected to estimate the false discovery proportion.
package decoy

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/stabl-dev/stabl/pkg/experiment"

	"gonum.org/v1/gonum/mat"
)

// Prefix starts the name of every decoy column.
const Prefix = "artificial_"

var (
	// ErrUnknownStrategy is returned for a decoy strategy this package cannot generate.
	ErrUnknownStrategy = errors.New("unknown decoy strategy")
	// ErrInvalidProportion is returned for a non-positive decoy proportion.
	ErrInvalidProportion = errors.New("decoy proportion must be positive")
	// ErrEmptyMatrix is returned when there is nothing to derive decoys from.
	ErrEmptyMatrix = errors.New("cannot derive decoys from an empty matrix")
)

// Count returns the number of decoys for p real features: max(1, floor(proportion*p)).
func Count(p int, proportion float64) int {
	return max(1, int(math.Floor(proportion*float64(p))))
}

// Names returns the column names of k decoys.
func Names(k int) []string {
	out := make([]string, k)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", Prefix, i)
	}
	return out
}

// IsDecoy reports whether a column name belongs to a decoy.
func IsDecoy(name string) bool {
	return len(name) > len(Prefix) && name[:len(Prefix)] == Prefix
}

// Generate returns an n x Count(p, proportion) matrix of decoys derived from x.
func Generate(rng *rand.Rand, x *mat.Dense, strategy experiment.DecoyStrategy, proportion float64) (*mat.Dense, error) {
	if !(proportion > 0) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidProportion, proportion)
	}
	if x == nil || x.IsEmpty() {
		return nil, ErrEmptyMatrix
	}
	_, p := x.Dims()
	k := Count(p, proportion)

	switch strategy {
	case experiment.DecoyRandomPermutation:
		return permuted(rng, x, k), nil
	case experiment.DecoyKnockoff:
		return knockoffs(rng, x, k)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// Augment returns [x | decoys].
func Augment(x, decoys *mat.Dense) *mat.Dense {
	n, p := x.Dims()
	_, k := decoys.Dims()
	out := mat.NewDense(n, p+k, nil)
	out.Slice(0, n, 0, p).(*mat.Dense).Copy(x)
	out.Slice(0, n, p, p+k).(*mat.Dense).Copy(decoys)
	return out
}

// permuted copies k source columns, drawn without replacement while k <= p,
// and shuffles the rows of each independently.
func permuted(rng *rand.Rand, x *mat.Dense, k int) *mat.Dense {
	n, p := x.Dims()
	sources := make([]int, k)
	if k <= p {
		copy(sources, rng.Perm(p)[:k])
	} else {
		for i := range sources {
			sources[i] = rng.IntN(p)
		}
	}

	out := mat.NewDense(n, k, nil)
	for c, src := range sources {
		for i, r := range rng.Perm(n) {
			out.Set(i, c, x.At(r, src))
		}
	}
	return out
}
