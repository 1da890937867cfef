// SPDX-License-Identifier: MPL-2.0

// Package cv generates cross-validation splits. Both splitters are
// deterministic for a given seed.
package cv

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

var (
	// ErrTooFewGroups is returned when a group split cannot leave both sides non-empty.
	ErrTooFewGroups = errors.New("too few groups to split")
	// ErrTooFewSamples is returned when there are fewer samples than folds.
	ErrTooFewSamples = errors.New("too few samples for the number of folds")
	// ErrInvalidSplitter is returned for out-of-range splitter settings.
	ErrInvalidSplitter = errors.New("invalid splitter settings")
)

type (
	// Split holds train and test row indices, each in ascending order.
	Split struct {
		Train []int
		Test  []int
	}

	// GroupShuffleSplit draws random train/test partitions of whole groups.
	GroupShuffleSplit struct {
		Splits   int
		TestSize float64
		Seed     int64
	}

	// RepeatedKFold shuffles the samples and cuts them into Folds folds,
	// Repeats times.
	RepeatedKFold struct {
		Folds   int
		Repeats int
		Seed    int64
	}
)

// NewRNG returns the PCG stream used for a seed and a stream number.
func NewRNG(seed int64, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), stream))
}

// Split partitions the samples labelled by groups. Each split holds out
// ceil(TestSize * number of groups) groups.
func (g GroupShuffleSplit) Split(groups []string) ([]Split, error) {
	if g.Splits < 1 || !(g.TestSize > 0 && g.TestSize < 1) {
		return nil, fmt.Errorf("%w: splits %d, test size %g", ErrInvalidSplitter, g.Splits, g.TestSize)
	}

	var labels []string
	members := make(map[string][]int)
	for i, grp := range groups {
		if _, ok := members[grp]; !ok {
			labels = append(labels, grp)
		}
		members[grp] = append(members[grp], i)
	}
	slices.Sort(labels)
	nGroups := len(labels)
	nTest := int(math.Ceil(g.TestSize * float64(nGroups)))
	if nGroups < 2 || nTest >= nGroups {
		return nil, fmt.Errorf("%w: %d groups with test size %g", ErrTooFewGroups, nGroups, g.TestSize)
	}

	rng := NewRNG(g.Seed, 0)
	out := make([]Split, g.Splits)
	for s := range out {
		perm := rng.Perm(nGroups)
		var split Split
		for k, gi := range perm {
			if k < nTest {
				split.Test = append(split.Test, members[labels[gi]]...)
			} else {
				split.Train = append(split.Train, members[labels[gi]]...)
			}
		}
		slices.Sort(split.Train)
		slices.Sort(split.Test)
		out[s] = split
	}
	return out, nil
}

// Split partitions n samples. The first n % Folds folds hold one extra sample.
func (k RepeatedKFold) Split(n int) ([]Split, error) {
	if k.Folds < 2 || k.Repeats < 1 {
		return nil, fmt.Errorf("%w: %d folds, %d repeats", ErrInvalidSplitter, k.Folds, k.Repeats)
	}
	if n < k.Folds {
		return nil, fmt.Errorf("%w: %d samples, %d folds", ErrTooFewSamples, n, k.Folds)
	}

	rng := NewRNG(k.Seed, 1)
	out := make([]Split, 0, k.Folds*k.Repeats)
	for range k.Repeats {
		perm := rng.Perm(n)
		start := 0
		for f := range k.Folds {
			size := n / k.Folds
			if f < n%k.Folds {
				size++
			}
			test := slices.Clone(perm[start : start+size])
			train := make([]int, 0, n-size)
			train = append(train, perm[:start]...)
			train = append(train, perm[start+size:]...)
			slices.Sort(test)
			slices.Sort(train)
			out = append(out, Split{Train: train, Test: test})
			start += size
		}
	}
	return out, nil
}
