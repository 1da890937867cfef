// SPDX-License-Identifier: MPL-2.0

package experiment

import (
	"fmt"
	"strconv"
	"strings"
)

// Trial is one combination of the manifest's candidate lists.
type Trial struct {
	Index int
	// ID is the short display identifier, e.g. "t003".
	ID string

	VarianceThreshold    float64
	LIFThreshold         float64
	NBootstraps          int
	Replace              bool
	ArtificialType       DecoyStrategy
	ArtificialProportion float64
	SampleFraction       float64
}

// Trials expands the candidate lists in a fixed order:
// variance threshold, LIF threshold, bootstraps, replace, artificial type,
// artificial proportion, sample fraction, with the last varying fastest.
// The fdr_thresholds ranges are merged into a single sweep (see Thresholds)
// and do not multiply the trial count.
func (m *Manifest) Trials() []Trial {
	var trials []Trial
	p := m.Preprocessing
	s := m.Stabl
	for _, vt := range p.VarianceThresholds {
		for _, lif := range p.LIFThresholds {
			for _, nb := range s.NBootstraps {
				for _, rep := range s.Replace {
					for _, at := range s.ArtificialTypes {
						for _, ap := range s.ArtificialProportions {
							for _, sf := range s.SampleFractions {
								trials = append(trials, Trial{
									Index:                len(trials),
									ID:                   fmt.Sprintf("t%03d", len(trials)),
									VarianceThreshold:    vt,
									LIFThreshold:         lif,
									NBootstraps:          nb,
									Replace:              rep,
									ArtificialType:       at,
									ArtificialProportion: ap,
									SampleFraction:       sf,
								})
							}
						}
					}
				}
			}
		}
	}
	return trials
}

// PlainKey identifies the preprocessing settings only. Plain models do not
// depend on the stability parameters, so trials sharing a PlainKey share
// plain-model results.
func (t Trial) PlainKey() string {
	return "var=" + formatFloat(t.VarianceThreshold) + ",lif=" + formatFloat(t.LIFThreshold)
}

// Key is a content-derived identifier that stays stable when other
// candidates are added to the manifest. Checkpoints are stored under it.
func (t Trial) Key() string {
	return strings.Join([]string{
		t.PlainKey(),
		"b=" + strconv.Itoa(t.NBootstraps),
		"replace=" + strconv.FormatBool(t.Replace),
		"art=" + string(t.ArtificialType),
		"prop=" + formatFloat(t.ArtificialProportion),
		"frac=" + formatFloat(t.SampleFraction),
	}, ",")
}

// KeyFor returns the checkpoint key of model under this trial: plain models
// use PlainKey, stability models the full Key.
func (t Trial) KeyFor(model ModelName) string {
	if model.IsStability() {
		return t.Key()
	}
	return t.PlainKey()
}

// String renders the trial for plans and logs.
func (t Trial) String() string {
	return t.ID + " " + t.Key()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
