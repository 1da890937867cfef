// SPDX-License-Identifier: MPL-2.0

package grid

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

const (
	// ScaleLog spaces values evenly between 10^Low and 10^High.
	ScaleLog Scale = "log"
	// ScaleLinear spaces values evenly between Low and High, both included.
	ScaleLinear Scale = "lin"

	// MaxCount bounds the number of values a Spec or Range may expand to.
	MaxCount = 10000

	// sweepEpsilon absorbs floating-point drift when stepping towards a stop value.
	sweepEpsilon = 1e-9
)

var (
	// ErrInvalidScale is returned when a Scale value is not recognized.
	ErrInvalidScale = errors.New("invalid grid scale")
	// ErrInvalidSpec is returned when grid bounds or count are unusable.
	ErrInvalidSpec = errors.New("invalid grid spec")
	// ErrInvalidRange is returned when a sweep range cannot produce values.
	ErrInvalidRange = errors.New("invalid sweep range")
)

type (
	// Scale selects how grid values are spaced.
	Scale string

	// InvalidScaleError is returned when a Scale value is not recognized.
	// It wraps ErrInvalidScale for errors.Is() compatibility.
	InvalidScaleError struct {
		Value Scale
	}

	// Spec is a one-dimensional grid: Count values between Low and High.
	// For ScaleLog the bounds are base-10 exponents.
	Spec struct {
		Scale Scale
		Low   float64
		High  float64
		Count int
	}

	// InvalidSpecError describes why a Spec cannot be expanded.
	InvalidSpecError struct {
		Spec   Spec
		Reason string
	}

	// Range is a half-open [Start, Stop) sweep advancing by Step.
	Range struct {
		Start float64
		Stop  float64
		Step  float64
	}

	// InvalidRangeError describes why a Range cannot be swept.
	InvalidRangeError struct {
		Range  Range
		Reason string
	}

	// Point is one element of a grid product, keyed by parameter name.
	Point map[string]float64
)

// String returns the string representation of the Scale.
func (s Scale) String() string { return string(s) }

// IsValid returns whether the Scale is one of the defined scales,
// and a list of validation errors if it is not.
func (s Scale) IsValid() (bool, []error) {
	switch s {
	case ScaleLog, ScaleLinear:
		return true, nil
	default:
		return false, []error{&InvalidScaleError{Value: s}}
	}
}

// Error implements the error interface for InvalidScaleError.
func (e *InvalidScaleError) Error() string {
	return fmt.Sprintf("invalid grid scale %q (valid: log, lin)", e.Value)
}

// Unwrap returns ErrInvalidScale for errors.Is() compatibility.
func (e *InvalidScaleError) Unwrap() error { return ErrInvalidScale }

// IsValid returns whether the Spec can be expanded: a known scale,
// finite bounds with Low < High, and Count in [1, MaxCount].
func (s Spec) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := s.Scale.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	switch {
	case math.IsNaN(s.Low) || math.IsInf(s.Low, 0) || math.IsNaN(s.High) || math.IsInf(s.High, 0):
		errs = append(errs, &InvalidSpecError{Spec: s, Reason: "bounds must be finite"})
	case s.Low >= s.High:
		errs = append(errs, &InvalidSpecError{Spec: s, Reason: "low must be less than high"})
	}
	switch {
	case s.Count < 1:
		errs = append(errs, &InvalidSpecError{Spec: s, Reason: "count must be at least 1"})
	case s.Count > MaxCount:
		errs = append(errs, &InvalidSpecError{Spec: s, Reason: fmt.Sprintf("count must be at most %d", MaxCount)})
	}
	if len(errs) > 0 {
		return false, errs
	}
	return true, nil
}

// Error implements the error interface for InvalidSpecError.
func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid grid [%g, %g, %d]: %s", e.Spec.Low, e.Spec.High, e.Spec.Count, e.Reason)
}

// Unwrap returns ErrInvalidSpec for errors.Is() compatibility.
func (e *InvalidSpecError) Unwrap() error { return ErrInvalidSpec }

// Values expands the Spec. A single-value grid yields Low (or 10^Low).
func (s Spec) Values() ([]float64, error) {
	if valid, errs := s.IsValid(); !valid {
		return nil, errors.Join(errs...)
	}
	out := make([]float64, s.Count)
	if s.Count == 1 {
		out[0] = s.Low
	} else {
		step := (s.High - s.Low) / float64(s.Count-1)
		for i := range out {
			out[i] = s.Low + float64(i)*step
		}
		// Pin the end point so log grids hit 10^High exactly.
		out[s.Count-1] = s.High
	}
	if s.Scale == ScaleLog {
		for i, v := range out {
			out[i] = math.Pow(10, v)
		}
	}
	return out, nil
}

// IsValid returns whether the Range produces between one and MaxCount values.
func (r Range) IsValid() (bool, []error) {
	switch {
	case math.IsNaN(r.Start) || math.IsNaN(r.Stop) || math.IsNaN(r.Step):
		return false, []error{&InvalidRangeError{Range: r, Reason: "values must not be NaN"}}
	case math.IsInf(r.Start, 0) || math.IsInf(r.Stop, 0) || math.IsInf(r.Step, 0):
		return false, []error{&InvalidRangeError{Range: r, Reason: "values must be finite"}}
	case r.Step <= 0:
		return false, []error{&InvalidRangeError{Range: r, Reason: "step must be positive"}}
	case r.Start >= r.Stop:
		return false, []error{&InvalidRangeError{Range: r, Reason: "start must be less than stop"}}
	case (r.Stop-r.Start)/r.Step > MaxCount:
		return false, []error{&InvalidRangeError{Range: r, Reason: fmt.Sprintf("more than %d values", MaxCount)}}
	}
	return true, nil
}

// Error implements the error interface for InvalidRangeError.
func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range [%g, %g, %g]: %s", e.Range.Start, e.Range.Stop, e.Range.Step, e.Reason)
}

// Unwrap returns ErrInvalidRange for errors.Is() compatibility.
func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// Arange returns Start, Start+Step, ... strictly below Stop.
// Values are computed by multiplication so rounding does not accumulate.
func (r Range) Arange() ([]float64, error) {
	if valid, errs := r.IsValid(); !valid {
		return nil, errors.Join(errs...)
	}
	n := int(math.Ceil((r.Stop-r.Start)/r.Step - sweepEpsilon))
	out := make([]float64, 0, n)
	for i := range n {
		v := r.Start + float64(i)*r.Step
		if v >= r.Stop-sweepEpsilon {
			break
		}
		out = append(out, roundTo(v, 12))
	}
	return out, nil
}

// Sweep merges the values of several ranges into one sorted list without duplicates.
func Sweep(ranges []Range) ([]float64, error) {
	var out []float64
	for i, r := range ranges {
		vals, err := r.Arange()
		if err != nil {
			return nil, fmt.Errorf("range %d: %w", i, err)
		}
		out = append(out, vals...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Product returns the cartesian product of the named value lists.
// Parameter names are iterated in sorted order and the last name varies
// fastest, so the result is deterministic for a given input.
// An empty input yields a single empty Point.
func Product(named map[string][]float64) []Point {
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)

	points := []Point{{}}
	for _, name := range names {
		values := named[name]
		next := make([]Point, 0, len(points)*len(values))
		for _, p := range points {
			for _, v := range values {
				q := make(Point, len(p)+1)
				for k, pv := range p {
					q[k] = pv
				}
				q[name] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

// Get returns the value of name, or fallback when the point does not set it.
func (p Point) Get(name string, fallback float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return fallback
}

// String renders the point as "a=1,b=0.5" with names in sorted order.
func (p Point) String() string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + strconv.FormatFloat(p[name], 'g', 6, 64)
	}
	return strings.Join(parts, ",")
}

func roundTo(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}
