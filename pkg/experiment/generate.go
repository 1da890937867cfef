// SPDX-License-Identifier: MPL-2.0

package experiment

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// GenerateCUE renders a manifest as normalised CUE: every field written out,
// maps in sorted key order and models in canonical order. Parsing the output
// yields an equal manifest.
func GenerateCUE(m *Manifest) string {
	var sb strings.Builder

	sb.WriteString("// STABL experiment manifest\n\n")
	fmt.Fprintf(&sb, "name: %q\n", m.Name)
	sb.WriteString("datasets: [")
	for i, d := range m.Datasets {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", d)
	}
	sb.WriteString("]\n\n")

	sb.WriteString("models: {\n")
	for _, name := range canonicalModels {
		if enabled, ok := m.Models[name]; ok {
			fmt.Fprintf(&sb, "\t%s: %t\n", name, enabled)
		}
	}
	sb.WriteString("}\n\n")

	g := m.General
	sb.WriteString("general: {\n")
	fmt.Fprintf(&sb, "\tvariable_type: %q\n", g.VariableType)
	fmt.Fprintf(&sb, "\tinner_cv: [%d, %d]\n", g.InnerCV.Folds(), g.InnerCV.Repeats())
	fmt.Fprintf(&sb, "\tmax_iter: %d\n", g.MaxIter)
	fmt.Fprintf(&sb, "\trandom_seed: {enabled: %t, value: %d}\n", g.RandomSeed.Enabled, g.RandomSeed.Value)
	fmt.Fprintf(&sb, "\tn_jobs: {stabl: %d, plain: %d}\n", g.NJobs.Stabl, g.NJobs.Plain)
	sb.WriteString("}\n\n")

	sb.WriteString("preprocessing: {\n")
	fmt.Fprintf(&sb, "\tvariance_thresholds: %s\n", floatList(m.Preprocessing.VarianceThresholds))
	fmt.Fprintf(&sb, "\tlif_thresholds: %s\n", floatList(m.Preprocessing.LIFThresholds))
	sb.WriteString("}\n\n")

	s := m.Stabl
	sb.WriteString("stabl: {\n")
	ints := make([]string, len(s.NBootstraps))
	for i, b := range s.NBootstraps {
		ints[i] = strconv.Itoa(b)
	}
	fmt.Fprintf(&sb, "\tn_bootstraps: [%s]\n", strings.Join(ints, ", "))
	bools := make([]string, len(s.Replace))
	for i, r := range s.Replace {
		bools[i] = strconv.FormatBool(r)
	}
	fmt.Fprintf(&sb, "\treplace: [%s]\n", strings.Join(bools, ", "))
	types := make([]string, len(s.ArtificialTypes))
	for i, t := range s.ArtificialTypes {
		types[i] = strconv.Quote(string(t))
	}
	fmt.Fprintf(&sb, "\tartificial_types: [%s]\n", strings.Join(types, ", "))
	fmt.Fprintf(&sb, "\tartificial_proportions: %s\n", floatList(s.ArtificialProportions))
	fmt.Fprintf(&sb, "\tsample_fractions: %s\n", floatList(s.SampleFractions))
	ranges := make([]string, len(s.FDRThresholds))
	for i, r := range s.FDRThresholds {
		ranges[i] = floatList(r[:])
	}
	fmt.Fprintf(&sb, "\tfdr_thresholds: [%s]\n", strings.Join(ranges, ", "))
	if s.HardThreshold != nil {
		fmt.Fprintf(&sb, "\thard_threshold: %s\n", cueFloat(*s.HardThreshold))
	}
	sb.WriteString("}\n\n")

	sb.WriteString("hyperparameters: {\n")
	for _, name := range canonicalModels {
		block, ok := m.Hyperparameters[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "\t%s: {\n", name)
		writeGrids(&sb, block.Params, "\t\t")
		if block.MaxIter > 0 {
			fmt.Fprintf(&sb, "\t\tmax_iter: %d\n", block.MaxIter)
		}
		sb.WriteString("\t}\n")
	}
	sb.WriteString("}\n\n")

	d := m.Data
	sb.WriteString("data: {\n")
	fmt.Fprintf(&sb, "\tdir: %q\n", d.Dir)
	fmt.Fprintf(&sb, "\toutcome: %q\n", d.Outcome)
	fmt.Fprintf(&sb, "\toutcome_column: %q\n", d.OutcomeColumn)
	fmt.Fprintf(&sb, "\tid_column: %q\n", d.IDColumn)
	stims := make([]string, len(d.Stims))
	for i, st := range d.Stims {
		stims[i] = strconv.Quote(st)
	}
	fmt.Fprintf(&sb, "\tstims: [%s]\n", strings.Join(stims, ", "))
	sb.WriteString("}\n\n")

	o := m.OuterCV
	fmt.Fprintf(&sb, "outer_cv: {splits: %d, test_size: %s, seed: %d}\n\n", o.Splits, cueFloat(o.TestSize), o.Seed)

	sb.WriteString("final_model: {\n")
	fmt.Fprintf(&sb, "\tkind: %q\n", m.FinalModel.Kind)
	sb.WriteString("\thyperparameters: {\n")
	writeGrids(&sb, m.FinalModel.Hyperparameters, "\t\t")
	sb.WriteString("\t}\n")
	sb.WriteString("}\n")

	return sb.String()
}

func writeGrids(sb *strings.Builder, params map[string]GridSpec, indent string) {
	for _, param := range slices.Sorted(maps.Keys(params)) {
		spec := params[param]
		fmt.Fprintf(sb, "%s%s: {type: %q, val: [%s, %s, %d]}\n",
			indent, param, spec.Type, cueFloat(spec.Val.Low()), cueFloat(spec.Val.High()), spec.Val.Count())
	}
}

func floatList(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = cueFloat(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// cueFloat always emits a float literal so the value keeps its kind.
func cueFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
