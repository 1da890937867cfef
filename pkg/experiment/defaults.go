// SPDX-License-Identifier: MPL-2.0

package experiment

import "github.com/stabl-dev/stabl/pkg/grid"

// Default returns a manifest with the schema defaults, one dataset and the
// lasso and STABL Lasso models enabled. Grids for the other four models are
// included so that enabling them only needs a flag change.
func Default() *Manifest {
	return &Manifest{
		Name:     "stabl_experiment",
		Datasets: []DatasetID{"dataset"},
		Models: map[ModelName]bool{
			ModelLasso:           true,
			ModelALasso:          false,
			ModelElasticNet:      false,
			ModelStablLasso:      true,
			ModelStablALasso:     false,
			ModelStablElasticNet: false,
		},
		General: GeneralParams{
			VariableType: VariableContinuous,
			InnerCV:      InnerCV{5, 1},
			MaxIter:      10000,
			RandomSeed:   SeedPolicy{Enabled: true, Value: 42},
			NJobs:        Parallelism{Stabl: 1, Plain: 1},
		},
		Preprocessing: PreprocessingParams{
			VarianceThresholds: []float64{0.01},
			LIFThresholds:      []float64{0.2},
		},
		Stabl: StablParams{
			NBootstraps:           []int{1000},
			Replace:               []bool{false},
			ArtificialTypes:       []DecoyStrategy{DecoyRandomPermutation},
			ArtificialProportions: []float64{1.0},
			SampleFractions:       []float64{0.5},
			FDRThresholds:         []ThresholdRange{{0.3, 1.0, 0.01}},
		},
		Hyperparameters: map[ModelName]HyperparameterBlock{
			ModelLasso: {Params: map[string]GridSpec{
				ParamAlpha: logGrid(-2, 2, 30),
			}},
			ModelALasso: {Params: map[string]GridSpec{
				ParamAlpha: logGrid(-2, 2, 30),
				ParamGamma: linGrid(0.5, 2, 4),
			}},
			ModelElasticNet: {Params: map[string]GridSpec{
				ParamAlpha:   logGrid(-2, 2, 30),
				ParamL1Ratio: linGrid(0.5, 0.9, 3),
			}},
			ModelStablLasso: {Params: map[string]GridSpec{
				ParamAlpha: logGrid(-2, 1, 30),
			}},
			ModelStablALasso: {Params: map[string]GridSpec{
				ParamAlpha: logGrid(-2, 1, 30),
				ParamGamma: linGrid(1, 2, 1),
			}},
			ModelStablElasticNet: {Params: map[string]GridSpec{
				ParamAlpha:   logGrid(-2, 1, 30),
				ParamL1Ratio: linGrid(0.5, 0.9, 3),
			}},
		},
		Data: DataSource{
			Dir:     "data",
			Outcome: "outcome.csv",
		},
		OuterCV: OuterCVParams{Splits: 100, TestSize: 0.2, Seed: 42},
		FinalModel: FinalModel{
			Kind:            FinalOLS,
			Hyperparameters: map[string]GridSpec{},
		},
	}
}

func logGrid(low, high float64, count int) GridSpec {
	return GridSpec{Type: grid.ScaleLog, Val: GridBounds{low, high, float64(count)}}
}

func linGrid(low, high float64, count int) GridSpec {
	return GridSpec{Type: grid.ScaleLinear, Val: GridBounds{low, high, float64(count)}}
}
