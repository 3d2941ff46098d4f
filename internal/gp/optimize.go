package gp

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"golang.org/x/exp/constraints"
)

//////
// Const, vars, types.
//////

// failurePenalty is fed to the surrogate for hyperparameters whose
// likelihood could not be computed.
const failurePenalty = 1e10

// errNoFiniteEvaluation is returned when every evaluated point failed.
var errNoFiniteEvaluation = errors.New("no hyperparameter setting produced a finite likelihood")

// ParameterRange is the inclusive search interval of one hyperparameter.
type ParameterRange[T constraints.Float] struct {
	Min T
	Max T
}

// OptimizerConfig controls the Bayesian optimisation used to fit
// hyperparameters.
//
// Default values recommendations:
// - InitialSamples: 5
// - NumCandidates: 64
// - Spread: 3 (the box is start +/- 3 in log space)
// - LocalFraction: 0.5
type OptimizerConfig struct {
	// InitialSamples is the number of random points evaluated after the
	// starting point, before the surrogate guides the search.
	InitialSamples int

	// NumCandidates is how many random candidates the acquisition function
	// ranks per iteration.
	NumCandidates int

	// Spread is the half-width of the search box around the starting point.
	Spread float64

	// LocalFraction of the candidates are drawn around the incumbent
	// instead of uniformly in the box.
	LocalFraction float64

	// AcquisitionFunc selects the next point to evaluate.
	AcquisitionFunc AcquisitionFunc

	// AcqParams holds the parameters for the acquisition function.
	AcqParams AcquisitionParams
}

//////
// Exported functionalities.
//////

// DefaultOptimizerConfig returns a default configuration.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		InitialSamples:  5,
		NumCandidates:   64,
		Spread:          3,
		LocalFraction:   0.5,
		AcquisitionFunc: UCB,
		AcqParams: AcquisitionParams{
			Beta: 2.0,
			Xi:   0.01,
		},
	}
}

//////
// Helper functions.
//////

// minimize searches ranges for the lowest objective value using at most
// budget evaluations. The starting point is always evaluated first, so the
// result is never worse than start.
//
// How it works:
//  1. Evaluates start, then InitialSamples random points
//  2. For each remaining evaluation:
//     - draws NumCandidates candidates, part uniformly and part around the
//     incumbent
//     - ranks them with the surrogate and the acquisition function
//     - evaluates the most promising one and updates the surrogate
//  3. Returns the best point found
func minimize(
	ctx context.Context,
	config OptimizerConfig,
	budget int,
	rng *rand.Rand,
	start []float64,
	ranges []ParameterRange[float64],
	objective func([]float64) (float64, error),
) ([]float64, float64, error) {
	model := newSurrogate()
	model.SetSigma(math.Max(config.Spread/2, 1e-3))

	acqParams := config.AcqParams
	acqParams.RandomState = rng

	acquire := config.AcquisitionFunc
	if acquire == nil {
		acquire = UCB
	}

	bestParams := make([]float64, len(start))
	bestValue := math.Inf(1)
	found := false
	evaluations := 0

	randomParams := func() []float64 {
		params := make([]float64, len(ranges))
		for i, r := range ranges {
			params[i] = r.Min + rng.Float64()*(r.Max-r.Min)
		}

		return params
	}

	localParams := func() []float64 {
		params := make([]float64, len(ranges))
		for i, r := range ranges {
			step := (r.Max - r.Min) / 8
			params[i] = math.Min(r.Max, math.Max(r.Min, bestParams[i]+rng.NormFloat64()*step))
		}

		return params
	}

	// evaluate runs the objective and feeds the surrogate.
	evaluate := func(params []float64) {
		evaluations++

		value, err := objective(params)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			model.Update(params, failurePenalty)

			return
		}

		model.Update(params, value)

		if value < bestValue {
			bestValue = value
			copy(bestParams, params)
			found = true
		}
	}

	// Phase 1: starting point and initial random sampling.
	evaluate(start)

	for i := 0; i < config.InitialSamples && evaluations < budget; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		evaluate(randomParams())
	}

	// Phase 2: surrogate-guided search.
	for evaluations < budget {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		acqParams.BestSoFar = bestValue

		var next []float64

		bestAcquisition := math.Inf(1)

		for j := 0; j < config.NumCandidates; j++ {
			candidate := randomParams()
			if found && rng.Float64() < config.LocalFraction {
				candidate = localParams()
			}

			mean, variance := model.Predict(candidate)

			if acquisition := acquire(mean, variance, acqParams); next == nil || acquisition < bestAcquisition {
				bestAcquisition = acquisition
				next = candidate
			}
		}

		if next == nil {
			next = randomParams()
		}

		evaluate(next)
	}

	if !found {
		return nil, 0, errNoFiniteEvaluation
	}

	return bestParams, bestValue, nil
}

// boxAround returns start +/- spread per coordinate.
func boxAround[T constraints.Float](start []T, spread T) []ParameterRange[T] {
	ranges := make([]ParameterRange[T], len(start))
	for i, v := range start {
		ranges[i] = ParameterRange[T]{Min: v - spread, Max: v + spread}
	}

	return ranges
}
