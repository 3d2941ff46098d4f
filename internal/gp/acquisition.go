package gp

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

//////
// Acquisition functions used while fitting hyperparameters. Lower values mark
// more promising points, since the objective is a negative log likelihood.
//////

// AcquisitionFunc scores a candidate from the surrogate's prediction.
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds the knobs of the acquisition functions.
type AcquisitionParams struct {
	// Beta weights uncertainty in UCB. Higher values explore more.
	Beta float64

	// Xi is the minimum improvement PI and EI look for.
	Xi float64

	// BestSoFar is the lowest objective value observed. The optimizer
	// maintains it.
	BestSoFar float64

	// RandomState is used by ThompsonSampling. The optimizer sets it per
	// fit.
	RandomState *rand.Rand
}

// UCB is the lower confidence bound: mean - Beta * stddev.
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean - params.Beta*math.Sqrt(variance)
}

// ProbabilityOfImprovement returns minus the probability that the point
// beats BestSoFar by at least Xi.
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(variance)
	if sigma == 0 {
		if mean < params.BestSoFar-params.Xi {
			return -1
		}

		return 0
	}

	z := (params.BestSoFar - params.Xi - mean) / sigma

	return -distuv.UnitNormal.CDF(z)
}

// ExpectedImprovement returns minus the expected improvement over
// BestSoFar - Xi.
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(variance)
	improvement := params.BestSoFar - params.Xi - mean

	if sigma == 0 {
		return -math.Max(improvement, 0)
	}

	z := improvement / sigma

	return -(improvement*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z))
}

// ThompsonSampling draws from the predictive distribution.
//
// Warning:
// - RandomState must be set; the optimizer does this for every fit.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(variance)*params.RandomState.NormFloat64()
}

// AcquisitionByName resolves "ucb", "pi", "ei" or "ts". Unknown names yield
// UCB.
func AcquisitionByName(name string) AcquisitionFunc {
	switch name {
	case "pi":
		return ProbabilityOfImprovement
	case "ei":
		return ExpectedImprovement
	case "ts":
		return ThompsonSampling
	default:
		return UCB
	}
}
