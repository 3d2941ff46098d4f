package gp

import (
	"math"
	"sync"
)

//////
// Const, vars, types.
//////

// surrogate is a thread-safe kernel regression model over hyperparameter
// vectors. The optimizer uses it to predict the likelihood of untested
// hyperparameters from the ones already evaluated.
//
// Fields:
// - mu: RWMutex for thread-safe access to all fields
// - X: observed hyperparameter vectors
// - Y: observed negative log likelihoods at each vector
// - sigma: RBF width in log-parameter units
//
// Thread safety:
// - All fields are protected by the RWMutex
// - Uses RLock for Predict, Lock for Update and SetSigma
type surrogate struct {
	// mu protects access to all fields
	mu sync.RWMutex

	// X stores the evaluated hyperparameter vectors
	X [][]float64

	// Y stores the objective values at each point in X
	Y []float64

	// sigma is the kernel width parameter
	// Larger values = smoother interpolation
	sigma float64
}

//////
// Methods.
//////

// rbf is the similarity between two hyperparameter vectors, in [0, 1].
//
// Mathematical formula:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * sigma^2))
func (s *surrogate) rbf(x1, x2 []float64) float64 {
	var sum float64

	for i := range x1 {
		diff := x1[i] - x2[i]

		sum += diff * diff
	}

	return math.Exp(-sum / (2 * s.sigma * s.sigma))
}

// Predict estimates the objective and its uncertainty at x.
//
// Returns:
// - mean: similarity-weighted average of the observations, or their plain
// average far from every observation
// - variance: (1 - similarity to the closest observation) times the spread
// of the observations
//
// Important notes:
// - Returns (0, 1) if no observations exist
// - O(n) in the number of observations
func (s *surrogate) Predict(x []float64) (mean, variance float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.X) == 0 {
		return 0, 1
	}

	var (
		weighted, weights, plain, closest float64
	)

	for i := range s.X {
		k := s.rbf(x, s.X[i])

		weighted += k * s.Y[i]
		weights += k
		plain += s.Y[i]
		closest = math.Max(closest, k)
	}

	n := float64(len(s.X))

	mean = plain / n
	if weights > 1e-12 {
		mean = weighted / weights
	}

	var spread float64

	for _, y := range s.Y {
		d := y - plain/n
		spread += d * d
	}

	spread = math.Max(spread/n, 1)

	return mean, (1 - closest) * spread
}

// Update adds an observation. x is copied.
func (s *surrogate) Update(x []float64, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newX := make([]float64, len(x))
	copy(newX, x)

	s.X = append(s.X, newX)
	s.Y = append(s.Y, y)
}

// SetSigma updates the kernel width parameter.
func (s *surrogate) SetSigma(sigma float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sigma = sigma
}

//////
// Factory.
//////

// newSurrogate creates a model with unit width and no observations.
func newSurrogate() *surrogate {
	return &surrogate{
		sigma: 1.0, // Default kernel width
	}
}
