package kernelsearch

import (
	"fmt"
	"math"
	"slices"
)

//////
// Const, vars, types.
//////

// ScoredKernel is a fitted expression with its scores. Lower scores are
// better.
type ScoredKernel struct {
	// Kernel carries the optimized parameters.
	Kernel Kernel

	// NLL is the negative log marginal likelihood at the optimum.
	NLL float64

	// Laplace is the Laplace-approximated negative log evidence, NaN when
	// the evaluator does not compute it.
	Laplace float64

	// BIC is 2*NLL + EffectiveParams*ln(n).
	BIC float64

	// Noise is the fitted log noise standard deviation.
	Noise float64
}

//////
// Methods.
//////

// Score returns the field selected by c. Unknown criteria fall back to BIC.
func (s ScoredKernel) Score(c Criterion) float64 {
	switch c {
	case CriterionNLL:
		return s.NLL
	case CriterionLaplace:
		return s.Laplace
	default:
		return s.BIC
	}
}

// String is the results-log line for s; ParseScoredKernel reads it back.
func (s ScoredKernel) String() string {
	return fmt.Sprintf(
		"ScoredKernel(k_opt=%s, nll=%s, laplace_nle=%s, bic_nle=%s, noise=%s)",
		s.Kernel, formatFloat(s.NLL), formatFloat(s.Laplace), formatFloat(s.BIC), formatFloat(s.Noise),
	)
}

//////
// Factory.
//////

// NewScoredKernel scores an optimized expression fitted to n data points.
func NewScoredKernel(k Kernel, nll, laplace, noise float64, n int) ScoredKernel {
	return ScoredKernel{
		Kernel:  k,
		NLL:     nll,
		Laplace: laplace,
		BIC:     2*nll + float64(k.EffectiveParams())*math.Log(float64(n)),
		Noise:   noise,
	}
}

// NewScoredKernelFromFit rebuilds the optimized expression from the shape of
// k and the optimizer's parameter vector, then scores it.
func NewScoredKernelFromFit(k Kernel, params []float64, nll, laplace, noise float64, n int) (ScoredKernel, error) {
	opt, err := WithParams(k, params)
	if err != nil {
		return ScoredKernel{}, fmt.Errorf("%w: %w", ErrCandidateFit, err)
	}

	return NewScoredKernel(opt, nll, laplace, noise, n), nil
}

//////
// Exported functionalities.
//////

// SortByScore stably sorts results by ascending score under c. NaN scores
// sort last.
func SortByScore(results []ScoredKernel, c Criterion) {
	slices.SortStableFunc(results, func(a, b ScoredKernel) int {
		return compareScores(a.Score(c), b.Score(c))
	})
}

// Best returns the lowest-scoring result under c, ignoring NaN scores.
func Best(results []ScoredKernel, c Criterion) (ScoredKernel, bool) {
	var (
		best  ScoredKernel
		found bool
	)

	for _, r := range results {
		s := r.Score(c)
		if math.IsNaN(s) {
			continue
		}

		if !found || s < best.Score(c) {
			best = r
			found = true
		}
	}

	return best, found
}

//////
// Helper functions.
//////

func compareScores(a, b float64) int {
	if c := compareNaN(a, b); c != 0 {
		return c
	}

	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
