package kernelsearch

import (
	"math"
	"math/rand"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/stat/distuv"
)

//////
// Helper functions.
//////

// truncatedNormal draws from N(loc, sd) conditioned on being at least min.
// A NaN min draws from the untruncated distribution.
//
// Important notes:
//   - Uses inverse-CDF sampling, so exactly one uniform is consumed per draw
//   - When the lower tail mass is numerically 1 the bound itself is returned
func truncatedNormal(rng *rand.Rand, loc, sd, min float64) float64 {
	if math.IsNaN(min) {
		return rng.NormFloat64()*sd + loc
	}

	dist := distuv.Normal{Mu: loc, Sigma: sd}

	lo := dist.CDF(min)
	u := lo + rng.Float64()*(1-lo)

	if u >= 1 || lo >= 1 {
		return min
	}

	return math.Max(min, dist.Quantile(clamp(u, math.SmallestNonzeroFloat64, 1)))
}

// clamp limits v to [lo, hi].
func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
