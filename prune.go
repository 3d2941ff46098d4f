package kernelsearch

import (
	"context"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// NearDuplicateFraction is the fraction of the mean pairwise covariance
// distance below which two results count as duplicates.
const NearDuplicateFraction = 0.01

// RemoveNearDuplicates collapses results whose covariance matrices are almost
// identical, keeping the better-scoring member of each group.
//
// Parameters:
// - ctx: cancels the distance computation
// - results: scored results, in any order
// - nEval: only the nEval best results are compared; the rest are kept
// - X: training inputs the covariances are evaluated at
// - dist: distance collaborator; nil disables pruning
// - c: ranking criterion
//
// Returns:
// - []ScoredKernel: survivors sorted by ascending score
// - int: how many results were removed
// - error: from the distance collaborator
//
// How it works:
//  1. Sorts results best first and takes the top nEval
//  2. Computes pairwise distances and their mean over distinct pairs
//  3. Walking best first, each surviving result removes every later result
//     closer to it than NearDuplicateFraction times the mean
//
// Important notes:
//   - A result that was already removed never removes others, so a chain of
//     close pairs does not cascade
//   - Zero distances always count as duplicates
func RemoveNearDuplicates(
	ctx context.Context,
	results []ScoredKernel,
	nEval int,
	X mat.Matrix,
	dist CovarianceDistance,
	c Criterion,
) ([]ScoredKernel, int, error) {
	sorted := slices.Clone(results)
	SortByScore(sorted, c)

	n := min(nEval, len(sorted))
	if dist == nil || n < 2 {
		return sorted, 0, nil
	}

	kernels := make([]Kernel, n)
	for i := range n {
		kernels[i] = sorted[i].Kernel
	}

	d, err := dist.Distances(ctx, kernels, X)
	if err != nil {
		return nil, 0, fmt.Errorf("covariance distances: %w", err)
	}

	if size := d.SymmetricDim(); size != n {
		return nil, 0, fmt.Errorf("covariance distances: got %dx%d matrix for %d kernels", size, size, n)
	}

	var total float64

	for i := range n {
		for j := i + 1; j < n; j++ {
			total += d.At(i, j)
		}
	}

	cutoff := NearDuplicateFraction * total / float64(n*(n-1)/2)

	removed := make([]bool, n)
	pruned := 0

	for i := range n {
		if removed[i] {
			continue
		}

		for j := i + 1; j < n; j++ {
			if removed[j] {
				continue
			}

			if dij := d.At(i, j); dij == 0 || dij < cutoff {
				removed[j] = true
				pruned++
			}
		}
	}

	kept := make([]ScoredKernel, 0, len(sorted)-pruned)

	for i, r := range sorted {
		if i < n && removed[i] {
			continue
		}

		kept = append(kept, r)
	}

	return kept, pruned, nil
}

// FilterResults drops results whose score under c is NaN and, when enforce
// is set, results whose optimized expression violates bounds.
//
// Returns:
// - []ScoredKernel: the survivors in input order
// - int: how many were out of bounds
// - int: how many had a NaN score
func FilterResults(results []ScoredKernel, bounds Constraints, enforce bool, c Criterion) ([]ScoredKernel, int, int) {
	kept := make([]ScoredKernel, 0, len(results))
	oob, nan := 0, 0

	for _, r := range results {
		if enforce && r.Kernel.OutOfBounds(bounds) {
			oob++

			continue
		}

		if math.IsNaN(r.Score(c)) {
			nan++

			continue
		}

		kept = append(kept, r)
	}

	return kept, oob, nan
}
