// Package kernelsearch searches the space of Gaussian-process covariance
// structures. Starting from single-dimension base kernels it repeatedly
// expands the best expressions found so far with a context-free grammar,
// scores every candidate with a pluggable Evaluator, and keeps the best-scoring
// seeds for the next depth.
//
// # Features
//
// The package includes the following key features:
//
//   - Kernel Expressions: Base kernels, dimension masks, sums and products with
//     a strict total order and tolerant parameter comparison
//   - Canonical Forms: Flattening, sorting, distribution of products over sums
//     and duplicate removal
//   - Grammar Expansion: Multi-dimensional and one-dimensional rule sets that
//     enumerate every neighbour of an expression
//   - Random Restarts: Data-aware hyperparameter perturbation drawn from the
//     shape of the input and output data
//   - Parallel Evaluation: Bounded-concurrency candidate scoring with
//     cancellation through context.Context
//   - Near-Duplicate Pruning: Removal of candidates whose covariance matrices
//     are almost identical to a better-scoring candidate
//   - Progress Monitoring: Real-time updates on search progress via channels
//   - Results Log: A human-readable, re-parseable file rewritten after every
//     depth
//
// # Quick Start
//
//	config := kernelsearch.DefaultConfig()
//	config.MaxDepth = 3
//
//	result, err := kernelsearch.Search(ctx, config, data, evaluator,
//	    kernelsearch.WithDistance(gp.Distance{}),
//	    kernelsearch.WithResultsPath("results.txt"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	fmt.Println(kernelsearch.Pretty(result.Best.Kernel))
//
// # Configuration
//
// SearchConfig is loaded with LoadConfig, which applies DefaultConfig, then a
// YAML file, then KSS_* environment variables, and finally validates the
// result:
//
//	max_depth: 10        # Number of expansion rounds
//	k: 1                 # Seeds kept per depth
//	n_rand: 2            # Random restarts per candidate
//	sd: 4                # Restart perturbation scale
//	max_jobs: 500        # Concurrent evaluations
//	n_eval: 250          # Rank limit of near-duplicate pruning
//	iters: 100           # Optimizer budget per candidate
//	base_kernels: [SE, RQ, Per, Lin, Const]
//	criterion: bic       # bic, nll or laplace
//
// # Thread Safety
//
// Kernel values are immutable once built: every transformation returns a new
// value. Search may be run concurrently with different configs. Progress
// channel sends never block the search.
package kernelsearch
