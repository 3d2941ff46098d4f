package gp

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	ks "github.com/thalesfsp/kernelsearch"
)

// Evaluator fits the hyperparameters of a candidate by maximising the GP
// marginal likelihood and scores it. It is safe for concurrent use.
type Evaluator struct {
	config OptimizerConfig
	logger *slog.Logger
}

var _ ks.Evaluator = (*Evaluator)(nil)

// NewEvaluator returns an Evaluator. A nil logger uses slog.Default().
func NewEvaluator(config OptimizerConfig, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Evaluator{config: config, logger: logger}
}

// Evaluate implements ks.Evaluator. The optimised vector holds the kernel
// parameters, the log noise standard deviation and, unless job.ZeroMean, a
// constant mean. The Laplace score is not computed and is NaN.
func (e *Evaluator) Evaluate(ctx context.Context, job ks.EvaluationJob) (ks.ScoredKernel, error) {
	family := job.Kernel.Family()
	nk := family.NumParams()
	y := job.Data.Y

	yMean, yStd := stat.PopMeanStdDev(y, nil)
	if yStd <= 0 || math.IsNaN(yStd) {
		yStd = 1
	}

	start := append(job.Kernel.Params(), math.Log(yStd)-1)
	if !job.ZeroMean {
		start = append(start, yMean)
	}

	objective := func(theta []float64) (float64, error) {
		k, err := family.FromParams(theta[:nk])
		if err != nil {
			return 0, err
		}

		K, err := Covariance(k, job.Data.X)
		if err != nil {
			return 0, err
		}

		mean := 0.0
		if !job.ZeroMean {
			mean = theta[nk+1]
		}

		return NegLogLikelihood(K, y, theta[nk], mean)
	}

	rng := rand.New(rand.NewSource(job.Seed ^ int64(hashString(job.Kernel.String()))))

	theta, nll, err := minimize(ctx, e.config, job.Iterations, rng, start, boxAround(start, e.config.Spread), objective)
	if err != nil {
		if ctx.Err() != nil {
			return ks.ScoredKernel{}, ctx.Err()
		}

		return ks.ScoredKernel{}, fmt.Errorf("%w: %s: %w", ks.ErrCandidateFit, ks.Pretty(job.Kernel), err)
	}

	e.logger.Debug("candidate fitted", "kernel", ks.Pretty(job.Kernel), "nll", nll, "evaluations", job.Iterations)

	return ks.NewScoredKernelFromFit(job.Kernel, theta[:nk], nll, math.NaN(), theta[nk], len(y))
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))

	return h.Sum64()
}
