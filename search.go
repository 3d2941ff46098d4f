package kernelsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

//////
// Const, vars, types.
//////

// debugFrontier is the frontier size used when SearchConfig.Debug is set.
const debugFrontier = 4

// Option customises a Search call.
type Option func(*searchOptions)

type searchOptions struct {
	logger      *slog.Logger
	distance    CovarianceDistance
	resultsPath string
	runID       string
}

// SearchResult is everything a finished search produced.
type SearchResult struct {
	// RunID identifies the run in logs and the results header.
	RunID string

	// Best is the best result over all depths.
	Best ScoredKernel

	// All holds every surviving result of every depth, sorted by ascending
	// score.
	All []ScoredKernel

	// Levels holds each depth's own surviving results, best first.
	Levels []LevelResults

	// Shape is the data shape the search used.
	Shape DataShape
}

//////
// Factory.
//////

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *searchOptions) { o.logger = logger }
}

// WithDistance enables near-duplicate pruning with the given collaborator.
// Without it every result of a depth is kept.
func WithDistance(d CovarianceDistance) Option {
	return func(o *searchOptions) { o.distance = d }
}

// WithResultsPath persists results to path after every depth.
func WithResultsPath(path string) Option {
	return func(o *searchOptions) { o.resultsPath = path }
}

// WithRunID fixes the run identifier instead of generating a UUID.
func WithRunID(id string) Option {
	return func(o *searchOptions) { o.runID = id }
}

//////
// Exported functionalities.
//////

// Search runs a greedy beam search over covariance expressions. It starts
// from every base kind masked onto every input dimension, fits and scores
// each candidate through evaluator, keeps the best K results as seeds and
// expands them with the grammar, for MaxDepth depths.
//
// Parameters:
// - ctx: cancels the search; in-flight evaluations see the cancellation
// - config: SearchConfig, validated before any work starts
// - data: Dataset to fit against
// - evaluator: fits and scores one candidate; must be safe for concurrent use
// - options: WithLogger, WithDistance, WithResultsPath, WithRunID
//
// Returns:
// - *SearchResult: best result, all results and per-depth history
// - error: ErrInvalidConfig, *EmptyLevelError, a results-log write error, or
// the context error
//
// Usage example:
//
//	config := DefaultConfig()
//	config.MaxDepth = 3
//
//	result, err := Search(ctx, config, data, evaluator,
//	    WithDistance(distance),
//	    WithResultsPath("results/airline.txt"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	fmt.Println(Pretty(result.Best.Kernel), result.Best.BIC)
//
// How it works:
//  1. Adds RestartCount randomly re-initialised copies of every candidate
//  2. Fits all candidates concurrently, at most MaxJobs at a time; failed
//     fits are logged and dropped
//  3. Drops out-of-bounds results (when bounds are enabled) and NaN scores;
//     an empty depth is fatal
//  4. Collapses near duplicates, records the depth, persists results
//  5. Expands the K best results of the depth into the next frontier
//
// Important notes:
//   - Deterministic for a fixed RandomSeed and a deterministic evaluator
//   - Sorting is stable everywhere, so ties keep submission order
//   - Progress is reported on ProgressChan without blocking
func Search(
	ctx context.Context,
	config SearchConfig,
	data Dataset,
	evaluator Evaluator,
	options ...Option,
) (*SearchResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	kinds, err := config.Kinds()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := validateDataset(data); err != nil {
		return nil, err
	}

	opts := searchOptions{logger: slog.Default()}
	for _, o := range options {
		o(&opts)
	}

	if opts.runID == "" {
		opts.runID = uuid.NewString()
	}

	logger := opts.logger.With("run_id", opts.runID, "dataset", data.Name)

	var results *ResultsLog
	if opts.resultsPath != "" {
		if results, err = NewResultsLog(opts.resultsPath, data.Name, opts.runID, config); err != nil {
			return nil, err
		}
	}

	_, ndim := data.X.Dims()
	shape := ComputeDataShape(data, config)
	enforceBounds := config.UseMinPeriod

	// rng drives random restarts only. Restarts are drawn sequentially
	// before dispatch, so concurrency never changes the sequence.
	rng := rand.New(rand.NewSource(config.RandomSeed))

	ctx, span := tracer.Start(ctx, "kernelsearch.Search", trace.WithAttributes(
		attribute.String("run_id", opts.runID),
		attribute.String("dataset", data.Name),
		attribute.Int("max_depth", config.MaxDepth),
		attribute.Int("ndim", ndim),
	))
	defer span.End()

	fail := func(err error) error {
		markFailed(span, err)
		logger.Error("search aborted", "error", err)

		return err
	}

	out := &SearchResult{RunID: opts.runID, Shape: shape}
	bestScore := math.Inf(1)
	bestRepr := ""

	// Helper function to send progress updates.
	sendProgress := func(phase string, depth, candidates, evaluated, failed int) {
		if config.ProgressChan == nil {
			return
		}

		update := ProgressUpdate{
			Phase:      phase,
			Depth:      depth,
			MaxDepth:   config.MaxDepth,
			Candidates: candidates,
			Evaluated:  evaluated,
			Failed:     failed,
			BestScore:  bestScore,
			Best:       bestRepr,
		}

		select {
		case config.ProgressChan <- update:
		default:
			// Skip update if channel is full.
		}
	}

	initial, err := NewMultiDGrammar(ndim, kinds).ListOptions(CategoryMask)
	if err != nil {
		return nil, fail(err)
	}

	frontier := initial

	logger.Info("search started",
		"max_depth", config.MaxDepth,
		"k", config.K,
		"base_kernels", config.BaseKernels,
		"ndim", ndim,
		"n", len(data.Y),
	)

	for depth := 0; depth < config.MaxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, fail(err)
		}

		depthStart := time.Now()

		dctx, dspan := tracer.Start(ctx, "kernelsearch.Depth", trace.WithAttributes(attribute.Int("depth", depth)))

		if config.Debug && len(frontier) > debugFrontier {
			frontier = frontier[:debugFrontier]
		}

		frontierSize.Observe(float64(len(frontier)))

		candidates := addRandomRestarts(frontier, rng, config.RestartCount, config.RestartSD, shape, logger)

		sendProgress("Evaluating", depth, len(candidates), 0, 0)

		scored, failed, err := evaluateAll(dctx, candidates, data, config, evaluator, logger)
		if err != nil {
			dspan.End()

			return nil, fail(err)
		}

		kept, oob, nan := FilterResults(scored, shape.Bounds, enforceBounds, config.Criterion)
		candidatesTotal.WithLabelValues("out_of_bounds").Add(float64(oob))
		candidatesTotal.WithLabelValues("nan").Add(float64(nan))

		if len(kept) == 0 {
			err := &EmptyLevelError{Depth: depth, Dataset: data.Name, Candidates: len(candidates)}
			markFailed(dspan, err)
			dspan.End()

			return nil, fail(err)
		}

		kept, pruned, err := RemoveNearDuplicates(dctx, kept, config.NEval, data.X, opts.distance, config.Criterion)
		if err != nil {
			dspan.End()

			return nil, fail(err)
		}

		nearDuplicatesPruned.Add(float64(pruned))

		out.All = append(out.All, kept...)
		SortByScore(out.All, config.Criterion)
		out.Levels = append(out.Levels, LevelResults{Depth: depth, Results: kept})

		if best := out.All[0]; best.Score(config.Criterion) < bestScore {
			bestScore = best.Score(config.Criterion)
			bestRepr = best.Kernel.String()
		}

		seeds := kept[:min(config.K, len(kept))]

		if results != nil {
			persisted := seeds
			if config.VerboseResults {
				persisted = kept
			}

			if err := results.AppendLevel(depth, persisted); err != nil {
				dspan.End()

				return nil, fail(err)
			}
		}

		logger.Info("search depth complete",
			"depth", depth,
			"candidates", len(candidates),
			"failed", failed,
			"out_of_bounds", oob,
			"nan", nan,
			"near_duplicates", pruned,
			"kept", len(kept),
			"best_score", bestScore,
			"depth_best", Pretty(kept[0].Kernel),
		)

		sendProgress("Expanding", depth, len(candidates), len(scored), failed)

		dspan.SetAttributes(
			attribute.Int("candidates", len(candidates)),
			attribute.Int("kept", len(kept)),
			attribute.Float64("best_score", kept[0].Score(config.Criterion)),
		)

		if depth < config.MaxDepth-1 {
			seedKernels := make([]Kernel, len(seeds))
			for i, s := range seeds {
				seedKernels[i] = s.Kernel
			}

			frontier, err = ExpandKernels(ndim, seedKernels, kinds)
			if err != nil {
				dspan.End()

				return nil, fail(err)
			}
		}

		dspan.End()
		depthDuration.Observe(time.Since(depthStart).Seconds())

		if len(frontier) == 0 {
			logger.Warn("grammar produced no candidates, stopping early", "depth", depth)

			break
		}
	}

	out.Best = out.All[0]

	sendProgress("Done", len(out.Levels)-1, 0, 0, 0)

	span.SetAttributes(attribute.Float64("best_score", out.Best.Score(config.Criterion)))
	logger.Info("search finished", "best", Pretty(out.Best.Kernel), "score", out.Best.Score(config.Criterion))

	return out, nil
}

//////
// Helper functions.
//////

func markFailed(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func validateDataset(data Dataset) error {
	if data.X == nil {
		return errors.New("dataset has no inputs")
	}

	n, d := data.X.Dims()
	if n == 0 || d == 0 {
		return errors.New("dataset is empty")
	}

	if n != len(data.Y) {
		return fmt.Errorf("dataset has %d input rows but %d outputs", n, len(data.Y))
	}

	return nil
}

// addRandomRestarts returns every kernel followed by count copies whose
// default-valued parameters are redrawn.
func addRandomRestarts(
	kernels []Kernel,
	rng *rand.Rand,
	count int,
	sd float64,
	shape DataShape,
	logger *slog.Logger,
) []Kernel {
	out := make([]Kernel, 0, len(kernels)*(count+1))

	for _, k := range kernels {
		out = append(out, k)

		for range count {
			restart, err := k.Family().FromParams(k.RandomizedParams(rng, sd, shape))
			if err != nil {
				logger.Warn("skipping random restart", "kernel", k.String(), "error", err)

				continue
			}

			out = append(out, restart)
		}
	}

	return out
}

// evaluateAll fits candidates concurrently. The results keep submission
// order; failed fits are counted and dropped. Only cancellation of ctx is
// returned as an error.
func evaluateAll(
	ctx context.Context,
	candidates []Kernel,
	data Dataset,
	config SearchConfig,
	evaluator Evaluator,
	logger *slog.Logger,
) ([]ScoredKernel, int, error) {
	slots := make([]*ScoredKernel, len(candidates))

	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.MaxJobs)

	for i, candidate := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			start := time.Now()

			sk, err := evaluator.Evaluate(gctx, EvaluationJob{
				Kernel:     candidate,
				Data:       data,
				Iterations: config.Iterations,
				Seed:       config.RandomSeed,
				ZeroMean:   config.ZeroMean,
			})

			evaluationDuration.Observe(time.Since(start).Seconds())

			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}

				failed.Add(1)
				candidatesTotal.WithLabelValues("failed").Inc()

				logger.Debug("candidate dropped", "kernel", candidate.String(), "error", err)

				return nil
			}

			if sk.Kernel == nil {
				failed.Add(1)
				candidatesTotal.WithLabelValues("failed").Inc()

				logger.Debug("candidate dropped", "kernel", candidate.String(), "error", "evaluator returned no kernel")

				return nil
			}

			candidatesTotal.WithLabelValues("ok").Inc()

			slots[i] = &sk

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	out := make([]ScoredKernel, 0, len(slots))

	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}

	if config.Verbose {
		logger.Debug("depth evaluated", "submitted", len(candidates), "scored", len(out), "failed", failed.Load())
	}

	return out, int(failed.Load()), nil
}
