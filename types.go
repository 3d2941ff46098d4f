package kernelsearch

import (
	"context"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ProgressUpdate represents the current state of the search.
type ProgressUpdate struct {
	// Phase is one of "Evaluating", "Expanding" or "Done"
	Phase string

	// Depth is the current zero-based search depth
	Depth int

	// MaxDepth is the configured depth bound
	MaxDepth int

	// Candidates is how many candidates were submitted at this depth,
	// restarts included
	Candidates int

	// Evaluated is how many candidates produced a usable score
	Evaluated int

	// Failed is how many candidates were dropped because their fit failed
	Failed int

	// BestScore is the best score seen across all depths so far
	BestScore float64

	// Best is the serialized best expression found so far
	Best string
}

// Criterion selects which ScoredKernel field ranks results.
type Criterion string

// Supported criteria. Lower is better for all of them.
const (
	CriterionBIC     Criterion = "bic"
	CriterionNLL     Criterion = "nll"
	CriterionLaplace Criterion = "laplace"
)

// ParseCriterion returns the criterion named s, case-insensitively.
func ParseCriterion(s string) (Criterion, error) {
	switch c := Criterion(strings.ToLower(strings.TrimSpace(s))); c {
	case CriterionBIC, CriterionNLL, CriterionLaplace:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown criterion %q (want bic, nll or laplace)", ErrInvalidConfig, s)
	}
}

// Dataset is the data a search fits expressions to.
type Dataset struct {
	// Name identifies the data source in logs and results files.
	Name string

	// X is the n x d input matrix.
	X *mat.Dense

	// Y holds the n outputs.
	Y []float64
}

// EvaluationJob is one candidate submitted to an Evaluator.
type EvaluationJob struct {
	// Kernel is the candidate, with its starting parameters.
	Kernel Kernel

	// Data is the dataset to fit against.
	Data Dataset

	// Iterations bounds the optimizer's work.
	Iterations int

	// Seed makes the evaluation reproducible.
	Seed int64

	// ZeroMean fixes the GP mean at zero instead of fitting a constant.
	ZeroMean bool
}

// Evaluator fits the parameters of a candidate expression and scores it.
//
// Implementations must be safe for concurrent use: the search dispatches
// many jobs at once. A failed fit is reported as an error wrapping
// ErrCandidateFit; the search drops the candidate and continues.
//
// Usage example:
//
//	eval := EvaluatorFunc(func(ctx context.Context, job EvaluationJob) (ScoredKernel, error) {
//	    nll, params, noise, err := fit(ctx, job.Kernel, job.Data)
//	    if err != nil {
//	        return ScoredKernel{}, fmt.Errorf("%w: %w", ErrCandidateFit, err)
//	    }
//
//	    return NewScoredKernelFromFit(job.Kernel, params, nll, math.NaN(), noise, len(job.Data.Y))
//	})
type Evaluator interface {
	Evaluate(ctx context.Context, job EvaluationJob) (ScoredKernel, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, job EvaluationJob) (ScoredKernel, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, job EvaluationJob) (ScoredKernel, error) {
	return f(ctx, job)
}

// CovarianceDistance measures how different the covariance matrices of
// several expressions are at the training inputs. The search uses it to
// collapse near-duplicate results.
type CovarianceDistance interface {
	// Distances returns the symmetric matrix of pairwise distances between
	// kernels evaluated at X.
	Distances(ctx context.Context, kernels []Kernel, X mat.Matrix) (*mat.SymDense, error)
}

// SearchConfig holds all configuration parameters for a structure search. It
// controls how deep and wide the search goes, how candidates are restarted
// and scored, and what gets persisted.
//
// Usage example:
//
//	config := DefaultConfig()
//
//	// Search four levels deep, keeping the best three expressions per level
//	config.MaxDepth = 4
//	config.K = 3
//
//	// Only consider squared-exponential, linear and periodic pieces
//	config.BaseKernels = []string{"SE", "Lin", "Per"}
//
// Default values:
// - see DefaultConfig; every field has a documented default
//
// Performance impact notes:
// - Candidates per depth grow with K, the whitelist and the input dimension
// - Every candidate is fitted 1 + RestartCount times
// - MaxJobs bounds how many fits run at once
//
// Note:
// - Load from YAML with LoadConfig; unknown keys are rejected.
type SearchConfig struct {
	// Description is free text copied into the results header.
	Description string `yaml:"description"`

	// MaxDepth is the number of expansion levels to run.
	// Default: 10
	MaxDepth int `yaml:"max_depth" validate:"gte=1"`

	// K is how many of the best results of a depth seed the next one.
	// Default: 1
	K int `yaml:"k" validate:"gte=1"`

	// RestartCount is how many randomly re-initialised copies of each
	// candidate are fitted alongside the original.
	// Default: 2
	RestartCount int `yaml:"n_rand" validate:"gte=0"`

	// RestartSD is the spread of the random restart draws, in log space.
	// Default: 4
	RestartSD float64 `yaml:"sd" validate:"gt=0"`

	// MaxJobs caps the number of concurrent evaluations.
	// Default: 500
	MaxJobs int `yaml:"max_jobs" validate:"gte=1"`

	// NEval is how many of the best results of a depth are compared when
	// removing near duplicates. Results beyond it are kept as they are.
	// Default: 250
	NEval int `yaml:"n_eval" validate:"gte=1"`

	// Iterations bounds the work the evaluator's optimizer may do per fit.
	// Default: 100
	Iterations int `yaml:"iters" validate:"gte=1"`

	// BaseKernels is the whitelist of base kinds ("SE", "Per", ...).
	// Default: SE, RQ, Per, Lin, Const
	BaseKernels []string `yaml:"base_kernels" validate:"required,min=1,dive,kernelkind"`

	// ZeroMean fixes the GP mean at zero. When false a constant mean is
	// fitted, which cannot be combined with the Const kernel.
	// Default: true
	ZeroMean bool `yaml:"zero_mean"`

	// VerboseResults persists every result of a depth instead of only the
	// seeds chosen from it.
	// Default: false
	VerboseResults bool `yaml:"verbose_results"`

	// RandomSeed seeds random restarts and is handed to the evaluator.
	// Default: 0
	RandomSeed int64 `yaml:"random_seed"`

	// UseMinPeriod bounds periods from below using the input spacing, and
	// drops fitted expressions that violate any bound, including those
	// added by UseConstraints.
	// Default: true
	UseMinPeriod bool `yaml:"use_min_period"`

	// PeriodHeuristic is the multiple of the input spacing used as the
	// minimum period.
	// Default: 10
	PeriodHeuristic float64 `yaml:"period_heuristic" validate:"gt=0"`

	// UseConstraints enables the lengthscale and alpha lower bounds. They
	// truncate restart draws; fitted results are only filtered against them
	// when UseMinPeriod is also set.
	// Default: false
	UseConstraints bool `yaml:"use_constraints"`

	// AlphaHeuristic is the minimum log alpha of RQ kernels.
	// Default: -2
	AlphaHeuristic float64 `yaml:"alpha_heuristic"`

	// LengthscaleHeuristic is added to the log input scale to obtain the
	// minimum log lengthscale.
	// Default: -4.5
	LengthscaleHeuristic float64 `yaml:"lengthscale_heuristic"`

	// Criterion ranks results.
	// Default: bic
	Criterion Criterion `yaml:"criterion" validate:"oneof=bic nll laplace"`

	// Verbose enables debug logging of individual candidates.
	// Default: false
	Verbose bool `yaml:"verbose"`

	// Debug truncates every frontier to its first four candidates.
	// Default: false
	Debug bool `yaml:"debug"`

	// ProgressChan is used to send progress updates during the search.
	// If nil, no updates will be sent
	ProgressChan chan<- ProgressUpdate `yaml:"-" validate:"-"`
}
