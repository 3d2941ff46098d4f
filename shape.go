package kernelsearch

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

//////
// Const, vars, types.
//////

// Constraints holds lower bounds on fitted parameters. Each field is a
// per-input-dimension vector; an empty vector leaves the corresponding
// parameter unconstrained.
type Constraints struct {
	MinLengthscale []float64 `yaml:"min_lengthscale,omitempty"`
	MinPeriod      []float64 `yaml:"min_period,omitempty"`
	MinAlpha       []float64 `yaml:"min_alpha,omitempty"`
}

// DataShape summarises the data a search runs on. Random restarts draw
// parameters around these statistics; Constraints bounds them.
type DataShape struct {
	// InputLocation is the per-dimension mean of X.
	InputLocation []float64

	// InputScale is the per-dimension log standard deviation of X.
	InputScale []float64

	// OutputLocation is the mean of y.
	OutputLocation float64

	// OutputScale is the log standard deviation of y.
	OutputScale float64

	// Bounds holds the heuristic lower bounds enabled by configuration.
	Bounds Constraints
}

// resolvedShape is a DataShape reduced to scalars for a set of active
// dimensions. Unset bounds are NaN.
type resolvedShape struct {
	inputLocation  float64
	inputScale     float64
	outputLocation float64
	outputScale    float64
	resolvedBounds
}

type resolvedBounds struct {
	minLengthscale float64
	minPeriod      float64
	minAlpha       float64
}

//////
// Methods.
//////

// Project restricts every per-dimension vector to dim. Entries that are
// absent stay absent. The receiver is not modified.
func (c Constraints) Project(dim int) Constraints {
	return Constraints{
		MinLengthscale: projectVector(c.MinLengthscale, dim),
		MinPeriod:      projectVector(c.MinPeriod, dim),
		MinAlpha:       projectVector(c.MinAlpha, dim),
	}
}

func (c Constraints) resolve(dims []int) resolvedBounds {
	return resolvedBounds{
		minLengthscale: boundOver(c.MinLengthscale, dims),
		minPeriod:      boundOver(c.MinPeriod, dims),
		minAlpha:       boundOver(c.MinAlpha, dims),
	}
}

// Project returns the shape seen by a kernel acting on dimension dim alone.
// The result is a copy; the receiver is not modified.
func (s DataShape) Project(dim int) DataShape {
	return DataShape{
		InputLocation:  projectVector(s.InputLocation, dim),
		InputScale:     projectVector(s.InputScale, dim),
		OutputLocation: s.OutputLocation,
		OutputScale:    s.OutputScale,
		Bounds:         s.Bounds.Project(dim),
	}
}

func (s DataShape) resolve(dims []int) resolvedShape {
	return resolvedShape{
		inputLocation:  meanOver(s.InputLocation, dims),
		inputScale:     meanOver(s.InputScale, dims),
		outputLocation: s.OutputLocation,
		outputScale:    s.OutputScale,
		resolvedBounds: s.Bounds.resolve(dims),
	}
}

//////
// Exported functionalities.
//////

// ComputeDataShape derives location and scale statistics from the data and,
// depending on config, the heuristic parameter bounds.
//
// Parameters:
// - data: Dataset with X (n x d) and y (n)
// - config: supplies UseMinPeriod, PeriodHeuristic, UseConstraints,
// AlphaHeuristic and LengthscaleHeuristic
//
// Returns:
// - DataShape: InputLocation/InputScale per dimension, output statistics and
// bounds
//
// Important notes:
//   - Standard deviations are population standard deviations
//   - The minimum period per dimension is
//     log(max(h * smallest gap between distinct inputs, h * range / n)); a
//     non-finite result leaves the dimension unbounded
//   - The minimum lengthscale is LengthscaleHeuristic + InputScale
func ComputeDataShape(data Dataset, config SearchConfig) DataShape {
	n, d := data.X.Dims()

	shape := DataShape{
		InputLocation: make([]float64, d),
		InputScale:    make([]float64, d),
	}

	columns := make([][]float64, d)
	for j := 0; j < d; j++ {
		columns[j] = mat.Col(nil, j, data.X)

		mean, std := stat.PopMeanStdDev(columns[j], nil)
		shape.InputLocation[j] = mean
		shape.InputScale[j] = math.Log(std)
	}

	mean, std := stat.PopMeanStdDev(data.Y, nil)
	shape.OutputLocation = mean
	shape.OutputScale = math.Log(std)

	if config.UseMinPeriod {
		shape.Bounds.MinPeriod = make([]float64, d)

		for j, col := range columns {
			spread := floats.Max(col) - floats.Min(col)
			bound := math.Log(math.Max(
				config.PeriodHeuristic*minAbsDiff(col),
				config.PeriodHeuristic*spread/float64(n),
			))

			if math.IsInf(bound, 0) || math.IsNaN(bound) {
				bound = math.NaN()
			}

			shape.Bounds.MinPeriod[j] = bound
		}
	}

	if config.UseConstraints {
		shape.Bounds.MinAlpha = make([]float64, d)
		shape.Bounds.MinLengthscale = make([]float64, d)

		for j := range d {
			shape.Bounds.MinAlpha[j] = config.AlphaHeuristic
			shape.Bounds.MinLengthscale[j] = config.LengthscaleHeuristic + shape.InputScale[j]
		}
	}

	return shape
}

//////
// Helper functions.
//////

func projectVector(v []float64, dim int) []float64 {
	switch {
	case len(v) == 0:
		return nil
	case len(v) == 1:
		return []float64{v[0]}
	case dim >= 0 && dim < len(v):
		return []float64{v[dim]}
	default:
		return nil
	}
}

// meanOver averages v over dims. A single-entry vector applies to every
// dimension; an empty vector yields 0.
func meanOver(v []float64, dims []int) float64 {
	picked := pick(v, dims)
	if len(picked) == 0 {
		return 0
	}

	return stat.Mean(picked, nil)
}

// boundOver returns the tightest bound over dims, or NaN when none applies.
func boundOver(v []float64, dims []int) float64 {
	bound := math.NaN()

	for _, b := range pick(v, dims) {
		bound = maxBound(bound, b)
	}

	return bound
}

func pick(v []float64, dims []int) []float64 {
	if len(v) == 1 {
		return v
	}

	picked := make([]float64, 0, len(dims))

	for _, d := range dims {
		if d >= 0 && d < len(v) {
			picked = append(picked, v[d])
		}
	}

	return picked
}

// maxBound is max that treats NaN as "no bound".
func maxBound(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	default:
		return math.Max(a, b)
	}
}

// minAbsDiff is the smallest gap between distinct values of x, 0 when there
// are fewer than two distinct values.
func minAbsDiff(x []float64) float64 {
	sorted := slices.Clone(x)
	slices.Sort(sorted)

	best := math.Inf(1)

	for i := 1; i < len(sorted); i++ {
		if gap := sorted[i] - sorted[i-1]; gap > 0 && gap < best {
			best = gap
		}
	}

	if math.IsInf(best, 1) {
		return 0
	}

	return best
}
