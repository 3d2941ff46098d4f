package kernelsearch

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func lineDataset(n int) Dataset {
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)

	for i := range n {
		x := float64(i)
		X.Set(i, 0, x)
		y[i] = math.Sin(x/3) + 0.1*x
	}

	return Dataset{Name: "line", X: X, Y: y}
}

func TestComputeDataShape(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0, 10,
		1, 10,
		2, 30,
		3, 30,
	})
	data := Dataset{X: X, Y: []float64{1, 1, 3, 3}}

	config := DefaultConfig()
	config.UseConstraints = true

	shape := ComputeDataShape(data, config)

	assert.InDeltaSlice(t, []float64{1.5, 20}, shape.InputLocation, 1e-12)
	assert.InDelta(t, math.Log(math.Sqrt(1.25)), shape.InputScale[0], 1e-12)
	assert.InDelta(t, math.Log(10), shape.InputScale[1], 1e-12)
	assert.InDelta(t, 2.0, shape.OutputLocation, 1e-12)
	assert.InDelta(t, 0.0, shape.OutputScale, 1e-12)

	// Column 0: smallest gap 1, range 3 over 4 points.
	require.Len(t, shape.Bounds.MinPeriod, 2)
	assert.InDelta(t, math.Log(10), shape.Bounds.MinPeriod[0], 1e-12)
	// Column 1: smallest distinct gap 20, range 20 over 4 points.
	assert.InDelta(t, math.Log(200), shape.Bounds.MinPeriod[1], 1e-12)

	assert.Equal(t, []float64{-2, -2}, shape.Bounds.MinAlpha)
	assert.InDelta(t, -4.5+shape.InputScale[1], shape.Bounds.MinLengthscale[1], 1e-12)
}

func TestComputeDataShapeWithoutBounds(t *testing.T) {
	config := DefaultConfig()
	config.UseMinPeriod = false

	shape := ComputeDataShape(lineDataset(10), config)

	assert.Empty(t, shape.Bounds.MinPeriod)
	assert.Empty(t, shape.Bounds.MinLengthscale)
	assert.Empty(t, shape.Bounds.MinAlpha)
}

func TestComputeDataShapeConstantColumnIsUnbounded(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{5, 5, 5})
	shape := ComputeDataShape(Dataset{X: X, Y: []float64{1, 2, 3}}, DefaultConfig())

	require.Len(t, shape.Bounds.MinPeriod, 1)
	assert.True(t, math.IsNaN(shape.Bounds.MinPeriod[0]))
}

func TestDataShapeProjectIsPure(t *testing.T) {
	shape := DataShape{
		InputLocation: []float64{1, 2, 3},
		InputScale:    []float64{4, 5, 6},
		OutputScale:   7,
		Bounds:        Constraints{MinPeriod: []float64{8, 9, 10}},
	}

	projected := shape.Project(1)

	assert.Equal(t, []float64{2}, projected.InputLocation)
	assert.Equal(t, []float64{5}, projected.InputScale)
	assert.Equal(t, []float64{9}, projected.Bounds.MinPeriod)
	assert.Equal(t, 7.0, projected.OutputScale)

	projected.InputLocation[0] = 100

	assert.Equal(t, []float64{1, 2, 3}, shape.InputLocation)
	assert.Equal(t, []float64{8, 9, 10}, shape.Bounds.MinPeriod)
}

func TestAddRandomRestarts(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	shape := ComputeDataShape(lineDataset(20), DefaultConfig())

	frontier := []Kernel{
		mustMask(t, 1, 0, DefaultKernel(KindSE, 1)),
		mustMask(t, 1, 0, DefaultKernel(KindPer, 1)),
	}

	out := addRandomRestarts(frontier, rng, 3, 2, shape, discardLogger())
	require.Len(t, out, 8)

	assert.Same(t, frontier[0], out[0])
	assert.Same(t, frontier[1], out[4])

	for i, k := range out {
		assert.True(t, SameShape(frontier[i/4], k), "restart %d keeps the shape", i)
	}

	assert.False(t, Equal(out[0], out[1]), "restarts move default parameters")
}

func TestAddRandomRestartsIsDeterministic(t *testing.T) {
	shape := ComputeDataShape(lineDataset(20), DefaultConfig())
	frontier := []Kernel{mustMask(t, 1, 0, DefaultKernel(KindRQ, 1))}

	a := addRandomRestarts(frontier, rand.New(rand.NewSource(9)), 4, 4, shape, discardLogger())
	b := addRandomRestarts(frontier, rand.New(rand.NewSource(9)), 4, 4, shape, discardLogger())

	require.Len(t, a, len(b))

	for i := range a {
		assert.Equal(t, a[i].String(), b[i].String())
	}
}

func TestMinAbsDiff(t *testing.T) {
	assert.Equal(t, 0.5, minAbsDiff([]float64{3, 1, 1.5, 3}))
	assert.Equal(t, 0.0, minAbsDiff([]float64{2, 2}))
	assert.Equal(t, 0.0, minAbsDiff(nil))
}
