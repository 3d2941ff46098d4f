package kernelsearch

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBase(t *testing.T, kind Kind, params []float64, dims ...int) *BaseKernel {
	t.Helper()

	k, err := NewBaseKernel(kind, params, dims)
	require.NoError(t, err)

	return k
}

func mustMask(t *testing.T, ndim, dim int, base Kernel) *MaskKernel {
	t.Helper()

	m, err := NewMask(ndim, dim, base)
	require.NoError(t, err)

	return m
}

func TestBaseKernelString(t *testing.T) {
	k := mustBase(t, KindSE, []float64{0.5, -1}, 0)

	assert.Equal(t, "SqExpKernel(lengthscale=0.5, output_variance=-1, dims=[0])", k.String())
}

func TestNewBaseKernelParamCount(t *testing.T) {
	_, err := NewBaseKernel(KindRQ, []float64{1, 2}, []int{0})
	require.ErrorIs(t, err, ErrParamCount)

	_, err = NewBaseKernel(Kind(99), nil, []int{0})
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestNewMaskRejectsOutOfRangeDimension(t *testing.T) {
	_, err := NewMask(2, 2, DefaultKernel(KindSE, 2))
	assert.Error(t, err)

	_, err = NewMask(2, -1, DefaultKernel(KindSE, 2))
	assert.Error(t, err)
}

func TestCompareVariantOrder(t *testing.T) {
	base := DefaultKernel(KindSE, 1)
	mask := mustMask(t, 1, 0, DefaultKernel(KindSE, 1))
	sum := NewSum(base, base)
	product := NewProduct(base, base)

	ordered := []Kernel{base, mask, sum, product}

	for i := range ordered {
		for j := range ordered {
			got := Compare(ordered[i], ordered[j])

			switch {
			case i < j:
				assert.Negative(t, got, "%d vs %d", i, j)
			case i > j:
				assert.Positive(t, got, "%d vs %d", i, j)
			default:
				assert.Zero(t, got)
			}
		}
	}
}

func TestCompareBaseKernels(t *testing.T) {
	se := mustBase(t, KindSE, []float64{0, 0}, 0)
	per := mustBase(t, KindPer, []float64{0, 0, 0}, 0)

	assert.Negative(t, Compare(se, per), "kind is the first key")

	small := mustBase(t, KindSE, []float64{0, 0}, 0)
	large := mustBase(t, KindSE, []float64{1, 0}, 0)
	assert.Negative(t, Compare(small, large))
	assert.Positive(t, Compare(large, small))

	dim0 := mustBase(t, KindSE, []float64{0, 0}, 0)
	dim1 := mustBase(t, KindSE, []float64{0, 0}, 1)
	assert.Negative(t, Compare(dim0, dim1), "dims break ties")
}

func TestCompareTolerance(t *testing.T) {
	a := mustBase(t, KindSE, []float64{1, 1}, 0)
	b := mustBase(t, KindSE, []float64{1 + CompareTolerance/2, 1}, 0)
	c := mustBase(t, KindSE, []float64{1 + 2*CompareTolerance, 1}, 0)

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestCompareSumIgnoresOperandOrder(t *testing.T) {
	se := DefaultKernel(KindSE, 1)
	lin := DefaultKernel(KindLin, 1)

	assert.True(t, Equal(NewSum(se, lin), NewSum(lin, se)))
	assert.True(t, Equal(NewProduct(se, lin), NewProduct(lin, se)))
	assert.False(t, Equal(NewSum(se, lin), NewProduct(se, lin)))
}

func TestAddFlattensSums(t *testing.T) {
	a := DefaultKernel(KindSE, 1)
	b := DefaultKernel(KindLin, 1)
	c := DefaultKernel(KindPer, 1)

	s := Add(Add(a, b), c)
	assert.Len(t, s.Operands(), 3)

	p := Multiply(c, Multiply(a, b))
	assert.Len(t, p.Operands(), 3)

	// A product inside a sum is kept as one operand.
	mixed := Add(Multiply(a, b), c)
	assert.Len(t, mixed.Operands(), 2)
}

func TestAddCopiesOperands(t *testing.T) {
	a := mustBase(t, KindSE, []float64{1, 2}, 0)
	s := Add(a, a)

	ops := s.Operands()
	assert.NotSame(t, a, ops[0])
	assert.Equal(t, a.Params(), ops[0].Params())
}

func TestParamsRoundTripThroughFamily(t *testing.T) {
	se := mustBase(t, KindSE, []float64{0.1, 0.2}, 0)
	rq := mustBase(t, KindRQ, []float64{0.3, 0.4, 0.5}, 1)
	k := NewProduct(mustMask(t, 2, 0, se), NewSum(mustMask(t, 2, 1, rq), mustMask(t, 2, 0, se)))

	params := k.Params()
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.1, 0.2}, params)
	assert.Equal(t, len(params), k.Family().NumParams())

	rebuilt, err := k.Family().FromParams(params)
	require.NoError(t, err)
	assert.Equal(t, k.String(), rebuilt.String())

	_, err = k.Family().FromParams(params[:3])
	require.ErrorIs(t, err, ErrParamCount)
}

func TestWithParamsKeepsShape(t *testing.T) {
	k := NewSum(DefaultKernel(KindSE, 1), DefaultKernel(KindConst, 1))

	out, err := WithParams(k, []float64{1, 2, 3})
	require.NoError(t, err)

	assert.True(t, SameShape(k, out))
	assert.Equal(t, []float64{1, 2, 3}, out.Params())
	assert.Equal(t, []float64{0, 0, 0}, k.Params(), "the receiver is not modified")
}

func TestEffectiveParams(t *testing.T) {
	se := DefaultKernel(KindSE, 1)
	per := DefaultKernel(KindPer, 1)
	lin := DefaultKernel(KindLin, 1)
	c := DefaultKernel(KindConst, 1)

	assert.Equal(t, 2, se.EffectiveParams())
	assert.Equal(t, 3, per.EffectiveParams())
	assert.Equal(t, 1, c.EffectiveParams())
	assert.Equal(t, 2, lin.EffectiveParams(), "Lin counts 2 despite its 3 parameters")

	assert.Equal(t, 5, NewSum(se, per).EffectiveParams())
	assert.Equal(t, 5, NewProduct(se, per, lin).EffectiveParams(), "one scale per extra factor is discounted")
	assert.Equal(t, 1, NewProduct(c, c, c).EffectiveParams())
	assert.Equal(t, 2, mustMask(t, 1, 0, se).EffectiveParams())

	for _, kind := range Kinds() {
		if kind == KindLin {
			continue
		}

		assert.Equal(t, kind.NumParams(), kind.EffectiveParams(), kind.String())
	}
}

func TestDepth(t *testing.T) {
	se := DefaultKernel(KindSE, 1)
	m := mustMask(t, 1, 0, se)

	assert.Equal(t, 0, se.Depth())
	assert.Equal(t, 0, m.Depth())
	assert.Equal(t, 1, NewSum(m, m).Depth())
	assert.Equal(t, 2, NewProduct(NewSum(m, m), m).Depth())
}

func TestOutOfBounds(t *testing.T) {
	per := mustBase(t, KindPer, []float64{0, -3, 0}, 0)
	bounds := Constraints{MinPeriod: []float64{-2}}

	assert.True(t, per.OutOfBounds(bounds))
	assert.False(t, per.OutOfBounds(Constraints{}))
	assert.False(t, per.OutOfBounds(Constraints{MinPeriod: []float64{-4}}))

	sum := NewSum(DefaultKernel(KindSE, 1), mustMask(t, 1, 0, per))
	assert.True(t, sum.OutOfBounds(bounds))

	rq := mustBase(t, KindRQ, []float64{0, 0, -5}, 0)
	assert.True(t, rq.OutOfBounds(Constraints{MinAlpha: []float64{-2}}))
	assert.True(t, rq.OutOfBounds(Constraints{MinLengthscale: []float64{1}}))
}

func TestOutOfBoundsUsesMaskDimension(t *testing.T) {
	bounds := Constraints{MinLengthscale: []float64{-10, 5}}

	on0 := mustMask(t, 2, 0, mustBase(t, KindSE, []float64{0, 0}, 0))
	on1 := mustMask(t, 2, 1, mustBase(t, KindSE, []float64{0, 0}, 1))

	assert.False(t, on0.OutOfBounds(bounds))
	assert.True(t, on1.OutOfBounds(bounds))
}

func TestRandomizedParamsReplacesDefaultsOnly(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	shape := DataShape{InputLocation: []float64{0}, InputScale: []float64{0}}

	fitted := mustBase(t, KindSE, []float64{0.7, 0}, 0)
	params := fitted.RandomizedParams(rng, 1, shape)

	assert.Equal(t, 0.7, params[0], "non-default values are kept")
	assert.NotEqual(t, 0.0, params[1])
	assert.Equal(t, []float64{0.7, 0}, fitted.Params(), "the receiver is not modified")
}

func TestRandomizedParamsComparesEachDefault(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	shape := DataShape{InputLocation: []float64{0}, InputScale: []float64{0}}

	atDefault := DefaultKernel(KindChange, 1)
	params := atDefault.RandomizedParams(rng, 1, shape)
	assert.NotEqual(t, 1.0, params[0], "steepness at its default of 1 is redrawn")

	zeroSteepness := mustBase(t, KindChange, []float64{0, 0.25}, 0)
	params = zeroSteepness.RandomizedParams(rng, 1, shape)
	assert.Equal(t, []float64{0, 0.25}, params)
}

func TestRandomizedParamsRespectsPeriodBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	shape := DataShape{
		InputLocation: []float64{0},
		InputScale:    []float64{0},
		Bounds:        Constraints{MinPeriod: []float64{1.5}},
	}

	per := DefaultKernel(KindPer, 1)

	for range 200 {
		params := per.RandomizedParams(rng, 4, shape)
		assert.GreaterOrEqual(t, params[1], 1.5)
		assert.False(t, math.IsNaN(params[1]))
	}
}

func TestRandomizedParamsLengthMatchesFamily(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	shape := DataShape{InputLocation: []float64{1, 2}, InputScale: []float64{0, 1}}

	k := NewProduct(
		mustMask(t, 2, 0, DefaultKernel(KindLin, 2)),
		NewSum(mustMask(t, 2, 1, DefaultKernel(KindRQ, 2)), mustMask(t, 2, 0, DefaultKernel(KindChange, 2))),
	)

	params := k.RandomizedParams(rng, 2, shape)
	require.Len(t, params, k.Family().NumParams())

	_, err := k.Family().FromParams(params)
	assert.NoError(t, err)
}

func TestKindTable(t *testing.T) {
	for _, kind := range Kinds() {
		assert.Len(t, kind.DefaultParams(), kind.NumParams(), kind.String())
		assert.Len(t, kind.ParamNames(), kind.NumParams(), kind.String())
		assert.LessOrEqual(t, kind.EffectiveParams(), kind.NumParams(), kind.String())

		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}
}

func TestParseKinds(t *testing.T) {
	kinds, err := ParseKinds("Lin, SE,Per,SE")
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindSE, KindPer, KindLin}, kinds)

	_, err = ParseKinds("SE,Bogus")
	require.ErrorIs(t, err, ErrUnknownKind)
}
