package kernelsearch

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"strconv"
	"strings"
)

//////
// Const, vars, types.
//////

// CompareTolerance is the smallest log-parameter difference the total order
// distinguishes. Smaller differences compare as equal.
var CompareTolerance = math.Log(1.01)

// Kernel is a covariance expression: a base kernel, a mask restricting a base
// kernel to one input dimension, or a sum or product of sub-expressions.
//
// Expressions are values. Every method that returns an expression returns a
// new one; no operation mutates its receiver.
type Kernel interface {
	// Family returns the parameter-free shape of the expression.
	Family() Family

	// Params returns the flattened parameter vector in family order.
	Params() []float64

	// EffectiveParams is the number of free parameters counted by BIC.
	EffectiveParams() int

	// OutOfBounds reports whether any parameter violates c.
	OutOfBounds(c Constraints) bool

	// RandomizedParams returns Params with default-valued entries replaced
	// by draws informed by shape.
	RandomizedParams(rng *rand.Rand, sd float64, shape DataShape) []float64

	// Depth is 0 for leaves and 1 + the deepest operand for composites.
	Depth() int

	// Copy returns a deep copy.
	Copy() Kernel

	// String returns the serialized form, which ParseKernel reads back.
	String() string

	rank() int
}

// BaseKernel is a leaf: one covariance kind over a set of active input
// dimensions.
type BaseKernel struct {
	kind   Kind
	params []float64
	dims   []int
}

// MaskKernel restricts a base kernel to a single input dimension out of
// NDim.
type MaskKernel struct {
	ndim int
	dim  int
	base Kernel
}

// SumKernel is the sum of its operands.
type SumKernel struct {
	operands []Kernel
}

// ProductKernel is the product of its operands.
type ProductKernel struct {
	operands []Kernel
}

var (
	_ Kernel = (*BaseKernel)(nil)
	_ Kernel = (*MaskKernel)(nil)
	_ Kernel = (*SumKernel)(nil)
	_ Kernel = (*ProductKernel)(nil)
)

const (
	rankBase = iota
	rankMask
	rankSum
	rankProduct
)

//////
// Methods.
//////

// Kind returns the covariance kind.
func (k *BaseKernel) Kind() Kind { return k.kind }

// Dims returns a copy of the active input dimensions.
func (k *BaseKernel) Dims() []int { return slices.Clone(k.dims) }

func (k *BaseKernel) Family() Family {
	return &BaseFamily{Kind: k.kind, Dims: slices.Clone(k.dims)}
}

func (k *BaseKernel) Params() []float64 { return slices.Clone(k.params) }

func (k *BaseKernel) EffectiveParams() int { return k.kind.EffectiveParams() }

func (k *BaseKernel) OutOfBounds(c Constraints) bool {
	return k.kind.outOfBounds(k.params, c.resolve(k.dims))
}

func (k *BaseKernel) RandomizedParams(rng *rand.Rand, sd float64, shape DataShape) []float64 {
	return k.kind.randomize(rng, sd, k.params, shape.resolve(k.dims))
}

func (k *BaseKernel) Depth() int { return 0 }

func (k *BaseKernel) Copy() Kernel {
	return &BaseKernel{kind: k.kind, params: slices.Clone(k.params), dims: slices.Clone(k.dims)}
}

func (k *BaseKernel) String() string {
	var b strings.Builder

	b.WriteString(k.kind.SerializedName())
	b.WriteByte('(')

	for i, name := range k.kind.ParamNames() {
		fmt.Fprintf(&b, "%s=%s, ", name, formatFloat(k.params[i]))
	}

	b.WriteString("dims=[")

	for i, d := range k.dims {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString(strconv.Itoa(d))
	}

	b.WriteString("])")

	return b.String()
}

func (k *BaseKernel) rank() int { return rankBase }

// NDim is the dimensionality of the input space.
func (k *MaskKernel) NDim() int { return k.ndim }

// ActiveDim is the input dimension the wrapped kernel sees.
func (k *MaskKernel) ActiveDim() int { return k.dim }

// Base returns the wrapped kernel.
func (k *MaskKernel) Base() Kernel { return k.base }

func (k *MaskKernel) Family() Family {
	return &MaskFamily{NDim: k.ndim, Dim: k.dim, Base: k.base.Family()}
}

func (k *MaskKernel) Params() []float64 { return k.base.Params() }

func (k *MaskKernel) EffectiveParams() int { return k.base.EffectiveParams() }

func (k *MaskKernel) OutOfBounds(c Constraints) bool {
	return k.base.OutOfBounds(c.Project(k.dim))
}

func (k *MaskKernel) RandomizedParams(rng *rand.Rand, sd float64, shape DataShape) []float64 {
	return k.base.RandomizedParams(rng, sd, shape.Project(k.dim))
}

func (k *MaskKernel) Depth() int { return k.base.Depth() }

func (k *MaskKernel) Copy() Kernel {
	return &MaskKernel{ndim: k.ndim, dim: k.dim, base: k.base.Copy()}
}

func (k *MaskKernel) String() string {
	return fmt.Sprintf("MaskKernel(ndim=%d, active_dimension=%d, base_kernel=%s)", k.ndim, k.dim, k.base)
}

func (k *MaskKernel) rank() int { return rankMask }

// Operands returns the summands. The slice is a copy; the expressions are
// shared.
func (k *SumKernel) Operands() []Kernel { return slices.Clone(k.operands) }

func (k *SumKernel) Family() Family {
	return &SumFamily{Operands: operandFamilies(k.operands)}
}

func (k *SumKernel) Params() []float64 { return concatParams(k.operands) }

func (k *SumKernel) EffectiveParams() int {
	total := 0
	for _, op := range k.operands {
		total += op.EffectiveParams()
	}

	return total
}

func (k *SumKernel) OutOfBounds(c Constraints) bool { return anyOutOfBounds(k.operands, c) }

func (k *SumKernel) RandomizedParams(rng *rand.Rand, sd float64, shape DataShape) []float64 {
	return concatRandomized(k.operands, rng, sd, shape)
}

func (k *SumKernel) Depth() int { return compositeDepth(k.operands) }

func (k *SumKernel) Copy() Kernel { return &SumKernel{operands: copyAll(k.operands)} }

func (k *SumKernel) String() string { return "SumKernel(" + joinOperands(k.operands) + ")" }

func (k *SumKernel) rank() int { return rankSum }

// Operands returns the factors. The slice is a copy; the expressions are
// shared.
func (k *ProductKernel) Operands() []Kernel { return slices.Clone(k.operands) }

func (k *ProductKernel) Family() Family {
	return &ProductFamily{Operands: operandFamilies(k.operands)}
}

func (k *ProductKernel) Params() []float64 { return concatParams(k.operands) }

// EffectiveParams discounts one output scale per extra factor. The result is
// at least 1 because every kind counts at least one parameter.
func (k *ProductKernel) EffectiveParams() int {
	total := 0
	for _, op := range k.operands {
		total += op.EffectiveParams()
	}

	return total - (len(k.operands) - 1)
}

func (k *ProductKernel) OutOfBounds(c Constraints) bool { return anyOutOfBounds(k.operands, c) }

func (k *ProductKernel) RandomizedParams(rng *rand.Rand, sd float64, shape DataShape) []float64 {
	return concatRandomized(k.operands, rng, sd, shape)
}

func (k *ProductKernel) Depth() int { return compositeDepth(k.operands) }

func (k *ProductKernel) Copy() Kernel { return &ProductKernel{operands: copyAll(k.operands)} }

func (k *ProductKernel) String() string {
	return "ProductKernel(" + joinOperands(k.operands) + ")"
}

func (k *ProductKernel) rank() int { return rankProduct }

//////
// Factory.
//////

// NewBaseKernel builds a leaf of the given kind.
//
// Parameters:
// - kind: a kind from the kind table
// - params: parameter vector, length kind.NumParams()
// - dims: active input dimensions (copied)
//
// Returns:
// - *BaseKernel: the leaf
// - error: ErrUnknownKind or ErrParamCount
func NewBaseKernel(kind Kind, params []float64, dims []int) (*BaseKernel, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}

	if len(params) != kind.NumParams() {
		return nil, fmt.Errorf(
			"%w: %s takes %d parameters, got %d",
			ErrParamCount, kind, kind.NumParams(), len(params),
		)
	}

	return &BaseKernel{kind: kind, params: slices.Clone(params), dims: slices.Clone(dims)}, nil
}

// DefaultKernel is the default instantiation of kind over ndim dimensions.
func DefaultKernel(kind Kind, ndim int) *BaseKernel {
	dims := make([]int, ndim)
	for i := range dims {
		dims[i] = i
	}

	return &BaseKernel{kind: kind, params: kind.DefaultParams(), dims: dims}
}

// NewMask wraps base so that it acts on dimension dim out of ndim.
func NewMask(ndim, dim int, base Kernel) (*MaskKernel, error) {
	if ndim < 1 || dim < 0 || dim >= ndim {
		return nil, fmt.Errorf("mask dimension %d outside [0, %d)", dim, ndim)
	}

	return &MaskKernel{ndim: ndim, dim: dim, base: base}, nil
}

// NewSum builds a sum over operands as given, without flattening.
func NewSum(operands ...Kernel) *SumKernel {
	return &SumKernel{operands: slices.Clone(operands)}
}

// NewProduct builds a product over operands as given, without flattening.
func NewProduct(operands ...Kernel) *ProductKernel {
	return &ProductKernel{operands: slices.Clone(operands)}
}

//////
// Exported functionalities.
//////

// Add returns a + b. Operands that are themselves sums are spliced in, so
// Add never nests a sum directly inside a sum. Both inputs are copied.
func Add(a, b Kernel) *SumKernel {
	operands := make([]Kernel, 0, 2)

	for _, k := range []Kernel{a, b} {
		if s, ok := k.(*SumKernel); ok {
			operands = append(operands, copyAll(s.operands)...)

			continue
		}

		operands = append(operands, k.Copy())
	}

	return &SumKernel{operands: operands}
}

// Multiply returns a * b, splicing in operands that are themselves products.
// Both inputs are copied.
func Multiply(a, b Kernel) *ProductKernel {
	operands := make([]Kernel, 0, 2)

	for _, k := range []Kernel{a, b} {
		if p, ok := k.(*ProductKernel); ok {
			operands = append(operands, copyAll(p.operands)...)

			continue
		}

		operands = append(operands, k.Copy())
	}

	return &ProductKernel{operands: operands}
}

// WithParams returns a new expression with the shape of k and the given
// parameter vector.
func WithParams(k Kernel, params []float64) (Kernel, error) {
	return k.Family().FromParams(params)
}

// Compare is the total order over expressions. Variants order as base, mask,
// sum, product. Base kernels compare by kind, then parameters, then active
// dimensions. Parameter differences smaller in magnitude than
// CompareTolerance count as equal. Sums and products compare their operand
// lists after sorting each independently, so operand order is irrelevant.
//
// Returns:
// - int: negative when a < b, 0 when equal, positive when a > b
func Compare(a, b Kernel) int {
	if c := a.rank() - b.rank(); c != 0 {
		return sign(c)
	}

	switch x := a.(type) {
	case *BaseKernel:
		y := b.(*BaseKernel)
		if c := int(x.kind) - int(y.kind); c != 0 {
			return sign(c)
		}

		if c := compareParams(x.params, y.params); c != 0 {
			return c
		}

		return slices.Compare(x.dims, y.dims)
	case *MaskKernel:
		y := b.(*MaskKernel)
		if c := x.ndim - y.ndim; c != 0 {
			return sign(c)
		}

		if c := x.dim - y.dim; c != 0 {
			return sign(c)
		}

		return Compare(x.base, y.base)
	case *SumKernel:
		return compareOperands(x.operands, b.(*SumKernel).operands)
	case *ProductKernel:
		return compareOperands(x.operands, b.(*ProductKernel).operands)
	}

	return 0
}

// Equal reports whether Compare(a, b) == 0.
func Equal(a, b Kernel) bool {
	return Compare(a, b) == 0
}

//////
// Helper functions.
//////

func compareParams(a, b []float64) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		diff := a[i] - b[i]

		if math.Abs(diff) < CompareTolerance {
			continue
		}

		switch {
		case diff < 0:
			return -1
		case diff > 0:
			return 1
		}

		// NaN differences fall through to a deterministic tie-break.
		if c := compareNaN(a[i], b[i]); c != 0 {
			return c
		}
	}

	return sign(len(a) - len(b))
}

// compareNaN orders NaN after every number.
func compareNaN(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)

	switch {
	case an && !bn:
		return 1
	case !an && bn:
		return -1
	default:
		return 0
	}
}

func compareOperands(a, b []Kernel) int {
	x := sortedCopy(a)
	y := sortedCopy(b)

	for i := 0; i < len(x) && i < len(y); i++ {
		if c := Compare(x[i], y[i]); c != 0 {
			return c
		}
	}

	return sign(len(x) - len(y))
}

func sortedCopy(ks []Kernel) []Kernel {
	out := slices.Clone(ks)
	slices.SortStableFunc(out, Compare)

	return out
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

func operandFamilies(ops []Kernel) []Family {
	fams := make([]Family, len(ops))
	for i, op := range ops {
		fams[i] = op.Family()
	}

	return fams
}

func concatParams(ops []Kernel) []float64 {
	var params []float64
	for _, op := range ops {
		params = append(params, op.Params()...)
	}

	return params
}

func concatRandomized(ops []Kernel, rng *rand.Rand, sd float64, shape DataShape) []float64 {
	var params []float64
	for _, op := range ops {
		params = append(params, op.RandomizedParams(rng, sd, shape)...)
	}

	return params
}

func anyOutOfBounds(ops []Kernel, c Constraints) bool {
	for _, op := range ops {
		if op.OutOfBounds(c) {
			return true
		}
	}

	return false
}

func compositeDepth(ops []Kernel) int {
	depth := 0
	for _, op := range ops {
		depth = max(depth, op.Depth())
	}

	return depth + 1
}

func copyAll(ops []Kernel) []Kernel {
	out := make([]Kernel, len(ops))
	for i, op := range ops {
		out[i] = op.Copy()
	}

	return out
}

func joinOperands(ops []Kernel) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
