package kernelsearch

import (
	"fmt"
	"slices"
	"strings"
)

//////
// Const, vars, types.
//////

// Family is the parameter-free shape of an expression. It knows how many
// parameters the shape takes and can rebuild an expression from a flat
// parameter vector.
type Family interface {
	// NumParams is the length of the parameter vector the shape takes.
	NumParams() int

	// Default returns the default instantiation of the shape. ndim is used
	// by base families to set the active dimensions.
	Default(ndim int) Kernel

	// FromParams rebuilds an expression of this shape from params.
	FromParams(params []float64) (Kernel, error)

	// String is a compact rendering of the shape, e.g. "Sum(SE, Per)".
	String() string

	familyRank() int
}

// BaseFamily is the shape of a base kernel.
type BaseFamily struct {
	Kind Kind

	// Dims are the active dimensions given to instances built by
	// FromParams. May be empty for a kind-only family.
	Dims []int
}

// MaskFamily is the shape of a mask over a base shape.
type MaskFamily struct {
	NDim int
	Dim  int
	Base Family
}

// SumFamily is the shape of a sum.
type SumFamily struct {
	Operands []Family
}

// ProductFamily is the shape of a product.
type ProductFamily struct {
	Operands []Family
}

var (
	_ Family = (*BaseFamily)(nil)
	_ Family = (*MaskFamily)(nil)
	_ Family = (*SumFamily)(nil)
	_ Family = (*ProductFamily)(nil)
)

//////
// Methods.
//////

func (f *BaseFamily) NumParams() int { return f.Kind.NumParams() }

func (f *BaseFamily) Default(ndim int) Kernel { return DefaultKernel(f.Kind, ndim) }

func (f *BaseFamily) FromParams(params []float64) (Kernel, error) {
	return NewBaseKernel(f.Kind, params, f.Dims)
}

func (f *BaseFamily) String() string { return f.Kind.String() }

func (f *BaseFamily) familyRank() int { return rankBase }

func (f *MaskFamily) NumParams() int { return f.Base.NumParams() }

func (f *MaskFamily) Default(int) Kernel {
	return &MaskKernel{ndim: f.NDim, dim: f.Dim, base: f.Base.Default(f.NDim)}
}

func (f *MaskFamily) FromParams(params []float64) (Kernel, error) {
	base, err := f.Base.FromParams(params)
	if err != nil {
		return nil, err
	}

	return NewMask(f.NDim, f.Dim, base)
}

func (f *MaskFamily) String() string {
	return fmt.Sprintf("Mask(%d, %d, %s)", f.NDim, f.Dim, f.Base)
}

func (f *MaskFamily) familyRank() int { return rankMask }

func (f *SumFamily) NumParams() int { return sumNumParams(f.Operands) }

func (f *SumFamily) Default(ndim int) Kernel {
	return &SumKernel{operands: defaults(f.Operands, ndim)}
}

func (f *SumFamily) FromParams(params []float64) (Kernel, error) {
	ops, err := splitParams(f.Operands, params)
	if err != nil {
		return nil, err
	}

	return &SumKernel{operands: ops}, nil
}

func (f *SumFamily) String() string { return "Sum(" + joinFamilies(f.Operands) + ")" }

func (f *SumFamily) familyRank() int { return rankSum }

func (f *ProductFamily) NumParams() int { return sumNumParams(f.Operands) }

func (f *ProductFamily) Default(ndim int) Kernel {
	return &ProductKernel{operands: defaults(f.Operands, ndim)}
}

func (f *ProductFamily) FromParams(params []float64) (Kernel, error) {
	ops, err := splitParams(f.Operands, params)
	if err != nil {
		return nil, err
	}

	return &ProductKernel{operands: ops}, nil
}

func (f *ProductFamily) String() string { return "Product(" + joinFamilies(f.Operands) + ")" }

func (f *ProductFamily) familyRank() int { return rankProduct }

//////
// Exported functionalities.
//////

// BaseFamilies returns one kind-only family per kind, in the order given.
func BaseFamilies(kinds []Kind) []Family {
	fams := make([]Family, len(kinds))
	for i, k := range kinds {
		fams[i] = &BaseFamily{Kind: k}
	}

	return fams
}

// CompareFamilies orders shapes structurally, ignoring parameter values. Two
// expressions have the same shape exactly when their families compare
// equal. Operand order matters here, since it fixes the parameter layout.
func CompareFamilies(a, b Family) int {
	if c := a.familyRank() - b.familyRank(); c != 0 {
		return sign(c)
	}

	switch x := a.(type) {
	case *BaseFamily:
		y := b.(*BaseFamily)
		if c := int(x.Kind) - int(y.Kind); c != 0 {
			return sign(c)
		}

		return slices.Compare(x.Dims, y.Dims)
	case *MaskFamily:
		y := b.(*MaskFamily)
		if c := x.NDim - y.NDim; c != 0 {
			return sign(c)
		}

		if c := x.Dim - y.Dim; c != 0 {
			return sign(c)
		}

		return CompareFamilies(x.Base, y.Base)
	case *SumFamily:
		return compareFamilyLists(x.Operands, b.(*SumFamily).Operands)
	case *ProductFamily:
		return compareFamilyLists(x.Operands, b.(*ProductFamily).Operands)
	}

	return 0
}

// SameShape reports whether a and b have equal families.
func SameShape(a, b Kernel) bool {
	return CompareFamilies(a.Family(), b.Family()) == 0
}

//////
// Helper functions.
//////

func compareFamilyLists(a, b []Family) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := CompareFamilies(a[i], b[i]); c != 0 {
			return c
		}
	}

	return sign(len(a) - len(b))
}

func sumNumParams(fams []Family) int {
	total := 0
	for _, f := range fams {
		total += f.NumParams()
	}

	return total
}

func defaults(fams []Family, ndim int) []Kernel {
	ops := make([]Kernel, len(fams))
	for i, f := range fams {
		ops[i] = f.Default(ndim)
	}

	return ops
}

func splitParams(fams []Family, params []float64) ([]Kernel, error) {
	if want := sumNumParams(fams); len(params) != want {
		return nil, fmt.Errorf("%w: shape takes %d parameters, got %d", ErrParamCount, want, len(params))
	}

	ops := make([]Kernel, len(fams))
	offset := 0

	for i, f := range fams {
		n := f.NumParams()

		op, err := f.FromParams(params[offset : offset+n])
		if err != nil {
			return nil, err
		}

		ops[i] = op
		offset += n
	}

	return ops, nil
}

func joinFamilies(fams []Family) string {
	parts := make([]string, len(fams))
	for i, f := range fams {
		parts[i] = f.String()
	}

	return strings.Join(parts, ", ")
}
