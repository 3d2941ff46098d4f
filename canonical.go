package kernelsearch

import "slices"

//////
// Exported functionalities.
//////

// Canonical returns the canonical form of k. Nested operators of the same
// kind are spliced into their parent, operands are sorted by Compare, and a
// sum or product with a single operand collapses to that operand. Masks
// canonicalize their base.
//
// Canonical is idempotent, and expressions that differ only by operand order
// or by sum/product associativity have canonical forms that compare equal.
func Canonical(k Kernel) Kernel {
	switch x := k.(type) {
	case *MaskKernel:
		return &MaskKernel{ndim: x.ndim, dim: x.dim, base: Canonical(x.base)}
	case *SumKernel:
		ops := canonicalOperands(x.operands, func(k Kernel) ([]Kernel, bool) {
			s, ok := k.(*SumKernel)
			if !ok {
				return nil, false
			}

			return s.operands, true
		})
		if len(ops) == 1 {
			return ops[0]
		}

		return &SumKernel{operands: ops}
	case *ProductKernel:
		ops := canonicalOperands(x.operands, func(k Kernel) ([]Kernel, bool) {
			p, ok := k.(*ProductKernel)
			if !ok {
				return nil, false
			}

			return p.operands, true
		})
		if len(ops) == 1 {
			return ops[0]
		}

		return &ProductKernel{operands: ops}
	default:
		return k.Copy()
	}
}

// Distribute multiplies products out over sums, returning a sum of products
// (or k itself, copied, when there is nothing to distribute).
//
// Usage example:
//
//	// (A + B) * C  ->  A*C + B*C
//	d := Distribute(NewProduct(NewSum(a, b), c))
func Distribute(k Kernel) Kernel {
	switch x := k.(type) {
	case *SumKernel:
		var terms []Kernel
		for _, op := range x.operands {
			terms = append(terms, summandsOf(Distribute(op))...)
		}

		return &SumKernel{operands: terms}
	case *ProductKernel:
		factors := make([][]Kernel, len(x.operands))
		for i, op := range x.operands {
			factors[i] = summandsOf(Distribute(op))
		}

		var terms []Kernel

		for _, combo := range cartesian(factors) {
			terms = append(terms, &ProductKernel{operands: copyAll(combo)})
		}

		return &SumKernel{operands: terms}
	default:
		return k.Copy()
	}
}

// BreakIntoSummands distributes k and returns its additive terms. A sum of the
// result is structurally equivalent, after canonicalization, to Distribute(k).
func BreakIntoSummands(k Kernel) []Kernel {
	return summandsOf(Distribute(Canonical(k)))
}

// Deduplicate canonicalizes every expression, sorts them by Compare, and
// drops each one that compares equal to the previously kept one. The result
// does not depend on the input order.
func Deduplicate(ks []Kernel) []Kernel {
	canon := make([]Kernel, len(ks))
	for i, k := range ks {
		canon[i] = Canonical(k)
	}

	slices.SortStableFunc(canon, Compare)

	out := make([]Kernel, 0, len(canon))

	for _, k := range canon {
		if len(out) > 0 && Equal(out[len(out)-1], k) {
			continue
		}

		out = append(out, k)
	}

	return out
}

// StripMasks replaces every mask by its base kernel. It is meant for
// presenting one-dimensional results.
func StripMasks(k Kernel) Kernel {
	switch x := k.(type) {
	case *MaskKernel:
		return StripMasks(x.base)
	case *SumKernel:
		return &SumKernel{operands: stripAll(x.operands)}
	case *ProductKernel:
		return &ProductKernel{operands: stripAll(x.operands)}
	default:
		return k.Copy()
	}
}

//////
// Helper functions.
//////

func canonicalOperands(ops []Kernel, splice func(Kernel) ([]Kernel, bool)) []Kernel {
	var out []Kernel

	for _, op := range ops {
		c := Canonical(op)

		if inner, ok := splice(c); ok {
			out = append(out, inner...)

			continue
		}

		out = append(out, c)
	}

	slices.SortStableFunc(out, Compare)

	return out
}

func summandsOf(k Kernel) []Kernel {
	if s, ok := k.(*SumKernel); ok {
		return slices.Clone(s.operands)
	}

	return []Kernel{k}
}

// cartesian returns every combination picking one element from each list.
func cartesian(lists [][]Kernel) [][]Kernel {
	combos := [][]Kernel{{}}

	for _, list := range lists {
		next := make([][]Kernel, 0, len(combos)*len(list))

		for _, prefix := range combos {
			for _, item := range list {
				combo := make([]Kernel, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, item))
			}
		}

		combos = next
	}

	return combos
}

func stripAll(ops []Kernel) []Kernel {
	out := make([]Kernel, len(ops))
	for i, op := range ops {
		out[i] = StripMasks(op)
	}

	return out
}
