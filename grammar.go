package kernelsearch

import (
	"fmt"
	"slices"
)

//////
// Const, vars, types.
//////

// Category names a set of expressions a grammar variable may bind to.
type Category string

// Categories understood by the grammar.
const (
	// CategoryAny matches every expression. It cannot be enumerated.
	CategoryAny Category = "any"

	// CategoryBase matches a bare base kernel.
	CategoryBase Category = "base"

	// CategoryMask matches a mask.
	CategoryMask Category = "mask"

	// CategoryMulti matches masks and sums or products built only from
	// masks.
	CategoryMulti Category = "multi"

	// CategoryOneD matches expressions that contain no mask.
	CategoryOneD Category = "1d"
)

// Operator combines the arguments of an operator template.
type Operator int

// Template operators.
const (
	OpSum Operator = iota
	OpProduct
)

// Template is the right-hand side of a rule: either a Var or an Op.
type Template interface {
	template()
}

// Var is a grammar variable.
type Var string

// Op applies Operator to its argument templates.
type Op struct {
	Operator Operator
	Args     []Template
}

// Rule rewrites the expression bound to LHS into RHS. Types gives the
// category of every variable, LHS included.
type Rule struct {
	LHS   string
	RHS   Template
	Types map[string]Category
}

// Grammar enumerates the neighbours of an expression.
type Grammar struct {
	ndim  int
	kinds []Kind
	rules []Rule
}

func (Var) template() {}

func (Op) template() {}

//////
// Factory.
//////

// NewGrammar builds a grammar over ndim input dimensions and the given base
// kinds. Every category used by rules must be known.
func NewGrammar(ndim int, kinds []Kind, rules []Rule) (*Grammar, error) {
	for _, r := range rules {
		if _, ok := r.Types[r.LHS]; !ok {
			return nil, fmt.Errorf("%w: rule variable %q has no category", ErrUnknownCategory, r.LHS)
		}

		for v, c := range r.Types {
			if !c.known() {
				return nil, fmt.Errorf("%w: %q (variable %s)", ErrUnknownCategory, c, v)
			}
		}
	}

	return &Grammar{ndim: ndim, kinds: slices.Clone(kinds), rules: slices.Clone(rules)}, nil
}

// NewMultiDGrammar is the grammar used by the search:
//
//	A -> A + B   (A multi, B mask)
//	A -> A * B   (A multi, B mask)
//	A -> B       (A base, B base)
func NewMultiDGrammar(ndim int, kinds []Kind) *Grammar {
	g, _ := NewGrammar(ndim, kinds, []Rule{
		{LHS: "A", RHS: Op{OpSum, []Template{Var("A"), Var("B")}}, Types: map[string]Category{"A": CategoryMulti, "B": CategoryMask}},
		{LHS: "A", RHS: Op{OpProduct, []Template{Var("A"), Var("B")}}, Types: map[string]Category{"A": CategoryMulti, "B": CategoryMask}},
		{LHS: "A", RHS: Var("B"), Types: map[string]Category{"A": CategoryBase, "B": CategoryBase}},
	})

	return g
}

// NewOneDGrammar is the mask-free grammar for one-dimensional inputs:
//
//	A -> A + B   (A any, B base)
//	A -> A * B   (A any, B base)
//	A -> B       (A base, B base)
func NewOneDGrammar(kinds []Kind) *Grammar {
	g, _ := NewGrammar(1, kinds, []Rule{
		{LHS: "A", RHS: Op{OpSum, []Template{Var("A"), Var("B")}}, Types: map[string]Category{"A": CategoryAny, "B": CategoryBase}},
		{LHS: "A", RHS: Op{OpProduct, []Template{Var("A"), Var("B")}}, Types: map[string]Category{"A": CategoryAny, "B": CategoryBase}},
		{LHS: "A", RHS: Var("B"), Types: map[string]Category{"A": CategoryBase, "B": CategoryBase}},
	})

	return g
}

//////
// Methods.
//////

func (c Category) known() bool {
	switch c {
	case CategoryAny, CategoryBase, CategoryMask, CategoryMulti, CategoryOneD:
		return true
	default:
		return false
	}
}

// Rules returns a copy of the grammar's rules.
func (g *Grammar) Rules() []Rule { return slices.Clone(g.rules) }

// TypeMatches reports whether k belongs to category c.
func (g *Grammar) TypeMatches(k Kernel, c Category) (bool, error) {
	switch c {
	case CategoryAny:
		return true, nil
	case CategoryBase:
		_, ok := k.(*BaseKernel)

		return ok, nil
	case CategoryMask:
		_, ok := k.(*MaskKernel)

		return ok, nil
	case CategoryMulti:
		return isMulti(k), nil
	case CategoryOneD:
		return !hasMask(k), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
}

// ListOptions enumerates the default instances of category c.
//
// Returns:
// - mask: for every dimension, for every whitelisted kind, the default mask
// - base: the default base kernel of every whitelisted kind
// - error: ErrUnknownCategory for categories that cannot be enumerated
func (g *Grammar) ListOptions(c Category) ([]Kernel, error) {
	switch c {
	case CategoryMask:
		opts := make([]Kernel, 0, g.ndim*len(g.kinds))

		for dim := 0; dim < g.ndim; dim++ {
			for _, kind := range g.kinds {
				opts = append(opts, &MaskKernel{ndim: g.ndim, dim: dim, base: DefaultKernel(kind, g.ndim)})
			}
		}

		return opts, nil
	case CategoryBase:
		opts := make([]Kernel, 0, len(g.kinds))

		for _, kind := range g.kinds {
			opts = append(opts, DefaultKernel(kind, g.ndim))
		}

		return opts, nil
	default:
		return nil, fmt.Errorf("%w: %q cannot be enumerated", ErrUnknownCategory, c)
	}
}

// ExpandSingle applies every rule whose left-hand side matches k at the root.
// Each free variable of a rule ranges over ListOptions of its category and
// every combination is materialised.
func (g *Grammar) ExpandSingle(k Kernel) ([]Kernel, error) {
	var out []Kernel

	for _, rule := range g.rules {
		ok, err := g.TypeMatches(k, rule.Types[rule.LHS])
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		free := make([]string, 0, len(rule.Types))

		for v := range rule.Types {
			if v != rule.LHS {
				free = append(free, v)
			}
		}

		slices.Sort(free)

		choices := make([][]Kernel, len(free))

		for i, v := range free {
			opts, err := g.ListOptions(rule.Types[v])
			if err != nil {
				return nil, err
			}

			choices[i] = opts
		}

		for _, combo := range cartesian(choices) {
			bindings := map[string]Kernel{rule.LHS: k}
			for i, v := range free {
				bindings[v] = combo[i]
			}

			expanded, err := materialize(rule.RHS, bindings)
			if err != nil {
				return nil, err
			}

			out = append(out, expanded)
		}
	}

	return out, nil
}

// Expand returns ExpandSingle(k) plus every expression obtained by expanding
// one sub-expression in place. Masks re-wrap the expansions of their base;
// sums and products substitute the expansions of one operand while copying
// the others.
func (g *Grammar) Expand(k Kernel) ([]Kernel, error) {
	out, err := g.ExpandSingle(k)
	if err != nil {
		return nil, err
	}

	switch x := k.(type) {
	case *MaskKernel:
		inner, err := g.Expand(x.base)
		if err != nil {
			return nil, err
		}

		for _, e := range inner {
			out = append(out, &MaskKernel{ndim: x.ndim, dim: x.dim, base: e})
		}
	case *SumKernel:
		subs, err := g.expandOperands(x.operands)
		if err != nil {
			return nil, err
		}

		for _, ops := range subs {
			out = append(out, &SumKernel{operands: ops})
		}
	case *ProductKernel:
		subs, err := g.expandOperands(x.operands)
		if err != nil {
			return nil, err
		}

		for _, ops := range subs {
			out = append(out, &ProductKernel{operands: ops})
		}
	}

	return out, nil
}

func (g *Grammar) expandOperands(ops []Kernel) ([][]Kernel, error) {
	var out [][]Kernel

	for i, op := range ops {
		expansions, err := g.Expand(op)
		if err != nil {
			return nil, err
		}

		for _, e := range expansions {
			replaced := copyAll(ops)
			replaced[i] = e
			out = append(out, replaced)
		}
	}

	return out, nil
}

//////
// Exported functionalities.
//////

// ExpandKernels expands every seed with the multi-dimensional grammar and
// returns the canonical, deduplicated union of the results.
//
// Parameters:
// - ndim: input dimensionality
// - seeds: expressions to expand
// - kinds: the base-kind whitelist
//
// Returns:
// - []Kernel: the next frontier, sorted by Compare
// - error: only on a malformed grammar
func ExpandKernels(ndim int, seeds []Kernel, kinds []Kind) ([]Kernel, error) {
	g := NewMultiDGrammar(ndim, kinds)

	var all []Kernel

	for _, seed := range seeds {
		expanded, err := g.Expand(seed)
		if err != nil {
			return nil, err
		}

		all = append(all, expanded...)
	}

	return Deduplicate(all), nil
}

//////
// Helper functions.
//////

func materialize(t Template, bindings map[string]Kernel) (Kernel, error) {
	switch x := t.(type) {
	case Var:
		k, ok := bindings[string(x)]
		if !ok {
			return nil, fmt.Errorf("unbound grammar variable %q", string(x))
		}

		return k.Copy(), nil
	case Op:
		if len(x.Args) == 0 {
			return nil, fmt.Errorf("operator template without arguments")
		}

		acc, err := materialize(x.Args[0], bindings)
		if err != nil {
			return nil, err
		}

		for _, arg := range x.Args[1:] {
			next, err := materialize(arg, bindings)
			if err != nil {
				return nil, err
			}

			switch x.Operator {
			case OpSum:
				acc = Add(acc, next)
			case OpProduct:
				acc = Multiply(acc, next)
			default:
				return nil, fmt.Errorf("unknown template operator %d", x.Operator)
			}
		}

		return acc, nil
	default:
		return nil, fmt.Errorf("unknown template %T", t)
	}
}

func isMulti(k Kernel) bool {
	switch x := k.(type) {
	case *MaskKernel:
		return true
	case *SumKernel:
		return allMulti(x.operands)
	case *ProductKernel:
		return allMulti(x.operands)
	default:
		return false
	}
}

func allMulti(ops []Kernel) bool {
	for _, op := range ops {
		if !isMulti(op) {
			return false
		}
	}

	return true
}

func hasMask(k Kernel) bool {
	switch x := k.(type) {
	case *MaskKernel:
		return true
	case *SumKernel:
		return slices.ContainsFunc(x.operands, hasMask)
	case *ProductKernel:
		return slices.ContainsFunc(x.operands, hasMask)
	default:
		return false
	}
}
