package kernelsearch

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

//////
// Const, vars, types.
//////

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	col  int
}

// parser reads the serialized form produced by Kernel.String and
// ScoredKernel.String. It only builds expressions; nothing is evaluated.
type parser struct {
	src  string
	pos  int
	tok  token
	line int
}

//////
// Exported functionalities.
//////

// ParseKernel reads an expression from its serialized form.
//
// Usage example:
//
//	k, err := ParseKernel("MaskKernel(ndim=1, active_dimension=0, base_kernel=SqExpKernel(lengthscale=0.5, output_variance=1, dims=[0]))")
//
// Returns:
// - Kernel: the expression
// - error: a *ParseError (errors.Is ErrParse) or a construction error such as
// ErrParamCount
func ParseKernel(s string) (Kernel, error) {
	p := newParser(s, 0)

	k, err := p.kernel()
	if err != nil {
		return nil, err
	}

	if err := p.expectEOF(); err != nil {
		return nil, err
	}

	return k, nil
}

// ParseScoredKernel reads a results-log line produced by ScoredKernel.String.
func ParseScoredKernel(s string) (ScoredKernel, error) {
	return parseScoredKernelLine(s, 0)
}

//////
// Helper functions.
//////

func parseScoredKernelLine(s string, line int) (ScoredKernel, error) {
	p := newParser(s, line)

	sk, err := p.scored()
	if err != nil {
		return ScoredKernel{}, err
	}

	if err := p.expectEOF(); err != nil {
		return ScoredKernel{}, err
	}

	return sk, nil
}

func newParser(src string, line int) *parser {
	p := &parser{src: src, line: line}
	p.next()

	return p
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.line, Col: p.tok.col + 1, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) next() {
	for p.pos < len(p.src) && strings.ContainsRune(" \t\r\n", rune(p.src[p.pos])) {
		p.pos++
	}

	start := p.pos

	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF, col: start}

		return
	}

	c := p.src[p.pos]

	switch {
	case isIdentStart(c):
		for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
			p.pos++
		}

		p.tok = token{kind: tokIdent, text: p.src[start:p.pos], col: start}
	case isDigit(c) || c == '.' || c == '+' || c == '-':
		p.pos++

		for p.pos < len(p.src) {
			ch := p.src[p.pos]
			exponentSign := (ch == '+' || ch == '-') && (p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E')

			if !isIdentPart(ch) && ch != '.' && !exponentSign {
				break
			}

			p.pos++
		}

		p.tok = token{kind: tokNumber, text: p.src[start:p.pos], col: start}
	default:
		p.pos++
		p.tok = token{kind: tokPunct, text: string(c), col: start}
	}
}

func (p *parser) expect(punct string) error {
	if p.tok.kind != tokPunct || p.tok.text != punct {
		return p.errorf("expected %q, found %q", punct, p.tok.text)
	}

	p.next()

	return nil
}

func (p *parser) expectEOF() error {
	if p.tok.kind != tokEOF {
		return p.errorf("unexpected trailing %q", p.tok.text)
	}

	return nil
}

func (p *parser) accept(punct string) bool {
	if p.tok.kind == tokPunct && p.tok.text == punct {
		p.next()

		return true
	}

	return false
}

func (p *parser) ident() (string, error) {
	if p.tok.kind != tokIdent {
		return "", p.errorf("expected identifier, found %q", p.tok.text)
	}

	name := p.tok.text
	p.next()

	return name, nil
}

// key reads "name=" and returns name.
func (p *parser) key() (string, error) {
	name, err := p.ident()
	if err != nil {
		return "", err
	}

	if err := p.expect("="); err != nil {
		return "", err
	}

	return name, nil
}

func (p *parser) number() (float64, error) {
	if p.tok.kind != tokNumber && p.tok.kind != tokIdent {
		return 0, p.errorf("expected number, found %q", p.tok.text)
	}

	v, err := strconv.ParseFloat(p.tok.text, 64)
	if err != nil {
		return 0, p.errorf("invalid number %q", p.tok.text)
	}

	p.next()

	return v, nil
}

func (p *parser) integer() (int, error) {
	if p.tok.kind != tokNumber {
		return 0, p.errorf("expected integer, found %q", p.tok.text)
	}

	v, err := strconv.Atoi(p.tok.text)
	if err != nil {
		return 0, p.errorf("invalid integer %q", p.tok.text)
	}

	p.next()

	return v, nil
}

func (p *parser) intList() ([]int, error) {
	if err := p.expect("["); err != nil {
		return nil, err
	}

	var out []int

	for !p.accept("]") {
		if len(out) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}

		v, err := p.integer()
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

func (p *parser) kernel() (Kernel, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}

	if err := p.expect("("); err != nil {
		return nil, err
	}

	var k Kernel

	switch name {
	case "SumKernel", "ProductKernel":
		ops, err := p.kernelList()
		if err != nil {
			return nil, err
		}

		if len(ops) == 0 {
			return nil, p.errorf("%s without operands", name)
		}

		if name == "SumKernel" {
			k = &SumKernel{operands: ops}
		} else {
			k = &ProductKernel{operands: ops}
		}
	case "MaskKernel":
		k, err = p.mask()
	default:
		kind, ok := kindBySerializedName(name)
		if !ok {
			return nil, p.errorf("%v: %q", ErrUnknownKind, name)
		}

		k, err = p.base(kind)
	}

	if err != nil {
		return nil, err
	}

	if err := p.expect(")"); err != nil {
		return nil, err
	}

	return k, nil
}

func (p *parser) kernelList() ([]Kernel, error) {
	if err := p.expect("["); err != nil {
		return nil, err
	}

	var ops []Kernel

	for !p.accept("]") {
		if len(ops) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}

		op, err := p.kernel()
		if err != nil {
			return nil, err
		}

		ops = append(ops, op)
	}

	return ops, nil
}

func (p *parser) mask() (Kernel, error) {
	var (
		ndim, dim int
		base      Kernel
		seen      = map[string]bool{}
	)

	for p.tok.kind != tokPunct || p.tok.text != ")" {
		if len(seen) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}

		key, err := p.key()
		if err != nil {
			return nil, err
		}

		switch key {
		case "ndim":
			ndim, err = p.integer()
		case "active_dimension":
			dim, err = p.integer()
		case "base_kernel":
			base, err = p.kernel()
		default:
			return nil, p.errorf("unknown MaskKernel field %q", key)
		}

		if err != nil {
			return nil, err
		}

		seen[key] = true
	}

	if !seen["ndim"] || !seen["active_dimension"] || base == nil {
		return nil, p.errorf("MaskKernel needs ndim, active_dimension and base_kernel")
	}

	return NewMask(ndim, dim, base)
}

func (p *parser) base(kind Kind) (Kernel, error) {
	names := kind.ParamNames()
	params := make([]float64, len(names))
	have := make([]bool, len(names))

	var (
		dims  []int
		first = true
	)

	for p.tok.kind != tokPunct || p.tok.text != ")" {
		if !first {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}

		first = false

		key, err := p.key()
		if err != nil {
			return nil, err
		}

		if key == "dims" {
			if dims, err = p.intList(); err != nil {
				return nil, err
			}

			continue
		}

		i := slices.Index(names, key)
		if i < 0 {
			return nil, p.errorf("%s has no parameter %q", kind.SerializedName(), key)
		}

		if params[i], err = p.number(); err != nil {
			return nil, err
		}

		have[i] = true
	}

	if i := slices.Index(have, false); i >= 0 {
		return nil, p.errorf("%s is missing %q", kind.SerializedName(), names[i])
	}

	return NewBaseKernel(kind, params, dims)
}

func (p *parser) scored() (ScoredKernel, error) {
	name, err := p.ident()
	if err != nil {
		return ScoredKernel{}, err
	}

	if name != "ScoredKernel" {
		return ScoredKernel{}, p.errorf("expected ScoredKernel, found %q", name)
	}

	if err := p.expect("("); err != nil {
		return ScoredKernel{}, err
	}

	var sk ScoredKernel

	seen := map[string]bool{}

	for !p.accept(")") {
		if len(seen) > 0 {
			if err := p.expect(","); err != nil {
				return ScoredKernel{}, err
			}
		}

		key, err := p.key()
		if err != nil {
			return ScoredKernel{}, err
		}

		switch key {
		case "k_opt":
			sk.Kernel, err = p.kernel()
		case "nll":
			sk.NLL, err = p.number()
		case "laplace_nle":
			sk.Laplace, err = p.number()
		case "bic_nle":
			sk.BIC, err = p.number()
		case "noise":
			sk.Noise, err = p.number()
		default:
			return ScoredKernel{}, p.errorf("unknown ScoredKernel field %q", key)
		}

		if err != nil {
			return ScoredKernel{}, err
		}

		seen[key] = true
	}

	for _, f := range []string{"k_opt", "nll", "laplace_nle", "bic_nle", "noise"} {
		if !seen[f] {
			return ScoredKernel{}, p.errorf("ScoredKernel is missing %q", f)
		}
	}

	return sk, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
