package kernelsearch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

//////
// Const, vars, types.
//////

// ColorScheme picks the palette for parenthesis colouring.
type ColorScheme string

// Palettes.
const (
	SchemeDark  ColorScheme = "dark"
	SchemeLight ColorScheme = "light"
)

// palettes hold one colour per nesting depth, cycling when expressions nest
// deeper than the palette.
var palettes = map[ColorScheme][]lipgloss.Color{
	SchemeDark:  {"14", "11", "13", "10", "9", "12"},
	SchemeLight: {"4", "1", "5", "2", "3", "6"},
}

// Printer renders expressions for people. It holds no search state.
type Printer struct {
	// Color styles the parentheses of nested sums and products with colours
	// that change with nesting depth.
	Color bool

	// Renderer decides how colours are emitted for the destination. Output
	// that is not a terminal gets no colour at all. If nil, the lipgloss
	// default renderer (standard output) is used.
	Renderer *lipgloss.Renderer

	// Scheme selects the palette. Defaults to SchemeDark.
	Scheme ColorScheme

	// Precision is the number of significant digits shown for parameters.
	// Defaults to 3.
	Precision int
}

//////
// Methods.
//////

// Pretty renders k, e.g. "( SE@0(lengthscale=0.5, output_variance=1) + Lin@0(...) )".
func (p Printer) Pretty(k Kernel) string {
	var b strings.Builder

	p.write(&b, k, 0)

	return b.String()
}

func (p Printer) write(b *strings.Builder, k Kernel, depth int) {
	switch x := k.(type) {
	case *BaseKernel:
		p.writeBase(b, x, -1)
	case *MaskKernel:
		if base, ok := x.base.(*BaseKernel); ok {
			p.writeBase(b, base, x.dim)

			return
		}

		fmt.Fprintf(b, "Mask@%d[", x.dim)
		p.write(b, x.base, depth)
		b.WriteByte(']')
	case *SumKernel:
		p.writeOperands(b, x.operands, " + ", depth)
	case *ProductKernel:
		p.writeOperands(b, x.operands, " x ", depth)
	}
}

func (p Printer) writeBase(b *strings.Builder, k *BaseKernel, dim int) {
	b.WriteString(k.kind.String())

	if dim >= 0 {
		b.WriteString("@" + strconv.Itoa(dim))
	}

	b.WriteByte('(')

	for i, name := range k.kind.ParamNames() {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString(name + "=" + strconv.FormatFloat(k.params[i], 'g', p.precision(), 64))
	}

	b.WriteByte(')')
}

func (p Printer) writeOperands(b *strings.Builder, ops []Kernel, sep string, depth int) {
	open, closing := "( ", " )"

	if p.Color {
		style := p.parenStyle(depth)
		open = style.Render("(") + " "
		closing = " " + style.Render(")")
	}

	b.WriteString(open)

	for i, op := range ops {
		if i > 0 {
			b.WriteString(sep)
		}

		p.write(b, op, depth+1)
	}

	b.WriteString(closing)
}

func (p Printer) parenStyle(depth int) lipgloss.Style {
	palette := palettes[p.Scheme]
	if palette == nil {
		palette = palettes[SchemeDark]
	}

	r := p.Renderer
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}

	return r.NewStyle().Foreground(palette[depth%len(palette)])
}

func (p Printer) precision() int {
	if p.Precision <= 0 {
		return 3
	}

	return p.Precision
}

//////
// Exported functionalities.
//////

// Pretty renders k without colour.
func Pretty(k Kernel) string {
	return Printer{}.Pretty(k)
}
