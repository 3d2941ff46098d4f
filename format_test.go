package kernelsearch

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestPretty(t *testing.T) {
	se := mustMask(t, 2, 0, mustBase(t, KindSE, []float64{0.5, 1}, 0, 1))
	lin := mustMask(t, 2, 1, mustBase(t, KindLin, []float64{-2, 0.123456, 3}, 0, 1))

	assert.Equal(t, "SE@0(lengthscale=0.5, output_variance=1)", Pretty(se))
	assert.Equal(t,
		"( SE@0(lengthscale=0.5, output_variance=1) + ( Lin@1(offset=-2, lengthscale=0.123, location=3) x SE@0(lengthscale=0.5, output_variance=1) ) )",
		Pretty(NewSum(se, NewProduct(lin, se))),
	)

	assert.Equal(t, "SE(lengthscale=0.5, output_variance=1)", Pretty(se.Base()))
}

func TestPrettyPrecision(t *testing.T) {
	k := mustBase(t, KindConst, []float64{1.23456789}, 0)

	assert.Equal(t, "Const(output_variance=1.2346)", Printer{Precision: 5}.Pretty(k))
}

func colorRenderer() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.ANSI)

	return r
}

func TestPrettyColor(t *testing.T) {
	se := DefaultKernel(KindSE, 1)
	k := NewSum(se, NewProduct(se, se))

	r := colorRenderer()
	dark := Printer{Color: true, Renderer: r}
	light := Printer{Color: true, Renderer: r, Scheme: SchemeLight}

	darkOut := dark.Pretty(k)

	assert.NotEqual(t, darkOut, light.Pretty(k))
	assert.True(t, strings.HasPrefix(darkOut, dark.parenStyle(0).Render("(")))
	assert.Contains(t, darkOut, dark.parenStyle(1).Render("("), "nested operators change colour")
	assert.NotEqual(t, dark.parenStyle(0).Render("("), dark.parenStyle(1).Render("("))

	// Colours are the only difference from the plain rendering.
	assert.Equal(t, Pretty(k), ansi.Strip(darkOut))
}

func TestPrettyColorWithoutTerminal(t *testing.T) {
	se := DefaultKernel(KindSE, 1)
	k := NewSum(se, se)

	t.Setenv("CLICOLOR_FORCE", "0")

	var out bytes.Buffer

	p := Printer{Color: true, Renderer: lipgloss.NewRenderer(&out)}

	assert.Equal(t, Pretty(k), p.Pretty(k))
}
