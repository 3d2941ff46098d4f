// Package gp is the in-process Gaussian-process backend of the structure
// search: covariance functions for every base kind, the negative log
// marginal likelihood, a hyperparameter optimizer and the covariance
// distance used to prune near-duplicate results.
package gp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	ks "github.com/thalesfsp/kernelsearch"
)

// covFunc evaluates a covariance between two input rows.
type covFunc func(x, z []float64) float64

// Covariance returns the n x n covariance of k over the rows of X.
func Covariance(k ks.Kernel, X mat.Matrix) (*mat.SymDense, error) {
	f, err := compile(k, nil)
	if err != nil {
		return nil, err
	}

	rows := matRows(X)
	n := len(rows)
	K := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			K.SetSym(i, j, f(rows[i], rows[j]))
		}
	}

	return K, nil
}

// compile turns an expression into a closure. dims, when set, overrides the
// active dimensions of base kernels; masks use it to restrict their base.
func compile(k ks.Kernel, dims []int) (covFunc, error) {
	switch x := k.(type) {
	case *ks.BaseKernel:
		active := dims
		if active == nil {
			active = x.Dims()
		}

		return baseCov(x.Kind(), x.Params(), active)
	case *ks.MaskKernel:
		return compile(x.Base(), []int{x.ActiveDim()})
	case *ks.SumKernel:
		fs, err := compileAll(x.Operands(), dims)
		if err != nil {
			return nil, err
		}

		return func(a, b []float64) float64 {
			total := 0.0
			for _, f := range fs {
				total += f(a, b)
			}

			return total
		}, nil
	case *ks.ProductKernel:
		fs, err := compileAll(x.Operands(), dims)
		if err != nil {
			return nil, err
		}

		return func(a, b []float64) float64 {
			total := 1.0
			for _, f := range fs {
				total *= f(a, b)
			}

			return total
		}, nil
	default:
		return nil, fmt.Errorf("unsupported expression %T", k)
	}
}

func compileAll(ops []ks.Kernel, dims []int) ([]covFunc, error) {
	fs := make([]covFunc, len(ops))

	for i, op := range ops {
		f, err := compile(op, dims)
		if err != nil {
			return nil, err
		}

		fs[i] = f
	}

	return fs, nil
}

// baseCov follows the GPML conventions: all parameters are logs of
// lengthscales, periods, standard deviations and shapes.
func baseCov(kind ks.Kind, p []float64, dims []int) (covFunc, error) {
	// An empty active set means every dimension of the input.
	pickDims := func(x []float64) []int {
		if len(dims) > 0 {
			return dims
		}

		all := make([]int, len(x))
		for i := range all {
			all[i] = i
		}

		return all
	}

	sqdist := func(x, z []float64) float64 {
		r2 := 0.0
		for _, d := range pickDims(x) {
			diff := x[d] - z[d]
			r2 += diff * diff
		}

		return r2
	}

	switch kind {
	case ks.KindSE:
		ell2, sf2 := math.Exp(2*p[0]), math.Exp(2*p[1])

		return func(x, z []float64) float64 {
			return sf2 * math.Exp(-sqdist(x, z)/(2*ell2))
		}, nil
	case ks.KindPer:
		ell2, period, sf2 := math.Exp(2*p[0]), math.Exp(p[1]), math.Exp(2*p[2])

		return func(x, z []float64) float64 {
			s := math.Sin(math.Pi * math.Sqrt(sqdist(x, z)) / period)

			return sf2 * math.Exp(-2*s*s/ell2)
		}, nil
	case ks.KindRQ:
		ell2, sf2, alpha := math.Exp(2*p[0]), math.Exp(2*p[1]), math.Exp(p[2])

		return func(x, z []float64) float64 {
			return sf2 * math.Pow(1+sqdist(x, z)/(2*alpha*ell2), -alpha)
		}, nil
	case ks.KindConst:
		sf2 := math.Exp(2 * p[0])

		return func(_, _ []float64) float64 { return sf2 }, nil
	case ks.KindLin:
		offset, inv2, loc := math.Exp(2*p[0]), math.Exp(-2*p[1]), p[2]

		return func(x, z []float64) float64 {
			dot := 0.0
			for _, d := range pickDims(x) {
				dot += (x[d] - loc) * (z[d] - loc)
			}

			return offset + dot*inv2
		}, nil
	case ks.KindChange:
		steep, loc := math.Exp(p[0]), p[1]

		sigmoid := func(x []float64) float64 {
			u := 0.0
			for _, d := range pickDims(x) {
				u += x[d]
			}

			return 1 / (1 + math.Exp(-steep*(u-loc)))
		}

		return func(x, z []float64) float64 { return sigmoid(x) * sigmoid(z) }, nil
	case ks.KindQuad, ks.KindCubic:
		c, sf2 := math.Exp(p[0]), math.Exp(2*p[1])

		degree := 2.0
		if kind == ks.KindCubic {
			degree = 3
		}

		return func(x, z []float64) float64 {
			dot := 0.0
			for _, d := range pickDims(x) {
				dot += x[d] * z[d]
			}

			return sf2 * math.Pow(c+dot, degree)
		}, nil
	case ks.KindPP0, ks.KindPP1, ks.KindPP2, ks.KindPP3:
		ell, sf2 := math.Exp(p[0]), math.Exp(2*p[1])
		v := int(kind - ks.KindPP0)

		return func(x, z []float64) float64 {
			D := len(pickDims(x))
			r := math.Sqrt(sqdist(x, z)) / ell

			return sf2 * piecewisePolynomial(r, v, D)
		}, nil
	case ks.KindMatern:
		ell, sf2 := math.Exp(p[0]), math.Exp(2*p[1])

		return func(x, z []float64) float64 {
			return sf2 * math.Exp(-math.Sqrt(sqdist(x, z))/ell)
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ks.ErrUnknownKind, kind)
	}
}

// piecewisePolynomial is the compactly supported covariance of smoothness v
// in D dimensions, at scaled distance r.
func piecewisePolynomial(r float64, v, D int) float64 {
	if r >= 1 {
		return 0
	}

	j := float64(D/2 + v + 1)
	base := math.Pow(1-r, j+float64(v))

	var poly float64

	switch v {
	case 0:
		poly = 1
	case 1:
		poly = 1 + (j+1)*r
	case 2:
		poly = 1 + (j+2)*r + (j*j+4*j+3)/3*r*r
	default:
		poly = 1 + (j+3)*r + (6*j*j+36*j+45)/15*r*r + (j*j*j+9*j*j+23*j+15)/15*r*r*r
	}

	return base * poly
}

func matRows(X mat.Matrix) [][]float64 {
	n, _ := X.Dims()
	rows := make([][]float64, n)

	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}

	return rows
}
