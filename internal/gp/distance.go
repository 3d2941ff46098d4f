package gp

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"

	ks "github.com/thalesfsp/kernelsearch"
)

// Distance measures expressions by the Frobenius norm of the difference of
// their covariance matrices at the training inputs.
type Distance struct {
	// MaxGoroutines bounds the parallelism. Zero or less means 8.
	MaxGoroutines int
}

var _ ks.CovarianceDistance = Distance{}

// Distances implements ks.CovarianceDistance.
func (d Distance) Distances(ctx context.Context, kernels []ks.Kernel, X mat.Matrix) (*mat.SymDense, error) {
	workers := d.MaxGoroutines
	if workers <= 0 {
		workers = 8
	}

	covs := make([]*mat.SymDense, len(kernels))

	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(workers)

	for i, k := range kernels {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			K, err := Covariance(k, X)
			if err != nil {
				return err
			}

			covs[i] = K

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	n := len(kernels)
	out := mat.NewSymDense(n, nil)
	rows := make([][]float64, n)

	rp := pool.New().WithContext(ctx).WithMaxGoroutines(workers)

	for i := 0; i < n; i++ {
		rp.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			var diff mat.Dense

			row := make([]float64, n)

			for j := i + 1; j < n; j++ {
				diff.Sub(covs[i], covs[j])
				row[j] = mat.Norm(&diff, 2)
				diff.Reset()
			}

			rows[i] = row

			return nil
		})
	}

	if err := rp.Wait(); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out.SetSym(i, j, rows[i][j])
		}
	}

	return out, nil
}
