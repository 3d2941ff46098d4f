package gp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNotPositiveDefinite is returned when the noisy covariance cannot be
// Cholesky factorised.
var ErrNotPositiveDefinite = errors.New("covariance is not positive definite")

// NegLogLikelihood returns the negative log marginal likelihood of y under a
// GP with covariance K, Gaussian noise of log standard deviation logNoise
// and constant mean.
//
// K is not modified.
func NegLogLikelihood(K *mat.SymDense, y []float64, logNoise, mean float64) (float64, error) {
	n := K.SymmetricDim()

	noisy := mat.NewSymDense(n, nil)
	noisy.CopySym(K)

	noiseVar := math.Exp(2 * logNoise)
	for i := 0; i < n; i++ {
		noisy.SetSym(i, i, noisy.At(i, i)+noiseVar)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(noisy); !ok {
		return math.NaN(), ErrNotPositiveDefinite
	}

	resid := mat.NewVecDense(n, nil)
	for i, v := range y {
		resid.SetVec(i, v-mean)
	}

	var alpha mat.VecDense
	if err := chol.SolveVecTo(&alpha, resid); err != nil {
		// A Condition error still carries a usable solution.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return math.NaN(), err
		}
	}

	nll := 0.5*mat.Dot(resid, &alpha) + 0.5*chol.LogDet() + 0.5*float64(n)*math.Log(2*math.Pi)
	if math.IsNaN(nll) || math.IsInf(nll, 0) {
		return math.NaN(), ErrNotPositiveDefinite
	}

	return nll, nil
}
