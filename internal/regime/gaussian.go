package regime

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// floorDensity is substituted whenever a covariance matrix is singular, per
// spec.md §4.C's "linear-algebra failure yields a tiny floor density".
const floorDensity = 1e-10

// multivariateNormalPDF evaluates the multivariate normal density of x given
// mean and a (regularized) covariance matrix.
func multivariateNormalPDF(x, mean []float64, cov *mat.Dense) float64 {
	k := len(mean)
	diff := mat.NewVecDense(k, nil)
	for i := range x {
		diff.SetVec(i, x[i]-mean[i])
	}

	var inv mat.Dense
	if err := inv.Inverse(cov); err != nil {
		return floorDensity
	}
	det := mat.Det(cov)
	if det <= 0 {
		return floorDensity
	}

	quadVec := mat.NewVecDense(k, nil)
	quadVec.MulVec(&inv, diff)
	quad := mat.Dot(diff, quadVec)

	logNorm := -0.5*float64(k)*math.Log(2*math.Pi) - 0.5*math.Log(det)
	logPDF := logNorm - 0.5*quad
	return math.Exp(logPDF)
}

// covarianceOf returns the sample covariance of rows plus ridge*I.
func covarianceOf(rows [][]float64, mean []float64, ridge float64) *mat.Dense {
	dims := len(mean)
	cov := mat.NewDense(dims, dims, nil)
	if len(rows) == 0 {
		for i := 0; i < dims; i++ {
			cov.Set(i, i, ridge)
		}
		return cov
	}

	for _, r := range rows {
		diff := make([]float64, dims)
		for j := range r {
			diff[j] = r[j] - mean[j]
		}
		for i := 0; i < dims; i++ {
			for j := 0; j < dims; j++ {
				cov.Set(i, j, cov.At(i, j)+diff[i]*diff[j])
			}
		}
	}
	n := float64(len(rows))
	for i := 0; i < dims; i++ {
		for j := 0; j < dims; j++ {
			cov.Set(i, j, cov.At(i, j)/n)
		}
		cov.Set(i, i, cov.At(i, i)+ridge)
	}
	return cov
}

// weightedCovarianceOf returns the gamma-weighted covariance of rows around
// mean, normalised by weightSum, plus ridge*I.
func weightedCovarianceOf(rows [][]float64, weights []float64, mean []float64, weightSum, ridge float64) *mat.Dense {
	dims := len(mean)
	cov := mat.NewDense(dims, dims, nil)

	for i, r := range rows {
		w := weights[i]
		diff := make([]float64, dims)
		for j := range r {
			diff[j] = r[j] - mean[j]
		}
		for a := 0; a < dims; a++ {
			for b := 0; b < dims; b++ {
				cov.Set(a, b, cov.At(a, b)+w*diff[a]*diff[b])
			}
		}
	}
	if weightSum <= 0 {
		weightSum = 1
	}
	for a := 0; a < dims; a++ {
		for b := 0; b < dims; b++ {
			cov.Set(a, b, cov.At(a, b)/weightSum)
		}
		cov.Set(a, a, cov.At(a, a)+ridge)
	}
	return cov
}
