package regime

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// standardScaler fits a per-feature (mean, std) affine transform once and
// applies it to every subsequent query, matching the Python original's
// StandardScaler fit-once/transform-many contract.
type standardScaler struct {
	mean []float64
	std  []float64
}

func fitScaler(rows [][]float64) standardScaler {
	dims := len(rows[0])

	mean := make([]float64, dims)
	std := make([]float64, dims)
	column := make([]float64, len(rows))
	for j := 0; j < dims; j++ {
		for i, r := range rows {
			column[i] = r[j]
		}
		mean[j] = stat.Mean(column, nil)
		variance := stat.Variance(column, nil)
		if variance < 1e-12 || len(rows) < 2 {
			std[j] = 1
		} else {
			std[j] = math.Sqrt(variance)
		}
	}

	return standardScaler{mean: mean, std: std}
}

func (s standardScaler) transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.mean[j]) / s.std[j]
	}
	return out
}

func (s standardScaler) transformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = s.transform(r)
	}
	return out
}

func (s standardScaler) inverse(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.std[j] + s.mean[j]
	}
	return out
}
