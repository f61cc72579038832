package regime

import (
	"math"
	"math/rand"
)

// kmeansFit runs Lloyd's algorithm to convergence (or maxIter), seeded
// deterministically. Returns the fitted centers and the hard label for
// every input row.
func kmeansFit(rows [][]float64, k int, seed uint64, maxIter int) (centers [][]float64, labels []int) {
	rng := rand.New(rand.NewSource(int64(seed)))
	n := len(rows)
	dims := len(rows[0])

	perm := rng.Perm(n)
	centers = make([][]float64, k)
	for i := 0; i < k; i++ {
		centers[i] = append([]float64(nil), rows[perm[i%n]]...)
	}

	labels = make([]int, n)
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, r := range rows {
			best, bestDist := 0, sqDist(r, centers[0])
			for c := 1; c < k; c++ {
				d := sqDist(r, centers[c])
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if labels[i] != best {
				changed = true
			}
			labels[i] = best
		}

		newCenters := make([][]float64, k)
		counts := make([]int, k)
		for c := range newCenters {
			newCenters[c] = make([]float64, dims)
		}
		for i, r := range rows {
			c := labels[i]
			counts[c]++
			for j, v := range r {
				newCenters[c][j] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				newCenters[c] = centers[c]
				continue
			}
			for j := range newCenters[c] {
				newCenters[c][j] /= float64(counts[c])
			}
		}
		centers = newCenters

		if !changed && iter > 0 {
			break
		}
	}
	return centers, labels
}

func sqDist(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// assign returns the label of the nearest center to row.
func assign(row []float64, centers [][]float64) int {
	best, bestDist := 0, sqDist(row, centers[0])
	for c := 1; c < len(centers); c++ {
		d := sqDist(row, centers[c])
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// distances returns the Euclidean distance from row to every center.
func distances(row []float64, centers [][]float64) []float64 {
	out := make([]float64, len(centers))
	for c, center := range centers {
		out[c] = math.Sqrt(sqDist(row, center))
	}
	return out
}
