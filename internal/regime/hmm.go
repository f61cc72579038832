package regime

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const logFloor = 1e-10

// forwardBackward runs the normalized forward-backward algorithm and returns
// alpha, beta, gamma (state occupancy), and xi (pairwise transition
// occupancy), each per-timestep normalized to sum to one (spec.md §4.C).
func forwardBackward(initial []float64, transition [][]float64, B [][]float64) (alpha, beta, gamma [][]float64, xi [][][]float64) {
	n := len(B)
	k := len(initial)

	alpha = make([][]float64, n)
	alpha[0] = make([]float64, k)
	sum := 0.0
	for s := 0; s < k; s++ {
		alpha[0][s] = initial[s] * B[0][s]
		sum += alpha[0][s]
	}
	normalizeRow(alpha[0], sum)

	for t := 1; t < n; t++ {
		alpha[t] = make([]float64, k)
		sum = 0.0
		for j := 0; j < k; j++ {
			acc := 0.0
			for i := 0; i < k; i++ {
				acc += alpha[t-1][i] * transition[i][j]
			}
			alpha[t][j] = acc * B[t][j]
			sum += alpha[t][j]
		}
		normalizeRow(alpha[t], sum)
	}

	beta = make([][]float64, n)
	beta[n-1] = make([]float64, k)
	for s := range beta[n-1] {
		beta[n-1][s] = 1
	}
	for t := n - 2; t >= 0; t-- {
		beta[t] = make([]float64, k)
		sum = 0.0
		for i := 0; i < k; i++ {
			acc := 0.0
			for j := 0; j < k; j++ {
				acc += transition[i][j] * B[t+1][j] * beta[t+1][j]
			}
			beta[t][i] = acc
			sum += acc
		}
		normalizeRow(beta[t], sum)
	}

	gamma = make([][]float64, n)
	for t := 0; t < n; t++ {
		gamma[t] = make([]float64, k)
		sum = 0.0
		for s := 0; s < k; s++ {
			gamma[t][s] = alpha[t][s] * beta[t][s]
			sum += gamma[t][s]
		}
		normalizeRow(gamma[t], sum)
	}

	xi = make([][][]float64, n-1)
	for t := 0; t < n-1; t++ {
		xi[t] = make([][]float64, k)
		sum = 0.0
		for i := 0; i < k; i++ {
			xi[t][i] = make([]float64, k)
			for j := 0; j < k; j++ {
				v := alpha[t][i] * transition[i][j] * B[t+1][j] * beta[t+1][j]
				xi[t][i][j] = v
				sum += v
			}
		}
		if sum > 0 {
			for i := 0; i < k; i++ {
				for j := 0; j < k; j++ {
					xi[t][i][j] /= sum
				}
			}
		}
	}

	return alpha, beta, gamma, xi
}

func normalizeRow(row []float64, sum float64) {
	if sum <= 0 {
		uniform := 1.0 / float64(len(row))
		for i := range row {
			row[i] = uniform
		}
		return
	}
	for i := range row {
		row[i] /= sum
	}
}

// viterbi decodes the most likely state sequence in log-space, with a
// 1e-10 additive floor standing in for log(0).
func viterbi(initial []float64, transition [][]float64, B [][]float64) (path []int, probs [][]float64) {
	n := len(B)
	k := len(initial)

	delta := make([][]float64, n)
	psi := make([][]int, n)

	delta[0] = make([]float64, k)
	for s := 0; s < k; s++ {
		delta[0][s] = math.Log(initial[s]+logFloor) + math.Log(B[0][s]+logFloor)
	}
	psi[0] = make([]int, k)

	for t := 1; t < n; t++ {
		delta[t] = make([]float64, k)
		psi[t] = make([]int, k)
		for j := 0; j < k; j++ {
			best, bestVal := 0, math.Inf(-1)
			for i := 0; i < k; i++ {
				v := delta[t-1][i] + math.Log(transition[i][j]+logFloor)
				if v > bestVal {
					best, bestVal = i, v
				}
			}
			psi[t][j] = best
			delta[t][j] = bestVal + math.Log(B[t][j]+logFloor)
		}
	}

	path = make([]int, n)
	path[n-1] = argmax(delta[n-1])
	for t := n - 2; t >= 0; t-- {
		path[t] = psi[t+1][path[t+1]]
	}

	probs = make([][]float64, n)
	for t := 0; t < n; t++ {
		rowMax := delta[t][0]
		for _, v := range delta[t] {
			if v > rowMax {
				rowMax = v
			}
		}
		row := make([]float64, k)
		sum := 0.0
		for s, v := range delta[t] {
			row[s] = math.Exp(v - rowMax)
			sum += row[s]
		}
		for s := range row {
			row[s] /= sum
		}
		probs[t] = row
	}

	return path, probs
}

func argmax(x []float64) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}

// estimateTransitionMatrix row-normalizes the consecutive-label transition
// counts of a hard-assignment label sequence.
func estimateTransitionMatrix(labels []int, k int) [][]float64 {
	counts := make([][]float64, k)
	for i := range counts {
		counts[i] = make([]float64, k)
	}
	for i := 0; i < len(labels)-1; i++ {
		counts[labels[i]][labels[i+1]]++
	}
	for i := 0; i < k; i++ {
		sum := 0.0
		for j := 0; j < k; j++ {
			sum += counts[i][j]
		}
		if sum == 0 {
			for j := 0; j < k; j++ {
				counts[i][j] = 1.0 / float64(k)
			}
			continue
		}
		for j := 0; j < k; j++ {
			counts[i][j] /= sum
		}
	}
	return counts
}

// stationaryDistribution solves (P^T - I)pi = 0 with sum(pi) = 1 by least
// squares, then clips to non-negative and renormalizes.
func stationaryDistribution(P [][]float64) []float64 {
	k := len(P)

	a := mat.NewDense(k+1, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			v := P[j][i]
			if i == j {
				v -= 1
			}
			a.Set(i, j, v)
		}
	}
	for j := 0; j < k; j++ {
		a.Set(k, j, 1)
	}

	b := mat.NewVecDense(k+1, nil)
	b.SetVec(k, 1)

	var pi mat.VecDense
	var qr mat.QR
	qr.Factorize(a)
	if err := qr.SolveVecTo(&pi, false, b); err != nil {
		uniform := make([]float64, k)
		for i := range uniform {
			uniform[i] = 1.0 / float64(k)
		}
		return uniform
	}

	out := make([]float64, k)
	sum := 0.0
	for i := 0; i < k; i++ {
		v := pi.AtVec(i)
		if v < 0 {
			v = 0
		}
		out[i] = v
		sum += v
	}
	if sum <= 0 {
		for i := range out {
			out[i] = 1.0 / float64(k)
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
