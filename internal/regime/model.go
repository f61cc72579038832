// Package regime classifies standardized feature windows into the three
// ordered market regimes (CALM, VOLATILE, CRISIS) via k-means or an HMM
// fitted with Baum-Welch, and decodes sequences with Viterbi.
package regime

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/depeg-risk-core/internal/riskdomain"
)

// Method selects the regime classifier's fitting algorithm.
type Method int

const (
	KMeans Method = iota
	HMM
)

const covarianceRidge = 0.01
const baumWelchIterations = 50

// Classifier is a one-shot fitted (or not-yet-fitted) regime classifier.
type Classifier struct {
	log      zerolog.Logger
	nRegimes int

	fitted bool
	scaler standardScaler

	useHMM bool

	// k-means state
	kmeansCenters [][]float64

	// HMM state
	initialProbs     []float64
	transitionMatrix [][]float64
	emissionMeans    [][]float64
	emissionCovs     []*mat.Dense

	// stateToRegime[internal state index] = externally visible regime,
	// permuted ascending by first-feature centroid/mean (spec.md §4.C).
	stateToRegime []riskdomain.Regime
}

// New constructs an unfitted classifier for nRegimes latent states.
func New(log zerolog.Logger, nRegimes int) *Classifier {
	return &Classifier{
		log:      log.With().Str("component", "regime_classifier").Logger(),
		nRegimes: nRegimes,
	}
}

// Fit standardizes features once and fits the chosen model.
func (c *Classifier) Fit(features []riskdomain.FeatureRow, method Method, seed uint64) error {
	if len(features) < c.nRegimes {
		return riskdomain.ErrInsufficientData{Have: len(features), Need: c.nRegimes, What: "feature windows"}
	}

	rows := make([][]float64, len(features))
	for i, f := range features {
		rows[i] = f.AsSlice()
	}
	c.scaler = fitScaler(rows)
	scaled := c.scaler.transformAll(rows)

	switch method {
	case KMeans:
		if err := c.fitKMeans(scaled, seed); err != nil {
			return err
		}
	case HMM:
		if err := c.fitHMM(scaled, seed); err != nil {
			return err
		}
	default:
		return riskdomain.ErrBadArgument{Arg: "method", Reason: "unknown regime fit method"}
	}

	c.fitted = true
	c.log.Debug().Int("n_windows", len(features)).Bool("hmm", c.useHMM).Msg("fitted regime classifier")
	return nil
}

func (c *Classifier) fitKMeans(scaled [][]float64, seed uint64) error {
	centers, labels := kmeansFit(scaled, c.nRegimes, seed, 300)
	c.kmeansCenters = centers
	c.stateToRegime = riskOrderedRegimes(centers)

	trans := estimateTransitionMatrix(labels, c.nRegimes)
	c.transitionMatrix = trans
	c.initialProbs = stationaryDistribution(trans)
	c.useHMM = false
	return nil
}

func (c *Classifier) fitHMM(scaled [][]float64, seed uint64) error {
	dims := len(scaled[0])
	centers, labels := kmeansFit(scaled, c.nRegimes, seed, 300)

	means := make([][]float64, c.nRegimes)
	for i, ct := range centers {
		means[i] = append([]float64(nil), ct...)
	}

	covs := make([]*mat.Dense, c.nRegimes)
	for k := 0; k < c.nRegimes; k++ {
		var cluster [][]float64
		for i, l := range labels {
			if l == k {
				cluster = append(cluster, scaled[i])
			}
		}
		covs[k] = covarianceOf(cluster, means[k], covarianceRidge)
	}

	transition := estimateTransitionMatrix(labels, c.nRegimes)
	initial := stationaryDistribution(transition)

	for iter := 0; iter < baumWelchIterations; iter++ {
		B := emissionMatrix(scaled, means, covs)
		_, _, gamma, xi := forwardBackward(initial, transition, B)

		for k := 0; k < c.nRegimes; k++ {
			weightSum := 0.0
			for _, g := range gamma {
				weightSum += g[k]
			}
			if weightSum <= 0 {
				continue
			}

			newMean := make([]float64, dims)
			weights := make([]float64, len(scaled))
			for i, g := range gamma {
				weights[i] = g[k]
				for j, v := range scaled[i] {
					newMean[j] += g[k] * v
				}
			}
			for j := range newMean {
				newMean[j] /= weightSum
			}
			means[k] = newMean
			covs[k] = weightedCovarianceOf(scaled, weights, newMean, weightSum, covarianceRidge)
		}

		newTransition := make([][]float64, c.nRegimes)
		for i := 0; i < c.nRegimes; i++ {
			newTransition[i] = make([]float64, c.nRegimes)
			denom := 0.0
			for t := 0; t < len(gamma)-1; t++ {
				denom += gamma[t][i]
			}
			if denom <= 0 {
				newTransition[i] = transition[i]
				continue
			}
			for j := 0; j < c.nRegimes; j++ {
				num := 0.0
				for t := range xi {
					num += xi[t][i][j]
				}
				newTransition[i][j] = num / denom
			}
		}
		transition = newTransition
		initial = append([]float64(nil), gamma[0]...)
	}

	c.emissionMeans = means
	c.emissionCovs = covs
	c.transitionMatrix = transition
	c.initialProbs = initial
	c.stateToRegime = riskOrderedRegimes(means)
	c.useHMM = true
	return nil
}

// riskOrderedRegimes permutes cluster/state indices to regimes by ascending
// first-feature (volatility) value, per spec.md §4.C.
func riskOrderedRegimes(centers [][]float64) []riskdomain.Regime {
	n := len(centers)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < n; i++ {
		for j := i; j > 0 && centers[idx[j]][0] < centers[idx[j-1]][0]; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	regimeOf := make([]riskdomain.Regime, n)
	for rank, origIdx := range idx {
		regimeOf[origIdx] = riskdomain.All[rank]
	}
	return regimeOf
}

// Classify maps a single feature row to its regime and confidence.
func (c *Classifier) Classify(f riskdomain.FeatureRow) (riskdomain.RegimeState, error) {
	if !c.fitted {
		return riskdomain.RegimeState{}, riskdomain.ErrNotFitted
	}
	row := c.scaler.transform(f.AsSlice())

	var probs []float64
	if c.useHMM {
		probs = emissionProbability(row, c.emissionMeans, c.emissionCovs)
	} else {
		d := distances(row, c.kmeansCenters)
		probs = softmaxNegative(d)
	}

	bestState, bestProb := 0, probs[0]
	for s := 1; s < len(probs); s++ {
		if probs[s] > bestProb {
			bestState, bestProb = s, probs[s]
		}
	}

	featureMap := map[string]float64{
		"volatility_bps":    f.VolatilityBps,
		"max_drawdown_bps":  f.MaxDrawdownBps,
		"peg_deviation_bps": f.PegDeviationBps,
		"price_range_bps":   f.PriceRangeBps,
	}

	var transitionProbs map[riskdomain.Regime]float64
	if c.transitionMatrix != nil {
		transitionProbs = make(map[riskdomain.Regime]float64, c.nRegimes)
		for j := 0; j < c.nRegimes; j++ {
			transitionProbs[c.stateToRegime[j]] = c.transitionMatrix[bestState][j]
		}
	}

	return riskdomain.RegimeState{
		Regime:          c.stateToRegime[bestState],
		Confidence:      bestProb,
		Features:        featureMap,
		TransitionProbs: transitionProbs,
	}, nil
}

// ClassifySequence decodes a whole sequence: hard per-point argmax for
// k-means, Viterbi (log-space) for the HMM.
func (c *Classifier) ClassifySequence(features []riskdomain.FeatureRow) ([]riskdomain.Regime, [][]float64, error) {
	if !c.fitted {
		return nil, nil, riskdomain.ErrNotFitted
	}
	rows := make([][]float64, len(features))
	for i, f := range features {
		rows[i] = c.scaler.transform(f.AsSlice())
	}

	if !c.useHMM {
		labels := make([]int, len(rows))
		probs := make([][]float64, len(rows))
		regimes := make([]riskdomain.Regime, len(rows))
		for i, r := range rows {
			labels[i] = assign(r, c.kmeansCenters)
			probs[i] = make([]float64, c.nRegimes)
			probs[i][labels[i]] = 1.0
			regimes[i] = c.stateToRegime[labels[i]]
		}
		return regimes, probs, nil
	}

	path, probs := viterbi(c.initialProbs, c.transitionMatrix, emissionMatrix(rows, c.emissionMeans, c.emissionCovs))
	regimes := make([]riskdomain.Regime, len(path))
	for i, p := range path {
		regimes[i] = c.stateToRegime[p]
	}
	return regimes, probs, nil
}

// TransitionProbability returns P(to | from) from the fitted transition
// matrix.
func (c *Classifier) TransitionProbability(from, to riskdomain.Regime) (float64, error) {
	if c.transitionMatrix == nil {
		return 0, riskdomain.ErrNotFitted
	}
	fromState, toState := -1, -1
	for s, r := range c.stateToRegime {
		if r == from {
			fromState = s
		}
		if r == to {
			toState = s
		}
	}
	if fromState < 0 || toState < 0 {
		return 0, riskdomain.ErrBadArgument{Arg: "regime", Reason: "regime not present in fitted classifier"}
	}
	return c.transitionMatrix[fromState][toState], nil
}

// Centroid returns a regime's feature centroid (the k-means center, or the
// HMM emission mean) un-standardized back into the original bps units, for
// reporting and diagnostics.
func (c *Classifier) Centroid(r riskdomain.Regime) (riskdomain.FeatureRow, error) {
	if !c.fitted {
		return riskdomain.FeatureRow{}, riskdomain.ErrNotFitted
	}
	state := -1
	for s, regime := range c.stateToRegime {
		if regime == r {
			state = s
		}
	}
	if state < 0 {
		return riskdomain.FeatureRow{}, riskdomain.ErrBadArgument{Arg: "regime", Reason: "regime not present in fitted classifier"}
	}

	var standardized []float64
	if c.useHMM {
		standardized = c.emissionMeans[state]
	} else {
		standardized = c.kmeansCenters[state]
	}
	if len(standardized) != riskdomain.NumFeatures {
		return riskdomain.FeatureRow{}, riskdomain.ErrBadArgument{Arg: "centroid", Reason: "unexpected feature dimensionality"}
	}

	return riskdomain.FeatureRowFromSlice(c.scaler.inverse(standardized)), nil
}

func softmaxNegative(d []float64) []float64 {
	out := make([]float64, len(d))
	sum := 0.0
	for i, v := range d {
		out[i] = math.Exp(-v)
		sum += out[i]
	}
	if sum <= 0 {
		uniform := 1.0 / float64(len(d))
		for i := range out {
			out[i] = uniform
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func emissionProbability(x []float64, means [][]float64, covs []*mat.Dense) []float64 {
	probs := make([]float64, len(means))
	sum := 0.0
	for k := range means {
		probs[k] = multivariateNormalPDF(x, means[k], covs[k])
		sum += probs[k]
	}
	if sum <= 0 {
		uniform := 1.0 / float64(len(means))
		for k := range probs {
			probs[k] = uniform
		}
		return probs
	}
	for k := range probs {
		probs[k] /= sum
	}
	return probs
}

func emissionMatrix(rows [][]float64, means [][]float64, covs []*mat.Dense) [][]float64 {
	B := make([][]float64, len(rows))
	for i, r := range rows {
		B[i] = emissionProbability(r, means, covs)
	}
	return B
}
