// Package hawkes fits and simulates a one-dimensional self-exciting point
// process with an exponential kernel, used to model depeg-event clustering.
package hawkes

import (
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/depeg-risk-core/internal/riskdomain"
)

// Method selects the Hawkes fitting algorithm.
type Method int

const (
	MLE Method = iota
	EM
)

const infeasible = 1e10

// Model is a one-shot fitted (or not-yet-fitted) Hawkes process. Times are
// in days from an arbitrary common origin, ascending.
type Model struct {
	log zerolog.Logger

	params *riskdomain.HawkesParams
	times  []float64
}

// New constructs an unfitted Hawkes model.
func New(log zerolog.Logger) *Model {
	return &Model{log: log.With().Str("component", "hawkes_model").Logger()}
}

// Fit estimates (lambda0, alpha, beta) from ascending event times.
func (m *Model) Fit(times []float64, method Method) (riskdomain.HawkesParams, error) {
	return m.FitWindow(times, 0, method)
}

// FitWindow is Fit with an explicit observation window T_max; when T_max is
// zero or less than the last event time, the last event time is used
// instead (matching spec.md §4.D's "total observation window").
func (m *Model) FitWindow(times []float64, tMax float64, method Method) (riskdomain.HawkesParams, error) {
	if len(times) < 3 {
		return riskdomain.HawkesParams{}, riskdomain.ErrInsufficientData{Have: len(times), Need: 3, What: "events"}
	}
	sorted := append([]float64(nil), times...)
	sort.Float64s(sorted)
	if tMax < sorted[len(sorted)-1] {
		tMax = sorted[len(sorted)-1]
	}

	var params riskdomain.HawkesParams
	var err error
	switch method {
	case MLE:
		params, err = fitMLE(sorted, tMax)
	case EM:
		params, err = fitEM(sorted, tMax)
	default:
		return riskdomain.HawkesParams{}, riskdomain.ErrBadArgument{Arg: "method", Reason: "unknown Hawkes fit method"}
	}
	if err != nil {
		return riskdomain.HawkesParams{}, err
	}
	if !params.IsStable() {
		return riskdomain.HawkesParams{}, riskdomain.ErrUnstableFit{Reason: "Hawkes fit violates alpha < beta stability requirement"}
	}

	m.times = sorted
	m.params = &params
	m.log.Debug().
		Float64("lambda0", params.Lambda0).
		Float64("alpha", params.Alpha).
		Float64("beta", params.Beta).
		Msg("fitted Hawkes process")
	return params, nil
}

// fitMLE minimises the negative log-likelihood in (log lambda0, log alpha,
// log beta), using the O(n) intensity recurrence A[i] = e^{-beta dt}(1+A[i-1]).
func fitMLE(times []float64, T float64) (riskdomain.HawkesParams, error) {
	n := float64(len(times))
	meanGap := T / n

	lambda0Init := n / (2 * T)
	alphaInit := 1 / meanGap / 4
	betaInit := 1 / meanGap

	problem := optimize.Problem{Func: func(p []float64) float64 {
		lambda0 := math.Exp(p[0])
		alpha := math.Exp(p[1])
		beta := math.Exp(p[2])
		return hawkesNegLogLikelihood(times, T, lambda0, alpha, beta)
	}}

	x0 := []float64{math.Log(lambda0Init), math.Log(alphaInit), math.Log(betaInit)}
	result, optErr := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if optErr != nil && result == nil {
		return riskdomain.HawkesParams{}, riskdomain.ErrUnstableFit{Reason: "Hawkes optimiser failed: " + optErr.Error()}
	}

	params := riskdomain.HawkesParams{
		Lambda0: math.Exp(result.X[0]),
		Alpha:   math.Exp(result.X[1]),
		Beta:    math.Exp(result.X[2]),
	}
	if math.IsNaN(params.Lambda0) || math.IsNaN(params.Alpha) || math.IsNaN(params.Beta) {
		return riskdomain.HawkesParams{}, riskdomain.ErrUnstableFit{Reason: "Hawkes MLE converged to a non-finite point"}
	}
	return params, nil
}

// hawkesNegLogLikelihood is the exact Hawkes process log-likelihood for an
// exponential kernel, computed via the compensator and the O(n) recursive
// intensity sum (Ogata 1981): A[i] = e^{-beta(t_i - t_{i-1})}(1+A[i-1]).
func hawkesNegLogLikelihood(times []float64, T, lambda0, alpha, beta float64) float64 {
	if lambda0 <= 0 || alpha < 0 || beta <= 0 || alpha >= beta {
		return infeasible
	}
	n := len(times)

	sumLogIntensity := 0.0
	A := 0.0
	sumLogIntensity += math.Log(lambda0)
	for i := 1; i < n; i++ {
		dt := times[i] - times[i-1]
		A = math.Exp(-beta*dt) * (1 + A)
		intensity := lambda0 + alpha*A
		if intensity <= 0 {
			return infeasible
		}
		sumLogIntensity += math.Log(intensity)
	}

	compensator := lambda0 * T
	for i := 0; i < n; i++ {
		compensator += (alpha / beta) * (1 - math.Exp(-beta*(T-times[i])))
	}

	return compensator - sumLogIntensity
}

// fitEM estimates parameters via expectation-maximization over the
// branching-structure responsibility matrix: the probability that event i
// was triggered by event j (or by the background) given current parameters.
func fitEM(times []float64, T float64) (riskdomain.HawkesParams, error) {
	n := len(times)

	lambda0 := float64(n) / (2 * T)
	// Inside the loop alpha is the branching ratio (kernel alpha*beta*e^{-beta dt});
	// the returned jump size is alpha*beta.
	alpha := 0.5
	beta := 1.0

	const iterations = 100
	for iter := 0; iter < iterations; iter++ {
		// E-step: responsibility of the background vs. each prior event for
		// every event i, via the exponential kernel density.
		pBackground := make([]float64, n)
		triggerWeight := make([][]float64, n)

		for i := 0; i < n; i++ {
			total := lambda0
			weights := make([]float64, i)
			for j := 0; j < i; j++ {
				dt := times[i] - times[j]
				w := alpha * beta * math.Exp(-beta*dt)
				weights[j] = w
				total += w
			}
			if total <= 0 {
				total = 1e-300
			}
			pBackground[i] = lambda0 / total
			for j := range weights {
				weights[j] /= total
			}
			triggerWeight[i] = weights
		}

		// M-step: closed-form updates from the responsibility-weighted counts.
		sumBackground := 0.0
		for _, p := range pBackground {
			sumBackground += p
		}
		newLambda0 := sumBackground / T

		sumTriggered := 0.0
		weightedDtSum := 0.0
		nTriggeredPairs := 0.0
		for i := 0; i < n; i++ {
			for j, w := range triggerWeight[i] {
				sumTriggered += w
				weightedDtSum += w * (times[i] - times[j])
				nTriggeredPairs++
			}
		}
		newAlpha := alpha
		newBeta := beta
		if sumTriggered > 1e-9 {
			newAlpha = sumTriggered / float64(n)
			if weightedDtSum > 1e-12 {
				newBeta = sumTriggered / weightedDtSum
			}
		}

		if math.Abs(newLambda0-lambda0) < 1e-9 && math.Abs(newAlpha-alpha) < 1e-9 && math.Abs(newBeta-beta) < 1e-9 {
			lambda0, alpha, beta = newLambda0, newAlpha, newBeta
			break
		}
		lambda0, alpha, beta = newLambda0, newAlpha, newBeta
	}

	if lambda0 <= 0 || alpha < 0 || beta <= 0 || math.IsNaN(lambda0) || math.IsNaN(alpha) || math.IsNaN(beta) {
		return riskdomain.HawkesParams{}, riskdomain.ErrUnstableFit{Reason: "Hawkes EM failed to converge to feasible parameters"}
	}

	return riskdomain.HawkesParams{Lambda0: lambda0, Alpha: alpha * beta, Beta: beta}, nil
}

// Intensity returns lambda(t) given the fitted process and a history of
// event times prior to t.
func (m *Model) Intensity(t float64, history []float64) (float64, error) {
	if m.params == nil {
		return 0, riskdomain.ErrNotFitted
	}
	p := *m.params
	lambda := p.Lambda0
	for _, ti := range history {
		if ti >= t {
			continue
		}
		lambda += p.Alpha * math.Exp(-p.Beta*(t-ti))
	}
	return lambda, nil
}

// IntegratedIntensity returns the compensator Lambda(0,T): the expected
// event count over [0,T] given the event history.
func (m *Model) IntegratedIntensity(T float64, history []float64) (float64, error) {
	if m.params == nil {
		return 0, riskdomain.ErrNotFitted
	}
	p := *m.params
	compensator := p.Lambda0 * T
	for _, ti := range history {
		if ti >= T {
			continue
		}
		compensator += (p.Alpha / p.Beta) * (1 - math.Exp(-p.Beta*(T-ti)))
	}
	return compensator, nil
}

// ExpectedEvents is an alias for IntegratedIntensity: the compensator equals
// the expected event count by the time-change theorem.
func (m *Model) ExpectedEvents(T float64, history []float64) (float64, error) {
	return m.IntegratedIntensity(T, history)
}

// ProbabilityNoEvents returns P(no events in (0,T]) = exp(-Lambda(0,T)).
func (m *Model) ProbabilityNoEvents(T float64, history []float64) (float64, error) {
	compensator, err := m.IntegratedIntensity(T, history)
	if err != nil {
		return 0, err
	}
	return math.Exp(-compensator), nil
}

// Simulate draws a realization over [0,T] via Ogata's thinning algorithm,
// seeded deterministically (spec.md §5: no global RNG).
func (m *Model) Simulate(T float64, seed uint64) ([]float64, error) {
	if m.params == nil {
		return nil, riskdomain.ErrNotFitted
	}
	p := *m.params
	rng := rand.New(rand.NewSource(int64(seed)))

	var events []float64
	t := 0.0
	for t < T {
		lambdaBar, err := m.Intensity(t, events)
		if err != nil {
			return nil, err
		}
		// Intensity counts only events strictly before t, so an event just
		// accepted at t adds its jump here to keep lambdaBar an upper bound.
		if k := len(events); k > 0 && events[k-1] == t {
			lambdaBar += p.Alpha
		}
		if lambdaBar <= 0 {
			lambdaBar = p.Lambda0
		}
		// Candidate inter-arrival time from an exponential with rate lambdaBar.
		w := -math.Log(rng.Float64()) / lambdaBar
		t += w
		if t >= T {
			break
		}
		lambdaAtT, err := m.Intensity(t, events)
		if err != nil {
			return nil, err
		}
		if rng.Float64() <= lambdaAtT/lambdaBar {
			events = append(events, t)
		}
	}
	return events, nil
}

// ResidualAnalysis applies the time-change theorem: the compensator
// increments between consecutive events should be i.i.d. Exponential(1) if
// the fit is correct. Reports a KS test against that null and a Ljung-Box
// test for residual autocorrelation.
func (m *Model) ResidualAnalysis(times []float64) (riskdomain.HawkesResiduals, error) {
	if m.params == nil {
		return riskdomain.HawkesResiduals{}, riskdomain.ErrNotFitted
	}
	if len(times) < 2 {
		return riskdomain.HawkesResiduals{}, riskdomain.ErrInsufficientData{Have: len(times), Need: 2, What: "events"}
	}

	sorted := append([]float64(nil), times...)
	sort.Float64s(sorted)

	residuals := make([]float64, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		lambda, err := m.IntegratedIntensity(sorted[i], sorted[:i])
		if err != nil {
			return riskdomain.HawkesResiduals{}, err
		}
		lambdaPrev, err := m.IntegratedIntensity(sorted[i-1], sorted[:i-1])
		if err != nil {
			return riskdomain.HawkesResiduals{}, err
		}
		residuals[i-1] = lambda - lambdaPrev
	}

	ks, ksP := ksExponentialTest(residuals)
	lbP := ljungBoxPValue(residuals, 10)

	mean, variance := meanVariance(residuals)

	return riskdomain.HawkesResiduals{
		KSStatistic:    ks,
		KSPValue:       ksP,
		LjungBoxPValue: lbP,
		MeanResidual:   mean,
		VarResidual:    variance,
	}, nil
}

// ksExponentialTest computes the one-sample Kolmogorov-Smirnov statistic
// against Exponential(1) and an asymptotic p-value approximation.
func ksExponentialTest(x []float64) (stat, pValue float64) {
	n := len(x)
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)

	d := 0.0
	for i, v := range sorted {
		empiricalLower := float64(i) / float64(n)
		empiricalUpper := float64(i+1) / float64(n)
		theoretical := 1 - math.Exp(-v)
		if diff := math.Abs(theoretical - empiricalLower); diff > d {
			d = diff
		}
		if diff := math.Abs(theoretical - empiricalUpper); diff > d {
			d = diff
		}
	}

	nf := math.Sqrt(float64(n))
	lambda := (nf + 0.12 + 0.11/nf) * d
	pValue = 2 * math.Exp(-2*lambda*lambda)
	if pValue > 1 {
		pValue = 1
	}
	if pValue < 0 {
		pValue = 0
	}
	return d, pValue
}

// ljungBoxPValue computes the Ljung-Box portmanteau test p-value for
// autocorrelation in x up to lag maxLag, approximated via a chi-squared
// survival function.
func ljungBoxPValue(x []float64, maxLag int) float64 {
	n := len(x)
	if n <= maxLag+1 {
		maxLag = n - 2
	}
	if maxLag < 1 {
		return 1
	}

	mean, _ := meanVariance(x)
	var denom float64
	for _, v := range x {
		denom += (v - mean) * (v - mean)
	}
	if denom == 0 {
		return 1
	}

	Q := 0.0
	for k := 1; k <= maxLag; k++ {
		var num float64
		for t := k; t < n; t++ {
			num += (x[t] - mean) * (x[t-k] - mean)
		}
		rk := num / denom
		Q += rk * rk / float64(n-k)
	}
	Q *= float64(n) * float64(n+2)

	return chiSquaredSurvival(Q, maxLag)
}

// chiSquaredSurvival approximates P(X > x) for X ~ ChiSquared(k) via the
// Wilson-Hilferty cube-root normal approximation.
func chiSquaredSurvival(x float64, k int) float64 {
	if x <= 0 {
		return 1
	}
	kf := float64(k)
	h := 2.0 / (9 * kf)
	z := (math.Pow(x/kf, 1.0/3) - (1 - h)) / math.Sqrt(h)
	return 0.5 * math.Erfc(z/math.Sqrt2)
}

func meanVariance(x []float64) (mean, variance float64) {
	n := float64(len(x))
	for _, v := range x {
		mean += v
	}
	mean /= n
	for _, v := range x {
		variance += (v - mean) * (v - mean)
	}
	variance /= n
	return mean, variance
}
