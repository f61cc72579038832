package riskdomain

import "math"

// HawkesParams are the fitted parameters of a univariate Hawkes process with
// exponential kernel lambda(t) = Lambda0 + Alpha * sum_i exp(-Beta*(t-t_i)).
//
// Stability invariant: Alpha < Beta (branching ratio Alpha/Beta < 1). A fit
// that violates this is rejected by the fitting routine before it ever
// becomes a HawkesParams value.
type HawkesParams struct {
	Lambda0 float64 // baseline intensity, events/day
	Alpha   float64 // excitation jump size
	Beta    float64 // decay rate per day
}

// BranchingRatio is Alpha/Beta; values >= 1 indicate an unstable (explosive)
// process.
func (p HawkesParams) BranchingRatio() float64 {
	if p.Beta <= 0 {
		return math.Inf(1)
	}
	return p.Alpha / p.Beta
}

// MeanIntensity is the unconditional mean intensity Lambda0/(1-BranchingRatio),
// infinite when the process is not stable.
func (p HawkesParams) MeanIntensity() float64 {
	br := p.BranchingRatio()
	if br >= 1 {
		return math.Inf(1)
	}
	return p.Lambda0 / (1 - br)
}

// IsStable reports whether the branching ratio is strictly below 1.
func (p HawkesParams) IsStable() bool {
	return p.BranchingRatio() < 1
}

// HawkesResiduals summarizes the goodness-of-fit residual analysis: the
// compensator-transformed inter-arrival times should be i.i.d. Exponential(1)
// under a correctly specified model.
type HawkesResiduals struct {
	KSStatistic    float64
	KSPValue       float64
	LjungBoxPValue float64 // lag reduced to n-2 for 11 or fewer residuals; 1 when fewer than 3
	MeanResidual   float64
	VarResidual    float64
}
