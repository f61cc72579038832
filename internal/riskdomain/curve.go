package riskdomain

import "math/big"

// HazardScale is the fixed-point scale applied to a real-valued cumulative
// hazard before truncation to the on-chain integer representation (10^18).
var HazardScale = big.NewFloat(1e18)

// ScaleHazard converts a real-valued cumulative hazard (or any quantity
// expressed in the same units) to the truncated fixed-point integer the
// on-chain contract consumes. Truncation, not rounding, matches the
// calibrator/validator contract pinned by spec tests for fixed seeds.
//
// big.Int is used rather than int64 because a capped hazard of 10 scaled by
// 1e18 is 10^19, which overflows int64 (max ~9.22*10^18); the on-chain
// invariant ("each numeric <= 2^224-1") assumes arbitrary-precision integers.
func ScaleHazard(h float64) *big.Int {
	scaled := new(big.Float).SetFloat64(h * 1e18)
	i, _ := scaled.Int(nil)
	return i
}

// HazardCurve is the per-regime calibrated cumulative hazard at the three
// fixed tenors, plus the tail slope used to extrapolate beyond 90 days.
//
// Invariants: 0 <= H7 <= H30 <= H90 (monotonicity) and TailSlope >= 0.
type HazardCurve struct {
	Regime    Regime
	H7        *big.Int
	H30       *big.Int
	H90       *big.Int
	TailSlope *big.Int
}

// Interpolate reproduces the on-chain piecewise-linear interpolation exactly,
// including its floor (integer) division — the consuming contract matches
// this bit for bit, so no floating point may appear here. All operands are
// non-negative, so big.Int's truncating Quo is equivalent to floor division.
func (c HazardCurve) Interpolate(tenorDays int64) *big.Int {
	t := big.NewInt(tenorDays)
	switch {
	case tenorDays <= 0:
		return big.NewInt(0)
	case tenorDays <= 7:
		return new(big.Int).Quo(new(big.Int).Mul(c.H7, t), big.NewInt(7))
	case tenorDays <= 30:
		diff := new(big.Int).Sub(c.H30, c.H7)
		num := new(big.Int).Mul(diff, new(big.Int).Sub(t, big.NewInt(7)))
		return new(big.Int).Add(c.H7, new(big.Int).Quo(num, big.NewInt(23)))
	case tenorDays <= 90:
		diff := new(big.Int).Sub(c.H90, c.H30)
		num := new(big.Int).Mul(diff, new(big.Int).Sub(t, big.NewInt(30)))
		return new(big.Int).Add(c.H30, new(big.Int).Quo(num, big.NewInt(60)))
	default:
		extra := new(big.Int).Mul(c.TailSlope, new(big.Int).Sub(t, big.NewInt(90)))
		return new(big.Int).Add(c.H90, extra)
	}
}

// IsMonotone reports whether H7 <= H30 <= H90 and TailSlope >= 0.
func (c HazardCurve) IsMonotone() bool {
	return c.H7.Cmp(c.H30) <= 0 && c.H30.Cmp(c.H90) <= 0 && c.TailSlope.Sign() >= 0
}

// RegimeCurveSet binds one HazardCurve per regime to a peril identifier. One
// set exists per peril at a time; replacing it is atomic from the consumer's
// point of view (the caller swaps the whole value, never mutates fields of a
// published one).
type RegimeCurveSet struct {
	PerilID          string
	Curves           map[Regime]HazardCurve
	MinPremiumBps    int64
	MaxMultiplierBps int64
}

// NewRegimeCurveSet applies the Python original's defaults (0.25% minimum
// premium, 3.0x maximum multiplier) when constructing a curve set.
func NewRegimeCurveSet(perilID string, curves map[Regime]HazardCurve) RegimeCurveSet {
	return RegimeCurveSet{
		PerilID:          perilID,
		Curves:           curves,
		MinPremiumBps:    25,
		MaxMultiplierBps: 30000,
	}
}

// TenorPoint is one (tenorDays, hazard) pair in the on-chain tuple shape.
type TenorPoint struct {
	TenorDays int64
	Hazard    *big.Int
}

// SolidityCurve is the four-tuple shape the on-chain setCurve call expects
// for a single regime's curve.
type SolidityCurve struct {
	Points    [3]TenorPoint
	TailSlope *big.Int
}

func (c HazardCurve) toSolidityTuple() SolidityCurve {
	return SolidityCurve{
		Points: [3]TenorPoint{
			{TenorDays: 7, Hazard: c.H7},
			{TenorDays: 30, Hazard: c.H30},
			{TenorDays: 90, Hazard: c.H90},
		},
		TailSlope: c.TailSlope,
	}
}

// CurveConfig is the wire shape described in spec.md §6 Outbound, in the
// order CALM, VOLATILE, CRISIS.
type CurveConfig struct {
	PerilID          string
	MinPremiumBps    int64
	MaxMultiplierBps int64
	Regime           int64 // default regime index, always 0 (CALM)
	RegimeCurves     [3]SolidityCurve
}

// ToCurveConfig renders the set in the shape the downstream contract expects.
func (s RegimeCurveSet) ToCurveConfig() CurveConfig {
	return CurveConfig{
		PerilID:          s.PerilID,
		MinPremiumBps:    s.MinPremiumBps,
		MaxMultiplierBps: s.MaxMultiplierBps,
		Regime:           0,
		RegimeCurves: [3]SolidityCurve{
			s.Curves[Calm].toSolidityTuple(),
			s.Curves[Volatile].toSolidityTuple(),
			s.Curves[Crisis].toSolidityTuple(),
		},
	}
}
