// Package validator decides whether a calibrated RegimeCurveSet is safe to
// publish: monotonicity, calibration drift against a parametric payout
// model, and (when historical data is supplied) a Brier score.
package validator

import (
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/depeg-risk-core/internal/riskdomain"
)

const hazardScaleFloat = 1e18

// PayoutCurve mirrors the on-chain parametric payout formula used to check
// expected-loss consistency: severity_factor^exponent * duration_factor.
type PayoutCurve struct {
	MaxDeviationBps  float64
	ThresholdHours   float64
	SeverityExponent float64
}

// DefaultPayoutCurve matches the Python original's defaults.
func DefaultPayoutCurve() PayoutCurve {
	return PayoutCurve{MaxDeviationBps: 3000, ThresholdHours: 168, SeverityExponent: 2}
}

// Result is the per-regime validation outcome.
type Result struct {
	IsValid           bool
	MonotonicityCheck bool
	BrierScore        float64
	CalibrationDrift  float64
	ExpectedLossRatio float64
	Warnings          []string
}

// Validator checks calibrated curves against a payout model and, when
// available, historical trigger data.
type Validator struct {
	log         zerolog.Logger
	payoutCurve PayoutCurve
	tolerance   float64
}

// New constructs a Validator with the given drift tolerance (spec.md §6
// default 0.05) and the standard payout curve.
func New(log zerolog.Logger, tolerance float64) *Validator {
	return &Validator{
		log:         log.With().Str("component", "curve_validator").Logger(),
		payoutCurve: DefaultPayoutCurve(),
		tolerance:   tolerance,
	}
}

// HistoricalEvent is one backtest observation: the tenor (days) at which a
// trigger occurred.
type HistoricalEvent struct {
	TenorDays float64
}

// Validate checks every regime's curve in the set.
func (v *Validator) Validate(set riskdomain.RegimeCurveSet, historical []HistoricalEvent, nSimulations int) map[riskdomain.Regime]Result {
	results := make(map[riskdomain.Regime]Result, 3)
	for _, regime := range riskdomain.All {
		results[regime] = v.validateSingle(set.Curves[regime], historical, nSimulations)
	}
	return results
}

func (v *Validator) validateSingle(curve riskdomain.HazardCurve, historical []HistoricalEvent, nSimulations int) Result {
	var warnings []string

	monotonic := curve.IsMonotone()
	if !monotonic {
		warnings = append(warnings, "hazard curve is not monotonically increasing")
	}

	brier := 0.0
	if historical != nil {
		brier = v.computeBrierScore(curve, historical)
		if brier > 0.1 {
			warnings = append(warnings, fmt.Sprintf("high Brier score: %.4f", brier))
		}
	}

	elRatio, drift := v.checkExpectedLoss(curve, nSimulations)
	if drift > v.tolerance {
		warnings = append(warnings, fmt.Sprintf("calibration drift %.2f%% exceeds tolerance %.2f%%", drift*100, v.tolerance*100))
	}

	isValid := monotonic && drift <= v.tolerance

	return Result{
		IsValid:           isValid,
		MonotonicityCheck: monotonic,
		BrierScore:        brier,
		CalibrationDrift:  drift,
		ExpectedLossRatio: elRatio,
		Warnings:          warnings,
	}
}

// computeBrierScore compares the curve's interpolated trigger probability
// against the empirical trigger rate at each of the three fixed tenors.
func (v *Validator) computeBrierScore(curve riskdomain.HazardCurve, historical []HistoricalEvent) float64 {
	tenors := []int64{7, 30, 90}
	errors := make([]float64, 0, len(tenors))

	for _, tenor := range tenors {
		H := hazardAt(curve, tenor)
		predicted := 1 - math.Exp(-H)

		actual := 0.0
		if len(historical) > 0 {
			count := 0
			for _, e := range historical {
				if e.TenorDays <= float64(tenor) {
					count++
				}
			}
			actual = float64(count) / float64(len(historical))
		}

		errors = append(errors, (predicted-actual)*(predicted-actual))
	}

	sum := 0.0
	for _, e := range errors {
		sum += e
	}
	return sum / float64(len(errors))
}

// checkExpectedLoss compares the curve's implied expected loss at the
// 30-day tenor against a Monte-Carlo expected loss under the parametric
// payout model, seeded deterministically (spec.md §5).
func (v *Validator) checkExpectedLoss(curve riskdomain.HazardCurve, nSimulations int) (elRatio, drift float64) {
	const policyLimit = 100000.0
	const tenor = 30

	H := hazardAt(curve, tenor)
	curveEL := policyLimit * H
	triggerProb := 1 - math.Exp(-H)

	rng := rand.New(rand.NewSource(42))

	totalPayout := 0.0
	for i := 0; i < nSimulations; i++ {
		if rng.Float64() >= triggerProb {
			continue
		}
		depegBps := -500 * math.Log(1-rng.Float64())
		if depegBps > v.payoutCurve.MaxDeviationBps {
			depegBps = v.payoutCurve.MaxDeviationBps
		}
		durationHours := -48 * math.Log(1-rng.Float64())
		if durationHours > v.payoutCurve.ThresholdHours*2 {
			durationHours = v.payoutCurve.ThresholdHours * 2
		}
		totalPayout += v.calculatePayout(policyLimit, depegBps, durationHours)
	}
	simulatedEL := totalPayout / float64(nSimulations)

	if simulatedEL > 0 {
		elRatio = curveEL / simulatedEL
		drift = math.Abs(elRatio - 1)
	} else {
		elRatio = 1.0
		drift = 0.0
	}
	return elRatio, drift
}

// calculatePayout applies the on-chain parametric payout formula:
// limit * severity_factor^exponent * duration_factor.
func (v *Validator) calculatePayout(policyLimit, depegBps, durationHours float64) float64 {
	pc := v.payoutCurve

	rawFactor := depegBps / pc.MaxDeviationBps
	if rawFactor > 1 {
		rawFactor = 1
	}
	severityFactor := math.Pow(rawFactor, pc.SeverityExponent)

	durationFactor := durationHours / pc.ThresholdHours
	if durationFactor > 1 {
		durationFactor = 1
	}

	return policyLimit * severityFactor * durationFactor
}

// hazardAt returns the real-valued (unscaled) hazard at tenor from a curve.
// Converting back through float64 is safe here: hazards are capped at 10
// before scaling, so the scaled value never approaches float64's range
// limits.
func hazardAt(curve riskdomain.HazardCurve, tenor int64) float64 {
	scaled := curve.Interpolate(tenor)
	f, _ := new(big.Float).SetInt(scaled).Float64()
	return f / hazardScaleFloat
}

// GenerateReport renders the human-readable validation summary.
func GenerateReport(results map[riskdomain.Regime]Result) string {
	var b strings.Builder
	sep := strings.Repeat("=", 60)

	b.WriteString(sep + "\n")
	b.WriteString("HAZARD CURVE VALIDATION REPORT\n")
	b.WriteString(sep + "\n\n")

	allValid := true
	for _, regime := range riskdomain.All {
		result, ok := results[regime]
		if !ok {
			continue
		}
		allValid = allValid && result.IsValid

		status := "PASS"
		if !result.IsValid {
			status = "FAIL"
		}
		monotonicity := "OK"
		if !result.MonotonicityCheck {
			monotonicity = "FAIL"
		}

		fmt.Fprintf(&b, "Regime: %s\n", regime.String())
		fmt.Fprintf(&b, "  Status: %s\n", status)
		fmt.Fprintf(&b, "  Monotonicity: %s\n", monotonicity)
		fmt.Fprintf(&b, "  Brier Score: %.4f\n", result.BrierScore)
		fmt.Fprintf(&b, "  Calibration Drift: %.2f%%\n", result.CalibrationDrift*100)
		fmt.Fprintf(&b, "  EL Ratio: %.2f\n", result.ExpectedLossRatio)

		if len(result.Warnings) > 0 {
			b.WriteString("  Warnings:\n")
			for _, w := range result.Warnings {
				fmt.Fprintf(&b, "    - %s\n", w)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(sep + "\n")
	status := "PASS"
	if !allValid {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "OVERALL: %s\n", status)
	b.WriteString(sep + "\n")

	return b.String()
}
