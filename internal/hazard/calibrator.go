// Package hazard calibrates per-regime cumulative hazard curves from
// historical depeg magnitudes and event times via Monte Carlo simulation of
// composed EVT (magnitude) and Hawkes (arrival) models.
package hazard

import (
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/aristath/depeg-risk-core/internal/evt"
	"github.com/aristath/depeg-risk-core/internal/hawkes"
	"github.com/aristath/depeg-risk-core/internal/riskconfig"
	"github.com/aristath/depeg-risk-core/internal/riskdomain"
)

// minRegimeObservations is the minimum (magnitude, event-time) pair count a
// regime needs before a model is fitted for it; below this, the calibrator
// falls back to hard-coded conservative defaults (spec.md §4.D step 1).
const minRegimeObservations = 5

// defaultRates are the conservative fallback probabilities per tenor when a
// regime has too few observations to fit EVT/Hawkes.
var defaultRates = map[riskdomain.Regime]map[int]float64{
	riskdomain.Calm:     {7: 0.0001, 30: 0.0005, 90: 0.0015},
	riskdomain.Volatile: {7: 0.0005, 30: 0.0025, 90: 0.008},
	riskdomain.Crisis:   {7: 0.002, 30: 0.01, 90: 0.035},
}

// regimeModels is the "optional absent pair" slot described in spec.md §9:
// present only when the regime had enough observations to fit.
type regimeModels struct {
	evt    *evt.Model
	hawkes *hawkes.Model
}

// Calibrator fits per-regime EVT+Hawkes pairs and simulates hazard curves.
type Calibrator struct {
	log zerolog.Logger
	cfg riskconfig.Config

	models map[riskdomain.Regime]*regimeModels
	fitted bool
}

// New constructs an unfitted calibrator.
func New(log zerolog.Logger, cfg riskconfig.Config) *Calibrator {
	return &Calibrator{
		log: log.With().Str("component", "hazard_calibrator").Logger(),
		cfg: cfg,
	}
}

// Fit fits an EVT model (0.9 threshold quantile) and a Hawkes process per
// regime that has at least minRegimeObservations (magnitude, time) pairs.
func (c *Calibrator) Fit(magnitudesBps, eventTimes []float64, regimes []riskdomain.Regime, observationPeriodDays float64) error {
	c.models = make(map[riskdomain.Regime]*regimeModels, 3)

	for _, regime := range riskdomain.All {
		var mags, times []float64
		for i, r := range regimes {
			if r == regime {
				mags = append(mags, magnitudesBps[i])
				times = append(times, eventTimes[i])
			}
		}

		if len(mags) < minRegimeObservations {
			c.log.Debug().Str("regime", regime.String()).Int("n", len(mags)).
				Msg("insufficient observations, falling back to conservative defaults")
			c.models[regime] = nil
			continue
		}

		rm := &regimeModels{}

		evtModel := evt.New(c.log)
		if _, err := evtModel.Fit(mags, 0.9, evt.MLE); err != nil {
			c.log.Warn().Str("regime", regime.String()).Err(err).Msg("EVT fit failed, regime falls back to defaults")
			c.models[regime] = nil
			continue
		}
		rm.evt = evtModel

		hawkesModel := hawkes.New(c.log)
		if _, err := hawkesModel.FitWindow(times, observationPeriodDays, hawkes.MLE); err != nil {
			c.log.Warn().Str("regime", regime.String()).Err(err).Msg("Hawkes fit failed, regime falls back to defaults")
			c.models[regime] = nil
			continue
		}
		rm.hawkes = hawkesModel

		c.models[regime] = rm
	}

	c.fitted = true
	return nil
}

// Calibrate runs the Monte Carlo simulation per regime and builds the
// resulting RegimeCurveSet.
func (c *Calibrator) Calibrate(perilID string) (riskdomain.RegimeCurveSet, error) {
	if !c.fitted {
		return riskdomain.RegimeCurveSet{}, riskdomain.ErrNotFitted
	}
	for _, t := range c.cfg.Tenors {
		if t <= 0 {
			return riskdomain.RegimeCurveSet{}, riskdomain.ErrBadArgument{Arg: "tenors", Reason: "must be positive"}
		}
	}

	curves := make(map[riskdomain.Regime]riskdomain.HazardCurve, 3)
	for _, regime := range riskdomain.All {
		probs := c.simulateProbabilities(regime)
		curves[regime] = buildCurve(regime, c.cfg.Tenors, probs)
	}

	return riskdomain.NewRegimeCurveSet(perilID, curves), nil
}

// simulateProbabilities returns, per tenor, the fraction of simulated paths
// that triggered by that tenor (spec.md §4.D steps 2-4), or the hard-coded
// conservative defaults when the regime has no fitted models.
func (c *Calibrator) simulateProbabilities(regime riskdomain.Regime) map[int]float64 {
	rm := c.models[regime]
	if rm == nil || rm.evt == nil || rm.hawkes == nil {
		return defaultRates[regime]
	}

	rng := rand.New(rand.NewSource(c.cfg.Seed + int64(regime)))

	maxTenor := c.cfg.Tenors[0]
	for _, t := range c.cfg.Tenors {
		if t > maxTenor {
			maxTenor = t
		}
	}

	triggerCounts := make(map[int]int, len(c.cfg.Tenors))
	for _, t := range c.cfg.Tenors {
		triggerCounts[t] = 0
	}

	for sim := 0; sim < c.cfg.SimulationCount; sim++ {
		pathSeed := rng.Uint64()
		eventTimes, err := rm.hawkes.Simulate(float64(maxTenor), pathSeed)
		if err != nil {
			continue
		}

		triggered := make(map[int]bool, len(c.cfg.Tenors))

		pathRng := rand.New(rand.NewSource(int64(pathSeed)))
		for _, eventTime := range eventTimes {
			magnitudeSeed := pathRng.Uint64()
			// Single EVT draw per event: the Python original samples three
			// times per event and keeps only the last (an evident accident
			// in dsrpt_risk/calibration/hazard.py, which discards the first
			// two draws), which this core does not reproduce — one sample
			// per event is what the model actually calls for.
			samples, err := rm.evt.Simulate(1, magnitudeSeed)
			if err != nil || len(samples) == 0 {
				continue
			}
			magnitudeBps := samples[0]

			depegPrice := 1 - magnitudeBps/10000
			if depegPrice >= c.cfg.TriggerThreshold {
				continue
			}

			meanDurationHours := 24 * (1 + magnitudeBps/500)
			durationHours := -meanDurationHours * math.Log(1-pathRng.Float64())
			if durationHours < float64(c.cfg.TriggerDurationHours) {
				continue
			}

			for _, tenor := range c.cfg.Tenors {
				if eventTime <= float64(tenor) {
					triggered[tenor] = true
				}
			}
		}

		for _, tenor := range c.cfg.Tenors {
			if triggered[tenor] {
				triggerCounts[tenor]++
			}
		}
	}

	probs := make(map[int]float64, len(c.cfg.Tenors))
	for _, t := range c.cfg.Tenors {
		probs[t] = float64(triggerCounts[t]) / float64(c.cfg.SimulationCount)
	}
	return probs
}

// buildCurve converts simulated trigger probabilities to the integer-scaled
// cumulative hazard curve for the fixed tenors {7,30,90}, per spec.md §4.D
// step 4.
func buildCurve(regime riskdomain.Regime, tenors []int, probs map[int]float64) riskdomain.HazardCurve {
	h := make(map[int]float64, len(tenors))
	for _, t := range tenors {
		h[t] = probabilityToHazard(probs[t])
	}

	h7 := riskdomain.ScaleHazard(h[7])
	h30 := riskdomain.ScaleHazard(h[30])
	h90 := riskdomain.ScaleHazard(h[90])

	tailSlope := riskdomain.ScaleHazard(((h[90] - h[30]) / 60) * 1.1)

	return riskdomain.HazardCurve{
		Regime:    regime,
		H7:        h7,
		H30:       h30,
		H90:       h90,
		TailSlope: tailSlope,
	}
}

// probabilityToHazard converts a trigger probability to cumulative hazard
// H(T) = -ln(1-P), capped at 10 for P>=1 and floored at 0 for P<=0.
func probabilityToHazard(p float64) float64 {
	if p >= 1 {
		return 10
	}
	if p <= 0 {
		return 0
	}
	return -math.Log(1 - p)
}
