// Package riskconfig carries the tunable knobs that cross every component of
// the risk core. It intentionally holds no file or environment loading code:
// the core has no filesystem or CLI surface of its own (spec.md §6), so a
// plain struct constructed by its caller is the entire configuration
// interface.
package riskconfig

// Config is the enumerated knob set described in spec.md §6 Inbound.
type Config struct {
	// TriggerThreshold is the price below which a depeg is considered
	// triggering, e.g. 0.97 for a 3% depeg.
	TriggerThreshold float64
	// TriggerDurationHours is the minimum dwell time below TriggerThreshold
	// for an event to count as a trigger.
	TriggerDurationHours int
	// Tenors are the fixed policy horizons, in days, the hazard calibrator
	// solves for. The first three are load-bearing (7/30/90 are assumed by
	// the interpolation contract); additional tenors may be appended.
	Tenors []int
	// SimulationCount is the number of Monte Carlo paths per regime.
	SimulationCount int
	// NumRegimes is the number of latent regimes the classifier fits.
	NumRegimes int
	// ValidatorTolerance is the maximum acceptable expected-loss drift
	// before the validator flags a curve.
	ValidatorTolerance float64
	// Seed is the base seed for every stochastic routine. Per-regime runs
	// derive their own seed from Seed + regime code (spec.md §4.D).
	Seed int64
}

// Default returns the configuration described in spec.md §6: 0.97 trigger
// threshold, 24h dwell, tenors {7,30,90}, 10000 simulations, 3 regimes, 5%
// validator tolerance.
func Default() Config {
	return Config{
		TriggerThreshold:     0.97,
		TriggerDurationHours: 24,
		Tenors:               []int{7, 30, 90},
		SimulationCount:      10000,
		NumRegimes:           3,
		ValidatorTolerance:   0.05,
		Seed:                 42,
	}
}
