package hazard

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/depeg-risk-core/internal/riskconfig"
	"github.com/aristath/depeg-risk-core/internal/riskdomain"
)

func silentLogger() zerolog.Logger {
	return zerolog.Nop()
}

func smallConfig() riskconfig.Config {
	cfg := riskconfig.Default()
	cfg.SimulationCount = 200 // keep tests fast; determinism doesn't depend on count
	return cfg
}

func TestCalibrate_NotFitted(t *testing.T) {
	c := New(silentLogger(), smallConfig())
	_, err := c.Calibrate("USDC_depeg")
	assert.ErrorIs(t, err, riskdomain.ErrNotFitted)
}

func TestCalibrate_NoEventsUsesConservativeDefaults(t *testing.T) {
	c := New(silentLogger(), smallConfig())
	require.NoError(t, c.Fit(nil, nil, nil, 365))

	set, err := c.Calibrate("USDC_depeg")
	require.NoError(t, err)

	for _, regime := range riskdomain.All {
		curve := set.Curves[regime]
		assert.True(t, curve.IsMonotone())
		want := buildCurve(regime, smallConfig().Tenors, defaultRates[regime])
		assert.Equal(t, want.H90.String(), curve.H90.String(), "regime %s", regime)
	}
}

func TestCalibrate_ProducesMonotoneCurvesWithData(t *testing.T) {
	magnitudes := make([]float64, 0, 60)
	times := make([]float64, 0, 60)
	regimes := make([]riskdomain.Regime, 0, 60)

	for i := 0; i < 20; i++ {
		magnitudes = append(magnitudes, 50+float64(i))
		times = append(times, float64(i)*3)
		regimes = append(regimes, riskdomain.Calm)
	}
	for i := 0; i < 20; i++ {
		magnitudes = append(magnitudes, 200+float64(i)*2)
		times = append(times, float64(i)*3)
		regimes = append(regimes, riskdomain.Volatile)
	}
	for i := 0; i < 20; i++ {
		magnitudes = append(magnitudes, 500+float64(i)*5)
		times = append(times, float64(i)*3)
		regimes = append(regimes, riskdomain.Crisis)
	}

	c := New(silentLogger(), smallConfig())
	require.NoError(t, c.Fit(magnitudes, times, regimes, 60))

	set, err := c.Calibrate("USDC_depeg")
	require.NoError(t, err)

	for _, regime := range riskdomain.All {
		curve := set.Curves[regime]
		assert.True(t, curve.IsMonotone(), "regime %s curve not monotone", regime)
	}
}

func TestCalibrate_Deterministic(t *testing.T) {
	magnitudes := make([]float64, 0, 30)
	times := make([]float64, 0, 30)
	regimes := make([]riskdomain.Regime, 0, 30)
	for i := 0; i < 30; i++ {
		magnitudes = append(magnitudes, 300+float64(i))
		times = append(times, float64(i)*2)
		regimes = append(regimes, riskdomain.Crisis)
	}

	run := func() riskdomain.RegimeCurveSet {
		c := New(silentLogger(), smallConfig())
		require.NoError(t, c.Fit(magnitudes, times, regimes, 60))
		set, err := c.Calibrate("USDC_depeg")
		require.NoError(t, err)
		return set
	}

	a := run()
	b := run()
	assert.Equal(t, a.Curves[riskdomain.Crisis].H7.String(), b.Curves[riskdomain.Crisis].H7.String())
	assert.Equal(t, a.Curves[riskdomain.Crisis].H30.String(), b.Curves[riskdomain.Crisis].H30.String())
	assert.Equal(t, a.Curves[riskdomain.Crisis].H90.String(), b.Curves[riskdomain.Crisis].H90.String())
}

func TestProbabilityToHazard_CapsAndFloors(t *testing.T) {
	assert.Equal(t, 10.0, probabilityToHazard(1.0))
	assert.Equal(t, 10.0, probabilityToHazard(1.5))
	assert.Equal(t, 0.0, probabilityToHazard(0))
	assert.Equal(t, 0.0, probabilityToHazard(-0.1))
	assert.Greater(t, probabilityToHazard(0.5), 0.0)
}
