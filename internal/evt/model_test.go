package evt

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/depeg-risk-core/internal/riskdomain"
)

func silentLogger() zerolog.Logger {
	return zerolog.Nop()
}

// syntheticExponentialTail builds a series whose upper tail is exactly
// exponential (xi=0), so a correctly fitted GPD should report a shape close
// to zero and a scale close to the generating rate's reciprocal.
func syntheticExponentialTail(n int, seed uint64) []float64 {
	rng := deterministicRand(seed)
	out := make([]float64, n)
	for i := range out {
		out[i] = -math.Log(1-rng()) * 0.01 // rate 100
	}
	return out
}

func deterministicRand(seed uint64) func() float64 {
	state := seed
	return func() float64 {
		state = state*6364136223846793005 + 1442695040888963407
		return float64(state>>11) / float64(1<<53)
	}
}

func TestFit_InsufficientData(t *testing.T) {
	m := New(silentLogger())
	_, err := m.Fit([]float64{1, 2, 3}, 0.95, MLE)
	require.Error(t, err)
	var insufficient riskdomain.ErrInsufficientData
	assert.ErrorAs(t, err, &insufficient)
}

func TestFit_BadThresholdQuantile(t *testing.T) {
	m := New(silentLogger())
	_, err := m.Fit(make([]float64, 100), 0.5, MLE)
	require.Error(t, err)
}

func TestFit_MLEAndPWMAgreeRoughly(t *testing.T) {
	data := syntheticExponentialTail(2000, 7)

	mleModel := New(silentLogger())
	mleParams, err := mleModel.Fit(data, 0.95, MLE)
	require.NoError(t, err)

	pwmModel := New(silentLogger())
	pwmParams, err := pwmModel.Fit(data, 0.95, PWM)
	require.NoError(t, err)

	assert.InDelta(t, mleParams.Xi, pwmParams.Xi, 0.5)
	assert.Greater(t, mleParams.Beta, 0.0)
	assert.Greater(t, pwmParams.Beta, 0.0)
}

func TestTailProbability_MonotoneDecreasing(t *testing.T) {
	data := syntheticExponentialTail(2000, 11)
	m := New(silentLogger())
	_, err := m.Fit(data, 0.95, MLE)
	require.NoError(t, err)

	prev := 1.0
	for _, x := range []float64{0.01, 0.05, 0.1, 0.2, 0.5} {
		p, err := m.TailProbability(x)
		require.NoError(t, err)
		assert.LessOrEqual(t, p, prev)
		prev = p
	}
}

func TestTailProbability_NotFitted(t *testing.T) {
	m := New(silentLogger())
	_, err := m.TailProbability(1.0)
	assert.ErrorIs(t, err, riskdomain.ErrNotFitted)
}

func TestValueAtRisk_IncreasesWithAlpha(t *testing.T) {
	data := syntheticExponentialTail(2000, 13)
	m := New(silentLogger())
	_, err := m.Fit(data, 0.95, MLE)
	require.NoError(t, err)

	v95, err := m.ValueAtRisk(0.95)
	require.NoError(t, err)
	v99, err := m.ValueAtRisk(0.99)
	require.NoError(t, err)
	assert.Greater(t, v99, v95)
}

func TestExpectedShortfall_ExceedsVaR(t *testing.T) {
	data := syntheticExponentialTail(2000, 17)
	m := New(silentLogger())
	_, err := m.Fit(data, 0.95, MLE)
	require.NoError(t, err)

	v, err := m.ValueAtRisk(0.99)
	require.NoError(t, err)
	es, err := m.ExpectedShortfall(0.99)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, es, v)
}

func TestSimulate_Deterministic(t *testing.T) {
	data := syntheticExponentialTail(2000, 19)
	m := New(silentLogger())
	_, err := m.Fit(data, 0.95, MLE)
	require.NoError(t, err)

	a, err := m.Simulate(100, 42)
	require.NoError(t, err)
	b, err := m.Simulate(100, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := m.Simulate(100, 43)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestFitBlockMaxima_RequiresTwoBlocks(t *testing.T) {
	m := New(silentLogger())
	_, err := m.FitBlockMaxima(make([]float64, 5), 10)
	require.Error(t, err)
}

func TestFitBlockMaxima_ProducesFiniteParams(t *testing.T) {
	data := syntheticExponentialTail(3000, 23)
	m := New(silentLogger())
	gev, err := m.FitBlockMaxima(data, 30)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(gev.Xi))
	assert.Greater(t, gev.Sigma, 0.0)
}

func TestDiagnosticPlots_NotFitted(t *testing.T) {
	m := New(silentLogger())
	_, err := m.DiagnosticPlots()
	assert.ErrorIs(t, err, riskdomain.ErrNotFitted)
}

func TestDiagnosticPlots_ReasonableQQCorrelation(t *testing.T) {
	data := syntheticExponentialTail(3000, 29)
	m := New(silentLogger())
	_, err := m.Fit(data, 0.95, MLE)
	require.NoError(t, err)

	diag, err := m.DiagnosticPlots()
	require.NoError(t, err)
	assert.Greater(t, diag.QQCorrelation, 0.8)
	assert.Equal(t, diag.NExcesses, len(m.excesses))
}
