package hawkes

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

func TestFit_InsufficientData(t *testing.T) {
	m := New(silentLogger())
	_, err := m.Fit([]float64{1, 2}, MLE)
	require.Error(t, err)
	var insufficient riskdomain.ErrInsufficientData
	assert.ErrorAs(t, err, &insufficient)
}

func TestFit_MLEProducesStableParams(t *testing.T) {
	times := []float64{1, 2, 2.1, 5, 5.2, 5.3, 9, 15, 15.1, 20, 21, 22, 30, 31, 45}
	m := New(silentLogger())
	params, err := m.Fit(times, MLE)
	require.NoError(t, err)
	assert.Greater(t, params.Lambda0, 0.0)
	assert.GreaterOrEqual(t, params.Alpha, 0.0)
	assert.Greater(t, params.Beta, 0.0)
}

func TestFit_EMProducesFeasibleParams(t *testing.T) {
	times := []float64{1, 2, 2.1, 5, 5.2, 5.3, 9, 15, 15.1, 20, 21, 22, 30, 31, 45}
	m := New(silentLogger())
	params, err := m.Fit(times, EM)
	require.NoError(t, err)
	assert.Greater(t, params.Lambda0, 0.0)
	assert.Greater(t, params.Beta, 0.0)
}

func TestIntensity_NotFitted(t *testing.T) {
	m := New(silentLogger())
	_, err := m.Intensity(1.0, nil)
	assert.ErrorIs(t, err, riskdomain.ErrNotFitted)
}

func TestIntensity_JumpsAtEventsThenDecays(t *testing.T) {
	times := []float64{1, 2, 2.1, 5, 9, 15, 20, 21, 30, 45, 50, 55, 60, 61, 70}
	m := New(silentLogger())
	_, err := m.Fit(times, MLE)
	require.NoError(t, err)

	before, err := m.Intensity(1.999, []float64{1})
	require.NoError(t, err)
	justAfter, err := m.Intensity(2.001, []float64{1, 2})
	require.NoError(t, err)
	later, err := m.Intensity(10, []float64{1, 2})
	require.NoError(t, err)

	assert.Greater(t, justAfter, before)
	assert.Less(t, later, justAfter)
}

func TestBranchingRatio_StabilityInvariant(t *testing.T) {
	stable := riskdomain.HawkesParams{Lambda0: 1, Alpha: 0.5, Beta: 2}
	assert.True(t, stable.IsStable())
	assert.Less(t, stable.BranchingRatio(), 1.0)

	unstable := riskdomain.HawkesParams{Lambda0: 1, Alpha: 3, Beta: 2}
	assert.False(t, unstable.IsStable())
	assert.True(t, math.IsInf(unstable.MeanIntensity(), 1))
}

func TestHawkesNegLogLikelihood_InfeasibleWhenAlphaExceedsBeta(t *testing.T) {
	times := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, infeasible, hawkesNegLogLikelihood(times, 10, 1, 2, 1))
	assert.Equal(t, infeasible, hawkesNegLogLikelihood(times, 10, 1, 2, 2))
	assert.Less(t, hawkesNegLogLikelihood(times, 10, 1, 0.5, 2), infeasible)
}

func TestFitWindow_UnknownMethodIsBadArgument(t *testing.T) {
	m := New(silentLogger())
	_, err := m.FitWindow([]float64{1, 2, 3}, 10, Method(99))
	require.Error(t, err)
	var bad riskdomain.ErrBadArgument
	assert.ErrorAs(t, err, &bad)
}

func TestIntegratedIntensity_EqualsExpectedEvents(t *testing.T) {
	times := []float64{1, 2, 2.1, 5, 9, 15, 20, 21, 30, 45}
	m := New(silentLogger())
	_, err := m.Fit(times, MLE)
	require.NoError(t, err)

	compensator, err := m.IntegratedIntensity(50, times)
	require.NoError(t, err)
	expected, err := m.ExpectedEvents(50, times)
	require.NoError(t, err)
	assert.Equal(t, compensator, expected)
}

func TestProbabilityNoEvents_DecreasesWithHorizon(t *testing.T) {
	times := []float64{1, 2, 2.1, 5, 9, 15, 20, 21, 30, 45}
	m := New(silentLogger())
	_, err := m.Fit(times, MLE)
	require.NoError(t, err)

	p1, err := m.ProbabilityNoEvents(1, nil)
	require.NoError(t, err)
	p10, err := m.ProbabilityNoEvents(10, nil)
	require.NoError(t, err)
	assert.Greater(t, p1, p10)
}

func TestSimulate_Deterministic(t *testing.T) {
	times := []float64{1, 2, 2.1, 5, 9, 15, 20, 21, 30, 45}
	m := New(silentLogger())
	_, err := m.Fit(times, MLE)
	require.NoError(t, err)

	a, err := m.Simulate(100, 7)
	require.NoError(t, err)
	b, err := m.Simulate(100, 7)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSimulate_EventsWithinHorizonAndAscending(t *testing.T) {
	times := []float64{1, 2, 2.1, 5, 9, 15, 20, 21, 30, 45}
	m := New(silentLogger())
	_, err := m.Fit(times, MLE)
	require.NoError(t, err)

	events, err := m.Simulate(50, 3)
	require.NoError(t, err)
	for i, e := range events {
		assert.Less(t, e, 50.0)
		if i > 0 {
			assert.Greater(t, e, events[i-1])
		}
	}
}

func TestResidualAnalysis_NotFitted(t *testing.T) {
	m := New(silentLogger())
	_, err := m.ResidualAnalysis([]float64{1, 2, 3})
	assert.ErrorIs(t, err, riskdomain.ErrNotFitted)
}

func TestResidualAnalysis_ReturnsFiniteStatistics(t *testing.T) {
	times := []float64{1, 2, 2.1, 5, 9, 15, 20, 21, 30, 45, 50, 55, 60, 65, 70}
	m := New(silentLogger())
	_, err := m.Fit(times, MLE)
	require.NoError(t, err)

	residuals, err := m.ResidualAnalysis(times)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(residuals.KSStatistic))
	assert.GreaterOrEqual(t, residuals.KSPValue, 0.0)
	assert.LessOrEqual(t, residuals.KSPValue, 1.0)
	assert.GreaterOrEqual(t, residuals.LjungBoxPValue, 0.0)
}
