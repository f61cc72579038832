package regime

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

func syntheticFeatures(n int, calmUntil, crisisFrom int) []riskdomain.FeatureRow {
	rows := make([]riskdomain.FeatureRow, n)
	for i := 0; i < n; i++ {
		switch {
		case i < calmUntil:
			rows[i] = riskdomain.FeatureRow{VolatilityBps: 5, MaxDrawdownBps: 2, PegDeviationBps: 1, PriceRangeBps: 3}
		case i >= crisisFrom:
			rows[i] = riskdomain.FeatureRow{VolatilityBps: 500, MaxDrawdownBps: 400, PegDeviationBps: 300, PriceRangeBps: 350}
		default:
			rows[i] = riskdomain.FeatureRow{VolatilityBps: 60, MaxDrawdownBps: 40, PegDeviationBps: 30, PriceRangeBps: 35}
		}
	}
	return rows
}

func TestFit_InsufficientData(t *testing.T) {
	c := New(silentLogger(), 3)
	err := c.Fit([]riskdomain.FeatureRow{{}, {}}, KMeans, 1)
	require.Error(t, err)
	var insufficient riskdomain.ErrInsufficientData
	assert.ErrorAs(t, err, &insufficient)
}

func TestFitKMeans_OrdersRegimesByVolatility(t *testing.T) {
	rows := syntheticFeatures(60, 20, 40)
	c := New(silentLogger(), 3)
	require.NoError(t, c.Fit(rows, KMeans, 42))

	calm, err := c.Classify(riskdomain.FeatureRow{VolatilityBps: 5, MaxDrawdownBps: 2, PegDeviationBps: 1, PriceRangeBps: 3})
	require.NoError(t, err)
	crisis, err := c.Classify(riskdomain.FeatureRow{VolatilityBps: 500, MaxDrawdownBps: 400, PegDeviationBps: 300, PriceRangeBps: 350})
	require.NoError(t, err)

	assert.Equal(t, riskdomain.Calm, calm.Regime)
	assert.Equal(t, riskdomain.Crisis, crisis.Regime)
	assert.Greater(t, calm.Confidence, 0.0)
}

func TestClassify_NotFitted(t *testing.T) {
	c := New(silentLogger(), 3)
	_, err := c.Classify(riskdomain.FeatureRow{})
	assert.ErrorIs(t, err, riskdomain.ErrNotFitted)
}

func TestFitHMM_OrdersRegimesByVolatility(t *testing.T) {
	rows := syntheticFeatures(90, 30, 60)
	c := New(silentLogger(), 3)
	require.NoError(t, c.Fit(rows, HMM, 7))

	calm, err := c.Classify(riskdomain.FeatureRow{VolatilityBps: 5, MaxDrawdownBps: 2, PegDeviationBps: 1, PriceRangeBps: 3})
	require.NoError(t, err)
	crisis, err := c.Classify(riskdomain.FeatureRow{VolatilityBps: 500, MaxDrawdownBps: 400, PegDeviationBps: 300, PriceRangeBps: 350})
	require.NoError(t, err)

	assert.Equal(t, riskdomain.Calm, calm.Regime)
	assert.Equal(t, riskdomain.Crisis, crisis.Regime)
}

func TestClassifySequence_KMeansHardAssignment(t *testing.T) {
	rows := syntheticFeatures(60, 20, 40)
	c := New(silentLogger(), 3)
	require.NoError(t, c.Fit(rows, KMeans, 42))

	regimes, probs, err := c.ClassifySequence(rows)
	require.NoError(t, err)
	require.Len(t, regimes, len(rows))
	for _, row := range probs {
		sum := 0.0
		for _, p := range row {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestClassifySequence_HMMViterbiProbabilitiesNormalized(t *testing.T) {
	rows := syntheticFeatures(90, 30, 60)
	c := New(silentLogger(), 3)
	require.NoError(t, c.Fit(rows, HMM, 7))

	regimes, probs, err := c.ClassifySequence(rows)
	require.NoError(t, err)
	require.Len(t, regimes, len(rows))
	for _, row := range probs {
		sum := 0.0
		for _, p := range row {
			assert.False(t, math.IsNaN(p))
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
}

func TestTransitionProbability_RowsSumToOne(t *testing.T) {
	rows := syntheticFeatures(60, 20, 40)
	c := New(silentLogger(), 3)
	require.NoError(t, c.Fit(rows, KMeans, 42))

	sum := 0.0
	for _, r := range riskdomain.All {
		p, err := c.TransitionProbability(riskdomain.Calm, r)
		require.NoError(t, err)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestTransitionProbability_NotFitted(t *testing.T) {
	c := New(silentLogger(), 3)
	_, err := c.TransitionProbability(riskdomain.Calm, riskdomain.Crisis)
	assert.ErrorIs(t, err, riskdomain.ErrNotFitted)
}

func TestCentroid_UnstandardizesBackToOriginalUnits(t *testing.T) {
	rows := syntheticFeatures(60, 20, 40)
	c := New(silentLogger(), 3)
	require.NoError(t, c.Fit(rows, KMeans, 42))

	calm, err := c.Centroid(riskdomain.Calm)
	require.NoError(t, err)
	assert.InDelta(t, 5, calm.VolatilityBps, 1)
	assert.InDelta(t, 2, calm.MaxDrawdownBps, 1)

	crisis, err := c.Centroid(riskdomain.Crisis)
	require.NoError(t, err)
	assert.InDelta(t, 500, crisis.VolatilityBps, 1)
}

func TestCentroid_NotFitted(t *testing.T) {
	c := New(silentLogger(), 3)
	_, err := c.Centroid(riskdomain.Calm)
	assert.ErrorIs(t, err, riskdomain.ErrNotFitted)
}

func TestExtractFeatures_WindowSizeCap(t *testing.T) {
	prices := make([]float64, 365)
	for i := range prices {
		prices[i] = 1.0
	}
	rows := ExtractFeatures(prices)
	assert.Len(t, rows, 365-30+1)
}

func TestExtractFeatures_ShortSeriesUsesSmallerWindow(t *testing.T) {
	prices := make([]float64, 15)
	for i := range prices {
		prices[i] = 1.0
	}
	rows := ExtractFeatures(prices)
	assert.Len(t, rows, 15-5+1)
}
