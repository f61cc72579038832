package regime

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/depeg-risk-core/internal/riskdomain"
)

// ExtractFeatures slides a window of min(30, n/3) days over prices and emits
// one FeatureRow per window: annualised rolling volatility of log returns,
// empirical max drawdown, peg deviation, and price range, all in bps.
func ExtractFeatures(prices []float64) []riskdomain.FeatureRow {
	n := len(prices)
	window := n / 3
	if window > 30 {
		window = 30
	}
	if window < 2 {
		return nil
	}

	rows := make([]riskdomain.FeatureRow, 0, n-window+1)
	for start := 0; start+window <= n; start++ {
		w := prices[start : start+window]
		rows = append(rows, windowFeatures(w))
	}
	return rows
}

func windowFeatures(w []float64) riskdomain.FeatureRow {
	n := len(w)

	logReturns := make([]float64, n-1)
	for i := 1; i < n; i++ {
		logReturns[i-1] = math.Log(w[i] / w[i-1])
	}

	variance := 0.0
	if len(logReturns) > 1 {
		variance = stat.Variance(logReturns, nil)
	}
	dailyStd := math.Sqrt(variance)
	annualisedVolBps := dailyStd * math.Sqrt(365) * 10000

	peak := w[0]
	maxDrawdown := 0.0
	for _, p := range w {
		if p > peak {
			peak = p
		}
		dd := (peak - p) / peak
		if dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	pegDeviation := math.Abs(1-w[n-1]) * 10000

	maxP, minP := w[0], w[0]
	for _, p := range w {
		if p > maxP {
			maxP = p
		}
		if p < minP {
			minP = p
		}
	}
	priceRange := (maxP - minP) * 10000

	return riskdomain.FeatureRow{
		VolatilityBps:   annualisedVolBps,
		MaxDrawdownBps:  maxDrawdown * 10000,
		PegDeviationBps: pegDeviation,
		PriceRangeBps:   priceRange,
	}
}
