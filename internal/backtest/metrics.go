package backtest

import (
	"math"

	"github.com/openquant-lab/trendtest/internal/types"
)

// computeMetrics derives the summary statistics from the portfolio-value
// column. A run with fewer than two priced bars cannot yield meaningful
// ratios, so everything except the final value and order count degrades to
// zero.
func computeMetrics(bars []types.AnnotatedBar, initialCapital, finalValue float64, numOrders int, barsPerYear float64) types.Metrics {
	metrics := types.Metrics{
		FinalValue: finalValue,
		NumOrders:  numOrders,
	}

	equity := make([]float64, 0, len(bars))

	for _, bar := range bars {
		if bar.PortfolioValue.IsSome() {
			equity = append(equity, bar.PortfolioValue.Unwrap())
		}
	}

	if len(equity) < 2 {
		return metrics
	}

	metrics.TotalReturnPercent = (finalValue - initialCapital) / initialCapital * 100
	metrics.MaxDrawdownPercent = maxDrawdownPercent(equity)
	metrics.SharpeRatio = sharpeRatio(percentChanges(equity), barsPerYear)

	return metrics
}

func percentChanges(equity []float64) []float64 {
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		returns = append(returns, equity[i]/equity[i-1]-1)
	}

	return returns
}

// maxDrawdownPercent is the largest decline from a running equity peak,
// expressed as a percentage of that peak.
func maxDrawdownPercent(equity []float64) float64 {
	peak := equity[0]
	maxDrawdown := 0.0

	for _, value := range equity {
		if value > peak {
			peak = value
		}

		drawdown := (peak - value) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	return maxDrawdown * 100
}

// sharpeRatio annualizes mean-over-stdev of the per-bar returns. Sample
// standard deviation; zero when the return series is flat or too short to
// have a deviation at all.
func sharpeRatio(returns []float64, barsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}

	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}

	stdev := math.Sqrt(variance / float64(len(returns)-1))
	if stdev == 0 {
		return 0
	}

	return mean / stdev * math.Sqrt(barsPerYear)
}
