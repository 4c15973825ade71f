package backtest

import (
	"math"
	"testing"

	"github.com/moznion/go-optional"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/stretchr/testify/assert"
)

func annotated(values ...float64) []types.AnnotatedBar {
	bars := make([]types.AnnotatedBar, len(values)+1)
	bars[0].PortfolioValue = optional.None[float64]()

	for i, v := range values {
		bars[i+1].PortfolioValue = optional.Some(v)
	}

	return bars
}

func TestComputeMetricsDegradesGracefully(t *testing.T) {
	t.Run("no priced bars", func(t *testing.T) {
		metrics := computeMetrics(annotated(), 1000, 1000, 0, DefaultBarsPerYear)
		assert.Equal(t, types.Metrics{FinalValue: 1000}, metrics)
	})

	t.Run("single priced bar", func(t *testing.T) {
		metrics := computeMetrics(annotated(1010), 1000, 1010, 2, DefaultBarsPerYear)
		assert.Equal(t, 1010.0, metrics.FinalValue)
		assert.Zero(t, metrics.TotalReturnPercent)
		assert.Zero(t, metrics.SharpeRatio)
		assert.Equal(t, 2, metrics.NumOrders)
	})
}

func TestComputeMetricsTotalReturn(t *testing.T) {
	metrics := computeMetrics(annotated(1000, 1100), 1000, 1100, 2, DefaultBarsPerYear)
	assert.InDelta(t, 10.0, metrics.TotalReturnPercent, 1e-9)
	assert.Equal(t, 1100.0, metrics.FinalValue)
}

func TestMaxDrawdownPercent(t *testing.T) {
	t.Run("monotonic equity has no drawdown", func(t *testing.T) {
		assert.Zero(t, maxDrawdownPercent([]float64{100, 110, 120}))
	})

	t.Run("single trough", func(t *testing.T) {
		// Peak 200, trough 150: 25% drawdown.
		dd := maxDrawdownPercent([]float64{100, 200, 150, 180})
		assert.InDelta(t, 25.0, dd, 1e-9)
	})

	t.Run("deepest of several troughs wins", func(t *testing.T) {
		dd := maxDrawdownPercent([]float64{100, 90, 120, 60, 110})
		assert.InDelta(t, 50.0, dd, 1e-9)
	})
}

func TestSharpeRatio(t *testing.T) {
	t.Run("flat returns give zero", func(t *testing.T) {
		assert.Zero(t, sharpeRatio([]float64{0.01, 0.01, 0.01}, DefaultBarsPerYear))
	})

	t.Run("single return gives zero", func(t *testing.T) {
		assert.Zero(t, sharpeRatio([]float64{0.05}, DefaultBarsPerYear))
	})

	t.Run("annualizes with the configured constant", func(t *testing.T) {
		returns := []float64{0.01, 0.02, -0.005, 0.015}

		daily := sharpeRatio(returns, 252)
		hourly := sharpeRatio(returns, 252*24)
		assert.InDelta(t, daily*math.Sqrt(24), hourly, 1e-9)
	})

	t.Run("sample standard deviation", func(t *testing.T) {
		// mean 0.01, sample stdev sqrt(2*0.0001/1)... returns {0, 0.02}:
		// mean=0.01, var=((0.01)^2+(0.01)^2)/(2-1)=0.0002, stdev≈0.014142.
		got := sharpeRatio([]float64{0, 0.02}, 252)
		want := 0.01 / math.Sqrt(0.0002) * math.Sqrt(252)
		assert.InDelta(t, want, got, 1e-9)
	})
}
