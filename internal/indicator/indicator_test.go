package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/openquant-lab/trendtest/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	t.Run("expanding head then rolling window", func(t *testing.T) {
		values := []float64{1, 2, 3, 4, 5}

		result, err := SMA(values, 3)
		require.NoError(t, err)

		assert.InDelta(t, 1.0, result[0], 1e-9)
		assert.InDelta(t, 1.5, result[1], 1e-9)
		assert.InDelta(t, 2.0, result[2], 1e-9)
		assert.InDelta(t, 3.0, result[3], 1e-9)
		assert.InDelta(t, 4.0, result[4], 1e-9)
	})

	t.Run("invalid period", func(t *testing.T) {
		_, err := SMA([]float64{1}, 0)
		assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidPeriod))
	})

	t.Run("empty input", func(t *testing.T) {
		result, err := SMA(nil, 5)
		require.NoError(t, err)
		assert.Empty(t, result)
	})
}

func TestEMA(t *testing.T) {
	t.Run("recurrence matches hand computation", func(t *testing.T) {
		values := []float64{10, 12, 14}

		result, err := EMA(values, 3)
		require.NoError(t, err)

		// alpha = 0.5 for period 3
		assert.InDelta(t, 10.0, result[0], 1e-9)
		assert.InDelta(t, 11.0, result[1], 1e-9)
		assert.InDelta(t, 12.5, result[2], 1e-9)
	})

	t.Run("constant series stays constant", func(t *testing.T) {
		result, err := EMA([]float64{5, 5, 5, 5}, 2)
		require.NoError(t, err)

		for _, v := range result {
			assert.InDelta(t, 5.0, v, 1e-9)
		}
	})
}

func TestRSI(t *testing.T) {
	t.Run("warmup is NaN", func(t *testing.T) {
		values := []float64{44, 44.5, 44.2, 44.8, 45.1, 44.9}

		result, err := RSI(values, 3)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			assert.True(t, math.IsNaN(result[i]), "index %d should be NaN", i)
		}

		assert.False(t, math.IsNaN(result[3]))
	})

	t.Run("pure uptrend hits 100", func(t *testing.T) {
		values := []float64{1, 2, 3, 4, 5, 6}

		result, err := RSI(values, 3)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, result[5], 1e-9)
	})

	t.Run("pure downtrend hits 0", func(t *testing.T) {
		values := []float64{6, 5, 4, 3, 2, 1}

		result, err := RSI(values, 3)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, result[5], 1e-9)
	})

	t.Run("too short series is all NaN", func(t *testing.T) {
		result, err := RSI([]float64{1, 2}, 5)
		require.NoError(t, err)

		for _, v := range result {
			assert.True(t, math.IsNaN(v))
		}
	})
}

func atrBars(prices []float64) []types.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(prices))

	for i, p := range prices {
		bars[i] = types.Bar{
			Time:  start.Add(time.Duration(i) * time.Hour),
			Open:  p,
			High:  p + 2,
			Low:   p - 2,
			Close: p,
		}
	}

	return bars
}

func TestATR(t *testing.T) {
	t.Run("constant range converges to range", func(t *testing.T) {
		// Flat closes with a fixed high-low range of 4: every true range is 4.
		bars := atrBars([]float64{100, 100, 100, 100, 100, 100})

		result, err := ATR(bars, 3)
		require.NoError(t, err)

		assert.True(t, math.IsNaN(result[2]))
		assert.InDelta(t, 4.0, result[3], 1e-9)
		assert.InDelta(t, 4.0, result[5], 1e-9)
	})

	t.Run("gap expands true range", func(t *testing.T) {
		bars := atrBars([]float64{100, 100, 100, 100})
		bars[2].High = 110 // gap: TR = max(high-low, |high-prevClose|)

		result, err := ATR(bars, 2)
		require.NoError(t, err)

		// tr = [6, 10] over the first window
		assert.InDelta(t, 8.0, result[2], 1e-9)
	})

	t.Run("never negative", func(t *testing.T) {
		bars := atrBars([]float64{100, 101, 99, 102, 98, 103})

		result, err := ATR(bars, 2)
		require.NoError(t, err)

		for i := 2; i < len(result); i++ {
			assert.GreaterOrEqual(t, result[i], 0.0)
		}
	})
}

func TestMACD(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + float64(i)
	}

	macd, signalLine, histogram, err := MACD(values, 12, 26, 9)
	require.NoError(t, err)
	require.Len(t, macd, 60)

	t.Run("warmup is NaN", func(t *testing.T) {
		assert.True(t, math.IsNaN(macd[24]))
		assert.True(t, math.IsNaN(signalLine[24]))
	})

	t.Run("uptrend gives positive macd", func(t *testing.T) {
		assert.Greater(t, macd[59], 0.0)
		assert.InDelta(t, macd[59]-signalLine[59], histogram[59], 1e-9)
	})

	t.Run("fast must be below slow", func(t *testing.T) {
		_, _, _, err := MACD(values, 26, 12, 9)
		assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidPeriod))
	})
}

func TestBollingerBands(t *testing.T) {
	t.Run("constant series collapses bands", func(t *testing.T) {
		values := []float64{10, 10, 10, 10, 10}

		upper, middle, lower, err := BollingerBands(values, 3, 2)
		require.NoError(t, err)

		assert.True(t, math.IsNaN(middle[1]))
		assert.InDelta(t, 10.0, middle[4], 1e-9)
		assert.InDelta(t, 10.0, upper[4], 1e-9)
		assert.InDelta(t, 10.0, lower[4], 1e-9)
	})

	t.Run("bands are symmetric around the mean", func(t *testing.T) {
		values := []float64{9, 10, 11, 12, 13, 12, 11}

		upper, middle, lower, err := BollingerBands(values, 5, 2)
		require.NoError(t, err)

		for i := 4; i < len(values); i++ {
			assert.InDelta(t, middle[i]-lower[i], upper[i]-middle[i], 1e-9)
			assert.Greater(t, upper[i], lower[i])
		}
	})
}

func TestCloses(t *testing.T) {
	bars := atrBars([]float64{1, 2, 3})
	assert.Equal(t, []float64{1, 2, 3}, Closes(bars))
}
