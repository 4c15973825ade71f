// Package indicator implements the technical indicator math consumed by the
// signal providers. Every function is a pure transform of a series into a
// series of the same length; positions inside an indicator's warm-up window
// are NaN, so threshold comparisons against them are false and generate no
// signals.
package indicator

import (
	"math"

	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/openquant-lab/trendtest/pkg/errors"
)

// Closes extracts the close column from a bar series.
func Closes(bars []types.Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	return closes
}

func validatePeriod(period int) error {
	if period <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	return nil
}

// SMA computes a simple moving average with an expanding window at the head:
// position i averages the last min(i+1, period) values, so the series has no
// warm-up NaNs.
func SMA(values []float64, period int) ([]float64, error) {
	if err := validatePeriod(period); err != nil {
		return nil, err
	}

	result := make([]float64, len(values))
	sum := 0.0

	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}

		window := period
		if i+1 < period {
			window = i + 1
		}

		result[i] = sum / float64(window)
	}

	return result, nil
}

// EMA computes an exponential moving average using alpha = 2/(period+1) and
// the recurrence ema = value*alpha + ema*(1-alpha), seeded with the first
// value.
func EMA(values []float64, period int) ([]float64, error) {
	if err := validatePeriod(period); err != nil {
		return nil, err
	}

	result := make([]float64, len(values))
	if len(values) == 0 {
		return result, nil
	}

	alpha := 2.0 / float64(period+1)
	ema := values[0]
	result[0] = ema

	for i := 1; i < len(values); i++ {
		ema = values[i]*alpha + ema*(1-alpha)
		result[i] = ema
	}

	return result, nil
}

// RSI computes the Relative Strength Index with Wilder's smoothing. The first
// average is a simple mean of the first period gains/losses; positions before
// the period-th change are NaN.
func RSI(values []float64, period int) ([]float64, error) {
	if err := validatePeriod(period); err != nil {
		return nil, err
	}

	result := make([]float64, len(values))
	for i := range result {
		result[i] = math.NaN()
	}

	if len(values) < period+1 {
		return result, nil
	}

	avgGain := 0.0
	avgLoss := 0.0

	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)
	result[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0

		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		result[i] = rsiFromAverages(avgGain, avgLoss)
	}

	return result, nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss

	return 100 - (100 / (1 + rs))
}

// ATR computes the Average True Range with Wilder's smoothing over the true
// range series. Positions before the period-th bar are NaN.
func ATR(bars []types.Bar, period int) ([]float64, error) {
	if err := validatePeriod(period); err != nil {
		return nil, err
	}

	result := make([]float64, len(bars))
	for i := range result {
		result[i] = math.NaN()
	}

	if len(bars) < period+1 {
		return result, nil
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(bars[i], bars[i-1].Close)
	}

	atr /= float64(period)
	result[period] = atr

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRange(bars[i], bars[i-1].Close)) / float64(period)
		result[i] = atr
	}

	return result, nil
}

func trueRange(bar types.Bar, prevClose float64) float64 {
	return math.Max(
		math.Max(bar.High-bar.Low, math.Abs(bar.High-prevClose)),
		math.Abs(bar.Low-prevClose),
	)
}

// MACD computes the MACD line (fast EMA - slow EMA), its signal line and the
// histogram. Positions before the slow lookback are NaN on all three series.
func MACD(values []float64, fast, slow, signalPeriod int) (macd, signalLine, histogram []float64, err error) {
	for _, period := range []int{fast, slow, signalPeriod} {
		if err := validatePeriod(period); err != nil {
			return nil, nil, nil, err
		}
	}

	if fast >= slow {
		return nil, nil, nil, errors.Newf(errors.ErrCodeInvalidPeriod,
			"fast period %d must be shorter than slow period %d", fast, slow)
	}

	fastEMA, err := EMA(values, fast)
	if err != nil {
		return nil, nil, nil, err
	}

	slowEMA, err := EMA(values, slow)
	if err != nil {
		return nil, nil, nil, err
	}

	macd = make([]float64, len(values))
	for i := range values {
		if i < slow-1 {
			macd[i] = math.NaN()
		} else {
			macd[i] = fastEMA[i] - slowEMA[i]
		}
	}

	signalLine = make([]float64, len(values))
	histogram = make([]float64, len(values))

	for i := range signalLine {
		signalLine[i] = math.NaN()
		histogram[i] = math.NaN()
	}

	if len(values) >= slow {
		smoothed, err := EMA(macd[slow-1:], signalPeriod)
		if err != nil {
			return nil, nil, nil, err
		}

		for i, v := range smoothed {
			signalLine[slow-1+i] = v
			histogram[slow-1+i] = macd[slow-1+i] - v
		}
	}

	return macd, signalLine, histogram, nil
}

// BollingerBands computes the middle SMA band and upper/lower bands at
// stdDev population standard deviations. Positions before a full window are
// NaN.
func BollingerBands(values []float64, period int, stdDev float64) (upper, middle, lower []float64, err error) {
	if err := validatePeriod(period); err != nil {
		return nil, nil, nil, err
	}

	upper = make([]float64, len(values))
	middle = make([]float64, len(values))
	lower = make([]float64, len(values))

	for i := range values {
		if i < period-1 {
			upper[i] = math.NaN()
			middle[i] = math.NaN()
			lower[i] = math.NaN()

			continue
		}

		window := values[i-period+1 : i+1]
		mean := 0.0

		for _, v := range window {
			mean += v
		}

		mean /= float64(period)

		variance := 0.0
		for _, v := range window {
			variance += (v - mean) * (v - mean)
		}

		sigma := math.Sqrt(variance / float64(period))
		middle[i] = mean
		upper[i] = mean + stdDev*sigma
		lower[i] = mean - stdDev*sigma
	}

	return upper, middle, lower, nil
}
