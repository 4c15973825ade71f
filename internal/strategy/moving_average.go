package strategy

import (
	"fmt"
	"math"

	"github.com/openquant-lab/trendtest/internal/indicator"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/openquant-lab/trendtest/pkg/errors"
)

// MovingAverageParams configures the SMA crossover strategy and its optional
// RSI and EMA trend filters.
type MovingAverageParams struct {
	// ShortPeriod is the fast SMA window.
	ShortPeriod int `yaml:"short_period" json:"short_period" validate:"required,gt=0"`
	// LongPeriod is the slow SMA window and must exceed ShortPeriod.
	LongPeriod int `yaml:"long_period" json:"long_period" validate:"required,gtfield=ShortPeriod"`
	// RSIPeriod is the lookback of the RSI filter.
	RSIPeriod int `yaml:"rsi_period" json:"rsi_period" validate:"required,gt=1"`
	// ATRPeriod is the lookback of the ATR column the engine consumes.
	ATRPeriod int `yaml:"atr_period" json:"atr_period" validate:"required,gt=0"`
	// BuyRSIThreshold gates entries: only buy while RSI is below it.
	BuyRSIThreshold float64 `yaml:"buy_rsi_threshold" json:"buy_rsi_threshold" validate:"gte=0,lte=100"`
	// SellRSIThreshold gates exits: only sell while RSI is above it.
	SellRSIThreshold float64 `yaml:"sell_rsi_threshold" json:"sell_rsi_threshold" validate:"gte=0,lte=100"`
	// EMAShortPeriod is the fast EMA of the trend filter.
	EMAShortPeriod int `yaml:"ema_short_period" json:"ema_short_period" validate:"required_if=UseTrendFilter true,gte=0"`
	// EMALongPeriod is the slow EMA of the trend filter.
	EMALongPeriod int `yaml:"ema_long_period" json:"ema_long_period" validate:"required_if=UseTrendFilter true,gte=0"`
	// UseTrendFilter requires an EMA uptrend for buys and a downtrend for
	// sells.
	UseTrendFilter bool `yaml:"use_trend_filter" json:"use_trend_filter"`
	// UseRSIFilter applies the RSI thresholds to both sides.
	UseRSIFilter bool `yaml:"use_rsi_filter" json:"use_rsi_filter"`
}

// DefaultMovingAverageParams returns the historical defaults: 9/21 crossover,
// RSI 14 at 45/55, EMA 50/200 trend filter, both filters on.
func DefaultMovingAverageParams() MovingAverageParams {
	return MovingAverageParams{
		ShortPeriod:      9,
		LongPeriod:       21,
		RSIPeriod:        14,
		ATRPeriod:        14,
		BuyRSIThreshold:  45,
		SellRSIThreshold: 55,
		EMAShortPeriod:   50,
		EMALongPeriod:    200,
		UseTrendFilter:   true,
		UseRSIFilter:     true,
	}
}

// RequiredBars is the minimum series length the strategy can annotate.
func (p MovingAverageParams) RequiredBars() int {
	required := p.LongPeriod
	if p.UseTrendFilter && p.EMALongPeriod > required {
		required = p.EMALongPeriod
	}

	return required
}

// MovingAverage buys when the short SMA is above the long SMA and sells on
// the opposite alignment, optionally gated by RSI thresholds and an EMA
// trend filter.
type MovingAverage struct {
	params MovingAverageParams
}

// NewMovingAverage validates the parameters and builds the strategy.
func NewMovingAverage(params MovingAverageParams) (*MovingAverage, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	return &MovingAverage{params: params}, nil
}

// Name returns the name of the strategy.
func (s *MovingAverage) Name() string {
	return fmt.Sprintf("MA_Cross_%d_%d", s.params.ShortPeriod, s.params.LongPeriod)
}

// Params returns the validated parameters.
func (s *MovingAverage) Params() MovingAverageParams {
	return s.params
}

// Annotate computes the crossover signals over a copy of the series.
func (s *MovingAverage) Annotate(bars []types.Bar) ([]types.Bar, error) {
	required := s.params.RequiredBars()
	if len(bars) < required {
		return nil, errors.NewInsufficientDataErrorf(required, len(bars), "",
			"moving average strategy needs at least %d bars, got %d", required, len(bars))
	}

	closes := indicator.Closes(bars)

	shortMA, err := indicator.SMA(closes, s.params.ShortPeriod)
	if err != nil {
		return nil, err
	}

	longMA, err := indicator.SMA(closes, s.params.LongPeriod)
	if err != nil {
		return nil, err
	}

	rsi, err := indicator.RSI(closes, s.params.RSIPeriod)
	if err != nil {
		return nil, err
	}

	atr, err := indicator.ATR(bars, s.params.ATRPeriod)
	if err != nil {
		return nil, err
	}

	var emaShort, emaLong []float64
	if s.params.UseTrendFilter {
		emaShort, err = indicator.EMA(closes, s.params.EMAShortPeriod)
		if err != nil {
			return nil, err
		}

		emaLong, err = indicator.EMA(closes, s.params.EMALongPeriod)
		if err != nil {
			return nil, err
		}
	}

	signals := make([]types.Signal, len(bars))

	for i := range bars {
		// NaN comparisons are false, so warm-up bars hold on both sides.
		buy := shortMA[i] > longMA[i]
		sell := shortMA[i] < longMA[i]

		if s.params.UseRSIFilter {
			buy = buy && rsi[i] < s.params.BuyRSIThreshold
			sell = sell && rsi[i] > s.params.SellRSIThreshold
		}

		if s.params.UseTrendFilter {
			trendUp := emaShort[i] > emaLong[i]
			buy = buy && trendUp
			sell = sell && !trendUp
		}

		// No protective prices can be derived while the ATR is warming up,
		// so entries wait for it.
		if buy && !math.IsNaN(atr[i]) {
			signals[i] = types.SignalBuy
		} else if sell {
			signals[i] = types.SignalSell
		}
	}

	return annotateCopy(bars, signals, atr), nil
}
