package strategy

import (
	"fmt"
	"math"

	"github.com/openquant-lab/trendtest/internal/indicator"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/openquant-lab/trendtest/pkg/errors"
)

// MACDBollingerParams configures the mean-reversion MACD strategy.
type MACDBollingerParams struct {
	// MACDFast is the fast EMA period of the MACD line.
	MACDFast int `yaml:"macd_fast" json:"macd_fast" validate:"required,gt=0"`
	// MACDSlow is the slow EMA period and must exceed MACDFast.
	MACDSlow int `yaml:"macd_slow" json:"macd_slow" validate:"required,gtfield=MACDFast"`
	// MACDSignal is the EMA period of the signal line.
	MACDSignal int `yaml:"macd_signal" json:"macd_signal" validate:"required,gt=0"`
	// BBPeriod is the Bollinger band window.
	BBPeriod int `yaml:"bb_period" json:"bb_period" validate:"required,gt=1"`
	// BBStdDev is the band width in standard deviations.
	BBStdDev float64 `yaml:"bb_std" json:"bb_std" validate:"required,gt=0"`
	// ATRPeriod is the lookback of the ATR column the engine consumes.
	ATRPeriod int `yaml:"atr_period" json:"atr_period" validate:"required,gt=0"`
}

// DefaultMACDBollingerParams returns the standard 12/26/9 MACD over 20-bar
// 2-sigma bands.
func DefaultMACDBollingerParams() MACDBollingerParams {
	return MACDBollingerParams{
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		BBPeriod:   20,
		BBStdDev:   2.0,
		ATRPeriod:  14,
	}
}

// RequiredBars is the minimum series length the strategy can annotate.
func (p MACDBollingerParams) RequiredBars() int {
	required := p.MACDSlow
	if p.BBPeriod > required {
		required = p.BBPeriod
	}

	if p.ATRPeriod > required {
		required = p.ATRPeriod
	}

	return required
}

// MACDBollinger buys when MACD momentum turns positive while price sits
// below the lower Bollinger band, and sells on negative momentum above the
// upper band.
type MACDBollinger struct {
	params MACDBollingerParams
}

// NewMACDBollinger validates the parameters and builds the strategy.
func NewMACDBollinger(params MACDBollingerParams) (*MACDBollinger, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	return &MACDBollinger{params: params}, nil
}

// Name returns the name of the strategy.
func (s *MACDBollinger) Name() string {
	return fmt.Sprintf("MACD_BB_%d_%d_%d", s.params.MACDFast, s.params.MACDSlow, s.params.MACDSignal)
}

// Params returns the validated parameters.
func (s *MACDBollinger) Params() MACDBollingerParams {
	return s.params
}

// Annotate computes the MACD/Bollinger signals over a copy of the series.
func (s *MACDBollinger) Annotate(bars []types.Bar) ([]types.Bar, error) {
	required := s.params.RequiredBars()
	if len(bars) < required {
		return nil, errors.NewInsufficientDataErrorf(required, len(bars), "",
			"macd bollinger strategy needs at least %d bars, got %d", required, len(bars))
	}

	closes := indicator.Closes(bars)

	macd, signalLine, _, err := indicator.MACD(closes, s.params.MACDFast, s.params.MACDSlow, s.params.MACDSignal)
	if err != nil {
		return nil, err
	}

	upper, _, lower, err := indicator.BollingerBands(closes, s.params.BBPeriod, s.params.BBStdDev)
	if err != nil {
		return nil, err
	}

	atr, err := indicator.ATR(bars, s.params.ATRPeriod)
	if err != nil {
		return nil, err
	}

	signals := make([]types.Signal, len(bars))

	for i := range bars {
		buy := macd[i] > signalLine[i] && closes[i] < lower[i]
		sell := macd[i] < signalLine[i] && closes[i] > upper[i]

		if buy && !math.IsNaN(atr[i]) {
			signals[i] = types.SignalBuy
		} else if sell {
			signals[i] = types.SignalSell
		}
	}

	return annotateCopy(bars, signals, atr), nil
}
