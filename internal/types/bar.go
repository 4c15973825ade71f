package types

import (
	"math"
	"time"

	"github.com/moznion/go-optional"
	"github.com/openquant-lab/trendtest/pkg/errors"
)

// Bar is one OHLCV row at a fixed timeframe, annotated by the signal provider
// with a trading signal and an ATR volatility value.
type Bar struct {
	Time   time.Time `json:"timestamp" yaml:"timestamp" csv:"timestamp"`
	Open   float64   `json:"open" yaml:"open" csv:"open"`
	High   float64   `json:"high" yaml:"high" csv:"high"`
	Low    float64   `json:"low" yaml:"low" csv:"low"`
	Close  float64   `json:"close" yaml:"close" csv:"close"`
	Volume float64   `json:"volume" yaml:"volume" csv:"volume"`
	Signal Signal    `json:"signal" yaml:"signal" csv:"signal"`
	// ATR is the Average True Range at this bar. Only consumed when the engine
	// derives stop-loss/take-profit distances.
	ATR float64 `json:"atr" yaml:"atr" csv:"atr"`
}

// AnnotatedBar is a bar plus the engine-derived mark-to-market portfolio value.
// The value is None for bars the replay never priced (the first bar, and every
// bar of a run too short to trade), mirroring a null column in tabular output.
type AnnotatedBar struct {
	Bar            `yaml:",inline"`
	PortfolioValue optional.Option[float64] `json:"portfolio_value" yaml:"portfolio_value"`
}

// ValidateSeries checks a bar series for the data-quality faults the engine
// refuses to simulate over: non-monotonic or duplicate timestamps, and
// non-positive or NaN prices. The first offending bar's timestamp is named in
// the returned error.
func ValidateSeries(bars []Bar) error {
	for i, bar := range bars {
		if !validPrice(bar.Open) || !validPrice(bar.High) || !validPrice(bar.Low) || !validPrice(bar.Close) {
			return errors.Newf(errors.ErrCodeInvalidPrice,
				"non-positive or NaN price at %s", bar.Time.Format(time.RFC3339))
		}

		if bar.Volume < 0 || math.IsNaN(bar.Volume) {
			return errors.Newf(errors.ErrCodeInvalidPrice,
				"negative or NaN volume at %s", bar.Time.Format(time.RFC3339))
		}

		if !bar.Signal.IsValid() {
			return errors.Newf(errors.ErrCodeInvalidParameter,
				"signal out of range at %s: %d", bar.Time.Format(time.RFC3339), bar.Signal)
		}

		if i > 0 && !bar.Time.After(bars[i-1].Time) {
			return errors.Newf(errors.ErrCodeNonMonotonicSeries,
				"timestamps must be strictly increasing: %s does not follow %s",
				bar.Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
	}

	return nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
