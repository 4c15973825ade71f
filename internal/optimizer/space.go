package optimizer

import (
	"math/rand"

	"github.com/openquant-lab/trendtest/internal/strategy"
	"github.com/openquant-lab/trendtest/pkg/errors"
)

// IntRange is an inclusive integer interval.
type IntRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

func (r IntRange) sample(rng *rand.Rand) int {
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

// FloatRange is a half-open float interval.
type FloatRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

func (r FloatRange) sample(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// Space bounds the parameter search for the moving average strategy.
type Space struct {
	ShortPeriod          IntRange   `yaml:"short_period" json:"short_period"`
	LongPeriod           IntRange   `yaml:"long_period" json:"long_period"`
	Limits               []int      `yaml:"limits" json:"limits"`
	RSIPeriod            IntRange   `yaml:"rsi_period" json:"rsi_period"`
	ATRPeriod            IntRange   `yaml:"atr_period" json:"atr_period"`
	BuyRSIThreshold      FloatRange `yaml:"buy_rsi_threshold" json:"buy_rsi_threshold"`
	SellRSIThreshold     FloatRange `yaml:"sell_rsi_threshold" json:"sell_rsi_threshold"`
	StopLossMultiplier   FloatRange `yaml:"stop_loss_multiplier" json:"stop_loss_multiplier"`
	TakeProfitMultiplier FloatRange `yaml:"take_profit_multiplier" json:"take_profit_multiplier"`
	EMAShortPeriod       IntRange   `yaml:"ema_short_period" json:"ema_short_period"`
	EMALongPeriod        IntRange   `yaml:"ema_long_period" json:"ema_long_period"`
}

// DefaultSpace returns the historical search bounds.
func DefaultSpace() Space {
	return Space{
		ShortPeriod:          IntRange{Min: 5, Max: 50},
		LongPeriod:           IntRange{Min: 20, Max: 200},
		Limits:               []int{200, 500, 1000},
		RSIPeriod:            IntRange{Min: 10, Max: 20},
		ATRPeriod:            IntRange{Min: 10, Max: 20},
		BuyRSIThreshold:      FloatRange{Min: 10, Max: 60},
		SellRSIThreshold:     FloatRange{Min: 40, Max: 90},
		StopLossMultiplier:   FloatRange{Min: 1.0, Max: 3.0},
		TakeProfitMultiplier: FloatRange{Min: 2.0, Max: 5.0},
		EMAShortPeriod:       IntRange{Min: 20, Max: 100},
		EMALongPeriod:        IntRange{Min: 100, Max: 300},
	}
}

// Validate rejects empty or inverted bounds.
func (s Space) Validate() error {
	intRanges := map[string]IntRange{
		"short_period":     s.ShortPeriod,
		"long_period":      s.LongPeriod,
		"rsi_period":       s.RSIPeriod,
		"atr_period":       s.ATRPeriod,
		"ema_short_period": s.EMAShortPeriod,
		"ema_long_period":  s.EMALongPeriod,
	}

	for name, r := range intRanges {
		if r.Min <= 0 || r.Max < r.Min {
			return errors.Newf(errors.ErrCodeSearchSpaceError, "invalid range for %s: [%d, %d]", name, r.Min, r.Max)
		}
	}

	floatRanges := map[string]FloatRange{
		"buy_rsi_threshold":      s.BuyRSIThreshold,
		"sell_rsi_threshold":     s.SellRSIThreshold,
		"stop_loss_multiplier":   s.StopLossMultiplier,
		"take_profit_multiplier": s.TakeProfitMultiplier,
	}

	for name, r := range floatRanges {
		if r.Min < 0 || r.Max < r.Min {
			return errors.Newf(errors.ErrCodeSearchSpaceError, "invalid range for %s: [%f, %f]", name, r.Min, r.Max)
		}
	}

	if len(s.Limits) == 0 {
		return errors.New(errors.ErrCodeSearchSpaceError, "limits must name at least one series length")
	}

	for _, limit := range s.Limits {
		if limit <= 0 {
			return errors.Newf(errors.ErrCodeSearchSpaceError, "limits must be positive, got %d", limit)
		}
	}

	return nil
}

// Sample draws one trial's parameters. The sampled limit is raised to the
// strategy's required lookback so every draw is at least runnable.
func (s Space) Sample(rng *rand.Rand) Candidate {
	params := strategy.MovingAverageParams{
		ShortPeriod:      s.ShortPeriod.sample(rng),
		LongPeriod:       s.LongPeriod.sample(rng),
		RSIPeriod:        s.RSIPeriod.sample(rng),
		ATRPeriod:        s.ATRPeriod.sample(rng),
		BuyRSIThreshold:  s.BuyRSIThreshold.sample(rng),
		SellRSIThreshold: s.SellRSIThreshold.sample(rng),
		EMAShortPeriod:   s.EMAShortPeriod.sample(rng),
		EMALongPeriod:    s.EMALongPeriod.sample(rng),
		UseTrendFilter:   rng.Intn(2) == 1,
		UseRSIFilter:     rng.Intn(2) == 1,
	}

	// Independent draws can invert the crossover windows; push the long
	// window past the short one instead of burning the trial.
	if params.LongPeriod <= params.ShortPeriod {
		params.LongPeriod = params.ShortPeriod + 1
	}

	limit := s.Limits[rng.Intn(len(s.Limits))]
	if required := params.RequiredBars(); limit < required {
		limit = required
	}

	return Candidate{
		Strategy:             params,
		Limit:                limit,
		StopLossMultiplier:   s.StopLossMultiplier.sample(rng),
		TakeProfitMultiplier: s.TakeProfitMultiplier.sample(rng),
	}
}

// Candidate is one sampled parameter set.
type Candidate struct {
	Strategy             strategy.MovingAverageParams `json:"strategy" yaml:"strategy"`
	Limit                int                          `json:"limit" yaml:"limit"`
	StopLossMultiplier   float64                      `json:"stop_loss_multiplier" yaml:"stop_loss_multiplier"`
	TakeProfitMultiplier float64                      `json:"take_profit_multiplier" yaml:"take_profit_multiplier"`
}
