package backtest

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/openquant-lab/trendtest/pkg/errors"
)

// DefaultBarsPerYear is the annualization base assumed when none is
// configured. It matches daily bars; hourly or minute series should set the
// true bars-per-year instead of inheriting it.
const DefaultBarsPerYear = 252

// Config collapses every simulation variant into one options structure.
// Zero values for the optional features are true no-ops: no slippage, no
// spread, and a zero multiplier disables the corresponding protective exit.
type Config struct {
	// InitialCapital is the cash the simulation starts with.
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital" validate:"required,gt=0"`
	// Commission is the per-fill fee as a fraction, e.g. 0.00075 for 0.075%.
	// Applied as a multiplicative haircut on buy quantity and sell proceeds.
	Commission float64 `yaml:"commission" json:"commission" validate:"gte=0,lt=1"`
	// StopLossMultiplier sizes the stop distance as ATR multiples below the
	// entry price. Zero disables the stop-loss leg.
	StopLossMultiplier float64 `yaml:"stop_loss_multiplier" json:"stop_loss_multiplier" validate:"gte=0"`
	// TakeProfitMultiplier sizes the take-profit distance as ATR multiples
	// above the entry price. Zero disables the take-profit leg.
	TakeProfitMultiplier float64 `yaml:"take_profit_multiplier" json:"take_profit_multiplier" validate:"gte=0"`
	// SlippagePercent models adverse execution as a fraction of the fill
	// price: buys fill higher, sells fill lower.
	SlippagePercent float64 `yaml:"slippage_percent" json:"slippage_percent" validate:"gte=0,lt=1"`
	// Spread is the half-spread cost as a fraction of the fill price,
	// combined additively with SlippagePercent.
	Spread float64 `yaml:"spread" json:"spread" validate:"gte=0,lt=1"`
	// BarsPerYear is the annualization base for the sharpe ratio. Zero means
	// DefaultBarsPerYear.
	BarsPerYear float64 `yaml:"bars_per_year" json:"bars_per_year" validate:"gte=0"`
}

// DefaultConfig returns the configuration matching the historical defaults:
// ATR stop at 1.5x, take-profit at 3x, no slippage or spread.
func DefaultConfig(initialCapital, commission float64) Config {
	return Config{
		InitialCapital:       initialCapital,
		Commission:           commission,
		StopLossMultiplier:   1.5,
		TakeProfitMultiplier: 3.0,
		SlippagePercent:      0,
		Spread:               0,
		BarsPerYear:          DefaultBarsPerYear,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestConfigError, "invalid backtest configuration", err)
	}

	if c.SlippagePercent+c.Spread >= 1 {
		return errors.Newf(errors.ErrCodeBacktestConfigError,
			"slippage_percent + spread must stay below 1, got %f", c.SlippagePercent+c.Spread)
	}

	return nil
}

func (c *Config) barsPerYear() float64 {
	if c.BarsPerYear == 0 {
		return DefaultBarsPerYear
	}

	return c.BarsPerYear
}

// ConfigSchema returns the JSON schema of the engine configuration.
func ConfigSchema() (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	schema := r.Reflect(&Config{})

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
