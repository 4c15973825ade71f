// Package strategy turns raw bar series into signal-annotated series the
// backtest engine can replay. Strategies are pure: the same bars and
// parameters always produce the same annotations.
package strategy

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/openquant-lab/trendtest/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Strategy annotates a bar series with trading signals and the ATR values
// the engine uses to place protective exits.
type Strategy interface {
	// Name returns a short identifier embedding the key parameters.
	Name() string
	// Annotate returns a copy of bars with Signal and ATR populated. The
	// input is never modified. Returns errors.InsufficientDataError when the
	// series is shorter than the longest configured lookback.
	Annotate(bars []types.Bar) ([]types.Bar, error)
}

// New builds a strategy by name from YAML-encoded parameters. Empty params
// select the defaults for that strategy.
func New(name string, params []byte) (Strategy, error) {
	switch name {
	case "moving_average":
		p := DefaultMovingAverageParams()
		if len(params) > 0 {
			if err := yaml.Unmarshal(params, &p); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "cannot parse moving_average params", err)
			}
		}

		return NewMovingAverage(p)
	case "macd_bollinger":
		p := DefaultMACDBollingerParams()
		if len(params) > 0 {
			if err := yaml.Unmarshal(params, &p); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "cannot parse macd_bollinger params", err)
			}
		}

		return NewMACDBollinger(p)
	default:
		return nil, errors.Newf(errors.ErrCodeUnsupportedStrategy, "unknown strategy %q", name)
	}
}

// Names lists the registered strategy names accepted by New.
func Names() []string {
	return []string{"moving_average", "macd_bollinger"}
}

// ModelParams returns the strategy's concrete parameter struct, so persisted
// results carry everything needed to reproduce the run.
func ModelParams(s Strategy) any {
	switch s := s.(type) {
	case *MovingAverage:
		return s.Params()
	case *MACDBollinger:
		return s.Params()
	default:
		return nil
	}
}

// ParamsSchema returns the JSON schema of the named strategy's parameters.
func ParamsSchema(name string) (string, error) {
	var params any

	switch name {
	case "moving_average":
		params = &MovingAverageParams{}
	case "macd_bollinger":
		params = &MACDBollingerParams{}
	default:
		return "", errors.Newf(errors.ErrCodeUnsupportedStrategy, "unknown strategy %q", name)
	}

	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	schema := r.Reflect(params)

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

func validateParams(params any) error {
	validate := validator.New()
	if err := validate.Struct(params); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid strategy parameters", err)
	}

	return nil
}

// annotateCopy clones the series and stamps the computed signal and ATR
// columns onto the copy.
func annotateCopy(bars []types.Bar, signals []types.Signal, atr []float64) []types.Bar {
	out := make([]types.Bar, len(bars))
	copy(out, bars)

	for i := range out {
		out[i].Signal = signals[i]
		out[i].ATR = atr[i]
	}

	return out
}
