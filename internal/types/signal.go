package types

// Signal is the per-bar strategy decision produced upstream of the backtest
// engine: sell, hold or buy.
type Signal int

const (
	// SignalSell tells the engine to close an open position.
	SignalSell Signal = -1
	// SignalHold tells the engine to take no action.
	SignalHold Signal = 0
	// SignalBuy tells the engine to open a position.
	SignalBuy Signal = 1
)

// IsValid reports whether the signal is one of sell/hold/buy.
func (s Signal) IsValid() bool {
	return s == SignalSell || s == SignalHold || s == SignalBuy
}

func (s Signal) String() string {
	switch s {
	case SignalSell:
		return "sell"
	case SignalBuy:
		return "buy"
	case SignalHold:
		return "hold"
	default:
		return "invalid"
	}
}
