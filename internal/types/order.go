package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/openquant-lab/trendtest/pkg/errors"
)

// Side is the direction of an executed fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ExitReason records why a sell fill happened. Buy orders carry no reason.
type ExitReason string

const (
	ExitReasonSignal        ExitReason = "signal"
	ExitReasonStopLoss      ExitReason = "stop_loss"
	ExitReasonTakeProfit    ExitReason = "take_profit"
	ExitReasonEndOfBacktest ExitReason = "end_of_backtest"
)

// Order is an immutable record of one executed fill. Orders are append-only;
// the ordered ledger is the engine's principal output alongside the annotated
// bar series. Timestamps serialize as RFC 3339 in JSON.
type Order struct {
	// ID is the deterministic per-run sequence identifier of this fill.
	ID int `json:"id" yaml:"id" csv:"id"`
	// Action is the fill direction.
	Action Side `json:"action" yaml:"action" csv:"action" validate:"required,oneof=buy sell"`
	// Amount is the quantity of the asset transacted.
	Amount float64 `json:"amount" yaml:"amount" csv:"amount" validate:"required,gt=0"`
	// Price is the fill price, after slippage/spread adjustment when modeled.
	Price float64 `json:"price" yaml:"price" csv:"price" validate:"required,gt=0"`
	// Timestamp is the bar at which the fill settles - always the bar after
	// the signal bar, except for the forced end-of-data liquidation.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp" csv:"timestamp" validate:"required"`
	// Reason is set on sell fills only.
	Reason ExitReason `json:"reason,omitempty" yaml:"reason,omitempty" csv:"reason" validate:"omitempty,oneof=signal stop_loss take_profit end_of_backtest"`
	// Fee is the commission paid on this fill, in quote currency.
	Fee float64 `json:"fee" yaml:"fee" csv:"fee" validate:"gte=0"`
}

// Validate validates the Order struct. Sell fills must carry an exit reason
// and buy fills must not.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	if o.Action == SideSell && o.Reason == "" {
		return errors.New(errors.ErrCodeInvalidOrder, "sell order missing exit reason")
	}

	if o.Action == SideBuy && o.Reason != "" {
		return errors.Newf(errors.ErrCodeInvalidOrder, "buy order must not carry an exit reason, got %q", o.Reason)
	}

	return nil
}
