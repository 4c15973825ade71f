// Package backtest implements the event-driven simulation core: a
// deterministic single pass over a signal-annotated bar series producing an
// order ledger and summary performance metrics.
package backtest

import (
	"math"
	"time"

	"github.com/moznion/go-optional"
	"github.com/openquant-lab/trendtest/internal/logger"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/openquant-lab/trendtest/pkg/errors"
	"go.uber.org/zap"
)

// Engine replays a bar series against the trading rule described by its
// Config. An Engine holds no state between runs; the same instance can be
// reused across independent invocations.
type Engine struct {
	config Config
	log    *logger.Logger
}

// Result is the full output of one run. The bar series is an annotated copy
// of the caller's input; the input itself is never mutated.
type Result struct {
	Bars    []types.AnnotatedBar
	Orders  []types.Order
	Metrics types.Metrics
}

// position is the engine-local state of the single open position. Stop and
// take-profit prices are fixed at entry and never re-derived until the
// position closes.
type position struct {
	open       bool
	assets     float64
	entryPrice float64
	stopLoss   float64
	takeProfit float64
}

// NewEngine validates the configuration and builds an engine. A nil logger
// disables logging.
func NewEngine(config Config, log *logger.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Engine{
		config: config,
		log:    log,
	}, nil
}

// Run replays the bar series. Every decision taken from bar i settles at bar
// i+1's open; the final bar's own signal is therefore never acted on. An open
// position at the end of the data is force-closed at the last bar's close so
// the metrics reflect a fully liquidated portfolio.
//
// Run either returns the complete result or an error, never both: a series
// that fails validation produces no partial ledger.
func (e *Engine) Run(bars []types.Bar) (*Result, error) {
	if len(bars) < 2 {
		return nil, errors.NewInsufficientDataErrorf(2, len(bars), "",
			"backtest requires at least 2 bars, got %d", len(bars))
	}

	if err := types.ValidateSeries(bars); err != nil {
		return nil, err
	}

	annotated := make([]types.AnnotatedBar, len(bars))
	for i, bar := range bars {
		annotated[i] = types.AnnotatedBar{
			Bar:            bar,
			PortfolioValue: optional.None[float64](),
		}
	}

	var (
		pos    position
		orders []types.Order
	)

	cash := e.config.InitialCapital
	buyAdjust := 1 + e.config.SlippagePercent + e.config.Spread
	sellAdjust := 1 - e.config.SlippagePercent - e.config.Spread

	for i := 0; i < len(bars)-1; i++ {
		next := bars[i+1]
		atr := bars[i].ATR

		// Exit checks use the position state carried in from the previous
		// step; a position opened below settles its protective exits from the
		// next iteration on. Stop-loss wins when both legs would match.
		if pos.open {
			currentClose := bars[i].Close

			switch {
			case currentClose <= pos.stopLoss:
				cash = e.closePosition(&pos, &orders, next.Open*sellAdjust, next.Time, types.ExitReasonStopLoss)
			case currentClose >= pos.takeProfit:
				cash = e.closePosition(&pos, &orders, next.Open*sellAdjust, next.Time, types.ExitReasonTakeProfit)
			}
		}

		switch {
		case bars[i].Signal == types.SignalBuy && !pos.open && cash > 0:
			if err := e.checkEntryATR(atr, bars[i].Time); err != nil {
				return nil, err
			}

			fillPrice := next.Open * buyAdjust
			assets := cash / fillPrice * (1 - e.config.Commission)
			fee := cash * e.config.Commission

			pos = position{
				open:       true,
				assets:     assets,
				entryPrice: fillPrice,
				stopLoss:   e.stopLossPrice(fillPrice, atr),
				takeProfit: e.takeProfitPrice(fillPrice, atr),
			}

			orders = append(orders, types.Order{
				ID:        len(orders) + 1,
				Action:    types.SideBuy,
				Amount:    assets,
				Price:     fillPrice,
				Timestamp: next.Time,
				Fee:       fee,
			})

			cash = 0

			e.log.Debug("position opened",
				zap.Time("timestamp", next.Time),
				zap.Float64("price", fillPrice),
				zap.Float64("assets", assets),
				zap.Float64("stop_loss", pos.stopLoss),
				zap.Float64("take_profit", pos.takeProfit),
			)
		case bars[i].Signal == types.SignalSell && pos.open:
			cash = e.closePosition(&pos, &orders, next.Open*sellAdjust, next.Time, types.ExitReasonSignal)
		}

		annotated[i+1].PortfolioValue = optional.Some(cash + pos.assets*next.Close)
	}

	if pos.open {
		last := bars[len(bars)-1]
		cash = e.closePosition(&pos, &orders, last.Close*sellAdjust, last.Time, types.ExitReasonEndOfBacktest)
	}

	metrics := computeMetrics(annotated, e.config.InitialCapital, cash, len(orders), e.config.barsPerYear())

	e.log.Info("backtest complete",
		zap.Int("bars", len(bars)),
		zap.Int("orders", len(orders)),
		zap.Float64("final_value", metrics.FinalValue),
		zap.Float64("sharpe_ratio", metrics.SharpeRatio),
	)

	return &Result{
		Bars:    annotated,
		Orders:  orders,
		Metrics: metrics,
	}, nil
}

// closePosition liquidates the open position at the given fill price,
// appends the sell order and returns the resulting cash.
func (e *Engine) closePosition(pos *position, orders *[]types.Order, fillPrice float64, timestamp time.Time, reason types.ExitReason) float64 {
	gross := pos.assets * fillPrice
	fee := gross * e.config.Commission

	*orders = append(*orders, types.Order{
		ID:        len(*orders) + 1,
		Action:    types.SideSell,
		Amount:    pos.assets,
		Price:     fillPrice,
		Timestamp: timestamp,
		Reason:    reason,
		Fee:       fee,
	})

	e.log.Debug("position closed",
		zap.Time("timestamp", timestamp),
		zap.Float64("price", fillPrice),
		zap.String("reason", string(reason)),
	)

	*pos = position{}

	return gross - fee
}

// checkEntryATR rejects entries whose protective exits would be derived from
// a missing volatility value. ATR is only required when at least one
// multiplier is active.
func (e *Engine) checkEntryATR(atr float64, signalTime time.Time) error {
	if e.config.StopLossMultiplier == 0 && e.config.TakeProfitMultiplier == 0 {
		return nil
	}

	if math.IsNaN(atr) || atr < 0 {
		return errors.Newf(errors.ErrCodeInvalidIndicator,
			"missing or negative atr for entry signalled at %s", signalTime.Format(time.RFC3339))
	}

	return nil
}

func (e *Engine) stopLossPrice(entry, atr float64) float64 {
	if e.config.StopLossMultiplier == 0 {
		return math.Inf(-1)
	}

	return entry - atr*e.config.StopLossMultiplier
}

func (e *Engine) takeProfitPrice(entry, atr float64) float64 {
	if e.config.TakeProfitMultiplier == 0 {
		return math.Inf(1)
	}

	return entry + atr*e.config.TakeProfitMultiplier
}
