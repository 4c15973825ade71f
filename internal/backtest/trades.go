package backtest

import (
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/shopspring/decimal"
)

// TradeSummary aggregates the ledger into realized round-trip results. The
// portfolio holds one position at a time, so every sell closes the
// immediately preceding buy.
type TradeSummary struct {
	// NumberOfTrades counts completed round trips (buy plus closing sell).
	NumberOfTrades int `yaml:"number_of_trades" json:"number_of_trades"`
	// NumberOfWinningTrades counts round trips with positive realized PnL.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades" json:"number_of_winning_trades"`
	// NumberOfLosingTrades counts round trips with negative realized PnL.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades" json:"number_of_losing_trades"`
	// WinRate is winning trades over completed trades.
	WinRate float64 `yaml:"win_rate" json:"win_rate"`
	// RealizedPnL is the fee-inclusive profit over all completed round trips.
	RealizedPnL float64 `yaml:"realized_pnl" json:"realized_pnl"`
	// TotalFees is the commission paid across all fills, entries included.
	TotalFees float64 `yaml:"total_fees" json:"total_fees"`
}

// TradeSummary pairs each sell with its preceding buy and nets the cash
// flows, fees included.
func (r *Result) TradeSummary() TradeSummary {
	var summary TradeSummary

	totalPnL := decimal.Zero
	totalFees := decimal.Zero

	var entryCost decimal.Decimal

	haveEntry := false

	for _, order := range r.Orders {
		fee := decimal.NewFromFloat(order.Fee)
		totalFees = totalFees.Add(fee)
		gross := decimal.NewFromFloat(order.Amount).Mul(decimal.NewFromFloat(order.Price))

		switch order.Action {
		case types.SideBuy:
			entryCost = gross.Add(fee)
			haveEntry = true
		case types.SideSell:
			if !haveEntry {
				continue
			}

			pnl := gross.Sub(fee).Sub(entryCost)
			totalPnL = totalPnL.Add(pnl)
			summary.NumberOfTrades++

			if pnl.IsPositive() {
				summary.NumberOfWinningTrades++
			} else if pnl.IsNegative() {
				summary.NumberOfLosingTrades++
			}

			haveEntry = false
		}
	}

	if summary.NumberOfTrades > 0 {
		summary.WinRate = float64(summary.NumberOfWinningTrades) / float64(summary.NumberOfTrades)
	}

	summary.RealizedPnL, _ = totalPnL.Float64()
	summary.TotalFees, _ = totalFees.Float64()

	return summary
}
