package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Metrics is the summary of one backtest run, derived entirely from the
// portfolio-value column. A run with fewer than two priced bars degrades all
// ratio fields to zero rather than erroring.
type Metrics struct {
	// FinalValue is the terminal cash after the forced liquidation.
	FinalValue float64 `json:"final_value" yaml:"final_value"`
	// TotalReturnPercent is (final - initial) / initial * 100.
	TotalReturnPercent float64 `json:"total_return_percent" yaml:"total_return_percent"`
	// MaxDrawdownPercent is the largest peak-to-trough equity decline, as a
	// percentage of the peak.
	MaxDrawdownPercent float64 `json:"max_drawdown_percent" yaml:"max_drawdown_percent"`
	// SharpeRatio is mean(returns)/stdev(returns), annualized by the
	// configured bars-per-year.
	SharpeRatio float64 `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	// NumOrders is the length of the order ledger.
	NumOrders int `json:"num_orders" yaml:"num_orders"`
}

// WriteMetrics marshals metrics to YAML at the given path.
func WriteMetrics(path string, metrics Metrics) error {
	data, err := yaml.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics to file: %w", err)
	}

	return nil
}
