package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/openquant-lab/trendtest/internal/backtest"
	"github.com/openquant-lab/trendtest/internal/datasource"
	"github.com/openquant-lab/trendtest/internal/logger"
	"github.com/openquant-lab/trendtest/internal/results"
	"github.com/openquant-lab/trendtest/internal/strategy"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// backtestAction loads bars, annotates them with the chosen strategy and
// replays them through the engine, writing metrics, orders and the equity
// curve into the output directory.
func backtestAction(ctx context.Context, cmd *cli.Command) error {
	dataPath := cmd.String("data")
	symbol := cmd.String("symbol")
	outputDir := cmd.String("output")
	limit := int(cmd.Int("limit"))

	if symbol == "" {
		symbol = strings.TrimSuffix(filepath.Base(dataPath), filepath.Ext(dataPath))
	}

	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	config, err := loadEngineConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	strat, err := loadStrategy(cmd.String("strategy"), cmd.String("params"))
	if err != nil {
		return err
	}

	loader, err := datasource.NewDuckDB(log)
	if err != nil {
		return err
	}
	defer loader.Close()

	bars, err := loader.Load(dataPath, limit)
	if err != nil {
		return err
	}

	annotated, err := strat.Annotate(bars)
	if err != nil {
		return err
	}

	engine, err := backtest.NewEngine(config, log)
	if err != nil {
		return err
	}

	result, err := engine.Run(annotated)
	if err != nil {
		return err
	}

	store, err := results.NewStore(outputDir, log)
	if err != nil {
		return err
	}
	defer store.Close()

	modelParams := struct {
		Strategy string `json:"strategy"`
		Params   any    `json:"params"`
	}{strat.Name(), strategy.ModelParams(strat)}

	resultPath, err := store.SaveModelResult(modelParams,
		result.Metrics.FinalValue, result.Orders, symbol, config.InitialCapital)
	if err != nil {
		return err
	}

	metricsPath := filepath.Join(outputDir, fmt.Sprintf("metrics_%s.yaml", strings.ReplaceAll(symbol, "/", "_")))
	if err := types.WriteMetrics(metricsPath, result.Metrics); err != nil {
		return err
	}

	equityPath := filepath.Join(outputDir, fmt.Sprintf("equity_%s.json", strings.ReplaceAll(symbol, "/", "_")))
	if err := writeEquityCurve(equityPath, result.Bars); err != nil {
		return err
	}

	summary := result.TradeSummary()

	fmt.Printf("strategy:          %s\n", strat.Name())
	fmt.Printf("bars:              %d\n", len(result.Bars))
	fmt.Printf("final value:       %.2f\n", result.Metrics.FinalValue)
	fmt.Printf("total return:      %.2f%%\n", result.Metrics.TotalReturnPercent)
	fmt.Printf("max drawdown:      %.2f%%\n", result.Metrics.MaxDrawdownPercent)
	fmt.Printf("sharpe ratio:      %.2f\n", result.Metrics.SharpeRatio)
	fmt.Printf("orders:            %d\n", result.Metrics.NumOrders)
	fmt.Printf("completed trades:  %d (win rate %.0f%%)\n", summary.NumberOfTrades, summary.WinRate*100)
	fmt.Printf("results:           %s\n", resultPath)

	return nil
}

func loadEngineConfig(path string) (backtest.Config, error) {
	if path == "" {
		return backtest.DefaultConfig(10000, 0.001), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("cannot read engine config %s: %w", path, err)
	}

	var config backtest.Config
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return backtest.Config{}, fmt.Errorf("cannot parse engine config %s: %w", path, err)
	}

	return config, nil
}

func loadStrategy(name, paramsPath string) (strategy.Strategy, error) {
	var params []byte

	if paramsPath != "" {
		raw, err := os.ReadFile(paramsPath)
		if err != nil {
			return nil, fmt.Errorf("cannot read strategy params %s: %w", paramsPath, err)
		}

		params = raw
	}

	return strategy.New(name, params)
}

func writeEquityCurve(path string, bars []types.AnnotatedBar) error {
	payload, err := json.MarshalIndent(bars, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode equity curve: %w", err)
	}

	return os.WriteFile(path, payload, 0o644)
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Replay a signal strategy over historical bars",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Bar file to replay (.csv or .parquet)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Engine configuration YAML (defaults to 10000 capital, 0.1% commission)",
			},
			&cli.StringFlag{
				Name:    "strategy",
				Aliases: []string{"s"},
				Usage:   fmt.Sprintf("Signal strategy (%s)", strings.Join(strategy.Names(), ", ")),
				Value:   "moving_average",
			},
			&cli.StringFlag{
				Name:    "params",
				Aliases: []string{"p"},
				Usage:   "Strategy parameter YAML (defaults per strategy)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Replay only the most recent N bars (0 means all)",
			},
			&cli.StringFlag{
				Name:    "symbol",
				Usage:   "Symbol label for the output files (defaults to the data file name)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory",
				Value:   "order_bin",
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
