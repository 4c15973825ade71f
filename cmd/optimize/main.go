package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/openquant-lab/trendtest/internal/backtest"
	"github.com/openquant-lab/trendtest/internal/datasource"
	"github.com/openquant-lab/trendtest/internal/logger"
	"github.com/openquant-lab/trendtest/internal/optimizer"
	"github.com/openquant-lab/trendtest/internal/results"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// optimizeAction searches the strategy parameter space over the given bar
// file and persists the trial ledger plus the winning model.
func optimizeAction(ctx context.Context, cmd *cli.Command) error {
	dataPath := cmd.String("data")
	symbol := cmd.String("symbol")
	outputDir := cmd.String("output")

	if symbol == "" {
		symbol = strings.TrimSuffix(filepath.Base(dataPath), filepath.Ext(dataPath))
	}

	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := optimizer.Options{
		Engine:       backtest.DefaultConfig(cmd.Float("capital"), cmd.Float("commission")),
		Trials:       int(cmd.Int("trials")),
		Workers:      int(cmd.Int("workers")),
		Seed:         cmd.Int("seed"),
		ShowProgress: true,
	}

	if spacePath := cmd.String("space"); spacePath != "" {
		raw, err := os.ReadFile(spacePath)
		if err != nil {
			return fmt.Errorf("cannot read search space %s: %w", spacePath, err)
		}

		if err := yaml.Unmarshal(raw, &opts.Space); err != nil {
			return fmt.Errorf("cannot parse search space %s: %w", spacePath, err)
		}
	}

	loader, err := datasource.NewDuckDB(log)
	if err != nil {
		return err
	}
	defer loader.Close()

	bars, err := loader.Load(dataPath, 0)
	if err != nil {
		return err
	}

	store, err := results.NewStore(outputDir, log)
	if err != nil {
		return err
	}
	defer store.Close()

	opt, err := optimizer.NewOptimizer(opts, store, log)
	if err != nil {
		return err
	}

	report, err := opt.Run(ctx, bars, symbol)
	if err != nil {
		return err
	}

	trialsPath, err := store.ExportTrialsCSV(symbol)
	if err != nil {
		return err
	}

	resultPath, err := store.SaveModelResult(report.Best.Candidate,
		report.BestResult.Metrics.FinalValue, report.BestResult.Orders,
		symbol, opts.Engine.InitialCapital)
	if err != nil {
		return err
	}

	metricsPath := filepath.Join(outputDir, fmt.Sprintf("metrics_%s.yaml", strings.ReplaceAll(symbol, "/", "_")))
	if err := types.WriteMetrics(metricsPath, report.BestResult.Metrics); err != nil {
		return err
	}

	fmt.Printf("run id:        %s\n", report.RunID)
	fmt.Printf("best trial:    %d of %d\n", report.Best.Number, len(report.Trials))
	fmt.Printf("best sharpe:   %.4f\n", report.Best.SharpeRatio)
	fmt.Printf("final value:   %.2f\n", report.BestResult.Metrics.FinalValue)
	fmt.Printf("total return:  %.2f%%\n", report.BestResult.Metrics.TotalReturnPercent)
	fmt.Printf("trials csv:    %s\n", trialsPath)
	fmt.Printf("best model:    %s\n", resultPath)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "optimize",
		Usage: "Search strategy parameters for the best risk-adjusted return",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Bar file to replay (.csv or .parquet)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "symbol",
				Usage: "Symbol label for the output files (defaults to the data file name)",
			},
			&cli.IntFlag{
				Name:    "trials",
				Aliases: []string{"n"},
				Usage:   "Number of sampled candidates",
				Value:   100,
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Parallel evaluations (0 means all CPUs)",
			},
			&cli.IntFlag{
				Name:  "seed",
				Usage: "Sampling seed for reproducible runs",
				Value: 1,
			},
			&cli.FloatFlag{
				Name:  "capital",
				Usage: "Initial capital",
				Value: 10000,
			},
			&cli.FloatFlag{
				Name:  "commission",
				Usage: "Per-fill commission fraction",
				Value: 0.001,
			},
			&cli.StringFlag{
				Name:  "space",
				Usage: "Search space YAML (defaults to the built-in bounds)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory",
				Value:   "order_bin",
			},
		},
		Action: optimizeAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
