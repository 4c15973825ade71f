package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/openquant-lab/trendtest/pkg/marketdata/provider"
	"github.com/openquant-lab/trendtest/pkg/marketdata/writer"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// timespans maps CLI resolution names to polygon-style timespans.
var timespans = map[string]models.Timespan{
	"minute": models.Minute,
	"hour":   models.Hour,
	"day":    models.Day,
	"week":   models.Week,
	"month":  models.Month,
}

// downloadAction fetches historical bars from a vendor into a CSV or Parquet
// file the backtest and optimize commands can replay.
func downloadAction(ctx context.Context, cmd *cli.Command) error {
	ticker := cmd.String("ticker")
	startDate := cmd.Timestamp("start")
	endDate := cmd.Timestamp("end")
	outputPath := cmd.String("output")

	timespan, ok := timespans[cmd.String("timespan")]
	if !ok {
		return fmt.Errorf("unsupported timespan %q", cmd.String("timespan"))
	}

	format, err := writer.FormatForPath(outputPath)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create output directory %s: %w", dir, err)
		}
	}

	providerType := provider.Type(cmd.String("provider"))

	var config any
	if providerType == provider.TypePolygon {
		config = os.Getenv("POLYGON_API_KEY")
	}

	client, err := provider.New(providerType, config)
	if err != nil {
		return err
	}

	client.ConfigWriter(writer.NewDuckDBWriter(outputPath, format))

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s", ticker)),
		progressbar.OptionShowCount(),
	)

	onProgress := func(current, total float64, message string) {
		if total > 0 {
			_ = bar.Set(int(current / total * 100))
		}
	}

	path, err := client.Download(ctx, ticker, startDate, endDate,
		int(cmd.Int("multiplier")), timespan, onProgress)
	if err != nil {
		return err
	}

	_ = bar.Finish()
	fmt.Printf("\nwrote %s\n", path)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "download",
		Usage: "Download historical bars from a market data vendor",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "ticker",
				Aliases:  []string{"t"},
				Usage:    "Ticker symbol, e.g. BTCUSDT for binance or AAPL for polygon",
				Required: true,
			},
			&cli.TimestampFlag{
				Name:    "start",
				Aliases: []string{"s"},
				Usage:   "Start date in `YYYY-MM-DD` format",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
				Required: true,
			},
			&cli.TimestampFlag{
				Name:    "end",
				Aliases: []string{"e"},
				Usage:   "End date in `YYYY-MM-DD` format. Defaults to today.",
				Value:   time.Now(),
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   fmt.Sprintf("Data vendor (%s, %s)", provider.TypeBinance, provider.TypePolygon),
				Value:   string(provider.TypeBinance),
			},
			&cli.StringFlag{
				Name:  "timespan",
				Usage: "Bar resolution (minute, hour, day, week, month)",
				Value: "hour",
			},
			&cli.IntFlag{
				Name:  "multiplier",
				Usage: "Resolution multiplier, e.g. 4 with --timespan hour for 4h bars",
				Value: 1,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file (.csv or .parquet)",
				Value:   "data/bars.parquet",
			},
		},
		Action: downloadAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
