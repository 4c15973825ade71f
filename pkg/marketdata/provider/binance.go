package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/openquant-lab/trendtest/pkg/errors"
	"github.com/openquant-lab/trendtest/pkg/marketdata/writer"
	"github.com/polygon-io/client-go/rest/models"
)

// binancePageSize is the kline page limit enforced by the Binance API.
const binancePageSize = 500

// KlinesService mirrors the part of the Binance klines request builder the
// downloader uses, so tests can fake pagination.
type KlinesService interface {
	Symbol(symbol string) KlinesService
	Interval(interval string) KlinesService
	StartTime(startTime int64) KlinesService
	EndTime(endTime int64) KlinesService
	Limit(limit int) KlinesService
	Do(ctx context.Context) ([]*binance.Kline, error)
}

// KlinesAPI creates kline requests.
type KlinesAPI interface {
	NewKlinesService() KlinesService
}

// BinanceClient downloads klines from the public Binance API. No credentials
// are needed for historical data.
type BinanceClient struct {
	api    KlinesAPI
	writer writer.BarWriter
}

// NewBinanceClient creates a client against the live API.
func NewBinanceClient() *BinanceClient {
	return &BinanceClient{api: liveKlinesAPI{client: binance.NewClient("", "")}}
}

// NewBinanceClientWithAPI creates a client over a custom API, used in tests.
func NewBinanceClientWithAPI(api KlinesAPI) *BinanceClient {
	return &BinanceClient{api: api}
}

// ConfigWriter implements Provider.
func (c *BinanceClient) ConfigWriter(w writer.BarWriter) {
	c.writer = w
}

// Download implements Provider. Binance pages klines at 500 rows, so the
// request window advances past the last close time until the range is
// covered.
func (c *BinanceClient) Download(ctx context.Context, ticker string, startDate, endDate time.Time,
	multiplier int, timespan models.Timespan, onProgress OnDownloadProgress) (string, error) {
	if c.writer == nil {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "no writer configured: call ConfigWriter first")
	}

	interval, err := binanceInterval(timespan, multiplier)
	if err != nil {
		return "", err
	}

	if err := c.writer.Initialize(); err != nil {
		return "", err
	}
	defer c.writer.Close()

	startMillis := startDate.UnixMilli()
	endMillis := endDate.UnixMilli()
	currentStart := startMillis

	for {
		klines, err := c.api.NewKlinesService().
			Symbol(ticker).
			Interval(interval).
			StartTime(currentStart).
			EndTime(endMillis).
			Limit(binancePageSize).
			Do(ctx)
		if err != nil {
			return "", errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err,
				"cannot fetch %s klines from binance", ticker)
		}

		if onProgress != nil {
			onProgress(float64(currentStart-startMillis), float64(endMillis-startMillis),
				fmt.Sprintf("downloading %s klines", ticker))
		}

		if err := c.writeKlines(klines); err != nil {
			return "", err
		}

		// A short page is the last one.
		if len(klines) < binancePageSize {
			break
		}

		currentStart = klines[len(klines)-1].CloseTime + 1
		if currentStart >= endMillis {
			break
		}
	}

	return c.writer.Finalize()
}

func (c *BinanceClient) writeKlines(klines []*binance.Kline) error {
	for _, k := range klines {
		bar, err := klineToBar(k)
		if err != nil {
			return err
		}

		if err := c.writer.Write(bar); err != nil {
			return err
		}
	}

	return nil
}

// klineToBar parses the string-encoded kline fields. The bar is stamped with
// the kline's open time.
func klineToBar(k *binance.Kline) (types.Bar, error) {
	fields := map[string]string{
		"open":   k.Open,
		"high":   k.High,
		"low":    k.Low,
		"close":  k.Close,
		"volume": k.Volume,
	}

	parsed := make(map[string]float64, len(fields))

	for name, raw := range fields {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err,
				"cannot parse kline %s %q", name, raw)
		}

		parsed[name] = value
	}

	return types.Bar{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   parsed["open"],
		High:   parsed["high"],
		Low:    parsed["low"],
		Close:  parsed["close"],
		Volume: parsed["volume"],
	}, nil
}

// binanceInterval converts the polygon-style resolution to a Binance
// interval string.
func binanceInterval(timespan models.Timespan, multiplier int) (string, error) {
	switch timespan {
	case models.Minute:
		return fmt.Sprintf("%dm", multiplier), nil
	case models.Hour:
		return fmt.Sprintf("%dh", multiplier), nil
	case models.Day:
		return fmt.Sprintf("%dd", multiplier), nil
	case models.Week:
		if multiplier == 1 {
			return "1w", nil
		}

		return "", errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported weekly multiplier %d for binance", multiplier)
	case models.Month:
		if multiplier == 1 {
			return "1M", nil
		}

		return "", errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported monthly multiplier %d for binance", multiplier)
	default:
		return "", errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported timespan %q for binance", timespan)
	}
}

// liveKlinesAPI adapts the concrete Binance client to KlinesAPI.
type liveKlinesAPI struct {
	client *binance.Client
}

func (a liveKlinesAPI) NewKlinesService() KlinesService {
	return &liveKlinesService{svc: a.client.NewKlinesService()}
}

type liveKlinesService struct {
	svc *binance.KlinesService
}

func (s *liveKlinesService) Symbol(symbol string) KlinesService {
	s.svc = s.svc.Symbol(symbol)
	return s
}

func (s *liveKlinesService) Interval(interval string) KlinesService {
	s.svc = s.svc.Interval(interval)
	return s
}

func (s *liveKlinesService) StartTime(startTime int64) KlinesService {
	s.svc = s.svc.StartTime(startTime)
	return s
}

func (s *liveKlinesService) EndTime(endTime int64) KlinesService {
	s.svc = s.svc.EndTime(endTime)
	return s
}

func (s *liveKlinesService) Limit(limit int) KlinesService {
	s.svc = s.svc.Limit(limit)
	return s
}

func (s *liveKlinesService) Do(ctx context.Context) ([]*binance.Kline, error) {
	return s.svc.Do(ctx)
}
