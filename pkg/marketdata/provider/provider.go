// Package provider downloads historical bar series from market data vendors
// into a configured writer.
package provider

import (
	"context"
	"time"

	"github.com/openquant-lab/trendtest/pkg/errors"
	"github.com/openquant-lab/trendtest/pkg/marketdata/writer"
	"github.com/polygon-io/client-go/rest/models"
)

// Type names a market data vendor.
type Type string

const (
	TypeBinance Type = "binance"
	TypePolygon Type = "polygon"
)

// OnDownloadProgress reports download progress. May be nil.
type OnDownloadProgress = func(current float64, total float64, message string)

// Provider downloads bars for one ticker and date range into its writer.
type Provider interface {
	// ConfigWriter sets the destination for downloaded bars.
	ConfigWriter(w writer.BarWriter)
	// Download fetches bars between startDate and endDate at the resolution
	// given by multiplier and timespan, e.g. (1, models.Hour) for hourly
	// bars. Returns the path the writer finalized to.
	Download(ctx context.Context, ticker string, startDate, endDate time.Time,
		multiplier int, timespan models.Timespan, onProgress OnDownloadProgress) (path string, err error)
}

// New creates a provider by vendor type. The polygon vendor needs its API
// key as config.
func New(providerType Type, config any) (Provider, error) {
	switch providerType {
	case TypeBinance:
		return NewBinanceClient(), nil
	case TypePolygon:
		apiKey, ok := config.(string)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidProvider, "polygon provider requires an API key string")
		}

		return NewPolygonClient(apiKey)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported market data provider %q", providerType)
	}
}
