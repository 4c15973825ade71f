package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/openquant-lab/trendtest/pkg/errors"
	"github.com/openquant-lab/trendtest/pkg/marketdata/writer"
	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
)

// polygonPageLimit is the aggregate page size requested from Polygon.
const polygonPageLimit = 50000

// PolygonClient downloads aggregate bars from the Polygon REST API.
type PolygonClient struct {
	client *polygon.Client
	writer writer.BarWriter
}

// NewPolygonClient creates a client. The API key is required.
func NewPolygonClient(apiKey string) (*PolygonClient, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidProvider, "polygon api key is required")
	}

	return &PolygonClient{client: polygon.New(apiKey)}, nil
}

// ConfigWriter implements Provider.
func (c *PolygonClient) ConfigWriter(w writer.BarWriter) {
	c.writer = w
}

// Download implements Provider using the paginated aggregates iterator.
func (c *PolygonClient) Download(ctx context.Context, ticker string, startDate, endDate time.Time,
	multiplier int, timespan models.Timespan, onProgress OnDownloadProgress) (string, error) {
	if c.writer == nil {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "no writer configured: call ConfigWriter first")
	}

	if err := c.writer.Initialize(); err != nil {
		return "", err
	}
	defer c.writer.Close()

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     ticker,
		Multiplier: multiplier,
		Timespan:   timespan,
		From:       models.Millis(startDate),
		To:         models.Millis(endDate),
	}.WithLimit(polygonPageLimit)

	iter := c.client.ListAggs(ctx, params)
	total := endDate.Sub(startDate)
	written := 0

	for iter.Next() {
		agg := iter.Item()
		bar := types.Bar{
			Time:   time.Time(agg.Timestamp).UTC(),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		}

		if err := c.writer.Write(bar); err != nil {
			return "", err
		}

		written++

		if onProgress != nil && written%1000 == 0 {
			elapsed := bar.Time.Sub(startDate)
			onProgress(elapsed.Seconds(), total.Seconds(), fmt.Sprintf("downloading %s aggregates", ticker))
		}
	}

	if err := iter.Err(); err != nil {
		return "", errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err,
			"cannot fetch %s aggregates from polygon", ticker)
	}

	return c.writer.Finalize()
}
