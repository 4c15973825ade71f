package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/gorilla/mux"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/stretchr/testify/suite"
)

// mockWriter collects written bars in memory.
type mockWriter struct {
	initialized bool
	finalized   bool
	closed      bool
	bars        []types.Bar
	writeErr    error
}

func (m *mockWriter) Initialize() error {
	m.initialized = true
	return nil
}

func (m *mockWriter) Write(bar types.Bar) error {
	if m.writeErr != nil {
		return m.writeErr
	}

	m.bars = append(m.bars, bar)

	return nil
}

func (m *mockWriter) Finalize() (string, error) {
	m.finalized = true
	return "out.parquet", nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

// mockKlinesAPI replays canned pages in order.
type mockKlinesAPI struct {
	pages      [][]*binance.Kline
	calls      int
	lastStarts []int64
}

func (m *mockKlinesAPI) NewKlinesService() KlinesService {
	return &mockKlinesService{api: m}
}

type mockKlinesService struct {
	api   *mockKlinesAPI
	start int64
}

func (s *mockKlinesService) Symbol(string) KlinesService   { return s }
func (s *mockKlinesService) Interval(string) KlinesService { return s }
func (s *mockKlinesService) EndTime(int64) KlinesService   { return s }
func (s *mockKlinesService) Limit(int) KlinesService       { return s }

func (s *mockKlinesService) StartTime(startTime int64) KlinesService {
	s.start = startTime
	return s
}

func (s *mockKlinesService) Do(context.Context) ([]*binance.Kline, error) {
	s.api.lastStarts = append(s.api.lastStarts, s.start)

	if s.api.calls >= len(s.api.pages) {
		return nil, nil
	}

	page := s.api.pages[s.api.calls]
	s.api.calls++

	return page, nil
}

func kline(openTime int64, price string) *binance.Kline {
	return &binance.Kline{
		OpenTime:  openTime,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    "100",
		CloseTime: openTime + 3599999,
	}
}

func fullPage(startMillis int64) []*binance.Kline {
	page := make([]*binance.Kline, binancePageSize)
	for i := range page {
		page[i] = kline(startMillis+int64(i)*3600000, "100.5")
	}

	return page
}

type BinanceClientTestSuite struct {
	suite.Suite
}

func TestBinanceClientSuite(t *testing.T) {
	suite.Run(t, new(BinanceClientTestSuite))
}

func (suite *BinanceClientTestSuite) TestDownloadSinglePage() {
	api := &mockKlinesAPI{pages: [][]*binance.Kline{
		{kline(1700000000000, "100.5"), kline(1700003600000, "101.5")},
	}}
	client := NewBinanceClientWithAPI(api)
	w := &mockWriter{}
	client.ConfigWriter(w)

	path, err := client.Download(context.Background(), "BTCUSDT",
		time.UnixMilli(1700000000000), time.UnixMilli(1700010000000), 1, models.Hour, nil)
	suite.Require().NoError(err)
	suite.Equal("out.parquet", path)
	suite.Equal(1, api.calls)

	suite.Require().Len(w.bars, 2)
	suite.Equal(time.UnixMilli(1700000000000).UTC(), w.bars[0].Time)
	suite.Equal(100.5, w.bars[0].Open)
	suite.Equal(100.0, w.bars[0].Volume)
	suite.True(w.finalized)
	suite.True(w.closed)
}

func (suite *BinanceClientTestSuite) TestDownloadPaginates() {
	first := fullPage(1700000000000)
	lastClose := first[len(first)-1].CloseTime

	api := &mockKlinesAPI{pages: [][]*binance.Kline{
		first,
		{kline(lastClose+1, "102.5")},
	}}
	client := NewBinanceClientWithAPI(api)
	w := &mockWriter{}
	client.ConfigWriter(w)

	end := time.UnixMilli(lastClose + 7200000)

	_, err := client.Download(context.Background(), "BTCUSDT",
		time.UnixMilli(1700000000000), end, 1, models.Hour, nil)
	suite.Require().NoError(err)

	suite.Equal(2, api.calls)
	suite.Len(w.bars, binancePageSize+1)

	// The second request starts right after the first page's close time.
	suite.Require().Len(api.lastStarts, 2)
	suite.Equal(lastClose+1, api.lastStarts[1])
}

func (suite *BinanceClientTestSuite) TestDownloadRequiresWriter() {
	client := NewBinanceClientWithAPI(&mockKlinesAPI{})

	_, err := client.Download(context.Background(), "BTCUSDT",
		time.Now().Add(-time.Hour), time.Now(), 1, models.Hour, nil)
	suite.Error(err)
}

func (suite *BinanceClientTestSuite) TestDownloadRejectsBadTimespan() {
	client := NewBinanceClientWithAPI(&mockKlinesAPI{})
	client.ConfigWriter(&mockWriter{})

	_, err := client.Download(context.Background(), "BTCUSDT",
		time.Now().Add(-time.Hour), time.Now(), 3, models.Week, nil)
	suite.Error(err)
}

func (suite *BinanceClientTestSuite) TestDownloadReportsProgress() {
	api := &mockKlinesAPI{pages: [][]*binance.Kline{
		{kline(1700000000000, "100.5")},
	}}
	client := NewBinanceClientWithAPI(api)
	client.ConfigWriter(&mockWriter{})

	var messages []string

	_, err := client.Download(context.Background(), "BTCUSDT",
		time.UnixMilli(1700000000000), time.UnixMilli(1700010000000), 1, models.Hour,
		func(current, total float64, message string) {
			messages = append(messages, message)
		})
	suite.Require().NoError(err)
	suite.NotEmpty(messages)
	suite.Contains(messages[0], "BTCUSDT")
}

// TestDownloadAgainstMockServer drives the real Binance client against a
// local HTTP server.
func (suite *BinanceClientTestSuite) TestDownloadAgainstMockServer() {
	router := mux.NewRouter()
	router.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			[1700000000000,"100.5","101.0","99.5","100.8","1500.0",1700003599999,"151200.0",300,"750.0","75600.0","0"],
			[1700003600000,"100.8","102.0","100.2","101.9","1600.0",1700007199999,"163040.0",320,"800.0","81520.0","0"]
		]`))
	}).Methods(http.MethodGet)

	server := httptest.NewServer(router)
	defer server.Close()

	bc := binance.NewClient("", "")
	bc.BaseURL = server.URL

	client := NewBinanceClientWithAPI(liveKlinesAPI{client: bc})
	w := &mockWriter{}
	client.ConfigWriter(w)

	_, err := client.Download(context.Background(), "BTCUSDT",
		time.UnixMilli(1700000000000), time.UnixMilli(1700007200000), 1, models.Hour, nil)
	suite.Require().NoError(err)

	suite.Require().Len(w.bars, 2)
	suite.Equal(100.5, w.bars[0].Open)
	suite.Equal(101.9, w.bars[1].Close)
	suite.Equal(1600.0, w.bars[1].Volume)
}

func (suite *BinanceClientTestSuite) TestBinanceInterval() {
	cases := []struct {
		timespan   models.Timespan
		multiplier int
		want       string
	}{
		{models.Minute, 15, "15m"},
		{models.Hour, 1, "1h"},
		{models.Day, 1, "1d"},
		{models.Week, 1, "1w"},
		{models.Month, 1, "1M"},
	}

	for _, c := range cases {
		got, err := binanceInterval(c.timespan, c.multiplier)
		suite.Require().NoError(err)
		suite.Equal(c.want, got)
	}

	_, err := binanceInterval(models.Year, 1)
	suite.Error(err)
}
