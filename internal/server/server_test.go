package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-predictor/internal/dataset"
	"stock-predictor/internal/metrics"
	"stock-predictor/internal/prediction"
)

type stubPredictor struct {
	err error
}

func (p stubPredictor) Predict(_ context.Context, symbol string) (prediction.Result, error) {
	if p.err != nil {
		return prediction.Result{}, p.err
	}
	return prediction.Result{
		Symbol:         dataset.NormalizeSymbol(symbol),
		PredictedPrice: decimal.RequireFromString("123.45"),
		Source:         prediction.SourceModel,
	}, nil
}

func (stubPredictor) ModelLoaded() bool { return true }
func (stubPredictor) WindowSize() int   { return 30 }

func testStore() *dataset.Store {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []dataset.Row
	for i := 0; i < 400; i++ {
		rows = append(rows, dataset.Row{Symbol: "TCS", Date: start.AddDate(0, 0, i), Close: decimal.NewFromInt(int64(1000 + i))})
	}
	rows = append(rows, dataset.Row{Symbol: "INFY", Date: start, Close: decimal.NewFromInt(1500)})
	return dataset.NewStore(rows)
}

func newTestServer(p Predictor, reg *prometheus.Registry) *Server {
	deps := Deps{Predictor: p, Series: testStore()}
	if reg != nil {
		deps.Gatherer = reg
		deps.Observer = metrics.New(reg)
	}
	return New(Config{Version: "test"}, deps, zerolog.Nop())
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStocks(t *testing.T) {
	rec := get(t, newTestServer(stubPredictor{}, nil).Handler(), "/stocks")
	require.Equal(t, http.StatusOK, rec.Code)

	var body stocksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"INFY", "TCS"}, body.Stocks)
}

func TestStocksEmptyStore(t *testing.T) {
	srv := New(Config{Version: "test"}, Deps{Predictor: stubPredictor{}, Series: dataset.NewStore(nil)}, zerolog.Nop())
	rec := get(t, srv.Handler(), "/stocks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stocks":[]}`, rec.Body.String())
}

func TestPredict(t *testing.T) {
	rec := get(t, newTestServer(stubPredictor{}, nil).Handler(), "/predict/tcs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "TCS", body["symbol"])
	assert.Equal(t, 123.45, body["predicted_price"])
	assert.Equal(t, "model", body["source"])
}

func TestPredictError(t *testing.T) {
	rec := get(t, newTestServer(stubPredictor{err: errors.New("down")}, nil).Handler(), "/predict/TCS")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPriceRanges(t *testing.T) {
	h := newTestServer(stubPredictor{}, nil).Handler()

	cases := map[string]int{
		"":    32, // default 1mo: last date 2024-02-04, cutoff 2024-01-04
		"1mo": 32,
		"6mo": 185,
		"1y":  366,
	}
	for rng, want := range cases {
		target := "/price/tcs"
		if rng != "" {
			target += "?range=" + rng
		}
		rec := get(t, h, target)
		require.Equal(t, http.StatusOK, rec.Code, rng)

		var body priceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "TCS", body.Symbol)
		assert.Len(t, body.Prices, want, rng)
		assert.Equal(t, "2024-02-04", body.Prices[len(body.Prices)-1].Date)
		assert.Equal(t, 1399.0, body.Prices[len(body.Prices)-1].Close)
	}
}

func TestPriceRangeMonthEnd(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []dataset.Row
	for d := start; d.Month() <= time.March; d = d.AddDate(0, 0, 1) {
		rows = append(rows, dataset.Row{Symbol: "TCS", Date: d, Close: decimal.NewFromInt(int64(d.YearDay()))})
	}
	srv := New(Config{Version: "test"}, Deps{Predictor: stubPredictor{}, Series: dataset.NewStore(rows)}, zerolog.Nop())

	rec := get(t, srv.Handler(), "/price/TCS?range=1mo")
	require.Equal(t, http.StatusOK, rec.Code)

	var body priceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Prices, 32)
	assert.Equal(t, "2024-02-29", body.Prices[0].Date)
	assert.Equal(t, "2024-03-31", body.Prices[len(body.Prices)-1].Date)
}

func TestMonthsBefore(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		from   time.Time
		months int
		want   time.Time
	}{
		{day(2024, time.March, 31), 1, day(2024, time.February, 29)},
		{day(2024, time.August, 31), 6, day(2024, time.February, 29)},
		{day(2024, time.February, 29), 12, day(2023, time.February, 28)},
		{day(2024, time.May, 31), 1, day(2024, time.April, 30)},
		{day(2024, time.May, 15), 1, day(2024, time.April, 15)},
		{day(2024, time.January, 31), 1, day(2023, time.December, 31)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, monthsBefore(tc.from, tc.months), tc.from.Format("2006-01-02"))
	}
}

func TestPriceInvalidRange(t *testing.T) {
	rec := get(t, newTestServer(stubPredictor{}, nil).Handler(), "/price/TCS?range=5y")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "range")
}

func TestPriceUnknownSymbol(t *testing.T) {
	rec := get(t, newTestServer(stubPredictor{}, nil).Handler(), "/price/NOPE")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(stubPredictor{}, nil).Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.ModelLoaded)
	assert.Equal(t, 30, body.WindowSize)
	assert.Equal(t, 2, body.Symbols)
	assert.Equal(t, "test", body.Version)
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stocks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	newTestServer(stubPredictor{}, nil).Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newTestServer(stubPredictor{}, reg).Handler()

	get(t, h, "/stocks")
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `stockpredictor_http_requests_total{method="GET",route="/stocks",status="200"} 1`)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, Deps{Predictor: stubPredictor{}, Series: testStore()}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
