package coinmonitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const instrumentsJSON = `[
  {"id": 1, "symbol": "BTCUSDT", "initial_price": 90, "latest_price": 100, "high_price": 101, "low_price": 88,
   "high_price_1": 95, "low_price_1": 89, "high_price_2": 99, "low_price_2": 0, "high_price_3": null},
  {"id": 2, "symbol": "ETHUSDT", "initial_price": null, "latest_price": 50, "high_price": 60, "low_price": 45}
]`

func newTestServer(t *testing.T, handler http.HandlerFunc) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTClient(srv.URL+"/", 2*time.Second)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// go test -v --run TestListInstruments
func TestListInstruments(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/coin-monitors", r.URL.Path)
		writeJSON(w, http.StatusOK, instrumentsJSON)
	})

	list, err := client.ListInstruments(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	btc := list[0]
	assert.Equal(t, "BTCUSDT", btc.Symbol)
	assert.Equal(t, 100.0, btc.LatestPrice)
	assert.Equal(t, CycleExtrema{High: 95, Low: 89}, btc.Cycles[0])
	assert.Equal(t, CycleExtrema{High: 99}, btc.Cycles[1])
	assert.False(t, btc.Cycles[2].IsSet())

	assert.Equal(t, 0.0, list[1].InitialPrice)
}

// go test -v --run TestInstrumentJSONRoundTrip
func TestInstrumentJSONRoundTrip(t *testing.T) {
	in := Instrument{Symbol: "SOLUSDT", LatestPrice: 10}
	in.Cycles[4] = CycleExtrema{High: 12, Low: 9}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"high_price_5":12`)

	var out Instrument
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

// go test -v --run TestHistoryAndRecentTrades
func TestHistoryAndRecentTrades(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/coin-monitors/BTCUSDT/history":
			writeJSON(w, http.StatusOK, `{"symbol":"BTCUSDT","initial_price":90,
				"current":{"latest_price":100,"high_price":101,"low_price":88},
				"moving_averages":{"ma7":99.5,"ma25":null,"ma99":null},
				"trend_analysis":{"trend":"UPTREND","cycle_status":"active"},
				"history":[{"set":1,"low_price":80,"high_price":100,"prev_cycle_high":null}],
				"updated_at":"2024-05-01T10:00:00"}`)
		case "/api/coin-monitors/BTCUSDT/recent-trades":
			writeJSON(w, http.StatusOK, `{"symbol":"BTCUSDT","period":"3 minutes","total_trades":10,
				"buy_trades":6,"sell_trades":4,"buy_percentage":60,"sell_percentage":40,"trend":"Bullish",
				"binance_link":"https://www.binance.com/en/trade/BTC_USDT"}`)
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	history, err := client.History(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 101.0, history.Current.HighPrice)
	require.NotNil(t, history.MovingAverages)
	assert.Nil(t, history.MovingAverages.MA25)
	require.Len(t, history.History, 1)
	assert.InDelta(t, 25.0, history.History[0].RangePercent(), 1e-9)
	assert.Nil(t, history.History[0].PrevCycleHigh)

	trades, err := client.RecentTrades(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, SentimentBullish, trades.Trend)
	assert.Equal(t, 100.0, trades.BuyPercentage+trades.SellPercentage)
}

// go test -v --run TestAPIErrorDetail
func TestAPIErrorDetail(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"detail":"Price history for symbol XYZ not found"}`)
	})

	_, err := client.History(context.Background(), "XYZ")
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "/api/coin-monitors/XYZ/history", reqErr.Endpoint)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Price history for symbol XYZ not found", apiErr.Detail)
}

// go test -v --run TestDecodeFailure
func TestDecodeFailure(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[{"symbol": 1}`)
	})

	_, err := client.ListInstruments(context.Background())
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
}

// go test -v --run TestPlaceOrder
func TestPlaceOrder(t *testing.T) {
	var got map[string]any
	var requestID string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/trade/sell", r.URL.Path)
		requestID = r.Header.Get(HeaderRequestID)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"message":"Sell order placed"}`)
	})

	msg, err := client.PlaceOrder(context.Background(), SideSell, "", OrderRequest{
		Symbol:       "ETHUSDT",
		Amount:       decimal.NewFromInt(250),
		ClientID:     "id",
		ClientSecret: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sell order placed", msg)
	assert.NotEmpty(t, requestID)
	assert.Equal(t, map[string]any{
		"symbol":        "ETHUSDT",
		"amount":        250.0,
		"client_id":     "id",
		"client_secret": "secret",
	}, got)

	_, err = client.PlaceOrder(context.Background(), Side("hold"), "", OrderRequest{})
	require.Error(t, err)
}

// go test -v --run TestAdminActions
func TestAdminActions(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/coin-monitors/update-initial-prices":
			writeJSON(w, http.StatusOK, `{"message":"Successfully updated initial prices for 3 coins"}`)
		case "/api/coin-monitors/add":
			var body struct{ Symbol string }
			_ = json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, http.StatusBadRequest, `{"detail":"Invalid symbol: `+body.Symbol+`"}`)
		}
	})

	msg, err := client.RefreshInitialPrices(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg, "3 coins")

	_, err = client.AddInstrument(context.Background(), "NOPE")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Invalid symbol: NOPE", apiErr.Detail)
}
