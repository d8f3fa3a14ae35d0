package coinmonitor

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// CycleSlots is the number of per-cycle extrema the backend retains.
const CycleSlots = 10

// CycleExtrema is the frozen high/low of one completed cycle. Zero means unset.
type CycleExtrema struct {
	High float64 `json:"high_price"`
	Low  float64 `json:"low_price"`
}

// IsSet reports whether the backend has populated the slot.
func (c CycleExtrema) IsSet() bool {
	return c.High != 0 || c.Low != 0
}

// Instrument is one row of GET /api/coin-monitors.
type Instrument struct {
	ID           int64   `json:"id"`
	Symbol       string  `json:"symbol"`        // e.g., "BTCUSDT"
	InitialPrice float64 `json:"initial_price"` // set once when tracking starts
	LatestPrice  float64 `json:"latest_price"`
	HighPrice    float64 `json:"high_price"` // peak observed in the current window
	LowPrice     float64 `json:"low_price"`
	CreatedAt    string  `json:"created_at,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`

	// Cycles[i] holds high_price_{i+1} / low_price_{i+1}.
	Cycles [CycleSlots]CycleExtrema `json:"-"`
}

// UnmarshalJSON decodes the flat high_price_N/low_price_N columns into Cycles.
func (i *Instrument) UnmarshalJSON(data []byte) error {
	type plain Instrument
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for n := 1; n <= CycleSlots; n++ {
		high, err := numberField(raw, fmt.Sprintf("high_price_%d", n))
		if err != nil {
			return err
		}
		low, err := numberField(raw, fmt.Sprintf("low_price_%d", n))
		if err != nil {
			return err
		}
		p.Cycles[n-1] = CycleExtrema{High: high, Low: low}
	}

	*i = Instrument(p)
	return nil
}

// MarshalJSON writes Cycles back out in the backend's flat layout.
func (i Instrument) MarshalJSON() ([]byte, error) {
	type plain Instrument
	base, err := json.Marshal(plain(i))
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for n, c := range i.Cycles {
		out[fmt.Sprintf("high_price_%d", n+1)] = c.High
		out[fmt.Sprintf("low_price_%d", n+1)] = c.Low
	}
	return json.Marshal(out)
}

// numberField reads an optional numeric column; absent or null is 0.
func numberField(raw map[string]json.RawMessage, key string) (float64, error) {
	v, ok := raw[key]
	if !ok {
		return 0, nil
	}
	var f *float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, fmt.Errorf("decode %s: %w", key, err)
	}
	if f == nil {
		return 0, nil
	}
	return *f, nil
}

// CurrentPrice is the live price window of a History.
type CurrentPrice struct {
	LatestPrice float64 `json:"latest_price"`
	HighPrice   float64 `json:"high_price"`
	LowPrice    float64 `json:"low_price"`
}

type MovingAverages struct {
	MA7  *float64 `json:"ma7"`
	MA25 *float64 `json:"ma25"`
	MA99 *float64 `json:"ma99"`
}

type TrendAnalysis struct {
	Trend       string `json:"trend"`
	CycleStatus string `json:"cycle_status"`
}

// HistoryEntry is one completed cycle, in cycle order.
type HistoryEntry struct {
	Set           int      `json:"set"`
	PrevCycleHigh *float64 `json:"prev_cycle_high"`
	LowPrice      float64  `json:"low_price"`
	HighPrice     float64  `json:"high_price"`
}

// RangePercent is the cycle's high-low spread relative to its low.
func (h HistoryEntry) RangePercent() float64 {
	if h.LowPrice == 0 {
		return 0
	}
	return (h.HighPrice - h.LowPrice) / h.LowPrice * 100
}

// History is the response of GET /api/coin-monitors/{symbol}/history.
type History struct {
	Symbol         string          `json:"symbol"`
	InitialPrice   float64         `json:"initial_price"`
	Current        CurrentPrice    `json:"current"`
	MovingAverages *MovingAverages `json:"moving_averages,omitempty"`
	TrendAnalysis  *TrendAnalysis  `json:"trend_analysis,omitempty"`
	History        []HistoryEntry  `json:"history"`
	CreatedAt      string          `json:"created_at,omitempty"`
	UpdatedAt      string          `json:"updated_at,omitempty"`
}

// Sentiment labels reported by the recent-trades endpoint.
const (
	SentimentBullish = "Bullish"
	SentimentBearish = "Bearish"
	SentimentNeutral = "Neutral"
)

// RecentTrades is the response of GET /api/coin-monitors/{symbol}/recent-trades.
type RecentTrades struct {
	Symbol           string  `json:"symbol"`
	Period           string  `json:"period"` // e.g., "3 minutes"
	TotalTrades      int     `json:"total_trades"`
	BuyTrades        int     `json:"buy_trades"`
	SellTrades       int     `json:"sell_trades"`
	BuyVolume        float64 `json:"buy_volume"`
	SellVolume       float64 `json:"sell_volume"`
	BuyPercentage    float64 `json:"buy_percentage"`
	SellPercentage   float64 `json:"sell_percentage"`
	AverageTradeSize float64 `json:"average_trade_size"`
	Trend            string  `json:"trend"`
	BinanceLink      string  `json:"binance_link"`
}

// Side selects the trade endpoint.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderRequest is the body of POST /api/trade/{side}.
type OrderRequest struct {
	Symbol       string
	Amount       decimal.Decimal
	ClientID     string
	ClientSecret string
}

// MarshalJSON sends the amount as a JSON number.
func (o OrderRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Symbol       string      `json:"symbol"`
		Amount       json.Number `json:"amount"`
		ClientID     string      `json:"client_id"`
		ClientSecret string      `json:"client_secret"`
	}{
		Symbol:       o.Symbol,
		Amount:       json.Number(o.Amount.String()),
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
	})
}

// MessageResponse is the success body of the POST endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// errorResponse is FastAPI's error envelope; detail is usually a string but
// validation failures send a list.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}
