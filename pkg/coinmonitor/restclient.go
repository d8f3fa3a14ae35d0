package coinmonitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	pathInstruments   = "/api/coin-monitors"
	pathHistory       = "/api/coin-monitors/{symbol}/history"
	pathRecentTrades  = "/api/coin-monitors/{symbol}/recent-trades"
	pathInitialPrices = "/api/coin-monitors/update-initial-prices"
	pathAdd           = "/api/coin-monitors/add"
	pathTrade         = "/api/trade/{side}"

	// HeaderRequestID tags trade submissions for log correlation.
	HeaderRequestID = "X-Request-ID"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("coin monitor api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("coin monitor api: status %d: %s", e.StatusCode, e.Detail)
}

// RequestError wraps any transport, status or decode failure with the endpoint
// that produced it.
type RequestError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Endpoint, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// RESTClient talks to the coin monitor backend.
type RESTClient struct {
	http *resty.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(0) // a failed poll waits for the next tick, a failed trade is reported

	return &RESTClient{http: client}
}

// HTTPClient exposes the underlying resty client (tests swap transports on it).
func (c *RESTClient) HTTPClient() *resty.Client {
	return c.http
}

// ListInstruments fetches every tracked instrument, ordered by symbol.
func (c *RESTClient) ListInstruments(ctx context.Context) ([]Instrument, error) {
	var out []Instrument
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(pathInstruments)
	if err := check(http.MethodGet, pathInstruments, resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// History fetches the cycle history and indicators of one instrument.
func (c *RESTClient) History(ctx context.Context, symbol string) (*History, error) {
	var out History
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetResult(&out).
		Get(pathHistory)
	if err := check(http.MethodGet, expand(pathHistory, symbol), resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecentTrades fetches the buy/sell aggregate of the last few minutes.
func (c *RESTClient) RecentTrades(ctx context.Context, symbol string) (*RecentTrades, error) {
	var out RecentTrades
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetResult(&out).
		Get(pathRecentTrades)
	if err := check(http.MethodGet, expand(pathRecentTrades, symbol), resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshInitialPrices resets every instrument's initial price to the market price.
func (c *RESTClient) RefreshInitialPrices(ctx context.Context) (string, error) {
	var out MessageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Post(pathInitialPrices)
	if err := check(http.MethodPost, pathInitialPrices, resp, err); err != nil {
		return "", err
	}
	return out.Message, nil
}

// AddInstrument asks the backend to start tracking symbol.
func (c *RESTClient) AddInstrument(ctx context.Context, symbol string) (string, error) {
	var out MessageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"symbol": symbol}).
		SetResult(&out).
		Post(pathAdd)
	if err := check(http.MethodPost, pathAdd, resp, err); err != nil {
		return "", err
	}
	return out.Message, nil
}

// PlaceOrder submits a buy or sell order. requestID may be empty, in which
// case one is generated.
func (c *RESTClient) PlaceOrder(ctx context.Context, side Side, requestID string, order OrderRequest) (string, error) {
	if side != SideBuy && side != SideSell {
		return "", errors.Errorf("unknown order side %q", side)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var out MessageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderRequestID, requestID).
		SetPathParam("side", string(side)).
		SetBody(order).
		SetResult(&out).
		Post(pathTrade)
	if err := check(http.MethodPost, "/api/trade/"+string(side), resp, err); err != nil {
		return "", err
	}
	return out.Message, nil
}

func check(method, endpoint string, resp *resty.Response, err error) error {
	if err != nil {
		return &RequestError{Method: method, Endpoint: endpoint, Err: errors.Wrap(err, "request failed")}
	}
	if resp.IsError() {
		return &RequestError{Method: method, Endpoint: endpoint, Err: newAPIError(resp)}
	}
	return nil
}

func newAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode()}

	var body errorResponse
	if json.Unmarshal(resp.Body(), &body) == nil && len(body.Detail) > 0 {
		var detail string
		if json.Unmarshal(body.Detail, &detail) == nil {
			apiErr.Detail = detail
		} else {
			apiErr.Detail = string(body.Detail)
		}
	}
	return apiErr
}

func expand(path, symbol string) string {
	return strings.Replace(path, "{symbol}", symbol, 1)
}
