package trade

import (
	"context"
	"errors"
	"sync"
	"testing"

	"coinwatch/internal/monitor/credentials"
	"coinwatch/pkg/coinmonitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type placed struct {
	side      coinmonitor.Side
	requestID string
	order     coinmonitor.OrderRequest
}

type fakeBoundary struct {
	mu     sync.Mutex
	calls  []placed
	msg    string
	err    error
	block  chan struct{}
	inside chan struct{}
}

func (f *fakeBoundary) PlaceOrder(ctx context.Context, side coinmonitor.Side, requestID string, order coinmonitor.OrderRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, placed{side: side, requestID: requestID, order: order})
	f.mu.Unlock()

	if f.block != nil {
		f.inside <- struct{}{}
		<-f.block
	}
	return f.msg, f.err
}

func (f *fakeBoundary) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type staticCreds credentials.Credentials

func (s staticCreds) Credentials() (credentials.Credentials, error) {
	return credentials.Credentials(s), nil
}

var validCreds = staticCreds{ClientID: "id", ClientSecret: "secret"}

// go test -v --run TestAmount
func TestAmount(t *testing.T) {
	assert.Equal(t, "0", Amount(0).String())
	assert.Equal(t, "250", Amount(25).String())
	assert.Equal(t, "1000", Amount(100).String())
	assert.Equal(t, "1000", Amount(140).String())
	assert.Equal(t, "0", Amount(-5).String())
}

// go test -v --run TestSetPercentageClamps
func TestSetPercentageClamps(t *testing.T) {
	c := NewComposer(&fakeBoundary{}, validCreds, nil)

	d, err := c.SetPercentage(coinmonitor.SideBuy, 120)
	require.NoError(t, err)
	assert.Equal(t, 100.0, d.Percentage)
	assert.Equal(t, "1000", d.Amount.String())

	d, err = c.SetPercentage(coinmonitor.SideSell, -10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d.Percentage)

	d, err = c.Step(coinmonitor.SideSell, 3)
	require.NoError(t, err)
	assert.Equal(t, 15.0, d.Percentage)
	assert.Equal(t, "150", d.Amount.String())

	_, err = c.SetPercentage(coinmonitor.Side("hold"), 10)
	assert.ErrorIs(t, err, ErrUnknownSide)
}

// go test -v --run TestSetSymbolResetsSliders
func TestSetSymbolResetsSliders(t *testing.T) {
	c := NewComposer(&fakeBoundary{}, validCreds, nil)
	c.SetSymbol("BTCUSDT")
	_, _ = c.SetPercentage(coinmonitor.SideBuy, 50)

	c.SetSymbol("BTCUSDT")
	d, _ := c.Draft(coinmonitor.SideBuy)
	assert.Equal(t, 50.0, d.Percentage)

	c.SetSymbol("ETHUSDT")
	d, _ = c.Draft(coinmonitor.SideBuy)
	assert.Equal(t, 0.0, d.Percentage)
	assert.Equal(t, "ETHUSDT", d.Symbol)
}

// go test -v --run TestSubmitZeroAmountSkipsBoundary
func TestSubmitZeroAmountSkipsBoundary(t *testing.T) {
	b := &fakeBoundary{}
	c := NewComposer(b, validCreds, nil)
	c.SetSymbol("BTCUSDT")

	_, err := c.Submit(context.Background(), coinmonitor.SideBuy)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Zero(t, b.count())
}

// go test -v --run TestSubmitMissingCredentials
func TestSubmitMissingCredentials(t *testing.T) {
	b := &fakeBoundary{}
	c := NewComposer(b, staticCreds{ClientID: "id"}, nil)
	c.SetSymbol("BTCUSDT")
	_, _ = c.SetPercentage(coinmonitor.SideSell, 10)

	_, err := c.Submit(context.Background(), coinmonitor.SideSell)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Zero(t, b.count())
}

// go test -v --run TestSubmitWithoutSymbol
func TestSubmitWithoutSymbol(t *testing.T) {
	b := &fakeBoundary{}
	c := NewComposer(b, validCreds, nil)
	_, _ = c.SetPercentage(coinmonitor.SideBuy, 10)

	_, err := c.Submit(context.Background(), coinmonitor.SideBuy)
	assert.ErrorIs(t, err, ErrNoSymbol)
	assert.Zero(t, b.count())
}

// go test -v --run TestSubmitSuccess
func TestSubmitSuccess(t *testing.T) {
	b := &fakeBoundary{msg: "Buy order placed"}
	c := NewComposer(b, validCreds, nil)
	c.SetSymbol("BTCUSDT")
	_, _ = c.SetPercentage(coinmonitor.SideBuy, 25)

	msg, err := c.Submit(context.Background(), coinmonitor.SideBuy)
	require.NoError(t, err)
	assert.Equal(t, "Buy order placed", msg)

	require.Equal(t, 1, b.count())
	call := b.calls[0]
	assert.Equal(t, coinmonitor.SideBuy, call.side)
	assert.NotEmpty(t, call.requestID)
	assert.Equal(t, "BTCUSDT", call.order.Symbol)
	assert.Equal(t, "250", call.order.Amount.String())
	assert.Equal(t, "id", call.order.ClientID)
	assert.Equal(t, "secret", call.order.ClientSecret)

	d, _ := c.Draft(coinmonitor.SideBuy)
	assert.False(t, d.Pending)
}

// go test -v --run TestSubmitRejectedDetail
func TestSubmitRejectedDetail(t *testing.T) {
	b := &fakeBoundary{err: &coinmonitor.APIError{StatusCode: 400, Detail: "Insufficient balance"}}
	c := NewComposer(b, validCreds, nil)
	c.SetSymbol("BTCUSDT")
	_, _ = c.SetPercentage(coinmonitor.SideSell, 50)

	_, err := c.Submit(context.Background(), coinmonitor.SideSell)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Insufficient balance", rejected.Detail)
	assert.Equal(t, "Insufficient balance", err.Error())
	assert.Equal(t, coinmonitor.SideSell, rejected.Side)
}

// go test -v --run TestSubmitRejectedFallback
func TestSubmitRejectedFallback(t *testing.T) {
	b := &fakeBoundary{err: errors.New("connection refused")}
	c := NewComposer(b, validCreds, nil)
	c.SetSymbol("BTCUSDT")
	_, _ = c.SetPercentage(coinmonitor.SideBuy, 5)

	_, err := c.Submit(context.Background(), coinmonitor.SideBuy)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Error placing buy order. Please try again.", rejected.Detail)
}

// go test -v --run TestSubmitPending
func TestSubmitPending(t *testing.T) {
	b := &fakeBoundary{msg: "ok", block: make(chan struct{}), inside: make(chan struct{})}
	c := NewComposer(b, validCreds, nil)
	c.SetSymbol("BTCUSDT")
	_, _ = c.SetPercentage(coinmonitor.SideBuy, 10)
	_, _ = c.SetPercentage(coinmonitor.SideSell, 10)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), coinmonitor.SideBuy)
		done <- err
	}()
	<-b.inside

	d, _ := c.Draft(coinmonitor.SideBuy)
	assert.True(t, d.Pending)

	_, err := c.Submit(context.Background(), coinmonitor.SideBuy)
	assert.ErrorIs(t, err, ErrSubmissionPending)

	// the other side is independent
	d, _ = c.Draft(coinmonitor.SideSell)
	assert.False(t, d.Pending)

	close(b.block)
	require.NoError(t, <-done)

	d, _ = c.Draft(coinmonitor.SideBuy)
	assert.False(t, d.Pending)
}
