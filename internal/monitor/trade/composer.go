package trade

import (
	"context"
	"fmt"
	"math"
	"sync"

	"coinwatch/internal/monitor/credentials"
	"coinwatch/pkg/coinmonitor"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// NotionalCap is the reference balance a 100% slider position maps to.
	NotionalCap = 1000
	// PercentStep is the slider granularity.
	PercentStep = 5
)

var (
	ErrMissingCredentials = errors.New("client id and client secret are required")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrSubmissionPending  = errors.New("an order for this side is already being submitted")
	ErrNoSymbol           = errors.New("no instrument selected")
	ErrUnknownSide        = errors.New("unknown order side")
)

// RejectedError is a submission the boundary refused. Detail is shown to the
// operator verbatim.
type RejectedError struct {
	Side   coinmonitor.Side
	Detail string
	Err    error
}

func (e *RejectedError) Error() string { return e.Detail }

func (e *RejectedError) Unwrap() error { return e.Err }

// Boundary places orders. coinmonitor.RESTClient satisfies it.
type Boundary interface {
	PlaceOrder(ctx context.Context, side coinmonitor.Side, requestID string, order coinmonitor.OrderRequest) (string, error)
}

// CredentialSource yields the key pair at submit time.
type CredentialSource interface {
	Credentials() (credentials.Credentials, error)
}

// Draft is the current slider position of one side.
type Draft struct {
	Symbol     string
	Side       coinmonitor.Side
	Percentage float64
	Amount     decimal.Decimal
	Pending    bool
}

type sideState struct {
	percentage float64
	pending    bool
}

// Composer turns slider positions into orders for the selected instrument.
type Composer struct {
	boundary Boundary
	creds    CredentialSource
	logger   *zap.Logger

	mu     sync.Mutex
	symbol string
	sides  map[coinmonitor.Side]*sideState
}

func NewComposer(boundary Boundary, creds CredentialSource, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		boundary: boundary,
		creds:    creds,
		logger:   logger,
		sides: map[coinmonitor.Side]*sideState{
			coinmonitor.SideBuy:  {},
			coinmonitor.SideSell: {},
		},
	}
}

// SetSymbol targets a new instrument and resets both sliders.
func (c *Composer) SetSymbol(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.symbol == symbol {
		return
	}
	c.symbol = symbol
	for _, s := range c.sides {
		s.percentage = 0
	}
}

func (c *Composer) Symbol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.symbol
}

// SetPercentage moves the slider of side, clamped to [0, 100].
func (c *Composer) SetPercentage(side coinmonitor.Side, pct float64) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sides[side]
	if !ok {
		return Draft{}, errors.Wrapf(ErrUnknownSide, "%q", side)
	}
	s.percentage = clamp(pct)
	return c.draftLocked(side, s), nil
}

// Step moves the slider of side by n slider steps.
func (c *Composer) Step(side coinmonitor.Side, n int) (Draft, error) {
	d, err := c.Draft(side)
	if err != nil {
		return Draft{}, err
	}
	return c.SetPercentage(side, d.Percentage+float64(n*PercentStep))
}

func (c *Composer) Draft(side coinmonitor.Side) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sides[side]
	if !ok {
		return Draft{}, errors.Wrapf(ErrUnknownSide, "%q", side)
	}
	return c.draftLocked(side, s), nil
}

func (c *Composer) draftLocked(side coinmonitor.Side, s *sideState) Draft {
	return Draft{
		Symbol:     c.symbol,
		Side:       side,
		Percentage: s.percentage,
		Amount:     Amount(s.percentage),
		Pending:    s.pending,
	}
}

// Submit sends the side's order. Local validation failures never reach the
// boundary. Only one submission per side may be in flight.
func (c *Composer) Submit(ctx context.Context, side coinmonitor.Side) (string, error) {
	creds, err := c.creds.Credentials()
	if err != nil {
		return "", errors.Wrap(err, "load credentials")
	}

	c.mu.Lock()
	s, ok := c.sides[side]
	switch {
	case !ok:
		c.mu.Unlock()
		return "", errors.Wrapf(ErrUnknownSide, "%q", side)
	case s.pending:
		c.mu.Unlock()
		return "", ErrSubmissionPending
	case !creds.Complete():
		c.mu.Unlock()
		return "", ErrMissingCredentials
	case !Amount(s.percentage).IsPositive():
		c.mu.Unlock()
		return "", ErrInvalidAmount
	case c.symbol == "":
		c.mu.Unlock()
		return "", ErrNoSymbol
	}
	s.pending = true
	order := coinmonitor.OrderRequest{
		Symbol:       c.symbol,
		Amount:       Amount(s.percentage),
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		s.pending = false
		c.mu.Unlock()
	}()

	requestID := uuid.NewString()
	log := c.logger.With(
		zap.String("request_id", requestID),
		zap.String("side", string(side)),
		zap.String("symbol", order.Symbol),
		zap.String("amount", order.Amount.String()),
	)
	log.Info("submitting order")

	msg, err := c.boundary.PlaceOrder(ctx, side, requestID, order)
	if err != nil {
		rejected := &RejectedError{Side: side, Detail: fallbackMessage(side), Err: err}
		var apiErr *coinmonitor.APIError
		if errors.As(err, &apiErr) && apiErr.Detail != "" {
			rejected.Detail = apiErr.Detail
		}
		log.Warn("order rejected", zap.Error(err))
		return "", rejected
	}

	if msg == "" {
		msg = fmt.Sprintf("%s order placed for %s", side, order.Symbol)
	}
	log.Info("order accepted", zap.String("message", msg))
	return msg, nil
}

// Amount converts a slider percentage into the notional order size.
func Amount(pct float64) decimal.Decimal {
	return decimal.NewFromFloat(clamp(pct)).
		Mul(decimal.NewFromInt(NotionalCap)).
		Div(decimal.NewFromInt(100))
}

func clamp(pct float64) float64 {
	if math.IsNaN(pct) {
		return 0
	}
	return math.Max(0, math.Min(100, pct))
}

func fallbackMessage(side coinmonitor.Side) string {
	return fmt.Sprintf("Error placing %s order. Please try again.", side)
}
