package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"coinwatch/internal/monitor/snapshotstore"
	"coinwatch/pkg/coinmonitor"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval matches the backend's refresh cadence.
const DefaultInterval = 20 * time.Second

var (
	ErrAlreadyStarted = errors.New("poller: already started")
	ErrStopped        = errors.New("poller: stopped")
)

// Source is the slice of the backend the poller reads.
type Source interface {
	ListInstruments(ctx context.Context) ([]coinmonitor.Instrument, error)
	History(ctx context.Context, symbol string) (*coinmonitor.History, error)
	RecentTrades(ctx context.Context, symbol string) (*coinmonitor.RecentTrades, error)
}

// SelectionFunc returns the currently selected symbol, "" if none.
type SelectionFunc func() string

// Scope tells which part of a tick failed.
type Scope string

const (
	ScopeList   Scope = "list"
	ScopeDetail Scope = "detail"
)

// FetchError is recorded in the store when a tick's request fails.
type FetchError struct {
	Scope  Scope
	Symbol string // set for ScopeDetail
	Err    error
}

func (e *FetchError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("fetch %s for %s: %v", e.Scope, e.Symbol, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Scope, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type Options struct {
	Interval time.Duration // time between ticks; DefaultInterval if zero
	Timeout  time.Duration // upper bound on one tick's requests; Interval if zero
}

// Poller refreshes the snapshot store on a fixed schedule.
type Poller struct {
	source   Source
	store    *snapshotstore.Store
	selected SelectionFunc
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	seq      atomic.Uint64 // last issued tick
	trigger  chan struct{}
	done     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup

	// mu serializes apply against Stop.
	mu      sync.Mutex
	started bool
	stopped bool
	applied uint64
	onTick  func(*snapshotstore.State)
}

func New(source Source, store *snapshotstore.Store, selected SelectionFunc, opts Options, logger *zap.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.Interval
	}
	if selected == nil {
		selected = func() string { return "" }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		source:   source,
		store:    store,
		selected: selected,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		logger:   logger,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Start fires the first tick immediately and then one every interval.
// onTick, if set, runs after each applied tick with the resulting state; it
// must not call Stop. Fetches use ctx; cancelling ctx also stops the poller.
func (p *Poller) Start(ctx context.Context, onTick func(*snapshotstore.State)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.onTick = onTick

	// the first tick covers any trigger sent before Start
	select {
	case <-p.trigger:
	default:
	}

	go p.loop(ctx)
	return nil
}

// Trigger requests an extra tick now, e.g. right after the selection changed.
// It is a no-op when a trigger is already pending or the poller is stopped.
// A trigger sent before Start is absorbed by Start's immediate first tick.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// ClearDetail drops the detail bundle and its error from the store once the
// selection is cleared, and returns the resulting state. It takes the same
// lock as a tick's apply so the store keeps a single writer. onTick is not
// called. Returns nil once the poller is stopped.
func (p *Poller) ClearDetail() *snapshotstore.State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	return p.store.ClearDetail()
}

// Stop cancels all future ticks. Once it returns the store is not written
// again and onTick is not called again; requests already in flight finish on
// their own and their results are dropped. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if started {
		<-p.loopDone
	}

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.loopDone)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.launch(ctx)
	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			p.logger.Info("poller context done", zap.Error(ctx.Err()))
			p.mu.Lock()
			p.stopped = true
			p.mu.Unlock()
			return
		case <-ticker.C:
			p.launch(ctx)
		case <-p.trigger:
			p.launch(ctx)
		}
	}
}

// launch runs a tick in its own goroutine so a slow backend never delays the
// schedule.
func (p *Poller) launch(ctx context.Context) {
	seq := p.seq.Add(1)
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.tick(ctx, seq)
	}()
}

type result struct {
	seq       uint64
	symbol    string
	list      []coinmonitor.Instrument
	listErr   error
	detail    *snapshotstore.Detail
	detailErr error
}

func (p *Poller) tick(ctx context.Context, seq uint64) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res := result{seq: seq, symbol: p.selected()}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res.list, res.listErr = p.source.ListInstruments(ctx)
	}()

	if res.symbol != "" {
		res.detail, res.detailErr = p.fetchDetail(ctx, res.symbol)
	}
	wg.Wait()

	p.apply(res)
}

// fetchDetail loads history and recent trades together; the bundle is only
// usable when both succeed.
func (p *Poller) fetchDetail(ctx context.Context, symbol string) (*snapshotstore.Detail, error) {
	var (
		history *coinmonitor.History
		trades  *coinmonitor.RecentTrades
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = p.source.History(gctx, symbol)
		return errors.Wrap(err, "history")
	})
	g.Go(func() error {
		var err error
		trades, err = p.source.RecentTrades(gctx, symbol)
		return errors.Wrap(err, "recent trades")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &snapshotstore.Detail{
		Symbol:       symbol,
		History:      history,
		RecentTrades: trades,
		FetchedAt:    p.now(),
	}, nil
}

func (p *Poller) apply(res result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		p.logger.Debug("dropping tick after stop", zap.Uint64("seq", res.seq))
		return
	}
	if res.seq <= p.applied {
		p.logger.Debug("dropping out-of-order tick",
			zap.Uint64("seq", res.seq), zap.Uint64("applied", p.applied))
		return
	}
	p.applied = res.seq

	u := snapshotstore.Update{Seq: res.seq, At: p.now()}

	if res.listErr != nil {
		u.ListErr = &FetchError{Scope: ScopeList, Err: res.listErr}
		p.logger.Warn("instrument list fetch failed", zap.Uint64("seq", res.seq), zap.Error(res.listErr))
	} else {
		u.Instruments = res.list
		if u.Instruments == nil {
			u.Instruments = []coinmonitor.Instrument{}
		}
	}

	if res.symbol != "" {
		switch current := p.selected(); {
		case current != res.symbol:
			p.logger.Debug("dropping detail for deselected symbol",
				zap.String("fetched", res.symbol), zap.String("selected", current))
		case res.detailErr != nil:
			u.DetailErr = &FetchError{Scope: ScopeDetail, Symbol: res.symbol, Err: res.detailErr}
			p.logger.Warn("detail fetch failed", zap.String("symbol", res.symbol), zap.Error(res.detailErr))
		default:
			u.Detail = res.detail
		}
	}

	st := p.store.Apply(u)
	p.logger.Debug("tick applied",
		zap.Uint64("seq", res.seq),
		zap.Int("instruments", len(st.Instruments)),
		zap.String("selected", res.symbol))

	if p.onTick != nil {
		p.onTick(st)
	}
}
