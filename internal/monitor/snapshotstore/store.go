package snapshotstore

import (
	"sync"
	"time"

	"coinwatch/pkg/coinmonitor"
)

// Detail is the bundle fetched for the selected instrument.
type Detail struct {
	Symbol       string
	History      *coinmonitor.History
	RecentTrades *coinmonitor.RecentTrades
	FetchedAt    time.Time
}

// State is an immutable view of the store. Readers must not modify the slices
// or pointers it holds; writers always install a fresh State.
type State struct {
	Seq         uint64 // tick that produced the most recent write
	Instruments []coinmonitor.Instrument
	Detail      *Detail
	ListErr     error // last list fetch failure, nil once a list fetch succeeds
	DetailErr   error // last detail fetch failure, nil once a detail fetch succeeds
	UpdatedAt   time.Time
}

// Err returns the list error if any, otherwise the detail error.
func (s *State) Err() error {
	if s.ListErr != nil {
		return s.ListErr
	}
	return s.DetailErr
}

// Has reports whether symbol is in the current instrument list.
func (s *State) Has(symbol string) bool {
	for _, in := range s.Instruments {
		if in.Symbol == symbol {
			return true
		}
	}
	return false
}

// DetailFor returns the held detail bundle if it belongs to symbol.
func (s *State) DetailFor(symbol string) *Detail {
	if s.Detail == nil || s.Detail.Symbol != symbol {
		return nil
	}
	return s.Detail
}

// Update describes the outcome of one tick. A nil field with a nil error
// means "not fetched this tick" and leaves the held value alone.
type Update struct {
	Seq         uint64
	Instruments []coinmonitor.Instrument
	ListErr     error
	Detail      *Detail
	DetailErr   error
	At          time.Time
}

// Store holds the latest polled state. Single writer (the poller), many readers.
type Store struct {
	mu    sync.RWMutex
	state *State
}

func New() *Store {
	return &Store{state: &State{}}
}

// Load returns the current state. It is never nil.
func (s *Store) Load() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Apply merges one tick's results into a new State and installs it. Each
// scope is replaced wholesale on success and retained on failure.
func (s *Store) Apply(u Update) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.state
	next.Seq = u.Seq
	next.UpdatedAt = u.At

	if u.ListErr != nil {
		next.ListErr = u.ListErr
	} else if u.Instruments != nil {
		list := make([]coinmonitor.Instrument, len(u.Instruments))
		copy(list, u.Instruments)
		next.Instruments = list
		next.ListErr = nil
	}

	if u.DetailErr != nil {
		next.DetailErr = u.DetailErr
	} else if u.Detail != nil {
		d := *u.Detail
		next.Detail = &d
		next.DetailErr = nil
	}

	s.state = &next
	return s.state
}

// ClearDetail drops the held detail bundle, used when the selection is cleared.
func (s *Store) ClearDetail() *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.state
	next.Detail = nil
	next.DetailErr = nil
	s.state = &next
	return s.state
}
