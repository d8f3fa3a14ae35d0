package view

import (
	"strings"
	"sync"

	"coinwatch/internal/monitor/classify"
	"coinwatch/pkg/coinmonitor"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SelectedSymbolKey is the preferences key of the persisted selection.
const SelectedSymbolKey = "selectedCoinSymbol"

// Preferences is the persisted config the controller reads and writes.
// kv.Store satisfies it.
type Preferences interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// State is the UI-only state. Only Selected outlives the process.
type State struct {
	SortField     classify.SortField `json:"sort_field"`
	SortDirection classify.Direction `json:"sort_direction"`
	Search        string             `json:"search"`
	Selected      string             `json:"selected"`
}

func DefaultState() State {
	return State{SortField: classify.FieldChange, SortDirection: classify.Desc}
}

// Row is one instrument with the facts the dashboard shows next to it.
type Row struct {
	Instrument    coinmonitor.Instrument `json:"instrument"`
	PercentChange float64                `json:"percent_change"`
	Cycle         int                    `json:"cycle"`
	Selected      bool                   `json:"selected"`
}

// Projection is the ordered, filtered output for one render.
type Projection struct {
	State   State `json:"state"`
	Rising  []Row `json:"rising"`
	Falling []Row `json:"falling"`

	Matched      int `json:"matched"`       // instruments passing the search filter
	RisingTotal  int `json:"rising_total"`  // before the search filter
	FallingTotal int `json:"falling_total"` // before the search filter

	// SelectionMissing is set when a symbol is selected but not in the list.
	// The selection is kept; the operator decides whether to clear it.
	SelectionMissing bool `json:"selection_missing"`
}

// Controller owns State and is the only writer of the persisted selection.
type Controller struct {
	mu     sync.Mutex
	state  State
	prefs  Preferences
	logger *zap.Logger
}

func NewController(prefs Preferences, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{state: DefaultState(), prefs: prefs, logger: logger}
}

// Restore loads the persisted selection, if any.
func (c *Controller) Restore() error {
	if c.prefs == nil {
		return nil
	}
	symbol, ok, err := c.prefs.Get(SelectedSymbolKey)
	if err != nil {
		return errors.Wrap(err, "restore selection")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.state.Selected = symbol
		c.logger.Info("restored selection", zap.String("symbol", symbol))
	}
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Selected returns the selected symbol, "" if none.
func (c *Controller) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Selected
}

// Select records symbol as the selection and persists it. The in-memory
// selection changes even when persisting fails; the error is returned.
func (c *Controller) Select(symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return c.Deselect()
	}

	c.mu.Lock()
	c.state.Selected = symbol
	c.mu.Unlock()

	if c.prefs == nil {
		return nil
	}
	return errors.Wrap(c.prefs.Set(SelectedSymbolKey, symbol), "persist selection")
}

// Deselect clears the selection and its persisted value.
func (c *Controller) Deselect() error {
	c.mu.Lock()
	c.state.Selected = ""
	c.mu.Unlock()

	if c.prefs == nil {
		return nil
	}
	return errors.Wrap(c.prefs.Delete(SelectedSymbolKey), "clear selection")
}

// ToggleSort mirrors a click on a column header: the active field flips
// direction, a new field starts descending.
func (c *Controller) ToggleSort(field classify.SortField) {
	if !field.IsValid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.SortField == field {
		c.state.SortDirection = c.state.SortDirection.Toggle()
		return
	}
	c.state.SortField = field
	c.state.SortDirection = classify.Desc
}

// SetSort sets both sort field and direction. Invalid values are ignored.
func (c *Controller) SetSort(field classify.SortField, dir classify.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if field.IsValid() {
		c.state.SortField = field
	}
	if dir.IsValid() {
		c.state.SortDirection = dir
	}
}

func (c *Controller) SetSearch(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Search = term
}

// Project builds the two ordered columns for list under the current state.
func (c *Controller) Project(list []coinmonitor.Instrument) Projection {
	return Project(list, c.State())
}

// Project is the pure form of Controller.Project: search filter, then
// bucketing, then a per-bucket sort.
func Project(list []coinmonitor.Instrument, st State) Projection {
	p := Projection{State: st}

	allRising, allFalling := classify.Partition(list)
	p.RisingTotal = len(allRising)
	p.FallingTotal = len(allFalling)

	matched := Filter(list, st.Search)
	p.Matched = len(matched)

	rising, falling := classify.Partition(matched)
	rising = classify.Sort(rising, st.SortField, st.SortDirection, classify.Options{})
	falling = classify.Sort(falling, st.SortField, st.SortDirection, classify.Options{AbsoluteForFalling: true})

	p.Rising = rows(rising, st.Selected)
	p.Falling = rows(falling, st.Selected)

	if st.Selected != "" {
		p.SelectionMissing = true
		for _, in := range list {
			if in.Symbol == st.Selected {
				p.SelectionMissing = false
				break
			}
		}
	}
	return p
}

// Filter keeps instruments whose symbol contains term, case-insensitively.
// A blank term keeps everything.
func Filter(list []coinmonitor.Instrument, term string) []coinmonitor.Instrument {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return list
	}

	var out []coinmonitor.Instrument
	for _, in := range list {
		if strings.Contains(strings.ToLower(in.Symbol), term) {
			out = append(out, in)
		}
	}
	return out
}

func rows(list []coinmonitor.Instrument, selected string) []Row {
	out := make([]Row, 0, len(list))
	for _, in := range list {
		out = append(out, Row{
			Instrument:    in,
			PercentChange: classify.Change(in),
			Cycle:         classify.CurrentCycle(in),
			Selected:      selected != "" && in.Symbol == selected,
		})
	}
	return out
}
