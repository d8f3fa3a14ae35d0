// Package tui is the terminal dashboard. It renders projections from the view
// controller and turns key presses into controller, composer and backend calls.
package tui

import (
	"context"
	"strings"
	"time"

	"coinwatch/internal/monitor/classify"
	"coinwatch/internal/monitor/credentials"
	"coinwatch/internal/monitor/snapshotstore"
	"coinwatch/internal/monitor/trade"
	"coinwatch/internal/monitor/view"
	"coinwatch/pkg/coinmonitor"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

const actionTimeout = 15 * time.Second

// Refresher is the poller as seen by the dashboard: it asks for an
// out-of-schedule poll and drops the detail once nothing is selected.
type Refresher interface {
	Trigger()
	ClearDetail() *snapshotstore.State
}

// Admin is the maintenance surface of the backend.
type Admin interface {
	RefreshInitialPrices(ctx context.Context) (string, error)
	AddInstrument(ctx context.Context, symbol string) (string, error)
}

// CredentialStore reads and writes the exchange key pair.
type CredentialStore interface {
	Load() (credentials.Credentials, bool, error)
	Save(clientID, clientSecret string) error
}

// StateLoader is the read side of the snapshot store.
type StateLoader interface {
	Load() *snapshotstore.State
}

type Deps struct {
	Controller  *view.Controller
	Store       StateLoader
	Refresher   Refresher
	Composer    *trade.Composer
	Admin       Admin
	Credentials CredentialStore
	Logger      *zap.Logger
	// OnProjection, if set, receives every projection the model renders.
	OnProjection func(view.Projection)
}

// StateMsg carries a freshly applied store state into the program.
type StateMsg struct {
	State *snapshotstore.State
}

// StateCallback adapts tea.Program.Send to the poller's onTick hook.
func StateCallback(send func(tea.Msg)) func(*snapshotstore.State) {
	return func(st *snapshotstore.State) {
		send(StateMsg{State: st})
	}
}

type actionMsg struct {
	text string
	err  error
}

type inputMode int

const (
	modeNormal inputMode = iota
	modeSearch
	modeAdd
	modeClientID
	modeClientSecret
)

type column int

const (
	colRising column = iota
	colFalling
)

type Model struct {
	deps Deps

	state *snapshotstore.State
	proj  view.Projection

	mode     inputMode
	input    string
	clientID string

	focus  column
	cursor [2]int

	status    string
	statusErr bool

	width  int
	height int
}

func New(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	m := Model{deps: deps}
	if deps.Store != nil {
		m.state = deps.Store.Load()
	} else {
		m.state = &snapshotstore.State{}
	}
	if deps.Composer != nil {
		deps.Composer.SetSymbol(deps.Controller.Selected())
	}
	m.reproject()
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StateMsg:
		if msg.State != nil {
			m.state = msg.State
		}
		m.reproject()
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.setError(msg.err.Error())
		} else {
			m.setStatus(msg.text)
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode != modeNormal {
			return m.updateInput(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "tab":
		if m.focus == colRising {
			m.focus = colFalling
		} else {
			m.focus = colRising
		}
	case "up", "k":
		if m.cursor[m.focus] > 0 {
			m.cursor[m.focus]--
		}
	case "down", "j":
		if m.cursor[m.focus] < len(m.focusedRows())-1 {
			m.cursor[m.focus]++
		}

	case "enter":
		rows := m.focusedRows()
		if len(rows) == 0 {
			return m, nil
		}
		m.selectSymbol(rows[m.cursor[m.focus]].Instrument.Symbol)
	case "esc", "x":
		m.deselect()

	case "c":
		m.deps.Controller.ToggleSort(classify.FieldChange)
		m.reproject()
	case "p":
		m.deps.Controller.ToggleSort(classify.FieldPrice)
		m.reproject()
	case "s":
		m.deps.Controller.ToggleSort(classify.FieldSymbol)
		m.reproject()

	case "/":
		m.mode = modeSearch
		m.input = m.deps.Controller.State().Search

	case "[":
		m.step(coinmonitor.SideBuy, -1)
	case "]":
		m.step(coinmonitor.SideBuy, 1)
	case "{":
		m.step(coinmonitor.SideSell, -1)
	case "}":
		m.step(coinmonitor.SideSell, 1)
	case "b":
		return m, m.submit(coinmonitor.SideBuy)
	case "n":
		return m, m.submit(coinmonitor.SideSell)

	case "R":
		if m.deps.Refresher != nil {
			m.deps.Refresher.Trigger()
			m.setStatus("refresh requested")
		}
	case "i":
		return m, m.refreshInitialPrices()
	case "a":
		m.mode = modeAdd
		m.input = ""
	case "K":
		m.mode = modeClientID
		m.input = ""
		if m.deps.Credentials != nil {
			if creds, _, err := m.deps.Credentials.Load(); err == nil {
				m.input = creds.ClientID
			}
		}
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.mode == modeSearch {
			m.deps.Controller.SetSearch("")
			m.reproject()
		}
		m.mode = modeNormal
		m.input = ""
		return m, nil
	case tea.KeyEnter:
		return m.commitInput()
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	default:
		return m, nil
	}

	// search filters as the operator types
	if m.mode == modeSearch {
		m.deps.Controller.SetSearch(m.input)
		m.reproject()
	}
	return m, nil
}

func (m Model) commitInput() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input)
	mode := m.mode
	m.mode = modeNormal
	m.input = ""

	switch mode {
	case modeSearch:
		m.deps.Controller.SetSearch(input)
		m.reproject()
	case modeAdd:
		if input == "" {
			return m, nil
		}
		return m, m.addInstrument(strings.ToUpper(input))
	case modeClientID:
		m.clientID = input
		m.mode = modeClientSecret
	case modeClientSecret:
		if m.deps.Credentials == nil {
			return m, nil
		}
		if err := m.deps.Credentials.Save(m.clientID, input); err != nil {
			m.setError("save credentials: " + err.Error())
			return m, nil
		}
		m.clientID = ""
		m.setStatus("credentials saved")
	}
	return m, nil
}

func (m *Model) selectSymbol(symbol string) {
	if err := m.deps.Controller.Select(symbol); err != nil {
		m.deps.Logger.Warn("persist selection failed", zap.Error(err))
		m.setError(err.Error())
	}
	if m.deps.Composer != nil {
		m.deps.Composer.SetSymbol(symbol)
	}
	if m.deps.Refresher != nil {
		m.deps.Refresher.Trigger()
	}
	m.reproject()
}

func (m *Model) deselect() {
	if m.deps.Controller.Selected() == "" {
		return
	}
	if err := m.deps.Controller.Deselect(); err != nil {
		m.deps.Logger.Warn("clear selection failed", zap.Error(err))
		m.setError(err.Error())
	}
	if m.deps.Refresher != nil {
		if st := m.deps.Refresher.ClearDetail(); st != nil {
			m.state = st
		}
	}
	if m.deps.Composer != nil {
		m.deps.Composer.SetSymbol("")
	}
	m.reproject()
}

func (m *Model) step(side coinmonitor.Side, n int) {
	if m.deps.Composer == nil {
		return
	}
	if _, err := m.deps.Composer.Step(side, n); err != nil {
		m.setError(err.Error())
	}
}

func (m *Model) submit(side coinmonitor.Side) tea.Cmd {
	composer := m.deps.Composer
	if composer == nil {
		return nil
	}
	m.setStatus("submitting " + string(side) + " order...")
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		text, err := composer.Submit(ctx, side)
		return actionMsg{text: text, err: err}
	}
}

func (m *Model) refreshInitialPrices() tea.Cmd {
	admin, refresher := m.deps.Admin, m.deps.Refresher
	if admin == nil {
		return nil
	}
	m.setStatus("refreshing initial prices...")
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		text, err := admin.RefreshInitialPrices(ctx)
		if err == nil && refresher != nil {
			refresher.Trigger()
		}
		return actionMsg{text: text, err: err}
	}
}

func (m *Model) addInstrument(symbol string) tea.Cmd {
	admin, refresher := m.deps.Admin, m.deps.Refresher
	if admin == nil {
		return nil
	}
	m.setStatus("adding " + symbol + "...")
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		text, err := admin.AddInstrument(ctx, symbol)
		if err == nil && refresher != nil {
			refresher.Trigger()
		}
		return actionMsg{text: text, err: err}
	}
}

func (m *Model) reproject() {
	m.proj = m.deps.Controller.Project(m.state.Instruments)
	for col, rows := range [2][]view.Row{m.proj.Rising, m.proj.Falling} {
		if m.cursor[col] >= len(rows) {
			m.cursor[col] = max(len(rows)-1, 0)
		}
	}
	if m.deps.OnProjection != nil {
		m.deps.OnProjection(m.proj)
	}
}

func (m Model) focusedRows() []view.Row {
	if m.focus == colFalling {
		return m.proj.Falling
	}
	return m.proj.Rising
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(s string) {
	m.status = s
	m.statusErr = true
}
