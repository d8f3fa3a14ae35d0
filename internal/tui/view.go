package tui

import (
	"errors"
	"fmt"
	"strings"

	"coinwatch/internal/monitor/classify"
	"coinwatch/internal/monitor/poller"
	"coinwatch/internal/monitor/view"
	"coinwatch/pkg/coinmonitor"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	upStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	downStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
	focusBorderStyle = borderStyle.BorderForeground(lipgloss.Color("62"))
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	for _, banner := range m.banners() {
		b.WriteString(banner)
		b.WriteString("\n")
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderColumn("Rising", m.proj.Rising, m.proj.RisingTotal, colRising),
		m.renderColumn("Falling", m.proj.Falling, m.proj.FallingTotal, colFalling),
	))
	b.WriteString("\n")

	if selected := m.proj.State.Selected; selected != "" {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderDetail(selected),
			m.renderTrade(),
		))
		b.WriteString("\n")
	}

	b.WriteString(m.renderPrompt())
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(helpLine))
	return b.String()
}

const helpLine = "tab column  ↑/↓ move  enter select  x deselect  c/p/s sort  / search  " +
	"[ ] buy%  { } sell%  b buy  n sell  R refresh  i reset initial  a add  K keys  q quit"

func (m Model) renderHeader() string {
	st := m.proj.State
	arrow := "↓"
	if st.SortDirection == classify.Asc {
		arrow = "↑"
	}
	updated := "never"
	if !m.state.UpdatedAt.IsZero() {
		updated = m.state.UpdatedAt.Format("15:04:05")
	}
	line := fmt.Sprintf("coinwatch  %d instruments  sort %s %s  updated %s",
		len(m.state.Instruments), st.SortField, arrow, updated)
	if st.Search != "" {
		line += fmt.Sprintf("  search %q (%d)", st.Search, m.proj.Matched)
	}
	return headerStyle.Render(line)
}

func (m Model) banners() []string {
	var out []string
	if m.state.ListErr != nil {
		out = append(out, errStyle.Render("instrument list stale: "+m.state.ListErr.Error()))
	}
	if err := m.detailErr(); err != nil {
		out = append(out, errStyle.Render("detail stale: "+err.Error()))
	}
	if m.proj.SelectionMissing {
		out = append(out, warnStyle.Render(fmt.Sprintf("%s is selected but no longer tracked (x to clear)", m.proj.State.Selected)))
	}
	return out
}

// detailErr returns the held detail error when it belongs to the current
// selection. An error for a previously selected symbol is not shown.
func (m Model) detailErr() error {
	err := m.state.DetailErr
	if err == nil {
		return nil
	}
	var fe *poller.FetchError
	if errors.As(err, &fe) && fe.Symbol != m.proj.State.Selected {
		return nil
	}
	return err
}

func (m Model) renderColumn(title string, rows []view.Row, total int, col column) string {
	var b strings.Builder
	style := upStyle
	if col == colFalling {
		style = downStyle
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s (%d/%d)", title, len(rows), total)))
	b.WriteString("\n")

	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("none"))
	}
	for i, r := range rows {
		line := fmt.Sprintf("%-12s %12s %8s  c%-2d",
			r.Instrument.Symbol,
			formatPrice(r.Instrument.LatestPrice),
			formatPercent(r.PercentChange),
			r.Cycle)
		line = style.Render(line)
		if r.Selected {
			line = selectedStyle.Render(line)
		}
		if col == m.focus && i == m.cursor[col] {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line)
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}

	box := borderStyle
	if col == m.focus {
		box = focusBorderStyle
	}
	return box.Render(b.String())
}

func (m Model) renderDetail(symbol string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(symbol))
	b.WriteString("\n")

	d := m.state.DetailFor(symbol)
	if d == nil {
		b.WriteString(dimStyle.Render("loading..."))
		return borderStyle.Render(b.String())
	}

	if h := d.History; h != nil {
		fmt.Fprintf(&b, "initial %s  latest %s  high %s  low %s\n",
			formatPrice(h.InitialPrice), formatPrice(h.Current.LatestPrice),
			formatPrice(h.Current.HighPrice), formatPrice(h.Current.LowPrice))
		if ma := h.MovingAverages; ma != nil {
			fmt.Fprintf(&b, "MA7 %s  MA25 %s  MA99 %s\n",
				formatOptional(ma.MA7), formatOptional(ma.MA25), formatOptional(ma.MA99))
		}
		if t := h.TrendAnalysis; t != nil {
			fmt.Fprintf(&b, "trend %s  cycle %s\n", t.Trend, t.CycleStatus)
		}
		for _, e := range h.History {
			fmt.Fprintf(&b, "  #%-2d low %s  high %s  range %s\n",
				e.Set, formatPrice(e.LowPrice), formatPrice(e.HighPrice), formatPercent(e.RangePercent()))
		}
	}
	if t := d.RecentTrades; t != nil {
		b.WriteString(renderTrades(t))
	}
	return borderStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func renderTrades(t *coinmonitor.RecentTrades) string {
	trend := dimStyle
	switch t.Trend {
	case coinmonitor.SentimentBullish:
		trend = upStyle
	case coinmonitor.SentimentBearish:
		trend = downStyle
	}
	line := fmt.Sprintf("last %s: %d trades  buy %d (%.1f%%)  sell %d (%.1f%%)  avg %s  %s\n",
		t.Period, t.TotalTrades,
		t.BuyTrades, t.BuyPercentage, t.SellTrades, t.SellPercentage,
		formatPrice(t.AverageTradeSize), trend.Render(t.Trend))
	if t.BinanceLink != "" {
		line += dimStyle.Render(t.BinanceLink) + "\n"
	}
	return line
}

func (m Model) renderTrade() string {
	if m.deps.Composer == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Trade"))
	for _, side := range []coinmonitor.Side{coinmonitor.SideBuy, coinmonitor.SideSell} {
		d, err := m.deps.Composer.Draft(side)
		if err != nil {
			continue
		}
		line := fmt.Sprintf("\n%-4s %3.0f%%  %s USDT", side, d.Percentage, d.Amount.StringFixed(2))
		if d.Pending {
			line += "  pending"
		}
		b.WriteString(line)
	}
	return borderStyle.Render(b.String())
}

func (m Model) renderPrompt() string {
	var label string
	switch m.mode {
	case modeSearch:
		label = "search"
	case modeAdd:
		label = "add symbol"
	case modeClientID:
		label = "client id"
	case modeClientSecret:
		return "client secret: " + strings.Repeat("*", len([]rune(m.input))) + "\n"
	default:
		return ""
	}
	return label + ": " + m.input + "\n"
}

func (m Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return errStyle.Render(m.status)
	}
	return m.status
}

func formatPrice(v float64) string {
	switch {
	case v == 0:
		return "-"
	case v >= 100:
		return fmt.Sprintf("%.2f", v)
	case v >= 1:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.6f", v)
	}
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return formatPrice(*v)
}
