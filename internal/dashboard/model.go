// Package dashboard is the terminal view of the bunkers: six silos with
// their coal layers, the active layer countdowns and the live unit summary.
package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shahjoyal/view-bunker/internal/blend"
	"github.com/shahjoyal/view-bunker/internal/monitor"
)

type keyMap struct {
	Quit  key.Binding
	Theme key.Binding
	Help  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Theme, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Help, k.Theme, k.Quit}}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
		Theme: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle theme"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// Options configures the model.
type Options struct {
	MillNames [blend.MillCount]string
	Capacity  float64 // bunker capacity in tonnes
	Theme     string
}

type updateMsg monitor.Update

type sourceClosedMsg struct{}

// Model is the bubbletea model.
type Model struct {
	source   Source
	opts     Options
	styles   Styles
	keys     keyMap
	help     help.Model
	showHelp bool

	current *monitor.Update
	closed  bool
	width   int
}

// New creates a dashboard reading from src.
func New(src Source, opts Options) Model {
	for i, n := range opts.MillNames {
		if n == "" {
			opts.MillNames[i] = string(rune('A' + i))
		}
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 500
	}
	return Model{
		source: src,
		opts:   opts,
		styles: NewStyles(ThemeByName(opts.Theme)),
		keys:   defaultKeyMap(),
		help:   help.New(),
	}
}

func waitForUpdate(ch <-chan monitor.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return sourceClosedMsg{}
		}
		return updateMsg(u)
	}
}

func (m Model) Init() tea.Cmd {
	return waitForUpdate(m.source.Updates())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Theme):
			next := DarkTheme()
			if m.styles.Theme.IsDark {
				next = LightTheme()
			}
			m.styles = NewStyles(next)
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			m.help.ShowAll = m.showHelp
		}

	case updateMsg:
		u := monitor.Update(msg)
		m.current = &u
		return m, waitForUpdate(m.source.Updates())

	case sourceClosedMsg:
		m.closed = true
	}
	return m, nil
}

func (m Model) View() string {
	var sb strings.Builder

	status := m.styles.Success.Render(m.source.Status())
	if m.closed {
		status = m.styles.Error.Render("stream closed")
	}
	sb.WriteString(m.styles.Header.Render("Bunker monitor"))
	sb.WriteString(" ")
	sb.WriteString(status)
	sb.WriteString("\n\n")

	if m.current == nil {
		sb.WriteString(m.styles.Muted.Render("waiting for bunker data…"))
		sb.WriteString("\n\n")
		sb.WriteString(m.styles.Footer.Render(m.help.View(m.keys)))
		return sb.String()
	}

	silos := make([]string, 0, blend.MillCount)
	for i, v := range m.current.Snapshot.Bunkers {
		silos = append(silos, renderSilo("Mill "+m.opts.MillNames[i], v, m.opts.Capacity, m.styles))
		silos = append(silos, " ")
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Bottom, silos...))
	sb.WriteString("\n\n")

	summary := m.styles.Panel.Render(m.summaryTable().View(m.styles))
	active := m.activeTable().View(m.styles)
	if active != "" {
		active = m.styles.Panel.Render(active)
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, summary, " ", active))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Footer.Render(m.help.View(m.keys)))
	return sb.String()
}

func (m Model) summaryTable() *Table {
	s := m.current.Summary
	mt := s.Metrics
	t := NewTable("Live summary", "Metric", "Value")
	t.AddRow("AFT", formatAFT(mt.AFT))
	t.AddRow("GCV", fmt.Sprintf("%.0f kcal/kg", mt.GCV))
	t.AddRow("Heat rate", fmt.Sprintf("%.0f kcal/kWh", mt.HeatRate))
	t.AddRow("Cost rate", fmt.Sprintf("%.0f /h", mt.CostRate))
	t.AddRow("Cost", fmt.Sprintf("%.3f /kWh", mt.CostPerKWh))
	t.AddRow("Total flow", fmt.Sprintf("%.1f t/h", mt.TotalFlow))
	t.AddRow("Generation", fmt.Sprintf("%.0f MW", mt.GenerationMW))
	t.AddRow("Tick", fmt.Sprintf("#%d", m.current.Snapshot.Seq))
	return t
}

func (m Model) activeTable() *Table {
	t := NewTable("Drawing now", "Mill", "Blend", "GCV", "AFT", "Left")
	for i, v := range m.current.Snapshot.Bunkers {
		l := v.ActiveLayer()
		if l == nil {
			continue
		}
		gcv, aft := "-", "-"
		if l.Metrics != nil {
			gcv = fmt.Sprintf("%.0f", l.Metrics.GCV)
			aft = formatAFT(l.Metrics.AFT)
		}
		left := FormatClock(l.RemainingSeconds)
		if l.Stalled {
			left = "stalled"
		}
		t.AddRow(m.opts.MillNames[i], truncate(l.Label, 28), gcv, aft, left)
	}
	return t
}

func formatAFT(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f °C", v)
}

// Run starts the dashboard program and blocks until the user quits.
func Run(src Source, opts Options) error {
	defer src.Close()
	_, err := tea.NewProgram(New(src, opts), tea.WithAltScreen()).Run()
	return err
}
