package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/affinity/internal/affinity"
	"github.com/mattjoyce/affinity/internal/events"
)

const maxRecentEvents = 50

type eventMsg events.Event

// dispatchedMsg reports the outcome of a key-triggered dispatch.
type dispatchedMsg struct {
	source string
	err    error
}

// Monitor renders the owner-affine board, dispatcher state, and the event
// stream. It binds the dispatcher from the event loop on its first Update.
type Monitor struct {
	d     *affinity.Dispatcher
	host  *Host
	board *Board

	events      <-chan events.Event
	unsubscribe func()

	theme  Theme
	width  int
	height int

	eventTable table.Model
	recent     []events.Event
	lastErr    string
}

func NewMonitor(d *affinity.Dispatcher, host *Host, board *Board, hub *events.Hub) *Monitor {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 6},
			{Title: "Time", Width: 8},
			{Title: "Type", Width: 16},
			{Title: "Data", Width: 40},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	ch, cancel := hub.Subscribe()
	return &Monitor{
		d:           d,
		host:        host,
		board:       board,
		events:      ch,
		unsubscribe: cancel,
		theme:       NewDefaultTheme(),
		eventTable:  t,
	}
}

// Close stops the hub subscription.
func (m *Monitor) Close() {
	m.unsubscribe()
}

func (m *Monitor) Init() tea.Cmd {
	return m.receiveNextEvent()
}

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.d.State() == affinity.StateUnbound {
		if err := m.d.Initialize(); err != nil {
			m.lastErr = err.Error()
		}
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			// Commands run off the event loop, so this dispatch is posted.
			// Design mode would run it in place there, racing with View.
			if m.host.DesignMode() {
				return m, m.dispatchNow("probe")
			}
			return m, m.dispatchCmd("probe")
		case "s":
			return m, m.dispatchNow("key")
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.eventTable.SetWidth(max(m.width-6, 20))

	case eventMsg:
		m.addEvent(events.Event(msg))
		return m, m.receiveNextEvent()

	case dispatchedMsg:
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", msg.source, msg.err)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.eventTable, cmd = m.eventTable.Update(msg)
	return m, cmd
}

// dispatchNow dispatches from Update itself, which runs in place.
func (m *Monitor) dispatchNow(source string) tea.Cmd {
	err := m.d.Dispatch(func() error {
		m.board.Add(source, source+" ran in place")
		return nil
	})
	return func() tea.Msg { return dispatchedMsg{source: source, err: err} }
}

func (m *Monitor) dispatchCmd(source string) tea.Cmd {
	board, d := m.board, m.d
	return func() tea.Msg {
		err := d.Dispatch(func() error {
			board.Add(source, source+" posted from a command")
			return nil
		})
		return dispatchedMsg{source: source, err: err}
	}
}

func (m *Monitor) addEvent(ev events.Event) {
	m.recent = append([]events.Event{ev}, m.recent...)
	if len(m.recent) > maxRecentEvents {
		m.recent = m.recent[:maxRecentEvents]
	}

	rows := make([]table.Row, 0, len(m.recent))
	for _, e := range m.recent {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", e.ID),
			e.At.Format("15:04:05"),
			string(e.Type),
			string(e.Data),
		})
	}
	m.eventTable.SetRows(rows)
}

func (m *Monitor) receiveNextEvent() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m *Monitor) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	width := m.width - 4

	board := m.theme.Border.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Board"),
			m.renderBoard(),
		),
	)
	stream := m.theme.Border.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Event Stream"),
			m.eventTable.View(),
		),
	)
	help := m.theme.Dim.Render(" [s] dispatch in place • [p] post probe • [q] quit")

	parts := []string{m.renderHeader(width), board, stream}
	if m.lastErr != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" error: "+m.lastErr))
	}
	parts = append(parts, help)
	return m.theme.Doc.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m *Monitor) renderHeader(width int) string {
	stats := m.d.Stats()
	state := stats.State.String()
	switch stats.State {
	case affinity.StateBound:
		state = m.theme.StatusOK.Render(state)
	case affinity.StateNoOp:
		state = m.theme.StatusWarn.Render(state)
	default:
		state = m.theme.StatusFailed.Render(state)
	}
	host := m.host.Stats()

	items := []string{
		fmt.Sprintf("Owner: %s", state),
		fmt.Sprintf("In place: %d", stats.SyncRuns),
		fmt.Sprintf("Posted: %d", stats.Posted),
		fmt.Sprintf("Failed: %d", host.Failed),
	}
	cols := make([]string, 0, len(items))
	for _, item := range items {
		cols = append(cols, lipgloss.NewStyle().Width(width/len(items)).Render(item))
	}
	return m.theme.Border.Width(width).Render(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
}

func (m *Monitor) renderBoard() string {
	var lines []string
	for _, src := range m.board.Sources() {
		lines = append(lines, fmt.Sprintf("%-12s %d", src, m.board.Count(src)))
	}
	if len(lines) == 0 {
		return "  No updates yet..."
	}
	lines = append(lines, "")
	lines = append(lines, m.board.Lines()...)
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}
