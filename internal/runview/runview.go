// Package runview renders a live terminal view of a worker run: a status
// header, the scrolling log tail, and an exit summary. It consumes the
// runner's event stream and owns the keyboard while the run is on screen.
package runview

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/runner"
)

// maxStoredLines bounds the in-memory log tail.
const maxStoredLines = 1000

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	stderrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

type eventMsg runner.Event

type streamClosedMsg struct{}

type tickMsg time.Time

// Model is the bubbletea model for one run.
type Model struct {
	run    *runner.Run
	events <-chan runner.Event

	width  int
	height int
	lines  []string

	start    time.Time
	now      time.Time
	exitCode int
	finished bool
	killed   bool
	closed   bool
}

// New builds a view over an already started run and its event stream.
func New(run *runner.Run, events <-chan runner.Event) Model {
	now := time.Now()
	return Model{
		run:    run,
		events: events,
		start:  run.StartedAt,
		now:    now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.finished || m.closed {
				return m, tea.Quit
			}
			// Kill now, quit once the finished event lands.
			m.run.Kill()
			m.killed = true
			return m, nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case eventMsg:
		evt := runner.Event(msg)
		if evt.RunID != m.run.ID {
			return m, waitForEvent(m.events)
		}
		switch evt.Kind {
		case runner.EventLog, runner.EventStarted, runner.EventFailed:
			if evt.Line != "" {
				m.lines = append(m.lines, evt.Line)
				if len(m.lines) > maxStoredLines {
					m.lines = m.lines[len(m.lines)-maxStoredLines:]
				}
			}
			return m, waitForEvent(m.events)
		case runner.EventFinished:
			m.finished = true
			m.exitCode = evt.ExitCode
			m.now = time.Now()
			if m.killed {
				return m, tea.Quit
			}
			return m, nil
		}
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.closed = true
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.finished || m.closed {
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	id := m.run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	header := fmt.Sprintf("flowreg run %s  mode %s  elapsed %s", id, m.run.Mode, formatElapsed(m.now.Sub(m.start)))
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n\n")

	for _, line := range m.tail() {
		b.WriteString(styleLine(line))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(m.footer())
	return b.String()
}

// tail returns the log lines that fit under the header and footer.
func (m Model) tail() []string {
	visible := 20
	if m.height > 4 {
		visible = m.height - 4
	}
	if len(m.lines) <= visible {
		return m.lines
	}
	return m.lines[len(m.lines)-visible:]
}

func (m Model) footer() string {
	switch {
	case m.finished && m.exitCode == 0:
		return okStyle.Render("worker exited with code 0") + dimStyle.Render("  press q to quit")
	case m.finished:
		return failStyle.Render(fmt.Sprintf("worker exited with code %d", m.exitCode)) + dimStyle.Render("  press q to quit")
	case m.closed:
		return dimStyle.Render("event stream closed  press q to quit")
	case m.killed:
		return dimStyle.Render("killing worker...")
	default:
		return dimStyle.Render("press q to kill and quit")
	}
}

func styleLine(line string) string {
	if strings.HasPrefix(line, "[stderr] ") {
		return stderrStyle.Render(line)
	}
	return line
}

func waitForEvent(events <-chan runner.Event) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(evt)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	min := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, min, sec)
	}
	return fmt.Sprintf("%02d:%02d", min, sec)
}

// Follow runs the live view until the user quits. The worker's exit code
// comes from run.Wait after the view closes.
func Follow(run *runner.Run, events <-chan runner.Event) error {
	program := tea.NewProgram(New(run, events), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("runview: %w", err)
	}
	return nil
}
