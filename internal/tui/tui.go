// ABOUTME: Terminal status view for the visualization daemon
// ABOUTME: Shows listening address, playback lead and connected clients using bubbletea
package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Sendspin/sendspin-vis/internal/visualization"
)

// Status is one refresh of everything the view shows
type Status struct {
	Name       string
	AudioTitle string
	Output     visualization.Stats
}

// TUI runs the bubbletea program
type TUI struct {
	program  *tea.Program
	updates  chan Status
	quitChan chan struct{}
	name     string

	mu      sync.Mutex
	stopped bool
}

// model is the bubbletea model
type model struct {
	status    Status
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg Status

func (m model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = Status(msg)
		return m, nil
	}

	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)
	headerStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	clientHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	closedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	out := m.status.Output
	var b strings.Builder

	b.WriteString(titleStyle.Render("Visualization Server"))
	b.WriteString("\n\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	field("Server", m.status.Name)
	if out.Listening {
		field("Listening", out.Addr)
	} else {
		field("Listening", "no")
	}
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	field("Playing", m.status.AudioTitle)
	if out.Playback.Open {
		field("Format", out.Playback.Format.String())
		field("Played", formatBytes(out.Playback.Bytes))
		field("Lead", fmt.Sprintf("%.3fs", out.Playback.Lead.Seconds()))
	}
	b.WriteString("\n")

	b.WriteString(clientHeaderStyle.Render(fmt.Sprintf("Connected Clients (%d)", len(out.Clients))))
	b.WriteString("\n\n")

	if len(out.Clients) == 0 {
		b.WriteString(valueStyle.Render("  No clients connected"))
		b.WriteString("\n")
	} else {
		for _, c := range out.Clients {
			line := fmt.Sprintf("  • %s", c.Peer)
			detail := fmt.Sprintf(" (%s, %s echoed, %s)", c.State, formatBytes(c.BytesEchoed), shortID(c.ID))
			if c.State == "closed" {
				b.WriteString(closedStyle.Render(line + detail))
			} else {
				b.WriteString(line)
				b.WriteString(valueStyle.Render(detail))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// New creates a TUI for the named server
func New(name string) *TUI {
	t := &TUI{
		name:     name,
		updates:  make(chan Status, 10),
		quitChan: make(chan struct{}, 1),
	}
	m := model{
		status: Status{
			Name:       name,
			AudioTitle: "Initializing...",
		},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}
	t.program = tea.NewProgram(m, tea.WithAltScreen())
	return t
}

// Run shows the view until the user quits or Stop is called
func (t *TUI) Run() error {
	go func() {
		for status := range t.updates {
			t.program.Send(statusMsg(status))
		}
		t.program.Quit()
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status refresh without blocking
func (t *TUI) Update(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	select {
	case t.updates <- status:
	default:
	}
}

// Stop ends the program. Further updates are ignored.
func (t *TUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.updates)
}

// QuitChan signals when the user asked to quit
func (t *TUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
