package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ds-codi/pm-supervisor/internal/client"
	"github.com/ds-codi/pm-supervisor/internal/control"
	"github.com/ds-codi/pm-supervisor/internal/livebridge"
)

var (
	greenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	grayStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	paneStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))
	legendStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	maxEventLog = 200
)

// model is the bubbletea model backing the default `supctl` dashboard: a
// service-status pane, an attached-clients pane, and a scrolling event log
// fed by the live dashboard bridge.
type model struct {
	client *client.Client

	services []control.ServiceRecord
	clients  []control.ClientAttachment
	eventLog []string

	width, height int
	err           error
}

type statusMsg struct {
	services []control.ServiceRecord
	clients  []control.ClientAttachment
	err      error
}

type frameMsg livebridge.Frame
type tickMsg struct{}

func newModel(c *client.Client) *model {
	return &model{client: c}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.refresh, tickCmd())
}

func (m *model) refresh() tea.Msg {
	services, err := m.client.Status()
	if err != nil {
		return statusMsg{err: err}
	}
	clients, err := m.client.ListClients()
	if err != nil {
		return statusMsg{err: err}
	}
	return statusMsg{services: services, clients: clients}
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.services = msg.services
		m.clients = msg.clients
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh, tickCmd())

	case frameMsg:
		m.appendFrame(livebridge.Frame(msg))
		return m, nil
	}
	return m, nil
}

func (m *model) appendFrame(frame livebridge.Frame) {
	switch frame.Kind {
	case livebridge.FrameEvent:
		if frame.Event == nil {
			return
		}
		line := fmt.Sprintf("[%d] %s %s", frame.Event.ID, frame.Event.Data.Kind, frame.Event.Data.Message)
		m.eventLog = append(m.eventLog, line)
		if over := len(m.eventLog) - maxEventLog; over > 0 {
			m.eventLog = m.eventLog[over:]
		}
	case livebridge.FrameServiceSnapshot:
		// Snapshots refresh the services pane without waiting for the next tick.
		services := make([]control.ServiceRecord, 0, len(frame.Services))
		for _, s := range frame.Services {
			rec := control.ServiceRecord{Name: s.Name, Status: control.ServiceStatus(s.State)}
			if s.Backend != "" {
				b := control.BackendKind(s.Backend)
				rec.Backend = &b
			}
			if s.Endpoint != "" {
				e := s.Endpoint
				rec.Endpoint = &e
			}
			services = append(services, rec)
		}
		m.services = services
	}
}

func (m *model) View() string {
	header := headerStyle.Render("supctl — supervisor dashboard")

	var servicesBody strings.Builder
	for _, rec := range m.services {
		servicesBody.WriteString(statusStyle(rec.Status).Render(rec.Name+" "+string(rec.Status)) + "\n")
	}
	servicesPane := paneStyle.Render(headerStyle.Render("Services") + "\n" + servicesBody.String())

	var clientsBody strings.Builder
	if len(m.clients) == 0 {
		clientsBody.WriteString(grayStyle.Render("(none attached)"))
	}
	for _, c := range m.clients {
		clientsBody.WriteString(fmt.Sprintf("%s pid=%d window=%s\n", c.ClientID, c.PID, c.WindowID))
	}
	clientsPane := paneStyle.Render(headerStyle.Render("Clients") + "\n" + clientsBody.String())

	var logBody strings.Builder
	for _, line := range tailLines(m.eventLog, 15) {
		logBody.WriteString(line + "\n")
	}
	logPane := paneStyle.Render(headerStyle.Render("Events") + "\n" + logBody.String())

	body := lipgloss.JoinHorizontal(lipgloss.Top, servicesPane, clientsPane)
	footer := legendStyle.Render("q: quit")

	if m.err != nil {
		footer = redStyle.Render(m.err.Error()) + "  " + footer
	}

	return header + "\n" + body + "\n" + logPane + "\n" + footer
}

func statusStyle(status control.ServiceStatus) lipgloss.Style {
	switch status {
	case control.StatusRunning:
		return greenStyle
	case control.StatusStarting, control.StatusReconnecting, control.StatusStopping:
		return yellowStyle
	case control.StatusStopped:
		return redStyle
	default:
		return grayStyle
	}
}

func tailLines(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
