package tui

import (
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"netmonitor/internal/events"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.report == nil {
				return m, nil
			}
			m.status = "Writing report..."
			report := m.report
			return m, func() tea.Msg {
				path, err := report()
				return reportMsg{path: path, err: err}
			}
		}

	case eventMsg:
		m.apply(events.Event(msg))
		return m, waitForEvent(m.feed)

	case feedClosedMsg:
		m.closed = true
		return m, nil

	case reportMsg:
		if msg.err != nil {
			m.status = "Report failed: " + msg.err.Error()
		} else {
			m.status = "Report saved to " + msg.path
		}
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) apply(e events.Event) {
	switch p := e.Payload.(type) {
	case events.StatsUpdated:
		m.stats = p.Stats
	case events.DeviceListUpdated:
		m.devices = p.Devices
		rows := make([]table.Row, len(p.Devices))
		for i, d := range p.Devices {
			rows[i] = table.Row{d.Address, d.HardwareID, d.DisplayName, d.LastSeen.Format("15:04:05")}
		}
		m.table.SetRows(rows)
	case events.AlertRaised:
		m.alerts = append(m.alerts, p.Alert)
		if len(m.alerts) > recentAlerts {
			m.alerts = m.alerts[len(m.alerts)-recentAlerts:]
		}
	}
}
