package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"netmonitor/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	severityStyles = map[models.Severity]lipgloss.Style{
		models.SeverityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true),
		models.SeverityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")),
		models.SeverityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFFF")),
	}

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m Model) View() string {
	title := titleStyle.Render(m.title)

	stats := fmt.Sprintf("Devices: %d\nPacket Rate: %.2f PPS\nUpload: %s\nDownload: %s\nAlerts: %d",
		m.stats.DeviceCount, m.stats.PacketsPerSecond,
		formatBps(m.stats.UploadBps), formatBps(m.stats.DownloadBps),
		m.stats.AlertCount)
	statsBox := infoStyle.Render(stats)

	var lines []string
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		sev := severityStyles[a.Severity].Render(fmt.Sprintf("[%s]", a.Severity))
		lines = append(lines, fmt.Sprintf("%s %s %s", a.Timestamp.Format("15:04:05"), sev, a.Description))
	}
	if len(lines) == 0 {
		lines = append(lines, "No alerts yet.")
	}
	alertBox := infoStyle.Render("Recent Alerts\n" + strings.Join(lines, "\n"))

	devBox := infoStyle.Render("Devices\n" + m.table.View())

	row1 := lipgloss.JoinHorizontal(lipgloss.Top, statsBox, alertBox)
	body := lipgloss.JoinVertical(lipgloss.Left, title, row1, devBox)

	footer := "Press r to save a report, q to quit."
	if m.status != "" {
		footer = statusStyle.Render(m.status) + "\n" + footer
	}
	if m.closed {
		footer = "Event feed closed.\n" + footer
	}
	return body + "\n" + footer
}

// formatBps renders a byte rate as bits per second.
func formatBps(bytesPerSec float64) string {
	bps := bytesPerSec * 8
	if bps >= 1e6 {
		return fmt.Sprintf("%.2f Mbps", bps/1e6)
	}
	if bps >= 1e3 {
		return fmt.Sprintf("%.2f Kbps", bps/1e3)
	}
	return fmt.Sprintf("%.2f bps", bps)
}
