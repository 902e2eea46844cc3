// Package reporting renders the session report.
package reporting

import (
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"netmonitor/internal/analysis"
	"netmonitor/internal/models"
)

// ErrUnsupportedFormat is returned for any format other than "html".
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Session is everything the report covers.
type Session struct {
	Generated time.Time
	Devices   []models.Device
	Alerts    []models.Alert
	Scans     []models.ScanResult
}

// SeverityCounts tallies alerts per severity.
func (s Session) SeverityCounts() map[models.Severity]int {
	counts := make(map[models.Severity]int, 3)
	for _, a := range s.Alerts {
		counts[a.Severity]++
	}
	return counts
}

// WriteSessionReport writes the report into dir and returns the file path.
func WriteSessionReport(dir string, s Session, format string) (string, error) {
	if format != "html" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if s.Generated.IsZero() {
		s.Generated = time.Now()
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("netmonitor_report_%s.html", s.Generated.Format("20060102_150405")))
	file, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := RenderHTML(file, s); err != nil {
		return "", err
	}
	return filename, nil
}

// RenderHTML writes the report as a standalone HTML page.
func RenderHTML(w io.Writer, s Session) error {
	if s.Generated.IsZero() {
		s.Generated = time.Now()
	}
	counts := s.SeverityCounts()

	var b strings.Builder

	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>NetMonitor Security Audit Report - %s</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #2c3e50; color: #fff; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .sev-High { color: #d9534f; font-weight: bold; }
        .sev-Medium { color: #f0ad4e; font-weight: bold; }
        .sev-Low { color: #5bc0de; }
    </style>
</head>
<body>
    <h1>NetMonitor Security Audit Report</h1>
    <div class="summary">
        <p><strong>Generated:</strong> %s</p>
    </div>

    <h2>1. Summary</h2>
    <table>
        <thead><tr><th>Metric</th><th>Count</th></tr></thead>
        <tbody>
            <tr><td>Total Devices Discovered</td><td>%d</td></tr>
            <tr><td>Total Alerts Triggered</td><td>%d</td></tr>
            <tr><td>High Severity Alerts</td><td>%d</td></tr>
            <tr><td>Medium Severity Alerts</td><td>%d</td></tr>
            <tr><td>Low Severity Alerts</td><td>%d</td></tr>
        </tbody>
    </table>

    <h2>2. Network Inventory</h2>
    <table>
        <thead><tr><th>IP Address</th><th>MAC Address</th><th>Name</th><th>First Seen</th><th>Last Seen</th></tr></thead>
        <tbody>
`,
		s.Generated.Format("20060102_150405"),
		s.Generated.Format("2006-01-02 15:04:05"),
		len(s.Devices), len(s.Alerts),
		counts[models.SeverityHigh], counts[models.SeverityMedium], counts[models.SeverityLow])

	if len(s.Devices) == 0 {
		b.WriteString("            <tr><td colspan=\"5\">No devices discovered.</td></tr>\n")
	}
	for _, d := range s.Devices {
		name := d.DisplayName
		if name == "" {
			name = models.DefaultDeviceName
		}
		fmt.Fprintf(&b, "            <tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			esc(d.Address), esc(d.HardwareID), esc(name),
			d.FirstSeen.Format("15:04:05"), d.LastSeen.Format("15:04:05"))
	}

	b.WriteString(`        </tbody>
    </table>

    <h2>3. Open Ports</h2>
    <table>
        <thead><tr><th>IP Address</th><th>Open Ports</th><th>Scanned</th></tr></thead>
        <tbody>
`)

	if len(s.Scans) == 0 {
		b.WriteString("            <tr><td colspan=\"3\">No port scans completed.</td></tr>\n")
	}
	for _, r := range s.Scans {
		fmt.Fprintf(&b, "            <tr><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			esc(r.Address), esc(formatPorts(r.OpenPorts)), r.ScanTime.Format("15:04:05"))
	}

	b.WriteString(`        </tbody>
    </table>

    <h2>4. Security Alerts</h2>
    <table>
        <thead><tr><th>Time</th><th>Severity</th><th>Type</th><th>Description</th></tr></thead>
        <tbody>
`)

	if len(s.Alerts) == 0 {
		b.WriteString("            <tr><td colspan=\"4\">No alerts triggered during this session.</td></tr>\n")
	}
	for _, a := range s.Alerts {
		sev := a.Severity.String()
		fmt.Fprintf(&b, "            <tr><td>%s</td><td class=\"sev-%s\">%s</td><td>%s</td><td>%s</td></tr>\n",
			a.Timestamp.Format("15:04:05"), sev, sev, esc(a.Type), esc(a.Description))
	}

	b.WriteString(`        </tbody>
    </table>
</body>
</html>
`)

	_, err := io.WriteString(w, b.String())
	return err
}

func esc(s string) string {
	return html.EscapeString(s)
}

func formatPorts(ports []uint16) string {
	if len(ports) == 0 {
		return "none"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprintf("%d/%s", p, analysis.GetServiceName(p))
	}
	return strings.Join(parts, ", ")
}
