package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmonitor/internal/models"
)

func TestStateDiff(t *testing.T) {
	s := NewState()
	s.Replace([]models.Host{host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa")}, time.Now())

	added, moved := s.Diff([]models.Host{
		host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa"),
		host(t, "192.168.1.3", "cc:cc:cc:cc:cc:cc"),
	})
	require.Len(t, added, 1)
	assert.Equal(t, "192.168.1.3", added[0].IP.String())
	assert.Empty(t, moved)

	_, moved = s.Diff([]models.Host{host(t, "192.168.1.9", "aa:aa:aa:aa:aa:aa")})
	require.Len(t, moved, 1)
}

func TestStateReplaceOrdersNumerically(t *testing.T) {
	s := NewState()
	devices := s.Replace([]models.Host{
		host(t, "192.168.1.100", "01:00:00:00:00:01"),
		host(t, "192.168.1.20", "01:00:00:00:00:02"),
		host(t, "192.168.1.3", "01:00:00:00:00:03"),
	}, time.Now())

	var addrs []string
	for _, d := range devices {
		addrs = append(addrs, d.Address)
		assert.Equal(t, models.DefaultDeviceName, d.DisplayName)
	}
	assert.Equal(t, []string{"192.168.1.3", "192.168.1.20", "192.168.1.100"}, addrs)
}

func TestStateReplaceKeepsNames(t *testing.T) {
	s := NewState()
	named := host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa")
	named.Name = "printer.lan"
	s.Replace([]models.Host{named}, time.Now())

	devices := s.Replace([]models.Host{host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa")}, time.Now())
	assert.Equal(t, "printer.lan", devices[0].DisplayName)
}

func TestStateCopies(t *testing.T) {
	s := NewState()
	s.AddAlerts(models.Alert{ID: "1"}, models.Alert{ID: "2"})
	s.AddAlerts()

	alerts := s.Alerts()
	alerts[0].ID = "changed"
	assert.Equal(t, "1", s.Alerts()[0].ID)
	assert.Equal(t, 2, s.AlertCount())

	s.SetScanResult(models.ScanResult{Address: "10.0.0.2", OpenPorts: []uint16{22}})
	res := s.ScanResults()
	res[0].OpenPorts[0] = 99
	assert.Equal(t, uint16(22), s.ScanResults()[0].OpenPorts[0])
}

func TestStateSeed(t *testing.T) {
	s := NewState()
	s.Seed([]models.Device{
		{HardwareID: "aa:aa:aa:aa:aa:aa", Address: "192.168.1.2", DisplayName: "nas"},
		{Address: "no-hwid"},
	})
	assert.Zero(t, s.DeviceCount(), "seeded devices are not published")

	added, moved := s.Diff([]models.Host{
		host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa"),
		host(t, "192.168.1.3", "cc:cc:cc:cc:cc:cc"),
	})
	require.Len(t, added, 1)
	assert.Equal(t, "192.168.1.3", added[0].IP.String())
	require.Len(t, moved, 1)
	assert.Equal(t, "192.168.1.2", moved[0].IP.String())

	devices := s.Replace([]models.Host{host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa")}, time.Now())
	require.Len(t, devices, 1)
	assert.Equal(t, "nas", devices[0].DisplayName)
}

func TestStateHistorySurvivesMissedSweeps(t *testing.T) {
	s := NewState()
	s.Seed(nil)

	s.Replace([]models.Host{host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa")}, time.Now())
	s.Replace(nil, time.Now())

	added, moved := s.Diff([]models.Host{host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa")})
	assert.Empty(t, added)
	assert.Len(t, moved, 1)
}

func TestStateWithoutHistoryForgetsAbsentHosts(t *testing.T) {
	s := NewState()

	s.Replace([]models.Host{host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa")}, time.Now())
	s.Replace(nil, time.Now())

	added, _ := s.Diff([]models.Host{host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa")})
	assert.Len(t, added, 1)
}

func TestStateSession(t *testing.T) {
	s := NewState()
	s.Replace([]models.Host{host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa")}, time.Now())
	s.AddAlerts(models.Alert{ID: "1", Severity: models.SeverityHigh})
	s.SetScanResult(models.ScanResult{Address: "192.168.1.2", OpenPorts: []uint16{21}})

	session := s.Session()
	assert.False(t, session.Generated.IsZero())
	assert.Len(t, session.Devices, 1)
	assert.Len(t, session.Alerts, 1)
	assert.Len(t, session.Scans, 1)
	assert.Equal(t, 1, session.SeverityCounts()[models.SeverityHigh])
}
