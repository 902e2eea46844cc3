package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmonitor/internal/logger"
	"netmonitor/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (r *recordingSink) RecordAlert(_ context.Context, a models.Alert) {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
}

func stripIdentity(alerts []models.Alert) []models.Alert {
	out := make([]models.Alert, len(alerts))
	for i, a := range alerts {
		a.ID = ""
		out[i] = a
	}
	return out
}

func TestEvaluateTrafficScenario(t *testing.T) {
	sink := &recordingSink{}
	d := NewDetector(DefaultDetectorConfig(), nil, sink, logger.NewTestLogger())

	snap := models.TrafficSnapshot{
		PacketsPerSecond:    1500,
		SYNCounts:           map[string]uint64{"10.0.0.5": 150},
		UniquePortsTargeted: map[string]uint64{"10.0.0.5": 25},
		Timestamp:           time.Now(),
	}

	alerts := d.EvaluateTraffic(context.Background(), snap)
	require.Len(t, alerts, 3)

	assert.Equal(t, models.AlertHighTraffic, alerts[0].Type)
	assert.Equal(t, models.SeverityMedium, alerts[0].Severity)
	assert.Equal(t, "Abnormal traffic spike detected: 1500 pps", alerts[0].Description)

	assert.Equal(t, models.AlertSYNFlood, alerts[1].Type)
	assert.Equal(t, models.SeverityHigh, alerts[1].Severity)
	assert.Equal(t, "10.0.0.5", alerts[1].Source)
	assert.Equal(t, "Excessive SYN packets from 10.0.0.5 (150 packets)", alerts[1].Description)

	assert.Equal(t, models.AlertPortScan, alerts[2].Type)
	assert.Equal(t, models.SeverityHigh, alerts[2].Severity)
	assert.Equal(t, "10.0.0.5", alerts[2].Source)
	assert.Equal(t, "Host 10.0.0.5 targeted 25 unique ports", alerts[2].Description)

	assert.Equal(t, alerts, sink.alerts, "every alert is recorded")
	for _, a := range alerts {
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, snap.Timestamp, a.Timestamp)
	}
}

func TestEvaluateTrafficThresholdsAreStrict(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil, nil, logger.NewTestLogger())

	alerts := d.EvaluateTraffic(context.Background(), models.TrafficSnapshot{
		PacketsPerSecond:    1000,
		SYNCounts:           map[string]uint64{"10.0.0.5": 100},
		UniquePortsTargeted: map[string]uint64{"10.0.0.5": 20},
	})
	assert.Empty(t, alerts)
}

func TestEvaluateTrafficIsDeterministic(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil, nil, logger.NewTestLogger())

	snap := models.TrafficSnapshot{
		PacketsPerSecond: 10,
		SYNCounts: map[string]uint64{
			"10.0.0.9":  500,
			"10.0.0.10": 300,
			"10.0.0.2":  101,
		},
		UniquePortsTargeted: map[string]uint64{
			"10.0.0.9": 21,
			"10.0.0.2": 400,
		},
		Timestamp: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}

	first := d.EvaluateTraffic(context.Background(), snap)
	second := d.EvaluateTraffic(context.Background(), snap)

	require.Len(t, first, 5)
	assert.Equal(t, stripIdentity(first), stripIdentity(second))

	var order []string
	for _, a := range first {
		order = append(order, a.Type+" "+a.Source)
	}
	assert.Equal(t, []string{
		models.AlertSYNFlood + " 10.0.0.10",
		models.AlertSYNFlood + " 10.0.0.2",
		models.AlertSYNFlood + " 10.0.0.9",
		models.AlertPortScan + " 10.0.0.2",
		models.AlertPortScan + " 10.0.0.9",
	}, order)
}

func TestCooldownSuppressesRepeats(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.Cooldown = 30 * time.Second
	d := NewDetector(cfg, nil, nil, logger.NewTestLogger())

	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	snap := models.TrafficSnapshot{
		SYNCounts: map[string]uint64{"10.0.0.5": 150, "10.0.0.6": 150},
		Timestamp: start,
	}

	assert.Len(t, d.EvaluateTraffic(context.Background(), snap), 2)

	snap.Timestamp = start.Add(time.Second)
	assert.Empty(t, d.EvaluateTraffic(context.Background(), snap))

	snap.Timestamp = start.Add(31 * time.Second)
	assert.Len(t, d.EvaluateTraffic(context.Background(), snap), 2)
}

func TestNoCooldownRepeatsEveryTick(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil, nil, logger.NewTestLogger())
	snap := models.TrafficSnapshot{SYNCounts: map[string]uint64{"10.0.0.5": 150}, Timestamp: time.Now()}

	for i := 0; i < 3; i++ {
		assert.Len(t, d.EvaluateTraffic(context.Background(), snap), 1)
	}
}

func TestEvaluateVulnerabilities(t *testing.T) {
	table := NewVulnerabilityTable(
		models.VulnerabilityRule{Port: 21, Service: "FTP", Description: "FTP", Severity: models.SeverityHigh},
		models.VulnerabilityRule{Port: 80, Service: "HTTP", Description: "HTTP", Severity: models.SeverityLow},
	)
	sink := &recordingSink{}
	d := NewDetector(DefaultDetectorConfig(), table, sink, logger.NewTestLogger())

	alerts := d.EvaluateVulnerabilities(context.Background(), "10.0.0.3", []uint16{21, 22, 80})
	require.Len(t, alerts, 2)

	assert.Equal(t, models.AlertVulnerability, alerts[0].Type)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, uint16(21), alerts[0].Port)
	assert.Equal(t, "FTP on 10.0.0.3:21", alerts[0].Description)

	assert.Equal(t, models.SeverityLow, alerts[1].Severity)
	assert.Equal(t, uint16(80), alerts[1].Port)
	assert.Equal(t, "10.0.0.3", alerts[1].Source)

	assert.Len(t, sink.alerts, 2)
}

func TestEvaluateVulnerabilitiesNoMatches(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil, nil, logger.NewTestLogger())
	assert.Empty(t, d.EvaluateVulnerabilities(context.Background(), "10.0.0.3", []uint16{22, 443}))
	assert.Empty(t, d.EvaluateVulnerabilities(context.Background(), "10.0.0.3", nil))
}

func TestOnNewDevice(t *testing.T) {
	sink := &recordingSink{}
	d := NewDetector(DefaultDetectorConfig(), nil, sink, logger.NewTestLogger())

	a := d.OnNewDevice(context.Background(), "10.0.0.3", "cc:dd:ee:ff:00:11")
	b := d.OnNewDevice(context.Background(), "10.0.0.3", "cc:dd:ee:ff:00:11")

	assert.Equal(t, models.AlertNewDevice, a.Type)
	assert.Equal(t, models.SeverityLow, a.Severity)
	assert.Equal(t, "New device joined: 10.0.0.3 (cc:dd:ee:ff:00:11)", a.Description)
	assert.NotEqual(t, a.ID, b.ID, "no deduplication")
	assert.Len(t, sink.alerts, 2)
}

func TestDefaultVulnerabilities(t *testing.T) {
	assert.Equal(t, models.SeverityHigh, DefaultVulnerabilities[21].Severity)
	assert.Equal(t, models.SeverityHigh, DefaultVulnerabilities[23].Severity)
	assert.Equal(t, models.SeverityLow, DefaultVulnerabilities[80].Severity)
	_, ok := DefaultVulnerabilities[22]
	assert.False(t, ok)
	assert.Equal(t, "SMB", DefaultVulnerabilities[445].Service)
	assert.Equal(t, "8443", GetServiceName(8443))
}
