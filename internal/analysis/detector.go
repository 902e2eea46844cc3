package analysis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"netmonitor/internal/logger"
	"netmonitor/internal/models"
)

// DetectorConfig holds the rule thresholds.
type DetectorConfig struct {
	PacketThreshold   float64 `koanf:"packet_threshold" validate:"gt=0"`    // packets per second
	SYNThreshold      uint64  `koanf:"syn_threshold" validate:"gt=0"`       // bare SYNs per source
	PortScanThreshold uint64  `koanf:"port_scan_threshold" validate:"gt=0"` // distinct destination ports per source
	// Cooldown suppresses a (rule, address) pair after it fires.
	// Zero re-raises on every evaluation.
	Cooldown time.Duration `koanf:"cooldown" validate:"gte=0"`
}

// DefaultDetectorConfig returns the default thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		PacketThreshold:   1000,
		SYNThreshold:      100,
		PortScanThreshold: 20,
	}
}

// AlertRecorder persists alerts. Implementations must not block for long
// and must not fail the caller.
type AlertRecorder interface {
	RecordAlert(ctx context.Context, alert models.Alert)
}

// Detector turns traffic snapshots and probe results into alerts.
type Detector struct {
	config   DetectorConfig
	vulns    VulnerabilityTable
	recorder AlertRecorder
	log      logger.Logger
	now      func() time.Time

	mu        sync.Mutex
	lastFired map[string]time.Time // "rule|address" -> last alert time
}

// NewDetector creates a detector. A nil table uses DefaultVulnerabilities;
// a nil recorder skips persistence.
func NewDetector(cfg DetectorConfig, vulns VulnerabilityTable, recorder AlertRecorder, log logger.Logger) *Detector {
	if vulns == nil {
		vulns = DefaultVulnerabilities
	}

	return &Detector{
		config:    cfg,
		vulns:     vulns,
		recorder:  recorder,
		log:       log,
		now:       time.Now,
		lastFired: make(map[string]time.Time),
	}
}

// EvaluateTraffic applies the volume, SYN flood and port scan rules, in that
// order. Within a rule, offending addresses are sorted.
func (d *Detector) EvaluateTraffic(ctx context.Context, snap models.TrafficSnapshot) []models.Alert {
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = d.now()
	}

	var alerts []models.Alert

	// Rule 1: volume
	if snap.PacketsPerSecond > d.config.PacketThreshold && d.allow(models.AlertHighTraffic, "", ts) {
		alerts = append(alerts, d.newAlert(ts, models.AlertHighTraffic, models.SeverityMedium, "", 0,
			fmt.Sprintf("Abnormal traffic spike detected: %d pps", int64(snap.PacketsPerSecond))))
	}

	// Rule 2: SYN flood
	for _, ip := range sortedKeys(snap.SYNCounts) {
		count := snap.SYNCounts[ip]
		if count > d.config.SYNThreshold && d.allow(models.AlertSYNFlood, ip, ts) {
			alerts = append(alerts, d.newAlert(ts, models.AlertSYNFlood, models.SeverityHigh, ip, 0,
				fmt.Sprintf("Excessive SYN packets from %s (%d packets)", ip, count)))
		}
	}

	// Rule 3: port scan fan-out
	for _, ip := range sortedKeys(snap.UniquePortsTargeted) {
		count := snap.UniquePortsTargeted[ip]
		if count > d.config.PortScanThreshold && d.allow(models.AlertPortScan, ip, ts) {
			alerts = append(alerts, d.newAlert(ts, models.AlertPortScan, models.SeverityHigh, ip, 0,
				fmt.Sprintf("Host %s targeted %d unique ports", ip, count)))
		}
	}

	d.record(ctx, alerts)
	return alerts
}

// EvaluateVulnerabilities raises one alert per open port found in the table.
func (d *Detector) EvaluateVulnerabilities(ctx context.Context, ip string, openPorts []uint16) []models.Alert {
	ts := d.now()

	var alerts []models.Alert
	for _, port := range openPorts {
		rule, ok := d.vulns[port]
		if !ok {
			continue
		}
		alerts = append(alerts, d.newAlert(ts, models.AlertVulnerability, rule.Severity, ip, port,
			fmt.Sprintf("%s on %s:%d", rule.Description, ip, port)))
	}

	d.record(ctx, alerts)
	return alerts
}

// OnNewDevice raises a new-device alert. Callers decide novelty.
func (d *Detector) OnNewDevice(ctx context.Context, ip, mac string) models.Alert {
	alert := d.newAlert(d.now(), models.AlertNewDevice, models.SeverityLow, ip, 0,
		fmt.Sprintf("New device joined: %s (%s)", ip, mac))

	d.record(ctx, []models.Alert{alert})
	return alert
}

func (d *Detector) newAlert(ts time.Time, typ string, sev models.Severity, source string, port uint16, desc string) models.Alert {
	return models.Alert{
		ID:          uuid.NewString(),
		Type:        typ,
		Description: desc,
		Severity:    sev,
		Source:      source,
		Port:        port,
		Timestamp:   ts,
	}
}

// allow applies the cooldown for a (rule, address) pair.
func (d *Detector) allow(rule, addr string, now time.Time) bool {
	if d.config.Cooldown <= 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := rule + "|" + addr
	if last, ok := d.lastFired[key]; ok && now.Sub(last) < d.config.Cooldown {
		return false
	}
	d.lastFired[key] = now

	// Lazy cleanup
	for k, last := range d.lastFired {
		if now.Sub(last) > 2*d.config.Cooldown {
			delete(d.lastFired, k)
		}
	}
	return true
}

func (d *Detector) record(ctx context.Context, alerts []models.Alert) {
	for _, a := range alerts {
		d.log.Warn().
			Str("type", a.Type).
			Stringer("severity", a.Severity).
			Str("source", a.Source).
			Msg(a.Description)

		if d.recorder != nil {
			d.recorder.RecordAlert(ctx, a)
		}
	}
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
