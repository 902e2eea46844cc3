// Package monitor drives discovery, probing and detection on a schedule
// and publishes the results.
package monitor

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"netmonitor/internal/events"
	"netmonitor/internal/logger"
	"netmonitor/internal/metrics"
	"netmonitor/internal/models"
)

// Novelty modes. Process scopes "new device" to this run; store also
// remembers every device the store has recorded.
const (
	NoveltyProcess = "process"
	NoveltyStore   = "store"
)

// Config schedules the loops.
type Config struct {
	ScanInterval           time.Duration `koanf:"scan_interval" validate:"gt=0"`
	StatsInterval          time.Duration `koanf:"stats_interval" validate:"gt=0"`
	MaxConcurrentHostScans int64         `koanf:"max_concurrent_host_scans" validate:"min=1"`
	// Novelty decides what "new device" is relative to: this process
	// (process) or everything the store has recorded (store).
	Novelty string `koanf:"novelty" validate:"oneof=process store"`
}

// DefaultConfig sweeps every 30s, publishes stats every second and probes
// at most 8 hosts at once.
func DefaultConfig() Config {
	return Config{
		ScanInterval:           30 * time.Second,
		StatsInterval:          time.Second,
		MaxConcurrentHostScans: 8,
		Novelty:                NoveltyProcess,
	}
}

// HostDiscoverer finds the hosts answering on the local segment.
type HostDiscoverer interface {
	LocalSubnet() *net.IPNet
	Discover(ctx context.Context, subnet *net.IPNet) []models.Host
}

// PortProber lists the open TCP ports of one address, sorted.
type PortProber interface {
	Scan(ctx context.Context, addr string) []uint16
}

// AlertSource is the detection engine.
type AlertSource interface {
	EvaluateTraffic(ctx context.Context, snap models.TrafficSnapshot) []models.Alert
	EvaluateVulnerabilities(ctx context.Context, addr string, ports []uint16) []models.Alert
	OnNewDevice(ctx context.Context, addr, hwid string) models.Alert
}

// Recorder is the best-effort persistence path.
type Recorder interface {
	RecordDevice(ctx context.Context, ip, mac, name string)
	RecordScan(ctx context.Context, ip string, ports []uint16)
	Devices(ctx context.Context) ([]models.Device, error)
}

// Publisher delivers events to presentation. It must not block.
type Publisher interface {
	Publish(e events.Event)
}

// Loop is the reconciliation loop: discover, diff against known devices,
// probe new hosts and publish the device list.
type Loop struct {
	cfg        Config
	discoverer HostDiscoverer
	prober     PortProber
	detector   AlertSource
	recorder   Recorder
	state      *State
	bus        Publisher
	log        logger.Logger
	now        func() time.Time

	sem   *semaphore.Weighted
	scans sync.WaitGroup
}

// NewLoop wires a loop. Zero intervals and limits take their defaults.
func NewLoop(cfg Config, d HostDiscoverer, p PortProber, det AlertSource, rec Recorder,
	state *State, bus Publisher, log logger.Logger) *Loop {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultConfig().ScanInterval
	}
	if cfg.MaxConcurrentHostScans <= 0 {
		cfg.MaxConcurrentHostScans = DefaultConfig().MaxConcurrentHostScans
	}

	return &Loop{
		cfg:        cfg,
		discoverer: d,
		prober:     p,
		detector:   det,
		recorder:   rec,
		state:      state,
		bus:        bus,
		log:        log.WithComponent("reconcile"),
		now:        time.Now,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrentHostScans),
	}
}

// Seed loads the store's device list into the device history when
// novelty is judged against the store. History tracking stays on even
// when the store cannot be read.
func (l *Loop) Seed(ctx context.Context) {
	if l.cfg.Novelty != NoveltyStore {
		return
	}
	devices, err := l.recorder.Devices(ctx)
	if err != nil {
		l.log.Warn().Err(err).Msg("could not seed known devices from store")
		l.state.Seed(nil)
		return
	}
	l.state.Seed(devices)
	l.log.Info().Int("devices", len(devices)).Msg("seeded known devices from store")
}

// RunCycle performs one discovery round and returns the published device
// list. Port scans for new hosts keep running after it returns.
func (l *Loop) RunCycle(ctx context.Context) []models.Device {
	start := time.Now()

	subnet := l.discoverer.LocalSubnet()
	hosts := l.discoverer.Discover(ctx, subnet)

	added, moved := l.state.Diff(hosts)
	for _, h := range added {
		ip, mac := h.IP.String(), h.MAC.String()

		l.raise(l.detector.OnNewDevice(ctx, ip, mac))
		l.recorder.RecordDevice(ctx, ip, mac, h.Name)
		l.scheduleScan(ctx, ip)
	}
	for _, h := range moved {
		l.recorder.RecordDevice(ctx, h.IP.String(), h.MAC.String(), h.Name)
	}

	devices := l.state.Replace(hosts, l.now())
	l.bus.Publish(events.NewDeviceListUpdated(devices))

	metrics.DiscoveryDuration.Observe(time.Since(start).Seconds())
	l.log.Info().
		Str("subnet", subnet.String()).
		Int("devices", len(devices)).
		Int("new", len(added)).
		Msg("discovery cycle finished")

	return devices
}

func (l *Loop) scheduleScan(ctx context.Context, ip string) {
	l.scans.Add(1)
	go func() {
		defer l.scans.Done()

		if err := l.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer l.sem.Release(1)

		start := time.Now()
		ports := l.prober.Scan(ctx, ip)
		metrics.PortScanDuration.Observe(time.Since(start).Seconds())

		if ctx.Err() != nil {
			return
		}

		l.state.SetScanResult(models.ScanResult{Address: ip, OpenPorts: ports, ScanTime: l.now()})
		if len(ports) > 0 {
			l.recorder.RecordScan(ctx, ip, ports)
		}
		for _, a := range l.detector.EvaluateVulnerabilities(ctx, ip, ports) {
			l.raise(a)
		}
	}()
}

// Wait blocks until every scheduled port scan has finished.
func (l *Loop) Wait() {
	l.scans.Wait()
}

func (l *Loop) raise(a models.Alert) {
	l.state.AddAlerts(a)
	l.bus.Publish(events.NewAlertRaised(a))
}

// Serve runs a cycle immediately and then every ScanInterval.
func (l *Loop) Serve(ctx context.Context) error {
	defer l.Wait()

	l.Seed(ctx)
	l.RunCycle(ctx)

	ticker := time.NewTicker(l.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.RunCycle(ctx)
		}
	}
}

func (l *Loop) String() string { return "reconciliation loop" }
