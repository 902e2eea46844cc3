package monitor

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmonitor/internal/analysis"
	"netmonitor/internal/events"
	"netmonitor/internal/logger"
	"netmonitor/internal/models"
)

type fakeDiscoverer struct {
	mu    sync.Mutex
	hosts []models.Host
}

func (f *fakeDiscoverer) LocalSubnet() *net.IPNet {
	_, n, _ := net.ParseCIDR("192.168.1.0/24")
	return n
}

func (f *fakeDiscoverer) Discover(context.Context, *net.IPNet) []models.Host {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Host(nil), f.hosts...)
}

func (f *fakeDiscoverer) set(hosts ...models.Host) {
	f.mu.Lock()
	f.hosts = hosts
	f.mu.Unlock()
}

type fakeProber struct {
	ports map[string][]uint16
	delay time.Duration

	mu             sync.Mutex
	scanned        []string
	inFlight, peak int
}

func (f *fakeProber) Scan(_ context.Context, addr string) []uint16 {
	f.mu.Lock()
	f.scanned = append(f.scanned, addr)
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return f.ports[addr]
}

type fakeRecorder struct {
	mu      sync.Mutex
	devices [][2]string
	scans   map[string][]uint16
	stored  []models.Device
}

func (f *fakeRecorder) RecordDevice(_ context.Context, ip, mac, _ string) {
	f.mu.Lock()
	f.devices = append(f.devices, [2]string{ip, mac})
	f.mu.Unlock()
}

func (f *fakeRecorder) RecordScan(_ context.Context, ip string, ports []uint16) {
	f.mu.Lock()
	if f.scans == nil {
		f.scans = make(map[string][]uint16)
	}
	f.scans[ip] = ports
	f.mu.Unlock()
}

func (f *fakeRecorder) Devices(context.Context) ([]models.Device, error) {
	return f.stored, nil
}

func host(t *testing.T, ip, mac string) models.Host {
	t.Helper()
	hw, err := net.ParseMAC(mac)
	require.NoError(t, err)
	return models.Host{IP: net.ParseIP(ip).To4(), MAC: hw}
}

type harness struct {
	loop  *Loop
	disc  *fakeDiscoverer
	probe *fakeProber
	rec   *fakeRecorder
	state *State
	bus   *events.Bus
	feed  <-chan events.Event
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		disc:  &fakeDiscoverer{},
		probe: &fakeProber{ports: map[string][]uint16{}},
		rec:   &fakeRecorder{},
		state: NewState(),
		bus:   events.NewBus(nil),
	}
	det := analysis.NewDetector(analysis.DefaultDetectorConfig(), nil, nil, logger.NewTestLogger())
	h.loop = NewLoop(cfg, h.disc, h.probe, det, h.rec, h.state, h.bus, logger.NewTestLogger())

	feed, unsub := h.bus.Subscribe(1024)
	t.Cleanup(unsub)
	h.feed = feed
	return h
}

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func alertsOf(evs []events.Event) []models.Alert {
	var out []models.Alert
	for _, e := range evs {
		if p, ok := e.Payload.(events.AlertRaised); ok {
			out = append(out, p.Alert)
		}
	}
	return out
}

func TestRunCycleNewDeviceScenario(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.disc.set(host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa"))
	h.loop.RunCycle(context.Background())
	h.loop.Wait()
	drain(h.feed)

	h.disc.set(
		host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa"),
		host(t, "192.168.1.3", "cc:cc:cc:cc:cc:cc"),
	)
	devices := h.loop.RunCycle(context.Background())
	h.loop.Wait()

	evs := drain(h.feed)
	alerts := alertsOf(evs)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertNewDevice, alerts[0].Type)
	assert.Equal(t, "New device joined: 192.168.1.3 (cc:cc:cc:cc:cc:cc)", alerts[0].Description)

	require.Len(t, devices, 2)
	assert.Equal(t, "192.168.1.2", devices[0].Address)
	assert.Equal(t, "192.168.1.3", devices[1].Address)

	var published []models.Device
	for _, e := range evs {
		if p, ok := e.Payload.(events.DeviceListUpdated); ok {
			published = p.Devices
		}
	}
	assert.Equal(t, devices, published)
	assert.Equal(t, []string{"192.168.1.2", "192.168.1.3"}, h.probe.scanned)
}

func TestRunCycleProbesNewHosts(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.probe.ports["192.168.1.3"] = []uint16{21, 22, 80}

	h.disc.set(host(t, "192.168.1.3", "cc:cc:cc:cc:cc:cc"), host(t, "192.168.1.4", "dd:dd:dd:dd:dd:dd"))
	h.loop.RunCycle(context.Background())
	h.loop.Wait()

	alerts := h.state.Alerts()
	var vulns []models.Alert
	for _, a := range alerts {
		if a.Type == models.AlertVulnerability {
			vulns = append(vulns, a)
		}
	}
	require.Len(t, vulns, 2)
	assert.Equal(t, uint16(21), vulns[0].Port)
	assert.Equal(t, models.SeverityHigh, vulns[0].Severity)
	assert.Equal(t, uint16(80), vulns[1].Port)
	assert.Equal(t, models.SeverityLow, vulns[1].Severity)

	assert.Equal(t, map[string][]uint16{"192.168.1.3": {21, 22, 80}}, h.rec.scans,
		"hosts without open ports are not persisted")

	results := h.state.ScanResults()
	require.Len(t, results, 2)
	assert.Empty(t, results[1].OpenPorts)
}

func TestRunCycleKnownHostsNotRealerted(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	t0 := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	h.loop.now = func() time.Time { return t0 }

	h.disc.set(host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa"))
	h.loop.RunCycle(context.Background())
	h.loop.Wait()

	h.loop.now = func() time.Time { return t0.Add(30 * time.Second) }
	devices := h.loop.RunCycle(context.Background())
	h.loop.Wait()

	assert.Len(t, h.state.Alerts(), 1)
	require.Len(t, devices, 1)
	assert.True(t, devices[0].FirstSeen.Equal(t0))
	assert.True(t, devices[0].LastSeen.Equal(t0.Add(30*time.Second)))
	assert.Len(t, h.rec.devices, 1)
}

func TestRunCycleAbsentHostsDropSilently(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.disc.set(host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa"))
	h.loop.RunCycle(context.Background())

	h.disc.set()
	devices := h.loop.RunCycle(context.Background())
	h.loop.Wait()

	assert.Empty(t, devices)
	assert.Len(t, h.state.Alerts(), 1)
}

func TestRunCycleMovedHostIsRefreshed(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.disc.set(host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa"))
	h.loop.RunCycle(context.Background())

	h.disc.set(host(t, "192.168.1.50", "aa:aa:aa:aa:aa:aa"))
	devices := h.loop.RunCycle(context.Background())
	h.loop.Wait()

	assert.Len(t, h.state.Alerts(), 1, "a new address is not a new device")
	require.Len(t, devices, 1)
	assert.Equal(t, "192.168.1.50", devices[0].Address)
	assert.Equal(t, [][2]string{
		{"192.168.1.2", "aa:aa:aa:aa:aa:aa"},
		{"192.168.1.50", "aa:aa:aa:aa:aa:aa"},
	}, h.rec.devices)
}

func TestSeedFromStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Novelty = NoveltyStore
	h := newHarness(t, cfg)
	h.rec.stored = []models.Device{{Address: "192.168.1.2", HardwareID: "aa:aa:aa:aa:aa:aa"}}

	h.loop.Seed(context.Background())
	h.disc.set(host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa"), host(t, "192.168.1.3", "cc:cc:cc:cc:cc:cc"))
	h.loop.RunCycle(context.Background())
	h.loop.Wait()

	alerts := h.state.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "192.168.1.3", alerts[0].Source)
}

func TestStoreNoveltySurvivesMissedSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Novelty = NoveltyStore
	h := newHarness(t, cfg)
	h.rec.stored = []models.Device{
		{Address: "192.168.1.2", HardwareID: "aa:aa:aa:aa:aa:aa"},
		{Address: "192.168.1.3", HardwareID: "cc:cc:cc:cc:cc:cc"},
	}
	h.loop.Seed(context.Background())

	h.disc.set(host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa"))
	devices := h.loop.RunCycle(context.Background())
	h.loop.Wait()
	assert.Len(t, devices, 1)

	h.disc.set(host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa"), host(t, "192.168.1.3", "cc:cc:cc:cc:cc:cc"))
	devices = h.loop.RunCycle(context.Background())
	h.loop.Wait()

	assert.Len(t, devices, 2)
	assert.Empty(t, h.state.Alerts(), "stored devices are never new")
	assert.Empty(t, h.probe.scanned)
}

func TestStoreNoveltyRemembersDevicesFoundThisRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Novelty = NoveltyStore
	h := newHarness(t, cfg)
	h.loop.Seed(context.Background())

	h.disc.set(host(t, "192.168.1.9", "dd:dd:dd:dd:dd:dd"))
	h.loop.RunCycle(context.Background())
	h.loop.Wait()

	h.disc.set()
	h.loop.RunCycle(context.Background())

	h.disc.set(host(t, "192.168.1.9", "dd:dd:dd:dd:dd:dd"))
	h.loop.RunCycle(context.Background())
	h.loop.Wait()

	assert.Len(t, h.state.Alerts(), 1)
}

func TestSeedIgnoredInProcessMode(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.rec.stored = []models.Device{{Address: "192.168.1.2", HardwareID: "aa:aa:aa:aa:aa:aa"}}

	h.loop.Seed(context.Background())
	assert.Zero(t, h.state.DeviceCount())
}

func TestHostScansAreBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentHostScans = 3
	h := newHarness(t, cfg)
	h.probe.delay = 5 * time.Millisecond

	var hosts []models.Host
	for i := 1; i <= 20; i++ {
		hosts = append(hosts, models.Host{
			IP:  net.IPv4(10, 0, 0, byte(i)).To4(),
			MAC: net.HardwareAddr{0x02, 0, 0, 0, 0, byte(i)},
		})
	}
	h.disc.set(hosts...)

	h.loop.RunCycle(context.Background())
	h.loop.Wait()

	assert.Len(t, h.probe.scanned, 20)
	assert.LessOrEqual(t, h.probe.peak, 3)
}

func TestServeRunsImmediatelyAndStops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScanInterval = time.Hour
	h := newHarness(t, cfg)
	h.disc.set(host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Serve(ctx) }()

	assert.Eventually(t, func() bool { return h.state.DeviceCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, "reconciliation loop", h.loop.String())
}
