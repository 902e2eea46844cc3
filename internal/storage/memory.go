package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"netmonitor/internal/models"
)

// MemoryStore keeps everything for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]models.Device
	alerts  []models.Alert
	scans   []models.ScanResult
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]models.Device),
		now:     time.Now,
	}
}

func (m *MemoryStore) UpsertDevice(_ context.Context, ip, mac, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	dev, ok := m.devices[mac]
	if !ok {
		dev = models.Device{HardwareID: mac, FirstSeen: now, DisplayName: models.DefaultDeviceName}
	}
	dev.Address = ip
	dev.LastSeen = now
	if name != "" && name != models.DefaultDeviceName {
		dev.DisplayName = name
	}
	m.devices[mac] = dev
	return nil
}

func (m *MemoryStore) AppendAlert(_ context.Context, alert models.Alert) error {
	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) AppendScanResult(_ context.Context, ip string, ports []uint16) error {
	m.mu.Lock()
	m.scans = append(m.scans, models.ScanResult{
		Address:   ip,
		OpenPorts: append([]uint16(nil), ports...),
		ScanTime:  m.now(),
	})
	m.mu.Unlock()
	return nil
}

// ListDevices returns the devices ordered by hardware address.
func (m *MemoryStore) ListDevices(_ context.Context) ([]models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HardwareID < out[j].HardwareID })
	return out, nil
}

// Alerts returns a copy of the stored alerts in insertion order.
func (m *MemoryStore) Alerts() []models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Alert(nil), m.alerts...)
}

// ScanResults returns a copy of the stored scan results in insertion order.
func (m *MemoryStore) ScanResults() []models.ScanResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ScanResult(nil), m.scans...)
}

func (m *MemoryStore) Close() error { return nil }
