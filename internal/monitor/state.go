package monitor

import (
	"bytes"
	"net"
	"sort"
	"sync"
	"time"

	"netmonitor/internal/models"
	"netmonitor/internal/reporting"
)

// State is the in-memory view shared by the loops and the presentation
// layer. Readers get copies.
type State struct {
	mu     sync.RWMutex
	known  map[string]models.Device // published set, by hardware id
	alerts []models.Alert
	scans  map[string]models.ScanResult // latest per address
	stats  models.Stats

	// history holds every device ever recorded, by hardware id. It stays
	// nil until Seed is called, so novelty is scoped to the process.
	history map[string]models.Device
}

func NewState() *State {
	return &State{
		known: make(map[string]models.Device),
		scans: make(map[string]models.ScanResult),
	}
}

// Seed turns on history tracking and fills it with devices recorded
// earlier. Seeded devices are not published, but they are never reported
// as new again, even after missing a sweep.
func (s *State) Seed(devices []models.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		s.history = make(map[string]models.Device, len(devices))
	}
	for _, d := range devices {
		if d.HardwareID == "" {
			continue
		}
		s.history[d.HardwareID] = d
	}
}

// Diff splits discovered hosts into hosts never seen before and hosts to
// re-record: known hosts that answered from a different address, and
// remembered hosts that are back after missing a sweep.
func (s *State) Diff(hosts []models.Host) (added, moved []models.Host) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, h := range hosts {
		mac := h.MAC.String()
		if d, ok := s.known[mac]; ok {
			if d.Address != h.IP.String() {
				moved = append(moved, h)
			}
			continue
		}
		if _, ok := s.history[mac]; ok {
			moved = append(moved, h)
			continue
		}
		added = append(added, h)
	}
	return added, moved
}

// Replace makes hosts the published set and returns it ordered by address.
// FirstSeen and display names survive for known and remembered devices.
func (s *State) Replace(hosts []models.Host, now time.Time) []models.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]models.Device, len(hosts))
	for _, h := range hosts {
		mac := h.MAC.String()
		d, ok := s.known[mac]
		if !ok {
			d, ok = s.history[mac]
		}
		if !ok {
			d = models.Device{HardwareID: mac, FirstSeen: now, DisplayName: models.DefaultDeviceName}
		}
		d.Address = h.IP.String()
		d.LastSeen = now
		if h.Name != "" {
			d.DisplayName = h.Name
		}
		if d.DisplayName == "" {
			d.DisplayName = models.DefaultDeviceName
		}
		next[mac] = d
		if s.history != nil {
			s.history[mac] = d
		}
	}
	s.known = next

	return s.devicesLocked()
}

// Devices returns the known devices ordered by address.
func (s *State) Devices() []models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devicesLocked()
}

func (s *State) devicesLocked() []models.Device {
	out := make([]models.Device, 0, len(s.known))
	for _, d := range s.known {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return compareAddr(out[i].Address, out[j].Address) < 0
	})
	return out
}

func compareAddr(a, b string) int {
	ia, ib := net.ParseIP(a).To4(), net.ParseIP(b).To4()
	if ia == nil || ib == nil {
		return bytes.Compare([]byte(a), []byte(b))
	}
	return bytes.Compare(ia, ib)
}

func (s *State) DeviceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.known)
}

// AddAlerts appends to the alert log.
func (s *State) AddAlerts(alerts ...models.Alert) {
	if len(alerts) == 0 {
		return
	}
	s.mu.Lock()
	s.alerts = append(s.alerts, alerts...)
	s.mu.Unlock()
}

// Alerts returns the alert log, oldest first.
func (s *State) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Alert(nil), s.alerts...)
}

func (s *State) AlertCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

func (s *State) SetScanResult(r models.ScanResult) {
	s.mu.Lock()
	s.scans[r.Address] = r
	s.mu.Unlock()
}

// ScanResults returns the latest result per address, ordered by address.
func (s *State) ScanResults() []models.ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ScanResult, 0, len(s.scans))
	for _, r := range s.scans {
		r.OpenPorts = append([]uint16(nil), r.OpenPorts...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return compareAddr(out[i].Address, out[j].Address) < 0
	})
	return out
}

func (s *State) SetStats(st models.Stats) {
	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()
}

// Stats returns the last published stats.
func (s *State) Stats() models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Session gathers what the session report covers.
func (s *State) Session() reporting.Session {
	return reporting.Session{
		Generated: time.Now(),
		Devices:   s.Devices(),
		Alerts:    s.Alerts(),
		Scans:     s.ScanResults(),
	}
}
