package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"netmonitor/internal/capture"
	"netmonitor/internal/logger"
	"netmonitor/internal/models"
)

// ErrSamplerRunning is returned by Start on a sampler that is already capturing.
var ErrSamplerRunning = errors.New("sampler already running")

// MaxPortSetLimit bounds the distinct ports remembered per source.
const MaxPortSetLimit = 1024

// SamplerConfig tunes the capture loop.
type SamplerConfig struct {
	// RetryBackoff is the pause after a capture failure. Defaults to 1s.
	RetryBackoff time.Duration
	// Window clears the per-source maps once elapsed. Zero keeps them for
	// the whole session.
	Window time.Duration
	// PortSetLimit caps the distinct ports remembered per source. Values
	// outside 1..MaxPortSetLimit become MaxPortSetLimit.
	PortSetLimit int
}

// TrafficSampler counts captured frames in the background and hands out
// consistent snapshots.
type TrafficSampler struct {
	mu sync.Mutex

	cfg      SamplerConfig
	source   capture.Source
	counters CounterReader
	log      logger.Logger
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}

	packetCount uint64
	startTime   time.Time
	windowStart time.Time
	synCounts   map[string]uint64
	synPorts    map[string]map[uint16]struct{}

	haveBaseline bool
	lastSent     uint64
	lastRecv     uint64
	lastStats    time.Time
}

// NewTrafficSampler creates a sampler reading frames from source and byte
// counters from counters.
func NewTrafficSampler(source capture.Source, counters CounterReader, cfg SamplerConfig, log logger.Logger) *TrafficSampler {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.PortSetLimit <= 0 || cfg.PortSetLimit > MaxPortSetLimit {
		cfg.PortSetLimit = MaxPortSetLimit
	}

	return &TrafficSampler{
		cfg:       cfg,
		source:    source,
		counters:  counters,
		log:       log,
		now:       time.Now,
		synCounts: make(map[string]uint64),
		synPorts:  make(map[string]map[uint16]struct{}),
	}
}

// Start launches the capture loop and returns immediately.
func (s *TrafficSampler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrSamplerRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.startTime = s.now()
	s.windowStart = s.startTime

	go s.loop(loopCtx, s.done)

	s.log.Info().Msg("packet sampler started")
	return nil
}

// Stop halts capture and waits for the loop to exit.
func (s *TrafficSampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.log.Info().Msg("packet sampler stopped")
}

func (s *TrafficSampler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		err := s.source.Run(ctx, s.Observe)
		if ctx.Err() != nil {
			return
		}

		ev := s.log.Error().Err(err).Dur("backoff", s.cfg.RetryBackoff)
		if capture.IsPermissionError(err) {
			ev = ev.Str("hint", "run with elevated privileges")
		}
		ev.Msg("capture failed, retrying")

		t := time.NewTimer(s.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Observe counts one frame. It is the capture callback and is safe to call
// from any goroutine.
func (s *TrafficSampler) Observe(pkt models.PacketData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packetCount++

	if !pkt.SYNOnly || pkt.SrcIP == "" {
		return
	}

	s.synCounts[pkt.SrcIP]++

	ports, ok := s.synPorts[pkt.SrcIP]
	if !ok {
		ports = make(map[uint16]struct{})
		s.synPorts[pkt.SrcIP] = ports
	}
	if len(ports) < s.cfg.PortSetLimit && pkt.DstPort > 0 && pkt.DstPort <= 65535 {
		ports[uint16(pkt.DstPort)] = struct{}{}
	}
}

// Snapshot returns the counters as of now and advances the bandwidth baseline.
func (s *TrafficSampler) Snapshot() models.TrafficSnapshot {
	// OS counters are read outside the lock; capture must not stall on /proc.
	sent, recv, cerr := s.readCounters()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	snap := models.TrafficSnapshot{
		PacketsCaptured:     s.packetCount,
		SYNCounts:           make(map[string]uint64, len(s.synCounts)),
		UniquePortsTargeted: make(map[string]uint64, len(s.synPorts)),
		Timestamp:           now,
	}

	if !s.startTime.IsZero() {
		if elapsed := now.Sub(s.startTime).Seconds(); elapsed > 0 {
			snap.PacketsPerSecond = float64(s.packetCount) / elapsed
		}
	}

	for ip, n := range s.synCounts {
		snap.SYNCounts[ip] = n
	}
	for ip, ports := range s.synPorts {
		snap.UniquePortsTargeted[ip] = uint64(len(ports))
	}

	if cerr != nil {
		s.log.Debug().Err(cerr).Msg("bandwidth counters unavailable")
	} else {
		if s.haveBaseline {
			elapsed := now.Sub(s.lastStats).Seconds()
			snap.UploadBytesPerSec = rate(sent, s.lastSent, elapsed)
			snap.DownloadBytesPerSec = rate(recv, s.lastRecv, elapsed)
		}
		s.lastSent, s.lastRecv, s.lastStats = sent, recv, now
		s.haveBaseline = true
	}

	if s.cfg.Window > 0 && now.Sub(s.windowStart) >= s.cfg.Window {
		s.synCounts = make(map[string]uint64)
		s.synPorts = make(map[string]map[uint16]struct{})
		s.windowStart = now
	}

	return snap
}

func (s *TrafficSampler) readCounters() (uint64, uint64, error) {
	if s.counters == nil {
		return 0, 0, errNoCounters
	}
	return s.counters.Counters()
}
