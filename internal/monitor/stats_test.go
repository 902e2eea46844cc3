package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmonitor/internal/analysis"
	"netmonitor/internal/events"
	"netmonitor/internal/logger"
	"netmonitor/internal/models"
)

type fixedSampler struct{ snap models.TrafficSnapshot }

func (f fixedSampler) Snapshot() models.TrafficSnapshot { return f.snap }

func TestStatsTick(t *testing.T) {
	state := NewState()
	state.Replace([]models.Host{host(t, "192.168.1.2", "aa:aa:aa:aa:aa:aa")}, time.Now())

	bus := events.NewBus(nil)
	feed, unsub := bus.Subscribe(16)
	defer unsub()

	det := analysis.NewDetector(analysis.DefaultDetectorConfig(), nil, nil, logger.NewTestLogger())
	sampler := fixedSampler{snap: models.TrafficSnapshot{
		PacketsPerSecond:    1500,
		SYNCounts:           map[string]uint64{"10.0.0.5": 150},
		UniquePortsTargeted: map[string]uint64{"10.0.0.5": 25},
		UploadBytesPerSec:   10,
		DownloadBytesPerSec: 20,
		Timestamp:           time.Now(),
	}}

	d := NewStatsDriver(time.Second, sampler, det, state, bus, logger.NewTestLogger())
	stats := d.Tick(context.Background())

	assert.Equal(t, models.Stats{
		DeviceCount:      1,
		PacketsPerSecond: 1500,
		UploadBps:        10,
		DownloadBps:      20,
		AlertCount:       3,
	}, stats)
	assert.Equal(t, stats, state.Stats())

	evs := drain(feed)
	require.Len(t, evs, 4)
	alerts := alertsOf(evs)
	require.Len(t, alerts, 3)
	assert.Equal(t, models.AlertHighTraffic, alerts[0].Type)
	assert.Equal(t, models.AlertSYNFlood, alerts[1].Type)
	assert.Equal(t, models.AlertPortScan, alerts[2].Type)
	assert.Equal(t, events.KindStatsUpdated, evs[3].Kind)
}

func TestStatsServe(t *testing.T) {
	state := NewState()
	bus := events.NewBus(nil)
	feed, unsub := bus.Subscribe(64)
	defer unsub()

	det := analysis.NewDetector(analysis.DefaultDetectorConfig(), nil, nil, logger.NewTestLogger())
	d := NewStatsDriver(5*time.Millisecond, fixedSampler{}, det, state, bus, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	select {
	case e := <-feed:
		assert.Equal(t, events.KindStatsUpdated, e.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no stats published")
	}
	cancel()
	assert.NoError(t, <-done)
}
