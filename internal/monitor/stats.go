package monitor

import (
	"context"
	"time"

	"netmonitor/internal/events"
	"netmonitor/internal/logger"
	"netmonitor/internal/models"
)

// Sampler hands out traffic snapshots.
type Sampler interface {
	Snapshot() models.TrafficSnapshot
}

// StatsDriver is the fast tick: snapshot, evaluate, publish.
type StatsDriver struct {
	interval time.Duration
	sampler  Sampler
	detector AlertSource
	state    *State
	bus      Publisher
	log      logger.Logger
}

func NewStatsDriver(interval time.Duration, s Sampler, det AlertSource, state *State, bus Publisher, log logger.Logger) *StatsDriver {
	if interval <= 0 {
		interval = DefaultConfig().StatsInterval
	}
	return &StatsDriver{
		interval: interval,
		sampler:  s,
		detector: det,
		state:    state,
		bus:      bus,
		log:      log.WithComponent("stats"),
	}
}

// Tick evaluates one snapshot and returns the published stats.
func (d *StatsDriver) Tick(ctx context.Context) models.Stats {
	snap := d.sampler.Snapshot()

	alerts := d.detector.EvaluateTraffic(ctx, snap)
	d.state.AddAlerts(alerts...)
	for _, a := range alerts {
		d.bus.Publish(events.NewAlertRaised(a))
	}

	stats := models.Stats{
		DeviceCount:      d.state.DeviceCount(),
		PacketsPerSecond: snap.PacketsPerSecond,
		UploadBps:        snap.UploadBytesPerSec,
		DownloadBps:      snap.DownloadBytesPerSec,
		AlertCount:       d.state.AlertCount(),
	}
	d.state.SetStats(stats)
	d.bus.Publish(events.NewStatsUpdated(stats))

	return stats
}

func (d *StatsDriver) Serve(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

func (d *StatsDriver) String() string { return "stats driver" }
