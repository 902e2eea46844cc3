package metrics

import (
	"context"

	"netmonitor/internal/events"
)

// Sink updates the instruments from the event stream.
type Sink struct{}

func (Sink) Name() string { return "metrics" }

func (Sink) Send(_ context.Context, e events.Event) error {
	switch p := e.Payload.(type) {
	case events.StatsUpdated:
		PacketsPerSecond.Set(p.Stats.PacketsPerSecond)
		BandwidthBytesPerSecond.WithLabelValues("upload").Set(p.Stats.UploadBps)
		BandwidthBytesPerSecond.WithLabelValues("download").Set(p.Stats.DownloadBps)
	case events.DeviceListUpdated:
		KnownDevices.Set(float64(len(p.Devices)))
	case events.AlertRaised:
		AlertsTotal.WithLabelValues(p.Alert.Type, p.Alert.Severity.String()).Inc()
	}
	return nil
}

// CountDrop is the bus drop hook.
func CountDrop(kind events.Kind) {
	EventsDropped.WithLabelValues(string(kind)).Inc()
}
