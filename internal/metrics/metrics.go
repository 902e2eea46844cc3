// Package metrics holds the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Traffic
	PacketsPerSecond = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netmonitor_packets_per_second",
			Help: "Average captured packets per second since capture started",
		},
	)

	BandwidthBytesPerSecond = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netmonitor_bandwidth_bytes_per_second",
			Help: "Interface throughput between the last two samples",
		},
		[]string{"direction"}, // "upload", "download"
	)

	// Detection
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmonitor_alerts_total",
			Help: "Alerts raised, by type and severity",
		},
		[]string{"type", "severity"},
	)

	// Discovery
	KnownDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netmonitor_known_devices",
			Help: "Devices present in the last discovery sweep",
		},
	)

	DiscoveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netmonitor_discovery_duration_seconds",
			Help:    "Duration of a discovery cycle",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30, 60},
		},
	)

	PortScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netmonitor_port_scan_duration_seconds",
			Help:    "Duration of a single-host port scan",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Plumbing
	StorageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmonitor_storage_failures_total",
			Help: "Failed or skipped storage writes",
		},
		[]string{"operation"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmonitor_events_dropped_total",
			Help: "Events not delivered to a slow subscriber",
		},
		[]string{"kind"},
	)
)
