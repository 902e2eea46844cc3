package models

import "time"

// TrafficSnapshot is a point-in-time view of the sampler counters.
// Maps are copies owned by the snapshot.
type TrafficSnapshot struct {
	PacketsCaptured     uint64            `json:"packets_captured"`
	PacketsPerSecond    float64           `json:"packets_per_second"`
	SYNCounts           map[string]uint64 `json:"syn_counts"`
	UniquePortsTargeted map[string]uint64 `json:"unique_ports_targeted"`
	UploadBytesPerSec   float64           `json:"upload_bytes_per_sec"`
	DownloadBytesPerSec float64           `json:"download_bytes_per_sec"`
	Timestamp           time.Time         `json:"timestamp"`
}

// Stats is the aggregate pushed to presentation on every fast tick.
type Stats struct {
	DeviceCount      int     `json:"device_count"`
	PacketsPerSecond float64 `json:"packets_per_second"`
	UploadBps        float64 `json:"upload_bps"`
	DownloadBps      float64 `json:"download_bps"`
	AlertCount       int     `json:"alert_count"`
}
