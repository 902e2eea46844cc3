package models

import (
	"net"
	"time"
)

// DefaultDeviceName is used when a device has no resolvable name.
const DefaultDeviceName = "Unknown"

// Host is a responder found by an ARP sweep.
type Host struct {
	IP   net.IP
	MAC  net.HardwareAddr
	Name string // Optional: Hostname if resolvable
}

// Device is a known host on the segment. HardwareID is the identity key;
// Address may change between cycles.
type Device struct {
	Address     string    `json:"address"`
	HardwareID  string    `json:"hardware_id"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	DisplayName string    `json:"display_name"`
}

// ScanResult is the open-port set of one probed host.
type ScanResult struct {
	Address   string    `json:"address"`
	OpenPorts []uint16  `json:"open_ports"`
	ScanTime  time.Time `json:"scan_time"`
}
