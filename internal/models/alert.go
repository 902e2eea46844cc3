package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the ordinal triage priority of an alert.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name, case-insensitively.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity maps "Low", "Medium" or "High" to a Severity.
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	}
	return 0, fmt.Errorf("unknown severity %q", v)
}

// Alert types raised by the detection engine.
const (
	AlertHighTraffic   = "High Traffic Volume"
	AlertSYNFlood      = "Potential SYN Flood"
	AlertPortScan      = "Port Scanning Activity"
	AlertVulnerability = "Vulnerability Detected"
	AlertNewDevice     = "New Device Detected"
)

// Alert is an immutable detection record.
type Alert struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Source      string    `json:"source,omitempty"` // offending or affected address
	Port        uint16    `json:"port,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// VulnerabilityRule flags a listening port as a known exposure.
type VulnerabilityRule struct {
	Port        uint16
	Service     string
	Description string
	Severity    Severity
}
