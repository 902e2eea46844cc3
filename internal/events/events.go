// Package events carries device, alert and stats updates from the monitor
// to the presentation layer and external sinks.
package events

import (
	"time"

	"github.com/goccy/go-json"

	"netmonitor/internal/models"
)

// Kind names an event on the wire.
type Kind string

const (
	KindDeviceListUpdated Kind = "device_list_updated"
	KindAlertRaised       Kind = "alert_raised"
	KindStatsUpdated      Kind = "stats_updated"
)

// Event is one update. Payload is one of DeviceListUpdated, AlertRaised
// or StatsUpdated.
type Event struct {
	Kind    Kind
	Time    time.Time
	Payload any
}

// DeviceListUpdated carries the full set of devices seen by the last sweep.
type DeviceListUpdated struct {
	Devices []models.Device `json:"devices"`
}

// AlertRaised carries one new alert.
type AlertRaised struct {
	Alert models.Alert `json:"alert"`
}

// StatsUpdated carries the periodic headline numbers.
type StatsUpdated struct {
	Stats models.Stats `json:"stats"`
}

func NewDeviceListUpdated(devices []models.Device) Event {
	return Event{Kind: KindDeviceListUpdated, Time: time.Now(), Payload: DeviceListUpdated{Devices: devices}}
}

func NewAlertRaised(alert models.Alert) Event {
	return Event{Kind: KindAlertRaised, Time: time.Now(), Payload: AlertRaised{Alert: alert}}
}

func NewStatsUpdated(stats models.Stats) Event {
	return Event{Kind: KindStatsUpdated, Time: time.Now(), Payload: StatsUpdated{Stats: stats}}
}

type envelope struct {
	Type    Kind   `json:"type"`
	Time    string `json:"time"`
	Payload any    `json:"payload"`
}

// Marshal encodes e as {"type", "time", "payload"}.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(envelope{
		Type:    e.Kind,
		Time:    e.Time.UTC().Format(time.RFC3339),
		Payload: e.Payload,
	})
}
