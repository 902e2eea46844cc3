package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"netmonitor/internal/logger"
	"netmonitor/internal/metrics"
	"netmonitor/internal/models"
	"netmonitor/internal/validate"
)

// Recorder is the write path the monitor uses. It validates input, bounds
// every write with a timeout and stops calling a failing store until the
// breaker half-opens. It never returns write errors.
type Recorder struct {
	store   Store
	log     logger.Logger
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewRecorder wraps store. Zero config fields take their defaults.
func NewRecorder(store Store, cfg Config, log logger.Logger) *Recorder {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	log = log.WithComponent("storage")

	return &Recorder{
		store:   store,
		log:     log,
		timeout: cfg.WriteTimeout,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:    "storage",
			Timeout: cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			OnStateChange: func(_ string, from, to gobreaker.State) {
				log.Warn().Stringer("from", from).Stringer("to", to).Msg("storage breaker state changed")
			},
		}),
	}
}

// RecordDevice upserts a device. Names are sanitized and default to "Unknown".
func (r *Recorder) RecordDevice(ctx context.Context, ip, mac, name string) {
	if !validate.IPv4(ip) {
		r.fail("upsert_device", ErrInvalidAddress, ip)
		return
	}
	name = validate.Sanitize(name)
	if name == "" {
		name = models.DefaultDeviceName
	}

	r.write(ctx, "upsert_device", ip, func(ctx context.Context) error {
		return r.store.UpsertDevice(ctx, ip, mac, name)
	})
}

// RecordAlert appends an alert.
func (r *Recorder) RecordAlert(ctx context.Context, alert models.Alert) {
	r.write(ctx, "append_alert", alert.Source, func(ctx context.Context) error {
		return r.store.AppendAlert(ctx, alert)
	})
}

// RecordScan appends a scan result.
func (r *Recorder) RecordScan(ctx context.Context, ip string, ports []uint16) {
	if !validate.IPv4(ip) {
		r.fail("append_scan_result", ErrInvalidAddress, ip)
		return
	}

	r.write(ctx, "append_scan_result", ip, func(ctx context.Context) error {
		return r.store.AppendScanResult(ctx, ip, ports)
	})
}

// Devices lists stored devices, bounded by the write timeout.
func (r *Recorder) Devices(ctx context.Context) ([]models.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.ListDevices(ctx)
}

func (r *Recorder) write(ctx context.Context, op, addr string, fn func(context.Context) error) {
	_, err := r.breaker.Execute(func() (struct{}, error) {
		wctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return struct{}{}, fn(wctx)
	})
	if err != nil {
		r.fail(op, err, addr)
	}
}

func (r *Recorder) fail(op string, err error, addr string) {
	metrics.StorageFailures.WithLabelValues(op).Inc()

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		r.log.Debug().Str("op", op).Msg("storage unavailable, write skipped")
		return
	}
	r.log.Error().Err(err).Str("op", op).Str("address", addr).Msg("storage write failed")
}
