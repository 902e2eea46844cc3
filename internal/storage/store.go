// Package storage persists devices, alerts and scan results.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"netmonitor/internal/logger"
	"netmonitor/internal/models"
)

var (
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("storage: unknown driver")
	// ErrInvalidAddress is returned for writes keyed by a non-IPv4 address.
	ErrInvalidAddress = errors.New("storage: invalid IPv4 address")
)

// Store is the persistence backend. Devices are keyed by hardware address.
type Store interface {
	UpsertDevice(ctx context.Context, ip, mac, name string) error
	AppendAlert(ctx context.Context, alert models.Alert) error
	AppendScanResult(ctx context.Context, ip string, ports []uint16) error
	ListDevices(ctx context.Context) ([]models.Device, error)
	Close() error
}

// Config selects and tunes the backend.
type Config struct {
	Driver   string         `koanf:"driver" validate:"oneof=memory sqlite postgres"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`

	// WriteTimeout bounds every recorder write.
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
	// FailureThreshold consecutive failures open the write breaker.
	FailureThreshold uint32 `koanf:"failure_threshold" validate:"min=1"`
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// DefaultConfig keeps everything in memory.
func DefaultConfig() Config {
	return Config{
		Driver:           "memory",
		SQLite:           SQLiteConfig{Path: "netmonitor.db"},
		Postgres:         DefaultPostgresConfig(),
		WriteTimeout:     2 * time.Second,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// Open builds the configured store and creates its schema.
func Open(ctx context.Context, cfg Config, log logger.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLite.Path)
	case "postgres":
		pool, err := NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		st, err := NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, cfg.Driver)
	}
}
