// Package portscan probes a single host for listening TCP ports.
package portscan

import (
	"context"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"netmonitor/internal/logger"
	"netmonitor/internal/validate"
)

// Config bounds the probed range and the fan-out.
type Config struct {
	FirstPort   int           `koanf:"first_port" validate:"min=1,max=65535"`
	LastPort    int           `koanf:"last_port" validate:"min=1,max=65535,gtefield=FirstPort"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	Concurrency int           `koanf:"concurrency" validate:"min=1"`
}

// DefaultConfig probes the well-known range with 50 concurrent dials.
func DefaultConfig() Config {
	return Config{
		FirstPort:   1,
		LastPort:    1024,
		Timeout:     time.Second,
		Concurrency: 50,
	}
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober runs TCP connect probes.
type Prober struct {
	cfg    Config
	dialer Dialer
	log    logger.Logger
}

// NewProber returns a prober dialing through d, or a plain net.Dialer when
// d is nil. Zero config fields take their defaults.
func NewProber(cfg Config, d Dialer, log logger.Logger) *Prober {
	def := DefaultConfig()
	if cfg.FirstPort <= 0 {
		cfg.FirstPort = def.FirstPort
	}
	if cfg.LastPort <= 0 {
		cfg.LastPort = def.LastPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if d == nil {
		d = &net.Dialer{}
	}

	return &Prober{cfg: cfg, dialer: d, log: log}
}

// Scan returns the open ports of addr in ascending order. A port is open
// when the connect completes within the timeout. Invalid addresses yield
// nil without dialing.
func (p *Prober) Scan(ctx context.Context, addr string) []uint16 {
	if !validate.IPv4(addr) {
		p.log.Warn().Str("target", addr).Msg("port scan rejected: not an IPv4 address")
		return nil
	}

	first, last := p.cfg.FirstPort, p.cfg.LastPort
	if first > last || !validate.Port(first) || !validate.Port(last) {
		return nil
	}

	start := time.Now()
	open := make([]bool, last-first+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for port := first; port <= last; port++ {
		if gctx.Err() != nil {
			break
		}
		port := port
		g.Go(func() error {
			// each goroutine writes its own index
			open[port-first] = p.probe(gctx, addr, port)
			return nil
		})
	}
	_ = g.Wait()

	var ports []uint16
	for i, ok := range open {
		if ok {
			ports = append(ports, uint16(first+i))
		}
	}

	p.log.Debug().
		Str("target", addr).
		Int("open", len(ports)).
		Dur("took", time.Since(start)).
		Msg("port scan finished")

	return ports
}

func (p *Prober) probe(ctx context.Context, addr string, port int) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(probeCtx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
