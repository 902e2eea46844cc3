// Package discovery finds live hosts on the local segment with an ARP sweep.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"netmonitor/internal/capture"
	"netmonitor/internal/logger"
	"netmonitor/internal/models"
	"netmonitor/internal/validate"
)

var (
	// ErrPermission is returned when the sweep cannot open a raw handle.
	ErrPermission = errors.New("discovery: permission denied")
	// ErrNoInterface is returned when no interface owns an address in the subnet.
	ErrNoInterface = errors.New("discovery: no interface on subnet")
)

// Config controls subnet detection and the sweep.
type Config struct {
	// ProbeAddress is "connected" over UDP to learn the outbound address.
	// No packet is sent.
	ProbeAddress string `koanf:"probe_address" validate:"required,hostname_port"`
	// Interface overrides the interface owning the local address.
	Interface string `koanf:"interface"`
	// Timeout is how long replies are collected after the last request.
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`
	// RateLimit is the number of ARP requests sent per second.
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
	// ResolveNames fills Host.Name with a reverse DNS lookup.
	ResolveNames   bool          `koanf:"resolve_names"`
	ResolveTimeout time.Duration `koanf:"resolve_timeout" validate:"gte=0"`
}

// DefaultConfig returns the discovery defaults.
func DefaultConfig() Config {
	return Config{
		ProbeAddress:   "8.8.8.8:80",
		Timeout:        2 * time.Second,
		RateLimit:      1000,
		ResolveTimeout: 500 * time.Millisecond,
	}
}

type sweepFunc func(ctx context.Context, subnet *net.IPNet) ([]models.Host, error)

// Discoverer computes the local subnet and sweeps it.
type Discoverer struct {
	cfg Config
	log logger.Logger

	dial       func(network, address string) (net.Conn, error)
	lookupAddr func(ctx context.Context, addr string) ([]string, error)
	sweep      sweepFunc
}

// New returns a Discoverer sweeping with ARP over libpcap.
func New(cfg Config, log logger.Logger) *Discoverer {
	def := DefaultConfig()
	if cfg.ProbeAddress == "" {
		cfg.ProbeAddress = def.ProbeAddress
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = def.ResolveTimeout
	}

	d := &Discoverer{
		cfg:        cfg,
		log:        log,
		dial:       net.Dial,
		lookupAddr: net.DefaultResolver.LookupAddr,
	}
	d.sweep = d.arpSweep
	return d
}

func fallbackSubnet() *net.IPNet {
	_, n, _ := net.ParseCIDR("127.0.0.1/24")
	return n
}

// LocalSubnet returns the /24 around the outbound-facing IPv4 address,
// or 127.0.0.0/24 when that address cannot be determined.
func (d *Discoverer) LocalSubnet() *net.IPNet {
	ip, err := d.outboundIP()
	if err != nil {
		d.log.Warn().Err(err).Msg("could not determine local address, falling back to loopback")
		return fallbackSubnet()
	}

	mask := net.CIDRMask(24, 32)
	return &net.IPNet{IP: ip.Mask(mask), Mask: mask}
}

func (d *Discoverer) outboundIP() (net.IP, error) {
	conn, err := d.dial("udp", d.cfg.ProbeAddress)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.cfg.ProbeAddress, err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || !validate.IPv4(addr.IP.String()) {
		return nil, fmt.Errorf("local address %v is not IPv4", conn.LocalAddr())
	}
	return addr.IP.To4(), nil
}

// Discover sweeps subnet and returns the responders sorted by address.
// Failures are logged and yield an empty result.
func (d *Discoverer) Discover(ctx context.Context, subnet *net.IPNet) []models.Host {
	if subnet == nil || subnet.IP.To4() == nil {
		d.log.Warn().Msg("discovery skipped: subnet is not IPv4")
		return nil
	}

	start := time.Now()
	hosts, err := d.sweep(ctx, subnet)
	if err != nil {
		ev := d.log.Error().Err(err).Str("subnet", subnet.String())
		if errors.Is(err, ErrPermission) {
			ev = ev.Str("hint", "run with elevated privileges")
		}
		ev.Msg("host discovery failed")
		return nil
	}

	if d.cfg.ResolveNames {
		d.resolveNames(ctx, hosts)
	}

	sort.Slice(hosts, func(i, j int) bool {
		return bytes.Compare(hosts[i].IP.To4(), hosts[j].IP.To4()) < 0
	})

	d.log.Debug().
		Str("subnet", subnet.String()).
		Int("hosts", len(hosts)).
		Dur("took", time.Since(start)).
		Msg("discovery sweep finished")

	return hosts
}

func (d *Discoverer) resolveNames(ctx context.Context, hosts []models.Host) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)

	for i := range hosts {
		i := i
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, d.cfg.ResolveTimeout)
			defer cancel()

			names, err := d.lookupAddr(lctx, hosts[i].IP.String())
			if err != nil || len(names) == 0 {
				return nil
			}
			hosts[i].Name = strings.TrimSuffix(names[0], ".")
			return nil
		})
	}
	_ = g.Wait()
}

func classifyOpenError(err error) error {
	if capture.IsPermissionError(err) {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return err
}
