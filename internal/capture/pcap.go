package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"netmonitor/internal/models"
)

// PcapConfig controls the live libpcap handle.
type PcapConfig struct {
	Interface string
	SnapLen   int32
	Promisc   bool
	Filter    string
	// PollInterval bounds how long a read blocks, and therefore how long
	// Run takes to notice cancellation. Defaults to 1s.
	PollInterval time.Duration
}

// PcapSource captures from a live interface through libpcap.
type PcapSource struct {
	cfg PcapConfig
}

var _ Source = (*PcapSource)(nil)

// NewPcapSource applies defaults and returns a source; the handle is opened
// on every Run so a failed interface can recover between retries.
func NewPcapSource(cfg PcapConfig) *PcapSource {
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = 128 // headers only
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &PcapSource{cfg: cfg}
}

func (s *PcapSource) Run(ctx context.Context, emit func(models.PacketData)) error {
	device := s.cfg.Interface
	if device == "" {
		var err error
		if device, err = defaultDevice(); err != nil {
			return err
		}
	}

	handle, err := pcap.OpenLive(device, s.cfg.SnapLen, s.cfg.Promisc, s.cfg.PollInterval)
	if err != nil {
		if IsPermissionError(err) {
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return fmt.Errorf("open %s: %w", device, err)
	}
	defer handle.Close()

	if s.cfg.Filter != "" {
		if err := handle.SetBPFFilter(s.cfg.Filter); err != nil {
			return fmt.Errorf("set BPF filter: %w", err)
		}
	}

	src := gopacket.NewPacketSource(handle, handle.LinkType())
	src.NoCopy = true

	for {
		if ctx.Err() != nil {
			return nil
		}

		pkt, err := src.NextPacket()
		switch {
		case err == nil:
			emit(Decode(pkt))
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			// poll tick, re-check ctx
		case errors.Is(err, io.EOF):
			return ErrClosed
		default:
			return fmt.Errorf("read packet: %w", err)
		}
	}
}

// defaultDevice picks the first up, non-loopback device with an address.
func defaultDevice() (string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		if IsPermissionError(err) {
			return "", fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return "", fmt.Errorf("list devices: %w", err)
	}

	for _, d := range devs {
		for _, addr := range d.Addresses {
			if addr.IP.To4() != nil && !addr.IP.IsLoopback() {
				return d.Name, nil
			}
		}
	}
	return "", ErrNoDevice
}
