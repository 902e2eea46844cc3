package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/time/rate"

	"netmonitor/internal/models"
)

// arpSweep broadcasts one ARP request per host address of subnet and
// collects replies until Timeout has passed since the last request.
func (d *Discoverer) arpSweep(ctx context.Context, subnet *net.IPNet) ([]models.Host, error) {
	iface, localIP, err := d.pickInterface(subnet)
	if err != nil {
		return nil, err
	}

	handle, err := pcap.OpenLive(iface.Name, 65536, true, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", iface.Name, classifyOpenError(err))
	}
	defer handle.Close()

	if err := handle.SetBPFFilter("arp"); err != nil {
		return nil, fmt.Errorf("set BPF filter: %w", err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]models.Host)
		wg   sync.WaitGroup
	)

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	wg.Add(1)
	go func() {
		defer wg.Done()
		src := gopacket.NewPacketSource(handle, layers.LayerTypeEthernet)
		for readCtx.Err() == nil {
			pkt, err := src.NextPacket()
			if err != nil {
				if errors.Is(err, pcap.NextErrorTimeoutExpired) {
					continue
				}
				if !errors.Is(err, io.EOF) {
					d.log.Debug().Err(err).Msg("arp read failed")
				}
				return
			}

			host, ok := parseReply(pkt, subnet, localIP)
			if !ok {
				continue
			}
			mu.Lock()
			if _, dup := seen[host.IP.String()]; !dup {
				seen[host.IP.String()] = host
			}
			mu.Unlock()
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(d.cfg.RateLimit), 16)
	sent := 0
	for _, target := range hostAddrs(subnet) {
		if target.Equal(localIP) {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if err := sendARPRequest(handle, iface, localIP, target); err != nil {
			d.log.Debug().Err(err).Str("target", target.String()).Msg("arp request failed")
			continue
		}
		sent++
	}

	wait := time.NewTimer(d.cfg.Timeout)
	select {
	case <-ctx.Done():
	case <-wait.C:
	}
	wait.Stop()

	stopReading()
	wg.Wait()

	d.log.Debug().Str("interface", iface.Name).Int("requests", sent).Int("replies", len(seen)).Msg("arp sweep")

	hosts := make([]models.Host, 0, len(seen))
	for _, h := range seen {
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// pickInterface returns the interface owning an IPv4 address inside subnet,
// or the configured one, along with that address.
func (d *Discoverer) pickInterface(subnet *net.IPNet) (*net.Interface, net.IP, error) {
	var candidates []net.Interface
	if d.cfg.Interface != "" {
		iface, err := net.InterfaceByName(d.cfg.Interface)
		if err != nil {
			return nil, nil, fmt.Errorf("interface %q: %w", d.cfg.Interface, err)
		}
		candidates = []net.Interface{*iface}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return nil, nil, fmt.Errorf("list interfaces: %w", err)
		}
		candidates = all
	}

	for i := range candidates {
		iface := &candidates[i]
		if iface.Flags&net.FlagUp == 0 || len(iface.HardwareAddr) != 6 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := addrInSubnet(addrs, subnet); ip != nil {
			return iface, ip, nil
		}
	}
	return nil, nil, fmt.Errorf("%w %s", ErrNoInterface, subnet)
}

func addrInSubnet(addrs []net.Addr, subnet *net.IPNet) net.IP {
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil && subnet.Contains(ip4) {
			return ip4
		}
	}
	return nil
}

// hostAddrs lists every address of subnet except the network and
// broadcast addresses.
func hostAddrs(subnet *net.IPNet) []net.IP {
	base := subnet.IP.To4()
	if base == nil {
		return nil
	}
	ones, bits := subnet.Mask.Size()
	if bits != 32 || ones > 30 {
		return nil
	}

	count := 1<<(32-ones) - 2
	out := make([]net.IP, 0, count)

	current := make(net.IP, 4)
	copy(current, base.Mask(subnet.Mask))
	for i := 0; i < count; i++ {
		inc(current)
		ip := make(net.IP, 4)
		copy(ip, current)
		out = append(out, ip)
	}
	return out
}

func inc(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

// parseReply extracts the responder of an ARP reply from inside subnet.
func parseReply(pkt gopacket.Packet, subnet *net.IPNet, localIP net.IP) (models.Host, bool) {
	arpLayer := pkt.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return models.Host{}, false
	}
	arp := arpLayer.(*layers.ARP)

	if arp.Operation != layers.ARPReply {
		return models.Host{}, false
	}

	ip := net.IP(append([]byte(nil), arp.SourceProtAddress...))
	if !subnet.Contains(ip) || ip.Equal(localIP) {
		return models.Host{}, false
	}

	return models.Host{
		IP:  ip,
		MAC: net.HardwareAddr(append([]byte(nil), arp.SourceHwAddress...)),
	}, true
}

func buildARPRequest(srcMAC net.HardwareAddr, srcIP, dstIP net.IP) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(srcIP.To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dstIP.To4()),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sendARPRequest(handle *pcap.Handle, iface *net.Interface, srcIP, dstIP net.IP) error {
	frame, err := buildARPRequest(iface.HardwareAddr, srcIP, dstIP)
	if err != nil {
		return err
	}
	return handle.WritePacketData(frame)
}
