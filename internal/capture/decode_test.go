package capture

import (
	"errors"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTCP(t *testing.T, tcp *layers.TCP) gopacket.Packet {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 5),
		DstIP:    net.IPv4(10, 0, 0, 1),
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp))

	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func TestDecodeSYNOnly(t *testing.T) {
	tests := []struct {
		name string
		tcp  *layers.TCP
		want bool
	}{
		{"bare syn", &layers.TCP{SrcPort: 40000, DstPort: 22, SYN: true}, true},
		{"syn ack", &layers.TCP{SrcPort: 22, DstPort: 40000, SYN: true, ACK: true}, false},
		{"syn ece cwr", &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, ECE: true, CWR: true}, false},
		{"ack", &layers.TCP{SrcPort: 40000, DstPort: 443, ACK: true}, false},
		{"rst", &layers.TCP{SrcPort: 40000, DstPort: 443, RST: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decode(buildTCP(t, tt.tcp))
			assert.Equal(t, tt.want, d.SYNOnly)
			assert.Equal(t, "TCP", d.Protocol)
			assert.Equal(t, "10.0.0.5", d.SrcIP)
			assert.Equal(t, int(tt.tcp.DstPort), d.DstPort)
		})
	}
}

func TestDecodeNonIPFrame(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01},
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01},
		SourceProtAddress: []byte{10, 0, 0, 5},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 1},
	}

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp))

	d := Decode(gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default))
	assert.False(t, d.SYNOnly)
	assert.Empty(t, d.SrcIP)
	assert.Positive(t, d.Length)
}

func TestFlagsSYNOnly(t *testing.T) {
	assert.True(t, flagsSYNOnly(0x002))
	assert.False(t, flagsSYNOnly(0x012))
	assert.False(t, flagsSYNOnly(0x010))
	assert.False(t, flagsSYNOnly(0x0c2))
}

func TestIsPermissionError(t *testing.T) {
	assert.True(t, IsPermissionError(ErrPermission))
	assert.False(t, IsPermissionError(assert.AnError))
	assert.True(t, IsPermissionError(errors.New("eth0: You don't have permission to capture on that device")))
	assert.False(t, IsPermissionError(nil))
}
