package capture

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netmonitor/internal/models"
)

// Decode extracts addresses, ports and the SYN-only marker from a packet.
// Frames without a network layer still yield a record so they are counted.
func Decode(pkt gopacket.Packet) models.PacketData {
	var d models.PacketData

	if md := pkt.Metadata(); md != nil {
		d.Timestamp = md.Timestamp
		d.Length = md.Length
	}
	if d.Length == 0 {
		d.Length = len(pkt.Data())
	}

	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		d.SrcIP = ip.SrcIP.String()
		d.DstIP = ip.DstIP.String()
		d.Protocol = "IPv4"
	case *layers.IPv6:
		d.SrcIP = ip.SrcIP.String()
		d.DstIP = ip.DstIP.String()
		d.Protocol = "IPv6"
	}

	if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		d.Protocol = "TCP"
		d.SrcPort = int(tcp.SrcPort)
		d.DstPort = int(tcp.DstPort)
		d.SYNOnly = d.SrcIP != "" && synOnly(tcp)
	} else if udpLayer := pkt.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		d.Protocol = "UDP"
		d.SrcPort = int(udp.SrcPort)
		d.DstPort = int(udp.DstPort)
	}

	return d
}

func synOnly(tcp *layers.TCP) bool {
	return tcp.SYN && !tcp.ACK && !tcp.FIN && !tcp.RST && !tcp.PSH &&
		!tcp.URG && !tcp.ECE && !tcp.CWR && !tcp.NS
}

// synOnlyFlags is the raw TCP flag word of a bare SYN.
const synOnlyFlags = 0x002

// flagsSYNOnly applies the same rule to a raw 9-bit flag word.
func flagsSYNOnly(flags uint64) bool {
	return flags&0x1ff == synOnlyFlags
}
