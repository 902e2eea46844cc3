package capture

// EkPacket is one line of `tshark -T ek` output.
type EkPacket struct {
	Timestamp string   `json:"timestamp"`
	Layers    EkLayers `json:"layers"`
}

// EkLayers holds the fields selected with -e. tshark flattens them and
// writes dots as underscores, and every value arrives as a string array.
type EkLayers struct {
	FrameLen   []string `json:"frame_len,omitempty"`
	IPSrc      []string `json:"ip_src,omitempty"`
	IPDst      []string `json:"ip_dst,omitempty"`
	IPv6Src    []string `json:"ipv6_src,omitempty"`
	IPv6Dst    []string `json:"ipv6_dst,omitempty"`
	TCPSrcPort []string `json:"tcp_srcport,omitempty"`
	TCPDstPort []string `json:"tcp_dstport,omitempty"`
	TCPFlags   []string `json:"tcp_flags,omitempty"`
	UDPSrcPort []string `json:"udp_srcport,omitempty"`
	UDPDstPort []string `json:"udp_dstport,omitempty"`
}
