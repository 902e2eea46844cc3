package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"netmonitor/internal/models"
)

// TsharkSource runs tshark and streams its EK output.
type TsharkSource struct {
	Interface string
	Filter    string
	// Binary defaults to "tshark" on PATH.
	Binary string
}

var _ Source = (*TsharkSource)(nil)

func (s *TsharkSource) args() []string {
	// -l: flush stdout after each packet
	// -n: disable name resolution
	// -T ek: output in Elasticsearch JSON format
	args := []string{
		"-l", "-n", "-T", "ek",
		"-e", "frame.len",
		"-e", "ip.src", "-e", "ip.dst",
		"-e", "ipv6.src", "-e", "ipv6.dst",
		"-e", "tcp.srcport", "-e", "tcp.dstport", "-e", "tcp.flags",
		"-e", "udp.srcport", "-e", "udp.dstport",
	}

	if s.Interface != "" {
		args = append([]string{"-i", s.Interface}, args...)
	}

	if s.Filter != "" {
		args = append(args, "-f", s.Filter)
	}
	return args
}

// Run starts tshark and blocks until it exits or ctx is cancelled.
func (s *TsharkSource) Run(ctx context.Context, emit func(models.PacketData)) error {
	bin := s.Binary
	if bin == "" {
		bin = "tshark"
	}

	cmd := exec.CommandContext(ctx, bin, s.args()...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start tshark: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if pkt, ok := parseEkLine(scanner.Bytes()); ok {
			emit(pkt)
		}
	}

	err = cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}

	msg := strings.TrimSpace(stderr.String())
	if IsPermissionError(fmt.Errorf("%s", msg)) {
		return fmt.Errorf("%w: %s", ErrPermission, msg)
	}
	if err != nil {
		return fmt.Errorf("tshark exited: %w (%s)", err, msg)
	}
	return ErrClosed
}

// parseEkLine decodes one packet line. Index lines and malformed lines are
// skipped.
func parseEkLine(line []byte) (models.PacketData, bool) {
	// tshark -T ek interleaves index lines; packets carry "layers".
	if !bytes.Contains(line, []byte(`"layers"`)) {
		return models.PacketData{}, false
	}

	var ek EkPacket
	if err := json.Unmarshal(line, &ek); err != nil {
		return models.PacketData{}, false
	}
	return convertToModel(ek), true
}

func convertToModel(ek EkPacket) models.PacketData {
	p := models.PacketData{
		Timestamp: time.Now(),
	}

	if v := first(ek.Layers.FrameLen); v != "" {
		p.Length, _ = strconv.Atoi(v)
	}

	p.SrcIP = first(ek.Layers.IPSrc)
	p.DstIP = first(ek.Layers.IPDst)
	p.Protocol = "IPv4"
	if p.SrcIP == "" {
		p.SrcIP = first(ek.Layers.IPv6Src)
		p.DstIP = first(ek.Layers.IPv6Dst)
		p.Protocol = "IPv6"
	}
	if p.SrcIP == "" {
		p.Protocol = ""
	}

	switch {
	case len(ek.Layers.TCPSrcPort) > 0 || len(ek.Layers.TCPDstPort) > 0:
		p.Protocol = "TCP"
		p.SrcPort, _ = strconv.Atoi(first(ek.Layers.TCPSrcPort))
		p.DstPort, _ = strconv.Atoi(first(ek.Layers.TCPDstPort))
		if flags, err := strconv.ParseUint(first(ek.Layers.TCPFlags), 0, 16); err == nil {
			p.SYNOnly = p.SrcIP != "" && flagsSYNOnly(flags)
		}
	case len(ek.Layers.UDPSrcPort) > 0 || len(ek.Layers.UDPDstPort) > 0:
		p.Protocol = "UDP"
		p.SrcPort, _ = strconv.Atoi(first(ek.Layers.UDPSrcPort))
		p.DstPort, _ = strconv.Atoi(first(ek.Layers.UDPDstPort))
	}

	return p
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
