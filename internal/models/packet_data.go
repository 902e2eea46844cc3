package models

import "time"

// PacketData holds the header fields the sampler needs from one captured frame.
type PacketData struct {
	Timestamp time.Time
	SrcIP     string
	DstIP     string
	SrcPort   int
	DstPort   int
	Protocol  string
	Length    int

	// SYNOnly is set for TCP segments carrying SYN and no other flag.
	SYNOnly bool
}
