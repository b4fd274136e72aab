package models

import (
	"net/netip"
	"time"
)

// PacketRecord is one validated frame emitted by the stream framer.
// Records are never mutated after emission.
type PacketRecord struct {
	Number    uint64     `json:"number"`
	Timestamp time.Time  `json:"timestamp"`
	SrcAddr   netip.Addr `json:"srcAddr"`
	DstAddr   netip.Addr `json:"dstAddr"`
	SrcPort   uint16     `json:"srcPort,omitempty"`
	DstPort   uint16     `json:"dstPort,omitempty"`
	Transport string     `json:"transport"`
	Protocol  string     `json:"protocol,omitempty"`
	Summary   string     `json:"summary"`
	Length    int        `json:"length"`
	Raw       []byte     `json:"-"`
}

// HasProtocol reports whether the record carries a protocol tag.
func (r PacketRecord) HasProtocol() bool {
	return r.Protocol != ""
}
