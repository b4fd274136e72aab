package parser

import (
	"bytes"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"vshark/internal/models"
)

// wellKnownPorts maps a transport port to the tag shown in the feed.
var wellKnownPorts = map[uint16]string{
	443: "HTTPS",
	53:  "DNS",
	22:  "SSH",
	80:  "HTTP",
}

// FlowTuple holds the addressing extracted from a network-layer frame.
type FlowTuple struct {
	SrcAddr   netip.Addr
	DstAddr   netip.Addr
	SrcPort   uint16
	DstPort   uint16
	Transport string
	HasPorts  bool
}

// ProtocolTag returns the tag for a port pair, looking at the destination
// port first. It returns "" when neither port is known.
func ProtocolTag(srcPort, dstPort uint16) string {
	if tag, ok := wellKnownPorts[dstPort]; ok {
		return tag
	}
	return wellKnownPorts[srcPort]
}

// ExtractFlowTuple extracts addresses and ports from a decoded packet.
// ok is false when the packet has no IPv4 or IPv6 layer.
func ExtractFlowTuple(pkt gopacket.Packet) (t FlowTuple, ok bool) {
	switch nl := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		t.SrcAddr = addrFromIP(nl.SrcIP)
		t.DstAddr = addrFromIP(nl.DstIP)
		t.Transport = nl.Protocol.String()
	case *layers.IPv6:
		t.SrcAddr = addrFromIP(nl.SrcIP)
		t.DstAddr = addrFromIP(nl.DstIP)
		t.Transport = nl.NextHeader.String()
	default:
		return t, false
	}

	switch tl := pkt.TransportLayer().(type) {
	case *layers.TCP:
		t.setPorts(uint16(tl.SrcPort), uint16(tl.DstPort), "TCP")
	case *layers.UDP:
		t.setPorts(uint16(tl.SrcPort), uint16(tl.DstPort), "UDP")
	}
	return t, true
}

func (t *FlowTuple) setPorts(src, dst uint16, transport string) {
	t.SrcPort = src
	t.DstPort = dst
	t.Transport = transport
	t.HasPorts = true
}

// newRecord builds a record from a tuple; raw is copied.
func newRecord(t FlowTuple, raw []byte, length int, ts time.Time) *models.PacketRecord {
	rec := &models.PacketRecord{
		Timestamp: ts,
		SrcAddr:   t.SrcAddr,
		DstAddr:   t.DstAddr,
		SrcPort:   t.SrcPort,
		DstPort:   t.DstPort,
		Transport: t.Transport,
		Length:    length,
		Raw:       bytes.Clone(raw),
	}
	if t.HasPorts {
		rec.Protocol = ProtocolTag(t.SrcPort, t.DstPort)
	}
	rec.Summary = summarize(t, length, rec.Protocol)
	return rec
}

func summarize(t FlowTuple, length int, tag string) string {
	var sb strings.Builder
	sb.WriteString(endpoint(t.SrcAddr, t.SrcPort, t.HasPorts))
	sb.WriteString(" -> ")
	sb.WriteString(endpoint(t.DstAddr, t.DstPort, t.HasPorts))
	fmt.Fprintf(&sb, " %s len=%d", t.Transport, length)
	if tag != "" {
		fmt.Fprintf(&sb, " [%s]", tag)
	}
	return sb.String()
}

func endpoint(addr netip.Addr, port uint16, withPort bool) string {
	if !withPort {
		return addr.String()
	}
	return netip.AddrPortFrom(addr, port).String()
}

func addrFromIP(ip net.IP) netip.Addr {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}
