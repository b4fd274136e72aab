package parser

import (
	"encoding/binary"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	ipv4MinHeaderLen = 20
	ipv4FlagReserved = 0x80
)

// IPv4Decoder decodes raw network-layer IPv4 frames. The candidate
// signature is a version nibble of 4 and a header length nibble of at least 5.
type IPv4Decoder struct {
	verifyChecksum bool

	parser  *gopacket.DecodingLayerParser
	ip4     layers.IPv4
	tcp     layers.TCP
	udp     layers.UDP
	payload gopacket.Payload
	decoded []gopacket.LayerType
}

// NewIPv4Decoder creates a raw IPv4 decoder. With verifyChecksum set, a
// header checksum mismatch is a structural failure.
func NewIPv4Decoder(verifyChecksum bool) *IPv4Decoder {
	d := &IPv4Decoder{verifyChecksum: verifyChecksum}
	d.parser = gopacket.NewDecodingLayerParser(
		layers.LayerTypeIPv4,
		&d.ip4,
		&d.tcp,
		&d.udp,
		&d.payload,
	)
	d.parser.IgnoreUnsupported = true
	return d
}

func isIPv4Signature(b byte) bool {
	return b>>4 == 4 && b&0x0f >= 5
}

// Sync returns the offset of the first IPv4 signature byte.
func (d *IPv4Decoder) Sync(buf []byte) int {
	for i, b := range buf {
		if isIPv4Signature(b) {
			return i
		}
	}
	return len(buf)
}

// Decode parses one IPv4 frame at buf[0].
func (d *IPv4Decoder) Decode(buf []byte) Result {
	if len(buf) == 0 {
		return incomplete()
	}
	if !isIPv4Signature(buf[0]) {
		return invalid()
	}
	if len(buf) < ipv4MinHeaderLen {
		return incomplete()
	}
	headerLen := int(buf[0]&0x0f) * 4
	if len(buf) < headerLen {
		return incomplete()
	}
	total := int(binary.BigEndian.Uint16(buf[2:4]))
	if total < headerLen {
		return invalid()
	}
	if buf[6]&ipv4FlagReserved != 0 {
		return invalid()
	}
	if d.verifyChecksum && headerChecksum(buf[:headerLen]) != 0 {
		return invalid()
	}
	if len(buf) < total {
		return incomplete()
	}

	frame := buf[:total]
	tuple, ok := d.tuple(frame)
	if !ok {
		return invalid()
	}
	return Result{
		Status:   Complete,
		Consumed: total,
		Record:   newRecord(tuple, frame, total, time.Time{}),
	}
}

func (d *IPv4Decoder) tuple(frame []byte) (FlowTuple, bool) {
	d.decoded = d.decoded[:0]
	// A truncated transport header still leaves a usable IPv4 layer.
	_ = d.parser.DecodeLayers(frame, &d.decoded)

	var t FlowTuple
	var sawIP bool
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			t.SrcAddr = addrFromIP(d.ip4.SrcIP)
			t.DstAddr = addrFromIP(d.ip4.DstIP)
			t.Transport = d.ip4.Protocol.String()
			sawIP = true
		case layers.LayerTypeTCP:
			t.setPorts(uint16(d.tcp.SrcPort), uint16(d.tcp.DstPort), "TCP")
		case layers.LayerTypeUDP:
			t.setPorts(uint16(d.udp.SrcPort), uint16(d.udp.DstPort), "UDP")
		}
	}
	return t, sawIP
}

// headerChecksum returns the ones' complement sum of an IPv4 header,
// which is zero for a header with a correct checksum field.
func headerChecksum(header []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(header); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(header[i : i+2]))
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}
