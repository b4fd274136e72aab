package parser

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const (
	pcapGlobalHeaderLen = 24
	pcapRecordHeaderLen = 16
	pcapDefaultSnaplen  = 262144

	// linkTypeLinuxSLL2 is emitted by dumpcap for "-i any" on newer
	// kernels. It does not fit gopacket's 8-bit LinkType.
	linkTypeLinuxSLL2  = 276
	linuxSLL2HeaderLen = 20
	linuxSLLHeaderLen  = 16
)

// pcapMagics are the on-wire byte sequences of the four pcap magic numbers.
var pcapMagics = [][]byte{
	{0xd4, 0xc3, 0xb2, 0xa1}, // microseconds, little endian
	{0xa1, 0xb2, 0xc3, 0xd4}, // microseconds, big endian
	{0x4d, 0x3c, 0xb2, 0xa1}, // nanoseconds, little endian
	{0xa1, 0xb2, 0x3c, 0x4d}, // nanoseconds, big endian
}

// PcapDecoder decodes a pcap stream as written by dumpcap to a pipe. It
// synchronizes on the global header first and then on record headers.
type PcapDecoder struct {
	synced   bool
	order    binary.ByteOrder
	linkType uint32
	snaplen  uint32
	fracMax  uint32
	fracUnit time.Duration
}

// NewPcapDecoder creates a decoder waiting for a pcap global header.
func NewPcapDecoder() *PcapDecoder {
	return &PcapDecoder{}
}

// LinkType returns the link type number of the stream, zero before the
// global header was seen.
func (d *PcapDecoder) LinkType() uint32 {
	return d.linkType
}

// Sync returns 0 once synchronized, since any offset may hold a record
// header. Before that it scans for a magic number, keeping a partial magic
// at the tail of buf.
func (d *PcapDecoder) Sync(buf []byte) int {
	if d.synced {
		return 0
	}
	best := len(buf)
	for _, magic := range pcapMagics {
		if i := bytes.Index(buf, magic); i >= 0 && i < best {
			best = i
		}
	}
	if best < len(buf) {
		return best
	}
	for i := max(0, len(buf)-len(pcapMagics[0])+1); i < len(buf); i++ {
		for _, magic := range pcapMagics {
			if bytes.HasPrefix(magic, buf[i:]) {
				return i
			}
		}
	}
	return len(buf)
}

// Decode parses the global header or one record at buf[0].
func (d *PcapDecoder) Decode(buf []byte) Result {
	if !d.synced {
		return d.decodeGlobalHeader(buf)
	}
	return d.decodeRecord(buf)
}

func (d *PcapDecoder) decodeGlobalHeader(buf []byte) Result {
	if len(buf) < pcapGlobalHeaderLen {
		for _, magic := range pcapMagics {
			if bytes.HasPrefix(buf, magic) || bytes.HasPrefix(magic, buf) {
				return incomplete()
			}
		}
		return invalid()
	}
	r, err := pcapgo.NewReader(bytes.NewReader(buf[:pcapGlobalHeaderLen]))
	if err != nil {
		return invalid()
	}

	d.order = binary.LittleEndian
	if buf[0] == 0xa1 {
		d.order = binary.BigEndian
	}
	d.linkType = d.order.Uint32(buf[20:24])
	d.snaplen = r.Snaplen()
	if d.snaplen == 0 {
		d.snaplen = pcapDefaultSnaplen
	}
	// pcapgo's Resolution reports the two resolutions swapped in v1.1.19,
	// so the magic bytes decide.
	d.fracMax, d.fracUnit = 1_000_000, time.Microsecond
	if bytes.Equal(buf[:4], pcapMagics[2]) || bytes.Equal(buf[:4], pcapMagics[3]) {
		d.fracMax, d.fracUnit = 1_000_000_000, time.Nanosecond
	}
	d.synced = true
	return Result{Status: Complete, Consumed: pcapGlobalHeaderLen}
}

func (d *PcapDecoder) decodeRecord(buf []byte) Result {
	if len(buf) < pcapRecordHeaderLen {
		return incomplete()
	}
	sec := d.order.Uint32(buf[0:4])
	frac := d.order.Uint32(buf[4:8])
	inclLen := d.order.Uint32(buf[8:12])
	origLen := d.order.Uint32(buf[12:16])
	if frac >= d.fracMax || inclLen == 0 || inclLen > d.snaplen || inclLen > origLen {
		return invalid()
	}
	total := pcapRecordHeaderLen + int(inclLen)
	if len(buf) < total {
		return incomplete()
	}

	data := buf[pcapRecordHeaderLen:total]
	ts := time.Unix(int64(sec), int64(frac)*int64(d.fracUnit)).UTC()
	res := Result{Status: Complete, Consumed: total}
	if tuple, ok := d.network(data); ok {
		res.Record = newRecord(tuple, data, int(origLen), ts)
	}
	return res
}

// network finds the IP layer of a link-layer frame.
func (d *PcapDecoder) network(data []byte) (FlowTuple, bool) {
	if d.linkType == linkTypeLinuxSLL2 {
		return probeNetwork(data, linuxSLL2HeaderLen)
	}
	if d.linkType > 0xff {
		return FlowTuple{}, false
	}
	linkType := layers.LinkType(d.linkType)
	pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if t, ok := ExtractFlowTuple(pkt); ok {
		return t, true
	}
	if linkType == layers.LinkTypeLinuxSLL {
		return probeNetwork(data, linuxSLLHeaderLen)
	}
	return FlowTuple{}, false
}

// probeNetwork decodes an IP header found right after a Linux cooked
// capture header.
func probeNetwork(data []byte, offset int) (FlowTuple, bool) {
	if len(data) <= offset {
		return FlowTuple{}, false
	}
	var first gopacket.LayerType
	switch data[offset] >> 4 {
	case 4:
		first = layers.LayerTypeIPv4
	case 6:
		first = layers.LayerTypeIPv6
	default:
		return FlowTuple{}, false
	}
	pkt := gopacket.NewPacket(data[offset:], first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	return ExtractFlowTuple(pkt)
}
