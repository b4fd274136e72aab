// Package frametest builds synthetic frames and pcap streams for tests.
package frametest

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

func ipv4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       0x1234,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

// TCP returns a raw IPv4/TCP frame. Without payload it is 40 bytes long.
func TCP(t testing.TB, src, dst string, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	ip := ipv4(src, dst, layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     1,
		ACK:     true,
		Window:  1024,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ip, tcp, gopacket.Payload(payload))
}

// UDP returns a raw IPv4/UDP frame.
func UDP(t testing.TB, src, dst string, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	ip := ipv4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ip, udp, gopacket.Payload(payload))
}

// Ethernet wraps a raw IPv4 frame in an Ethernet II header.
func Ethernet(t testing.TB, ipFrame []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	return serialize(t, eth, gopacket.Payload(ipFrame))
}

// ARP returns an Ethernet ARP request, a frame without an IP layer.
func ARP(t testing.TB) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	return serialize(t, eth, arp)
}

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, serializeOpts, ls...))
	return bytes.Clone(buf.Bytes())
}

// Pcap writes a pcap stream with one record per frame, one second apart.
func Pcap(t testing.TB, linkType layers.LinkType, frames ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, linkType))
	base := time.Unix(1700000000, 0)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return buf.Bytes()
}

// PcapHeader returns a little-endian microsecond pcap global header for any
// 32-bit link type, including ones gopacket cannot represent.
func PcapHeader(linkType uint32, snaplen uint32) []byte {
	h := make([]byte, 24)
	binary.LittleEndian.PutUint32(h[0:4], 0xa1b2c3d4)
	binary.LittleEndian.PutUint16(h[4:6], 2)
	binary.LittleEndian.PutUint16(h[6:8], 4)
	binary.LittleEndian.PutUint32(h[16:20], snaplen)
	binary.LittleEndian.PutUint32(h[20:24], linkType)
	return h
}

// PcapRecord returns a little-endian microsecond pcap record.
func PcapRecord(sec, usec uint32, data []byte) []byte {
	r := make([]byte, 16, 16+len(data))
	binary.LittleEndian.PutUint32(r[0:4], sec)
	binary.LittleEndian.PutUint32(r[4:8], usec)
	binary.LittleEndian.PutUint32(r[8:12], uint32(len(data)))
	binary.LittleEndian.PutUint32(r[12:16], uint32(len(data)))
	return append(r, data...)
}

// LinuxSLL2 prefixes an IP frame with a 20-byte Linux cooked v2 header.
func LinuxSLL2(ipFrame []byte) []byte {
	h := make([]byte, 20, 20+len(ipFrame))
	binary.BigEndian.PutUint16(h[0:2], uint16(layers.EthernetTypeIPv4))
	binary.BigEndian.PutUint32(h[4:8], 2)
	binary.BigEndian.PutUint16(h[8:10], 1)
	h[11] = 6
	return append(h, ipFrame...)
}
