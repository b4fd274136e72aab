package parser

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vshark/internal/models"
	"vshark/internal/parser/frametest"
)

func TestIPv4DecoderCompleteFrame(t *testing.T) {
	frame := frametest.TCP(t, "192.168.1.5", "8.8.8.8", 51000, 443, nil)
	require.Len(t, frame, 40)

	d := NewIPv4Decoder(true)
	res := d.Decode(frame)

	require.Equal(t, Complete, res.Status)
	assert.Equal(t, 40, res.Consumed)
	require.NotNil(t, res.Record)
	rec := res.Record
	assert.Equal(t, netip.MustParseAddr("192.168.1.5"), rec.SrcAddr)
	assert.Equal(t, netip.MustParseAddr("8.8.8.8"), rec.DstAddr)
	assert.Equal(t, uint16(51000), rec.SrcPort)
	assert.Equal(t, uint16(443), rec.DstPort)
	assert.Equal(t, "TCP", rec.Transport)
	assert.Equal(t, "HTTPS", rec.Protocol)
	assert.Equal(t, 40, rec.Length)
	assert.Equal(t, frame, rec.Raw)
	assert.Equal(t, "192.168.1.5:51000 -> 8.8.8.8:443 TCP len=40 [HTTPS]", rec.Summary)
}

func TestIPv4DecoderCopiesRaw(t *testing.T) {
	frame := frametest.UDP(t, "10.0.0.1", "10.0.0.2", 5353, 53, []byte("q"))
	res := NewIPv4Decoder(true).Decode(frame)
	require.Equal(t, Complete, res.Status)

	frame[len(frame)-1] = 'x'
	assert.Equal(t, byte('q'), res.Record.Raw[len(res.Record.Raw)-1])
}

func TestIPv4DecoderUntaggedUDP(t *testing.T) {
	frame := frametest.UDP(t, "10.0.0.1", "10.0.0.2", 1000, 2000, nil)
	res := NewIPv4Decoder(true).Decode(frame)

	require.Equal(t, Complete, res.Status)
	require.NotNil(t, res.Record)
	assert.False(t, res.Record.HasProtocol())
	assert.Equal(t, "10.0.0.1:1000 -> 10.0.0.2:2000 UDP len=28", res.Record.Summary)
}

func TestIPv4DecoderIncomplete(t *testing.T) {
	frame := frametest.TCP(t, "192.168.1.5", "8.8.8.8", 51000, 443, []byte("hello"))
	d := NewIPv4Decoder(true)

	for _, n := range []int{0, 1, 19, 20, len(frame) - 1} {
		res := d.Decode(frame[:n])
		assert.Equal(t, Incomplete, res.Status, "prefix of %d bytes", n)
		assert.Nil(t, res.Record)
	}
}

func TestIPv4DecoderStructuralFailures(t *testing.T) {
	base := frametest.TCP(t, "192.168.1.5", "8.8.8.8", 51000, 443, nil)
	corrupt := func(f func(b []byte)) []byte {
		b := append([]byte(nil), base...)
		f(b)
		return b
	}

	tests := []struct {
		name  string
		frame []byte
	}{
		{"not a signature", corrupt(func(b []byte) { b[0] = 0x60 })},
		{"short header length", corrupt(func(b []byte) { b[0] = 0x44 })},
		{"total below header", corrupt(func(b []byte) { b[2], b[3] = 0, 10 })},
		{"reserved flag", corrupt(func(b []byte) { b[6] |= 0x80 })},
		{"bad checksum", corrupt(func(b []byte) { b[8]++ })},
	}
	d := NewIPv4Decoder(true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Invalid, d.Decode(tt.frame).Status)
		})
	}
}

func TestIPv4DecoderChecksumDisabled(t *testing.T) {
	frame := frametest.TCP(t, "192.168.1.5", "8.8.8.8", 51000, 443, nil)
	frame[8]++

	assert.Equal(t, Invalid, NewIPv4Decoder(true).Decode(frame).Status)
	assert.Equal(t, Complete, NewIPv4Decoder(false).Decode(frame).Status)
}

func TestIPv4DecoderSync(t *testing.T) {
	d := NewIPv4Decoder(true)

	assert.Equal(t, 0, d.Sync(nil))
	assert.Equal(t, 3, d.Sync([]byte{0x00, 0x44, 0x60, 0x45, 0x00}))
	assert.Equal(t, 4, d.Sync([]byte{0x00, 0x44, 0x60, 0xff}))
}

func TestHeaderChecksum(t *testing.T) {
	frame := frametest.TCP(t, "192.168.1.5", "8.8.8.8", 51000, 443, nil)
	assert.Zero(t, headerChecksum(frame[:20]))

	frame[10], frame[11] = 0, 0
	sum := headerChecksum(frame[:20])
	frame[10], frame[11] = byte(sum>>8), byte(sum)
	assert.Zero(t, headerChecksum(frame[:20]))
}

func TestProtocolTag(t *testing.T) {
	tests := []struct {
		src, dst uint16
		want     string
	}{
		{51000, 443, "HTTPS"},
		{443, 51000, "HTTPS"},
		{40000, 53, "DNS"},
		{22, 60000, "SSH"},
		{80, 8080, "HTTP"},
		{53, 80, "HTTP"},
		{1000, 2000, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProtocolTag(tt.src, tt.dst), "%d -> %d", tt.src, tt.dst)
	}
}

func TestIsNoise(t *testing.T) {
	rec := func(src, dst string) models.PacketRecord {
		r := models.PacketRecord{}
		if src != "" {
			r.SrcAddr = netip.MustParseAddr(src)
		}
		if dst != "" {
			r.DstAddr = netip.MustParseAddr(dst)
		}
		return r
	}

	assert.False(t, IsNoise(rec("10.0.0.1", "10.0.0.2")))
	assert.False(t, IsNoise(rec("fe80::1", "ff02::1")))
	assert.True(t, IsNoise(rec("0.0.0.0", "10.0.0.2")))
	assert.True(t, IsNoise(rec("10.0.0.1", "255.255.255.255")))
	assert.True(t, IsNoise(rec("::", "fe80::1")))
	assert.True(t, IsNoise(rec("", "10.0.0.2")))
}
