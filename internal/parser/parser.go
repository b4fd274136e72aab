// Package parser turns raw capture bytes into packet records: frame
// decoders for the stream framer, the port tag table and the hex inspector
// formatter.
package parser

import (
	"fmt"
	"strings"
)

const hexRowWidth = 16

// NewDecoder returns the decoder for a capture format, "pcap" or "raw".
func NewDecoder(format string, verifyChecksum bool) (Decoder, error) {
	switch strings.ToLower(format) {
	case "pcap":
		return NewPcapDecoder(), nil
	case "raw", "ipv4":
		return NewIPv4Decoder(verifyChecksum), nil
	default:
		return nil, fmt.Errorf("unsupported capture format %q (must be pcap or raw)", format)
	}
}

// FormatHex renders data as rows of 16 bytes: two-digit hex cells, blank
// padding for a short last row, a separator, then the ASCII column where
// non-printable bytes show as '.'.
func FormatHex(data []byte) string {
	var sb strings.Builder
	for offset := 0; offset < len(data); offset += hexRowWidth {
		end := min(offset+hexRowWidth, len(data))
		row := data[offset:end]

		for _, b := range row {
			fmt.Fprintf(&sb, "%02x ", b)
		}
		for i := len(row); i < hexRowWidth; i++ {
			sb.WriteString("   ")
		}
		sb.WriteString(" | ")

		for _, b := range row {
			if b >= 0x20 && b <= 0x7e {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
