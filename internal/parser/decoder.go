package parser

import (
	"net/netip"

	"vshark/internal/models"
)

// Status is the outcome of one decode attempt at a candidate offset.
type Status int

const (
	// Complete means a whole frame was found at the offset.
	Complete Status = iota
	// Incomplete means the candidate may be valid but more bytes are needed.
	Incomplete
	// Invalid means the candidate failed a structural check.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Result reports what Decode found at the start of a buffer.
// Record is nil for complete frames that carry nothing displayable.
type Result struct {
	Status   Status
	Consumed int
	Record   *models.PacketRecord
}

// Decoder locates and parses frames inside an unframed byte stream.
type Decoder interface {
	// Sync returns the offset of the first byte at which a frame could
	// start, or len(buf) when no byte can.
	Sync(buf []byte) int
	// Decode attempts to parse one frame starting at buf[0].
	Decode(buf []byte) Result
}

var limitedBroadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// IsNoise reports whether a record has an unspecified or broadcast endpoint.
func IsNoise(rec models.PacketRecord) bool {
	for _, addr := range []netip.Addr{rec.SrcAddr, rec.DstAddr} {
		if !addr.IsValid() || addr.IsUnspecified() || addr == limitedBroadcast {
			return true
		}
	}
	return false
}

func incomplete() Result { return Result{Status: Incomplete} }

func invalid() Result { return Result{Status: Invalid} }
