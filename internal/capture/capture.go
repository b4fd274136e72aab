// Package capture supplies the raw capture byte stream: an external capture
// process writing to a pipe or FIFO, or a replayed capture file.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket/pcap"
)

// ErrNotStarted is returned by Stop when Open was never called.
var ErrNotStarted = errors.New("capture: not started")

// Source is a capture feed. Open returns the byte stream; Stop terminates
// whatever produces it. The stream carries no framing guarantees.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Stop() error
}

// InterfaceInfo describes a network interface.
type InterfaceInfo struct {
	Name        string
	Description string
	Addresses   []string
}

// ListInterfaces returns all available capture interfaces.
func ListInterfaces() ([]InterfaceInfo, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	var out []InterfaceInfo
	for _, d := range devs {
		info := InterfaceInfo{
			Name:        d.Name,
			Description: d.Description,
		}
		for _, addr := range d.Addresses {
			info.Addresses = append(info.Addresses, addr.IP.String())
		}
		out = append(out, info)
	}
	return out, nil
}
