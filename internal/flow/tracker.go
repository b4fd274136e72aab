package flow

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"

	"vshark/internal/models"
)

// Key is a normalized address pair. Both directions map to the same key.
type Key struct {
	A netip.Addr
	B netip.Addr
}

// MakeKey normalizes an address pair: the smaller address comes first.
func MakeKey(src, dst netip.Addr) Key {
	if dst.Compare(src) < 0 {
		return Key{A: dst, B: src}
	}
	return Key{A: src, B: dst}
}

// KeyOf returns the key of a record.
func KeyOf(rec models.PacketRecord) Key {
	return MakeKey(rec.SrcAddr, rec.DstAddr)
}

// ParseKey parses the text form produced by Key.String.
func ParseKey(s string) (Key, error) {
	a, b, ok := strings.Cut(s, " <-> ")
	if !ok {
		return Key{}, fmt.Errorf("invalid flow key %q", s)
	}
	src, err := netip.ParseAddr(a)
	if err != nil {
		return Key{}, fmt.Errorf("invalid flow key %q: %w", s, err)
	}
	dst, err := netip.ParseAddr(b)
	if err != nil {
		return Key{}, fmt.Errorf("invalid flow key %q: %w", s, err)
	}
	return MakeKey(src, dst), nil
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	return !k.A.IsValid() && !k.B.IsValid()
}

// Matches reports whether rec belongs to the conversation k.
func (k Key) Matches(rec models.PacketRecord) bool {
	return KeyOf(rec) == k
}

func (k Key) String() string {
	return k.A.String() + " <-> " + k.B.String()
}

// Conversation holds statistics for one address pair.
type Conversation struct {
	Key        Key
	Packets    uint64
	Bytes      uint64
	FwdPackets uint64
	RevPackets uint64
	FirstSeen  time.Time
	LastSeen   time.Time

	name      string
	initiator netip.Addr
}

// Name returns the text form of the key.
func (c *Conversation) Name() string {
	return c.name
}

// String returns a human-readable description of the conversation.
func (c *Conversation) String() string {
	return fmt.Sprintf("%s pkts=%d bytes=%d fwd=%d rev=%d",
		c.name, c.Packets, c.Bytes, c.FwdPackets, c.RevPackets)
}

// Tracker maintains the conversation table. Conversations are never
// evicted; the table only shrinks on Reset. It is owned by a single
// goroutine and does no locking.
type Tracker struct {
	flows map[Key]*Conversation
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{flows: make(map[Key]*Conversation)}
}

func (t *Tracker) get(key Key) *Conversation {
	c, ok := t.flows[key]
	if !ok {
		c = &Conversation{Key: key, name: key.String()}
		t.flows[key] = c
	}
	return c
}

// Record increments the packet count of key and returns the new count.
func (t *Tracker) Record(key Key) uint64 {
	c := t.get(key)
	c.Packets++
	return c.Packets
}

// Track records a packet and its size, direction and time. It returns the
// new packet count of the record's conversation.
func (t *Tracker) Track(rec models.PacketRecord) uint64 {
	c := t.get(KeyOf(rec))
	c.Packets++
	c.Bytes += uint64(max(rec.Length, 0))

	if !c.initiator.IsValid() {
		c.initiator = rec.SrcAddr
		c.FirstSeen = rec.Timestamp
	}
	// Directional stats: "forward" is the direction of the first packet.
	if rec.SrcAddr == c.initiator {
		c.FwdPackets++
	} else {
		c.RevPackets++
	}
	if rec.Timestamp.After(c.LastSeen) {
		c.LastSeen = rec.Timestamp
	}
	return c.Packets
}

// Count returns the packet count of key, zero when unknown.
func (t *Tracker) Count(key Key) uint64 {
	if c, ok := t.flows[key]; ok {
		return c.Packets
	}
	return 0
}

// Get returns a copy of the conversation for key.
func (t *Tracker) Get(key Key) (Conversation, bool) {
	c, ok := t.flows[key]
	if !ok {
		return Conversation{}, false
	}
	return *c, true
}

// List returns copies of all conversations sorted by the text form of
// their keys, so an unchanged key set always lists in the same order.
func (t *Tracker) List() []Conversation {
	out := make([]Conversation, 0, len(t.flows))
	for _, c := range t.flows {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Conversation) int {
		return strings.Compare(a.name, b.name)
	})
	return out
}

// Len returns the number of conversations.
func (t *Tracker) Len() int {
	return len(t.flows)
}

// Reset clears all conversations.
func (t *Tracker) Reset() {
	t.flows = make(map[Key]*Conversation)
}
