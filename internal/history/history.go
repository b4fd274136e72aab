// Package history keeps a bounded, arrival-ordered window of recent packet
// records.
package history

import (
	"iter"
	"strings"

	"vshark/internal/flow"
	"vshark/internal/models"
)

// Predicate selects records for a filtered view.
type Predicate func(models.PacketRecord) bool

// InFlow selects records of the conversation key.
func InFlow(key flow.Key) Predicate {
	return key.Matches
}

// MatchesText selects records whose summary contains query, ignoring case.
// An empty query selects everything.
func MatchesText(query string) Predicate {
	q := strings.ToLower(query)
	return func(rec models.PacketRecord) bool {
		return strings.Contains(strings.ToLower(rec.Summary), q)
	}
}

// Buffer is a FIFO ring of at most Cap records.
type Buffer struct {
	items []models.PacketRecord
	start int
	n     int
}

// New creates a buffer holding up to capacity records. A capacity below
// one is treated as one.
func New(capacity int) *Buffer {
	return &Buffer{items: make([]models.PacketRecord, max(capacity, 1))}
}

// Push appends rec, evicting the oldest record when full.
func (b *Buffer) Push(rec models.PacketRecord) {
	if b.n < len(b.items) {
		b.items[(b.start+b.n)%len(b.items)] = rec
		b.n++
		return
	}
	b.items[b.start] = rec
	b.start = (b.start + 1) % len(b.items)
}

func (b *Buffer) at(i int) models.PacketRecord {
	return b.items[(b.start+i)%len(b.items)]
}

// Len returns the number of stored records.
func (b *Buffer) Len() int { return b.n }

// Cap returns the capacity.
func (b *Buffer) Cap() int { return len(b.items) }

// All returns the stored records, oldest first.
func (b *Buffer) All() iter.Seq[models.PacketRecord] {
	return b.Filtered(nil)
}

// Filtered returns a lazy, restartable view of the records matching pred
// in arrival order. A nil pred matches every record. The view reads the
// buffer when iterated, so it must not outlive the owning goroutine's turn.
func (b *Buffer) Filtered(pred Predicate) iter.Seq[models.PacketRecord] {
	return func(yield func(models.PacketRecord) bool) {
		for i := 0; i < b.n; i++ {
			rec := b.at(i)
			if pred != nil && !pred(rec) {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Latest returns the newest record matching pred.
func (b *Buffer) Latest(pred Predicate) (models.PacketRecord, bool) {
	for i := b.n - 1; i >= 0; i-- {
		if rec := b.at(i); pred == nil || pred(rec) {
			return rec, true
		}
	}
	return models.PacketRecord{}, false
}

// Reset drops every record.
func (b *Buffer) Reset() {
	clear(b.items)
	b.start, b.n = 0, 0
}
