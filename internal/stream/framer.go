// Package stream turns an unframed capture byte stream into packet records.
package stream

import (
	"time"

	"github.com/sirupsen/logrus"

	"vshark/internal/log"
	"vshark/internal/models"
	"vshark/internal/parser"
)

// DefaultCeiling bounds the frame buffer when no ceiling is configured.
const DefaultCeiling = 1 << 20

// Option configures a Framer.
type Option func(*Framer)

// WithCeiling sets the maximum number of buffered bytes. Values below one
// are ignored.
func WithCeiling(n int) Option {
	return func(f *Framer) {
		if n > 0 {
			f.ceiling = n
		}
	}
}

// WithClock sets the clock used to stamp records the decoder left without
// a timestamp.
func WithClock(now func() time.Time) Option {
	return func(f *Framer) { f.now = now }
}

// WithLogger sets the logger for buffer eviction events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Framer) { f.log = l }
}

// Framer owns the frame buffer. It is not safe for concurrent use; the
// capture worker is its only caller.
type Framer struct {
	decoder parser.Decoder
	buf     []byte
	ceiling int
	seq     uint64
	now     func() time.Time
	log     logrus.FieldLogger
	stats   models.FramerStats
}

// NewFramer creates a framer on top of a decoder.
func NewFramer(d parser.Decoder, opts ...Option) *Framer {
	f := &Framer{
		decoder: d,
		ceiling: DefaultCeiling,
		now:     time.Now,
		log:     log.GetLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Ingest appends chunk to the frame buffer and returns every record that
// could be extracted, in stream order. A trailing partial frame stays
// buffered for the next call.
func (f *Framer) Ingest(chunk []byte) []models.PacketRecord {
	f.buf = append(f.buf, chunk...)
	out := f.extract(nil)

	if over := len(f.buf) - f.ceiling; over > 0 {
		f.buf = append(f.buf[:0], f.buf[over:]...)
		f.stats.Evicted += uint64(over)
		f.log.WithFields(logrus.Fields{
			"evicted":  over,
			"buffered": len(f.buf),
			"ceiling":  f.ceiling,
		}).Debug("frame buffer over ceiling, dropped oldest bytes")
		out = f.extract(out)
	}
	f.stats.Buffered = len(f.buf)
	return out
}

// extract runs the resynchronization loop from the start of the buffer and
// compacts away everything before the last candidate offset.
func (f *Framer) extract(out []models.PacketRecord) []models.PacketRecord {
	cursor := 0
	for cursor < len(f.buf) {
		cursor += f.decoder.Sync(f.buf[cursor:])
		if cursor >= len(f.buf) {
			break
		}

		res := f.decoder.Decode(f.buf[cursor:])
		switch res.Status {
		case parser.Incomplete:
			f.compact(cursor)
			return out
		case parser.Invalid:
			cursor++
			f.stats.Resyncs++
		case parser.Complete:
			cursor += max(res.Consumed, 1)
			if rec, ok := f.emit(res.Record); ok {
				out = append(out, rec)
			}
		}
	}
	f.compact(min(cursor, len(f.buf)))
	return out
}

func (f *Framer) emit(r *models.PacketRecord) (models.PacketRecord, bool) {
	if r == nil {
		return models.PacketRecord{}, false
	}
	if parser.IsNoise(*r) {
		f.stats.Noise++
		return models.PacketRecord{}, false
	}
	rec := *r
	f.seq++
	rec.Number = f.seq
	if rec.Timestamp.IsZero() {
		rec.Timestamp = f.now()
	}
	f.stats.Frames++
	return rec, true
}

func (f *Framer) compact(cursor int) {
	if cursor == 0 {
		return
	}
	f.buf = append(f.buf[:0], f.buf[cursor:]...)
}

// Buffered returns the number of bytes waiting in the frame buffer.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Ceiling returns the frame buffer bound.
func (f *Framer) Ceiling() int {
	return f.ceiling
}

// Stats returns the framer counters.
func (f *Framer) Stats() models.FramerStats {
	s := f.stats
	s.Buffered = len(f.buf)
	return s
}
