// Package activity keeps a fixed-length series of per-interval packet counts.
package activity

import "time"

// Counter buckets observed packets into fixed wall-clock intervals. The
// series always holds exactly Window buckets, oldest first, starting out
// zero-filled.
type Counter struct {
	interval time.Duration
	series   []uint64
	pending  uint64
	next     time.Time
}

// NewCounter creates a counter whose first bucket closes one interval
// after now.
func NewCounter(interval time.Duration, window int, now time.Time) *Counter {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Counter{
		interval: interval,
		series:   make([]uint64, max(window, 1)),
		next:     now.Add(interval),
	}
}

// Observe adds n packets to the open bucket.
func (c *Counter) Observe(n int) {
	if n > 0 {
		c.pending += uint64(n)
	}
}

// Tick appends one bucket, evicting the oldest.
func (c *Counter) Tick(count uint64) {
	copy(c.series, c.series[1:])
	c.series[len(c.series)-1] = count
}

// Advance closes every bucket whose interval ended at or before now and
// returns how many were closed. The open count goes into the first closed
// bucket and any further elapsed intervals get zero buckets.
func (c *Counter) Advance(now time.Time) int {
	if now.Before(c.next) {
		return 0
	}
	elapsed := int(now.Sub(c.next)/c.interval) + 1
	c.next = c.next.Add(time.Duration(elapsed) * c.interval)

	if elapsed > len(c.series) {
		clear(c.series)
	} else {
		c.Tick(c.pending)
		for i := 1; i < elapsed; i++ {
			c.Tick(0)
		}
	}
	c.pending = 0
	return elapsed
}

// Series returns a copy of the buckets, oldest first.
func (c *Counter) Series() []uint64 {
	out := make([]uint64, len(c.series))
	copy(out, c.series)
	return out
}

// Pending returns the count of the open bucket.
func (c *Counter) Pending() uint64 { return c.pending }

// Window returns the number of buckets.
func (c *Counter) Window() int { return len(c.series) }

// Interval returns the bucket width.
func (c *Counter) Interval() time.Duration { return c.interval }
