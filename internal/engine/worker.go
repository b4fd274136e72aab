package engine

import (
	"context"
	"errors"
	"io"

	"vshark/internal/models"
)

// work is the capture worker: the only reader of the feed, the only user of
// the framer and the only sender on the queue, which it closes on exit.
func (e *Engine) work(ctx context.Context, r io.Reader) {
	defer close(e.done)
	defer close(e.queue)

	log := e.log.WithField("component", "worker")
	buf := make([]byte, e.opts.ReadSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			recs := e.framer.Ingest(buf[:n])
			stats := e.framer.Stats()
			e.stats.Store(&stats)
			if !e.send(ctx, recs) {
				return
			}
		}
		switch {
		case err != nil:
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				log.WithError(err).Warn("capture feed read failed")
			}
			log.Info("capture feed closed")
			return
		case n == 0:
			log.Info("capture feed returned no data, stopping")
			return
		}
	}
}

// send queues records in order. A send after shutdown is dropped.
func (e *Engine) send(ctx context.Context, recs []models.PacketRecord) bool {
	for _, rec := range recs {
		select {
		case e.queue <- rec:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
