// Package export publishes packet records to external consumers.
package export

import (
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"vshark/internal/config"
	"vshark/internal/models"
)

// PublishFunc delivers one encoded record to a subject.
type PublishFunc func(subject string, data []byte) error

// Publisher is a record tap that publishes protobuf-encoded records from its
// own goroutine. Records offered while the buffer is full are dropped.
type Publisher struct {
	subject string
	publish PublishFunc
	flush   func()
	log     logrus.FieldLogger

	mu      sync.RWMutex
	closed  bool
	ch      chan models.PacketRecord
	done    chan struct{}
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewPublisher connects to NATS and starts the publishing goroutine.
func NewPublisher(cfg config.NATSConfig, log logrus.FieldLogger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("vshark"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.URL, err)
	}
	log.WithField("url", cfg.URL).Info("connected to NATS server")
	flush := func() {
		if err := nc.Drain(); err != nil {
			log.WithError(err).Warn("failed to drain NATS connection")
		}
	}
	return newPublisher(cfg.Subject, cfg.Buffer, nc.Publish, flush, log), nil
}

func newPublisher(subject string, buffer int, publish PublishFunc, flush func(), log logrus.FieldLogger) *Publisher {
	p := &Publisher{
		subject: subject,
		publish: publish,
		flush:   flush,
		log:     log.WithField("subject", subject),
		ch:      make(chan models.PacketRecord, buffer),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

// Offer queues a record without blocking.
func (p *Publisher) Offer(rec models.PacketRecord) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- rec:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns the number of records discarded on a full buffer.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Failed returns the number of records that could not be encoded or sent.
func (p *Publisher) Failed() uint64 {
	return p.failed.Load()
}

func (p *Publisher) loop() {
	defer close(p.done)
	for rec := range p.ch {
		data, err := Encode(rec)
		if err == nil {
			err = p.publish(p.subject, data)
		}
		if err != nil {
			// only the first failure is logged at warn level
			if p.failed.Add(1) == 1 {
				p.log.WithError(err).Warn("failed to publish record")
			} else {
				p.log.WithError(err).Debug("failed to publish record")
			}
		}
	}
}

// Close publishes what is still queued, then drains the connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	<-p.done
	if p.flush != nil {
		p.flush()
	}
	p.log.WithFields(logrus.Fields{
		"dropped": p.Dropped(),
		"failed":  p.Failed(),
	}).Info("record export closed")
}

// Encode converts a record to a protobuf Struct and marshals it.
func Encode(rec models.PacketRecord) ([]byte, error) {
	fields := map[string]any{
		"number":    rec.Number,
		"timestamp": rec.Timestamp.UTC().Format(time.RFC3339Nano),
		"src":       rec.SrcAddr.String(),
		"dst":       rec.DstAddr.String(),
		"transport": rec.Transport,
		"summary":   rec.Summary,
		"length":    rec.Length,
		"raw":       base64.StdEncoding.EncodeToString(rec.Raw),
	}
	if rec.SrcPort != 0 || rec.DstPort != 0 {
		fields["src_port"] = uint32(rec.SrcPort)
		fields["dst_port"] = uint32(rec.DstPort)
	}
	if rec.HasProtocol() {
		fields["protocol"] = rec.Protocol
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("convert record %d: %w", rec.Number, err)
	}
	return proto.Marshal(s)
}
