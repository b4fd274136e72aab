package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"vshark/internal/capture"
	"vshark/internal/models"
	"vshark/internal/stream"
)

var (
	// ErrAlreadyStarted is returned by Start on a running engine.
	ErrAlreadyStarted = errors.New("engine already started")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("engine stopped")
)

// Sink receives every record the foreground applies. Offer must not block.
type Sink interface {
	Offer(rec models.PacketRecord)
}

// Options configures an Engine.
type Options struct {
	QueueSize       int
	ReadSize        int
	RefreshInterval time.Duration
	PollTimeout     time.Duration
	State           StateOptions
	Clock           func() time.Time
}

// DefaultOptions returns the stock engine settings.
func DefaultOptions() Options {
	return Options{
		QueueSize:       4096,
		ReadSize:        4096,
		RefreshInterval: 50 * time.Millisecond,
		PollTimeout:     20 * time.Millisecond,
		State: StateOptions{
			HistoryCapacity:  50,
			ActivityInterval: 200 * time.Millisecond,
			ActivityWindow:   100,
		},
		Clock: time.Now,
	}
}

// Engine wires a capture source through the framer into the application
// state. The worker goroutine owns the source reader and the framer; the
// foreground owns the state. The queue is the only thing they share.
type Engine struct {
	opts   Options
	source capture.Source
	framer *stream.Framer
	log    logrus.FieldLogger

	queue chan models.PacketRecord
	stats atomic.Pointer[models.FramerStats]

	state  *State
	sinks  []Sink
	closed bool

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	reader   io.ReadCloser
	done     chan struct{}
	stopOnce sync.Once
}

// New creates an engine. Nothing runs until Start.
func New(source capture.Source, framer *stream.Framer, opts Options, log logrus.FieldLogger) *Engine {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = def.ReadSize
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = def.RefreshInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = def.PollTimeout
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	return &Engine{
		opts:   opts,
		source: source,
		framer: framer,
		log:    log,
		queue:  make(chan models.PacketRecord, opts.QueueSize),
		state:  NewState(opts.State, opts.Clock()),
		done:   make(chan struct{}),
	}
}

// AddSink registers a sink. It must be called before Start.
func (e *Engine) AddSink(s Sink) {
	e.sinks = append(e.sinks, s)
}

// Start opens the capture source and launches the worker. A source that
// cannot be opened is returned as an error and the engine stays idle.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.started {
		return ErrAlreadyStarted
	}

	r, err := e.source.Open(ctx)
	if err != nil {
		if stopErr := e.source.Stop(); stopErr != nil && !errors.Is(stopErr, capture.ErrNotStarted) {
			e.log.WithError(stopErr).Warn("failed to stop capture source")
		}
		return fmt.Errorf("open capture feed: %w", err)
	}

	wctx, cancel := context.WithCancel(ctx)
	e.started = true
	e.cancel = cancel
	e.reader = r
	go e.work(wctx, r)
	e.log.Info("engine started")
	return nil
}

// Drain applies every record queued so far without blocking and returns
// how many were applied. A closed queue marks the feed closed.
func (e *Engine) Drain() int {
	if e.closed {
		return 0
	}
	n := 0
	for limit := cap(e.queue) + 1; n < limit; {
		select {
		case rec, ok := <-e.queue:
			if !ok {
				e.closed = true
				e.state.MarkFeedClosed()
				return n
			}
			e.state.Apply(rec)
			for _, s := range e.sinks {
				s.Offer(rec)
			}
			n++
		default:
			return n
		}
	}
	return n
}

// Advance moves the activity series to now and refreshes the inspector.
func (e *Engine) Advance(now time.Time) {
	if st := e.stats.Load(); st != nil {
		e.state.SetFramerStats(*st)
	}
	e.state.Advance(now)
}

// Handle applies a user command and reports whether it asked to quit.
func (e *Engine) Handle(cmd Command) bool {
	return e.state.Handle(cmd)
}

// Snapshot returns the current render snapshot.
func (e *Engine) Snapshot() models.Snapshot {
	return e.state.Snapshot()
}

// State returns the foreground state. Only the foreground may use it.
func (e *Engine) State() *State {
	return e.state
}

// Done is closed once the worker has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Run is the foreground loop: drain the queue, advance the clock, wait up
// to the poll timeout for one command, and render on the refresh cadence.
// It stops the engine before returning, on quit or when ctx ends.
func (e *Engine) Run(ctx context.Context, input <-chan Command, render func(models.Snapshot)) error {
	defer e.Stop()

	poll := time.NewTimer(e.opts.PollTimeout)
	defer poll.Stop()
	var lastRender time.Time
	for {
		e.Drain()
		e.Advance(e.opts.Clock())

		poll.Reset(e.opts.PollTimeout)
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-input:
			if !ok {
				input = nil
			} else if e.Handle(cmd) {
				e.log.Info("quit requested")
				return nil
			}
		case <-poll.C:
		}

		if now := e.opts.Clock(); now.Sub(lastRender) >= e.opts.RefreshInterval {
			render(e.Snapshot())
			lastRender = now
		}
	}
}

// Stop terminates the capture source, cancels the worker and waits for it.
// It is safe to call more than once and before Start.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		started := e.started
		e.stopped = true
		e.mu.Unlock()
		if !started {
			return
		}

		if err := e.source.Stop(); err != nil && !errors.Is(err, capture.ErrNotStarted) {
			e.log.WithError(err).Warn("failed to stop capture source")
		}
		e.cancel()
		if err := e.reader.Close(); err != nil {
			e.log.WithError(err).Debug("closing capture feed")
		}
		<-e.done
		e.log.Info("engine stopped")
	})
}
