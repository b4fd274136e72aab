package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vshark/internal/capture"
	"vshark/internal/models"
	"vshark/internal/parser"
	"vshark/internal/parser/frametest"
	"vshark/internal/stream"
)

// fakeSource hands out a prepared reader and records Stop calls.
type fakeSource struct {
	mu      sync.Mutex
	reader  io.ReadCloser
	openErr error
	opened  bool
	stops   int
}

func (f *fakeSource) Open(context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened = true
	return f.reader, nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if !f.opened {
		return capture.ErrNotStarted
	}
	return nil
}

func (f *fakeSource) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type collectSink struct {
	recs []models.PacketRecord
}

func (c *collectSink) Offer(rec models.PacketRecord) { c.recs = append(c.recs, rec) }

func testOptions() Options {
	opts := DefaultOptions()
	opts.QueueSize = 4
	opts.ReadSize = 7
	opts.RefreshInterval = 5 * time.Millisecond
	opts.PollTimeout = 2 * time.Millisecond
	opts.State.HistoryCapacity = 5
	return opts
}

func newTestEngine(src capture.Source) *Engine {
	log, _ := test.NewNullLogger()
	framer := stream.NewFramer(parser.NewIPv4Decoder(true), stream.WithLogger(log))
	return New(src, framer, testOptions(), log)
}

func rawStream(t *testing.T, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.Write([]byte{0x00, 0x13})
		buf.Write(frametest.TCP(t, "192.168.1.5", "8.8.8.8", 50000+uint16(i), 443, []byte("hello")))
	}
	return buf.Bytes()
}

func drainUntilClosed(t *testing.T, e *Engine) {
	t.Helper()
	require.Eventually(t, func() bool {
		e.Drain()
		return e.Snapshot().FeedClosed
	}, 2*time.Second, time.Millisecond)
}

func TestEngineDrainsFeedThroughBoundedQueue(t *testing.T) {
	src := &fakeSource{reader: io.NopCloser(bytes.NewReader(rawStream(t, 12)))}
	e := newTestEngine(src)
	sink := &collectSink{}
	e.AddSink(sink)

	require.NoError(t, e.Start(context.Background()))
	drainUntilClosed(t, e)
	e.Advance(time.Now())

	snap := e.Snapshot()
	assert.Equal(t, uint64(12), snap.TotalPackets)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, uint64(12), snap.Conversations[0].Packets)
	assert.Len(t, snap.Feed, 5)
	assert.Equal(t, uint64(12), snap.Framer.Frames)
	assert.Zero(t, snap.Framer.Buffered)

	require.Len(t, sink.recs, 12)
	for i, rec := range sink.recs {
		assert.Equal(t, uint64(i+1), rec.Number)
	}

	// a closed feed is not fatal: the foreground keeps working
	assert.Zero(t, e.Drain())
	assert.False(t, e.Handle(Command{Kind: MoveDown}))
	assert.Equal(t, 0, e.Snapshot().SelectedIndex)

	e.Stop()
	assert.Equal(t, 1, src.stopCount())
}

func TestEngineStartTwice(t *testing.T) {
	src := &fakeSource{reader: io.NopCloser(bytes.NewReader(nil))}
	e := newTestEngine(src)

	require.NoError(t, e.Start(context.Background()))
	assert.ErrorIs(t, e.Start(context.Background()), ErrAlreadyStarted)
	e.Stop()
	e.Stop()
	assert.ErrorIs(t, e.Start(context.Background()), ErrStopped)
}

func TestEngineStartFailure(t *testing.T) {
	spawnErr := errors.New("exec: dumpcap: not found")
	src := &fakeSource{openErr: spawnErr}
	e := newTestEngine(src)

	err := e.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, spawnErr)
	assert.Equal(t, 1, src.stopCount())
	e.Stop()
}

func TestEngineStopUnblocksWorker(t *testing.T) {
	pr, pw := io.Pipe()
	src := &fakeSource{reader: pr}
	e := newTestEngine(src)
	require.NoError(t, e.Start(context.Background()))

	_, err := pw.Write(rawStream(t, 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.Drain() == 1 }, 2*time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while the worker was blocked in Read")
	}
	<-e.Done()
	assert.Equal(t, 1, src.stopCount())
}

func TestEngineStopWithFullQueue(t *testing.T) {
	src := &fakeSource{reader: io.NopCloser(bytes.NewReader(rawStream(t, 50)))}
	e := newTestEngine(src)
	require.NoError(t, e.Start(context.Background()))

	// nobody drains, so the worker blocks on the full queue
	time.Sleep(20 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while the worker was blocked on send")
	}
}

func TestEngineRunQuits(t *testing.T) {
	src := &fakeSource{reader: io.NopCloser(bytes.NewReader(rawStream(t, 3)))}
	e := newTestEngine(src)
	require.NoError(t, e.Start(context.Background()))

	input := make(chan Command)
	var mu sync.Mutex
	var snaps []models.Snapshot
	render := func(s models.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, s)
	}

	result := make(chan error, 1)
	go func() { result <- e.Run(context.Background(), input, render) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snaps) > 0 && snaps[len(snaps)-1].TotalPackets == 3
	}, 2*time.Second, time.Millisecond)

	input <- Command{Kind: MoveDown}
	input <- Command{Kind: Quit}
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after quit")
	}
	assert.Equal(t, 1, src.stopCount())
	assert.Equal(t, 0, e.Snapshot().SelectedIndex)
}

func TestEngineRunStopsOnContext(t *testing.T) {
	pr, _ := io.Pipe()
	src := &fakeSource{reader: pr}
	e := newTestEngine(src)
	require.NoError(t, e.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- e.Run(ctx, nil, func(models.Snapshot) {}) }()
	cancel()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	<-e.Done()
}
