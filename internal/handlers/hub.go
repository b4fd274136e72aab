package handlers

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"vshark/internal/engine"
	"vshark/internal/models"
)

// ErrBusy is returned when the foreground loop has not consumed earlier
// commands yet.
var ErrBusy = errors.New("command queue full")

// Hub fans rendered snapshots out to remote viewers and funnels their
// commands into the foreground loop.
type Hub struct {
	mu      sync.Mutex
	clients map[*WSClient]struct{}
	latest  atomic.Pointer[models.Snapshot]

	commands chan<- engine.Command
	log      logrus.FieldLogger
}

// NewHub creates a hub that forwards commands to the given channel.
func NewHub(commands chan<- engine.Command, log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:  make(map[*WSClient]struct{}),
		commands: commands,
		log:      log,
	}
}

// Publish stores snap as the latest snapshot and sends it to every client.
// It never blocks: slow clients miss snapshots.
func (h *Hub) Publish(snap models.Snapshot) {
	h.latest.Store(&snap)

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal snapshot")
		return
	}
	msg := models.WSMessage{Type: msgSnapshot, Payload: payload}
	for c := range h.clients {
		c.SendMessage(msg)
	}
}

// Latest returns the most recently published snapshot.
func (h *Hub) Latest() (models.Snapshot, bool) {
	if s := h.latest.Load(); s != nil {
		return *s, true
	}
	return models.Snapshot{}, false
}

// Submit queues a command for the foreground loop without blocking.
func (h *Hub) Submit(cmd engine.Command) error {
	select {
	case h.commands <- cmd:
		return nil
	default:
		return ErrBusy
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if snap, ok := h.Latest(); ok {
		if payload, err := json.Marshal(snap); err == nil {
			c.SendMessage(models.WSMessage{Type: msgSnapshot, Payload: payload})
		}
	}
}

func (h *Hub) unregister(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}
