package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"vshark/internal/engine"
	"vshark/internal/models"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64 // buffered channel size, drops when full

	msgSnapshot = "snapshot"
	msgCommand  = "command"
	msgError    = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient wraps a WebSocket connection of one remote viewer.
type WSClient struct {
	conn   *websocket.Conn
	hub    *Hub
	sendCh chan models.WSMessage
	done   chan struct{}
}

// NewWSClient creates a WSClient and registers it with the hub.
func NewWSClient(conn *websocket.Conn, hub *Hub) *WSClient {
	c := &WSClient{
		conn:   conn,
		hub:    hub,
		sendCh: make(chan models.WSMessage, sendBuffer),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	hub.register(c)
	return c
}

// SendMessage queues a message for async delivery. Non-blocking: snapshots
// are dropped when the buffer is full, other messages evict the oldest
// queued one.
func (c *WSClient) SendMessage(msg models.WSMessage) {
	select {
	case c.sendCh <- msg:
		return
	default:
	}
	if msg.Type == msgSnapshot {
		return
	}
	select {
	case <-c.sendCh:
	default:
	}
	select {
	case c.sendCh <- msg:
	default:
	}
}

// writeLoop drains the send channel and writes to the WebSocket.
func (c *WSClient) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadLoop reads messages from the client and dispatches commands until
// the connection fails.
func (c *WSClient) ReadLoop() {
	defer func() {
		c.hub.unregister(c)
		close(c.done)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg models.WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *WSClient) handleMessage(msg models.WSMessage) {
	if msg.Type != msgCommand {
		c.sendError("unknown message type: " + msg.Type)
		return
	}
	var req models.CommandRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		c.sendError("invalid command payload")
		return
	}
	cmd, err := engine.ParseCommand(req)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	if err := c.hub.Submit(cmd); err != nil {
		c.sendError(err.Error())
	}
}

func (c *WSClient) sendError(message string) {
	payload, _ := json.Marshal(models.ErrorPayload{Message: message})
	c.SendMessage(models.WSMessage{Type: msgError, Payload: payload})
}

// HandleWebSocket is the HTTP handler for WebSocket upgrades.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.WithError(err).Warn("websocket upgrade failed")
			return
		}
		client := NewWSClient(conn, hub)
		client.ReadLoop()
	}
}
