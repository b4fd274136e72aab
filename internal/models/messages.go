package models

import "encoding/json"

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandRequest is sent by a remote client to drive selection and search.
type CommandRequest struct {
	Command string `json:"command"`
	Char    string `json:"char,omitempty"`
}

// ErrorPayload describes an error sent to the client.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ConversationEntry is one row of the conversation listing.
type ConversationEntry struct {
	Key      string `json:"key"`
	Packets  uint64 `json:"packets"`
	Bytes    uint64 `json:"bytes"`
	Selected bool   `json:"selected,omitempty"`
}

// FramerStats reports stream framer counters.
type FramerStats struct {
	Frames   uint64 `json:"frames"`
	Noise    uint64 `json:"noise"`
	Resyncs  uint64 `json:"resyncs"`
	Evicted  uint64 `json:"evicted"`
	Buffered int    `json:"buffered"`
}

// Snapshot is the read-only view of the application state handed to renderers.
type Snapshot struct {
	Conversations []ConversationEntry `json:"conversations"`
	SelectedIndex int                 `json:"selectedIndex"`
	Selected      string              `json:"selected,omitempty"`
	Feed          []PacketRecord      `json:"feed"`
	Inspector     string              `json:"inspector"`
	Activity      []uint64            `json:"activity"`
	Searching     bool                `json:"searching"`
	Query         string              `json:"query,omitempty"`
	FeedClosed    bool                `json:"feedClosed"`
	TotalPackets  uint64              `json:"totalPackets"`
	Framer        FramerStats         `json:"framer"`
}
