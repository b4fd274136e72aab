package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"vshark/internal/engine"
	"vshark/internal/models"
)

// NewRouter sets up the remote view routes.
func NewRouter(hub *Hub) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", handleHealth(hub)).Methods(http.MethodGet)
	r.HandleFunc("/ws", HandleWebSocket(hub))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/snapshot", handleSnapshot(hub)).Methods(http.MethodGet)
	api.HandleFunc("/flows", handleFlows(hub)).Methods(http.MethodGet)
	api.HandleFunc("/commands", handleCommand(hub)).Methods(http.MethodPost)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func handleHealth(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, _ := hub.Latest()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"feedClosed": snap.FeedClosed,
			"clients":    hub.Clients(),
		})
	}
}

func handleSnapshot(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := hub.Latest()
		if !ok {
			http.Error(w, "no snapshot rendered yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleFlows(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, _ := hub.Latest()
		flows := snap.Conversations
		if flows == nil {
			flows = []models.ConversationEntry{}
		}
		writeJSON(w, http.StatusOK, flows)
	}
}

func handleCommand(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CommandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid command payload", http.StatusBadRequest)
			return
		}
		cmd, err := engine.ParseCommand(req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.ErrorPayload{Message: err.Error()})
			return
		}
		if err := hub.Submit(cmd); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, models.ErrorPayload{Message: err.Error()})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
