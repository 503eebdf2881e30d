package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auth"
)

// Handler serves the websocket endpoint and the read-only state routes
type Handler struct {
	manager  *ConnectionManager
	verifier *auth.Verifier
}

// NewHandler creates a Handler; with a nil verifier clients connect anonymously
func NewHandler(cm *ConnectionManager, verifier *auth.Verifier) *Handler {
	return &Handler{manager: cm, verifier: verifier}
}

// Routes mounts the gateway endpoints on a chi router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws/auction", h.HandleAuctionConnection)
	r.Get("/ws/stats", h.HandleConnectionStats)
	r.Get("/api/state", h.HandleState)
	return r
}

// HandleAuctionConnection authenticates the caller and upgrades to a websocket.
// Browsers cannot set headers on a websocket handshake, so the token may also
// come from the token query parameter.
func (h *Handler) HandleAuctionConnection(w http.ResponseWriter, r *http.Request) {
	var id auth.Identity
	if h.verifier != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = auth.FromAuthorization(r.Header.Get("Authorization"))
		}
		parsed, err := h.verifier.Parse(token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		id = parsed
	}

	room := r.URL.Query().Get("room")
	if room == "" {
		room = RoomAuction
	}

	if err := h.manager.UpgradeConnection(w, r, id.TeamID, id.TeamName, room); err != nil {
		// the upgrader has already written the error response
		log.Error().Err(err).Int64("team_id", id.TeamID).Msg("failed to upgrade websocket connection")
	}
}

// HandleConnectionStats reports connected clients
func (h *Handler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Stats())
}

// HandleState returns the same snapshot a client receives on join
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.manager.snapshots == nil {
		http.Error(w, "state not available", http.StatusNotFound)
		return
	}
	snap, err := h.manager.snapshots.Snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to build state snapshot")
		http.Error(w, "failed to load state", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}
