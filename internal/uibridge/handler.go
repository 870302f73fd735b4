package uibridge

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mkral/clueroom/internal/engine"
	"github.com/mkral/clueroom/internal/room"
)

// ClientIntent is one message from a UI client. Action decides which of
// the optional fields apply.
type ClientIntent struct {
	// Action is one of describe, guess, review:load, review:next,
	// review:prev.
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
	Round  int    `json:"round,omitempty"`
}

// Rooms is what the bridge needs from the session layer.
type Rooms interface {
	OpenLive(roomID int) (*engine.Session, error)
	OpenReview(roomID, round int) (*engine.ReviewNavigator, error)
	Session(roomID int) (*engine.Session, bool)
	CloseRoom(roomID int)
}

// Handler exposes the WebSocket room endpoint and a plain HTTP view
// endpoint for the UI.
type Handler struct {
	ctx   context.Context
	cm    *ConnectionManager
	rooms Rooms
}

// NewHandler creates the bridge HTTP handler. ctx bounds the review
// fetches triggered by navigation intents.
func NewHandler(ctx context.Context, cm *ConnectionManager, rooms Rooms) *Handler {
	return &Handler{ctx: ctx, cm: cm, rooms: rooms}
}

// RegisterRoutes wires the bridge routes onto a mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/rooms/", h.handleRoomSocket)
	mux.HandleFunc("/api/rooms/", h.handleRoomView)
	log.Info().Msg("ui bridge routes registered")
}

// handleRoomSocket handles GET /ws/rooms/{id}[?review=1&round=N].
func (h *Handler) handleRoomSocket(w http.ResponseWriter, r *http.Request) {
	roomID, ok := roomIDFromPath(r.URL.Path, "/ws/rooms/", "")
	if !ok {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("review") == "1" {
		round := 1
		if n, err := strconv.Atoi(r.URL.Query().Get("round")); err == nil {
			round = n
		}
		nav, err := h.rooms.OpenReview(roomID, round)
		if err != nil {
			log.Error().Err(err).Int("room_id", roomID).Msg("failed to open review view")
			http.Error(w, "failed to open review view", http.StatusBadGateway)
			return
		}
		if err := h.cm.Upgrade(w, r, roomID, h.reviewIntent(nav)); err != nil {
			log.Error().Err(err).Int("room_id", roomID).Msg("review upgrade failed")
		}
		return
	}

	if _, err := h.rooms.OpenLive(roomID); err != nil {
		log.Error().Err(err).Int("room_id", roomID).Msg("failed to open live session")
		http.Error(w, "failed to open room session", http.StatusBadGateway)
		return
	}
	if err := h.cm.Upgrade(w, r, roomID, h.liveIntent); err != nil {
		log.Error().Err(err).Int("room_id", roomID).Msg("live upgrade failed")
	}
}

// liveIntent routes live-session intents. Submit legality is enforced by
// the engine against the model; the bridge only reports the refusal.
func (h *Handler) liveIntent(roomID int, msg ClientIntent) {
	session, ok := h.rooms.Session(roomID)
	if !ok {
		return
	}

	var err error
	switch msg.Action {
	case "describe":
		err = session.SubmitDescription(msg.Text)
	case "guess":
		err = session.SubmitGuess(msg.Text)
	default:
		log.Warn().Str("action", msg.Action).Msg("unknown ui intent")
		return
	}
	if err != nil {
		log.Warn().Err(err).Int("room_id", roomID).Str("action", msg.Action).Msg("ui intent refused")
	}
}

// reviewIntent routes review navigation. There are no submit actions in
// review mode, by construction.
func (h *Handler) reviewIntent(nav *engine.ReviewNavigator) func(roomID int, msg ClientIntent) {
	return func(roomID int, msg ClientIntent) {
		var err error
		switch msg.Action {
		case "review:load":
			err = nav.Load(h.ctx, msg.Round)
		case "review:next":
			err = nav.Next(h.ctx)
		case "review:prev":
			err = nav.Prev(h.ctx)
		default:
			log.Warn().Str("action", msg.Action).Msg("ignoring non-review intent in review mode")
			return
		}
		if err != nil {
			log.Error().Err(err).Int("room_id", roomID).Str("action", msg.Action).Msg("review navigation failed")
		}
	}
}

// handleRoomView handles GET /api/rooms/{id}/view.
func (h *Handler) handleRoomView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roomID, ok := roomIDFromPath(r.URL.Path, "/api/rooms/", "/view")
	if !ok {
		http.NotFound(w, r)
		return
	}

	session, ok := h.rooms.Session(roomID)
	var view room.View
	if ok {
		view = session.View()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		log.Error().Err(err).Msg("failed to encode room view")
	}
}

func roomIDFromPath(path, prefix, suffix string) (int, bool) {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return 0, false
	}
	idStr := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
