package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/schollaertel/clocksynk/internal/clock"
	"github.com/schollaertel/clocksynk/internal/game"
	"github.com/schollaertel/clocksynk/internal/models"
	"github.com/schollaertel/clocksynk/internal/store"
)

// Server is the HTTP and WebSocket surface of the scoreboard: mutation
// endpoints for the scorekeeper, a snapshot endpoint and a spectator
// WebSocket feed. Sessions are created lazily per game ID with the configured
// role, so a first request to an unknown game initializes its record.
type Server struct {
	store      store.GameStateStore
	clock      clock.TimeSource
	hub        *Hub
	sessionCfg game.Config

	mu       sync.Mutex
	sessions map[string]*game.Controller
}

// snapshotEvent is the WebSocket envelope wrapping a display snapshot.
type snapshotEvent struct {
	Type      string        `json:"type"`
	GameID    string        `json:"game_id"`
	Timestamp time.Time     `json:"timestamp"`
	Data      game.Snapshot `json:"data"`
}

// NewServer builds the gateway. sessionCfg is a template; its GameID field is
// replaced per session.
func NewServer(st store.GameStateStore, ts clock.TimeSource, hub *Hub, sessionCfg game.Config) *Server {
	return &Server{
		store:      st,
		clock:      ts,
		hub:        hub,
		sessionCfg: sessionCfg,
		sessions:   make(map[string]*game.Controller),
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/games/{id}", s.handleGetGame)
	mux.HandleFunc("POST /api/games/{id}/score", s.handleScore)
	mux.HandleFunc("POST /api/games/{id}/period", s.handlePeriod)
	mux.HandleFunc("POST /api/games/{id}/clock/start", s.handleClockStart)
	mux.HandleFunc("POST /api/games/{id}/clock/pause", s.handleClockPause)
	mux.HandleFunc("POST /api/games/{id}/clock/reset", s.handleClockReset)
	mux.HandleFunc("POST /api/games/{id}/clock", s.handleClockSet)
	mux.HandleFunc("POST /api/games/{id}/penalties", s.handleAddPenalty)
	mux.HandleFunc("DELETE /api/games/{id}/penalties/{penaltyID}", s.handleRemovePenalty)
	mux.HandleFunc("GET /ws/games/{id}", s.handleWebSocket)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)
}

// session returns the controller for a game, starting one on first access.
// Sessions outlive the request that created them, so Start gets a background
// context rather than the request's.
func (s *Server) session(gameID string) (*game.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctrl, ok := s.sessions[gameID]; ok {
		return ctrl, nil
	}

	cfg := s.sessionCfg
	cfg.GameID = gameID
	ctrl := game.New(s.store, s.clock, cfg, func(snap game.Snapshot) {
		s.broadcast(snap)
	})
	if err := ctrl.Start(context.Background()); err != nil {
		return nil, err
	}
	s.sessions[gameID] = ctrl
	log.Info().Str("game_id", gameID).Str("role", string(ctrl.Role())).Msg("game session started")
	return ctrl, nil
}

func (s *Server) broadcast(snap game.Snapshot) {
	payload, err := json.Marshal(snapshotEvent{
		Type:      "StateSync",
		GameID:    snap.GameID,
		Timestamp: snap.AsOf,
		Data:      snap,
	})
	if err != nil {
		log.Error().Err(err).Str("game_id", snap.GameID).Msg("failed to marshal snapshot event")
		return
	}
	s.hub.Broadcast(snap.GameID, payload)
}

// Shutdown stops every session deterministically.
func (s *Server) Shutdown() {
	s.mu.Lock()
	sessions := make([]*game.Controller, 0, len(s.sessions))
	for _, ctrl := range s.sessions {
		sessions = append(sessions, ctrl)
	}
	s.sessions = make(map[string]*game.Controller)
	s.mu.Unlock()

	for _, ctrl := range sessions {
		ctrl.Stop()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.session(r.PathValue("id"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Team  models.Team `json:"team"`
		Delta int         `json:"delta"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.applyMutation(w, r, func(ctrl *game.Controller) error {
		return ctrl.AdjustScore(req.Team, req.Delta)
	})
}

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta int `json:"delta"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.applyMutation(w, r, func(ctrl *game.Controller) error {
		return ctrl.AdjustPeriod(req.Delta)
	})
}

func (s *Server) handleClockStart(w http.ResponseWriter, r *http.Request) {
	s.applyMutation(w, r, func(ctrl *game.Controller) error {
		return ctrl.StartClock()
	})
}

func (s *Server) handleClockPause(w http.ResponseWriter, r *http.Request) {
	s.applyMutation(w, r, func(ctrl *game.Controller) error {
		return ctrl.PauseClock()
	})
}

func (s *Server) handleClockReset(w http.ResponseWriter, r *http.Request) {
	s.applyMutation(w, r, func(ctrl *game.Controller) error {
		return ctrl.ResetGame()
	})
}

func (s *Server) handleClockSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes int `json:"minutes"`
		Seconds int `json:"seconds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.applyMutation(w, r, func(ctrl *game.Controller) error {
		return ctrl.SetClock(req.Minutes, req.Seconds)
	})
}

func (s *Server) handleAddPenalty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Team         models.Team `json:"team"`
		PlayerNumber string      `json:"player_number"`
		Minutes      int         `json:"minutes"`
		Seconds      int         `json:"seconds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.applyMutation(w, r, func(ctrl *game.Controller) error {
		return ctrl.AddPenalty(req.Team, req.PlayerNumber, req.Minutes, req.Seconds)
	})
}

func (s *Server) handleRemovePenalty(w http.ResponseWriter, r *http.Request) {
	penaltyID := r.PathValue("penaltyID")
	s.applyMutation(w, r, func(ctrl *game.Controller) error {
		return ctrl.RemovePenalty(penaltyID)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	ctrl, err := s.session(gameID)
	if err != nil {
		writeOpError(w, err)
		return
	}

	snap := ctrl.Snapshot()
	initial, err := json.Marshal(snapshotEvent{
		Type:      "StateSync",
		GameID:    gameID,
		Timestamp: snap.AsOf,
		Data:      snap,
	})
	if err != nil {
		http.Error(w, "failed to encode snapshot", http.StatusInternalServerError)
		return
	}
	if err := s.hub.Upgrade(w, r, gameID, initial); err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to upgrade websocket connection")
	}
}

// applyMutation runs a scorekeeper operation and writes the resulting
// snapshot. A store push failure still reports an error even though the local
// change is kept; the client decides whether to retry.
func (s *Server) applyMutation(w http.ResponseWriter, r *http.Request, op func(*game.Controller) error) {
	ctrl, err := s.session(r.PathValue("id"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	if err := op(ctrl); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeOpError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, clock.ErrClockExpired):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, game.ErrReadOnly):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "this node runs in spectator role"})
	case errors.Is(err, game.ErrSessionClosed):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "session closed"})
	case errors.Is(err, store.ErrUnavailable):
		// The change was applied locally; only the push failed.
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "store unavailable, change kept locally"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
