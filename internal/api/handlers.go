// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/jamwave/signaling/internal/config"
	"github.com/jamwave/signaling/internal/logging"
	"github.com/jamwave/signaling/internal/signaling"
)

// Handler serves the HTTP surface: health and status snapshots plus the
// websocket upgrade endpoint.
type Handler struct {
	hub       *signaling.Hub
	cfg       *config.Config
	startTime time.Time
}

// NewHandler creates the HTTP handler set around the signaling hub.
func NewHandler(hub *signaling.Hub, cfg *config.Config) *Handler {
	return &Handler{
		hub:       hub,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	ConnectedUsers    int       `json:"connectedUsers"`
	SocketConnections int       `json:"socketConnections"`
	Uptime            float64   `json:"uptime"`
}

// statusResponse is the GET /status body.
type statusResponse struct {
	Status           string    `json:"status"`
	ConnectedUsers   []string  `json:"connectedUsers"`
	TotalConnections int       `json:"totalConnections"`
	Timestamp        time.Time `json:"timestamp"`
}

// Health reports liveness and headline connection counts.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:            "ok",
		Timestamp:         time.Now().UTC(),
		ConnectedUsers:    h.hub.RegisteredUserCount(),
		SocketConnections: h.hub.ConnCount(),
		Uptime:            time.Since(h.startTime).Seconds(),
	})
}

// Status reports the authenticated user identities currently connected.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	users := h.hub.RegisteredUsers()
	if users == nil {
		users = []string{}
	}
	respondJSON(w, http.StatusOK, statusResponse{
		Status:           "ok",
		ConnectedUsers:   users,
		TotalConnections: h.hub.ConnCount(),
		Timestamp:        time.Now().UTC(),
	})
}

// WebSocket upgrades the request and hands the connection to the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	h.hub.Attach(conn)
}

// getUpgrader builds the websocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkOrigin validates browser websocket origins against the configured
// allow list. Requests without an Origin header (native clients, scripts)
// are allowed; browsers always send one.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if h.cfg == nil {
		return true
	}

	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
	return false
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}
