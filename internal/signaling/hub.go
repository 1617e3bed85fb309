// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package signaling is the composition root of the real-time core: it
// accepts websocket connections, dispatches inbound events to the registry,
// room tracker, presence synchronizer and signal relay, and owns the
// connection table those components resolve deliveries through.
package signaling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/jamwave/signaling/internal/auth"
	"github.com/jamwave/signaling/internal/logging"
	"github.com/jamwave/signaling/internal/metrics"
	"github.com/jamwave/signaling/internal/presence"
	"github.com/jamwave/signaling/internal/protocol"
	"github.com/jamwave/signaling/internal/registry"
	"github.com/jamwave/signaling/internal/relay"
	"github.com/jamwave/signaling/internal/rooms"
	"github.com/jamwave/signaling/internal/store"
)

// Options configures hub behavior.
type Options struct {
	// CloseSuperseded force-closes the older physical connection when a
	// user authenticates again from elsewhere. When false the old
	// connection stays open but unreachable through the registry.
	CloseSuperseded bool

	// Per-connection inbound event rate limit (events/sec) and burst.
	// Zero disables limiting.
	EventRateLimit float64
	EventRateBurst int
}

// handlerFunc processes one inbound event on the client's read pump
// goroutine.
type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage)

// Hub is the server façade. All mutation of the registry and room tracker
// goes through its event handlers; nothing reaches them ambiently.
type Hub struct {
	registry *registry.Registry
	rooms    *rooms.Tracker
	presence *presence.Synchronizer
	relay    *relay.Relay
	verifier auth.Verifier
	opts     Options

	mu    sync.RWMutex
	conns map[string]*Client // connID -> client

	handlers map[string]handlerFunc
}

// NewHub wires the signaling core around the given presence store and
// token verifier.
func NewHub(presenceStore store.PresenceStore, verifier auth.Verifier, opts Options) *Hub {
	h := &Hub{
		registry: registry.New(),
		presence: presence.NewSynchronizer(presenceStore),
		verifier: verifier,
		opts:     opts,
		conns:    make(map[string]*Client),
	}
	h.rooms = rooms.NewTracker(h)
	h.relay = relay.New(h.registry, h)

	// Tagged-union dispatch: one handler per inbound event type.
	h.handlers = map[string]handlerFunc{
		protocol.EventAuthenticate:      h.handleAuthenticate,
		protocol.EventCallSignal:        h.requireAuth(protocol.EventCallSignal, h.handleCallSignal),
		protocol.EventTyping:            h.requireAuth(protocol.EventTyping, h.handleTyping),
		protocol.EventStatusUpdate:      h.requireAuth(protocol.EventStatusUpdate, h.handleStatusUpdate),
		protocol.EventMessageDelivered:  h.requireAuth(protocol.EventMessageDelivered, h.handleReceipt(protocol.EventMessageDelivered)),
		protocol.EventMessageRead:       h.requireAuth(protocol.EventMessageRead, h.handleReceipt(protocol.EventMessageRead)),
		protocol.EventJoinConversation:  h.requireAuth(protocol.EventJoinConversation, h.handleJoinConversation),
		protocol.EventLeaveConversation: h.requireAuth(protocol.EventLeaveConversation, h.handleLeaveConversation),
	}
	return h
}

// Attach registers a freshly upgraded websocket connection and starts its
// pumps. The connection is unauthenticated until its authenticate event.
func (h *Hub) Attach(conn *websocket.Conn) *Client {
	c := newClient(h, conn, h.opts.EventRateLimit, h.opts.EventRateBurst)

	h.mu.Lock()
	h.conns[c.id] = c
	total := len(h.conns)
	h.mu.Unlock()

	metrics.ConnectionsTotal.Inc()
	metrics.SocketConnections.Set(float64(total))
	logging.Info().Str("conn_id", c.id).Int("total_connections", total).Msg("websocket client connected")

	c.start()
	return c
}

// Conn implements protocol.ConnResolver for the room tracker and relay.
func (h *Hub) Conn(connID string) (protocol.Pusher, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connID]
	return c, ok
}

// ConnCount returns the number of open websocket connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RegisteredUserCount returns the number of authenticated identities.
func (h *Hub) RegisteredUserCount() int {
	return h.registry.Size()
}

// RegisteredUsers returns the authenticated identities in sorted order.
func (h *Hub) RegisteredUsers() []string {
	return h.registry.Users()
}

// dispatch routes one inbound event to its handler. Runs on the client's
// read pump goroutine, so events from one connection are handled FIFO.
func (h *Hub) dispatch(c *Client, ev protocol.Event) {
	metrics.EventsReceived.WithLabelValues(ev.Type).Inc()

	handler, ok := h.handlers[ev.Type]
	if !ok {
		metrics.EventErrors.WithLabelValues(ev.Type, "unknown_event").Inc()
		logging.Debug().Str("conn_id", c.id).Str("event", ev.Type).Msg("unknown event type")
		return
	}

	handler(context.Background(), c, ev.Data)
}

// requireAuth rejects events from connections that have not authenticated.
// The connection stays open; only the event is refused.
func (h *Hub) requireAuth(eventType string, next handlerFunc) handlerFunc {
	return func(ctx context.Context, c *Client, data json.RawMessage) {
		if c.userID == "" {
			metrics.EventErrors.WithLabelValues(eventType, "unauthenticated").Inc()
			c.Push(protocol.MustEvent(protocol.EventAuthError, map[string]string{
				"message": "not authenticated",
			}))
			return
		}
		next(ctx, c, data)
	}
}

func (h *Hub) handleAuthenticate(ctx context.Context, c *Client, data json.RawMessage) {
	var payload protocol.AuthenticatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		metrics.EventErrors.WithLabelValues(protocol.EventAuthenticate, "decode").Inc()
		c.Push(protocol.MustEvent(protocol.EventAuthError, map[string]string{
			"message": "malformed authenticate payload",
		}))
		return
	}

	if err := h.verifier.Verify(payload.UserID, payload.Token); err != nil {
		logging.Warn().Err(err).Str("conn_id", c.id).Str("user_id", payload.UserID).Msg("authentication failed")
		c.Push(protocol.MustEvent(protocol.EventAuthError, map[string]string{
			"message": "authentication failed",
		}))
		return
	}

	prevConnID, superseded := h.registry.Register(payload.UserID, c.id)
	if superseded {
		metrics.SupersededConnections.Inc()
		// The old connection's lease must not fire an offline write while
		// the user is live on the new connection.
		h.presence.Disarm(ctx, prevConnID)

		if h.opts.CloseSuperseded {
			if prev, ok := h.Conn(prevConnID); ok {
				if pc, ok := prev.(*Client); ok {
					logging.Info().
						Str("user_id", payload.UserID).
						Str("conn_id", prevConnID).
						Msg("closing superseded connection")
					pc.Close()
				}
			}
		}
	}

	c.userID = payload.UserID
	h.rooms.Join(protocol.UserRoom(payload.UserID), c.id)
	metrics.RegisteredUsers.Set(float64(h.registry.Size()))

	if err := h.presence.HandleOnline(ctx, payload.UserID, c.id); err != nil {
		// Presence staleness is tolerable; the session itself is fine.
		logging.Error().Err(err).Str("user_id", payload.UserID).Msg("presence online write failed")
	}

	c.Push(protocol.MustEvent(protocol.EventAuthenticated, map[string]string{
		"userId": payload.UserID,
	}))
	h.broadcastAll(protocol.MustEvent(protocol.EventUserStatusChanged, map[string]string{
		"userId":    payload.UserID,
		"status":    store.StatusOnline,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}), c.id)

	logging.Info().Str("user_id", payload.UserID).Str("conn_id", c.id).Msg("user authenticated")
}

func (h *Hub) handleCallSignal(_ context.Context, c *Client, data json.RawMessage) {
	var payload protocol.CallSignalPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.To == "" {
		metrics.EventErrors.WithLabelValues(protocol.EventCallSignal, "decode").Inc()
		c.Push(protocol.MustEvent(protocol.EventCallSignalError, map[string]string{
			"reason": "malformed call signal",
		}))
		return
	}

	err := h.relay.Relay(c.userID, payload.To, payload.Type, payload.Extra)
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrTargetOffline):
		// Reported synchronously to the source; signals are never queued
		// for offline targets.
		c.Push(protocol.MustEvent(protocol.EventCallSignalError, map[string]string{
			"to":     payload.To,
			"reason": "target offline",
		}))
	case errors.Is(err, relay.ErrDropped):
		logging.Warn().
			Str("from", c.userID).
			Str("to", payload.To).
			Str("signal", payload.Type).
			Msg("call signal dropped, target queue full")
	default:
		logging.Error().Err(err).Str("from", c.userID).Str("to", payload.To).Msg("call signal relay failed")
	}
}

func (h *Hub) handleTyping(_ context.Context, c *Client, data json.RawMessage) {
	var payload protocol.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" {
		metrics.EventErrors.WithLabelValues(protocol.EventTyping, "decode").Inc()
		return
	}

	h.rooms.Broadcast(protocol.ConversationRoom(payload.ConversationID), protocol.MustEvent(protocol.EventTyping, map[string]interface{}{
		"conversationId": payload.ConversationID,
		"userId":         c.userID,
		"isTyping":       payload.IsTyping,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}), c.id)
}

func (h *Hub) handleStatusUpdate(ctx context.Context, c *Client, data json.RawMessage) {
	var payload protocol.StatusUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		metrics.EventErrors.WithLabelValues(protocol.EventStatusUpdate, "decode").Inc()
		return
	}

	if err := h.presence.UpdateStatus(ctx, c.userID, c.id, payload.Status); err != nil {
		logging.Error().Err(err).Str("user_id", c.userID).Msg("status update write failed")
		return
	}

	h.broadcastAll(protocol.MustEvent(protocol.EventUserStatusChanged, map[string]string{
		"userId":    c.userID,
		"status":    payload.Status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}), c.id)
}

func (h *Hub) handleReceipt(eventType string) handlerFunc {
	return func(_ context.Context, c *Client, data json.RawMessage) {
		var payload protocol.ReceiptPayload
		if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" {
			metrics.EventErrors.WithLabelValues(eventType, "decode").Inc()
			return
		}

		h.rooms.Broadcast(protocol.ConversationRoom(payload.ConversationID), protocol.MustEvent(eventType, map[string]interface{}{
			"messageId":      payload.MessageID,
			"conversationId": payload.ConversationID,
			"userId":         c.userID,
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		}), c.id)
	}
}

func (h *Hub) handleJoinConversation(_ context.Context, c *Client, data json.RawMessage) {
	var conversationID string
	if err := json.Unmarshal(data, &conversationID); err != nil || conversationID == "" {
		metrics.EventErrors.WithLabelValues(protocol.EventJoinConversation, "decode").Inc()
		return
	}
	h.rooms.Join(protocol.ConversationRoom(conversationID), c.id)
}

func (h *Hub) handleLeaveConversation(_ context.Context, c *Client, data json.RawMessage) {
	var conversationID string
	if err := json.Unmarshal(data, &conversationID); err != nil || conversationID == "" {
		metrics.EventErrors.WithLabelValues(protocol.EventLeaveConversation, "decode").Inc()
		return
	}
	h.rooms.Leave(protocol.ConversationRoom(conversationID), c.id)
}

// handleDisconnect runs the in-process disconnect cleanup for c. Called
// exactly once from the read pump's exit path. Registry and membership
// cleanup proceed even when the presence write fails.
func (h *Hub) handleDisconnect(c *Client) {
	h.mu.Lock()
	delete(h.conns, c.id)
	total := len(h.conns)
	h.mu.Unlock()

	metrics.SocketConnections.Set(float64(total))

	h.rooms.LeaveAll(c.id)

	if c.userID == "" {
		logging.Info().Str("conn_id", c.id).Int("total_connections", total).Msg("websocket client disconnected")
		return
	}

	// Guarded unregister: if this connection was superseded by a newer
	// authenticate, the registry still points at the newer connection and
	// this cleanup must not touch it.
	if h.registry.Unregister(c.userID, c.id) {
		metrics.RegisteredUsers.Set(float64(h.registry.Size()))

		if err := h.presence.HandleOffline(context.Background(), c.userID, c.id); err != nil {
			logging.Error().Err(err).Str("user_id", c.userID).Msg("presence offline write failed")
		}

		h.broadcastAll(protocol.MustEvent(protocol.EventUserStatusChanged, map[string]string{
			"userId":    c.userID,
			"status":    store.StatusOffline,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}), c.id)
	}

	logging.Info().
		Str("conn_id", c.id).
		Str("user_id", c.userID).
		Int("total_connections", total).
		Msg("websocket client disconnected")
}

// heartbeat renews the client's liveness lease. Invoked from the pong
// handler on the read pump.
func (h *Hub) heartbeat(c *Client) {
	if c.userID != "" {
		h.presence.Heartbeat(context.Background(), c.id)
	}
}

// broadcastAll pushes ev to every open connection except excludeConnID.
// Fire-and-forget per recipient.
func (h *Hub) broadcastAll(ev protocol.Event, excludeConnID string) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.conns))
	for id, c := range h.conns {
		if id != excludeConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.Push(ev) {
			metrics.BroadcastDrops.Inc()
		}
	}
}

// RunWithContext keeps the hub alive under suture supervision. On context
// cancellation every client is closed before returning ctx.Err().
func (h *Hub) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			logging.Info().
				Str("component", "signaling-hub").
				Msg("signaling hub stopped")
			return ctx.Err()
		case <-ticker.C:
			logging.Debug().
				Int("connections", h.ConnCount()).
				Int("registered_users", h.RegisteredUserCount()).
				Int("rooms", h.rooms.RoomCount()).
				Msg("signaling hub stats")
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
	logging.Info().Int("clients_closed", len(clients)).Msg("closed all websocket clients during shutdown")
}
