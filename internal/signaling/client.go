// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

package signaling

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/jamwave/signaling/internal/logging"
	"github.com/jamwave/signaling/internal/metrics"
	"github.com/jamwave/signaling/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB; signaling payloads are small
	sendQueueSize  = 256
)

// Client is one live websocket connection. Events from the same client are
// dispatched in the order received (the read pump is the only dispatcher);
// outbound events go through a buffered send queue drained by the write
// pump, so delivery to one client never blocks another.
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan protocol.Event
	done      chan struct{}
	limiter   *rate.Limiter
	createdAt time.Time
	closeOnce sync.Once

	// userID is set by the authenticate handler and read by the disconnect
	// cleanup; both run on the read pump goroutine.
	userID string
}

func newClient(hub *Hub, conn *websocket.Conn, limit float64, burst int) *Client {
	var limiter *rate.Limiter
	if limit > 0 {
		limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return &Client{
		id:        uuid.New().String(),
		hub:       hub,
		conn:      conn,
		send:      make(chan protocol.Event, sendQueueSize),
		done:      make(chan struct{}),
		limiter:   limiter,
		createdAt: time.Now(),
	}
}

// ID returns the opaque connection identifier.
func (c *Client) ID() string {
	return c.id
}

// UserID returns the authenticated identity, or "" before authenticate.
func (c *Client) UserID() string {
	return c.userID
}

// Push queues ev for delivery. Non-blocking: returns false when the client
// is closing or its queue is full, and the event is dropped.
func (c *Client) Push(ev protocol.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close tears down the transport. Safe to call from any goroutine and more
// than once; the read pump's exit triggers the hub's disconnect cleanup.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump reads inbound events and dispatches them through the hub.
// It owns all per-event handling for this connection, which gives FIFO
// ordering for events from the same connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.handleDisconnect(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		c.hub.heartbeat(c)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev protocol.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Str("conn_id", c.id).Msg("unexpected websocket close")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.EventErrors.WithLabelValues(ev.Type, "rate_limited").Inc()
			logging.Warn().Str("conn_id", c.id).Str("event", ev.Type).Msg("inbound event rate limit exceeded")
			continue
		}

		c.hub.dispatch(c, ev)
	}
}

// writePump drains the send queue to the websocket and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case ev := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Str("conn_id", c.id).Msg("failed to set write deadline")
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				logging.Debug().Err(err).Str("conn_id", c.id).Msg("write failed, closing connection")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// start begins the read and write pumps.
func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}
