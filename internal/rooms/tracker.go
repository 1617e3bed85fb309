// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package rooms tracks which connections are subscribed to which logical
// room (chat room, 1:1 or group conversation) and fans events out to room
// members.
//
// Membership is a set: duplicate joins are idempotent. A room exists only
// while it has members; the entry is dropped as soon as its set empties.
// A reverse index (connection -> rooms) keeps LeaveAll proportional to the
// number of rooms the connection actually joined.
package rooms

import (
	"sync"

	"github.com/jamwave/signaling/internal/logging"
	"github.com/jamwave/signaling/internal/metrics"
	"github.com/jamwave/signaling/internal/protocol"
)

// Tracker is safe for concurrent use by every connection's event handlers.
type Tracker struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]struct{} // roomID -> set of connIDs
	byConn  map[string]map[string]struct{} // connID -> set of roomIDs
	resolve protocol.ConnResolver
}

// NewTracker creates a Tracker that delivers events through resolve.
func NewTracker(resolve protocol.ConnResolver) *Tracker {
	return &Tracker{
		rooms:   make(map[string]map[string]struct{}),
		byConn:  make(map[string]map[string]struct{}),
		resolve: resolve,
	}
}

// Join adds connID to roomID, creating the room lazily. Idempotent.
func (t *Tracker) Join(roomID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		t.rooms[roomID] = members
		metrics.RoomsActive.Inc()
	}
	members[connID] = struct{}{}

	joined, ok := t.byConn[connID]
	if !ok {
		joined = make(map[string]struct{})
		t.byConn[connID] = joined
	}
	joined[roomID] = struct{}{}
}

// Leave removes connID from roomID. The room entry is dropped entirely when
// its member set empties; no dangling empty sets remain.
func (t *Tracker) Leave(roomID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaveLocked(roomID, connID)
}

func (t *Tracker) leaveLocked(roomID, connID string) {
	if members, ok := t.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(t.rooms, roomID)
			metrics.RoomsActive.Dec()
		}
	}
	if joined, ok := t.byConn[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(t.byConn, connID)
		}
	}
}

// LeaveAll removes connID from every room it belongs to. Called on
// disconnect. Cost is proportional to the rooms this connection joined.
func (t *Tracker) LeaveAll(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for roomID := range t.byConn[connID] {
		t.leaveLocked(roomID, connID)
	}
}

// Broadcast delivers ev to every member of roomID except excludeConnID
// (pass "" to deliver to all members). Delivery is fire-and-forget per
// recipient: a full or closed send queue on one member never prevents
// delivery to the others and never surfaces to the caller.
func (t *Tracker) Broadcast(roomID string, ev protocol.Event, excludeConnID string) {
	t.mu.RLock()
	members := make([]string, 0, len(t.rooms[roomID]))
	for connID := range t.rooms[roomID] {
		if connID != excludeConnID {
			members = append(members, connID)
		}
	}
	t.mu.RUnlock()

	for _, connID := range members {
		conn, ok := t.resolve.Conn(connID)
		if !ok {
			metrics.BroadcastDrops.Inc()
			continue
		}
		if conn.Push(ev) {
			metrics.BroadcastDeliveries.Inc()
		} else {
			metrics.BroadcastDrops.Inc()
			logging.Debug().
				Str("room", roomID).
				Str("conn_id", connID).
				Str("event", ev.Type).
				Msg("dropped room delivery, send queue full")
		}
	}
}

// Members returns the current member connection ids of roomID.
func (t *Tracker) Members(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	members := make([]string, 0, len(t.rooms[roomID]))
	for connID := range t.rooms[roomID] {
		members = append(members, connID)
	}
	return members
}

// RoomCount returns the number of rooms with at least one member.
func (t *Tracker) RoomCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}

// Rooms returns the room ids connID currently belongs to.
func (t *Tracker) Rooms(connID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	joined := make([]string, 0, len(t.byConn[connID]))
	for roomID := range t.byConn[connID] {
		joined = append(joined, roomID)
	}
	return joined
}
