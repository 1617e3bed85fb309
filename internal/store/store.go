// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package store persists user presence records and provides the deferred
// offline-write capability the presence synchronizer arms per connection.
//
// The deferred write is modeled as a liveness lease: arming registers a lease
// keyed by the connection id, the transport layer renews it on pong and
// inbound traffic, and a janitor sweeps expired leases into offline presence
// writes. Because the sweep runs independently of the websocket handlers, the
// offline record is written even when a connection drops without a close
// frame or the handler goroutine is gone.
package store

import (
	"context"
	"errors"
	"time"
)

// Presence states mirrored into the store.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// ErrStatusNotFound is returned when no presence record exists for a user.
var ErrStatusNotFound = errors.New("presence status not found")

// StatusRecord is the persisted shape of userStatus/{userId}.
// SocketID is empty once the user is offline.
type StatusRecord struct {
	Status    string    `json:"status"`
	LastSeen  time.Time `json:"lastSeen"`
	UpdatedAt time.Time `json:"updatedAt"`
	SocketID  string    `json:"socketId,omitempty"`
}

// PresenceStore is the minimal interface the signaling core needs from the
// external persisted store.
type PresenceStore interface {
	// SetStatus writes the presence record for userID.
	SetStatus(ctx context.Context, userID string, rec StatusRecord) error

	// GetStatus reads the presence record for userID.
	// Returns ErrStatusNotFound when none exists.
	GetStatus(ctx context.Context, userID string) (StatusRecord, error)

	// ArmOffline registers the deferred offline write for (userID, connID).
	// When the connection's lease expires without renewal the store writes
	// an offline record for userID on its own.
	ArmOffline(ctx context.Context, userID, connID string) error

	// RenewLease extends the liveness lease for connID. Unknown leases are
	// a no-op (the lease may already have been disarmed or expired).
	RenewLease(ctx context.Context, connID string) error

	// DisarmOffline cancels the deferred write for connID, used when the
	// disconnect was handled in-process or the registration was superseded.
	DisarmOffline(ctx context.Context, connID string) error

	// Close releases store resources.
	Close() error
}

// lease is the persisted deferred-write registration.
type lease struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}
