// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package relay forwards call-setup signals (offer, answer, candidate,
// hangup) from a source user to the target user's live connection.
//
// Signals are never queued: call signaling is only meaningful while both
// parties are live, so an unreachable target is reported to the source
// immediately instead of buffered. Exactly one target per signal; group
// calling is out of scope.
package relay

import (
	"errors"

	"github.com/jamwave/signaling/internal/metrics"
	"github.com/jamwave/signaling/internal/protocol"
	"github.com/jamwave/signaling/internal/registry"
)

// ErrTargetOffline is returned when the target user has no registered
// connection. The caller surfaces it to the source as call-signal-error.
var ErrTargetOffline = errors.New("signal target offline")

// ErrDropped is returned when the target's send queue rejected the signal.
var ErrDropped = errors.New("signal dropped, target send queue full")

// Relay routes signals through the connection registry.
type Relay struct {
	registry *registry.Registry
	conns    protocol.ConnResolver
}

// New creates a Relay resolving target connections through conns.
func New(reg *registry.Registry, conns protocol.ConnResolver) *Relay {
	return &Relay{registry: reg, conns: conns}
}

// Relay pushes one call-signal event to targetUserID's connection, stamped
// with the source identity. Payload fields are forwarded untouched alongside
// the added "type" and "from" keys. Delivery is best-effort at the transport
// layer's reliability level; no acknowledgement is awaited.
func (r *Relay) Relay(sourceUserID, targetUserID, signalType string, payload map[string]interface{}) error {
	connID, ok := r.registry.Lookup(targetUserID)
	if !ok {
		metrics.SignalsRelayed.WithLabelValues(signalType, "target_offline").Inc()
		return ErrTargetOffline
	}

	conn, ok := r.conns.Conn(connID)
	if !ok {
		// Registry and connection table disagree: the connection is mid
		// teardown. From the caller's view the target is offline.
		metrics.SignalsRelayed.WithLabelValues(signalType, "target_offline").Inc()
		return ErrTargetOffline
	}

	body := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["type"] = signalType
	body["from"] = sourceUserID

	ev, err := protocol.NewEvent(protocol.EventCallSignal, body)
	if err != nil {
		return err
	}

	if !conn.Push(ev) {
		metrics.SignalsRelayed.WithLabelValues(signalType, "dropped").Inc()
		return ErrDropped
	}

	metrics.SignalsRelayed.WithLabelValues(signalType, "delivered").Inc()
	return nil
}
