// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package registry maps authenticated user identities to their single live
// connection identifier.
//
// The registry enforces the at-most-one-connection-per-user invariant: a new
// Register for an already-mapped user silently supersedes the previous
// mapping. Unregister only removes the mapping when the caller still owns it,
// which guards against the stale-disconnect race where the cleanup of a
// superseded connection would otherwise tear down a newer registration.
package registry

import (
	"sort"
	"sync"
)

// Registry is safe for concurrent use by every connection's event handlers.
type Registry struct {
	mu    sync.RWMutex
	users map[string]string // userID -> connID
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{users: make(map[string]string)}
}

// Register maps userID to connID, unconditionally overwriting any existing
// mapping. It returns the superseded connection id and whether one existed,
// so the caller can apply its superseded-connection policy.
func (r *Registry) Register(userID, connID string) (prevConnID string, superseded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prevConnID, superseded = r.users[userID]
	r.users[userID] = connID
	if prevConnID == connID {
		superseded = false
	}
	return prevConnID, superseded
}

// Lookup returns the current connection id for userID.
func (r *Registry) Lookup(userID string) (connID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok = r.users[userID]
	return connID, ok
}

// Unregister removes the mapping for userID only if it still points at
// connID. A mismatch means the user re-authenticated from another connection
// and the caller's mapping was already superseded; the call is then a no-op.
// It reports whether the mapping was removed.
func (r *Registry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[userID]
	if !ok || current != connID {
		return false
	}
	delete(r.users, userID)
	return true
}

// Size returns the count of currently mapped identities.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Users returns the mapped user identities in sorted order.
// Used by the status endpoint.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
