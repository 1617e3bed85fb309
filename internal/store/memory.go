// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements PresenceStore with in-process maps. Records do not
// survive a restart; it exists for tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	statuses map[string]StatusRecord
	leases   map[string]lease
	leaseTTL time.Duration
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(leaseTTL time.Duration) *MemoryStore {
	if leaseTTL <= 0 {
		leaseTTL = 90 * time.Second
	}
	return &MemoryStore{
		statuses: make(map[string]StatusRecord),
		leases:   make(map[string]lease),
		leaseTTL: leaseTTL,
	}
}

func (s *MemoryStore) SetStatus(_ context.Context, userID string, rec StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[userID] = rec
	return nil
}

func (s *MemoryStore) GetStatus(_ context.Context, userID string) (StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.statuses[userID]
	if !ok {
		return StatusRecord{}, ErrStatusNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ArmOffline(_ context.Context, userID, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leases[connID] = lease{UserID: userID, ExpiresAt: time.Now().Add(s.leaseTTL)}
	return nil
}

func (s *MemoryStore) RenewLease(_ context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[connID]; ok {
		l.ExpiresAt = time.Now().Add(s.leaseTTL)
		s.leases[connID] = l
	}
	return nil
}

func (s *MemoryStore) DisarmOffline(_ context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, connID)
	return nil
}

// SweepExpired mirrors BadgerStore.SweepExpired for parity in tests.
func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for connID, l := range s.leases {
		if l.ExpiresAt.Before(now) {
			s.statuses[l.UserID] = StatusRecord{
				Status:    StatusOffline,
				LastSeen:  now,
				UpdatedAt: now,
			}
			delete(s.leases, connID)
			count++
		}
	}
	return count, nil
}

// LeaseCount returns the number of armed leases. Test helper.
func (s *MemoryStore) LeaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leases)
}

func (s *MemoryStore) Close() error {
	return nil
}
