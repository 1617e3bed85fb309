// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package presence mirrors connection state into the persisted presence
// store.
//
// Per user identity the state machine is unknown -> online -> offline,
// re-entrant on reconnect. The online transition also arms the store-side
// deferred offline write (a liveness lease) so the offline record lands even
// if this process dies. Store writes go through a circuit breaker: a failing
// store degrades presence freshness but never blocks or aborts connection
// cleanup.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jamwave/signaling/internal/logging"
	"github.com/jamwave/signaling/internal/metrics"
	"github.com/jamwave/signaling/internal/store"
)

const breakerName = "presence-store"

// Synchronizer owns all mutations of the persisted presence records.
type Synchronizer struct {
	store store.PresenceStore
	cb    *gobreaker.CircuitBreaker[struct{}]
}

// NewSynchronizer wraps the given store with circuit breaker protection.
//
// Breaker settings follow the store-write failure semantics: open after a
// 60% failure rate over at least 10 requests, hold open for 30 seconds, then
// probe with up to 3 requests half-open.
func NewSynchronizer(s store.PresenceStore) *Synchronizer {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("presence store circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Synchronizer{store: s, cb: cb}
}

// HandleOnline records the online transition for userID on authenticate:
// it writes the online record and arms the deferred offline write keyed to
// connID. The returned error is informational; callers log it and continue.
func (s *Synchronizer) HandleOnline(ctx context.Context, userID, connID string) error {
	now := time.Now().UTC()
	rec := store.StatusRecord{
		Status:    store.StatusOnline,
		LastSeen:  now,
		UpdatedAt: now,
		SocketID:  connID,
	}

	if err := s.write(ctx, userID, rec); err != nil {
		return err
	}

	if err := s.store.ArmOffline(ctx, userID, connID); err != nil {
		return fmt.Errorf("arm deferred offline write: %w", err)
	}
	return nil
}

// UpdateStatus records an explicit client status-update (online/away/offline)
// without re-arming the deferred write.
func (s *Synchronizer) UpdateStatus(ctx context.Context, userID, connID, status string) error {
	switch status {
	case store.StatusOnline, store.StatusAway, store.StatusOffline:
	default:
		return fmt.Errorf("invalid status %q", status)
	}

	now := time.Now().UTC()
	rec := store.StatusRecord{
		Status:    status,
		LastSeen:  now,
		UpdatedAt: now,
		SocketID:  connID,
	}
	if status == store.StatusOffline {
		rec.SocketID = ""
	}
	return s.write(ctx, userID, rec)
}

// HandleOffline records the in-process disconnect of connID: it writes the
// offline record and disarms the deferred write (the offline state is now
// known to be persisted, the lease is redundant).
func (s *Synchronizer) HandleOffline(ctx context.Context, userID, connID string) error {
	now := time.Now().UTC()
	rec := store.StatusRecord{
		Status:    store.StatusOffline,
		LastSeen:  now,
		UpdatedAt: now,
	}

	writeErr := s.write(ctx, userID, rec)

	// Disarm even when the write failed; the janitor would only repeat the
	// same failing write.
	if err := s.store.DisarmOffline(ctx, connID); err != nil {
		logging.Warn().Err(err).Str("conn_id", connID).Msg("failed to disarm deferred offline write")
	}
	return writeErr
}

// Disarm cancels the deferred write for a superseded connection without
// touching the user's status (the newer connection owns it now).
func (s *Synchronizer) Disarm(ctx context.Context, connID string) {
	if err := s.store.DisarmOffline(ctx, connID); err != nil {
		logging.Warn().Err(err).Str("conn_id", connID).Msg("failed to disarm superseded lease")
	}
}

// Heartbeat renews the liveness lease for connID. Called from the transport
// layer on pong and inbound traffic.
func (s *Synchronizer) Heartbeat(ctx context.Context, connID string) {
	if err := s.store.RenewLease(ctx, connID); err != nil {
		logging.Debug().Err(err).Str("conn_id", connID).Msg("lease renewal failed")
	}
}

// Status reads the persisted record for userID.
func (s *Synchronizer) Status(ctx context.Context, userID string) (store.StatusRecord, error) {
	return s.store.GetStatus(ctx, userID)
}

func (s *Synchronizer) write(ctx context.Context, userID string, rec store.StatusRecord) error {
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.store.SetStatus(ctx, userID, rec)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.PresenceWrites.WithLabelValues(rec.Status, "rejected").Inc()
		} else {
			metrics.PresenceWrites.WithLabelValues(rec.Status, "error").Inc()
		}
		return fmt.Errorf("presence write for %s: %w", userID, err)
	}

	metrics.PresenceWrites.WithLabelValues(rec.Status, "ok").Inc()
	return nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
