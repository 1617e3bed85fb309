// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jamwave/signaling/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Output: io.Discard})
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(Options{
		Path:            "", // in-memory
		LeaseTTL:        50 * time.Millisecond,
		JanitorInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestBadgerStore_SetGetStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	want := StatusRecord{Status: StatusOnline, LastSeen: now, UpdatedAt: now, SocketID: "conn-1"}
	if err := s.SetStatus(ctx, "alice", want); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	got, err := s.GetStatus(ctx, "alice")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if got.Status != StatusOnline || got.SocketID != "conn-1" {
		t.Errorf("GetStatus = %+v, want status=online socketId=conn-1", got)
	}
	if !got.LastSeen.Equal(want.LastSeen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, want.LastSeen)
	}
}

func TestBadgerStore_GetStatusNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetStatus(context.Background(), "ghost")
	if !errors.Is(err, ErrStatusNotFound) {
		t.Errorf("GetStatus for unknown user = %v, want ErrStatusNotFound", err)
	}
}

func TestBadgerStore_DeferredOfflineWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetStatus(ctx, "alice", StatusRecord{Status: StatusOnline, SocketID: "conn-1"}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := s.ArmOffline(ctx, "alice", "conn-1"); err != nil {
		t.Fatalf("ArmOffline: %v", err)
	}

	// Simulated abrupt transport loss: no explicit disconnect handling, the
	// lease simply expires and the sweep fires the deferred write.
	swept, err := s.SweepExpired(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if swept != 1 {
		t.Fatalf("SweepExpired swept %d leases, want 1", swept)
	}

	rec, err := s.GetStatus(ctx, "alice")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if rec.Status != StatusOffline {
		t.Errorf("status after lease expiry = %q, want offline", rec.Status)
	}
	if rec.SocketID != "" {
		t.Errorf("socketId after lease expiry = %q, want empty", rec.SocketID)
	}
}

func TestBadgerStore_RenewKeepsLeaseAlive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ArmOffline(ctx, "alice", "conn-1"); err != nil {
		t.Fatalf("ArmOffline: %v", err)
	}
	if err := s.RenewLease(ctx, "conn-1"); err != nil {
		t.Fatalf("RenewLease: %v", err)
	}

	// Sweep at a time before the renewed expiry: nothing expires.
	swept, err := s.SweepExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if swept != 0 {
		t.Errorf("SweepExpired swept %d leases, want 0 after renewal", swept)
	}
}

func TestBadgerStore_DisarmCancelsDeferredWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetStatus(ctx, "alice", StatusRecord{Status: StatusOnline, SocketID: "conn-1"}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := s.ArmOffline(ctx, "alice", "conn-1"); err != nil {
		t.Fatalf("ArmOffline: %v", err)
	}
	if err := s.DisarmOffline(ctx, "conn-1"); err != nil {
		t.Fatalf("DisarmOffline: %v", err)
	}

	swept, err := s.SweepExpired(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if swept != 0 {
		t.Errorf("SweepExpired swept %d leases, want 0 after disarm", swept)
	}

	rec, err := s.GetStatus(ctx, "alice")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if rec.Status != StatusOnline {
		t.Errorf("status after disarm = %q, want online (deferred write canceled)", rec.Status)
	}
}

func TestBadgerStore_RenewUnknownLeaseIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.RenewLease(context.Background(), "missing"); err != nil {
		t.Errorf("RenewLease for unknown lease = %v, want nil", err)
	}
}

func TestBadgerStore_JanitorRunWithContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	if err := s.ArmOffline(ctx, "alice", "conn-1"); err != nil {
		t.Fatalf("ArmOffline: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.RunWithContext(ctx) }()

	// Lease TTL is 50ms and the janitor ticks every 10ms; the deferred
	// write must land without any explicit disconnect handling.
	deadline := time.After(2 * time.Second)
	for {
		rec, err := s.GetStatus(ctx, "alice")
		if err == nil && rec.Status == StatusOffline {
			break
		}
		select {
		case <-deadline:
			t.Fatal("janitor did not write offline status before deadline")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("RunWithContext returned %v, want context.Canceled", err)
	}
}

func TestMemoryStore_ParityWithBadger(t *testing.T) {
	s := NewMemoryStore(50 * time.Millisecond)
	ctx := context.Background()

	if err := s.SetStatus(ctx, "bob", StatusRecord{Status: StatusAway, SocketID: "c9"}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	rec, err := s.GetStatus(ctx, "bob")
	if err != nil || rec.Status != StatusAway {
		t.Fatalf("GetStatus = %+v, %v; want away", rec, err)
	}

	if err := s.ArmOffline(ctx, "bob", "c9"); err != nil {
		t.Fatalf("ArmOffline: %v", err)
	}
	swept, err := s.SweepExpired(ctx, time.Now().Add(time.Second))
	if err != nil || swept != 1 {
		t.Fatalf("SweepExpired = %d, %v; want 1, nil", swept, err)
	}
	rec, _ = s.GetStatus(ctx, "bob")
	if rec.Status != StatusOffline {
		t.Errorf("status after sweep = %q, want offline", rec.Status)
	}
}
