// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

package rooms

import (
	"io"
	"sort"
	"testing"

	"github.com/jamwave/signaling/internal/logging"
	"github.com/jamwave/signaling/internal/protocol"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Output: io.Discard})
}

// fakeConn records pushed events and can simulate a full send queue.
type fakeConn struct {
	events []protocol.Event
	full   bool
}

func (f *fakeConn) Push(ev protocol.Event) bool {
	if f.full {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

// fakeResolver maps conn ids to fake connections.
type fakeResolver struct {
	conns map[string]*fakeConn
}

func newFakeResolver(ids ...string) *fakeResolver {
	r := &fakeResolver{conns: make(map[string]*fakeConn)}
	for _, id := range ids {
		r.conns[id] = &fakeConn{}
	}
	return r
}

func (r *fakeResolver) Conn(connID string) (protocol.Pusher, bool) {
	c, ok := r.conns[connID]
	return c, ok
}

func TestTracker_JoinLeavePrunesRoom(t *testing.T) {
	tr := NewTracker(newFakeResolver())

	tr.Join("room-1", "c1")
	tr.Leave("room-1", "c1")

	if tr.RoomCount() != 0 {
		t.Errorf("RoomCount after join+leave = %d, want 0 (room must be pruned, not left empty)", tr.RoomCount())
	}
}

func TestTracker_JoinIsIdempotent(t *testing.T) {
	tr := NewTracker(newFakeResolver())

	tr.Join("room-1", "c1")
	tr.Join("room-1", "c1")

	if got := len(tr.Members("room-1")); got != 1 {
		t.Errorf("duplicate join produced %d members, want 1", got)
	}
}

func TestTracker_LeaveAll(t *testing.T) {
	tr := NewTracker(newFakeResolver())

	for _, room := range []string{"r1", "r2", "r3"} {
		tr.Join(room, "c1")
	}
	tr.Join("r2", "c2")

	tr.LeaveAll("c1")

	for _, room := range []string{"r1", "r3"} {
		if len(tr.Members(room)) != 0 {
			t.Errorf("room %s still has members after LeaveAll", room)
		}
	}
	if tr.RoomCount() != 1 {
		t.Errorf("RoomCount = %d, want 1 (only r2 keeps c2)", tr.RoomCount())
	}
	if got := tr.Rooms("c1"); len(got) != 0 {
		t.Errorf("reverse index still lists rooms for c1: %v", got)
	}
}

func TestTracker_BroadcastExcludesSender(t *testing.T) {
	resolver := newFakeResolver("c1", "c2", "c3")
	tr := NewTracker(resolver)
	for _, id := range []string{"c1", "c2", "c3"} {
		tr.Join("room-1", id)
	}

	ev := protocol.MustEvent("typing", map[string]string{"conversationId": "conv-1"})
	tr.Broadcast("room-1", ev, "c1")

	if len(resolver.conns["c1"].events) != 0 {
		t.Error("excluded sender received its own broadcast")
	}
	for _, id := range []string{"c2", "c3"} {
		if got := len(resolver.conns[id].events); got != 1 {
			t.Errorf("member %s received %d events, want 1", id, got)
		}
	}
}

func TestTracker_BroadcastExcludeNonMember(t *testing.T) {
	resolver := newFakeResolver("c1", "c2")
	tr := NewTracker(resolver)
	tr.Join("room-1", "c1")
	tr.Join("room-1", "c2")

	// Excluding an id that is not a member must not error and must not
	// affect delivery to actual members.
	tr.Broadcast("room-1", protocol.Event{Type: "typing"}, "ghost")

	for _, id := range []string{"c1", "c2"} {
		if got := len(resolver.conns[id].events); got != 1 {
			t.Errorf("member %s received %d events, want 1", id, got)
		}
	}
}

func TestTracker_BroadcastSurvivesFailedRecipient(t *testing.T) {
	resolver := newFakeResolver("c1", "c2", "c3")
	resolver.conns["c2"].full = true
	tr := NewTracker(resolver)
	for _, id := range []string{"c1", "c2", "c3"} {
		tr.Join("room-1", id)
	}

	tr.Broadcast("room-1", protocol.Event{Type: "message-read"}, "")

	if got := len(resolver.conns["c1"].events); got != 1 {
		t.Errorf("c1 received %d events, want 1", got)
	}
	if got := len(resolver.conns["c3"].events); got != 1 {
		t.Errorf("c3 received %d events, want 1 despite c2 failing", got)
	}
}

func TestTracker_BroadcastUnknownRoom(t *testing.T) {
	tr := NewTracker(newFakeResolver())
	// Must be a no-op, not a panic.
	tr.Broadcast("missing", protocol.Event{Type: "typing"}, "")
}

func TestTracker_Members(t *testing.T) {
	tr := NewTracker(newFakeResolver())
	tr.Join("room-1", "c2")
	tr.Join("room-1", "c1")

	members := tr.Members("room-1")
	sort.Strings(members)
	if len(members) != 2 || members[0] != "c1" || members[1] != "c2" {
		t.Errorf("Members = %v, want [c1 c2]", members)
	}
}
