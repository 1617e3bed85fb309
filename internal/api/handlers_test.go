// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/jamwave/signaling/internal/auth"
	"github.com/jamwave/signaling/internal/config"
	"github.com/jamwave/signaling/internal/protocol"
	"github.com/jamwave/signaling/internal/signaling"
	"github.com/jamwave/signaling/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			Port:    4850,
			Timeout: 30 * time.Second,
		},
		Security: config.SecurityConfig{
			AuthMode:        "none",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *signaling.Hub) {
	t.Helper()
	mem := store.NewMemoryStore(time.Minute)
	hub := signaling.NewHub(mem, auth.NoopVerifier{}, signaling.Options{})
	srv := httptest.NewServer(NewRouter(hub, testConfig()))
	t.Cleanup(srv.Close)
	return srv, hub
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var ev protocol.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func wsAuthenticate(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()
	err := conn.WriteJSON(protocol.MustEvent(protocol.EventAuthenticate, protocol.AuthenticatePayload{UserID: userID}))
	if err != nil {
		t.Fatalf("write authenticate: %v", err)
	}
	if ev := readEvent(t, conn); ev.Type != protocol.EventAuthenticated {
		t.Fatalf("got %q, want authenticated", ev.Type)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.ConnectedUsers != 0 || body.SocketConnections != 0 {
		t.Errorf("counts = %d/%d on fresh server, want 0/0", body.ConnectedUsers, body.SocketConnections)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dialWS(t, srv)
	wsAuthenticate(t, conn, "alice")

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.ConnectedUsers) != 1 || body.ConnectedUsers[0] != "alice" {
		t.Errorf("connectedUsers = %v, want [alice]", body.ConnectedUsers)
	}
	if body.TotalConnections != 1 {
		t.Errorf("totalConnections = %d, want 1", body.TotalConnections)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWebSocketSignalingEndToEnd(t *testing.T) {
	srv, hub := newTestServer(t)

	alice := dialWS(t, srv)
	wsAuthenticate(t, alice, "alice")

	bob := dialWS(t, srv)
	wsAuthenticate(t, bob, "bob")

	// alice sees bob come online.
	ev := readEvent(t, alice)
	if ev.Type != protocol.EventUserStatusChanged {
		t.Fatalf("alice got %q, want user-status-changed", ev.Type)
	}

	// alice rings bob; the payload is forwarded one hop, untouched.
	err := alice.WriteJSON(protocol.MustEvent(protocol.EventCallSignal, map[string]interface{}{
		"to":   "bob",
		"type": protocol.SignalOffer,
		"sdp":  "v=0...",
	}))
	if err != nil {
		t.Fatalf("write call-signal: %v", err)
	}

	ev = readEvent(t, bob)
	if ev.Type != protocol.EventCallSignal {
		t.Fatalf("bob got %q, want call-signal", ev.Type)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(ev.Data, &body); err != nil {
		t.Fatalf("decode call-signal: %v", err)
	}
	if body["from"] != "alice" || body["type"] != protocol.SignalOffer || body["sdp"] != "v=0..." {
		t.Errorf("relayed body = %v", body)
	}

	// bob hangs up his transport; the registry notices.
	bob.Close()

	ev = readEvent(t, alice)
	if ev.Type != protocol.EventUserStatusChanged {
		t.Fatalf("alice got %q after bob disconnect, want user-status-changed", ev.Type)
	}
	if err := json.Unmarshal(ev.Data, &body); err != nil {
		t.Fatalf("decode status change: %v", err)
	}
	if body["userId"] != "bob" || body["status"] != store.StatusOffline {
		t.Errorf("offline broadcast body = %v", body)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.RegisteredUserCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.RegisteredUserCount() != 1 {
		t.Errorf("RegisteredUserCount = %d after bob disconnect, want 1", hub.RegisteredUserCount())
	}
}

func TestWebSocketRejectsUnauthorizedOrigin(t *testing.T) {
	mem := store.NewMemoryStore(time.Minute)
	hub := signaling.NewHub(mem, auth.NoopVerifier{}, signaling.Options{})
	cfg := testConfig()
	cfg.Security.CORSOrigins = []string{"https://app.jamwave.example"}
	srv := httptest.NewServer(NewRouter(hub, cfg))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		conn.Close()
		t.Fatal("dial from unauthorized origin succeeded, want rejection")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("handshake status = %d, want 403", resp.StatusCode)
	}
}
