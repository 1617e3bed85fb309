// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package metrics provides Prometheus instrumentation for the signaling
// server: websocket connection lifecycle, event dispatch, signal relay,
// room broadcasts and presence store writes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket connection metrics
	SocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_socket_connections",
			Help: "Current number of open websocket connections",
		},
	)

	RegisteredUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_registered_users",
			Help: "Current number of authenticated user identities",
		},
	)

	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_connections_total",
			Help: "Total number of accepted websocket connections",
		},
	)

	SupersededConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_superseded_connections_total",
			Help: "Total number of registrations that replaced an older live connection",
		},
	)

	// Event dispatch metrics
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_events_received_total",
			Help: "Total number of inbound events by type",
		},
		[]string{"event"},
	)

	EventErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_event_errors_total",
			Help: "Total number of inbound events that failed to dispatch",
		},
		[]string{"event", "reason"}, // "decode", "unauthenticated", "unknown_event", "rate_limited"
	)

	// Signal relay metrics
	SignalsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_signals_relayed_total",
			Help: "Total number of call signals relayed by type and result",
		},
		[]string{"signal", "result"}, // result: "delivered", "target_offline", "dropped"
	)

	// Room broadcast metrics
	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_broadcast_deliveries_total",
			Help: "Total number of events delivered to room members",
		},
	)

	BroadcastDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_broadcast_drops_total",
			Help: "Total number of room deliveries dropped (send queue full or connection gone)",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_rooms_active",
			Help: "Current number of rooms with at least one member",
		},
	)

	// Presence store metrics
	PresenceWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_presence_writes_total",
			Help: "Total number of presence store writes by status and result",
		},
		[]string{"status", "result"}, // result: "ok", "error", "rejected"
	)

	LeasesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_presence_leases_expired_total",
			Help: "Total number of liveness leases expired by the store janitor",
		},
	)

	// Circuit breaker state for the presence store: 0=closed, 1=half-open, 2=open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signaling_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// HTTP surface metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signaling_api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)
)
