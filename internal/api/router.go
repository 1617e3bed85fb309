// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package api provides the HTTP surface of the signaling server: health and
// status snapshots, Prometheus metrics and the websocket upgrade endpoint,
// routed through Chi with its production middleware ecosystem.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamwave/signaling/internal/config"
	"github.com/jamwave/signaling/internal/signaling"
)

// NewRouter assembles the HTTP routes.
//
// The websocket endpoint is exempt from the request rate limit: a websocket
// is one long-lived request, and abuse control for it lives in the
// per-connection event limiter instead.
func NewRouter(hub *signaling.Hub, cfg *config.Config) http.Handler {
	handler := NewHandler(hub, cfg)

	r := chi.NewRouter()
	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Security.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(
			cfg.Security.RateLimitReqs,
			cfg.Security.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
		r.Use(Instrument())

		r.Get("/health", handler.Health)
		r.Get("/status", handler.Status)
	})

	r.Get("/ws", handler.WebSocket)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
