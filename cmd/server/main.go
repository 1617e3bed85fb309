// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package main is the entry point for the JamWave signaling server.
//
// The signaling server is the real-time backbone of JamWave, a music
// collaboration web app: it tracks which users are online, relays WebRTC
// call signals between peers, and fans out typing indicators and message
// receipts to conversation rooms.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered settings via Koanf v2 (defaults, YAML, env)
//  2. Presence store: BadgerDB for userStatus records and liveness leases
//  3. Signaling hub: connection registry, room tracker and call relay
//  4. HTTP surface: Chi router with /health, /status, /metrics and /ws
//  5. Supervisor tree: Suture supervision for hub, janitor and HTTP server
//
// # Configuration
//
// Configuration is loaded with layered sources (highest priority wins):
//   - Environment variables (HTTP_PORT, JWT_SECRET, PRESENCE_PATH, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// For JWT authentication (default):
//   - JWT_SECRET: 32+ character secret shared with the token issuer
//
// For development:
//   - AUTH_MODE=none trusts the user id declared on authenticate
//   - PRESENCE_PATH="" keeps presence records in memory
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP server
// drains in-flight requests, every websocket client receives a close frame,
// and the presence store is flushed and closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jamwave/signaling/internal/api"
	"github.com/jamwave/signaling/internal/auth"
	"github.com/jamwave/signaling/internal/config"
	"github.com/jamwave/signaling/internal/logging"
	"github.com/jamwave/signaling/internal/signaling"
	"github.com/jamwave/signaling/internal/store"
	"github.com/jamwave/signaling/internal/supervisor"
	"github.com/jamwave/signaling/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting JamWave signaling server")

	// Presence store: BadgerDB on disk, or in-memory when no path is set.
	presenceStore, err := store.NewBadgerStore(store.Options{
		Path:            cfg.Presence.StorePath,
		LeaseTTL:        cfg.Presence.LeaseTTL,
		JanitorInterval: cfg.Presence.JanitorInterval,
	})
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Presence.StorePath).Msg("Failed to open presence store")
	}
	defer func() {
		if err := presenceStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close presence store")
		}
	}()

	var verifier auth.Verifier
	if cfg.IsAuthDisabled() {
		logging.Warn().Msg("Authentication disabled (AUTH_MODE=none) - declared identities are trusted")
		verifier = auth.NoopVerifier{}
	} else {
		verifier, err = auth.NewJWTVerifier(cfg.Security.JWTSecret)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT verifier")
		}
	}

	hub := signaling.NewHub(presenceStore, verifier, signaling.Options{
		CloseSuperseded: cfg.Server.CloseSuperseded,
		EventRateLimit:  cfg.Server.EventRateLimit,
		EventRateBurst:  cfg.Server.EventRateBurst,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(hub, cfg),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Bridge zerolog to slog for sutureslog supervision events.
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewTree(slogLogger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddMessagingService(services.NewJanitorService(presenceStore))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Signaling server stopped gracefully")
}
