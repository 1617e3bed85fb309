// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package config loads and validates server configuration via Koanf v2 with
// layered sources: struct defaults, an optional YAML file, and environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the signaling server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Presence PresenceConfig `koanf:"presence"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP and websocket transport settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CloseSuperseded controls what happens to the older physical connection
	// when a user authenticates again from elsewhere. When false the old
	// connection is left open but orphaned (it can no longer be reached via
	// the registry).
	CloseSuperseded bool `koanf:"close_superseded"`

	// Per-connection inbound event rate limit (events/sec) and burst.
	// Zero disables the limiter.
	EventRateLimit float64 `koanf:"event_rate_limit"`
	EventRateBurst int     `koanf:"event_rate_burst"`
}

// PresenceConfig holds the persisted presence store settings.
type PresenceConfig struct {
	// StorePath is the BadgerDB directory for userStatus records and
	// liveness leases. Empty means in-memory (tests, development).
	StorePath string `koanf:"store_path"`

	// LeaseTTL is how long a connection's liveness lease stays valid
	// without renewal. It must exceed the websocket pong wait so a healthy
	// connection never expires.
	LeaseTTL time.Duration `koanf:"lease_ttl" validate:"min=1s"`

	// JanitorInterval is how often expired leases are swept into offline
	// presence writes.
	JanitorInterval time.Duration `koanf:"janitor_interval" validate:"min=100ms"`
}

// SecurityConfig holds authentication and HTTP protection settings.
type SecurityConfig struct {
	// AuthMode selects how the authenticate event is verified:
	// "jwt" validates the token against JWTSecret, "none" trusts the
	// declared user id (development only).
	AuthMode  string `koanf:"auth_mode" validate:"oneof=jwt none"`
	JWTSecret string `koanf:"jwt_secret"`

	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"min=1s"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for consistency. Struct tags cover the
// per-field constraints; cross-field rules are checked explicitly.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Security.AuthMode == "jwt" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters when auth_mode=jwt")
	}

	if c.Presence.JanitorInterval > c.Presence.LeaseTTL {
		return fmt.Errorf("presence.janitor_interval (%s) must not exceed presence.lease_ttl (%s)",
			c.Presence.JanitorInterval, c.Presence.LeaseTTL)
	}

	return nil
}

// IsAuthDisabled reports whether the server trusts declared identities.
func (c *Config) IsAuthDisabled() bool {
	return c.Security.AuthMode == "none"
}
