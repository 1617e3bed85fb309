// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 4850 {
		t.Errorf("default port = %d, want 4850", cfg.Server.Port)
	}
	if cfg.Presence.LeaseTTL != 90*time.Second {
		t.Errorf("default lease ttl = %s, want 90s", cfg.Presence.LeaseTTL)
	}
	if cfg.Security.AuthMode != "jwt" {
		t.Errorf("default auth mode = %q, want jwt", cfg.Security.AuthMode)
	}
	if cfg.Server.CloseSuperseded {
		t.Error("close_superseded should default to false")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CLOSE_SUPERSEDED", "true")
	t.Setenv("LEASE_TTL", "2m")
	t.Setenv("CORS_ORIGINS", "https://app.jamwave.example, https://staging.jamwave.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.Server.CloseSuperseded {
		t.Error("close_superseded = false, want true")
	}
	if cfg.Presence.LeaseTTL != 2*time.Minute {
		t.Errorf("lease ttl = %s, want 2m", cfg.Presence.LeaseTTL)
	}
	want := []string{"https://app.jamwave.example", "https://staging.jamwave.example"}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != want[0] || cfg.Security.CORSOrigins[1] != want[1] {
		t.Errorf("cors origins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
}

func TestLoadIgnoresUnmappedEnvVars(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("SERVER", "should-not-leak")
	t.Setenv("PRESENCE", "should-not-leak")

	if _, err := Load(); err != nil {
		t.Fatalf("Load with unrelated env vars: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := strings.Join([]string{
		"server:",
		"  port: 5100",
		"security:",
		"  auth_mode: none",
		"presence:",
		"  store_path: \"\"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 5100 {
		t.Errorf("port = %d, want 5100 from file", cfg.Server.Port)
	}
	if cfg.Security.AuthMode != "none" {
		t.Errorf("auth mode = %q, want none from file", cfg.Security.AuthMode)
	}
}

func TestLoadRejectsMissingJWTSecret(t *testing.T) {
	// Default auth_mode is jwt; without a secret the config must not load.
	if _, err := Load(); err == nil {
		t.Error("Load succeeded without JWT_SECRET, want validation error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWTSecret = testSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(*Config) {}, false},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, true},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }, true},
		{"none mode without secret", func(c *Config) { c.Security.AuthMode = "none"; c.Security.JWTSecret = "" }, false},
		{"unknown auth mode", func(c *Config) { c.Security.AuthMode = "basic" }, true},
		{"janitor slower than lease", func(c *Config) { c.Presence.JanitorInterval = 5 * time.Minute }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
