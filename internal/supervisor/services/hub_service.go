// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

package services

import (
	"context"
)

// ContextRunner matches components whose run loop already follows the
// suture.Service pattern: block until the context is canceled, then return
// ctx.Err(). Satisfied by the signaling hub and the presence store janitor.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService wraps a ContextRunner as a named supervised service.
type RunnerService struct {
	runner ContextRunner
	name   string
}

// NewHubService wraps the signaling hub.
func NewHubService(hub ContextRunner) *RunnerService {
	return &RunnerService{runner: hub, name: "signaling-hub"}
}

// NewJanitorService wraps the presence store janitor that sweeps expired
// liveness leases into offline writes.
func NewJanitorService(janitor ContextRunner) *RunnerService {
	return &RunnerService{runner: janitor, name: "presence-janitor"}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervision logs.
func (s *RunnerService) String() string {
	return s.name
}
