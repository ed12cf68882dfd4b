// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the chrono HTTP API: stopwatch and timer control,
// the engine event stream, session history, statistics and world clock.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/chrono/internal/auth"
	"github.com/ManuGH/chrono/internal/engine"
	"github.com/ManuGH/chrono/internal/health"
	"github.com/ManuGH/chrono/internal/sessions"
	"github.com/ManuGH/chrono/internal/worldclock"
)

// DefaultHeartbeat is the SSE keep-alive comment interval.
const DefaultHeartbeat = 15 * time.Second

// Deps are the components the API drives. All are required.
type Deps struct {
	Registry   *engine.Registry
	Sessions   sessions.Store
	Auth       *auth.Provider
	WorldClock *worldclock.Service
	Health     *health.Manager
}

// Options tune the HTTP surface.
type Options struct {
	// RateLimitRPM > 0 enables per-IP rate limiting on /api/v1.
	RateLimitRPM int
	// TracingService names the otelhttp server spans; empty disables them.
	TracingService string
	// Heartbeat overrides DefaultHeartbeat.
	Heartbeat time.Duration
}

// Server owns the handlers. It holds no per-request state.
type Server struct {
	registry *engine.Registry
	sessions sessions.Store
	auth     *auth.Provider
	clocks   *worldclock.Service
	health   *health.Manager
	opts     Options
}

// ErrMissingDependency is returned by NewServer for an incomplete Deps.
var ErrMissingDependency = errors.New("api: missing dependency")

// NewServer validates deps and builds a Server.
func NewServer(deps Deps, opts Options) (*Server, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("registry"))
	case deps.Sessions == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("session store"))
	case deps.Auth == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("auth provider"))
	case deps.WorldClock == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("world clock"))
	case deps.Health == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("health manager"))
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	return &Server{
		registry: deps.Registry,
		sessions: deps.Sessions,
		auth:     deps.Auth,
		clocks:   deps.WorldClock,
		health:   deps.Health,
		opts:     opts,
	}, nil
}

// engineFor resolves the caller's engine, writing an error response when it
// cannot.
func (s *Server) engineFor(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	e, err := s.registry.Get(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, engine.ErrRegistryClosed) {
			writeError(w, r, http.StatusServiceUnavailable, codeUnavailable, "server is shutting down")
			return nil, false
		}
		if errors.Is(err, context.Canceled) {
			return nil, false
		}
		writeInternal(w, r, err)
		return nil, false
	}
	return e, true
}
