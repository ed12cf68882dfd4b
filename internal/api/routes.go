// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/chrono/internal/api/middleware"
	"github.com/ManuGH/chrono/internal/auth"
	"github.com/ManuGH/chrono/internal/engine"
)

// Handler builds the complete HTTP handler with the ingress stack applied.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
		TracingService:        s.opts.TracingService,
	})
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)

	r.Route("/api/v1", func(r chi.Router) {
		if s.opts.RateLimitRPM > 0 {
			r.Use(middleware.APIRateLimit(s.opts.RateLimitRPM))
		}
		r.Get("/openapi.yaml", handleOpenAPI)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.auth))

			r.Get("/clock/now", s.handleClockNow)
			r.Get("/clock/convert", s.handleClockConvert)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireScope(auth.ScopeTimer, true))

				r.Get("/stopwatch", s.handleStopwatch)
				r.Post("/stopwatch/start", s.stopwatchAction((*engine.Engine).StartStopwatch))
				r.Post("/stopwatch/pause", s.stopwatchAction((*engine.Engine).PauseStopwatch))
				r.Post("/stopwatch/resume", s.stopwatchAction((*engine.Engine).ResumeStopwatch))
				r.Post("/stopwatch/reset", s.stopwatchAction((*engine.Engine).ResetStopwatch))
				r.Post("/stopwatch/lap", s.handleStopwatchLap)
				r.Post("/stopwatch/stop", s.handleStopwatchStop)

				r.Get("/timer", s.handleTimer)
				r.Post("/timer/start", s.handleTimerStart)
				r.Post("/timer/pause", s.timerAction((*engine.Engine).PauseCountdown))
				r.Post("/timer/resume", s.timerAction((*engine.Engine).ResumeCountdown))
				r.Post("/timer/reset", s.timerAction((*engine.Engine).ResetCountdown))
				r.Post("/timer/stop", s.handleTimerStop)

				r.Get("/events", s.handleEvents)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireScope(auth.ScopeHistory, false))

				r.Get("/sessions", s.handleSessions)
				r.Get("/sessions/stats", s.handleSessionStats)
			})
		})
	})
	return r
}
