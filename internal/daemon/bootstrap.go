// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/chrono/internal/api"
	"github.com/ManuGH/chrono/internal/auth"
	"github.com/ManuGH/chrono/internal/clock"
	"github.com/ManuGH/chrono/internal/config"
	"github.com/ManuGH/chrono/internal/engine"
	"github.com/ManuGH/chrono/internal/health"
	"github.com/ManuGH/chrono/internal/log"
	"github.com/ManuGH/chrono/internal/recovery"
	"github.com/ManuGH/chrono/internal/sessions"
	"github.com/ManuGH/chrono/internal/telemetry"
	"github.com/ManuGH/chrono/internal/worldclock"
)

// Runtime is the assembled daemon. Every component is owned by Manager's
// shutdown hooks once Bootstrap returns.
type Runtime struct {
	Config    config.AppConfig
	Clock     clock.Clock
	Auth      *auth.Provider
	Sessions  sessions.Store
	Recorder  *sessions.Recorder
	Recovery  recovery.Store
	Registry  *engine.Registry
	Health    *health.Manager
	API       *api.Server
	Telemetry *telemetry.Provider
	Manager   Manager
}

// Option adjusts Bootstrap. Tests use it to inject a manual clock.
type Option func(*bootstrapOptions)

type bootstrapOptions struct {
	clock clock.Clock
}

// WithClock replaces the wall clock used by the engines and the world clock.
func WithClock(c clock.Clock) Option {
	return func(o *bootstrapOptions) { o.clock = c }
}

// Bootstrap opens the stores and wires every component for cfg.
// Shutdown hooks are registered in dependency order so LIFO execution
// closes the engine registry first (flushing snapshots and final sessions),
// then the session writer, the stores and finally the tracer.
func Bootstrap(ctx context.Context, cfg config.AppConfig, opts ...Option) (_ *Runtime, err error) {
	o := bootstrapOptions{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.WithComponent("daemon")

	// Until the manager owns them, resources are released here on failure.
	var cleanup []func()
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
		}
	}()

	rt := &Runtime{Config: cfg, Clock: o.clock}

	rt.Telemetry, err = telemetry.NewProvider(ctx, telemetry.FromConfig(cfg.Telemetry, cfg.Version))
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	cleanup = append(cleanup, func() { _ = rt.Telemetry.Shutdown(context.Background()) })

	rt.Recovery, err = recovery.Open(recovery.Config{
		Backend: cfg.Recovery.Backend,
		Dir:     cfg.DataDir,
		TTL:     cfg.Recovery.TTL,
		Redis: recovery.RedisConfig{
			Addr:     cfg.Recovery.Redis.Addr,
			Password: cfg.Recovery.Redis.Password,
			DB:       cfg.Recovery.Redis.DB,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open recovery store: %w", err)
	}
	cleanup = append(cleanup, func() { _ = rt.Recovery.Close() })

	rt.Sessions, err = sessions.Open(cfg.Sessions.Backend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	cleanup = append(cleanup, func() { _ = rt.Sessions.Close() })

	recCfg := sessions.DefaultRecorderConfig()
	recCfg.QueueSize = cfg.Sessions.QueueSize
	recCfg.WritesPerSecond = cfg.Sessions.WritesPerSecond
	recCfg.WriteTimeout = cfg.Sessions.WriteTimeout
	rt.Recorder = sessions.NewRecorder(rt.Sessions, recCfg)
	cleanup = append(cleanup, func() { _ = rt.Recorder.Close(context.Background()) })

	rt.Auth = auth.NewProvider(cfg.Auth.TokenSpecs(), cfg.Auth.AllowAnonymous)

	rt.Registry = engine.NewRegistry(engine.Options{
		Clock:           o.clock,
		TickInterval:    cfg.Engine.TickInterval,
		PersistInterval: cfg.Engine.PersistInterval,
		Recovery:        rt.Recovery,
		Recorder:        rt.Recorder,
	}, rt.Auth.Lookup)
	cleanup = append(cleanup, func() { _ = rt.Registry.Close(context.Background()) })

	rt.Health = health.NewManager(cfg.Version, o.clock)
	rt.Health.RegisterChecker(health.NewPingChecker("session_store", rt.Sessions))
	rt.Health.RegisterChecker(health.NewPingChecker("recovery_store", rt.Recovery))
	rt.Health.RegisterChecker(health.NewBreakerChecker("session_writer", rt.Recorder.BreakerState))

	rpm := 0
	if cfg.Server.RateLimit.Enabled {
		rpm = cfg.Server.RateLimit.RequestsPerMinute
	}
	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Telemetry.ServiceName
	}
	rt.API, err = api.NewServer(api.Deps{
		Registry:   rt.Registry,
		Sessions:   rt.Sessions,
		Auth:       rt.Auth,
		WorldClock: worldclock.New(o.clock),
		Health:     rt.Health,
	}, api.Options{RateLimitRPM: rpm, TracingService: tracing})
	if err != nil {
		return nil, err
	}

	var metricsHandler http.Handler
	if cfg.Server.MetricsAddr != "" {
		metricsHandler = promhttp.Handler()
	}
	rt.Manager, err = NewManager(cfg.Server, Deps{
		Logger:         logger,
		APIHandler:     rt.API.Handler(),
		MetricsHandler: metricsHandler,
	})
	if err != nil {
		return nil, err
	}

	rt.Manager.RegisterShutdownHook("telemetry", rt.Telemetry.Shutdown)
	rt.Manager.RegisterShutdownHook("recovery_store", func(context.Context) error { return rt.Recovery.Close() })
	rt.Manager.RegisterShutdownHook("session_store", func(context.Context) error { return rt.Sessions.Close() })
	rt.Manager.RegisterShutdownHook("session_recorder", rt.Recorder.Close)
	rt.Manager.RegisterShutdownHook("engine_registry", rt.Registry.Close)

	logBootstrap(logger, cfg)
	return rt, nil
}

func logBootstrap(logger zerolog.Logger, cfg config.AppConfig) {
	logger.Info().
		Str(log.FieldEvent, "daemon.bootstrapped").
		Str("sessions_backend", cfg.Sessions.Backend).
		Str("recovery_backend", cfg.Recovery.Backend).
		Int("tokens", len(cfg.Auth.Tokens)).
		Bool("anonymous", cfg.Auth.AllowAnonymous).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Dur("tick_interval", cfg.Engine.TickInterval).
		Msg("daemon components ready")
}
