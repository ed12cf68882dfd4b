// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/chrono/internal/config"
	"github.com/ManuGH/chrono/internal/log"
)

// App owns the long-lived runtime lifecycle (startup recovery, config
// watcher, reload wiring) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	rt           *Runtime
	holder       *config.ConfigHolder
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. holder may be nil when the daemon
// runs without a config file.
func NewApp(logger zerolog.Logger, rt *Runtime, holder *config.ConfigHolder) *App {
	return &App{
		logger:       logger,
		rt:           rt,
		holder:       holder,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run recovers persisted timers, starts the owned background subsystems and
// blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.rt == nil || a.rt.Manager == nil {
		return ErrMissingManager
	}

	// Countdowns that ran out while the process was down complete now, not
	// on their owner's next request.
	if n, err := a.rt.Registry.RecoverAll(ctx); err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "recovery.startup_failed").Msg("startup recovery incomplete")
	} else {
		a.logger.Info().Str(log.FieldEvent, "recovery.startup").Int("engines", n).Msg("recovered persisted timers")
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.holder != nil {
		// Watcher is best-effort: SIGHUP still reloads without it.
		if err := a.holder.StartWatcher(gctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		defer a.holder.Stop()

		updates := make(chan config.AppConfig, 1)
		a.holder.RegisterListener(updates)
		applied := a.holder.Get()
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case next := <-updates:
					a.apply(applied, next)
					applied = next
				}
			}
		})

		if a.reloadSignal != nil {
			g.Go(func() error {
				hup := make(chan os.Signal, 1)
				signal.Notify(hup, a.reloadSignal)
				defer signal.Stop(hup)
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-hup:
						a.logger.Info().
							Str(log.FieldEvent, "config.reload_signal").
							Str("signal", a.reloadSignal.String()).
							Msg("received reload signal, reloading config")
						if err := a.holder.Reload(gctx); err != nil {
							a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
						}
					}
				}
			})
		}
	}

	g.Go(func() error {
		return a.rt.Manager.Start(gctx)
	})

	return g.Wait()
}

// apply pushes the hot-reloadable parts of next into the running daemon.
// The holder already logged the changes that need a restart.
func (a *App) apply(prev, next config.AppConfig) {
	for _, ch := range config.Diff(prev, next) {
		switch ch.Field {
		case "logLevel":
			log.SetLevel(next.LogLevel)
		case "auth":
			a.rt.Auth.Update(next.Auth.TokenSpecs(), next.Auth.AllowAnonymous)
			a.logger.Info().Str(log.FieldEvent, "auth.reloaded").Int("tokens", len(next.Auth.Tokens)).Msg("token table reloaded")
		}
	}
}
