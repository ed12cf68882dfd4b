// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon assembles chronod and owns its lifecycle: listeners,
// background writers, config reload and ordered shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"

	"github.com/ManuGH/chrono/internal/config"
	"github.com/ManuGH/chrono/internal/log"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Manager manages the daemon lifecycle: starting servers, handling shutdown.
type Manager interface {
	// Start binds the listeners and blocks until ctx is done or a server fails.
	Start(ctx context.Context) error

	// Shutdown stops the listeners, then runs the shutdown hooks.
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook registers a function to be called during shutdown
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type namedHook struct {
	name string
	hook ShutdownHook
}

type manager struct {
	serverCfg config.ServerConfig
	deps      Deps
	logger    zerolog.Logger

	mu       sync.Mutex
	started  bool
	stopping bool
	servers  []*managedServer
	hooks    []namedHook
}

// managedServer pairs an http.Server with the name used in logs and errors.
type managedServer struct {
	name string
	srv  *http.Server
	ln   net.Listener
}

// NewManager creates a new daemon manager with the given configuration and dependencies.
func NewManager(serverCfg config.ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	return &manager{
		serverCfg: serverCfg,
		deps:      deps,
		logger:    deps.Logger.With().Str(log.FieldComponent, "manager").Logger(),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("start context is nil")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str("listen", m.serverCfg.ListenAddr).
		Str("metrics", m.serverCfg.MetricsAddr).
		Dur("shutdown_timeout", m.serverCfg.ShutdownTimeout).
		Msg("starting daemon manager")

	// Bind synchronously so a busy port fails Start instead of a goroutine.
	api, err := m.listen("api", m.serverCfg.ListenAddr, m.deps.APIHandler)
	if err != nil {
		m.abortStart(ctx)
		return err
	}
	servers := []*managedServer{api}
	if m.deps.MetricsHandler != nil && m.serverCfg.MetricsAddr != "" {
		metricsSrv, err := m.listen("metrics", m.serverCfg.MetricsAddr, m.deps.MetricsHandler)
		if err != nil {
			_ = api.ln.Close()
			m.abortStart(ctx)
			return err
		}
		servers = append(servers, metricsSrv)
	}

	m.mu.Lock()
	m.servers = servers
	m.mu.Unlock()

	errCh := make(chan error, len(servers))
	for _, s := range servers {
		go m.serve(s, errCh)
	}

	var serveErr error
	select {
	case serveErr = <-errCh:
		m.logger.Error().Err(serveErr).Str(log.FieldEvent, "server.failed").Msg("server error, initiating shutdown")
	case <-ctx.Done():
		m.logger.Info().Str(log.FieldEvent, "shutdown.signal").Msg("shutdown signal received")
	}

	if err := m.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// abortStart runs the hooks when Start fails before serving, so stores
// opened during bootstrap are still released.
func (m *manager) abortStart(ctx context.Context) {
	_ = m.Shutdown(context.WithoutCancel(ctx))
}

func (m *manager) listen(name, addr string, h http.Handler) (*managedServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s listener %s: %w", name, addr, err)
	}
	if name == "api" && m.serverCfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, m.serverCfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: m.serverCfg.ReadTimeout / 2,
		IdleTimeout:       m.serverCfg.IdleTimeout,
	}
	if name != "api" {
		srv.ReadTimeout = m.serverCfg.ReadTimeout
	}
	// The API keeps no WriteTimeout: the event stream is long-lived.
	return &managedServer{name: name, srv: srv, ln: ln}, nil
}

func (m *manager) serve(s *managedServer, errCh chan<- error) {
	m.logger.Info().Str("server", s.name).Str("addr", s.ln.Addr().String()).Msg("listening")
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s server: %w", s.name, err)
	}
}

// Addr reports the bound address of the named server, or "" before Start.
func (m *manager) Addr(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.servers {
		if s.name == name {
			return s.ln.Addr().String()
		}
	}
	return ""
}

func (m *manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return errors.New("shutdown context is nil")
	}

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	servers := m.servers
	hooks := m.hooks
	m.mu.Unlock()

	m.logger.Info().Msg("shutting down daemon manager")

	timeout := m.serverCfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var errs []error
	for _, s := range servers {
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			// Streams still open at the deadline are cut.
			_ = s.srv.Close()
			errs = append(errs, fmt.Errorf("%s server shutdown: %w", s.name, err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		m.logger.Error().Int("error_count", len(errs)).Msg("shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("daemon manager stopped cleanly")
	return nil
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("hook", name).Msg("registered shutdown hook")
}
