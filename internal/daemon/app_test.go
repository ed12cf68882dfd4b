// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/chrono/internal/clock"
	"github.com/ManuGH/chrono/internal/config"
	"github.com/ManuGH/chrono/internal/log"
	"github.com/ManuGH/chrono/internal/recovery"
	"github.com/ManuGH/chrono/internal/sessions"
)

var appEpoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testAppConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Server.MetricsAddr = "localhost:0"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Sessions.Backend = "memory"
	cfg.Recovery.Backend = "memory"
	cfg.Auth.Tokens = []config.TokenConfig{{Token: "alice-token", User: "alice"}}
	cfg.Version = "test"
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func runApp(t *testing.T, app *App) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	m := app.rt.Manager.(*manager)
	require.Eventually(t, func() bool { return m.Addr("api") != "" }, 2*time.Second, 5*time.Millisecond)
	return cancel, errCh
}

func TestBootstrap_RecoversExpiredCountdownOnStartup(t *testing.T) {
	cfg := testAppConfig(t)
	clk := clock.NewManual(appEpoch)

	rt, err := Bootstrap(context.Background(), cfg, WithClock(clk))
	require.NoError(t, err)

	// A 5s countdown started 10s before the process came up.
	started := appEpoch.Add(-10 * time.Second).UnixMilli()
	require.NoError(t, rt.Recovery.Put(context.Background(), "alice", &recovery.Snapshot{
		Kind:         recovery.KindCountdown,
		Running:      true,
		StartEpochMs: started,
		TotalMs:      5000,
		RemainingMs:  5000,
		SavedAtMs:    started,
	}))

	app := NewApp(log.WithComponent("test"), rt, nil)
	cancel, errCh := runApp(t, app)

	require.Eventually(t, func() bool {
		list, err := rt.Sessions.List(context.Background(), "alice", sessions.Query{})
		return err == nil && len(list) == 1 && list[0].WasCompleted()
	}, 2*time.Second, 10*time.Millisecond)

	m := rt.Manager.(*manager)
	client := &http.Client{Transport: &http.Transport{}}
	defer client.CloseIdleConnections()

	req, err := http.NewRequest(http.MethodGet, "http://"+m.Addr("api")+"/api/v1/timer", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer alice-token")
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := get(t, client, "http://"+m.Addr("metrics")+"/metrics")
	assert.True(t, strings.Contains(body, "chrono_"), "metrics listener must expose chrono series")

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestBootstrap_BadBackendFails(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Recovery.Backend = "floppy"
	_, err := Bootstrap(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open recovery store")
}

func TestApp_ApplyHotReloadsTokens(t *testing.T) {
	cfg := testAppConfig(t)
	rt, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer func() {
		_ = rt.Registry.Close(context.Background())
		_ = rt.Recorder.Close(context.Background())
	}()

	next := cfg
	next.Auth.Tokens = []config.TokenConfig{{Token: "bob-token", User: "bob"}}

	app := NewApp(log.WithComponent("test"), rt, nil)
	app.apply(cfg, next)

	_, ok := rt.Auth.Lookup("bob")
	assert.True(t, ok)
	_, ok = rt.Auth.Lookup("alice")
	assert.False(t, ok)
}

func TestApp_ReloadsFromWatchedFile(t *testing.T) {
	cfg := testAppConfig(t)
	path := filepath.Join(t.TempDir(), "chrono.yaml")
	require.NoError(t, config.WriteFile(path, cfg))

	loader := config.NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewConfigHolder(initial, loader)

	rt, err := Bootstrap(context.Background(), initial)
	require.NoError(t, err)
	app := NewApp(log.WithComponent("test"), rt, holder)
	app.reloadSignal = nil

	cancel, errCh := runApp(t, app)
	defer func() {
		cancel()
		<-errCh
	}()

	updated := initial
	updated.Auth.Tokens = append(updated.Auth.Tokens, config.TokenConfig{Token: "carol-token", User: "carol"})
	require.NoError(t, config.WriteFile(path, updated))

	require.Eventually(t, func() bool {
		_, ok := rt.Auth.Lookup("carol")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestApp_MissingManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil)
	require.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}
