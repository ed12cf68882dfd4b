// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/chrono/internal/auth"
	"github.com/ManuGH/chrono/internal/clock"
	"github.com/ManuGH/chrono/internal/engine"
	"github.com/ManuGH/chrono/internal/health"
	"github.com/ManuGH/chrono/internal/recovery"
	"github.com/ManuGH/chrono/internal/sessions"
	"github.com/ManuGH/chrono/internal/worldclock"
)

const (
	tokenAlice = "alice-token"
	tokenBob   = "bob-token" // timer scope only
)

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// syncRecorder appends straight to the store so assertions need no waiting.
type syncRecorder struct{ store sessions.Store }

func (r syncRecorder) Record(userID string, s sessions.Session) {
	_ = r.store.Append(context.Background(), userID, s)
}

type testEnv struct {
	clock    *clock.Manual
	registry *engine.Registry
	sessions *sessions.MemoryStore
	auth     *auth.Provider
	server   *Server
	handler  http.Handler
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	clk := clock.NewManual(testEpoch)
	store := sessions.NewMemoryStore()
	provider := auth.NewProvider([]auth.TokenSpec{
		{Token: tokenAlice, User: "alice"},
		{Token: tokenBob, User: "bob", Scopes: []string{auth.ScopeTimer}},
	}, true)

	registry := engine.NewRegistry(engine.Options{
		Clock:    clk,
		Recovery: recovery.NewMemoryStore(),
		Recorder: syncRecorder{store: store},
	}, provider.Lookup)
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	srv, err := NewServer(Deps{
		Registry:   registry,
		Sessions:   store,
		Auth:       provider,
		WorldClock: worldclock.New(clk),
		Health:     health.NewManager("test", clk),
	}, opts)
	require.NoError(t, err)

	return &testEnv{
		clock:    clk,
		registry: registry,
		sessions: store,
		auth:     provider,
		server:   srv,
		handler:  srv.Handler(),
	}
}

func (env *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
