// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/chrono/internal/auth"
	"github.com/ManuGH/chrono/internal/engine"
)

type sseFrame struct {
	comment string
	event   string
	data    engine.Event
}

// readFrame returns the next event or comment from an SSE stream.
func readFrame(t *testing.T, rd *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if f.event != "" || f.comment != "" {
				return f
			}
		case strings.HasPrefix(line, ":"):
			f.comment = strings.TrimSpace(line[1:])
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f.data))
		}
	}
}

func nextEvent(t *testing.T, rd *bufio.Reader) sseFrame {
	t.Helper()
	for {
		if f := readFrame(t, rd); f.event != "" {
			return f
		}
	}
}

func openStream(t *testing.T, env *testEnv, token string) (*httptest.Server, *bufio.Reader, func()) {
	t.Helper()
	srv := httptest.NewServer(env.handler)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	return srv, bufio.NewReader(resp.Body), func() {
		cancel()
		_ = resp.Body.Close()
		srv.Close()
	}
}

func TestEvents_InitialStateThenTransitions(t *testing.T) {
	env := newTestEnv(t, Options{})
	srv, rd, closeStream := openStream(t, env, tokenAlice)
	defer closeStream()

	first := nextEvent(t, rd)
	assert.Equal(t, string(engine.EventState), first.event)
	assert.Equal(t, "stopwatch", first.data.Kind)
	require.NotNil(t, first.data.Stopwatch)
	assert.Equal(t, engine.StateIdle, first.data.Stopwatch.State)

	second := nextEvent(t, rd)
	assert.Equal(t, "countdown", second.data.Kind)
	require.NotNil(t, second.data.Countdown)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/timer/start", strings.NewReader(`{"durationMs":1000}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokenAlice)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	started := nextEvent(t, rd)
	assert.Equal(t, string(engine.EventState), started.event)
	assert.Equal(t, "start", started.data.Action)
	require.NotNil(t, started.data.Countdown)
	assert.Equal(t, engine.StateRunning, started.data.Countdown.State)
	assert.Equal(t, testEpoch, started.data.At)
}

func TestEvents_CompletionIsPublished(t *testing.T) {
	env := newTestEnv(t, Options{})
	e, err := env.registry.Get(context.Background(), mustPrincipal(t, env, "alice"))
	require.NoError(t, err)
	e.StartCountdown(time.Second)

	_, rd, closeStream := openStream(t, env, tokenAlice)
	defer closeStream()
	nextEvent(t, rd)
	nextEvent(t, rd)

	env.clock.Advance(2 * time.Second)
	_ = e.Countdown()

	for {
		f := nextEvent(t, rd)
		if f.event == string(engine.EventCompleted) {
			require.NotNil(t, f.data.Countdown)
			assert.True(t, f.data.Countdown.Completed)
			return
		}
	}
}

func TestEvents_Heartbeat(t *testing.T) {
	env := newTestEnv(t, Options{Heartbeat: 10 * time.Millisecond})
	_, rd, closeStream := openStream(t, env, tokenAlice)
	defer closeStream()

	for {
		if f := readFrame(t, rd); f.comment != "" {
			assert.Equal(t, "keep-alive", f.comment)
			return
		}
	}
}

func TestEvents_EndWhenRegistryCloses(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, rd, closeStream := openStream(t, env, tokenAlice)
	defer closeStream()
	nextEvent(t, rd)
	nextEvent(t, rd)

	require.NoError(t, env.registry.Close(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := rd.ReadString('\n')
		for err == nil {
			_, err = rd.ReadString('\n')
		}
		done <- err
	}()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after registry close")
	}
}

func mustPrincipal(t *testing.T, env *testEnv, id string) *auth.Principal {
	t.Helper()
	p, ok := env.auth.Lookup(id)
	require.True(t, ok)
	return p
}
