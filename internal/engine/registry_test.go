// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/chrono/internal/auth"
	"github.com/ManuGH/chrono/internal/clock"
	"github.com/ManuGH/chrono/internal/recovery"
)

func newRegistry(t *testing.T, store recovery.Store, known ...*auth.Principal) (*Registry, *clock.Manual, *captureRecorder) {
	t.Helper()
	clk := clock.NewManual(epoch)
	rec := &captureRecorder{}
	lookup := func(id string) (*auth.Principal, bool) {
		for _, p := range known {
			if p.ID == id {
				return p, true
			}
		}
		return nil, false
	}
	r := NewRegistry(Options{Clock: clk, TickInterval: time.Hour, Recovery: store, Recorder: rec}, lookup)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, clk, rec
}

func TestRegistry_GetReturnsOneEnginePerPrincipal(t *testing.T) {
	r, _, _ := newRegistry(t, recovery.NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	engines := make([]*Engine, 8)
	for i := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := r.Get(ctx, alice)
			assert.NoError(t, err)
			engines[i] = e
		}()
	}
	wg.Wait()
	for _, e := range engines {
		assert.Same(t, engines[0], e)
	}

	anon, err := r.Get(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, anon.Principal())
	assert.NotSame(t, engines[0], anon)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_RecoverAll(t *testing.T) {
	store := recovery.NewMemoryStore()
	ctx := context.Background()
	bob := &auth.Principal{ID: "bob", User: "bob"}

	for _, id := range []string{"alice", AnonymousKey, "ghost"} {
		require.NoError(t, store.Put(ctx, id, &recovery.Snapshot{
			Kind: recovery.KindStopwatch, Paused: true, ElapsedMs: 1000, SavedAtMs: epoch.UnixMilli(),
		}))
	}
	require.NoError(t, store.Put(ctx, "bob", &recovery.Snapshot{
		Kind: recovery.KindCountdown, Running: true, TotalMs: 1000, RemainingMs: 1000,
		StartEpochMs: epoch.Add(-time.Hour).UnixMilli(), SavedAtMs: epoch.Add(-time.Hour).UnixMilli(),
	}))

	r, _, rec := newRegistry(t, store, alice, bob)
	n, err := r.RecoverAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "ghost has no identity and is skipped")
	assert.Equal(t, 3, r.Len())

	// bob's countdown expired while the process was down.
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "bob", rec.got[0].userID)

	e, err := r.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, StatePaused, e.Stopwatch().State)
}

func TestRegistry_CloseIsIdempotentAndRejectsGet(t *testing.T) {
	r, clk, _ := newRegistry(t, recovery.NewMemoryStore())
	ctx := context.Background()
	e, err := r.Get(ctx, alice)
	require.NoError(t, err)
	e.StartStopwatch()
	require.Equal(t, 1, clk.ActiveTickers())

	require.NoError(t, r.Close(ctx))
	require.NoError(t, r.Close(ctx))
	assert.Zero(t, clk.ActiveTickers())
	assert.Zero(t, r.Len())

	_, err = r.Get(ctx, alice)
	assert.ErrorIs(t, err, ErrRegistryClosed)
}
