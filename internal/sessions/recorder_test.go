// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/chrono/internal/resilience"
)

// gatedStore blocks every Append until the gate is opened.
type gatedStore struct {
	*MemoryStore
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{MemoryStore: NewMemoryStore(), gate: make(chan struct{}), entered: make(chan struct{})}
}

func (g *gatedStore) Append(ctx context.Context, userID string, s Session) error {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.MemoryStore.Append(ctx, userID, s)
}

type failingStore struct {
	*MemoryStore
	mu    sync.Mutex
	calls int
}

func (f *failingStore) Append(context.Context, string, Session) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("disk full")
}

func TestRecorder_PersistsAndDrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewMemoryStore()
	r := NewRecorder(store, RecorderConfig{QueueSize: 8})
	for i := 0; i < 5; i++ {
		r.Record("alice", NewStopwatchSession(time.Duration(i+1)*time.Second, nil, time.Now()))
	}
	require.NoError(t, r.Close(context.Background()))

	got, err := store.List(context.Background(), "alice", Query{})
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestRecorder_RecordNeverBlocksWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newGatedStore()
	r := NewRecorder(store, RecorderConfig{QueueSize: 1})

	r.Record("alice", NewStopwatchSession(time.Second, nil, time.Now()))
	<-store.entered // worker holds the first session

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			r.Record("alice", NewStopwatchSession(time.Second, nil, time.Now()))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(store.gate)
	require.NoError(t, r.Close(context.Background()))

	got, err := store.List(context.Background(), "alice", Query{})
	require.NoError(t, err)
	assert.Len(t, got, 2, "one in flight plus one queued; the rest are dropped")
}

func TestRecorder_CloseDeadlineDropsBacklog(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newGatedStore()
	r := NewRecorder(store, RecorderConfig{QueueSize: 4})
	for i := 0; i < 3; i++ {
		r.Record("alice", NewStopwatchSession(time.Second, nil, time.Now()))
	}
	<-store.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got, _ := store.List(context.Background(), "alice", Query{})
	assert.Empty(t, got)

	// Closed recorders silently drop.
	r.Record("alice", NewStopwatchSession(time.Second, nil, time.Now()))
	require.NoError(t, r.Close(context.Background()))
}

func TestRecorder_SkipsAnonymous(t *testing.T) {
	store := NewMemoryStore()
	r := NewRecorder(store, RecorderConfig{})
	r.Record("", NewStopwatchSession(time.Second, nil, time.Now()))
	require.NoError(t, r.Close(context.Background()))
	assert.Empty(t, store.data)
}

func TestRecorder_OpensBreakerAfterFailures(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	r := NewRecorder(store, RecorderConfig{QueueSize: 16, BreakerThreshold: 2, BreakerReset: time.Hour})
	for i := 0; i < 6; i++ {
		r.Record("alice", NewStopwatchSession(time.Second, nil, time.Now()))
	}
	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, resilience.StateOpen, r.BreakerState())
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 2, store.calls, "open breaker short-circuits remaining writes")
}
