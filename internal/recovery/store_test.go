// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns one codecStore per backend together with its raw
// backend so tests can plant payloads the codec would refuse to write.
func backends(t *testing.T) map[string]*codecStore {
	t.Helper()

	sq, err := newSqliteBackend(t.TempDir() + "/recovery.sqlite")
	require.NoError(t, err)

	bd, err := newBadgerBackend(t.TempDir(), time.Hour)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	out := map[string]*codecStore{
		"memory": {b: newMemoryBackend()},
		"sqlite": {b: sq},
		"badger": {b: bd},
		"redis":  {b: newRedisBackendWithClient(client, "", time.Hour)},
	}
	t.Cleanup(func() {
		for _, s := range out {
			_ = s.Close()
		}
	})
	return out
}

func runningStopwatch() *Snapshot {
	return &Snapshot{
		Kind:         KindStopwatch,
		Running:      true,
		StartEpochMs: 1_700_000_000_000,
		ElapsedMs:    5000,
		Laps:         []int64{1200, 3100},
		SavedAtMs:    1_700_000_005_000,
	}
}

func pausedCountdown() *Snapshot {
	return &Snapshot{
		Kind:        KindCountdown,
		Paused:      true,
		TotalMs:     60_000,
		RemainingMs: 42_000,
		SavedAtMs:   1_700_000_010_000,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "alice", runningStopwatch()))
			require.NoError(t, s.Put(ctx, "alice", pausedCountdown()))

			sw, err := s.Get(ctx, "alice", KindStopwatch)
			require.NoError(t, err)
			want := runningStopwatch()
			want.V = SchemaVersion
			if diff := cmp.Diff(want, sw); diff != "" {
				t.Fatalf("stopwatch snapshot mismatch (-want +got):\n%s", diff)
			}

			cd, err := s.Get(ctx, "alice", KindCountdown)
			require.NoError(t, err)
			assert.Equal(t, int64(42_000), cd.RemainingMs)
			assert.True(t, cd.Paused)

			missing, err := s.Get(ctx, "bob", KindStopwatch)
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestStore_PutOverwritesAndDeleteClears(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := runningStopwatch()
			require.NoError(t, s.Put(ctx, "alice", first))

			second := runningStopwatch()
			second.ElapsedMs = 9000
			require.NoError(t, s.Put(ctx, "alice", second))

			got, err := s.Get(ctx, "alice", KindStopwatch)
			require.NoError(t, err)
			assert.Equal(t, int64(9000), got.ElapsedMs)

			require.NoError(t, s.Delete(ctx, "alice", KindStopwatch))
			require.NoError(t, s.Delete(ctx, "alice", KindStopwatch), "deleting an absent key is not an error")
			got, err = s.Get(ctx, "alice", KindStopwatch)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStore_CorruptPayload(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.b.put(ctx, key("alice", KindCountdown), []byte("{not json")))
			_, err := s.Get(ctx, "alice", KindCountdown)
			assert.ErrorIs(t, err, ErrCorrupt)

			require.NoError(t, s.b.put(ctx, key("alice", KindStopwatch), []byte(`{"v":1,"kind":"countdown","totalMs":10,"remainingMs":5,"savedAtMs":1}`)))
			_, err = s.Get(ctx, "alice", KindStopwatch)
			assert.ErrorIs(t, err, ErrCorrupt, "kind must match the key it is stored under")
		})
	}
}

func TestStore_Principals(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "bob", runningStopwatch()))
			require.NoError(t, s.Put(ctx, "alice", runningStopwatch()))
			require.NoError(t, s.Put(ctx, "alice", pausedCountdown()))
			require.NoError(t, s.Put(ctx, "team/ops", pausedCountdown()))

			got, err := s.Principals(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice", "bob", "team/ops"}, got)
			require.NoError(t, s.Ping(ctx))
		})
	}
}

func TestRedisBackend_AppliesTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := &codecStore{b: newRedisBackendWithClient(client, "", time.Minute)}
	defer s.Close()

	require.NoError(t, s.Put(context.Background(), "alice", runningStopwatch()))
	assert.Equal(t, time.Minute, mr.TTL(defaultRedisPrefix+"alice/stopwatch"))

	mr.FastForward(2 * time.Minute)
	got, err := s.Get(context.Background(), "alice", KindStopwatch)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOpen(t *testing.T) {
	for _, backend := range []string{"memory", "sqlite", "badger"} {
		t.Run(backend, func(t *testing.T) {
			s, err := Open(Config{Backend: backend, Dir: t.TempDir()})
			require.NoError(t, err)
			require.NoError(t, s.Ping(context.Background()))
			require.NoError(t, s.Close())
		})
	}

	mr := miniredis.RunT(t)
	s, err := Open(Config{Backend: "redis", Redis: RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(Config{Backend: "sqlite"})
	assert.Error(t, err)
	_, err = Open(Config{Backend: "etcd"})
	assert.Error(t, err)
}
