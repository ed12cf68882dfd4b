// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/chrono/internal/clock"
)

func TestMemory_GetSet(t *testing.T) {
	c := NewMemory[string, int]()
	c.Set("a", 1, time.Minute)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, 1, st.CurrentSize)
}

func TestMemory_Expiration(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	c := NewMemory[string, string](WithClock(clk))
	c.Set("short", "v", time.Second)
	c.Set("forever", "v", 0)

	clk.Advance(999 * time.Millisecond)
	_, ok := c.Get("short")
	assert.True(t, ok)

	clk.Advance(time.Millisecond)
	_, ok = c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("forever")
	assert.True(t, ok)

	assert.Equal(t, 1, c.DeleteExpired())
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestMemory_GetOrLoad(t *testing.T) {
	c := NewMemory[string, int]()
	calls := 0
	load := func(k string) (int, error) {
		calls++
		if k == "bad" {
			return 0, errors.New("boom")
		}
		return len(k), nil
	}

	v, err := c.GetOrLoad("four", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 4, v)
	_, _ = c.GetOrLoad("four", time.Minute, load)
	assert.Equal(t, 1, calls)

	_, err = c.GetOrLoad("bad", time.Minute, load)
	assert.Error(t, err)
	_, err = c.GetOrLoad("bad", time.Minute, load)
	assert.Error(t, err)
	assert.Equal(t, 3, calls, "errors are not cached")
}

func TestMemory_JanitorStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := clock.NewManual(time.Unix(0, 0))
	c := NewMemory[string, int](WithClock(clk), WithCleanup(time.Minute))
	c.Set("k", 1, time.Second)
	require.Eventually(t, func() bool { return clk.ActiveTickers() == 1 }, time.Second, time.Millisecond)
	clk.Advance(time.Minute)

	require.Eventually(t, func() bool { return c.Stats().CurrentSize == 0 }, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()
}
