// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/chrono/internal/recovery"
	"github.com/ManuGH/chrono/internal/sessions"
)

func TestStopwatch_ElapsedIsMonotonic(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartStopwatch()

	var last int64
	for _, step := range []time.Duration{ms(10), ms(250), 0, ms(1), time.Second} {
		h.clock.Advance(step)
		h.tick(recovery.KindStopwatch)
		got := h.engine.Stopwatch().ElapsedMs
		assert.GreaterOrEqual(t, got, last)
		last = got
	}

	// A wall clock stepping backwards must not shrink elapsed time.
	h.clock.Set(h.clock.Now().Add(-10 * time.Second))
	assert.Equal(t, last, h.engine.Stopwatch().ElapsedMs)
}

func TestStopwatch_PauseFreezesTime(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartStopwatch()
	h.clock.Advance(1500 * time.Millisecond)

	before := h.engine.Stopwatch().ElapsedMs
	h.engine.PauseStopwatch()
	assert.Equal(t, StatePaused, h.engine.Stopwatch().State)

	h.clock.Advance(time.Minute)
	assert.Equal(t, before, h.engine.Stopwatch().ElapsedMs)

	h.engine.ResumeStopwatch()
	assert.Equal(t, before, h.engine.Stopwatch().ElapsedMs)
	assert.Equal(t, StateRunning, h.engine.Stopwatch().State)

	h.clock.Advance(500 * time.Millisecond)
	assert.Equal(t, int64(2000), h.engine.Stopwatch().ElapsedMs)
}

func TestStopwatch_InvalidTransitionsAreNoOps(t *testing.T) {
	h := newHarness(t, 0)

	h.engine.PauseStopwatch()
	h.engine.ResumeStopwatch()
	_, ok := h.engine.AddLap()
	assert.False(t, ok)
	assert.Equal(t, time.Duration(0), h.engine.StopStopwatch())
	assert.Equal(t, StateIdle, h.engine.Stopwatch().State)

	h.engine.StartStopwatch()
	h.clock.Advance(time.Second)
	h.engine.StartStopwatch() // already running: must not re-anchor
	assert.Equal(t, int64(1000), h.engine.Stopwatch().ElapsedMs)
	assert.Zero(t, h.recorder.count())
}

func TestStopwatch_RoundTripScenario(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartStopwatch()

	h.clock.Advance(1500 * time.Millisecond)
	lap, ok := h.engine.AddLap()
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, lap)

	h.clock.Advance(1700 * time.Millisecond)
	final := h.engine.StopStopwatch()
	assert.Equal(t, 3200*time.Millisecond, final)
	assert.Equal(t, StateIdle, h.engine.Stopwatch().State)

	got := h.recorder.sessions()
	require.Len(t, got, 1)
	assert.Equal(t, sessions.TypeStopwatch, got[0].Type)
	assert.Equal(t, int64(3), got[0].Duration)
	assert.Equal(t, []int64{1500}, got[0].Laps)
	assert.Equal(t, "alice", h.recorder.got[0].userID)
}

func TestStopwatch_ZeroElapsedStopRecordsNothing(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartStopwatch()
	h.engine.StopStopwatch()
	assert.Zero(t, h.recorder.count())
}

func TestStopwatch_LapsWhilePausedKeepOrder(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartStopwatch()
	h.clock.Advance(time.Second)
	h.engine.AddLap()
	h.engine.PauseStopwatch()
	h.clock.Advance(time.Hour)
	h.engine.AddLap()
	h.engine.AddLap()

	assert.Equal(t, []int64{1000, 1000, 1000}, h.engine.Stopwatch().Laps)
}

func TestStopwatch_ResetThenStartIsFresh(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartStopwatch()
	h.clock.Advance(2 * time.Second)
	h.engine.AddLap()
	h.engine.ResetStopwatch()
	h.engine.ResetStopwatch() // valid from idle too

	h.engine.StartStopwatch()
	fresh := newHarness(t, 0)
	fresh.clock.Set(h.clock.Now())
	fresh.engine.StartStopwatch()

	assert.Equal(t, fresh.engine.Stopwatch(), h.engine.Stopwatch())
	assert.Empty(t, h.engine.Stopwatch().Laps)
	assert.Zero(t, h.recorder.count(), "reset never records a session")
}

func TestCountdown_RemainingStaysInBounds(t *testing.T) {
	h := newHarness(t, 0)
	total := 5 * time.Second
	h.engine.StartCountdown(total)

	check := func() {
		v := h.engine.Countdown()
		assert.GreaterOrEqual(t, v.RemainingMs, int64(0))
		assert.LessOrEqual(t, v.RemainingMs, total.Milliseconds())
	}
	check()
	h.clock.Set(epoch.Add(-time.Hour))
	check()
	h.clock.Set(epoch.Add(2 * time.Second))
	check()
	h.engine.PauseCountdown()
	check()
	h.engine.ResumeCountdown()
	h.clock.Advance(time.Hour)
	check()
	assert.Equal(t, StateCompleted, h.engine.Countdown().State)
}

func TestCountdown_NonPositiveDurationIsIgnored(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartCountdown(0)
	h.engine.StartCountdown(-time.Second)
	assert.Equal(t, StateIdle, h.engine.Countdown().State)
}

func TestCountdown_PauseResume(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartCountdown(10 * time.Second)
	h.clock.Advance(4 * time.Second)
	h.engine.PauseCountdown()

	h.clock.Advance(time.Minute)
	assert.Equal(t, int64(6000), h.engine.Countdown().RemainingMs)

	// start while paused resumes and ignores the new duration
	h.engine.StartCountdown(time.Hour)
	v := h.engine.Countdown()
	assert.Equal(t, StateRunning, v.State)
	assert.Equal(t, int64(10_000), v.TotalMs)
	assert.Equal(t, int64(6000), v.RemainingMs)

	h.clock.Advance(time.Second)
	assert.Equal(t, int64(5000), h.engine.Countdown().RemainingMs)
}

func TestCountdown_EarlyStopScenario(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartCountdown(5 * time.Second)
	h.clock.Advance(2 * time.Second)

	res := h.engine.StopCountdown()
	assert.True(t, res.Stopped)
	assert.False(t, res.Completed)
	assert.Equal(t, 2*time.Second, res.Elapsed)

	got := h.recorder.sessions()
	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, sessions.TypeTimer, s.Type)
	assert.Equal(t, int64(5), s.Duration)
	assert.Equal(t, int64(5), *s.OriginalDuration)
	assert.Equal(t, int64(2), *s.ElapsedTime)
	assert.False(t, *s.Completed)
	assert.Equal(t, StateIdle, h.engine.Countdown().State)
}

func TestCountdown_CompletionThenStopRecordsOnce(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartCountdown(time.Second)
	h.clock.Advance(1500 * time.Millisecond)
	h.tick(recovery.KindCountdown)

	v := h.engine.Countdown()
	assert.Equal(t, StateCompleted, v.State)
	assert.Equal(t, int64(0), v.RemainingMs)
	require.Equal(t, 1, h.recorder.count())

	res := h.engine.StopCountdown()
	assert.True(t, res.Completed)
	h.engine.StopCountdown()
	h.engine.Countdown()

	got := h.recorder.sessions()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Duration)
	assert.Equal(t, int64(1), *got[0].ElapsedTime)
	assert.True(t, *got[0].Completed)
}

func TestCountdown_StopAtExpiryInstantCompletes(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartCountdown(time.Second)
	h.clock.Advance(time.Second) // no tick has run yet

	res := h.engine.StopCountdown()
	assert.True(t, res.Completed)
	got := h.recorder.sessions()
	require.Len(t, got, 1)
	assert.True(t, *got[0].Completed)
}

func TestCountdown_NaturalCompletionViaTickLoop(t *testing.T) {
	h := newHarness(t, 100*time.Millisecond)
	events, cancel := h.engine.Subscribe(64)
	defer cancel()

	h.engine.StartCountdown(time.Second)
	for i := 0; i < 10; i++ {
		h.clock.Advance(100 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return h.recorder.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	var sawCompleted bool
	timeout := time.After(2 * time.Second)
	for !sawCompleted {
		select {
		case ev := <-events:
			sawCompleted = ev.Type == EventCompleted
		case <-timeout:
			t.Fatal("no completion event")
		}
	}

	h.engine.StopCountdown()
	assert.Equal(t, 1, h.recorder.count())
	s := h.recorder.sessions()[0]
	assert.Equal(t, int64(1), s.Duration)
	assert.Equal(t, int64(1), *s.ElapsedTime)
	assert.True(t, *s.Completed)
}

func TestCountdown_StartAfterCompletionIsNewRun(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartCountdown(time.Second)
	h.clock.Advance(2 * time.Second)
	require.Equal(t, StateCompleted, h.engine.Countdown().State)

	h.engine.StartCountdown(3 * time.Second)
	h.clock.Advance(3 * time.Second)
	h.engine.Countdown()
	assert.Equal(t, 2, h.recorder.count(), "each run records its own completion")
}

func TestStaleTickIsIgnored(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartStopwatch()

	h.engine.mu.Lock()
	stale := h.engine.swLoop
	h.engine.mu.Unlock()

	h.clock.Advance(time.Second)
	h.engine.ResetStopwatch()
	h.engine.onTick(recovery.KindStopwatch, stale)

	v := h.engine.Stopwatch()
	assert.Equal(t, StateIdle, v.State)
	assert.Zero(t, v.ElapsedMs)
}

func TestOnlyOneTickLoopPerKind(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartStopwatch()
	h.engine.PauseStopwatch()
	h.engine.ResumeStopwatch()
	h.engine.StartCountdown(time.Minute)
	h.engine.PauseCountdown()
	h.engine.StartCountdown(time.Minute)

	assert.Equal(t, 2, h.clock.ActiveTickers())
	h.engine.ResetStopwatch()
	h.engine.ResetCountdown()
	assert.Equal(t, 0, h.clock.ActiveTickers())
}

func TestAnonymousEngineNeverRecords(t *testing.T) {
	h := newHarness(t, 0)
	anon := New(nil, h.options(time.Hour))
	defer anon.Close()

	anon.StartStopwatch()
	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 5*time.Second, anon.StopStopwatch())

	anon.StartCountdown(time.Second)
	h.clock.Advance(time.Second)
	anon.Countdown()
	assert.Zero(t, h.recorder.count())
}

func TestSubscribeDeliversStateEvents(t *testing.T) {
	h := newHarness(t, 0)
	events, cancel := h.engine.Subscribe(8)

	h.engine.StartStopwatch()
	ev := <-events
	assert.Equal(t, EventState, ev.Type)
	assert.Equal(t, "stopwatch", ev.Kind)
	assert.Equal(t, "start", ev.Action)
	require.NotNil(t, ev.Stopwatch)
	assert.Equal(t, StateRunning, ev.Stopwatch.State)

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
}

func TestCloseStopsLoopsAndClosesSubscribers(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond)
	events, _ := h.engine.Subscribe(1)
	h.engine.StartStopwatch()
	h.engine.StartCountdown(time.Minute)

	h.engine.Close()
	assert.Equal(t, 0, h.clock.ActiveTickers())
	for range events {
	}

	// Operations after Close are ignored.
	h.engine.StopStopwatch()
	assert.Zero(t, h.recorder.count())

	snap, err := h.store.Get(context.Background(), "alice", recovery.KindStopwatch)
	require.NoError(t, err)
	require.NotNil(t, snap, "state survives Close for the next process")
	assert.True(t, snap.Running)
}

func TestStates_SnapshotsBothEnginesAtNow(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartStopwatch()
	h.engine.StartCountdown(5 * time.Second)

	h.clock.Advance(2 * time.Second)
	states := h.engine.States()
	require.Len(t, states, 2)

	sw, cd := states[0], states[1]
	assert.Equal(t, EventState, sw.Type)
	assert.Equal(t, string(recovery.KindStopwatch), sw.Kind)
	assert.Equal(t, epoch.Add(2*time.Second), sw.At)
	require.NotNil(t, sw.Stopwatch)
	assert.Nil(t, sw.Countdown)
	assert.Equal(t, int64(2000), sw.Stopwatch.ElapsedMs)

	assert.Equal(t, string(recovery.KindCountdown), cd.Kind)
	require.NotNil(t, cd.Countdown)
	assert.Equal(t, int64(3000), cd.Countdown.RemainingMs)
	assert.Zero(t, h.recorder.count())
}

func TestStates_CompletesExpiredCountdown(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.StartCountdown(5 * time.Second)

	// No tick ran; reading the state must still observe the expiry.
	h.clock.Advance(6 * time.Second)
	states := h.engine.States()
	require.NotNil(t, states[1].Countdown)
	assert.Equal(t, StateCompleted, states[1].Countdown.State)
	assert.Zero(t, states[1].Countdown.RemainingMs)
	assert.Equal(t, 1, h.recorder.count())

	h.engine.States()
	assert.Equal(t, 1, h.recorder.count())
}
