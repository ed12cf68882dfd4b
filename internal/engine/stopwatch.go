// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"slices"
	"time"

	"github.com/ManuGH/chrono/internal/recovery"
)

// State names shared by both machines.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StatePaused    = "paused"
	StateCompleted = "completed"
)

// stopwatch is the pure state machine behind the stopwatch. It never reads
// the clock; every method takes the current instant.
//
// While running, elapsed holds the largest value observed so far and the
// true value is now - anchor. While paused, elapsed is authoritative.
type stopwatch struct {
	anchor  time.Time
	elapsed time.Duration
	running bool
	paused  bool
	laps    []time.Duration
}

func (s *stopwatch) state() string {
	switch {
	case s.running:
		return StateRunning
	case s.paused:
		return StatePaused
	default:
		return StateIdle
	}
}

// current is the elapsed time at now. A wall clock that moved backwards
// yields the last observed value instead of a smaller one.
func (s *stopwatch) current(now time.Time) time.Duration {
	if !s.running {
		return s.elapsed
	}
	d := now.Sub(s.anchor)
	if d < s.elapsed {
		return s.elapsed
	}
	return d
}

func (s *stopwatch) tick(now time.Time) {
	if s.running {
		s.elapsed = s.current(now)
	}
}

// start begins a fresh run or resumes a paused one.
func (s *stopwatch) start(now time.Time) bool {
	switch {
	case s.running:
		return false
	case s.paused:
		s.anchor = now.Add(-s.elapsed)
	default:
		s.anchor = now
		s.elapsed = 0
		s.laps = nil
	}
	s.running, s.paused = true, false
	return true
}

func (s *stopwatch) pause(now time.Time) bool {
	if !s.running {
		return false
	}
	s.elapsed = s.current(now)
	s.running, s.paused = false, true
	return true
}

func (s *stopwatch) resume(now time.Time) bool {
	if !s.paused {
		return false
	}
	return s.start(now)
}

// lap appends the current elapsed time. Idle stopwatches have no laps.
func (s *stopwatch) lap(now time.Time) (time.Duration, bool) {
	if !s.running && !s.paused {
		return 0, false
	}
	v := s.current(now)
	s.elapsed = v
	s.laps = append(s.laps, v)
	return v, true
}

// stop returns the final elapsed time and laps and clears the machine.
func (s *stopwatch) stop(now time.Time) (time.Duration, []time.Duration, bool) {
	if !s.running && !s.paused {
		return 0, nil, false
	}
	final := s.current(now)
	laps := s.laps
	s.reset()
	return final, laps, true
}

func (s *stopwatch) reset() {
	*s = stopwatch{}
}

func (s *stopwatch) view(now time.Time) StopwatchView {
	v := StopwatchView{
		State:     s.state(),
		ElapsedMs: s.current(now).Milliseconds(),
		Laps:      make([]int64, len(s.laps)),
	}
	for i, l := range s.laps {
		v.Laps[i] = l.Milliseconds()
	}
	if s.running {
		at := s.anchor.UTC()
		v.StartedAt = &at
	}
	return v
}

// snapshot returns nil for an idle stopwatch; idle state is stored as absence.
func (s *stopwatch) snapshot(now time.Time) *recovery.Snapshot {
	if !s.running && !s.paused {
		return nil
	}
	snap := &recovery.Snapshot{
		Kind:      recovery.KindStopwatch,
		Running:   s.running,
		Paused:    s.paused,
		ElapsedMs: s.current(now).Milliseconds(),
		SavedAtMs: now.UnixMilli(),
	}
	if s.running {
		snap.StartEpochMs = s.anchor.UnixMilli()
	}
	for _, l := range s.laps {
		snap.Laps = append(snap.Laps, l.Milliseconds())
	}
	return snap
}

// restore rebuilds the machine from snap. A running snapshot keeps counting
// through the time the process was down: the anchor is the instant the
// stored elapsed value was measured minus that value.
func (s *stopwatch) restore(snap *recovery.Snapshot, now time.Time) {
	s.reset()
	s.elapsed = time.Duration(snap.ElapsedMs) * time.Millisecond
	for _, l := range snap.Laps {
		s.laps = append(s.laps, time.Duration(l)*time.Millisecond)
	}
	s.laps = slices.Clip(s.laps)
	switch {
	case snap.Running:
		s.anchor = restoreAnchor(snap, s.elapsed, now)
		s.running = true
	case snap.Paused:
		s.paused = true
	}
}

// restoreAnchor derives the wall-clock anchor for a running snapshot whose
// progress was `progress` at SavedAtMs. If the clock now reads earlier than
// that, the anchor is pulled back so progress never shrinks.
func restoreAnchor(snap *recovery.Snapshot, progress time.Duration, now time.Time) time.Time {
	anchor := time.UnixMilli(snap.StartEpochMs)
	if snap.SavedAtMs > 0 {
		anchor = time.UnixMilli(snap.SavedAtMs).Add(-progress)
	}
	if now.Sub(anchor) < progress {
		anchor = now.Add(-progress)
	}
	return anchor
}
