// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"time"

	"github.com/ManuGH/chrono/internal/recovery"
)

// countdown is the pure state machine behind the timer.
//
// remaining is authoritative while paused or completed; while running the
// true value is total - (now - anchor), clamped to [0, remaining].
// sessionSaved is the one-shot flag: once set, this run never emits another
// session.
type countdown struct {
	total        time.Duration
	anchor       time.Time
	remaining    time.Duration
	running      bool
	paused       bool
	completed    bool
	sessionSaved bool
}

// CountdownResult describes a stopped countdown.
type CountdownResult struct {
	Stopped   bool          `json:"stopped"`
	Completed bool          `json:"completed"`
	Total     time.Duration `json:"-"`
	Remaining time.Duration `json:"-"`
	Elapsed   time.Duration `json:"-"`
}

func (c *countdown) state() string {
	switch {
	case c.running:
		return StateRunning
	case c.paused:
		return StatePaused
	case c.completed:
		return StateCompleted
	default:
		return StateIdle
	}
}

func (c *countdown) current(now time.Time) time.Duration {
	if !c.running {
		return c.remaining
	}
	r := c.total - now.Sub(c.anchor)
	if r > c.remaining {
		r = c.remaining
	}
	if r < 0 {
		r = 0
	}
	return r
}

// tick refreshes remaining and reports whether this call completed the run.
func (c *countdown) tick(now time.Time) bool {
	if !c.running {
		return false
	}
	c.remaining = c.current(now)
	if c.remaining > 0 {
		return false
	}
	c.running = false
	c.paused = false
	c.completed = true
	return true
}

// start begins a fresh run of d, or resumes a paused run ignoring d.
// A completed run is replaced by a fresh one.
func (c *countdown) start(d time.Duration, now time.Time) bool {
	switch {
	case c.running:
		return false
	case c.paused:
		return c.resume(now)
	case d <= 0:
		return false
	}
	*c = countdown{
		total:     d,
		remaining: d,
		anchor:    now,
		running:   true,
	}
	return true
}

func (c *countdown) pause(now time.Time) bool {
	if !c.running {
		return false
	}
	c.remaining = c.current(now)
	c.running, c.paused = false, true
	return true
}

func (c *countdown) resume(now time.Time) bool {
	if !c.paused {
		return false
	}
	c.anchor = now.Add(-(c.total - c.remaining))
	c.running, c.paused = true, false
	return true
}

// stop clears the machine. emit reports whether the caller must write a
// session for this run; it is false when the one-shot flag was already set.
func (c *countdown) stop(now time.Time) (res CountdownResult, emit bool) {
	if !c.running && !c.paused && !c.completed {
		return CountdownResult{}, false
	}
	remaining := c.current(now)
	if c.completed {
		remaining = 0
	}
	res = CountdownResult{
		Stopped:   true,
		Completed: c.completed,
		Total:     c.total,
		Remaining: remaining,
		Elapsed:   c.total - remaining,
	}
	emit = !c.sessionSaved
	c.reset()
	return res, emit
}

// claimSession sets the one-shot flag and reports whether it was unset.
func (c *countdown) claimSession() bool {
	if c.sessionSaved {
		return false
	}
	c.sessionSaved = true
	return true
}

func (c *countdown) reset() {
	*c = countdown{}
}

func (c *countdown) view(now time.Time) CountdownView {
	r := c.current(now)
	v := CountdownView{
		State:       c.state(),
		TotalMs:     c.total.Milliseconds(),
		RemainingMs: r.Milliseconds(),
		ElapsedMs:   (c.total - r).Milliseconds(),
		Completed:   c.completed,
	}
	if c.running {
		at := c.anchor.Add(c.total).UTC()
		v.EndsAt = &at
	}
	return v
}

func (c *countdown) snapshot(now time.Time) *recovery.Snapshot {
	if !c.running && !c.paused && !c.completed {
		return nil
	}
	r := c.current(now)
	totalMs, remainingMs := ceilMs(c.total), ceilMs(r)
	snap := &recovery.Snapshot{
		Kind:         recovery.KindCountdown,
		Running:      c.running,
		Paused:       c.paused,
		Completed:    c.completed,
		ElapsedMs:    totalMs - remainingMs,
		TotalMs:      totalMs,
		RemainingMs:  remainingMs,
		SessionSaved: c.sessionSaved,
		SavedAtMs:    now.UnixMilli(),
	}
	if c.running {
		snap.StartEpochMs = c.anchor.UnixMilli()
	}
	return snap
}

// restore rebuilds the machine from snap. The caller runs tick afterwards
// so a run that expired while the process was down completes immediately.
func (c *countdown) restore(snap *recovery.Snapshot, now time.Time) {
	c.reset()
	c.total = time.Duration(snap.TotalMs) * time.Millisecond
	c.remaining = time.Duration(snap.RemainingMs) * time.Millisecond
	c.sessionSaved = snap.SessionSaved
	switch {
	case snap.Completed:
		c.completed = true
		c.remaining = 0
	case snap.Running:
		c.anchor = restoreAnchor(snap, c.total-c.remaining, now)
		c.running = true
	case snap.Paused:
		c.paused = true
	}
}

// ceilMs rounds d up to whole milliseconds so a sub-millisecond run still
// has a non-zero total in its snapshot. ceilMs(a) <= ceilMs(b) for a <= b.
func ceilMs(d time.Duration) int64 {
	ms := d.Milliseconds()
	if d > time.Duration(ms)*time.Millisecond {
		ms++
	}
	return ms
}
