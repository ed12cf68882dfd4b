// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package engine implements the elapsed-time engine: a stopwatch and a
// countdown whose displayed values are always derived from the clock and an
// anchor instant. Ticks only trigger recomputation, event fan-out and
// throttled snapshot writes; they never accumulate time.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/chrono/internal/auth"
	"github.com/ManuGH/chrono/internal/clock"
	"github.com/ManuGH/chrono/internal/log"
	"github.com/ManuGH/chrono/internal/metrics"
	"github.com/ManuGH/chrono/internal/recovery"
	"github.com/ManuGH/chrono/internal/sessions"
)

// AnonymousKey is the recovery key of the engine shared by callers without
// an identity. Principal IDs cannot start with an underscore.
const AnonymousKey = "_anonymous"

const (
	DefaultTickInterval    = 100 * time.Millisecond
	DefaultPersistInterval = 3 * time.Second
)

// SessionRecorder accepts finished runs. Implementations must not block and
// report nothing back; sessions.Recorder is the production implementation.
type SessionRecorder interface {
	Record(userID string, s sessions.Session)
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Clock           clock.Clock
	TickInterval    time.Duration
	PersistInterval time.Duration
	Recovery        recovery.Store
	Recorder        SessionRecorder
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.PersistInterval <= 0 {
		o.PersistInterval = DefaultPersistInterval
	}
	if o.Recovery == nil {
		o.Recovery = recovery.NewMemoryStore()
	}
	return o
}

type tickLoop struct {
	ticker clock.Ticker
	stop   chan struct{}
}

// Engine owns one stopwatch and one countdown for a single principal.
// All operations and tick callbacks are serialized by mu. Failures of the
// recovery store and the session recorder are logged and absorbed.
type Engine struct {
	principal *auth.Principal
	key       string
	opts      Options
	logger    zerolog.Logger
	persist   *persister

	mu            sync.Mutex
	sw            stopwatch
	cd            countdown
	swLoop        *tickLoop
	cdLoop        *tickLoop
	swPersistedAt time.Time
	cdPersistedAt time.Time
	subs          map[int]chan Event
	nextSub       int
	recovered     bool
	closed        bool

	wg sync.WaitGroup
}

// New creates an idle engine. p may be nil for an anonymous caller, in which
// case no sessions are ever recorded.
func New(p *auth.Principal, opts Options) *Engine {
	opts = opts.withDefaults()
	key := AnonymousKey
	if p != nil {
		key = p.ID
	}
	logger := log.WithComponent("engine").With().Str(log.FieldPrincipalID, key).Logger()
	return &Engine{
		principal: p,
		key:       key,
		opts:      opts,
		logger:    logger,
		persist:   newPersister(opts.Recovery, key, logger),
		subs:      make(map[int]chan Event),
	}
}

// Principal returns the identity the engine records sessions for, or nil.
func (e *Engine) Principal() *auth.Principal { return e.principal }

// Recover restores both machines from the recovery store. It runs at most
// once per engine; unreadable snapshots are discarded and the machine
// starts idle.
func (e *Engine) Recover(ctx context.Context) {
	e.mu.Lock()
	if e.recovered || e.closed {
		e.mu.Unlock()
		return
	}
	e.recovered = true
	e.mu.Unlock()

	snaps := make(map[recovery.Kind]*recovery.Snapshot, 2)
	for _, kind := range recovery.Kinds {
		snap, err := e.opts.Recovery.Get(ctx, e.key, kind)
		switch {
		case errors.Is(err, recovery.ErrCorrupt):
			e.logger.Warn().Err(err).Str(log.FieldEvent, "recovery.corrupt").Str(log.FieldKind, string(kind)).Msg("discarding corrupt snapshot")
			e.persist.enqueue(persistOp{kind: kind})
		case err != nil:
			e.logger.Warn().Err(err).Str(log.FieldEvent, "recovery.read_failed").Str(log.FieldKind, string(kind)).Msg("recovery store unavailable, starting fresh")
		case snap != nil:
			snaps[kind] = snap
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	now := e.opts.Clock.Now()

	if snap := snaps[recovery.KindStopwatch]; snap != nil {
		e.sw.restore(snap, now)
		if e.sw.running {
			e.startLoopLocked(recovery.KindStopwatch)
		}
		metrics.RecordTimerTransition(string(recovery.KindStopwatch), "recover")
		e.logger.Info().Str(log.FieldEvent, "engine.recovered").Str(log.FieldKind, "stopwatch").
			Str(log.FieldNewState, e.sw.state()).Dur(log.FieldElapsed, e.sw.current(now)).Msg("stopwatch restored")
		e.publishLocked(EventState, recovery.KindStopwatch, "recover", now)
	}

	if snap := snaps[recovery.KindCountdown]; snap != nil {
		e.cd.restore(snap, now)
		if e.cd.tick(now) {
			e.completeCountdownLocked(now)
		} else {
			if e.cd.running {
				e.startLoopLocked(recovery.KindCountdown)
			}
			e.saveLocked(recovery.KindCountdown, now)
		}
		metrics.RecordTimerTransition(string(recovery.KindCountdown), "recover")
		e.logger.Info().Str(log.FieldEvent, "engine.recovered").Str(log.FieldKind, "countdown").
			Str(log.FieldNewState, e.cd.state()).Dur(log.FieldRemaining, e.cd.current(now)).Msg("countdown restored")
		e.publishLocked(EventState, recovery.KindCountdown, "recover", now)
	}
}

// Stopwatch returns the stopwatch as of now.
func (e *Engine) Stopwatch() StopwatchView {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.opts.Clock.Now()
	e.sw.tick(now)
	return e.sw.view(now)
}

// Countdown returns the countdown as of now. Observing a run past its end
// completes it.
func (e *Engine) Countdown() CountdownView {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.opts.Clock.Now()
	e.advanceCountdownLocked(now)
	return e.cd.view(now)
}

// States returns one state event per machine as of now, the starting point
// for a new subscriber.
func (e *Engine) States() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.opts.Clock.Now()
	e.sw.tick(now)
	e.advanceCountdownLocked(now)
	sw, cd := e.sw.view(now), e.cd.view(now)
	return []Event{
		{Type: EventState, Kind: string(recovery.KindStopwatch), At: now.UTC(), Stopwatch: &sw},
		{Type: EventState, Kind: string(recovery.KindCountdown), At: now.UTC(), Countdown: &cd},
	}
}

// StartStopwatch starts a fresh run, or resumes a paused one. No-op while running.
func (e *Engine) StartStopwatch() {
	e.stopwatchOp("start", func(now time.Time) bool { return e.sw.start(now) })
}

// PauseStopwatch freezes the elapsed time. No-op unless running.
func (e *Engine) PauseStopwatch() {
	e.stopwatchOp("pause", func(now time.Time) bool { return e.sw.pause(now) })
}

// ResumeStopwatch continues a paused run. No-op unless paused.
func (e *Engine) ResumeStopwatch() {
	e.stopwatchOp("resume", func(now time.Time) bool { return e.sw.resume(now) })
}

// ResetStopwatch clears the stopwatch without recording a session.
func (e *Engine) ResetStopwatch() {
	e.stopwatchOp("reset", func(time.Time) bool {
		if e.sw.state() == StateIdle {
			return false
		}
		e.sw.reset()
		return true
	})
}

// AddLap records the current elapsed time as a lap. Only valid while
// running or paused.
func (e *Engine) AddLap() (time.Duration, bool) {
	var lap time.Duration
	var ok bool
	e.stopwatchOp("lap", func(now time.Time) bool {
		lap, ok = e.sw.lap(now)
		return ok
	})
	return lap, ok
}

// StopStopwatch ends the run and returns its final elapsed time. A session
// is recorded when the run is non-empty and the engine has an identity.
func (e *Engine) StopStopwatch() time.Duration {
	var final time.Duration
	e.stopwatchOp("stop", func(now time.Time) bool {
		elapsed, laps, ok := e.sw.stop(now)
		if !ok {
			return false
		}
		final = elapsed
		if elapsed > 0 {
			e.recordLocked(sessions.NewStopwatchSession(elapsed, laps, now))
		}
		return true
	})
	return final
}

func (e *Engine) stopwatchOp(action string, apply func(now time.Time) bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	now := e.opts.Clock.Now()
	old := e.sw.state()
	if !apply(now) {
		return
	}
	if e.sw.running {
		if old != StateRunning {
			e.startLoopLocked(recovery.KindStopwatch)
		}
	} else {
		e.stopLoopLocked(recovery.KindStopwatch)
	}
	e.saveLocked(recovery.KindStopwatch, now)
	e.transitionLocked(recovery.KindStopwatch, action, old, e.sw.state(), now)
}

// StartCountdown starts a run of d. d <= 0 is ignored. A paused run is
// resumed instead, and a completed run is replaced. No-op while running.
func (e *Engine) StartCountdown(d time.Duration) {
	e.countdownOp("start", func(now time.Time) bool { return e.cd.start(d, now) })
}

// PauseCountdown freezes the remaining time. No-op unless running.
func (e *Engine) PauseCountdown() {
	e.countdownOp("pause", func(now time.Time) bool { return e.cd.pause(now) })
}

// ResumeCountdown continues a paused run. No-op unless paused.
func (e *Engine) ResumeCountdown() {
	e.countdownOp("resume", func(now time.Time) bool { return e.cd.resume(now) })
}

// ResetCountdown clears the countdown without recording a session.
func (e *Engine) ResetCountdown() {
	e.countdownOp("reset", func(time.Time) bool {
		if e.cd.state() == StateIdle {
			return false
		}
		e.cd.reset()
		return true
	})
}

// StopCountdown ends the run. A session is recorded unless one was already
// recorded for this run when it completed.
func (e *Engine) StopCountdown() CountdownResult {
	var res CountdownResult
	e.countdownOp("stop", func(now time.Time) bool {
		var emit bool
		res, emit = e.cd.stop(now)
		if !res.Stopped {
			return false
		}
		if emit {
			e.recordLocked(sessions.NewTimerSession(res.Total, res.Elapsed, res.Completed, now))
		}
		return true
	})
	return res
}

func (e *Engine) countdownOp(action string, apply func(now time.Time) bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	now := e.opts.Clock.Now()
	// A run that hit zero before this call completes first, so a stop in the
	// same instant as expiry sees the completed run.
	e.advanceCountdownLocked(now)

	old := e.cd.state()
	if !apply(now) {
		return
	}
	if e.cd.running {
		if old != StateRunning {
			e.startLoopLocked(recovery.KindCountdown)
		}
	} else {
		e.stopLoopLocked(recovery.KindCountdown)
	}
	e.saveLocked(recovery.KindCountdown, now)
	e.transitionLocked(recovery.KindCountdown, action, old, e.cd.state(), now)
}

// advanceCountdownLocked runs the tick computation for the countdown and
// handles completion.
func (e *Engine) advanceCountdownLocked(now time.Time) {
	if e.cd.tick(now) {
		e.completeCountdownLocked(now)
	}
}

// completeCountdownLocked finishes a run that reached zero. The one-shot
// flag is claimed before the recorder is called.
func (e *Engine) completeCountdownLocked(now time.Time) {
	e.stopLoopLocked(recovery.KindCountdown)
	if e.cd.claimSession() {
		e.recordLocked(sessions.NewTimerSession(e.cd.total, e.cd.total, true, now))
	}
	e.saveLocked(recovery.KindCountdown, now)
	metrics.RecordTimerTransition(string(recovery.KindCountdown), "complete")
	e.logger.Info().
		Str(log.FieldEvent, "countdown.completed").
		Dur(log.FieldTotal, e.cd.total).
		Msg("countdown completed")
	e.publishLocked(EventCompleted, recovery.KindCountdown, "complete", now)
}

func (e *Engine) recordLocked(s sessions.Session) {
	if e.principal == nil || e.opts.Recorder == nil {
		metrics.RecordSession(sessions.ResultSkippedAnonymous)
		return
	}
	e.opts.Recorder.Record(e.principal.ID, s)
}

// saveLocked queues the current state of kind for the recovery store.
func (e *Engine) saveLocked(kind recovery.Kind, now time.Time) {
	var snap *recovery.Snapshot
	if kind == recovery.KindStopwatch {
		snap = e.sw.snapshot(now)
		e.swPersistedAt = now
	} else {
		snap = e.cd.snapshot(now)
		e.cdPersistedAt = now
	}
	e.persist.enqueue(persistOp{kind: kind, snap: snap})
}

func (e *Engine) transitionLocked(kind recovery.Kind, action, old, next string, now time.Time) {
	metrics.RecordTimerTransition(string(kind), action)
	e.logger.Debug().
		Str(log.FieldEvent, "engine.transition").
		Str(log.FieldKind, string(kind)).
		Str(log.FieldAction, action).
		Str(log.FieldOldState, old).
		Str(log.FieldNewState, next).
		Msg("timer transition")
	e.publishLocked(EventState, kind, action, now)
}

func (e *Engine) loopFor(kind recovery.Kind) **tickLoop {
	if kind == recovery.KindStopwatch {
		return &e.swLoop
	}
	return &e.cdLoop
}

// startLoopLocked replaces any loop for kind with a fresh one.
func (e *Engine) startLoopLocked(kind recovery.Kind) {
	e.stopLoopLocked(kind)
	loop := &tickLoop{
		ticker: e.opts.Clock.NewTicker(e.opts.TickInterval),
		stop:   make(chan struct{}),
	}
	*e.loopFor(kind) = loop
	e.wg.Add(1)
	go e.runLoop(kind, loop)
}

// stopLoopLocked detaches the loop for kind. A tick already waiting on mu
// finds itself detached and does nothing.
func (e *Engine) stopLoopLocked(kind recovery.Kind) {
	slot := e.loopFor(kind)
	if *slot == nil {
		return
	}
	(*slot).ticker.Stop()
	close((*slot).stop)
	*slot = nil
}

func (e *Engine) runLoop(kind recovery.Kind, loop *tickLoop) {
	defer e.wg.Done()
	for {
		select {
		case <-loop.stop:
			return
		case <-loop.ticker.C():
			e.onTick(kind, loop)
		}
	}
}

func (e *Engine) onTick(kind recovery.Kind, loop *tickLoop) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if *e.loopFor(kind) != loop {
		return
	}
	now := e.opts.Clock.Now()

	if kind == recovery.KindStopwatch {
		e.sw.tick(now)
		if now.Sub(e.swPersistedAt) >= e.opts.PersistInterval {
			e.saveLocked(kind, now)
		}
		e.publishLocked(EventTick, kind, "", now)
		return
	}

	if e.cd.tick(now) {
		e.completeCountdownLocked(now)
		return
	}
	if now.Sub(e.cdPersistedAt) >= e.opts.PersistInterval {
		e.saveLocked(kind, now)
	}
	e.publishLocked(EventTick, kind, "", now)
}

// Subscribe returns a channel of engine events and a function that
// cancels the subscription. Slow subscribers miss events rather than
// stalling the engine.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if c, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(c)
			}
		})
	}
}

func (e *Engine) publishLocked(typ EventType, kind recovery.Kind, action string, now time.Time) {
	if len(e.subs) == 0 {
		return
	}
	ev := Event{Type: typ, Kind: string(kind), Action: action, At: now.UTC()}
	if kind == recovery.KindStopwatch {
		v := e.sw.view(now)
		ev.Stopwatch = &v
	} else {
		v := e.cd.view(now)
		ev.Countdown = &v
	}
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close stops both tick loops, closes subscriber channels and flushes
// pending snapshot writes. Engine state stays in the recovery store so the
// next process resumes it.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopLoopLocked(recovery.KindStopwatch)
	e.stopLoopLocked(recovery.KindCountdown)
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.persist.close()
}
