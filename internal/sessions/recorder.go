// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/ManuGH/chrono/internal/log"
	"github.com/ManuGH/chrono/internal/metrics"
	"github.com/ManuGH/chrono/internal/resilience"
	"github.com/ManuGH/chrono/internal/telemetry"
)

// Recorder outcomes, exported as the result label of chrono_sessions_recorded_total.
const (
	ResultPersisted        = "persisted"
	ResultFailed           = "failed"
	ResultCircuitOpen      = "circuit_open"
	ResultDroppedFull      = "dropped_full"
	ResultDroppedClosed    = "dropped_closed"
	ResultSkippedAnonymous = "skipped_anonymous"
)

// RecorderConfig tunes the background writer.
type RecorderConfig struct {
	QueueSize        int
	WritesPerSecond  float64
	Burst            int
	WriteTimeout     time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration
}

// DefaultRecorderConfig returns the settings used when the daemon config leaves them unset.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		QueueSize:        256,
		WritesPerSecond:  50,
		Burst:            10,
		WriteTimeout:     5 * time.Second,
		BreakerThreshold: 5,
		BreakerReset:     30 * time.Second,
	}
}

type job struct {
	userID string
	sess   Session
}

// Recorder appends sessions to a Store in the background. Record never
// blocks and never reports failure to the caller; outcomes surface only as
// metrics and log lines.
type Recorder struct {
	store   Store
	cfg     RecorderConfig
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job

	runCtx    context.Context
	runCancel context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewRecorder starts the writer goroutine. Call Close to stop it.
func NewRecorder(store Store, cfg RecorderConfig, opts ...resilience.Option) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WritesPerSecond <= 0 {
		cfg.WritesPerSecond = def.WritesPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = def.BreakerThreshold
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = def.BreakerReset
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		store:     store,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.WritesPerSecond), cfg.Burst),
		breaker:   resilience.NewCircuitBreaker("session_store", cfg.BreakerThreshold, cfg.BreakerReset, opts...),
		logger:    log.WithComponent("sessions"),
		queue:     make(chan job, cfg.QueueSize),
		runCtx:    ctx,
		runCancel: cancel,
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues s for userID. Anonymous callers (empty userID) are skipped.
func (r *Recorder) Record(userID string, s Session) {
	if userID == "" {
		metrics.RecordSession(ResultSkippedAnonymous)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.RecordSession(ResultDroppedClosed)
		r.logger.Warn().Str(log.FieldEvent, "session.dropped").Str(log.FieldSessionID, s.ID).Msg("recorder closed")
		return
	}
	select {
	case r.queue <- job{userID: userID, sess: s}:
		metrics.SetRecorderQueueDepth(len(r.queue))
	default:
		metrics.RecordSession(ResultDroppedFull)
		r.logger.Warn().
			Str(log.FieldEvent, "session.dropped").
			Str(log.FieldSessionID, s.ID).
			Int("queue_size", r.cfg.QueueSize).
			Msg("session queue full")
	}
}

// Close stops accepting sessions and drains the queue until ctx is done.
// Whatever is still queued at that point is dropped.
func (r *Recorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.runCancel()
		<-r.done
		return ctx.Err()
	}
}

// BreakerState exposes the store circuit breaker for health reporting.
func (r *Recorder) BreakerState() resilience.State {
	return r.breaker.State()
}

func (r *Recorder) run() {
	defer close(r.done)
	defer r.runCancel()

	for j := range r.queue {
		metrics.SetRecorderQueueDepth(len(r.queue))
		if r.runCtx.Err() != nil {
			metrics.RecordSession(ResultDroppedClosed)
			continue
		}
		if err := r.limiter.Wait(r.runCtx); err != nil {
			metrics.RecordSession(ResultDroppedClosed)
			continue
		}
		r.write(j)
	}
}

func (r *Recorder) write(j job) {
	ctx, span := telemetry.Tracer("chrono/sessions").Start(r.runCtx, "sessions.append")
	defer span.End()
	span.SetAttributes(telemetry.SessionAttributes(j.sess.ID, string(j.sess.Type), j.sess.Duration)...)

	err := r.breaker.Execute(func() error {
		wctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
		defer cancel()
		return r.store.Append(wctx, j.userID, j.sess)
	})

	logger := r.logger.With().
		Str(log.FieldPrincipalID, j.userID).
		Str(log.FieldSessionID, j.sess.ID).
		Str(log.FieldKind, string(j.sess.Type)).
		Logger()

	switch {
	case err == nil:
		metrics.RecordSession(ResultPersisted)
		logger.Debug().Str(log.FieldEvent, "session.persisted").Int64("duration_s", j.sess.Duration).Msg("session recorded")
	case errors.Is(err, resilience.ErrCircuitOpen):
		metrics.RecordSession(ResultCircuitOpen)
		span.SetStatus(codes.Error, "circuit open")
		logger.Warn().Str(log.FieldEvent, "session.dropped").Msg("session store circuit open")
	default:
		metrics.RecordSession(ResultFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Str(log.FieldEvent, "session.failed").Msg("failed to record session")
	}
}
