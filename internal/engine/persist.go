// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/chrono/internal/log"
	"github.com/ManuGH/chrono/internal/recovery"
)

const persistTimeout = 5 * time.Second

// persistOp is either a write (snap != nil) or a delete of kind.
type persistOp struct {
	kind recovery.Kind
	snap *recovery.Snapshot
}

// persister applies snapshot writes on its own goroutine so storage latency
// never reaches the engine lock. Only the newest pending op per kind is
// kept; a single worker applies them in order, so a stale write can never
// land after a newer one for the same key.
type persister struct {
	store     recovery.Store
	principal string
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[recovery.Kind]persistOp
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newPersister(store recovery.Store, principal string, logger zerolog.Logger) *persister {
	p := &persister{
		store:     store,
		principal: principal,
		logger:    logger,
		pending:   make(map[recovery.Kind]persistOp),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) enqueue(op persistOp) {
	p.mu.Lock()
	p.pending[op.kind] = op
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// close applies whatever is still pending and stops the worker.
func (p *persister) close() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
			p.flush()
		case <-p.stop:
			p.flush()
			return
		}
	}
}

func (p *persister) flush() {
	p.mu.Lock()
	ops := p.pending
	p.pending = make(map[recovery.Kind]persistOp)
	p.mu.Unlock()

	for _, kind := range recovery.Kinds {
		op, ok := ops[kind]
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		var err error
		if op.snap != nil {
			err = p.store.Put(ctx, p.principal, op.snap)
		} else {
			err = p.store.Delete(ctx, p.principal, kind)
		}
		cancel()
		if err != nil {
			p.logger.Warn().Err(err).
				Str(log.FieldEvent, "recovery.write_failed").
				Str(log.FieldKind, string(kind)).
				Msg("failed to write recovery snapshot")
		}
	}
}
