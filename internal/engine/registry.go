// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/chrono/internal/auth"
	"github.com/ManuGH/chrono/internal/log"
	"github.com/ManuGH/chrono/internal/metrics"
)

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("engine registry closed")

const recoverTimeout = 5 * time.Second

// PrincipalLookup resolves a stored principal ID back to an identity.
type PrincipalLookup func(id string) (*auth.Principal, bool)

type registryEntry struct {
	once   sync.Once
	engine *Engine
}

// Registry owns one Engine per principal for the lifetime of the process.
type Registry struct {
	opts   Options
	lookup PrincipalLookup

	mu      sync.Mutex
	engines map[string]*registryEntry
	closed  bool
}

// NewRegistry creates an empty registry. Engines are built lazily by Get and
// eagerly by RecoverAll.
func NewRegistry(opts Options, lookup PrincipalLookup) *Registry {
	return &Registry{
		opts:    opts.withDefaults(),
		lookup:  lookup,
		engines: make(map[string]*registryEntry),
	}
}

// Get returns the engine for p, creating and recovering it on first use.
// A nil principal selects the shared anonymous engine.
func (r *Registry) Get(ctx context.Context, p *auth.Principal) (*Engine, error) {
	key := AnonymousKey
	if p != nil {
		key = p.ID
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	ent, ok := r.engines[key]
	if !ok {
		ent = &registryEntry{engine: New(p, r.opts)}
		r.engines[key] = ent
		metrics.SetActiveEngines(len(r.engines))
	}
	r.mu.Unlock()

	ent.once.Do(func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recoverTimeout)
		defer cancel()
		ent.engine.Recover(rctx)
	})
	return ent.engine, nil
}

// RecoverAll builds the engine of every principal that has stored state, so
// countdowns that expire while nobody is connected still complete. It
// returns the number of engines recovered.
func (r *Registry) RecoverAll(ctx context.Context) (int, error) {
	ids, err := r.opts.Recovery.Principals(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recovery principals: %w", err)
	}
	logger := log.WithComponent("engine")
	n := 0
	for _, id := range ids {
		var p *auth.Principal
		if id != AnonymousKey {
			var ok bool
			if r.lookup != nil {
				p, ok = r.lookup(id)
			}
			if !ok {
				logger.Warn().Str(log.FieldEvent, "recovery.unknown_principal").Str(log.FieldPrincipalID, id).Msg("skipping snapshot of unknown principal")
				continue
			}
		}
		if _, err := r.Get(ctx, p); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Len reports the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Close stops every engine concurrently. It returns ctx.Err() if the
// deadline passes first; engines keep closing in the background.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := make([]*registryEntry, 0, len(r.engines))
	for _, ent := range r.engines {
		entries = append(entries, ent)
	}
	r.engines = map[string]*registryEntry{}
	r.mu.Unlock()
	metrics.SetActiveEngines(0)

	var g errgroup.Group
	for _, ent := range entries {
		g.Go(func() error {
			ent.engine.Close()
			return nil
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
