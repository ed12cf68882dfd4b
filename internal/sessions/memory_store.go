// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sessions

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore implements Store using a map (thread-safe).
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]Session
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]Session)}
}

func (s *MemoryStore) Append(_ context.Context, userID string, sess Session) error {
	if err := validate(userID, sess); err != nil {
		return err
	}
	sess.Laps = slices.Clone(sess.Laps)
	s.mu.Lock()
	s.data[userID] = append(s.data[userID], sess)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context, userID string, q Query) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.data[userID]
	limit := q.limit()
	out := make([]Session, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if q.matches(all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context, userID string, since time.Time) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := Query{Since: since}
	var matched []Session
	for _, sess := range s.data[userID] {
		if q.matches(sess) {
			matched = append(matched, sess)
		}
	}
	return computeStats(matched), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
