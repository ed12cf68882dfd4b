// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sessions

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// ErrInvalidSession is returned by Append for records that violate the session shape.
var ErrInvalidSession = errors.New("invalid session")

// DefaultListLimit bounds List when the query does not set a limit.
const DefaultListLimit = 50

// MaxListLimit is the largest page List will return.
const MaxListLimit = 500

// Store is the append-only session log. Writers only Append; the history
// and statistics views only read.
type Store interface {
	Append(ctx context.Context, userID string, s Session) error
	List(ctx context.Context, userID string, q Query) ([]Session, error)
	Stats(ctx context.Context, userID string, since time.Time) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Query filters the history view. Results are newest first.
type Query struct {
	Type  Type // empty = all
	Since time.Time
	Limit int
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultListLimit
	case q.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return q.Limit
	}
}

func (q Query) matches(s Session) bool {
	if q.Type != "" && s.Type != q.Type {
		return false
	}
	if !q.Since.IsZero() && s.CreatedAt.Before(q.Since) {
		return false
	}
	return true
}

// Stats summarises a user's history.
type Stats struct {
	Sessions          int   `json:"sessions"`
	StopwatchSessions int   `json:"stopwatchSessions"`
	StopwatchSeconds  int64 `json:"stopwatchSeconds"`
	TimerSessions     int   `json:"timerSessions"`
	TimersCompleted   int   `json:"timersCompleted"`
	TimersStopped     int   `json:"timersStoppedEarly"`
	TimerSeconds      int64 `json:"timerSeconds"`
	FocusSeconds      int64 `json:"focusSeconds"`
	LongestSeconds    int64 `json:"longestSeconds"`
	Laps              int   `json:"laps"`
}

func computeStats(list []Session) Stats {
	var st Stats
	for _, s := range list {
		st.Sessions++
		active := s.ActiveSeconds()
		st.FocusSeconds += active
		if active > st.LongestSeconds {
			st.LongestSeconds = active
		}
		switch s.Type {
		case TypeStopwatch:
			st.StopwatchSessions++
			st.StopwatchSeconds += s.Duration
			st.Laps += len(s.Laps)
		case TypeTimer:
			st.TimerSessions++
			st.TimerSeconds += active
			if s.WasCompleted() {
				st.TimersCompleted++
			} else {
				st.TimersStopped++
			}
		}
	}
	return st
}

func validate(userID string, s Session) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidSession)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSession)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSession, s.Type)
	}
	if s.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidSession)
	}
	if s.ElapsedTime != nil && *s.ElapsedTime > s.Duration {
		return fmt.Errorf("%w: elapsed %ds exceeds duration %ds", ErrInvalidSession, *s.ElapsedTime, s.Duration)
	}
	return nil
}

// Open creates a Store for the configured backend.
func Open(backend, dataDir string) (Store, error) {
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if dataDir == "" {
			return NewMemoryStore(), nil
		}
		return NewSqliteStore(filepath.Join(dataDir, "sessions.sqlite"))
	default:
		return nil, fmt.Errorf("unknown session store backend: %s (supported: sqlite, memory)", backend)
	}
}
