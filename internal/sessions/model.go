// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sessions holds the append-only history of finished stopwatch and
// timer runs, together with the read-only history and statistics views.
package sessions

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies which engine produced a session.
type Type string

const (
	TypeStopwatch Type = "stopwatch"
	TypeTimer     Type = "timer"
)

// Valid reports whether t is a known session type.
func (t Type) Valid() bool {
	return t == TypeStopwatch || t == TypeTimer
}

// completionTolerance is the legacy slack used to classify timer sessions that
// were stored without an explicit completion flag.
const completionTolerance int64 = 1

// Session is a write-once record of a finished run.
// Durations are whole seconds, laps are milliseconds.
type Session struct {
	ID               string    `json:"id"`
	Type             Type      `json:"type"`
	Duration         int64     `json:"duration"`
	Laps             []int64   `json:"laps,omitempty"`
	OriginalDuration *int64    `json:"originalDuration,omitempty"`
	ElapsedTime      *int64    `json:"elapsedTime,omitempty"`
	Completed        *bool     `json:"completed,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// NewStopwatchSession builds the record for a stopped stopwatch.
func NewStopwatchSession(elapsed time.Duration, laps []time.Duration, at time.Time) Session {
	s := Session{
		ID:        uuid.NewString(),
		Type:      TypeStopwatch,
		Duration:  int64(elapsed / time.Second),
		CreatedAt: at.UTC(),
	}
	if len(laps) > 0 {
		s.Laps = make([]int64, len(laps))
		for i, lap := range laps {
			s.Laps[i] = lap.Milliseconds()
		}
	}
	return s
}

// NewTimerSession builds the record for a countdown that was stopped or ran out.
// elapsed is clamped to [0, total].
func NewTimerSession(total, elapsed time.Duration, completed bool, at time.Time) Session {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > total {
		elapsed = total
	}
	totalSec := int64(total / time.Second)
	elapsedSec := int64(elapsed / time.Second)
	return Session{
		ID:               uuid.NewString(),
		Type:             TypeTimer,
		Duration:         totalSec,
		OriginalDuration: &totalSec,
		ElapsedTime:      &elapsedSec,
		Completed:        &completed,
		CreatedAt:        at.UTC(),
	}
}

// WasCompleted reports whether a timer session ran to zero.
// The explicit flag wins; sessions stored without one fall back to
// |elapsed - original| <= 1s. Stopwatch sessions are never "completed".
func (s Session) WasCompleted() bool {
	if s.Type != TypeTimer {
		return false
	}
	if s.Completed != nil {
		return *s.Completed
	}
	if s.ElapsedTime == nil {
		return false
	}
	original := s.Duration
	if s.OriginalDuration != nil {
		original = *s.OriginalDuration
	}
	diff := *s.ElapsedTime - original
	if diff < 0 {
		diff = -diff
	}
	return diff <= completionTolerance
}

// ActiveSeconds is the time the user actually spent in the session.
func (s Session) ActiveSeconds() int64 {
	if s.Type == TypeTimer && s.ElapsedTime != nil {
		return *s.ElapsedTime
	}
	return s.Duration
}
