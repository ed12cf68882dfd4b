// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package recovery persists engine snapshots so a running stopwatch or
// countdown survives a restart of the process that owns it.
package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SchemaVersion is written into every snapshot. Snapshots with another
// version are treated as corrupt.
const SchemaVersion = 1

// ErrCorrupt is returned when a stored payload cannot be decoded into a
// valid snapshot.
var ErrCorrupt = errors.New("corrupt recovery snapshot")

// Kind selects one of the two independent engine machines.
type Kind string

const (
	KindStopwatch Kind = "stopwatch"
	KindCountdown Kind = "countdown"
)

// Kinds lists every kind a principal can hold a snapshot for.
var Kinds = []Kind{KindStopwatch, KindCountdown}

func (k Kind) valid() bool { return k == KindStopwatch || k == KindCountdown }

// Snapshot is the serialized state of one machine. All instants are epoch
// milliseconds and all spans are milliseconds.
type Snapshot struct {
	V            int     `json:"v"`
	Kind         Kind    `json:"kind"`
	Running      bool    `json:"running"`
	Paused       bool    `json:"paused"`
	Completed    bool    `json:"completed,omitempty"`
	StartEpochMs int64   `json:"startEpochMs,omitempty"`
	ElapsedMs    int64   `json:"elapsedMs"`
	Laps         []int64 `json:"laps,omitempty"`
	TotalMs      int64   `json:"totalMs,omitempty"`
	RemainingMs  int64   `json:"remainingMs,omitempty"`
	SessionSaved bool    `json:"sessionSaved,omitempty"`
	SavedAtMs    int64   `json:"savedAtMs"`
}

// Validate checks the structural invariants of a snapshot.
func (s *Snapshot) Validate() error {
	switch {
	case s.V != SchemaVersion:
		return fmt.Errorf("%w: schema version %d", ErrCorrupt, s.V)
	case !s.Kind.valid():
		return fmt.Errorf("%w: unknown kind %q", ErrCorrupt, s.Kind)
	case s.Running && s.Paused:
		return fmt.Errorf("%w: running and paused", ErrCorrupt)
	case s.Running && s.StartEpochMs <= 0:
		return fmt.Errorf("%w: running without start instant", ErrCorrupt)
	case s.ElapsedMs < 0:
		return fmt.Errorf("%w: negative elapsed", ErrCorrupt)
	}
	if s.Kind == KindCountdown {
		switch {
		case s.TotalMs <= 0:
			return fmt.Errorf("%w: countdown without total", ErrCorrupt)
		case s.RemainingMs < 0 || s.RemainingMs > s.TotalMs:
			return fmt.Errorf("%w: remaining %dms outside [0, %d]", ErrCorrupt, s.RemainingMs, s.TotalMs)
		case s.Completed && s.Running:
			return fmt.Errorf("%w: completed and running", ErrCorrupt)
		}
	}
	return nil
}

// Marshal validates and encodes s.
func Marshal(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil snapshot")
	}
	if s.V == 0 {
		s.V = SchemaVersion
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// Unmarshal decodes and validates a stored payload.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
