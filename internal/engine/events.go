// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import "time"

// EventType classifies engine notifications.
type EventType string

const (
	// EventState is published after every user-visible transition.
	EventState EventType = "state"
	// EventTick is published on every tick of a running machine.
	EventTick EventType = "tick"
	// EventCompleted is published once when a countdown reaches zero.
	EventCompleted EventType = "completed"
)

// StopwatchView is the stopwatch as seen at a given instant.
type StopwatchView struct {
	State     string     `json:"state"`
	ElapsedMs int64      `json:"elapsedMs"`
	Laps      []int64    `json:"laps"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// CountdownView is the countdown as seen at a given instant.
type CountdownView struct {
	State       string     `json:"state"`
	TotalMs     int64      `json:"totalMs"`
	RemainingMs int64      `json:"remainingMs"`
	ElapsedMs   int64      `json:"elapsedMs"`
	Completed   bool       `json:"completed"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
}

// Event is a display trigger. Consumers must not treat it as a time source:
// the views carry values computed from the clock at At.
type Event struct {
	Type      EventType      `json:"type"`
	Kind      string         `json:"kind"`
	Action    string         `json:"action,omitempty"`
	At        time.Time      `json:"at"`
	Stopwatch *StopwatchView `json:"stopwatch,omitempty"`
	Countdown *CountdownView `json:"countdown,omitempty"`
}
