// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/ManuGH/chrono/internal/engine"
)

const maxBodyBytes = 4 << 10

// maxDurationMs is the longest countdown a time.Duration can hold.
const maxDurationMs = math.MaxInt64 / int64(time.Millisecond)

// LapResponse is returned by POST /stopwatch/lap.
type LapResponse struct {
	Recorded  bool                 `json:"recorded"`
	LapMs     int64                `json:"lapMs"`
	Stopwatch engine.StopwatchView `json:"stopwatch"`
}

// StopwatchStopResponse is returned by POST /stopwatch/stop.
type StopwatchStopResponse struct {
	ElapsedMs int64                `json:"elapsedMs"`
	Stopwatch engine.StopwatchView `json:"stopwatch"`
}

// TimerStartRequest is the body of POST /timer/start.
type TimerStartRequest struct {
	DurationMs int64 `json:"durationMs"`
}

// TimerStopResponse is returned by POST /timer/stop.
type TimerStopResponse struct {
	Stopped     bool                 `json:"stopped"`
	Completed   bool                 `json:"completed"`
	TotalMs     int64                `json:"totalMs"`
	RemainingMs int64                `json:"remainingMs"`
	ElapsedMs   int64                `json:"elapsedMs"`
	Timer       engine.CountdownView `json:"timer"`
}

func (s *Server) handleStopwatch(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.Stopwatch())
}

// stopwatchAction runs op and returns the resulting view. Operations that
// are not valid in the current state are no-ops, so the response is always
// 200 with the unchanged state.
func (s *Server) stopwatchAction(op func(*engine.Engine)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.engineFor(w, r)
		if !ok {
			return
		}
		op(e)
		writeJSON(w, http.StatusOK, e.Stopwatch())
	}
}

func (s *Server) handleStopwatchLap(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	lap, recorded := e.AddLap()
	writeJSON(w, http.StatusOK, LapResponse{
		Recorded:  recorded,
		LapMs:     lap.Milliseconds(),
		Stopwatch: e.Stopwatch(),
	})
}

func (s *Server) handleStopwatchStop(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	final := e.StopStopwatch()
	writeJSON(w, http.StatusOK, StopwatchStopResponse{
		ElapsedMs: final.Milliseconds(),
		Stopwatch: e.Stopwatch(),
	})
}

func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.Countdown())
}

func (s *Server) timerAction(op func(*engine.Engine)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.engineFor(w, r)
		if !ok {
			return
		}
		op(e)
		writeJSON(w, http.StatusOK, e.Countdown())
	}
}

// handleTimerStart starts or resumes the countdown. A non-positive duration
// is ignored by the engine and answered with the unchanged state; a
// malformed body or a duration beyond time.Duration is rejected.
func (s *Server) handleTimerStart(w http.ResponseWriter, r *http.Request) {
	var req TimerStartRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.DurationMs > maxDurationMs {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("durationMs must not exceed %d", maxDurationMs))
		return
	}

	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	e.StartCountdown(time.Duration(req.DurationMs) * time.Millisecond)
	writeJSON(w, http.StatusOK, e.Countdown())
}

func (s *Server) handleTimerStop(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	res := e.StopCountdown()
	writeJSON(w, http.StatusOK, TimerStopResponse{
		Stopped:     res.Stopped,
		Completed:   res.Completed,
		TotalMs:     res.Total.Milliseconds(),
		RemainingMs: res.Remaining.Milliseconds(),
		ElapsedMs:   res.Elapsed.Milliseconds(),
		Timer:       e.Countdown(),
	})
}
