// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/chrono/internal/engine"
	"github.com/ManuGH/chrono/internal/log"
	"github.com/ManuGH/chrono/internal/metrics"
)

const eventBuffer = 64

// handleEvents streams engine events as server-sent events. The stream
// opens with one state event per kind so a client can render immediately;
// afterwards tick events arrive at the engine tick rate while a machine
// runs. Events are display triggers: clients should keep using the view
// values, not count ticks.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, codeInternal, "streaming unsupported")
		return
	}
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}

	ch, cancel := e.Subscribe(eventBuffer)
	defer cancel()
	metrics.EventSubscriberOpened()
	defer metrics.EventSubscriberClosed()

	logger := log.WithComponentFromContext(r.Context(), "events")
	logger.Debug().Str(log.FieldEvent, "events.subscribed").Msg("event stream opened")

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-store")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, ev := range e.States() {
		if err := writeEvent(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Str(log.FieldEvent, "events.closed").Msg("event stream closed by client")
			return
		case ev, open := <-ch:
			if !open {
				// engine closed (shutdown)
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, ev engine.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
