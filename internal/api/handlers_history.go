// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/chrono/internal/auth"
	"github.com/ManuGH/chrono/internal/sessions"
)

// SessionsResponse is returned by GET /sessions.
type SessionsResponse struct {
	Sessions []sessions.Session `json:"sessions"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	q, err := parseSessionQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	list, err := s.sessions.List(r.Context(), p.ID, q)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if list == nil {
		list = []sessions.Session{}
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: list})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	st, err := s.sessions.Stats(r.Context(), p.ID, since)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func parseSessionQuery(r *http.Request) (sessions.Query, error) {
	v := r.URL.Query()
	var q sessions.Query

	if t := v.Get("type"); t != "" {
		q.Type = sessions.Type(t)
		if !q.Type.Valid() {
			return q, fmt.Errorf("type must be %q or %q", sessions.TypeStopwatch, sessions.TypeTimer)
		}
	}
	if l := v.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > sessions.MaxListLimit {
			return q, fmt.Errorf("limit must be between 1 and %d", sessions.MaxListLimit)
		}
		q.Limit = n
	}
	since, err := parseSince(v.Get("since"))
	if err != nil {
		return q, err
	}
	q.Since = since
	return q, nil
}

// parseSince accepts RFC 3339 or a bare date (UTC midnight).
func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("since must be RFC 3339 or YYYY-MM-DD, got %q", raw)
}
