// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ManuGH/chrono/internal/worldclock"
)

// ClockNowResponse is returned by GET /clock/now.
type ClockNowResponse struct {
	HourCycle worldclock.HourCycle  `json:"hourCycle"`
	Zones     []worldclock.ZoneTime `json:"zones"`
}

// hourCycle honours an explicit ?hourCycle= before Accept-Language.
func hourCycle(r *http.Request) worldclock.HourCycle {
	switch hc := worldclock.HourCycle(r.URL.Query().Get("hourCycle")); hc {
	case worldclock.H12, worldclock.H23:
		return hc
	}
	return worldclock.HourCycleFor(r.Header.Get("Accept-Language"))
}

// zonesParam collects ?zone= values; each may also be a comma-separated list.
func zonesParam(r *http.Request) []string {
	var zones []string
	for _, v := range r.URL.Query()["zone"] {
		for _, z := range strings.Split(v, ",") {
			if z = strings.TrimSpace(z); z != "" {
				zones = append(zones, z)
			}
		}
	}
	if len(zones) == 0 {
		zones = []string{"UTC"}
	}
	return zones
}

func (s *Server) handleClockNow(w http.ResponseWriter, r *http.Request) {
	cycle := hourCycle(r)
	zones, err := s.clocks.Now(zonesParam(r), cycle)
	if err != nil {
		writeClockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ClockNowResponse{HourCycle: cycle, Zones: zones})
}

func (s *Server) handleClockConvert(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	at, from, to := v.Get("at"), v.Get("from"), v.Get("to")
	if at == "" || from == "" || to == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "at, from and to are required")
		return
	}
	conv, err := s.clocks.Convert(at, from, to, hourCycle(r))
	if err != nil {
		writeClockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func writeClockError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, worldclock.ErrUnknownZone):
		writeError(w, r, http.StatusBadRequest, codeUnknownZone, err.Error())
	case errors.Is(err, worldclock.ErrBadTime):
		writeError(w, r, http.StatusBadRequest, codeBadTime, err.Error())
	default:
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
	}
}
