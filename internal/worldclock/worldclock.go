// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package worldclock converts instants between IANA time zones for the
// world-clock and time-zone converter views.
package worldclock

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/ManuGH/chrono/internal/cache"
	"github.com/ManuGH/chrono/internal/clock"
)

var (
	// ErrUnknownZone is returned for names missing from the tz database.
	ErrUnknownZone = errors.New("unknown time zone")
	// ErrBadTime is returned when a wall time cannot be parsed.
	ErrBadTime = errors.New("unparseable time")
)

// MaxZones bounds a single Now request.
const MaxZones = 24

// HourCycle selects 12- or 24-hour display.
type HourCycle string

const (
	H12 HourCycle = "h12"
	H23 HourCycle = "h23"
)

func (h HourCycle) layout() string {
	if h == H12 {
		return "Mon 3:04 PM"
	}
	return "Mon 15:04"
}

// Regions that conventionally display a 12-hour clock.
var twelveHourRegions = map[string]bool{
	"US": true, "CA": true, "AU": true, "NZ": true, "IN": true, "PH": true,
	"PK": true, "BD": true, "EG": true, "SA": true, "MY": true, "CO": true,
}

// HourCycleFor picks the display cycle for an Accept-Language header value.
// Unparseable or empty input yields H23.
func HourCycleFor(acceptLanguage string) HourCycle {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return H23
	}
	region, _ := tags[0].Region()
	if twelveHourRegions[region.String()] {
		return H12
	}
	return H23
}

// ZoneTime is an instant rendered in one zone.
type ZoneTime struct {
	Zone          string    `json:"zone"`
	Time          time.Time `json:"time"`
	Abbreviation  string    `json:"abbreviation"`
	OffsetSeconds int       `json:"offsetSeconds"`
	Display       string    `json:"display"`
}

// Conversion is the result of Convert.
type Conversion struct {
	From ZoneTime `json:"from"`
	To   ZoneTime `json:"to"`
}

// Service resolves zones through a location cache.
type Service struct {
	clock     clock.Clock
	locations *cache.Memory[string, *time.Location]
}

// New creates a Service. A nil clock uses wall time.
func New(clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		clock:     clk,
		locations: cache.NewMemory[string, *time.Location](cache.WithClock(clk)),
	}
}

// Location loads a zone by IANA name. "Local" is refused so results do not
// depend on the host configuration.
func (s *Service) Location(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	return s.locations.GetOrLoad(name, 0, func(n string) (*time.Location, error) {
		loc, err := time.LoadLocation(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownZone, n)
		}
		return loc, nil
	})
}

// Now renders the current instant in each zone, in request order.
func (s *Service) Now(zones []string, cycle HourCycle) ([]ZoneTime, error) {
	if len(zones) > MaxZones {
		return nil, fmt.Errorf("too many zones: %d (max %d)", len(zones), MaxZones)
	}
	now := s.clock.Now()
	out := make([]ZoneTime, 0, len(zones))
	for _, z := range zones {
		zt, err := s.render(now, z, cycle)
		if err != nil {
			return nil, err
		}
		out = append(out, zt)
	}
	return out, nil
}

var wallLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Convert interprets at in zone from and renders it in zone to. at may be
// RFC 3339 (its own offset then wins over from) or a wall time such as
// 2026-03-29T02:30.
func (s *Service) Convert(at, from, to string, cycle HourCycle) (Conversion, error) {
	fromLoc, err := s.Location(from)
	if err != nil {
		return Conversion{}, err
	}
	if _, err := s.Location(to); err != nil {
		return Conversion{}, err
	}

	var instant time.Time
	if t, perr := time.Parse(time.RFC3339, at); perr == nil {
		instant = t
	} else {
		parsed := false
		for _, layout := range wallLayouts {
			if t, perr := time.ParseInLocation(layout, at, fromLoc); perr == nil {
				instant, parsed = t, true
				break
			}
		}
		if !parsed {
			return Conversion{}, fmt.Errorf("%w: %q", ErrBadTime, at)
		}
	}

	f, err := s.render(instant, from, cycle)
	if err != nil {
		return Conversion{}, err
	}
	t, err := s.render(instant, to, cycle)
	if err != nil {
		return Conversion{}, err
	}
	return Conversion{From: f, To: t}, nil
}

func (s *Service) render(at time.Time, zone string, cycle HourCycle) (ZoneTime, error) {
	loc, err := s.Location(zone)
	if err != nil {
		return ZoneTime{}, err
	}
	local := at.In(loc)
	abbr, offset := local.Zone()
	return ZoneTime{
		Zone:          loc.String(),
		Time:          local,
		Abbreviation:  abbr,
		OffsetSeconds: offset,
		Display:       local.Format(cycle.layout()),
	}, nil
}
