// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package worldclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/chrono/internal/clock"
)

func TestHourCycleFor(t *testing.T) {
	assert.Equal(t, H12, HourCycleFor("en-US,en;q=0.9"))
	assert.Equal(t, H23, HourCycleFor("de-DE,de;q=0.9,en;q=0.5"))
	assert.Equal(t, H23, HourCycleFor("en-GB"))
	assert.Equal(t, H23, HourCycleFor(""))
	assert.Equal(t, H23, HourCycleFor("!!!"))
}

func TestNow_RendersEachZone(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))
	s := New(clk)

	got, err := s.Now([]string{"Europe/Berlin", "America/New_York", "UTC"}, H23)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "Europe/Berlin", got[0].Zone)
	assert.Equal(t, "CEST", got[0].Abbreviation)
	assert.Equal(t, 2*3600, got[0].OffsetSeconds)
	assert.Equal(t, "Wed 14:00", got[0].Display)

	assert.Equal(t, -4*3600, got[1].OffsetSeconds)
	assert.True(t, got[1].Time.Equal(got[2].Time), "same instant in every zone")

	_, err = s.Now([]string{"Mars/Olympus"}, H23)
	assert.ErrorIs(t, err, ErrUnknownZone)
	_, err = s.Now([]string{"Local"}, H23)
	assert.ErrorIs(t, err, ErrUnknownZone)
}

func TestConvert(t *testing.T) {
	s := New(nil)

	c, err := s.Convert("2026-01-15T09:30", "America/New_York", "Asia/Tokyo", H12)
	require.NoError(t, err)
	assert.Equal(t, "Thu 9:30 AM", c.From.Display)
	assert.Equal(t, "Thu 11:30 PM", c.To.Display)

	c, err = s.Convert("2026-01-15T09:30:00Z", "America/New_York", "Europe/London", H23)
	require.NoError(t, err)
	assert.Equal(t, "Thu 04:30", c.From.Display, "an explicit offset wins over the from zone")
	assert.Equal(t, "Thu 09:30", c.To.Display)

	_, err = s.Convert("yesterday", "UTC", "UTC", H23)
	assert.ErrorIs(t, err, ErrBadTime)
	_, err = s.Convert("2026-01-15T09:30", "UTC", "Nowhere/Land", H23)
	assert.ErrorIs(t, err, ErrUnknownZone)
}

func TestLocation_IsCached(t *testing.T) {
	s := New(nil)
	a, err := s.Location("Europe/Paris")
	require.NoError(t, err)
	b, err := s.Location("Europe/Paris")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, int64(1), s.locations.Stats().Hits)
}
