package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysBetween_UsesLocalCalendar(t *testing.T) {
	SetLocation(SaoPauloTZ)

	// 23:30 local on March 1st and 01:00 local on March 2nd
	a := time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC)
	b := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, DaysBetween(a, b))
	assert.Equal(t, -1, DaysBetween(b, a))
	assert.Equal(t, "2026-03-01", FormatDate(a))
}

func TestStartOfDayAndMonth(t *testing.T) {
	SetLocation(SaoPauloTZ)
	at := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, SaoPauloTZ), StartOfDay(at))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, SaoPauloTZ), StartOfMonth(at))
	assert.Equal(t, 31, DaysInMonth(at))
	assert.Equal(t, 28, DaysInMonth(time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)))
}

func TestWeeksAndMonths(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, WeeksBetween(start, start.AddDate(0, 0, 20)))
	assert.Equal(t, 0, WeeksBetween(start.AddDate(0, 0, 20), start))
	assert.InDelta(t, 2.0, ApproxMonthsBetween(start, start.AddDate(0, 0, 60)), 1e-9)
	assert.Zero(t, ApproxMonthsBetween(start, start.Add(-time.Hour)))
}

func TestISOWeekKey(t *testing.T) {
	SetLocation(SaoPauloTZ)
	assert.Equal(t, "2026-W10", ISOWeekKey(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)))
}

func TestSetLocation_IgnoresNil(t *testing.T) {
	SetLocation(time.UTC)
	SetLocation(nil)
	assert.Equal(t, time.UTC, Location())
	SetLocation(SaoPauloTZ)
}
