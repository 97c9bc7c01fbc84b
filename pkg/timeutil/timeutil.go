// Package timeutil provides calendar helpers in the academy's local timezone.
// Day boundaries (streaks, "first check-in of the month", early-bird
// check-ins) are all evaluated in this zone, not in UTC.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// SaoPauloTZ is the default academy timezone (UTC-3, no DST since 2019).
var SaoPauloTZ = time.FixedZone("America/Sao_Paulo", -3*60*60)

var (
	locMu sync.RWMutex
	loc   = SaoPauloTZ
)

// DaysPerMonth is the fixed divisor used for "months enrolled".
const DaysPerMonth = 30

// SetLocation changes the zone used for day boundaries. A nil location is ignored.
func SetLocation(l *time.Location) {
	if l == nil {
		return
	}
	locMu.Lock()
	loc = l
	locMu.Unlock()
}

// Location returns the zone used for day boundaries.
func Location() *time.Location {
	locMu.RLock()
	defer locMu.RUnlock()
	return loc
}

// Local converts a time to the academy timezone.
func Local(t time.Time) time.Time {
	return t.In(Location())
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	l := Local(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, l.Location())
}

// StartOfMonth returns the first day of the month containing t.
func StartOfMonth(t time.Time) time.Time {
	l := Local(t)
	return time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, l.Location())
}

// DaysInMonth returns how many days the month containing t has.
func DaysInMonth(t time.Time) int {
	return StartOfMonth(t).AddDate(0, 1, -1).Day()
}

// DaysBetween returns the signed number of local calendar days from t1 to t2.
// Computed on calendar dates so DST shifts never produce fractional days.
func DaysBetween(t1, t2 time.Time) int {
	a, b := Local(t1), Local(t2)
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// WeeksBetween returns the number of whole weeks from t1 to t2 (never negative).
func WeeksBetween(t1, t2 time.Time) int {
	days := DaysBetween(t1, t2)
	if days < 0 {
		return 0
	}
	return days / 7
}

// ApproxMonthsBetween returns elapsed months from t1 to t2 using a fixed
// 30-day month. The result is fractional and never negative.
func ApproxMonthsBetween(t1, t2 time.Time) float64 {
	d := t2.Sub(t1)
	if d <= 0 {
		return 0
	}
	return d.Hours() / 24 / DaysPerMonth
}

// ISOWeekKey returns "YYYY-Www" for the ISO week containing t.
func ISOWeekKey(t time.Time) string {
	year, week := Local(t).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// FormatDate formats t as YYYY-MM-DD in the academy timezone.
func FormatDate(t time.Time) string {
	return Local(t).Format("2006-01-02")
}
