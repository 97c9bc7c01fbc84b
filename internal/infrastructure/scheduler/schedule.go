package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an IntervalSchedule.
func Every(interval time.Duration) IntervalSchedule {
	return IntervalSchedule{Interval: interval}
}

// Next returns t plus the interval.
func (s IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}

// DailySchedule runs a job once a day at a wall-clock time in the zone of
// the time passed to Next.
type DailySchedule struct {
	Hour   int
	Minute int
}

// ParseDaily parses "HH:MM".
func ParseDaily(s string) (DailySchedule, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return DailySchedule{}, fmt.Errorf("daily schedule %q: want HH:MM", s)
	}
	return DailySchedule{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Next returns the first HH:MM strictly after t.
func (s DailySchedule) Next(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s DailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d", s.Hour, s.Minute)
}
