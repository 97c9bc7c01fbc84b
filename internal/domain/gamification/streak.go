package gamification

import (
	"time"

	"github.com/dojo-hub/progression-engine/pkg/timeutil"
)

// StreakGraceDays is the largest day gap that still continues a streak.
const StreakGraceDays = 3

// StreakUpdate is the outcome of applying one activity to a streak.
type StreakUpdate struct {
	// Current is the streak after the activity.
	Current int
	// Longest is max(previous longest, Current).
	Longest int
	// Previous is the streak before the activity.
	Previous int
	// Broken is set when a gap beyond the grace window reset the streak.
	Broken bool
	// Changed is false for a same-day repeat.
	Changed bool
	// Multiplier is the tier reached by Current.
	Multiplier float64
	// ActivityDate is the local calendar day of the activity.
	ActivityDate time.Time
}

// ComputeStreak applies an activity at `at` to a streak whose last activity
// was `last` (nil when the student never trained). Days are compared as local
// calendar days:
//
//	same day      → unchanged
//	1..3 days     → +1
//	more than 3   → reset to 1, broken
//	no prior day  → 1
//
// An activity dated before the last one is treated as a same-day repeat so
// late-arriving events never shrink a streak.
func ComputeStreak(current, longest int, last *time.Time, at time.Time, tables *Tables) StreakUpdate {
	u := StreakUpdate{
		Previous:     current,
		ActivityDate: timeutil.StartOfDay(at),
	}

	switch {
	case last == nil || current <= 0:
		u.Current = 1
		u.Changed = true
	default:
		diff := timeutil.DaysBetween(*last, at)
		switch {
		case diff <= 0:
			u.Current = current
			if diff < 0 {
				u.ActivityDate = timeutil.StartOfDay(*last)
			}
		case diff <= StreakGraceDays:
			u.Current = current + 1
			u.Changed = true
		default:
			u.Current = 1
			u.Broken = true
			u.Changed = true
		}
	}

	u.Longest = longest
	if u.Current > u.Longest {
		u.Longest = u.Current
	}
	u.Multiplier = tables.StreakMultiplier(u.Current)
	return u
}
