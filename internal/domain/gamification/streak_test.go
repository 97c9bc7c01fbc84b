package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dojo-hub/progression-engine/pkg/timeutil"
)

func day(d, hour int) time.Time {
	return time.Date(2024, time.March, d, hour, 0, 0, 0, timeutil.SaoPauloTZ)
}

func TestComputeStreak(t *testing.T) {
	tables := DefaultTables()
	last := day(1, 19)

	tests := []struct {
		name     string
		current  int
		last     *time.Time
		at       time.Time
		want     int
		broken   bool
		changed  bool
		previous int
	}{
		{"first activity", 0, nil, day(1, 10), 1, false, true, 0},
		{"same day repeat", 4, &last, day(1, 21), 4, false, false, 4},
		{"next day", 4, &last, day(2, 7), 5, false, true, 4},
		{"two day gap", 4, &last, day(3, 7), 5, false, true, 4},
		{"three day gap", 4, &last, day(4, 7), 5, false, true, 4},
		{"four day gap", 4, &last, day(5, 7), 1, true, true, 4},
		{"late event", 4, &last, time.Date(2024, time.February, 28, 9, 0, 0, 0, timeutil.SaoPauloTZ), 4, false, false, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := ComputeStreak(tt.current, 10, tt.last, tt.at, tables)
			assert.Equal(t, tt.want, u.Current)
			assert.Equal(t, tt.broken, u.Broken)
			assert.Equal(t, tt.changed, u.Changed)
			assert.Equal(t, tt.previous, u.Previous)
			assert.Equal(t, 10, u.Longest)
		})
	}
}

func TestComputeStreak_LongestAndMultiplier(t *testing.T) {
	tables := DefaultTables()
	last := day(10, 18)

	u := ComputeStreak(6, 6, &last, day(11, 18), tables)

	assert.Equal(t, 7, u.Current)
	assert.Equal(t, 7, u.Longest)
	assert.Equal(t, 1.5, u.Multiplier)
}

func TestComputeStreak_UsesLocalCalendarDays(t *testing.T) {
	tables := DefaultTables()
	// 23:30 local on the 1st is already the 2nd in UTC.
	last := time.Date(2024, time.March, 1, 23, 30, 0, 0, timeutil.SaoPauloTZ)
	sameLocalDay := time.Date(2024, time.March, 2, 1, 0, 0, 0, time.UTC)

	u := ComputeStreak(3, 3, &last, sameLocalDay, tables)

	assert.False(t, u.Changed)
	assert.Equal(t, 3, u.Current)
}
