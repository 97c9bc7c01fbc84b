package student

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
)

// hundreds levels up every 100 XP.
type hundreds struct{}

func (hundreds) LevelFor(xp int) int { return xp/100 + 1 }

func TestNewStudent_Defaults(t *testing.T) {
	s, err := NewStudent(NewStudentParams{ID: "s1", OrganizationID: "org", Name: "  Ana "})
	require.NoError(t, err)

	assert.Equal(t, CategoryAdult, s.Category)
	assert.Equal(t, "Ana", s.Name)
	assert.Equal(t, XP(0), s.TotalXP)
	assert.Equal(t, Level(1), s.GlobalLevel)
	assert.Nil(t, s.LastActivityDate)
}

func TestNewStudent_RejectsUnknownCategory(t *testing.T) {
	_, err := NewStudent(NewStudentParams{ID: "s1", OrganizationID: "org", Category: "KID"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" master_2 ")
	require.NoError(t, err)
	assert.Equal(t, CategoryMaster2, c)

	_, err = ParseCategory("senior")
	assert.True(t, shared.IsValidation(err))
}

func TestStudent_ApplyXP(t *testing.T) {
	s, err := NewStudent(NewStudentParams{ID: "s1", OrganizationID: "org"})
	require.NoError(t, err)

	up, err := s.ApplyXP(50, hundreds{})
	require.NoError(t, err)
	assert.False(t, up)
	assert.Equal(t, Level(1), s.GlobalLevel)

	up, err = s.ApplyXP(150, hundreds{})
	require.NoError(t, err)
	assert.True(t, up)
	assert.Equal(t, XP(200), s.TotalXP)
	assert.Equal(t, Level(3), s.GlobalLevel)

	_, err = s.ApplyXP(-1, hundreds{})
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
	assert.Equal(t, XP(200), s.TotalXP)
}

func TestStudent_ApplyStreakKeepsLongest(t *testing.T) {
	s := &Student{LongestStreak: 10}
	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	s.ApplyStreak(1, 1, day)

	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 10, s.LongestStreak)
	require.NotNil(t, s.LastActivityDate)
	assert.True(t, s.LastActivityDate.Equal(day))
}

func TestEnrollment_SetAttendanceClampsRate(t *testing.T) {
	e := &Enrollment{}
	e.SetAttendance(9, 0.9)
	assert.Equal(t, 9, e.LessonsCompleted)
	assert.InDelta(t, 0.9, e.AttendanceRate, 1e-9)

	e.SetAttendance(10, 1.2)
	assert.Equal(t, 1.0, e.AttendanceRate)
	e.SetAttendance(0, -1)
	assert.Equal(t, 0.0, e.AttendanceRate)
}

func TestGender_IsFemale(t *testing.T) {
	assert.True(t, Gender("f").IsFemale())
	assert.False(t, Gender("").IsFemale())
	assert.False(t, GenderMale.IsFemale())
}
