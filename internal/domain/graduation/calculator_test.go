package graduation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
)

var enrolled = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

func present(lessons ...int) []AttendanceRecord {
	out := make([]AttendanceRecord, 0, len(lessons))
	for i, l := range lessons {
		out = append(out, AttendanceRecord{
			StudentID:    "s1",
			CourseID:     "c1",
			LessonNumber: l,
			CheckInAt:    enrolled.AddDate(0, 0, i),
			Present:      true,
		})
	}
	return out
}

func lessonsRange(from, to int) []int {
	var out []int
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestCalculate_DegreeFromDistinctLessons(t *testing.T) {
	res := Calculate(ProgressionInput{
		StudentID:    "s1",
		CourseID:     "c1",
		TotalLessons: 20,
		Requirements: DefaultRequirements("c1"),
		Attendance:   present(lessonsRange(1, 9)...),
		EnrolledAt:   enrolled,
		Now:          enrolled.AddDate(0, 1, 0),
	})

	assert.Equal(t, 9, res.CompletedLessons)
	assert.InDelta(t, 45.0, res.ProgressPercentage, 1e-9)
	assert.Equal(t, 2, res.CurrentDegree)
	assert.InDelta(t, 40.0, res.DegreePercentage, 1e-9)
	require.NotNil(t, res.NextDegree)
	assert.Equal(t, 3, *res.NextDegree)
	assert.Equal(t, 3, res.LessonsToNextDegree)
	assert.False(t, res.IsEligibleForBeltChange)
}

func TestCalculate_RepeatedLessonCountsOnce(t *testing.T) {
	records := present(5, 5, 5)
	records = append(records, AttendanceRecord{LessonNumber: 6, Present: false})

	res := Calculate(ProgressionInput{TotalLessons: 20, Requirements: DefaultRequirements("c1"), Attendance: records})

	assert.Equal(t, 1, res.CompletedLessons)
	assert.InDelta(t, 75.0, res.AttendanceRate, 1e-9)
}

func TestCalculate_AllDegreesReached(t *testing.T) {
	res := Calculate(ProgressionInput{
		TotalLessons: 20,
		Requirements: DefaultRequirements("c1"),
		Attendance:   present(lessonsRange(1, 20)...),
	})

	assert.Equal(t, 100.0, res.ProgressPercentage)
	assert.Equal(t, DefaultTotalDegrees, res.CurrentDegree)
	assert.Nil(t, res.NextDegree)
	assert.True(t, res.Eligibility.Degrees.Met)
}

func TestCalculate_NoLessonsInCourse(t *testing.T) {
	res := Calculate(ProgressionInput{Requirements: DefaultRequirements("c1"), Attendance: present(1)})

	assert.Equal(t, 0.0, res.ProgressPercentage)
	assert.Equal(t, 0, res.CurrentDegree)
	require.NotNil(t, res.NextDegree)
	assert.Equal(t, 1, *res.NextDegree)
}

// eligibleInput passes all five checks; each subtest breaks exactly one.
func eligibleInput() ProgressionInput {
	return ProgressionInput{
		StudentID:    "s1",
		CourseID:     "c1",
		TotalLessons: 20,
		Requirements: DefaultRequirements("c1"),
		Attendance:   present(lessonsRange(1, 16)...),
		Activities: []ActivityRecord{
			{Repetitions: 300, QualityRating: 4},
			{Repetitions: 250, QualityRating: 3},
		},
		EnrolledAt: enrolled,
		Now:        enrolled.AddDate(0, 0, 120),
	}
}

func TestCalculate_EligibilityIsConjunctive(t *testing.T) {
	base := Calculate(eligibleInput())
	require.True(t, base.IsEligibleForBeltChange, "failing: %v", base.Eligibility.Failing())
	assert.Empty(t, base.Eligibility.Failing())

	tests := []struct {
		name   string
		mutate func(*ProgressionInput)
		check  string
	}{
		{"degrees", func(in *ProgressionInput) { in.Attendance = present(lessonsRange(1, 15)...) }, "degrees"},
		{"attendance", func(in *ProgressionInput) {
			for i := 0; i < 5; i++ {
				in.Attendance = append(in.Attendance, AttendanceRecord{LessonNumber: 17 + i, Present: false})
			}
		}, "attendance_rate"},
		{"quality", func(in *ProgressionInput) { in.Activities[1].QualityRating = 1 }, "average_quality"},
		{"repetitions", func(in *ProgressionInput) { in.Activities[1].Repetitions = 100 }, "total_repetitions"},
		{"tenure", func(in *ProgressionInput) { in.Now = enrolled.AddDate(0, 0, 60) }, "months_enrolled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := eligibleInput()
			tt.mutate(&in)

			res := Calculate(in)

			assert.False(t, res.IsEligibleForBeltChange)
			assert.Equal(t, []string{tt.check}, res.Eligibility.Failing())
		})
	}
}

func TestCalculate_MonthsUseThirtyDayMonths(t *testing.T) {
	in := eligibleInput()
	in.Now = enrolled.AddDate(0, 0, 90)

	res := Calculate(in)

	assert.InDelta(t, 3.0, res.MonthsEnrolled, 1e-9)
	assert.True(t, res.Eligibility.Tenure.Met)
}

func TestRequirementsValidate(t *testing.T) {
	require.NoError(t, DefaultRequirements("c1").Validate())

	r := DefaultRequirements("c1")
	r.TotalDegrees = 0
	r.DegreeIncrement = 0
	err := r.Validate()
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Contains(t, err.Error(), "total degrees")
	assert.Contains(t, err.Error(), "degree increment")
}

func TestActivityRecordValidate(t *testing.T) {
	ok := ActivityRecord{StudentID: "s1", CourseID: "c1", Activity: "jab drill", Repetitions: 10, QualityRating: 5}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.QualityRating = 6
	assert.ErrorIs(t, bad.Validate(), shared.ErrInvalidRating)
	bad.QualityRating = 0
	assert.True(t, shared.IsValidation(bad.Validate()))

	neg := ok
	neg.Repetitions = -1
	assert.ErrorIs(t, neg.Validate(), shared.ErrNegativeValue)
}

func TestAttendanceRecordValidate(t *testing.T) {
	assert.NoError(t, (&AttendanceRecord{StudentID: "s1", CourseID: "c1", LessonNumber: 1}).Validate())
	assert.Error(t, (&AttendanceRecord{StudentID: "s1", CourseID: "c1"}).Validate())
	assert.Error(t, (&AttendanceRecord{LessonNumber: 1}).Validate())
}
