package graduation

import (
	"math"
	"time"

	"github.com/dojo-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

// Check is one graduation sub-criterion with its current and required value.
type Check struct {
	Name     string  `json:"name"`
	Current  float64 `json:"current"`
	Required float64 `json:"required"`
	Met      bool    `json:"met"`
}

// Eligibility holds the five belt-change checks. The belt change is allowed
// only when every check is met.
type Eligibility struct {
	Degrees     Check `json:"degrees"`
	Attendance  Check `json:"attendance"`
	Quality     Check `json:"quality"`
	Repetitions Check `json:"repetitions"`
	Tenure      Check `json:"tenure"`
}

// Checks returns the sub-criteria in a stable order.
func (e Eligibility) Checks() []Check {
	return []Check{e.Degrees, e.Attendance, e.Quality, e.Repetitions, e.Tenure}
}

// Eligible reports whether all five checks pass.
func (e Eligibility) Eligible() bool {
	for _, c := range e.Checks() {
		if !c.Met {
			return false
		}
	}
	return true
}

// Failing returns the names of unmet checks.
func (e Eligibility) Failing() []string {
	var names []string
	for _, c := range e.Checks() {
		if !c.Met {
			names = append(names, c.Name)
		}
	}
	return names
}

// ProgressionInput is everything the calculator reads for one student and course.
type ProgressionInput struct {
	StudentID    string
	CourseID     string
	TotalLessons int
	Requirements Requirements
	Attendance   []AttendanceRecord
	Activities   []ActivityRecord
	EnrolledAt   time.Time
	Now          time.Time
}

// ProgressionResult is the derived degree and eligibility state.
type ProgressionResult struct {
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`

	CompletedLessons   int     `json:"completed_lessons"`
	TotalLessons       int     `json:"total_lessons"`
	ProgressPercentage float64 `json:"progress_percentage"`

	CurrentDegree    int     `json:"current_degree"`
	DegreePercentage float64 `json:"degree_percentage"`

	// NextDegree is nil once every degree is reached.
	NextDegree           *int    `json:"next_degree,omitempty"`
	NextDegreePercentage float64 `json:"next_degree_percentage,omitempty"`
	LessonsToNextDegree  int     `json:"lessons_to_next_degree,omitempty"`

	AttendanceRate   float64 `json:"attendance_rate"`
	AverageQuality   float64 `json:"average_quality"`
	TotalRepetitions int     `json:"total_repetitions"`
	MonthsEnrolled   float64 `json:"months_enrolled"`

	Eligibility             Eligibility `json:"eligibility"`
	IsEligibleForBeltChange bool        `json:"is_eligible_for_belt_change"`
}

// Calculate derives progression from raw records.
//
//	completedLessons = distinct lesson numbers with a present record
//	progress         = completedLessons / totalLessons × 100, capped at 100
//	currentDegree    = floor(progress / increment), capped at totalDegrees
func Calculate(in ProgressionInput) ProgressionResult {
	req := in.Requirements
	if req.DegreeIncrement <= 0 {
		req.DegreeIncrement = DefaultDegreeIncrement
	}
	if req.TotalDegrees < 1 {
		req.TotalDegrees = DefaultTotalDegrees
	}

	res := ProgressionResult{
		StudentID:    in.StudentID,
		CourseID:     in.CourseID,
		TotalLessons: in.TotalLessons,
	}

	res.CompletedLessons = DistinctLessons(in.Attendance)
	if in.TotalLessons > 0 {
		res.ProgressPercentage = math.Min(float64(res.CompletedLessons*100)/float64(in.TotalLessons), 100)
	}

	res.CurrentDegree = min(int(math.Floor(res.ProgressPercentage/req.DegreeIncrement)), req.TotalDegrees)
	res.DegreePercentage = float64(res.CurrentDegree) * req.DegreeIncrement

	if res.CurrentDegree < req.TotalDegrees {
		next := res.CurrentDegree + 1
		res.NextDegree = &next
		res.NextDegreePercentage = float64(next) * req.DegreeIncrement
		if in.TotalLessons > 0 {
			need := int(math.Ceil(res.NextDegreePercentage * float64(in.TotalLessons) / 100))
			res.LessonsToNextDegree = max(need-res.CompletedLessons, 0)
		}
	}

	res.AttendanceRate = AttendanceRate(in.Attendance)
	res.AverageQuality, res.TotalRepetitions = activityTotals(in.Activities)
	if !in.EnrolledAt.IsZero() {
		res.MonthsEnrolled = timeutil.ApproxMonthsBetween(in.EnrolledAt, in.Now)
	}

	res.Eligibility = Eligibility{
		Degrees: Check{
			Name:     "degrees",
			Current:  float64(res.CurrentDegree),
			Required: float64(req.TotalDegrees),
			Met:      res.CurrentDegree >= req.TotalDegrees,
		},
		Attendance: Check{
			Name:     "attendance_rate",
			Current:  res.AttendanceRate,
			Required: req.MinAttendanceRate,
			Met:      res.AttendanceRate >= req.MinAttendanceRate,
		},
		Quality: Check{
			Name:     "average_quality",
			Current:  res.AverageQuality,
			Required: req.MinQualityRating,
			Met:      res.AverageQuality >= req.MinQualityRating,
		},
		Repetitions: Check{
			Name:     "total_repetitions",
			Current:  float64(res.TotalRepetitions),
			Required: float64(req.MinRepetitions),
			Met:      res.TotalRepetitions >= req.MinRepetitions,
		},
		Tenure: Check{
			Name:     "months_enrolled",
			Current:  res.MonthsEnrolled,
			Required: req.MinMonthsEnrolled,
			Met:      res.MonthsEnrolled >= req.MinMonthsEnrolled,
		},
	}
	res.IsEligibleForBeltChange = res.Eligibility.Eligible()
	return res
}

// DistinctLessons counts lesson numbers with at least one present record.
func DistinctLessons(records []AttendanceRecord) int {
	seen := make(map[int]struct{}, len(records))
	for _, r := range records {
		if r.Present && r.LessonNumber > 0 {
			seen[r.LessonNumber] = struct{}{}
		}
	}
	return len(seen)
}

// AttendanceRate is present records over all records, as a percentage.
// No records means 0.
func AttendanceRate(records []AttendanceRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	present := 0
	for _, r := range records {
		if r.Present {
			present++
		}
	}
	return float64(present*100) / float64(len(records))
}

func activityTotals(records []ActivityRecord) (avgQuality float64, reps int) {
	if len(records) == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range records {
		sum += r.QualityRating
		reps += r.Repetitions
	}
	return float64(sum) / float64(len(records)), reps
}
