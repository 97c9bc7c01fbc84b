package graduation

import (
	"strings"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
)

// Quality ratings are given by instructors on a 1-5 scale.
const (
	MinQualityRating = 1
	MaxQualityRating = 5
)

// AttendanceRecord is one lesson check-in of a student in a course.
type AttendanceRecord struct {
	ID           string
	StudentID    string
	CourseID     string
	LessonNumber int
	CheckInAt    time.Time

	// Present is false for recorded absences.
	Present bool

	// TechniquesPracticed feeds the check-in XP bonus.
	TechniquesPracticed int
}

// Validate checks identity fields and the lesson number.
func (r *AttendanceRecord) Validate() error {
	if r.StudentID == "" || r.CourseID == "" {
		return shared.InvalidInput("graduation", "RecordAttendance", "student and course are required")
	}
	if r.LessonNumber < 1 {
		return shared.InvalidInput("graduation", "RecordAttendance", "lesson number must be positive")
	}
	if r.TechniquesPracticed < 0 {
		return shared.NewDomainError("graduation", "RecordAttendance", shared.ErrNegativeValue,
			"techniques practiced cannot be negative")
	}
	return nil
}

// ActivityRecord is one execution of a lesson activity: repetitions done and
// the instructor's quality rating.
type ActivityRecord struct {
	ID            string
	StudentID     string
	CourseID      string
	LessonNumber  int
	Activity      string
	Repetitions   int
	QualityRating int
	RecordedAt    time.Time
}

// Validate enforces the 1-5 rating scale and non-negative repetitions.
func (r *ActivityRecord) Validate() error {
	if r.StudentID == "" || r.CourseID == "" {
		return shared.InvalidInput("graduation", "RecordActivityExecution", "student and course are required")
	}
	if strings.TrimSpace(r.Activity) == "" {
		return shared.InvalidInput("graduation", "RecordActivityExecution", "activity name is required")
	}
	if r.Repetitions < 0 {
		return shared.ErrNegativeRepetitions
	}
	if r.QualityRating < MinQualityRating || r.QualityRating > MaxQualityRating {
		return shared.ErrInvalidRating
	}
	return nil
}
