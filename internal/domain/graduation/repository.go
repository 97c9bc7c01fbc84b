package graduation

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// RequirementsRepository stores per-course requirements.
type RequirementsRepository interface {
	// Get returns shared.ErrRequirementsNotFound when the course has none.
	Get(ctx context.Context, courseID string) (*Requirements, error)

	Upsert(ctx context.Context, r *Requirements) error
}

// AttendanceRepository stores check-ins.
type AttendanceRepository interface {
	// Record inserts r unless the student already has a record for the same
	// course, lesson and local day. It returns created=false for duplicates.
	Record(ctx context.Context, r *AttendanceRecord) (bool, error)

	// ListByStudentCourse returns the course records ordered by CheckInAt.
	ListByStudentCourse(ctx context.Context, studentID, courseID string) ([]AttendanceRecord, error)

	// ListCheckIns returns the times of present records across all courses.
	ListCheckIns(ctx context.Context, studentID string) ([]time.Time, error)
}

// ActivityRepository stores activity executions.
type ActivityRepository interface {
	Append(ctx context.Context, r *ActivityRecord) error
	ListByStudentCourse(ctx context.Context, studentID, courseID string) ([]ActivityRecord, error)
}

// DegreeRepository stores reached degrees.
type DegreeRepository interface {
	// CreateIfAbsent inserts d unless (student, course, degree) exists.
	// It returns created=false when the degree was already recorded.
	CreateIfAbsent(ctx context.Context, d *DegreeAchievement) (bool, error)

	// ListByStudentCourse returns degrees ordered by Degree.
	ListByStudentCourse(ctx context.Context, studentID, courseID string) ([]DegreeAchievement, error)
}

// GraduationRepository is the append-only belt history.
type GraduationRepository interface {
	Append(ctx context.Context, g *BeltGraduation) error

	// Latest returns nil, nil when the student never graduated in the course.
	Latest(ctx context.Context, studentID, courseID string) (*BeltGraduation, error)

	ListByStudent(ctx context.Context, studentID string) ([]BeltGraduation, error)
}
