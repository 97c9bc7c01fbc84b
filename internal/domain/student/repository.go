package student

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository persists students.
type Repository interface {
	// Create stores a new student.
	Create(ctx context.Context, s *Student) error

	// GetByID returns shared.ErrStudentNotFound when the student is unknown.
	GetByID(ctx context.Context, id string) (*Student, error)

	// SaveProgress writes TotalXP, GlobalLevel and streak fields when the
	// stored Version still equals s.Version, then increments s.Version.
	// Otherwise it returns shared.ErrConcurrentModification.
	SaveProgress(ctx context.Context, s *Student) error

	// ListTopByXP returns the organization's students ordered by TotalXP desc.
	ListTopByXP(ctx context.Context, organizationID string, limit int) ([]*Student, error)

	// CountReferrals returns how many students name id as their referrer.
	CountReferrals(ctx context.Context, id string) (int, error)
}

// EnrollmentRepository persists enrollments.
type EnrollmentRepository interface {
	Create(ctx context.Context, e *Enrollment) error

	// GetByID returns shared.ErrEnrollmentNotFound when unknown.
	GetByID(ctx context.Context, id string) (*Enrollment, error)

	// GetActiveByStudent returns the most recent ACTIVE enrollment, or
	// shared.ErrEnrollmentNotFound.
	GetActiveByStudent(ctx context.Context, studentID string) (*Enrollment, error)

	// GetByStudentCourse returns shared.ErrEnrollmentNotFound when unknown.
	GetByStudentCourse(ctx context.Context, studentID, courseID string) (*Enrollment, error)

	// ListByStudent returns every enrollment of the student.
	ListByStudent(ctx context.Context, studentID string) ([]*Enrollment, error)

	// ListByCourse returns every enrollment in the course.
	ListByCourse(ctx context.Context, courseID string) ([]*Enrollment, error)

	// Save writes the mutable counters and status.
	Save(ctx context.Context, e *Enrollment) error
}

// CourseRepository reads course definitions.
type CourseRepository interface {
	Create(ctx context.Context, c *Course) error

	// GetByID returns shared.ErrCourseNotFound when unknown.
	GetByID(ctx context.Context, id string) (*Course, error)
}
