package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
)

func duplicate(domain, op string, err error) error {
	return shared.WrapError(domain, op, shared.ErrAlreadyExists, "duplicate key", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository.
type StudentRepository struct {
	conn *Connection
}

var _ student.Repository = (*StudentRepository)(nil)

// NewStudentRepository creates a StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const studentColumns = `id, organization_id, name, category, gender, referred_by,
	total_xp, global_level, current_streak, longest_streak, last_activity_date,
	version, created_at, updated_at`

func scanStudent(row pgx.Row) (*student.Student, error) {
	var s student.Student
	err := row.Scan(
		&s.ID, &s.OrganizationID, &s.Name, &s.Category, &s.Gender, &s.ReferredBy,
		&s.TotalXP, &s.GlobalLevel, &s.CurrentStreak, &s.LongestStreak, &s.LastActivityDate,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.OrganizationID, s.Name, s.Category, s.Gender, s.ReferredBy,
		s.TotalXP, s.GlobalLevel, s.CurrentStreak, s.LongestStreak, s.LastActivityDate,
		s.Version, s.CreatedAt, s.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return duplicate("student", "Create", err)
	}
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	s, err := scanStudent(r.conn.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

// SaveProgress is a compare-and-set on version, so two processes that read
// the same row cannot both write an absolute total over each other.
func (r *StudentRepository) SaveProgress(ctx context.Context, s *student.Student) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE students
		SET total_xp = $2, global_level = $3, current_streak = $4, longest_streak = $5,
		    last_activity_date = $6, updated_at = $7, version = version + 1
		WHERE id = $1 AND version = $8`,
		s.ID, s.TotalXP, s.GlobalLevel, s.CurrentStreak, s.LongestStreak, s.LastActivityDate, s.UpdatedAt,
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("save student progress: %w", err)
	}
	if tag.RowsAffected() == 1 {
		s.Version++
		return nil
	}

	var exists bool
	if err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
		return fmt.Errorf("save student progress: %w", err)
	}
	if !exists {
		return shared.ErrStudentNotFound
	}
	return shared.NewDomainError("student", "SaveProgress", shared.ErrConcurrentModification,
		fmt.Sprintf("student %s changed since version %d was read", s.ID, s.Version))
}

func (r *StudentRepository) ListTopByXP(ctx context.Context, organizationID string, limit int) ([]*student.Student, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+studentColumns+` FROM students
		WHERE ($1 = '' OR organization_id = $1)
		ORDER BY total_xp DESC, id
		LIMIT $2`, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list top students: %w", err)
	}
	return collect(rows, scanStudent)
}

func (r *StudentRepository) CountReferrals(ctx context.Context, id string) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM students WHERE referred_by = $1`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements student.EnrollmentRepository.
type EnrollmentRepository struct {
	conn *Connection
}

var _ student.EnrollmentRepository = (*EnrollmentRepository)(nil)

// NewEnrollmentRepository creates an EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

const enrollmentColumns = `id, student_id, course_id, status, category, gender,
	current_xp, current_level, attendance_rate, lessons_completed,
	enrolled_at, completed_at, updated_at`

func scanEnrollment(row pgx.Row) (*student.Enrollment, error) {
	var e student.Enrollment
	err := row.Scan(
		&e.ID, &e.StudentID, &e.CourseID, &e.Status, &e.Category, &e.Gender,
		&e.CurrentXP, &e.CurrentLevel, &e.AttendanceRate, &e.LessonsCompleted,
		&e.EnrolledAt, &e.CompletedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EnrollmentRepository) Create(ctx context.Context, e *student.Enrollment) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO enrollments (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.StudentID, e.CourseID, e.Status, e.Category, e.Gender,
		e.CurrentXP, e.CurrentLevel, e.AttendanceRate, e.LessonsCompleted,
		e.EnrolledAt, e.CompletedAt, e.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return duplicate("student", "CreateEnrollment", err)
	}
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) getOne(ctx context.Context, where string, args ...any) (*student.Enrollment, error) {
	e, err := scanEnrollment(r.conn.QueryRow(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE `+where, args...))
	if IsNoRows(err) {
		return nil, shared.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*student.Enrollment, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *EnrollmentRepository) GetActiveByStudent(ctx context.Context, studentID string) (*student.Enrollment, error) {
	return r.getOne(ctx, `student_id = $1 AND status = $2 ORDER BY enrolled_at DESC LIMIT 1`,
		studentID, student.EnrollmentActive)
}

func (r *EnrollmentRepository) GetByStudentCourse(ctx context.Context, studentID, courseID string) (*student.Enrollment, error) {
	return r.getOne(ctx, `student_id = $1 AND course_id = $2`, studentID, courseID)
}

func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]*student.Enrollment, error) {
	return r.list(ctx, `student_id = $1`, studentID)
}

func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]*student.Enrollment, error) {
	return r.list(ctx, `course_id = $1`, courseID)
}

func (r *EnrollmentRepository) list(ctx context.Context, where string, args ...any) ([]*student.Enrollment, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE `+where+` ORDER BY enrolled_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return collect(rows, scanEnrollment)
}

func (r *EnrollmentRepository) Save(ctx context.Context, e *student.Enrollment) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE enrollments
		SET status = $2, current_xp = $3, current_level = $4, attendance_rate = $5,
		    lessons_completed = $6, completed_at = $7, updated_at = $8
		WHERE id = $1`,
		e.ID, e.Status, e.CurrentXP, e.CurrentLevel, e.AttendanceRate,
		e.LessonsCompleted, e.CompletedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrEnrollmentNotFound
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSES
// ══════════════════════════════════════════════════════════════════════════════

// CourseRepository implements student.CourseRepository.
type CourseRepository struct {
	conn *Connection
}

var _ student.CourseRepository = (*CourseRepository)(nil)

// NewCourseRepository creates a CourseRepository.
func NewCourseRepository(conn *Connection) *CourseRepository {
	return &CourseRepository{conn: conn}
}

func (r *CourseRepository) Create(ctx context.Context, c *student.Course) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO courses (id, organization_id, name, belt, total_lessons, required_techniques)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.OrganizationID, c.Name, c.Belt, c.TotalLessons, c.RequiredTechniques,
	)
	if IsUniqueViolation(err) {
		return duplicate("student", "CreateCourse", err)
	}
	if err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

func (r *CourseRepository) GetByID(ctx context.Context, id string) (*student.Course, error) {
	var c student.Course
	err := r.conn.QueryRow(ctx, `
		SELECT id, organization_id, name, belt, total_lessons, required_techniques
		FROM courses WHERE id = $1`, id,
	).Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Belt, &c.TotalLessons, &c.RequiredTechniques)
	if IsNoRows(err) {
		return nil, shared.ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	return &c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
