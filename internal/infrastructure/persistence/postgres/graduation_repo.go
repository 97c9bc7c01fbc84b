package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENTS
// ══════════════════════════════════════════════════════════════════════════════

// RequirementsRepository implements graduation.RequirementsRepository.
type RequirementsRepository struct {
	conn *Connection
}

var _ graduation.RequirementsRepository = (*RequirementsRepository)(nil)

// NewRequirementsRepository creates a RequirementsRepository.
func NewRequirementsRepository(conn *Connection) *RequirementsRepository {
	return &RequirementsRepository{conn: conn}
}

func (r *RequirementsRepository) Get(ctx context.Context, courseID string) (*graduation.Requirements, error) {
	var q graduation.Requirements
	err := r.conn.QueryRow(ctx, `
		SELECT course_id, from_belt, to_belt, total_degrees, degree_increment,
		       min_attendance_rate, min_quality_rating, min_repetitions, min_months_enrolled, updated_at
		FROM graduation_requirements WHERE course_id = $1`, courseID,
	).Scan(
		&q.CourseID, &q.FromBelt, &q.ToBelt, &q.TotalDegrees, &q.DegreeIncrement,
		&q.MinAttendanceRate, &q.MinQualityRating, &q.MinRepetitions, &q.MinMonthsEnrolled, &q.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrRequirementsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get graduation requirements: %w", err)
	}
	return &q, nil
}

func (r *RequirementsRepository) Upsert(ctx context.Context, q *graduation.Requirements) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO graduation_requirements (
			course_id, from_belt, to_belt, total_degrees, degree_increment,
			min_attendance_rate, min_quality_rating, min_repetitions, min_months_enrolled, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (course_id) DO UPDATE SET
			from_belt = EXCLUDED.from_belt,
			to_belt = EXCLUDED.to_belt,
			total_degrees = EXCLUDED.total_degrees,
			degree_increment = EXCLUDED.degree_increment,
			min_attendance_rate = EXCLUDED.min_attendance_rate,
			min_quality_rating = EXCLUDED.min_quality_rating,
			min_repetitions = EXCLUDED.min_repetitions,
			min_months_enrolled = EXCLUDED.min_months_enrolled,
			updated_at = EXCLUDED.updated_at`,
		q.CourseID, q.FromBelt, q.ToBelt, q.TotalDegrees, q.DegreeIncrement,
		q.MinAttendanceRate, q.MinQualityRating, q.MinRepetitions, q.MinMonthsEnrolled, q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert graduation requirements: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRepository implements graduation.AttendanceRepository.
type AttendanceRepository struct {
	conn *Connection
}

var _ graduation.AttendanceRepository = (*AttendanceRepository)(nil)

// NewAttendanceRepository creates an AttendanceRepository.
func NewAttendanceRepository(conn *Connection) *AttendanceRepository {
	return &AttendanceRepository{conn: conn}
}

// Record stores the academy-local day next to the instant so duplicate
// check-ins are rejected by the unique constraint.
func (r *AttendanceRepository) Record(ctx context.Context, rec *graduation.AttendanceRecord) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO attendance (
			id, student_id, course_id, lesson_number, check_in_at, check_in_day, present, techniques_practiced
		) VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8)
		ON CONFLICT (student_id, course_id, lesson_number, check_in_day) DO NOTHING`,
		rec.ID, rec.StudentID, rec.CourseID, rec.LessonNumber, rec.CheckInAt,
		timeutil.FormatDate(rec.CheckInAt), rec.Present, rec.TechniquesPracticed,
	)
	if err != nil {
		return false, fmt.Errorf("record attendance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AttendanceRepository) ListByStudentCourse(ctx context.Context, studentID, courseID string) ([]graduation.AttendanceRecord, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, student_id, course_id, lesson_number, check_in_at, present, techniques_practiced
		FROM attendance
		WHERE student_id = $1 AND course_id = $2
		ORDER BY check_in_at`, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return collect(rows, func(row pgx.Row) (graduation.AttendanceRecord, error) {
		var a graduation.AttendanceRecord
		err := row.Scan(&a.ID, &a.StudentID, &a.CourseID, &a.LessonNumber, &a.CheckInAt, &a.Present, &a.TechniquesPracticed)
		return a, err
	})
}

func (r *AttendanceRepository) ListCheckIns(ctx context.Context, studentID string) ([]time.Time, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT check_in_at FROM attendance
		WHERE student_id = $1 AND present
		ORDER BY check_in_at`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	times, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("scan check-ins: %w", err)
	}
	return times, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY EXECUTIONS
// ══════════════════════════════════════════════════════════════════════════════

// ActivityRepository implements graduation.ActivityRepository.
type ActivityRepository struct {
	conn *Connection
}

var _ graduation.ActivityRepository = (*ActivityRepository)(nil)

// NewActivityRepository creates an ActivityRepository.
func NewActivityRepository(conn *Connection) *ActivityRepository {
	return &ActivityRepository{conn: conn}
}

func (r *ActivityRepository) Append(ctx context.Context, rec *graduation.ActivityRecord) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO activity_executions (
			id, student_id, course_id, lesson_number, activity, repetitions, quality_rating, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.StudentID, rec.CourseID, rec.LessonNumber, rec.Activity,
		rec.Repetitions, rec.QualityRating, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("append activity execution: %w", err)
	}
	return nil
}

func (r *ActivityRepository) ListByStudentCourse(ctx context.Context, studentID, courseID string) ([]graduation.ActivityRecord, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, student_id, course_id, lesson_number, activity, repetitions, quality_rating, recorded_at
		FROM activity_executions
		WHERE student_id = $1 AND course_id = $2
		ORDER BY recorded_at`, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list activity executions: %w", err)
	}
	return collect(rows, func(row pgx.Row) (graduation.ActivityRecord, error) {
		var a graduation.ActivityRecord
		err := row.Scan(&a.ID, &a.StudentID, &a.CourseID, &a.LessonNumber, &a.Activity,
			&a.Repetitions, &a.QualityRating, &a.RecordedAt)
		return a, err
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// DEGREES
// ══════════════════════════════════════════════════════════════════════════════

// DegreeRepository implements graduation.DegreeRepository.
type DegreeRepository struct {
	conn *Connection
}

var _ graduation.DegreeRepository = (*DegreeRepository)(nil)

// NewDegreeRepository creates a DegreeRepository.
func NewDegreeRepository(conn *Connection) *DegreeRepository {
	return &DegreeRepository{conn: conn}
}

func (r *DegreeRepository) CreateIfAbsent(ctx context.Context, d *graduation.DegreeAchievement) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO degree_achievements (
			id, student_id, course_id, degree, degree_percentage, completed_lessons,
			total_repetitions, average_quality, attendance_rate, achieved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (student_id, course_id, degree) DO NOTHING`,
		d.ID, d.StudentID, d.CourseID, d.Degree, d.DegreePercentage, d.CompletedLessons,
		d.TotalRepetitions, d.AverageQuality, d.AttendanceRate, d.AchievedAt,
	)
	if err != nil {
		return false, fmt.Errorf("create degree achievement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DegreeRepository) ListByStudentCourse(ctx context.Context, studentID, courseID string) ([]graduation.DegreeAchievement, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, student_id, course_id, degree, degree_percentage, completed_lessons,
		       total_repetitions, average_quality, attendance_rate, achieved_at
		FROM degree_achievements
		WHERE student_id = $1 AND course_id = $2
		ORDER BY degree`, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("list degree achievements: %w", err)
	}
	return collect(rows, func(row pgx.Row) (graduation.DegreeAchievement, error) {
		var d graduation.DegreeAchievement
		err := row.Scan(&d.ID, &d.StudentID, &d.CourseID, &d.Degree, &d.DegreePercentage, &d.CompletedLessons,
			&d.TotalRepetitions, &d.AverageQuality, &d.AttendanceRate, &d.AchievedAt)
		return d, err
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// BELT GRADUATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GraduationRepository implements graduation.GraduationRepository.
type GraduationRepository struct {
	conn *Connection
}

var _ graduation.GraduationRepository = (*GraduationRepository)(nil)

// NewGraduationRepository creates a GraduationRepository.
func NewGraduationRepository(conn *Connection) *GraduationRepository {
	return &GraduationRepository{conn: conn}
}

const graduationColumns = `id, student_id, course_id, from_belt, to_belt, approved_by,
	completed_lessons, attendance_rate, average_quality, total_repetitions, months_enrolled,
	ceremony_date, ceremony_notes, fingerprint, graduated_at`

func scanGraduation(row pgx.Row) (graduation.BeltGraduation, error) {
	var g graduation.BeltGraduation
	err := row.Scan(
		&g.ID, &g.StudentID, &g.CourseID, &g.FromBelt, &g.ToBelt, &g.ApprovedBy,
		&g.CompletedLessons, &g.AttendanceRate, &g.AverageQuality, &g.TotalRepetitions, &g.MonthsEnrolled,
		&g.CeremonyDate, &g.CeremonyNotes, &g.Fingerprint, &g.GraduatedAt,
	)
	return g, err
}

func (r *GraduationRepository) Append(ctx context.Context, g *graduation.BeltGraduation) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO belt_graduations (`+graduationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		g.ID, g.StudentID, g.CourseID, g.FromBelt, g.ToBelt, g.ApprovedBy,
		g.CompletedLessons, g.AttendanceRate, g.AverageQuality, g.TotalRepetitions, g.MonthsEnrolled,
		g.CeremonyDate, g.CeremonyNotes, g.Fingerprint, g.GraduatedAt,
	)
	if IsUniqueViolation(err) {
		return duplicate("graduation", "AppendGraduation", err)
	}
	if err != nil {
		return fmt.Errorf("append belt graduation: %w", err)
	}
	return nil
}

func (r *GraduationRepository) Latest(ctx context.Context, studentID, courseID string) (*graduation.BeltGraduation, error) {
	g, err := scanGraduation(r.conn.QueryRow(ctx, `
		SELECT `+graduationColumns+` FROM belt_graduations
		WHERE student_id = $1 AND course_id = $2
		ORDER BY graduated_at DESC
		LIMIT 1`, studentID, courseID))
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest belt graduation: %w", err)
	}
	return &g, nil
}

func (r *GraduationRepository) ListByStudent(ctx context.Context, studentID string) ([]graduation.BeltGraduation, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+graduationColumns+` FROM belt_graduations
		WHERE student_id = $1 ORDER BY graduated_at`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list belt graduations: %w", err)
	}
	return collect(rows, scanGraduation)
}
