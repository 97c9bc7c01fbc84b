package command

import (
	"context"
	"fmt"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD DEGREE COMMAND
// Recomputes progression and stores every reached degree that has no record
// yet. A single check-in can cross several boundaries, so all degrees up to
// the current one are visited.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionSource computes the progression of a student in a course.
// Implemented by query.ComputeProgressionHandler.
type ProgressionSource interface {
	Compute(ctx context.Context, studentID, courseID string) (*graduation.ProgressionResult, *graduation.Requirements, error)
}

// RecordDegreeCommand records reached degrees.
type RecordDegreeCommand struct {
	StudentID string
	CourseID  string

	// Degree restricts recording to one degree. Zero records 1..current.
	Degree int

	Timestamp time.Time
}

// Validate validates the command.
func (c RecordDegreeCommand) Validate() error {
	if c.StudentID == "" || c.CourseID == "" {
		return shared.InvalidInput("graduation", "RecordDegree", "student_id and course_id are required")
	}
	if c.Degree < 0 {
		return shared.InvalidInput("graduation", "RecordDegree", "degree cannot be negative")
	}
	return nil
}

// RecordDegreeResult lists the degrees created by this call.
type RecordDegreeResult struct {
	Progression *graduation.ProgressionResult

	// Recorded is empty when every reached degree already existed.
	Recorded []int
}

// RecordDegreeHandler handles RecordDegreeCommand.
type RecordDegreeHandler struct {
	progression ProgressionSource
	enrollments student.EnrollmentRepository
	degrees     graduation.DegreeRepository
	events      shared.EventPublisher
	ids         IDGenerator
	clock       Clock
	log         *logger.Logger
}

// NewRecordDegreeHandler creates a new RecordDegreeHandler.
func NewRecordDegreeHandler(
	progression ProgressionSource,
	enrollments student.EnrollmentRepository,
	degrees graduation.DegreeRepository,
	events shared.EventPublisher,
	ids IDGenerator,
	clock Clock,
	log *logger.Logger,
) *RecordDegreeHandler {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RecordDegreeHandler{
		progression: progression,
		enrollments: enrollments,
		degrees:     degrees,
		events:      events,
		ids:         ids,
		clock:       clock,
		log:         log.With(logger.Component("record_degree")),
	}
}

// Handle executes the command.
func (h *RecordDegreeHandler) Handle(ctx context.Context, cmd RecordDegreeCommand) (*RecordDegreeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	at := cmd.Timestamp
	if at.IsZero() {
		at = h.clock.now()
	}

	res, req, err := h.progression.Compute(ctx, cmd.StudentID, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("record_degree: failed to compute progression: %w", err)
	}
	h.syncEnrollment(ctx, cmd.StudentID, cmd.CourseID, res)

	from, to := 1, res.CurrentDegree
	if cmd.Degree > 0 {
		from, to = cmd.Degree, cmd.Degree
	}

	out := &RecordDegreeResult{Progression: res}
	for degree := from; degree <= to; degree++ {
		d, err := graduation.NewDegreeAchievement(h.ids.GenerateID(), *res, degree, req.DegreeIncrement, at)
		if err != nil {
			return out, err
		}
		created, err := h.degrees.CreateIfAbsent(ctx, d)
		if err != nil {
			return out, fmt.Errorf("record_degree: failed to save degree %d: %w", degree, err)
		}
		if !created {
			continue
		}
		out.Recorded = append(out.Recorded, degree)
		publish(h.events, h.log, shared.NewDegreeReachedEvent(cmd.StudentID, cmd.CourseID, degree))

		h.log.Info("degree reached",
			logger.StudentID(cmd.StudentID),
			logger.CourseID(cmd.CourseID),
			logger.Degree(degree),
		)
	}
	return out, nil
}

// syncEnrollment mirrors distinct lessons and attendance into the enrollment.
func (h *RecordDegreeHandler) syncEnrollment(ctx context.Context, studentID, courseID string, res *graduation.ProgressionResult) {
	enr, err := h.enrollments.GetByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		h.log.Warn("failed to load enrollment for attendance sync",
			logger.StudentID(studentID), logger.CourseID(courseID), logger.Err(err))
		return
	}
	rate := res.AttendanceRate / 100
	if enr.LessonsCompleted == res.CompletedLessons && enr.AttendanceRate == rate {
		return
	}
	enr.SetAttendance(res.CompletedLessons, rate)
	if err := h.enrollments.Save(ctx, enr); err != nil {
		// Log but don't fail
		h.log.Warn("failed to save enrollment attendance", logger.EnrollmentID(enr.ID), logger.Err(err))
	}
}
