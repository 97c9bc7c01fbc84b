package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// DefaultActivityName is used when the instructor does not name the drill.
const DefaultActivityName = "lesson"

// RecordActivityExecutionCommand stores repetitions and a quality rating.
type RecordActivityExecutionCommand struct {
	StudentID     string
	CourseID      string
	LessonNumber  int
	Activity      string
	Repetitions   int
	QualityRating int
	Timestamp     time.Time
}

// RecordActivityExecutionResult reports the stored record.
type RecordActivityExecutionResult struct {
	ActivityID string
	RecordedAt time.Time
}

// RecordActivityExecutionHandler handles RecordActivityExecutionCommand.
type RecordActivityExecutionHandler struct {
	enrollments student.EnrollmentRepository
	activities  graduation.ActivityRepository
	ids         IDGenerator
	clock       Clock
	log         *logger.Logger
}

// NewRecordActivityExecutionHandler creates a new RecordActivityExecutionHandler.
func NewRecordActivityExecutionHandler(
	enrollments student.EnrollmentRepository,
	activities graduation.ActivityRepository,
	ids IDGenerator,
	clock Clock,
	log *logger.Logger,
) *RecordActivityExecutionHandler {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RecordActivityExecutionHandler{
		enrollments: enrollments,
		activities:  activities,
		ids:         ids,
		clock:       clock,
		log:         log.With(logger.Component("record_activity_execution")),
	}
}

// Handle executes the command. The student must be enrolled in the course.
func (h *RecordActivityExecutionHandler) Handle(ctx context.Context, cmd RecordActivityExecutionCommand) (*RecordActivityExecutionResult, error) {
	at := cmd.Timestamp
	if at.IsZero() {
		at = h.clock.now()
	}
	name := strings.TrimSpace(cmd.Activity)
	if name == "" {
		name = DefaultActivityName
	}

	rec := &graduation.ActivityRecord{
		ID:            h.ids.GenerateID(),
		StudentID:     cmd.StudentID,
		CourseID:      cmd.CourseID,
		LessonNumber:  cmd.LessonNumber,
		Activity:      name,
		Repetitions:   cmd.Repetitions,
		QualityRating: cmd.QualityRating,
		RecordedAt:    at,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	if _, err := h.enrollments.GetByStudentCourse(ctx, cmd.StudentID, cmd.CourseID); err != nil {
		return nil, fmt.Errorf("record_activity_execution: failed to get enrollment: %w", err)
	}

	if err := h.activities.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("record_activity_execution: failed to save activity: %w", err)
	}

	h.log.Info("activity execution recorded",
		logger.StudentID(cmd.StudentID),
		logger.CourseID(cmd.CourseID),
		logger.Int("repetitions", rec.Repetitions),
		logger.Int("quality", rec.QualityRating),
	)
	return &RecordActivityExecutionResult{ActivityID: rec.ID, RecordedAt: at}, nil
}
