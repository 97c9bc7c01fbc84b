package command

import (
	"context"
	"fmt"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPROVE GRADUATION COMMAND
// Appends a belt change when every eligibility check passes at approval time.
// ══════════════════════════════════════════════════════════════════════════════

// ApproveGraduationCommand is an instructor's approval.
type ApproveGraduationCommand struct {
	StudentID  string
	CourseID   string
	ApprovedBy string

	// ToBelt defaults to the course requirements' target belt.
	ToBelt string

	CeremonyDate  *time.Time
	CeremonyNotes string
	Timestamp     time.Time
}

// Validate validates the command.
func (c ApproveGraduationCommand) Validate() error {
	if c.StudentID == "" || c.CourseID == "" {
		return shared.InvalidInput("graduation", "ApproveGraduation", "student_id and course_id are required")
	}
	if c.ApprovedBy == "" {
		return shared.InvalidInput("graduation", "ApproveGraduation", "approver is required")
	}
	return nil
}

// ApproveGraduationResult carries the appended record.
type ApproveGraduationResult struct {
	Graduation  *graduation.BeltGraduation
	Progression *graduation.ProgressionResult

	UnlockedAchievementIDs []string
	AchievementError       error
}

// ApproveGraduationHandler handles ApproveGraduationCommand.
type ApproveGraduationHandler struct {
	progression ProgressionSource
	graduations graduation.GraduationRepository
	enrollments student.EnrollmentRepository
	evaluator   AchievementEvaluator
	events      shared.EventPublisher
	ids         IDGenerator
	clock       Clock
	log         *logger.Logger
}

// NewApproveGraduationHandler creates a new ApproveGraduationHandler.
func NewApproveGraduationHandler(
	progression ProgressionSource,
	graduations graduation.GraduationRepository,
	enrollments student.EnrollmentRepository,
	evaluator AchievementEvaluator,
	events shared.EventPublisher,
	ids IDGenerator,
	clock Clock,
	log *logger.Logger,
) *ApproveGraduationHandler {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ApproveGraduationHandler{
		progression: progression,
		graduations: graduations,
		enrollments: enrollments,
		evaluator:   evaluator,
		events:      events,
		ids:         ids,
		clock:       clock,
		log:         log.With(logger.Component("approve_graduation")),
	}
}

// Handle executes the command. It fails with shared.ErrNotEligible unless all
// five checks pass, and with shared.ErrAlreadyRecorded when the student
// already holds the target belt.
func (h *ApproveGraduationHandler) Handle(ctx context.Context, cmd ApproveGraduationCommand) (*ApproveGraduationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	at := cmd.Timestamp
	if at.IsZero() {
		at = h.clock.now()
	}

	res, req, err := h.progression.Compute(ctx, cmd.StudentID, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("approve_graduation: failed to compute progression: %w", err)
	}

	latest, err := h.graduations.Latest(ctx, cmd.StudentID, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("approve_graduation: failed to get current belt: %w", err)
	}
	if latest != nil && !latest.Verify() {
		return nil, shared.NewDomainError("graduation", "ApproveGraduation", shared.ErrValidation,
			fmt.Sprintf("graduation %s does not match its fingerprint", latest.ID))
	}
	toBelt := cmd.ToBelt
	if toBelt == "" {
		toBelt = req.ToBelt
	}
	fromBelt := graduation.CurrentBelt(latest, req.FromBelt)
	if fromBelt == toBelt {
		return nil, shared.NewDomainError("graduation", "ApproveGraduation", shared.ErrAlreadyRecorded,
			fmt.Sprintf("student already holds the %s belt", toBelt))
	}

	g, err := graduation.Approve(*res, graduation.ApprovalParams{
		ID:            h.ids.GenerateID(),
		FromBelt:      fromBelt,
		ToBelt:        toBelt,
		ApprovedBy:    cmd.ApprovedBy,
		CeremonyDate:  cmd.CeremonyDate,
		CeremonyNotes: cmd.CeremonyNotes,
		At:            at,
	})
	if err != nil {
		return nil, err
	}
	if err := h.graduations.Append(ctx, g); err != nil {
		return nil, fmt.Errorf("approve_graduation: failed to save graduation: %w", err)
	}

	log := h.log.With(logger.StudentID(cmd.StudentID), logger.CourseID(cmd.CourseID))
	h.completeEnrollment(ctx, log, cmd.StudentID, cmd.CourseID, at)
	publish(h.events, log, shared.NewBeltGraduatedEvent(cmd.StudentID, cmd.CourseID, g.FromBelt, g.ToBelt, g.ApprovedBy))

	out := &ApproveGraduationResult{Graduation: g, Progression: res}
	if h.evaluator != nil {
		cascade, err := h.evaluator.EvaluateAchievements(ctx, cmd.StudentID, gamification.EventContext{})
		if err != nil {
			// Log but don't fail
			log.Error("achievement evaluation failed", logger.Err(err))
			out.AchievementError = err
		}
		if cascade != nil {
			out.UnlockedAchievementIDs = cascade.Unlocked
		}
	}

	log.Info("belt graduation approved",
		logger.String("from_belt", g.FromBelt),
		logger.String("to_belt", g.ToBelt),
		logger.String("approved_by", g.ApprovedBy),
	)
	return out, nil
}

func (h *ApproveGraduationHandler) completeEnrollment(ctx context.Context, log *logger.Logger, studentID, courseID string, at time.Time) {
	enr, err := h.enrollments.GetByStudentCourse(ctx, studentID, courseID)
	if err != nil {
		log.Warn("failed to load enrollment for completion", logger.Err(err))
		return
	}
	if enr.Status == student.EnrollmentCompleted {
		return
	}
	enr.Status = student.EnrollmentCompleted
	done := at
	enr.CompletedAt = &done
	enr.UpdatedAt = at
	if err := h.enrollments.Save(ctx, enr); err != nil {
		// Log but don't fail
		log.Warn("failed to mark enrollment completed", logger.EnrollmentID(enr.ID), logger.Err(err))
	}
}
