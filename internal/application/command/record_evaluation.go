package command

import (
	"context"
	"fmt"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD EVALUATION COMMAND
// Folds technique accuracies into proficiency buckets, appends the evaluation
// and pays evaluation XP.
// ══════════════════════════════════════════════════════════════════════════════

// RecordEvaluationCommand carries an instructor's evaluation.
type RecordEvaluationCommand struct {
	EnrollmentID string

	// Type defaults to the scheduled type for LessonNumber, else PROGRESS.
	Type         gamification.EvaluationType
	LessonNumber int

	Techniques []gamification.TechniqueResult
	Physical   *gamification.PhysicalTest

	// OverallScore and Passed are derived from the results when nil.
	OverallScore *float64
	Passed       *bool

	EvaluatedBy string
	Notes       string
	Timestamp   time.Time
}

// Validate validates the command.
func (c RecordEvaluationCommand) Validate() error {
	if c.EnrollmentID == "" {
		return shared.InvalidInput("gamification", "RecordEvaluation", "enrollment_id is required")
	}
	if c.LessonNumber < 0 {
		return shared.InvalidInput("gamification", "RecordEvaluation", "lesson number cannot be negative")
	}
	if c.Type != "" && !c.Type.IsValid() {
		return shared.InvalidInput("gamification", "RecordEvaluation", fmt.Sprintf("unknown evaluation type %q", c.Type))
	}
	if c.OverallScore != nil && (*c.OverallScore < 0 || *c.OverallScore > 100) {
		return shared.ErrInvalidAccuracy
	}
	return gamification.ValidateResults(c.Techniques, c.Physical)
}

// RecordEvaluationResult reports the verdict and what was granted.
type RecordEvaluationResult struct {
	EvaluationID string
	Passed       bool
	OverallScore float64

	XPAwarded              int
	UnlockedAchievementIDs []string
	AchievementError       error

	// Techniques is the proficiency after this evaluation, one per result.
	Techniques []gamification.TechniqueProgress

	// NextEvaluation is nil once the schedule is exhausted.
	NextEvaluation *gamification.NextEvaluationHint
}

// RecordEvaluationHandler handles RecordEvaluationCommand.
type RecordEvaluationHandler struct {
	enrollments student.EnrollmentRepository
	evaluations gamification.EvaluationRepository
	techniques  gamification.TechniqueProgressRepository
	tables      *gamification.Tables
	schedule    []gamification.ScheduledEvaluation
	awardXP     *AwardXPHandler
	events      shared.EventPublisher
	ids         IDGenerator
	clock       Clock
	log         *logger.Logger
}

// NewRecordEvaluationHandler creates a new RecordEvaluationHandler. A nil
// schedule means gamification.DefaultSchedule.
func NewRecordEvaluationHandler(
	enrollments student.EnrollmentRepository,
	evaluations gamification.EvaluationRepository,
	techniques gamification.TechniqueProgressRepository,
	tables *gamification.Tables,
	schedule []gamification.ScheduledEvaluation,
	awardXP *AwardXPHandler,
	events shared.EventPublisher,
	ids IDGenerator,
	clock Clock,
	log *logger.Logger,
) *RecordEvaluationHandler {
	if schedule == nil {
		schedule = gamification.DefaultSchedule()
	}
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RecordEvaluationHandler{
		enrollments: enrollments,
		evaluations: evaluations,
		techniques:  techniques,
		tables:      tables,
		schedule:    schedule,
		awardXP:     awardXP,
		events:      events,
		ids:         ids,
		clock:       clock,
		log:         log.With(logger.Component("record_evaluation")),
	}
}

// Handle executes the command.
func (h *RecordEvaluationHandler) Handle(ctx context.Context, cmd RecordEvaluationCommand) (*RecordEvaluationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	at := cmd.Timestamp
	if at.IsZero() {
		at = h.clock.now()
	}

	enr, err := h.enrollments.GetByID(ctx, cmd.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("record_evaluation: failed to get enrollment: %w", err)
	}

	typ, passing := cmd.Type, gamification.DefaultPassingScore
	if sched, ok := gamification.ScheduledAt(h.schedule, cmd.LessonNumber); ok {
		passing = sched.PassingScore
		if typ == "" {
			typ = sched.Type
		}
	}
	if typ == "" {
		typ = gamification.EvaluationProgress
	}

	score, passed := gamification.ComputeOutcome(cmd.Techniques, cmd.Physical, passing)
	if cmd.OverallScore != nil {
		score = *cmd.OverallScore
		passed = score >= passing
		if cmd.Physical != nil && !cmd.Physical.Passed {
			passed = false
		}
	}
	if cmd.Passed != nil {
		passed = *cmd.Passed
	}

	// Step 1: technique proficiency
	progress := make([]gamification.TechniqueProgress, 0, len(cmd.Techniques))
	for _, r := range cmd.Techniques {
		tp, err := h.upsertTechnique(ctx, enr.ID, r, at)
		if err != nil {
			return nil, err
		}
		progress = append(progress, *tp)
	}

	// Step 2: append the evaluation
	eval := &gamification.Evaluation{
		ID:           h.ids.GenerateID(),
		EnrollmentID: enr.ID,
		Type:         typ,
		LessonNumber: cmd.LessonNumber,
		Techniques:   cmd.Techniques,
		Physical:     cmd.Physical,
		OverallScore: score,
		Passed:       passed,
		XPAwarded:    h.tables.EvaluationXP(typ, cmd.LessonNumber, score, passed),
		EvaluatedBy:  cmd.EvaluatedBy,
		Notes:        cmd.Notes,
		EvaluatedAt:  at,
	}
	if err := h.evaluations.Append(ctx, eval); err != nil {
		return nil, fmt.Errorf("record_evaluation: failed to save evaluation: %w", err)
	}

	res := &RecordEvaluationResult{
		EvaluationID:   eval.ID,
		Passed:         passed,
		OverallScore:   score,
		Techniques:     progress,
		NextEvaluation: gamification.NextAfter(h.schedule, cmd.LessonNumber, enr.LessonsCompleted),
	}

	// Step 3: evaluation XP
	award, err := h.awardXP.Handle(ctx, AwardXPCommand{
		StudentID:    enr.StudentID,
		EnrollmentID: enr.ID,
		Amount:       eval.XPAwarded,
		Source:       gamification.SourceEvaluation,
		ReferenceID:  eval.ID,
		Note:         fmt.Sprintf("%s evaluation, lesson %d", typ, cmd.LessonNumber),
	})
	if err != nil {
		return nil, fmt.Errorf("record_evaluation: failed to award xp: %w", err)
	}
	res.XPAwarded = award.XPAwarded
	res.UnlockedAchievementIDs = award.UnlockedAchievementIDs
	res.AchievementError = award.AchievementError

	publish(h.events, h.log, shared.NewEvaluationRecordedEvent(enr.StudentID, enr.ID, eval.ID, cmd.LessonNumber, score, passed))

	h.log.Info("evaluation recorded",
		logger.EnrollmentID(enr.ID),
		logger.Int("lesson", cmd.LessonNumber),
		logger.Float64("score", score),
		logger.Bool("passed", passed),
		logger.XPAmount(res.XPAwarded),
	)
	return res, nil
}

func (h *RecordEvaluationHandler) upsertTechnique(ctx context.Context, enrollmentID string, r gamification.TechniqueResult, at time.Time) (*gamification.TechniqueProgress, error) {
	tp, err := h.techniques.Get(ctx, enrollmentID, r.TechniqueID)
	if err != nil {
		return nil, fmt.Errorf("record_evaluation: failed to get technique %s: %w", r.TechniqueID, err)
	}
	if tp == nil {
		tp = &gamification.TechniqueProgress{
			EnrollmentID: enrollmentID,
			TechniqueID:  r.TechniqueID,
			Status:       gamification.ProficiencyLearning,
		}
	}
	if r.TechniqueCategory != "" {
		tp.TechniqueCategory = r.TechniqueCategory
	}
	tp.RecordMeasurement(r.Accuracy, r.Notes, at, h.tables)

	if err := h.techniques.Upsert(ctx, tp); err != nil {
		return nil, fmt.Errorf("record_evaluation: failed to save technique %s: %w", r.TechniqueID, err)
	}
	return tp, nil
}
