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
// SUBMIT CHALLENGE ATTEMPT COMMAND
// Scores a weekly challenge against the category-adjusted target. The latest
// submission overwrites the attempt; XP is paid the first time it completes.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitChallengeCommand carries one submission.
type SubmitChallengeCommand struct {
	EnrollmentID string
	ChallengeID  string

	// Metric and TimeSeconds are optional measurements.
	Metric      *int
	TimeSeconds *int

	Timestamp time.Time
}

// Validate validates the command.
func (c SubmitChallengeCommand) Validate() error {
	if c.EnrollmentID == "" || c.ChallengeID == "" {
		return shared.InvalidInput("gamification", "SubmitChallenge", "enrollment_id and challenge_id are required")
	}
	return gamification.ValidateSubmission(c.Metric, c.TimeSeconds)
}

// ChallengeResult reports the verdict and what was granted.
type ChallengeResult struct {
	AttemptID           string
	Completed           bool
	AdjustedMetric      int
	AdjustedTimeSeconds *int

	// XPAwarded is zero unless this submission completed the challenge for
	// the first time.
	XPAwarded              int
	UnlockedAchievementIDs []string
	AchievementError       error
}

// ChallengeHandler handles challenge submissions and instructor validations.
type ChallengeHandler struct {
	enrollments student.EnrollmentRepository
	challenges  gamification.ChallengeRepository
	adjuster    gamification.MetricAdjuster
	awardXP     *AwardXPHandler
	events      shared.EventPublisher
	ids         IDGenerator
	clock       Clock
	log         *logger.Logger
}

// NewChallengeHandler creates a new ChallengeHandler.
func NewChallengeHandler(
	enrollments student.EnrollmentRepository,
	challenges gamification.ChallengeRepository,
	tables *gamification.Tables,
	awardXP *AwardXPHandler,
	events shared.EventPublisher,
	ids IDGenerator,
	clock Clock,
	log *logger.Logger,
) *ChallengeHandler {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ChallengeHandler{
		enrollments: enrollments,
		challenges:  challenges,
		adjuster:    gamification.NewMetricAdjuster(tables),
		awardXP:     awardXP,
		events:      events,
		ids:         ids,
		clock:       clock,
		log:         log.With(logger.Component("challenge")),
	}
}

// Submit handles SubmitChallengeCommand.
func (h *ChallengeHandler) Submit(ctx context.Context, cmd SubmitChallengeCommand) (*ChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	at := cmd.Timestamp
	if at.IsZero() {
		at = h.clock.now()
	}

	enr, def, attempt, err := h.load(ctx, cmd.EnrollmentID, cmd.ChallengeID, at)
	if err != nil {
		return nil, err
	}

	score := gamification.ScoreChallenge(def, cmd.Metric, cmd.TimeSeconds, enr.Category, enr.Gender, h.adjuster)
	due := attempt.ApplySubmission(cmd.Metric, cmd.TimeSeconds, score.Completed, at)

	res := &ChallengeResult{
		AttemptID:           attempt.ID,
		Completed:           score.Completed,
		AdjustedMetric:      score.AdjustedMetric,
		AdjustedTimeSeconds: score.AdjustedTimeSeconds,
	}
	if err := h.commit(ctx, enr, def, attempt, due, at, res); err != nil {
		return nil, err
	}

	h.log.Info("challenge attempt recorded",
		logger.EnrollmentID(enr.ID),
		logger.ChallengeID(def.ID),
		logger.Bool("completed", res.Completed),
		logger.XPAmount(res.XPAwarded),
	)
	return res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATE CHALLENGE ATTEMPT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ValidateChallengeCommand is an instructor decision on an attempt.
type ValidateChallengeCommand struct {
	EnrollmentID string
	ChallengeID  string
	Approved     bool
	Notes        string

	// Optional corrected measurements.
	Metric      *int
	TimeSeconds *int

	Timestamp time.Time
}

// Validate validates the command.
func (c ValidateChallengeCommand) Validate() error {
	if c.EnrollmentID == "" || c.ChallengeID == "" {
		return shared.InvalidInput("gamification", "ValidateChallenge", "enrollment_id and challenge_id are required")
	}
	return gamification.ValidateSubmission(c.Metric, c.TimeSeconds)
}

// ValidateAttempt handles ValidateChallengeCommand. Approval completes the attempt
// and pays XP if it was never paid; rejection clears completion.
func (h *ChallengeHandler) ValidateAttempt(ctx context.Context, cmd ValidateChallengeCommand) (*ChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	at := cmd.Timestamp
	if at.IsZero() {
		at = h.clock.now()
	}

	enr, def, attempt, err := h.load(ctx, cmd.EnrollmentID, cmd.ChallengeID, at)
	if err != nil {
		return nil, err
	}

	due := attempt.ApplyValidation(cmd.Approved, cmd.Notes, cmd.Metric, cmd.TimeSeconds, at)
	res := &ChallengeResult{
		AttemptID:      attempt.ID,
		Completed:      attempt.Completed,
		AdjustedMetric: h.adjuster.Adjust(def.BaseMetric, enr.Category, enr.Gender),
		AdjustedTimeSeconds: h.adjuster.AdjustOptional(def.BaseTimeSeconds,
			enr.Category, enr.Gender),
	}
	if err := h.commit(ctx, enr, def, attempt, due, at, res); err != nil {
		return nil, err
	}

	h.log.Info("challenge attempt validated",
		logger.EnrollmentID(enr.ID),
		logger.ChallengeID(def.ID),
		logger.Bool("approved", cmd.Approved),
		logger.XPAmount(res.XPAwarded),
	)
	return res, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared steps
// ─────────────────────────────────────────────────────────────────────────────

func (h *ChallengeHandler) load(ctx context.Context, enrollmentID, challengeID string, at time.Time) (*student.Enrollment, *gamification.ChallengeDefinition, *gamification.ChallengeAttempt, error) {
	enr, err := h.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("challenge: failed to get enrollment: %w", err)
	}
	def, err := h.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("challenge: failed to get challenge: %w", err)
	}
	if def.CourseID != enr.CourseID {
		return nil, nil, nil, shared.InvalidInput("gamification", "Challenge",
			fmt.Sprintf("challenge %s belongs to course %s, enrollment %s is in %s", def.ID, def.CourseID, enr.ID, enr.CourseID))
	}

	attempt, err := h.challenges.GetAttempt(ctx, enr.ID, def.ID)
	switch {
	case err == nil:
	case shared.IsNotFound(err):
		attempt = gamification.NewChallengeAttempt(h.ids.GenerateID(), enr.ID, def.ID, at)
	default:
		return nil, nil, nil, fmt.Errorf("challenge: failed to get attempt: %w", err)
	}
	return enr, def, attempt, nil
}

// commit persists the attempt, with RewardedAt set when XP is due, before
// paying. The achievement pass then sees the completed attempt.
func (h *ChallengeHandler) commit(
	ctx context.Context,
	enr *student.Enrollment,
	def *gamification.ChallengeDefinition,
	attempt *gamification.ChallengeAttempt,
	due bool,
	at time.Time,
	res *ChallengeResult,
) error {
	if due {
		attempt.MarkRewarded(def.XPReward, at)
	}
	if err := h.challenges.UpsertAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("challenge: failed to save attempt: %w", err)
	}
	if !due {
		return nil
	}

	award, err := h.awardXP.Handle(ctx, AwardXPCommand{
		StudentID:    enr.StudentID,
		EnrollmentID: enr.ID,
		Amount:       def.XPReward,
		Source:       gamification.SourceChallenge,
		ReferenceID:  def.ID,
		Note:         fmt.Sprintf("challenge week %d", def.WeekNumber),
	})
	if err != nil {
		return fmt.Errorf("challenge: failed to award xp: %w", err)
	}
	res.XPAwarded = award.XPAwarded
	res.UnlockedAchievementIDs = award.UnlockedAchievementIDs
	res.AchievementError = award.AchievementError

	if award.XPAwarded != attempt.XPEarned {
		attempt.XPEarned = award.XPAwarded
		if err := h.challenges.UpsertAttempt(ctx, attempt); err != nil {
			// Log but don't fail
			h.log.Warn("failed to store adjusted challenge xp", logger.ChallengeID(def.ID), logger.Err(err))
		}
	}

	publish(h.events, h.log, shared.NewChallengeCompletedEvent(enr.StudentID, enr.ID, def.ID, award.XPAwarded))
	return nil
}
