// Package engine is the service facade of the progression engine. It wires
// the command, saga and query handlers over one set of repositories and runs
// every student-scoped mutation inside a per-student critical section.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/dojo-hub/progression-engine/internal/application/command"
	"github.com/dojo-hub/progression-engine/internal/application/query"
	"github.com/dojo-hub/progression-engine/internal/application/saga"
	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// Locker serializes work per key. The returned unlock must be called once
// the critical section ends.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Repositories is the data-access layer the engine runs on.
type Repositories struct {
	Students     student.Repository
	Enrollments  student.EnrollmentRepository
	Courses      student.CourseRepository
	Achievements gamification.AchievementRepository
	Transactions gamification.TransactionLog
	Challenges   gamification.ChallengeRepository
	Evaluations  gamification.EvaluationRepository
	Techniques   gamification.TechniqueProgressRepository
	Requirements graduation.RequirementsRepository
	Attendance   graduation.AttendanceRepository
	Activities   graduation.ActivityRepository
	Degrees      graduation.DegreeRepository
	Graduations  graduation.GraduationRepository
}

func (r Repositories) validate() error {
	switch {
	case r.Students == nil, r.Enrollments == nil, r.Courses == nil:
		return errors.New("engine: student repositories are required")
	case r.Achievements == nil, r.Transactions == nil, r.Challenges == nil,
		r.Evaluations == nil, r.Techniques == nil:
		return errors.New("engine: gamification repositories are required")
	case r.Requirements == nil, r.Attendance == nil, r.Activities == nil,
		r.Degrees == nil, r.Graduations == nil:
		return errors.New("engine: graduation repositories are required")
	}
	return nil
}

// Deps configures an Engine. Repos, Tables and Locker are required.
type Deps struct {
	Repos  Repositories
	Tables *gamification.Tables
	Locker Locker

	// LockWait bounds how long a mutation waits for a busy student.
	// Zero waits as long as the caller's context allows.
	LockWait time.Duration

	// Schedule defaults to gamification.DefaultSchedule.
	Schedule []gamification.ScheduledEvaluation

	// Catalog is what SeedDefaultAchievements creates. Nil means
	// gamification.DefaultCatalog.
	Catalog []gamification.AchievementDefinition

	Events     shared.EventPublisher
	Ranking    query.Ranking
	StatsCache query.StatsCache

	IDs    command.IDGenerator
	Clock  command.Clock
	Logger *logger.Logger
}

// Engine exposes the progression operations.
type Engine struct {
	repos      Repositories
	locker     Locker
	lockWait   time.Duration
	statsCache query.StatsCache
	catalog    []gamification.AchievementDefinition
	log        *logger.Logger

	awardXP      *command.AwardXPHandler
	streak       *command.RecordActivityHandler
	challenges   *command.ChallengeHandler
	evaluations  *command.RecordEvaluationHandler
	checkIns     *command.ProcessCheckInHandler
	executions   *command.RecordActivityExecutionHandler
	degrees      *command.RecordDegreeHandler
	graduations  *command.ApproveGraduationHandler
	bonus        *command.GrantBonusHandler
	seed         *command.SeedAchievementsHandler
	achievements *saga.AchievementFlowSaga

	progression *query.ComputeProgressionHandler
	completion  *query.CourseCompletionHandler
	stats       *query.StudentStatsHandler
	leaderboard *query.LeaderboardHandler
}

// New wires every handler.
func New(d Deps) (*Engine, error) {
	if err := d.Repos.validate(); err != nil {
		return nil, err
	}
	if d.Tables == nil {
		return nil, errors.New("engine: tables are required")
	}
	if d.Locker == nil {
		return nil, errors.New("engine: locker is required")
	}
	if d.IDs == nil {
		d.IDs = command.UUIDGenerator{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	r := d.Repos
	log := d.Logger
	now := func() time.Time {
		if d.Clock != nil {
			return d.Clock()
		}
		return time.Now().UTC()
	}

	ledger := command.NewXPLedger(r.Students, r.Enrollments, r.Transactions, d.Tables, d.Events, d.IDs, d.Clock, log)
	loader := saga.NewStateLoader(r.Students, r.Enrollments, r.Attendance, r.Techniques, r.Challenges)
	flow := saga.NewAchievementFlowSaga(r.Students, r.Achievements, loader, ledger, d.Events, d.IDs, d.Clock, log)
	awardXP := command.NewAwardXPHandler(ledger, flow, log)

	progression := query.NewComputeProgressionHandler(
		r.Enrollments, r.Courses, r.Requirements, r.Attendance, r.Activities, r.Degrees, r.Graduations, now)
	streak := command.NewRecordActivityHandler(r.Students, d.Tables, d.Events, d.Clock, log)
	degrees := command.NewRecordDegreeHandler(progression, r.Enrollments, r.Degrees, d.Events, d.IDs, d.Clock, log)

	return &Engine{
		repos:      r,
		locker:     d.Locker,
		lockWait:   d.LockWait,
		statsCache: d.StatsCache,
		catalog:    d.Catalog,
		log:        log.With(logger.Component("engine")),

		awardXP:    awardXP,
		streak:     streak,
		challenges: command.NewChallengeHandler(r.Enrollments, r.Challenges, d.Tables, awardXP, d.Events, d.IDs, d.Clock, log),
		evaluations: command.NewRecordEvaluationHandler(
			r.Enrollments, r.Evaluations, r.Techniques, d.Tables, d.Schedule, awardXP, d.Events, d.IDs, d.Clock, log),
		checkIns: command.NewProcessCheckInHandler(
			r.Students, r.Enrollments, r.Attendance, d.Tables, streak, awardXP, degrees, d.IDs, d.Clock, log),
		executions: command.NewRecordActivityExecutionHandler(r.Enrollments, r.Activities, d.IDs, d.Clock, log),
		degrees:    degrees,
		graduations: command.NewApproveGraduationHandler(
			progression, r.Graduations, r.Enrollments, flow, d.Events, d.IDs, d.Clock, log),
		bonus:        command.NewGrantBonusHandler(awardXP, log),
		seed:         command.NewSeedAchievementsHandler(r.Achievements, d.IDs, d.Clock, log),
		achievements: flow,

		progression: progression,
		completion:  query.NewCourseCompletionHandler(r.Enrollments, r.Courses, r.Techniques, r.Challenges, r.Evaluations, now),
		stats: query.NewStudentStatsHandler(
			r.Students, r.Enrollments, r.Achievements, r.Techniques, r.Challenges, r.Attendance, d.Tables, d.StatsCache, log),
		leaderboard: query.NewLeaderboardHandler(r.Students, d.Ranking, d.Tables, log),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SERIALIZATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentLockKey is the lock key of a student's critical section.
func StudentLockKey(studentID string) string {
	return "student:" + studentID
}

// forStudent runs fn while holding the student's lock, then drops the cached
// profile. The whole achievement cascade triggered by fn runs inside it.
func forStudent[T any](ctx context.Context, e *Engine, studentID, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if studentID == "" {
		return zero, shared.InvalidInput("engine", op, "student_id is required")
	}

	start := time.Now()
	lockCtx := ctx
	if e.lockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, e.lockWait)
		defer cancel()
	}
	unlock, err := e.locker.Lock(lockCtx, StudentLockKey(studentID))
	if err != nil {
		return zero, shared.WrapError("engine", op, shared.ErrConcurrentModification, "failed to lock student", err)
	}
	defer unlock()

	res, err := fn(ctx)
	e.invalidateStats(ctx, studentID)

	e.log.Debug("operation finished",
		logger.Operation(op),
		logger.StudentID(studentID),
		logger.Latency(time.Since(start)),
		logger.Bool("ok", err == nil),
	)
	return res, err
}

// studentOfEnrollment resolves the owner of an enrollment before locking.
func (e *Engine) studentOfEnrollment(ctx context.Context, op, enrollmentID string) (string, error) {
	if enrollmentID == "" {
		return "", shared.InvalidInput("engine", op, "enrollment_id is required")
	}
	enr, err := e.repos.Enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return "", err
	}
	return enr.StudentID, nil
}

func (e *Engine) invalidateStats(ctx context.Context, studentID string) {
	if e.statsCache == nil {
		return
	}
	if err := e.statsCache.Invalidate(ctx, studentID); err != nil {
		// Log but don't fail; the entry expires on its own
		e.log.Warn("failed to invalidate stats cache", logger.StudentID(studentID), logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// AwardXP applies a category-adjusted XP delta and runs the achievement cascade.
func (e *Engine) AwardXP(ctx context.Context, cmd command.AwardXPCommand) (*command.AwardXPResult, error) {
	return forStudent(ctx, e, cmd.StudentID, "AwardXP", func(ctx context.Context) (*command.AwardXPResult, error) {
		return e.awardXP.Handle(ctx, cmd)
	})
}

// RecordActivity updates the streak.
func (e *Engine) RecordActivity(ctx context.Context, cmd command.RecordActivityCommand) (*command.RecordActivityResult, error) {
	return forStudent(ctx, e, cmd.StudentID, "RecordActivity", func(ctx context.Context) (*command.RecordActivityResult, error) {
		return e.streak.Handle(ctx, cmd)
	})
}

// SubmitChallengeAttempt scores a weekly challenge submission.
func (e *Engine) SubmitChallengeAttempt(ctx context.Context, cmd command.SubmitChallengeCommand) (*command.ChallengeResult, error) {
	studentID, err := e.studentOfEnrollment(ctx, "SubmitChallengeAttempt", cmd.EnrollmentID)
	if err != nil {
		return nil, err
	}
	return forStudent(ctx, e, studentID, "SubmitChallengeAttempt", func(ctx context.Context) (*command.ChallengeResult, error) {
		return e.challenges.Submit(ctx, cmd)
	})
}

// ValidateChallengeAttempt applies an instructor decision to an attempt.
func (e *Engine) ValidateChallengeAttempt(ctx context.Context, cmd command.ValidateChallengeCommand) (*command.ChallengeResult, error) {
	studentID, err := e.studentOfEnrollment(ctx, "ValidateChallengeAttempt", cmd.EnrollmentID)
	if err != nil {
		return nil, err
	}
	return forStudent(ctx, e, studentID, "ValidateChallengeAttempt", func(ctx context.Context) (*command.ChallengeResult, error) {
		return e.challenges.ValidateAttempt(ctx, cmd)
	})
}

// RecordEvaluation stores an evaluation, updates technique mastery and
// awards evaluation XP.
func (e *Engine) RecordEvaluation(ctx context.Context, cmd command.RecordEvaluationCommand) (*command.RecordEvaluationResult, error) {
	studentID, err := e.studentOfEnrollment(ctx, "RecordEvaluation", cmd.EnrollmentID)
	if err != nil {
		return nil, err
	}
	return forStudent(ctx, e, studentID, "RecordEvaluation", func(ctx context.Context) (*command.RecordEvaluationResult, error) {
		return e.evaluations.Handle(ctx, cmd)
	})
}

// ProcessCheckIn runs the check-in pipeline.
func (e *Engine) ProcessCheckIn(ctx context.Context, cmd command.ProcessCheckInCommand) (*command.ProcessCheckInResult, error) {
	return forStudent(ctx, e, cmd.StudentID, "ProcessCheckIn", func(ctx context.Context) (*command.ProcessCheckInResult, error) {
		return e.checkIns.Handle(ctx, cmd)
	})
}

// RecordActivityExecution stores repetitions and a quality rating.
func (e *Engine) RecordActivityExecution(ctx context.Context, cmd command.RecordActivityExecutionCommand) (*command.RecordActivityExecutionResult, error) {
	return forStudent(ctx, e, cmd.StudentID, "RecordActivityExecution", func(ctx context.Context) (*command.RecordActivityExecutionResult, error) {
		return e.executions.Handle(ctx, cmd)
	})
}

// RecordDegrees records every reached degree not yet stored.
func (e *Engine) RecordDegrees(ctx context.Context, cmd command.RecordDegreeCommand) (*command.RecordDegreeResult, error) {
	return forStudent(ctx, e, cmd.StudentID, "RecordDegrees", func(ctx context.Context) (*command.RecordDegreeResult, error) {
		return e.degrees.Handle(ctx, cmd)
	})
}

// ApproveGraduation records a belt change. It fails with NotEligible unless
// every eligibility check passes.
func (e *Engine) ApproveGraduation(ctx context.Context, cmd command.ApproveGraduationCommand) (*command.ApproveGraduationResult, error) {
	return forStudent(ctx, e, cmd.StudentID, "ApproveGraduation", func(ctx context.Context) (*command.ApproveGraduationResult, error) {
		return e.graduations.Handle(ctx, cmd)
	})
}

// GrantInstructorBonus awards bonus XP.
func (e *Engine) GrantInstructorBonus(ctx context.Context, cmd command.GrantBonusCommand) (*command.AwardXPResult, error) {
	return forStudent(ctx, e, cmd.StudentID, "GrantInstructorBonus", func(ctx context.Context) (*command.AwardXPResult, error) {
		return e.bonus.Handle(ctx, cmd)
	})
}

// EvaluateAchievements runs the cascade without a triggering award.
func (e *Engine) EvaluateAchievements(ctx context.Context, studentID string) (*command.CascadeOutcome, error) {
	return forStudent(ctx, e, studentID, "EvaluateAchievements", func(ctx context.Context) (*command.CascadeOutcome, error) {
		return e.achievements.EvaluateAchievements(ctx, studentID, gamification.EventContext{})
	})
}

// SeedDefaultAchievements creates the configured catalog for an organization.
// Entries already present are skipped.
func (e *Engine) SeedDefaultAchievements(ctx context.Context, organizationID string) (*command.SeedAchievementsResult, error) {
	return e.seed.Handle(ctx, command.SeedAchievementsCommand{
		OrganizationID: organizationID,
		Catalog:        e.catalog,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ComputeProgression returns the graduation progress of a student in a course.
func (e *Engine) ComputeProgression(ctx context.Context, studentID, courseID string) (*query.ProgressionView, error) {
	return e.progression.Handle(ctx, query.ComputeProgressionQuery{StudentID: studentID, CourseID: courseID})
}

// CourseCompletion returns the weighted completion of an enrollment.
func (e *Engine) CourseCompletion(ctx context.Context, enrollmentID string) (*query.CourseCompletion, error) {
	return e.completion.Handle(ctx, enrollmentID)
}

// StudentStats returns the gamification profile.
func (e *Engine) StudentStats(ctx context.Context, studentID string) (*query.StudentStats, error) {
	return e.stats.Handle(ctx, studentID)
}

// Leaderboard returns the top students of an organization.
func (e *Engine) Leaderboard(ctx context.Context, organizationID string, limit int) ([]query.LeaderboardEntry, error) {
	return e.leaderboard.Handle(ctx, organizationID, limit)
}
