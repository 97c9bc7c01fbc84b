package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
	"github.com/dojo-hub/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP LEDGER
// The only writer of TotalXP and GlobalLevel. Applies the category multiplier,
// mirrors the delta into the active enrollment and appends the audit entry.
// It never evaluates achievements; AwardXPHandler and the achievement cascade
// sit on top of it.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerEntry is one raw XP delta.
type LedgerEntry struct {
	StudentID string

	// EnrollmentID selects the enrollment to mirror into. Empty means the
	// student's most recent active enrollment.
	EnrollmentID string

	RawAmount   int
	Source      gamification.SourceType
	ReferenceID string
	Note        string
}

// Validate validates the entry.
func (e LedgerEntry) Validate() error {
	if e.StudentID == "" {
		return shared.InvalidInput("gamification", "AwardXP", "student_id is required")
	}
	if e.RawAmount < 0 {
		return shared.ErrNegativeXP
	}
	if !e.Source.IsValid() {
		return shared.InvalidInput("gamification", "AwardXP", fmt.Sprintf("unknown source type %q", e.Source))
	}
	return nil
}

// LedgerResult is what the ledger committed.
type LedgerResult struct {
	StudentID      string
	OrganizationID string
	EnrollmentID   string

	RawAmount int
	XPAwarded int

	TotalXP       int
	PreviousLevel int
	NewLevel      int
	LeveledUp     bool

	TransactionID string
}

// XPLedger applies XP deltas.
type XPLedger struct {
	students    student.Repository
	enrollments student.EnrollmentRepository
	txLog       gamification.TransactionLog
	tables      *gamification.Tables
	events      shared.EventPublisher
	ids         IDGenerator
	clock       Clock
	conflicts   *retry.Retrier
	log         *logger.Logger
}

// NewXPLedger creates the ledger.
func NewXPLedger(
	students student.Repository,
	enrollments student.EnrollmentRepository,
	txLog gamification.TransactionLog,
	tables *gamification.Tables,
	events shared.EventPublisher,
	ids IDGenerator,
	clock Clock,
	log *logger.Logger,
) *XPLedger {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &XPLedger{
		students:    students,
		enrollments: enrollments,
		txLog:       txLog,
		tables:      tables,
		events:      events,
		ids:         ids,
		clock:       clock,
		conflicts:   retry.ConflictRetrier(shared.IsConcurrentModification),
		log:         log.With(logger.Component("xp_ledger")),
	}
}

// Tables exposes the threshold tables the ledger resolves levels with.
func (l *XPLedger) Tables() *gamification.Tables {
	return l.tables
}

// Apply commits one delta. Only an unknown student or a failed save of the
// student aborts, after conflicting saves are retried; the enrollment mirror and the audit entry are logged on
// failure because the XP is already committed.
func (l *XPLedger) Apply(ctx context.Context, e LedgerEntry) (*LedgerResult, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	var (
		stud      *student.Student
		adjusted  int
		prevLevel int
		leveledUp bool
	)
	// Another process may write the same student between our read and save
	// when only the local lock is held; the losing save reloads and reapplies.
	err := l.conflicts.Do(ctx, func(ctx context.Context) error {
		var err error
		stud, err = l.students.GetByID(ctx, e.StudentID)
		if err != nil {
			return fmt.Errorf("award_xp: failed to get student: %w", err)
		}
		adjusted = l.tables.AdjustXP(stud.Category, e.RawAmount)
		prevLevel = int(stud.GlobalLevel)
		if leveledUp, err = stud.ApplyXP(adjusted, l.tables); err != nil {
			return err
		}
		if err := l.students.SaveProgress(ctx, stud); err != nil {
			return fmt.Errorf("award_xp: failed to save student: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &LedgerResult{
		StudentID:      stud.ID,
		OrganizationID: stud.OrganizationID,
		RawAmount:      e.RawAmount,
		XPAwarded:      adjusted,
		TotalXP:        int(stud.TotalXP),
		PreviousLevel:  prevLevel,
		NewLevel:       int(stud.GlobalLevel),
		LeveledUp:      leveledUp,
	}

	log := l.log.With(logger.StudentID(stud.ID), logger.Source(string(e.Source)))

	if enr := l.mirrorEnrollment(ctx, log, e, adjusted); enr != nil {
		res.EnrollmentID = enr.ID
	}

	tx := &gamification.PointsTransaction{
		ID:           l.ids.GenerateID(),
		StudentID:    stud.ID,
		EnrollmentID: res.EnrollmentID,
		RawAmount:    e.RawAmount,
		Amount:       adjusted,
		Source:       e.Source,
		ReferenceID:  e.ReferenceID,
		Note:         e.Note,
		BalanceAfter: res.TotalXP,
		LevelAfter:   res.NewLevel,
		CreatedAt:    l.clock.now(),
	}
	if err := l.txLog.Append(ctx, tx); err != nil {
		// Log but don't fail
		log.Error("failed to append points transaction", logger.Err(err), logger.XPAmount(adjusted))
	} else {
		res.TransactionID = tx.ID
	}

	publish(l.events, log, shared.NewXPAwardedEvent(stud.ID, stud.OrganizationID, adjusted,
		res.TotalXP, res.NewLevel, string(e.Source), e.ReferenceID))
	if leveledUp {
		publish(l.events, log, shared.NewLevelUpEvent(stud.ID, prevLevel, res.NewLevel, res.TotalXP))
	}

	log.Debug("xp applied",
		logger.XPAmount(adjusted),
		logger.Int("total_xp", res.TotalXP),
		logger.StudentLevel(res.NewLevel),
	)
	return res, nil
}

func (l *XPLedger) mirrorEnrollment(ctx context.Context, log *logger.Logger, e LedgerEntry, amount int) *student.Enrollment {
	var (
		enr *student.Enrollment
		err error
	)
	if e.EnrollmentID != "" {
		enr, err = l.enrollments.GetByID(ctx, e.EnrollmentID)
	} else {
		enr, err = l.enrollments.GetActiveByStudent(ctx, e.StudentID)
	}
	if err != nil {
		if !shared.IsNotFound(err) {
			log.Warn("failed to load enrollment for xp mirror", logger.Err(err))
		}
		return nil
	}
	if enr.StudentID != e.StudentID || !enr.IsActive() {
		return nil
	}

	enr.ApplyXP(amount, l.tables)
	if err := l.enrollments.Save(ctx, enr); err != nil {
		log.Warn("failed to save enrollment xp", logger.EnrollmentID(enr.ID), logger.Err(err))
		return nil
	}
	return enr
}

// ══════════════════════════════════════════════════════════════════════════════
// AWARD XP COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CascadeOutcome is what an achievement pass granted, transitively.
type CascadeOutcome struct {
	Unlocked  []string
	BonusXP   int
	TotalXP   int
	Level     int
	LeveledUp bool
}

// AchievementEvaluator runs the achievement cascade for a student after a
// mutation. Implemented by saga.AchievementFlowSaga.
type AchievementEvaluator interface {
	EvaluateAchievements(ctx context.Context, studentID string, ec gamification.EventContext) (*CascadeOutcome, error)
}

// AwardXPCommand awards XP and evaluates achievements.
type AwardXPCommand struct {
	StudentID    string
	EnrollmentID string
	Amount       int
	Source       gamification.SourceType
	ReferenceID  string
	Note         string
}

// AwardXPResult reports what was actually granted.
type AwardXPResult struct {
	// XPAwarded is the category-adjusted amount of the primary award.
	XPAwarded int

	// TotalXP and NewLevel include XP granted by unlocked achievements.
	TotalXP   int
	NewLevel  int
	LeveledUp bool

	UnlockedAchievementIDs []string
	AchievementBonusXP     int

	// AchievementError is set when the cascade failed after the award committed.
	AchievementError error
}

// AwardXPHandler handles AwardXPCommand.
type AwardXPHandler struct {
	ledger    *XPLedger
	evaluator AchievementEvaluator
	log       *logger.Logger
}

// NewAwardXPHandler creates a new AwardXPHandler. evaluator may be nil, in
// which case no achievements are evaluated.
func NewAwardXPHandler(ledger *XPLedger, evaluator AchievementEvaluator, log *logger.Logger) *AwardXPHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AwardXPHandler{ledger: ledger, evaluator: evaluator, log: log.With(logger.Component("award_xp"))}
}

// Handle applies the award then runs the achievement cascade on the
// post-update state. A failing cascade is reported in the result, not as an
// error.
func (h *AwardXPHandler) Handle(ctx context.Context, cmd AwardXPCommand) (*AwardXPResult, error) {
	lr, err := h.ledger.Apply(ctx, LedgerEntry{
		StudentID:    cmd.StudentID,
		EnrollmentID: cmd.EnrollmentID,
		RawAmount:    cmd.Amount,
		Source:       cmd.Source,
		ReferenceID:  cmd.ReferenceID,
		Note:         cmd.Note,
	})
	if err != nil {
		return nil, err
	}

	res := &AwardXPResult{
		XPAwarded: lr.XPAwarded,
		TotalXP:   lr.TotalXP,
		NewLevel:  lr.NewLevel,
		LeveledUp: lr.LeveledUp,
	}

	if h.evaluator != nil {
		out, err := h.evaluator.EvaluateAchievements(ctx, cmd.StudentID, gamification.EventContext{
			Source:     cmd.Source,
			Amount:     lr.XPAwarded,
			NewLevel:   lr.NewLevel,
			NewTotalXP: lr.TotalXP,
			LeveledUp:  lr.LeveledUp,
		})
		if err != nil {
			// Log but don't fail
			h.log.Error("achievement evaluation failed",
				logger.StudentID(cmd.StudentID), logger.Err(err))
			res.AchievementError = err
		}
		mergeCascade(res, out)
	}

	h.log.Info("xp awarded",
		logger.StudentID(cmd.StudentID),
		logger.Source(string(cmd.Source)),
		logger.XPAmount(res.XPAwarded),
		logger.StudentLevel(res.NewLevel),
		logger.Int("unlocked", len(res.UnlockedAchievementIDs)),
	)
	return res, nil
}

func mergeCascade(res *AwardXPResult, out *CascadeOutcome) {
	if out == nil {
		return
	}
	res.UnlockedAchievementIDs = append(res.UnlockedAchievementIDs, out.Unlocked...)
	res.AchievementBonusXP += out.BonusXP
	if out.TotalXP > res.TotalXP {
		res.TotalXP = out.TotalXP
	}
	if out.Level > res.NewLevel {
		res.NewLevel = out.Level
	}
	res.LeveledUp = res.LeveledUp || out.LeveledUp
}

// publish sends ev when a publisher is configured.
func publish(p shared.EventPublisher, log *logger.Logger, ev shared.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ev); err != nil {
		// Non-critical - events can be replayed
		log.Warn("failed to publish event", logger.String("event_type", string(ev.EventType())), logger.Err(err))
	}
}

// errSecondary wraps a swallowed secondary failure for result fields.
func errSecondary(step string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(fmt.Errorf("%s failed", step), err)
}
