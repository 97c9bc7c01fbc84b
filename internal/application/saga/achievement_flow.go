// Package saga contains complex business processes that orchestrate
// multiple domain operations in a coordinated manner.
package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/dojo-hub/progression-engine/internal/application/command"
	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW SAGA
// The achievement cascade.
// Flow: Load Catalog → Load Unlocked → (Load State → Evaluate → Grant →
//
//	Award XP → Publish)* → Complete
//
// Every unlock pays through the XP ledger, and the XP may satisfy further
// definitions. The loop repeats while a pass paid a reward; each rewarded pass
// consumes at least one catalog entry, so there are at most |catalog|+1 passes.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementFlowStep represents a step in the achievement flow.
type AchievementFlowStep string

const (
	StepLoadStudent  AchievementFlowStep = "load_student"
	StepLoadCatalog  AchievementFlowStep = "load_catalog"
	StepLoadUnlocked AchievementFlowStep = "load_unlocked"
	StepLoadState    AchievementFlowStep = "load_state"
	StepEvaluate     AchievementFlowStep = "evaluate"
	StepGrant        AchievementFlowStep = "grant"
	StepAwardXP      AchievementFlowStep = "award_xp"
	StepFlowComplete AchievementFlowStep = "complete"
)

// AchievementFlowState tracks the current state of the cascade.
type AchievementFlowState struct {
	CurrentStep AchievementFlowStep
	StudentID   string
	Student     *student.Student
	Catalog     []*gamification.AchievementDefinition

	// Processed holds ids that are unlocked, malformed or already granted in
	// this run. They are never evaluated again.
	Processed map[string]bool

	Outcome   command.CascadeOutcome
	Passes    int
	StartedAt time.Time

	CompletedAt *time.Time
	Error       error
	FailedStep  AchievementFlowStep
}

// AchievementFlowSaga evaluates the catalog against a student's state and
// grants every satisfied definition exactly once.
type AchievementFlowSaga struct {
	students     student.Repository
	achievements gamification.AchievementRepository
	loader       *StateLoader
	ledger       *command.XPLedger
	rules        gamification.RuleEvaluator
	events       shared.EventPublisher
	ids          command.IDGenerator
	clock        command.Clock
	log          *logger.Logger
}

// NewAchievementFlowSaga creates a new achievement flow saga.
func NewAchievementFlowSaga(
	students student.Repository,
	achievements gamification.AchievementRepository,
	loader *StateLoader,
	ledger *command.XPLedger,
	events shared.EventPublisher,
	ids command.IDGenerator,
	clock command.Clock,
	log *logger.Logger,
) *AchievementFlowSaga {
	if ids == nil {
		ids = command.UUIDGenerator{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AchievementFlowSaga{
		students:     students,
		achievements: achievements,
		loader:       loader,
		ledger:       ledger,
		rules:        gamification.NewRuleEvaluator(ledger.Tables()),
		events:       events,
		ids:          ids,
		clock:        clock,
		log:          log.With(logger.Component("achievement_flow")),
	}
}

var _ command.AchievementEvaluator = (*AchievementFlowSaga)(nil)

// EvaluateAchievements implements command.AchievementEvaluator. The outcome
// is returned even on error and lists everything granted before the failure.
func (s *AchievementFlowSaga) EvaluateAchievements(ctx context.Context, studentID string, ec gamification.EventContext) (*command.CascadeOutcome, error) {
	state := &AchievementFlowState{
		CurrentStep: StepLoadStudent,
		StudentID:   studentID,
		Processed:   make(map[string]bool),
		StartedAt:   s.now(),
	}

	// Step 1: Load student
	st, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, s.fail(state, StepLoadStudent, err)
	}
	state.Student = st
	state.Outcome.TotalXP = int(st.TotalXP)
	state.Outcome.Level = int(st.GlobalLevel)

	// Step 2: Load catalog
	state.CurrentStep = StepLoadCatalog
	state.Catalog, err = s.achievements.ListCatalog(ctx, st.OrganizationID)
	if err != nil {
		return nil, s.fail(state, StepLoadCatalog, err)
	}
	if len(state.Catalog) == 0 {
		return s.complete(state), nil
	}

	// Step 3: Load unlocked
	state.CurrentStep = StepLoadUnlocked
	unlocked, err := s.achievements.ListUnlocked(ctx, studentID)
	if err != nil {
		return nil, s.fail(state, StepLoadUnlocked, err)
	}
	for _, id := range unlocked {
		state.Processed[id] = true
	}

	// Steps 4-7: bounded passes
	maxPasses := len(state.Catalog) + 1
	for state.Passes < maxPasses {
		state.Passes++
		rewarded, err := s.runPass(ctx, state, &ec)
		if err != nil {
			return &state.Outcome, err
		}
		if !rewarded {
			break
		}
	}

	return s.complete(state), nil
}

// runPass evaluates every unprocessed definition once against freshly loaded
// state and reports whether any unlock paid XP.
func (s *AchievementFlowSaga) runPass(ctx context.Context, state *AchievementFlowState, ec *gamification.EventContext) (bool, error) {
	now := s.now()

	state.CurrentStep = StepLoadState
	view, err := s.loader.Load(ctx, state.StudentID, now)
	if err != nil {
		return false, s.fail(state, StepLoadState, err)
	}

	rewarded := false
	for _, def := range state.Catalog {
		if state.Processed[def.ID] || !def.ActiveAt(now) {
			continue
		}

		state.CurrentStep = StepEvaluate
		ok, err := s.rules.Evaluate(def, view, *ec)
		if err != nil {
			s.log.Warn("skipping malformed achievement definition",
				logger.AchievementID(def.ID), logger.Err(err))
			state.Processed[def.ID] = true
			continue
		}
		if !ok {
			continue
		}
		state.Processed[def.ID] = true

		state.CurrentStep = StepGrant
		created, err := s.achievements.CreateUnlock(ctx, &gamification.AchievementUnlock{
			ID:            s.ids.GenerateID(),
			StudentID:     state.StudentID,
			AchievementID: def.ID,
			UnlockedAt:    now,
		})
		if err != nil {
			return rewarded, s.fail(state, StepGrant, fmt.Errorf("unlock %s: %w", def.ID, err))
		}
		if !created {
			continue
		}
		state.Outcome.Unlocked = append(state.Outcome.Unlocked, def.ID)

		xp := 0
		if def.XPReward > 0 {
			state.CurrentStep = StepAwardXP
			lr, err := s.ledger.Apply(ctx, command.LedgerEntry{
				StudentID:   state.StudentID,
				RawAmount:   def.XPReward,
				Source:      gamification.SourceAchievement,
				ReferenceID: def.ID,
				Note:        def.Name,
			})
			if err != nil {
				// The unlock is committed; the reward can be granted manually.
				s.log.Error("failed to pay achievement reward",
					logger.StudentID(state.StudentID), logger.AchievementID(def.ID), logger.Err(err))
			} else {
				xp = lr.XPAwarded
				rewarded = true
				state.Outcome.BonusXP += lr.XPAwarded
				state.Outcome.TotalXP = lr.TotalXP
				state.Outcome.Level = lr.NewLevel
				state.Outcome.LeveledUp = state.Outcome.LeveledUp || lr.LeveledUp
				*ec = gamification.EventContext{
					Source:     gamification.SourceAchievement,
					Amount:     lr.XPAwarded,
					NewLevel:   lr.NewLevel,
					NewTotalXP: lr.TotalXP,
					LeveledUp:  lr.LeveledUp,
				}
			}
		}

		publishEvent(s.events, s.log, shared.NewAchievementUnlockedEvent(state.StudentID, def.ID, def.Name, xp))
		s.log.Info("achievement unlocked",
			logger.StudentID(state.StudentID),
			logger.AchievementID(def.ID),
			logger.XPAmount(xp),
		)
	}
	return rewarded, nil
}

func (s *AchievementFlowSaga) complete(state *AchievementFlowState) *command.CascadeOutcome {
	state.CurrentStep = StepFlowComplete
	now := s.now()
	state.CompletedAt = &now
	return &state.Outcome
}

func (s *AchievementFlowSaga) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock()
}

// fail records the failed step and wraps err with saga context.
func (s *AchievementFlowSaga) fail(state *AchievementFlowState, step AchievementFlowStep, err error) error {
	state.FailedStep = step
	state.Error = err
	return &AchievementFlowError{
		Step:      step,
		StudentID: state.StudentID,
		Cause:     err,
		Message:   fmt.Sprintf("achievement flow failed at step '%s': %v", step, err),
	}
}

func publishEvent(p shared.EventPublisher, log *logger.Logger, ev shared.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ev); err != nil {
		// Non-critical - events can be replayed
		log.Warn("failed to publish event", logger.String("event_type", string(ev.EventType())), logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementFlowError represents an error during the achievement cascade.
type AchievementFlowError struct {
	Step      AchievementFlowStep
	StudentID string
	Cause     error
	Message   string
}

// Error implements the error interface.
func (e *AchievementFlowError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AchievementFlowError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error can be retried.
func (e *AchievementFlowError) IsRetryable() bool {
	return shared.IsRetryable(e.Cause)
}
