package command

import (
	"context"
	"fmt"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
	"github.com/dojo-hub/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Updates the daily streak. Repeats on the same local day are no-ops; gaps of
// up to three days continue the streak.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand contains the data to record an activity.
type RecordActivityCommand struct {
	// StudentID is the internal ID of the student.
	StudentID string

	// Timestamp is when the activity occurred (defaults to now if zero).
	Timestamp time.Time
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	if c.StudentID == "" {
		return shared.InvalidInput("student", "RecordActivity", "student_id is required")
	}
	return nil
}

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	StudentID string

	// CurrentStreak is the streak after the activity.
	CurrentStreak int
	LongestStreak int

	// StreakUpdated is false for a same-day repeat.
	StreakUpdated bool

	// StreakBroken indicates a gap beyond the grace window.
	StreakBroken bool

	// PreviousStreak is the streak before the activity.
	PreviousStreak int

	// Multiplier is the streak tier to fold into the next XP award.
	Multiplier float64

	RecordedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityHandler handles the RecordActivityCommand.
type RecordActivityHandler struct {
	studentRepo    student.Repository
	tables         *gamification.Tables
	eventPublisher shared.EventPublisher
	clock          Clock
	conflicts      *retry.Retrier
	log            *logger.Logger
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
func NewRecordActivityHandler(
	studentRepo student.Repository,
	tables *gamification.Tables,
	eventPublisher shared.EventPublisher,
	clock Clock,
	log *logger.Logger,
) *RecordActivityHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RecordActivityHandler{
		studentRepo:    studentRepo,
		tables:         tables,
		eventPublisher: eventPublisher,
		clock:          clock,
		conflicts:      retry.ConflictRetrier(shared.IsConcurrentModification),
		log:            log.With(logger.Component("record_activity")),
	}
}

// Handle executes the record activity command.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = h.clock.now()
	}

	var (
		stud *student.Student
		u    gamification.StreakUpdate
	)
	err := h.conflicts.Do(ctx, func(ctx context.Context) error {
		var err error
		stud, err = h.studentRepo.GetByID(ctx, cmd.StudentID)
		if err != nil {
			return fmt.Errorf("record_activity: failed to get student: %w", err)
		}
		u = gamification.ComputeStreak(stud.CurrentStreak, stud.LongestStreak, stud.LastActivityDate, timestamp, h.tables)
		if !u.Changed {
			return nil
		}
		stud.ApplyStreak(u.Current, u.Longest, u.ActivityDate)
		if err := h.studentRepo.SaveProgress(ctx, stud); err != nil {
			return fmt.Errorf("record_activity: failed to save streak: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &RecordActivityResult{
		StudentID:      stud.ID,
		CurrentStreak:  u.Current,
		LongestStreak:  u.Longest,
		StreakUpdated:  u.Changed,
		StreakBroken:   u.Broken,
		PreviousStreak: u.Previous,
		Multiplier:     u.Multiplier,
		RecordedAt:     timestamp,
	}
	if !u.Changed {
		return result, nil
	}

	if u.Broken {
		publish(h.eventPublisher, h.log, shared.NewStreakBrokenEvent(stud.ID, u.Previous, u.Longest))
	}

	h.log.Info("streak updated",
		logger.StudentID(stud.ID),
		logger.Int("streak", u.Current),
		logger.Bool("broken", u.Broken),
	)
	return result, nil
}
