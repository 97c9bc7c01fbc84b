package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
	"github.com/dojo-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS CHECK-IN COMMAND
// The check-in pipeline: attendance → streak → check-in XP (and the
// achievement cascade) → degree recording. Once the attendance is stored the
// check-in succeeds; later failures are reported in GamificationError.
// ══════════════════════════════════════════════════════════════════════════════

// ProcessCheckInCommand is one lesson check-in.
type ProcessCheckInCommand struct {
	StudentID           string
	CourseID            string
	LessonNumber        int
	TechniquesPracticed int
	Timestamp           time.Time
}

// Validate validates the command.
func (c ProcessCheckInCommand) Validate() error {
	if c.StudentID == "" || c.CourseID == "" {
		return shared.InvalidInput("graduation", "ProcessCheckIn", "student_id and course_id are required")
	}
	if c.LessonNumber < 1 {
		return shared.InvalidInput("graduation", "ProcessCheckIn", "lesson number must be positive")
	}
	if c.TechniquesPracticed < 0 {
		return shared.NewDomainError("graduation", "ProcessCheckIn", shared.ErrNegativeValue,
			"techniques practiced cannot be negative")
	}
	return nil
}

// ProcessCheckInResult describes what the check-in granted.
type ProcessCheckInResult struct {
	AttendanceID string

	// Duplicate is set when the same lesson was already checked in today.
	// Nothing else is granted in that case.
	Duplicate bool

	FirstOfMonth bool
	Streak       *RecordActivityResult

	XPAwarded              int
	TotalXP                int
	NewLevel               int
	LeveledUp              bool
	UnlockedAchievementIDs []string

	Progression     *graduation.ProgressionResult
	DegreesRecorded []int

	// GamificationError joins every secondary failure after the attendance
	// was stored.
	GamificationError error
}

// ProcessCheckInHandler handles ProcessCheckInCommand.
type ProcessCheckInHandler struct {
	students    student.Repository
	enrollments student.EnrollmentRepository
	attendance  graduation.AttendanceRepository
	tables      *gamification.Tables
	streak      *RecordActivityHandler
	awardXP     *AwardXPHandler
	degrees     *RecordDegreeHandler
	ids         IDGenerator
	clock       Clock
	log         *logger.Logger
}

// NewProcessCheckInHandler creates a new ProcessCheckInHandler.
func NewProcessCheckInHandler(
	students student.Repository,
	enrollments student.EnrollmentRepository,
	attendance graduation.AttendanceRepository,
	tables *gamification.Tables,
	streak *RecordActivityHandler,
	awardXP *AwardXPHandler,
	degrees *RecordDegreeHandler,
	ids IDGenerator,
	clock Clock,
	log *logger.Logger,
) *ProcessCheckInHandler {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ProcessCheckInHandler{
		students:    students,
		enrollments: enrollments,
		attendance:  attendance,
		tables:      tables,
		streak:      streak,
		awardXP:     awardXP,
		degrees:     degrees,
		ids:         ids,
		clock:       clock,
		log:         log.With(logger.Component("process_checkin")),
	}
}

// Handle executes the command.
func (h *ProcessCheckInHandler) Handle(ctx context.Context, cmd ProcessCheckInCommand) (*ProcessCheckInResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	at := cmd.Timestamp
	if at.IsZero() {
		at = h.clock.now()
	}

	// Preconditions
	if _, err := h.students.GetByID(ctx, cmd.StudentID); err != nil {
		return nil, fmt.Errorf("process_checkin: failed to get student: %w", err)
	}
	enr, err := h.enrollments.GetByStudentCourse(ctx, cmd.StudentID, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("process_checkin: failed to get enrollment: %w", err)
	}

	// Step 1: attendance
	rec := &graduation.AttendanceRecord{
		ID:                  h.ids.GenerateID(),
		StudentID:           cmd.StudentID,
		CourseID:            cmd.CourseID,
		LessonNumber:        cmd.LessonNumber,
		CheckInAt:           at,
		Present:             true,
		TechniquesPracticed: cmd.TechniquesPracticed,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	created, err := h.attendance.Record(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("process_checkin: failed to record attendance: %w", err)
	}

	log := h.log.With(logger.StudentID(cmd.StudentID), logger.CourseID(cmd.CourseID))
	res := &ProcessCheckInResult{AttendanceID: rec.ID}
	if !created {
		res.Duplicate = true
		log.Info("duplicate check-in ignored", logger.Int("lesson", cmd.LessonNumber))
		return res, nil
	}

	var errs []error

	// Step 2: streak
	multiplier := 1.0
	streak, err := h.streak.Handle(ctx, RecordActivityCommand{StudentID: cmd.StudentID, Timestamp: at})
	if err != nil {
		log.Error("streak update failed", logger.Err(err))
		errs = append(errs, errSecondary("streak", err))
	} else {
		res.Streak = streak
		multiplier = streak.Multiplier
	}

	// Step 3: check-in XP
	res.FirstOfMonth, err = h.firstOfMonth(ctx, cmd.StudentID, at)
	if err != nil {
		log.Warn("failed to count monthly check-ins", logger.Err(err))
		errs = append(errs, errSecondary("monthly check-ins", err))
	}
	xp := h.tables.CheckInXP(multiplier, cmd.TechniquesPracticed, res.FirstOfMonth)
	award, err := h.awardXP.Handle(ctx, AwardXPCommand{
		StudentID:    cmd.StudentID,
		EnrollmentID: enr.ID,
		Amount:       xp,
		Source:       gamification.SourceAttendance,
		ReferenceID:  rec.ID,
		Note:         fmt.Sprintf("check-in lesson %d", cmd.LessonNumber),
	})
	if err != nil {
		log.Error("check-in xp award failed", logger.Err(err))
		errs = append(errs, errSecondary("xp award", err))
	} else {
		res.XPAwarded = award.XPAwarded
		res.TotalXP = award.TotalXP
		res.NewLevel = award.NewLevel
		res.LeveledUp = award.LeveledUp
		res.UnlockedAchievementIDs = award.UnlockedAchievementIDs
		if award.AchievementError != nil {
			errs = append(errs, errSecondary("achievements", award.AchievementError))
		}
	}

	// Step 4: degrees
	deg, err := h.degrees.Handle(ctx, RecordDegreeCommand{StudentID: cmd.StudentID, CourseID: cmd.CourseID, Timestamp: at})
	if deg != nil {
		res.Progression = deg.Progression
		res.DegreesRecorded = deg.Recorded
	}
	if err != nil {
		log.Error("degree recording failed", logger.Err(err))
		errs = append(errs, errSecondary("degrees", err))
	}

	res.GamificationError = errors.Join(errs...)

	log.Info("check-in processed",
		logger.Int("lesson", cmd.LessonNumber),
		logger.XPAmount(res.XPAwarded),
		logger.Bool("first_of_month", res.FirstOfMonth),
		logger.Int("degrees_recorded", len(res.DegreesRecorded)),
	)
	return res, nil
}

// firstOfMonth reports whether the check-in just stored is the student's only
// one in the local month of at.
func (h *ProcessCheckInHandler) firstOfMonth(ctx context.Context, studentID string, at time.Time) (bool, error) {
	checkIns, err := h.attendance.ListCheckIns(ctx, studentID)
	if err != nil {
		return false, err
	}
	month := timeutil.StartOfMonth(at)
	n := 0
	for _, t := range checkIns {
		if timeutil.StartOfMonth(t).Equal(month) {
			n++
		}
	}
	return n == 1, nil
}
