package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT STATS QUERY
// The gamification profile of a student, cached when a cache is configured.
// ══════════════════════════════════════════════════════════════════════════════

// StudentStats is the gamification profile.
type StudentStats struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`

	TotalXP             int     `json:"total_xp"`
	Level               int     `json:"level"`
	ProgressToNextLevel float64 `json:"progress_to_next_level"`
	XPToNextLevel       int     `json:"xp_to_next_level"`

	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`

	Achievements        int `json:"achievements"`
	ChallengesCompleted int `json:"challenges_completed"`
	TechniquesLearned   int `json:"techniques_learned"`
	ClassesAttended     int `json:"classes_attended"`
}

// StatsCache stores profiles between mutations.
type StatsCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, studentID string) (*StudentStats, error)
	Set(ctx context.Context, stats *StudentStats) error
	Invalidate(ctx context.Context, studentID string) error
}

// StudentStatsHandler builds profiles.
type StudentStatsHandler struct {
	students     student.Repository
	enrollments  student.EnrollmentRepository
	achievements gamification.AchievementRepository
	techniques   gamification.TechniqueProgressRepository
	challenges   gamification.ChallengeRepository
	attendance   graduation.AttendanceRepository
	tables       *gamification.Tables
	cache        StatsCache
	log          *logger.Logger
}

// NewStudentStatsHandler creates a new StudentStatsHandler. cache may be nil.
func NewStudentStatsHandler(
	students student.Repository,
	enrollments student.EnrollmentRepository,
	achievements gamification.AchievementRepository,
	techniques gamification.TechniqueProgressRepository,
	challenges gamification.ChallengeRepository,
	attendance graduation.AttendanceRepository,
	tables *gamification.Tables,
	cache StatsCache,
	log *logger.Logger,
) *StudentStatsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &StudentStatsHandler{
		students:     students,
		enrollments:  enrollments,
		achievements: achievements,
		techniques:   techniques,
		challenges:   challenges,
		attendance:   attendance,
		tables:       tables,
		cache:        cache,
		log:          log.With(logger.Component("student_stats")),
	}
}

// Handle returns the profile of studentID.
func (h *StudentStatsHandler) Handle(ctx context.Context, studentID string) (*StudentStats, error) {
	if studentID == "" {
		return nil, shared.InvalidInput("query", "StudentStats", "student_id is required")
	}

	if h.cache != nil {
		cached, err := h.cache.Get(ctx, studentID)
		if err != nil {
			h.log.Warn("stats cache read failed", logger.StudentID(studentID), logger.Err(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	stats, err := h.load(ctx, studentID)
	if err != nil {
		return nil, shared.WrapError("query", "StudentStats", kindOf(err), "failed to load stats", err)
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, stats); err != nil {
			h.log.Warn("stats cache write failed", logger.StudentID(studentID), logger.Err(err))
		}
	}
	return stats, nil
}

func (h *StudentStatsHandler) load(ctx context.Context, studentID string) (*StudentStats, error) {
	s, err := h.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	total := int(s.TotalXP)
	stats := &StudentStats{
		StudentID:           s.ID,
		Name:                s.Name,
		TotalXP:             total,
		Level:               int(s.GlobalLevel),
		ProgressToNextLevel: h.tables.ProgressToNextLevel(total),
		XPToNextLevel:       h.tables.XPForNextLevel(total),
		CurrentStreak:       s.CurrentStreak,
		LongestStreak:       s.LongestStreak,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := h.achievements.CountUnlocked(gctx, studentID)
		if err != nil {
			return fmt.Errorf("count achievements: %w", err)
		}
		stats.Achievements = n
		return nil
	})
	g.Go(func() error {
		checkIns, err := h.attendance.ListCheckIns(gctx, studentID)
		if err != nil {
			return fmt.Errorf("load check-ins: %w", err)
		}
		stats.ClassesAttended = len(checkIns)
		return nil
	})
	g.Go(func() error {
		enrollments, err := h.enrollments.ListByStudent(gctx, studentID)
		if err != nil {
			return fmt.Errorf("load enrollments: %w", err)
		}
		for _, enr := range enrollments {
			techniques, err := h.techniques.ListByEnrollment(gctx, enr.ID)
			if err != nil {
				return fmt.Errorf("load techniques: %w", err)
			}
			attempts, err := h.challenges.ListAttemptsByEnrollment(gctx, enr.ID)
			if err != nil {
				return fmt.Errorf("load attempts: %w", err)
			}

			for _, t := range techniques {
				if t.IsLearned() {
					stats.TechniquesLearned++
				}
			}
			for _, a := range attempts {
				if a.Completed {
					stats.ChallengesCompleted++
				}
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
