package query

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE COMPLETION QUERY
// Weighted blend of attendance, technique mastery, challenge completion and
// evaluation pass rate, plus a completion-date projection.
// ══════════════════════════════════════════════════════════════════════════════

// Component weights of the completion score. They sum to 1.
const (
	WeightAttendance = 0.4
	WeightTechnique  = 0.3
	WeightChallenge  = 0.2
	WeightEvaluation = 0.1
)

// ExpectedEvaluations is the number of scheduled evaluations per course.
const ExpectedEvaluations = 6

// CourseCompletion is the composite progress of one enrollment. Every
// percentage is in [0, 100].
type CourseCompletion struct {
	EnrollmentID string `json:"enrollment_id"`

	Attendance float64 `json:"attendance"`
	Technique  float64 `json:"technique"`
	Challenge  float64 `json:"challenge"`
	Evaluation float64 `json:"evaluation"`
	Overall    float64 `json:"overall"`

	WeeksEnrolled int     `json:"weeks_enrolled"`
	WeeklyRate    float64 `json:"weekly_rate"`

	EstimatedWeeksRemaining int       `json:"estimated_weeks_remaining"`
	EstimatedCompletion     time.Time `json:"estimated_completion"`
}

// CompletionInput holds the counts the blend is computed from.
type CompletionInput struct {
	LessonsCompleted    int
	TotalLessons        int
	TechniquesLearned   int
	RequiredTechniques  int
	ChallengesCompleted int
	TotalChallenges     int
	EvaluationsPassed   int
	EnrolledAt          time.Time
	Now                 time.Time
}

// ComputeCompletion blends the four ratios. A component whose denominator is
// zero counts as complete, except attendance which counts as zero.
//
//	rate  = overall / max(weeks, 1)
//	weeks = ceil((100 - overall) / max(rate, 1))
func ComputeCompletion(in CompletionInput) CourseCompletion {
	c := CourseCompletion{
		Attendance: ratio(in.LessonsCompleted, in.TotalLessons, 0),
		Technique:  ratio(in.TechniquesLearned, in.RequiredTechniques, 100),
		Challenge:  ratio(in.ChallengesCompleted, in.TotalChallenges, 100),
		Evaluation: ratio(in.EvaluationsPassed, ExpectedEvaluations, 100),
	}
	c.Overall = c.Attendance*WeightAttendance +
		c.Technique*WeightTechnique +
		c.Challenge*WeightChallenge +
		c.Evaluation*WeightEvaluation
	c.Overall = math.Round(c.Overall*100) / 100

	c.WeeksEnrolled = timeutil.WeeksBetween(in.EnrolledAt, in.Now)
	c.WeeklyRate = c.Overall / float64(max(c.WeeksEnrolled, 1))

	remaining := 100 - c.Overall
	if remaining > 0 {
		c.EstimatedWeeksRemaining = int(math.Ceil(remaining / math.Max(c.WeeklyRate, 1)))
	}
	c.EstimatedCompletion = in.Now.AddDate(0, 0, 7*c.EstimatedWeeksRemaining)
	return c
}

// ratio returns n/d × 100 clamped to [0, 100], or empty when d is zero.
func ratio(n, d int, empty float64) float64 {
	if d <= 0 {
		return empty
	}
	return math.Min(math.Max(float64(n)*100/float64(d), 0), 100)
}

// CourseCompletionHandler gathers the counts of one enrollment.
type CourseCompletionHandler struct {
	enrollments student.EnrollmentRepository
	courses     student.CourseRepository
	techniques  gamification.TechniqueProgressRepository
	challenges  gamification.ChallengeRepository
	evaluations gamification.EvaluationRepository
	clock       func() time.Time
}

// NewCourseCompletionHandler creates a new CourseCompletionHandler.
func NewCourseCompletionHandler(
	enrollments student.EnrollmentRepository,
	courses student.CourseRepository,
	techniques gamification.TechniqueProgressRepository,
	challenges gamification.ChallengeRepository,
	evaluations gamification.EvaluationRepository,
	clock func() time.Time,
) *CourseCompletionHandler {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &CourseCompletionHandler{
		enrollments: enrollments,
		courses:     courses,
		techniques:  techniques,
		challenges:  challenges,
		evaluations: evaluations,
		clock:       clock,
	}
}

// Handle computes the completion of enrollmentID.
func (h *CourseCompletionHandler) Handle(ctx context.Context, enrollmentID string) (*CourseCompletion, error) {
	if enrollmentID == "" {
		return nil, shared.InvalidInput("query", "CourseCompletion", "enrollment_id is required")
	}
	enr, err := h.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, shared.WrapError("query", "CourseCompletion", kindOf(err), "failed to get enrollment", err)
	}

	in := CompletionInput{
		LessonsCompleted: enr.LessonsCompleted,
		EnrolledAt:       enr.EnrolledAt,
		Now:              h.clock(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		course, err := h.courses.GetByID(gctx, enr.CourseID)
		if err != nil {
			return fmt.Errorf("load course: %w", err)
		}
		in.TotalLessons = course.TotalLessons
		in.RequiredTechniques = course.RequiredTechniques
		return nil
	})
	g.Go(func() error {
		list, err := h.techniques.ListByEnrollment(gctx, enr.ID)
		if err != nil {
			return fmt.Errorf("load techniques: %w", err)
		}
		for _, t := range list {
			if t.IsLearned() {
				in.TechniquesLearned++
			}
		}
		return nil
	})
	g.Go(func() error {
		total, err := h.challenges.CountByCourse(gctx, enr.CourseID)
		if err != nil {
			return fmt.Errorf("count challenges: %w", err)
		}
		in.TotalChallenges = total
		return nil
	})
	g.Go(func() error {
		attempts, err := h.challenges.ListAttemptsByEnrollment(gctx, enr.ID)
		if err != nil {
			return fmt.Errorf("load attempts: %w", err)
		}
		for _, a := range attempts {
			if a.Completed {
				in.ChallengesCompleted++
			}
		}
		return nil
	})
	g.Go(func() error {
		evals, err := h.evaluations.ListByEnrollment(gctx, enr.ID)
		if err != nil {
			return fmt.Errorf("load evaluations: %w", err)
		}
		for _, e := range evals {
			if e.Passed {
				in.EvaluationsPassed++
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, shared.WrapError("query", "CourseCompletion", kindOf(err), "failed to load completion data", err)
	}

	c := ComputeCompletion(in)
	c.EnrollmentID = enr.ID
	return &c, nil
}
