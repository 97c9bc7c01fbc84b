package gamification

import (
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
)

// ChallengeDefinition is a weekly challenge of a course.
type ChallengeDefinition struct {
	ID         string
	CourseID   string
	WeekNumber int
	Activity   string

	// BaseMetric is the adult-male target count (repetitions, seconds held...).
	BaseMetric int

	// BaseTimeSeconds is an optional time limit.
	BaseTimeSeconds *int

	XPReward int
}

// ChallengeAttempt is the (enrollment, challenge) record. Each submission
// overwrites the previous metrics.
type ChallengeAttempt struct {
	ID           string
	EnrollmentID string
	ChallengeID  string

	Attempted         bool
	ActualMetric      *int
	ActualTimeSeconds *int
	Completed         bool
	XPEarned          int

	// RewardedAt guards the one-time XP award. It survives later failed
	// attempts and instructor rejections.
	RewardedAt *time.Time

	Validated       bool
	ValidatedAt     *time.Time
	InstructorNotes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChallengeScore is the pass/fail verdict of a submission.
type ChallengeScore struct {
	AdjustedMetric      int
	AdjustedTimeSeconds *int
	Completed           bool
}

// ValidateSubmission rejects negative measurements.
func ValidateSubmission(metric, timeSeconds *int) error {
	if metric != nil && *metric < 0 {
		return shared.ErrNegativeMetric
	}
	if timeSeconds != nil && *timeSeconds < 0 {
		return shared.ErrNegativeMetric
	}
	return nil
}

// ScoreChallenge decides completion:
// metric >= adjusted metric AND (no time limit OR time <= adjusted time).
// A missing metric, or a missing time when a limit exists, is not completed.
func ScoreChallenge(def *ChallengeDefinition, metric, timeSeconds *int, c student.Category, g student.Gender, adj MetricAdjuster) ChallengeScore {
	s := ChallengeScore{
		AdjustedMetric:      adj.Adjust(def.BaseMetric, c, g),
		AdjustedTimeSeconds: adj.AdjustOptional(def.BaseTimeSeconds, c, g),
	}
	if metric == nil || *metric < s.AdjustedMetric {
		return s
	}
	if s.AdjustedTimeSeconds != nil {
		if timeSeconds == nil || *timeSeconds > *s.AdjustedTimeSeconds {
			return s
		}
	}
	s.Completed = true
	return s
}

// NewChallengeAttempt creates an empty attempt for the pair.
func NewChallengeAttempt(id, enrollmentID, challengeID string, at time.Time) *ChallengeAttempt {
	return &ChallengeAttempt{
		ID:           id,
		EnrollmentID: enrollmentID,
		ChallengeID:  challengeID,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// ApplySubmission overwrites the attempt with a new submission and reports
// whether XP is now due.
func (a *ChallengeAttempt) ApplySubmission(metric, timeSeconds *int, completed bool, at time.Time) bool {
	a.Attempted = true
	a.ActualMetric = metric
	a.ActualTimeSeconds = timeSeconds
	a.Completed = completed
	a.UpdatedAt = at
	return completed && a.RewardedAt == nil
}

// ApplyValidation records an instructor decision and reports whether XP is now due.
// Optional overrides replace the measured values.
func (a *ChallengeAttempt) ApplyValidation(approved bool, notes string, metric, timeSeconds *int, at time.Time) bool {
	a.Validated = true
	v := at
	a.ValidatedAt = &v
	a.InstructorNotes = notes
	if metric != nil {
		a.ActualMetric = metric
	}
	if timeSeconds != nil {
		a.ActualTimeSeconds = timeSeconds
	}
	a.Attempted = true
	a.Completed = approved
	a.UpdatedAt = at
	return approved && a.RewardedAt == nil
}

// MarkRewarded records the granted XP.
func (a *ChallengeAttempt) MarkRewarded(xp int, at time.Time) {
	a.XPEarned = xp
	r := at
	a.RewardedAt = &r
}
