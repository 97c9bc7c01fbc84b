package gamification

import (
	"time"
)

// SourceType tags every XP delta in the ledger.
type SourceType string

const (
	SourceAttendance  SourceType = "attendance"
	SourceAchievement SourceType = "achievement"
	SourceChallenge   SourceType = "challenge"
	SourceEvaluation  SourceType = "evaluation"
	SourceBonus       SourceType = "bonus"
	SourceManual      SourceType = "manual"
)

// IsValid reports whether s is a known source.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceAttendance, SourceAchievement, SourceChallenge,
		SourceEvaluation, SourceBonus, SourceManual:
		return true
	default:
		return false
	}
}

// PointsTransaction is one append-only ledger entry.
type PointsTransaction struct {
	ID        string
	StudentID string

	// EnrollmentID is empty when the student had no active enrollment.
	EnrollmentID string

	// RawAmount is the requested amount; Amount is after the category multiplier.
	RawAmount int
	Amount    int

	Source      SourceType
	ReferenceID string
	Note        string

	BalanceAfter int
	LevelAfter   int
	CreatedAt    time.Time
}
