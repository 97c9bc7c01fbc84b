package gamification

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository stores the catalog and the unlock records.
type AchievementRepository interface {
	// ListCatalog returns every definition of the organization, expired ones included.
	ListCatalog(ctx context.Context, organizationID string) ([]*AchievementDefinition, error)

	// CreateDefinition stores a definition. It returns created=false when a
	// definition with the same (organization, key) already exists.
	CreateDefinition(ctx context.Context, def *AchievementDefinition) (bool, error)

	// ListUnlocked returns the achievement ids already granted to the student.
	ListUnlocked(ctx context.Context, studentID string) ([]string, error)

	// CreateUnlock inserts the (student, achievement) pair atomically.
	// It returns created=false when the pair already exists.
	CreateUnlock(ctx context.Context, u *AchievementUnlock) (bool, error)

	// CountUnlocked returns how many achievements the student holds.
	CountUnlocked(ctx context.Context, studentID string) (int, error)
}

// TransactionLog is the append-only XP audit sink.
type TransactionLog interface {
	Append(ctx context.Context, tx *PointsTransaction) error

	// ListByStudent returns the newest entries first.
	ListByStudent(ctx context.Context, studentID string, limit int) ([]*PointsTransaction, error)
}

// ChallengeRepository stores challenge definitions and attempts.
type ChallengeRepository interface {
	CreateChallenge(ctx context.Context, c *ChallengeDefinition) error

	// GetChallenge returns shared.ErrChallengeNotFound when unknown.
	GetChallenge(ctx context.Context, id string) (*ChallengeDefinition, error)

	// CountByCourse returns how many challenges the course defines.
	CountByCourse(ctx context.Context, courseID string) (int, error)

	// GetAttempt returns shared.ErrAttemptNotFound when the pair has no attempt.
	GetAttempt(ctx context.Context, enrollmentID, challengeID string) (*ChallengeAttempt, error)

	// UpsertAttempt writes the attempt keyed by (enrollment, challenge).
	UpsertAttempt(ctx context.Context, a *ChallengeAttempt) error

	// ListAttemptsByEnrollment returns every attempt of the enrollment.
	ListAttemptsByEnrollment(ctx context.Context, enrollmentID string) ([]*ChallengeAttempt, error)
}

// EvaluationRepository is the append-only evaluation history.
type EvaluationRepository interface {
	Append(ctx context.Context, e *Evaluation) error

	// ListByEnrollment returns evaluations ordered by EvaluatedAt ascending.
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]*Evaluation, error)
}

// TechniqueProgressRepository upserts per-technique mastery.
type TechniqueProgressRepository interface {
	// Get returns nil, nil when the pair has no record yet.
	Get(ctx context.Context, enrollmentID, techniqueID string) (*TechniqueProgress, error)

	Upsert(ctx context.Context, p *TechniqueProgress) error

	ListByEnrollment(ctx context.Context, enrollmentID string) ([]*TechniqueProgress, error)
}
