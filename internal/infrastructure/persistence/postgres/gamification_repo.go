package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements gamification.AchievementRepository.
type AchievementRepository struct {
	conn *Connection
}

var _ gamification.AchievementRepository = (*AchievementRepository)(nil)

// NewAchievementRepository creates an AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

func scanDefinition(row pgx.Row) (*gamification.AchievementDefinition, error) {
	var d gamification.AchievementDefinition
	err := row.Scan(
		&d.ID, &d.OrganizationID, &d.Key, &d.Name, &d.Description, &d.Category,
		&d.Criteria.Type, &d.Criteria.Target, &d.Criteria.TechniqueCategory,
		&d.XPReward, &d.Rarity, &d.ExpiresAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *AchievementRepository) ListCatalog(ctx context.Context, organizationID string) ([]*gamification.AchievementDefinition, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, organization_id, COALESCE(key, ''), name, description, category,
		       criteria_type, criteria_target, criteria_technique_category,
		       xp_reward, rarity, expires_at, created_at
		FROM achievement_definitions
		WHERE organization_id = $1
		ORDER BY created_at, key`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list achievement catalog: %w", err)
	}
	return collect(rows, scanDefinition)
}

// CreateDefinition treats an empty key as absent so keyless definitions
// never collide with each other.
func (r *AchievementRepository) CreateDefinition(ctx context.Context, d *gamification.AchievementDefinition) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO achievement_definitions (
			id, organization_id, key, name, description, category,
			criteria_type, criteria_target, criteria_technique_category,
			xp_reward, rarity, expires_at, created_at
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT DO NOTHING`,
		d.ID, d.OrganizationID, d.Key, d.Name, d.Description, d.Category,
		d.Criteria.Type, d.Criteria.Target, d.Criteria.TechniqueCategory,
		d.XPReward, d.Rarity, d.ExpiresAt, d.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("create achievement definition: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AchievementRepository) ListUnlocked(ctx context.Context, studentID string) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT achievement_id FROM achievement_unlocks
		WHERE student_id = $1 ORDER BY achievement_id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list unlocked achievements: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan unlocked achievements: %w", err)
	}
	return ids, nil
}

func (r *AchievementRepository) CreateUnlock(ctx context.Context, u *gamification.AchievementUnlock) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO achievement_unlocks (id, student_id, achievement_id, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, achievement_id) DO NOTHING`,
		u.ID, u.StudentID, u.AchievementID, u.UnlockedAt,
	)
	if err != nil {
		return false, fmt.Errorf("create achievement unlock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AchievementRepository) CountUnlocked(ctx context.Context, studentID string) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM achievement_unlocks WHERE student_id = $1`, studentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unlocked achievements: %w", err)
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// POINTS LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// TransactionRepository implements gamification.TransactionLog.
type TransactionRepository struct {
	conn *Connection
}

var _ gamification.TransactionLog = (*TransactionRepository)(nil)

// NewTransactionRepository creates a TransactionRepository.
func NewTransactionRepository(conn *Connection) *TransactionRepository {
	return &TransactionRepository{conn: conn}
}

func (r *TransactionRepository) Append(ctx context.Context, t *gamification.PointsTransaction) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO points_transactions (
			id, student_id, enrollment_id, raw_amount, amount, source,
			reference_id, note, balance_after, level_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.StudentID, t.EnrollmentID, t.RawAmount, t.Amount, t.Source,
		t.ReferenceID, t.Note, t.BalanceAfter, t.LevelAfter, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append points transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]*gamification.PointsTransaction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.conn.Query(ctx, `
		SELECT id, student_id, enrollment_id, raw_amount, amount, source,
		       reference_id, note, balance_after, level_after, created_at
		FROM points_transactions
		WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, -1)`, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list points transactions: %w", err)
	}
	return collect(rows, func(row pgx.Row) (*gamification.PointsTransaction, error) {
		var t gamification.PointsTransaction
		err := row.Scan(
			&t.ID, &t.StudentID, &t.EnrollmentID, &t.RawAmount, &t.Amount, &t.Source,
			&t.ReferenceID, &t.Note, &t.BalanceAfter, &t.LevelAfter, &t.CreatedAt,
		)
		return &t, err
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGES
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeRepository implements gamification.ChallengeRepository.
type ChallengeRepository struct {
	conn *Connection
}

var _ gamification.ChallengeRepository = (*ChallengeRepository)(nil)

// NewChallengeRepository creates a ChallengeRepository.
func NewChallengeRepository(conn *Connection) *ChallengeRepository {
	return &ChallengeRepository{conn: conn}
}

func (r *ChallengeRepository) CreateChallenge(ctx context.Context, c *gamification.ChallengeDefinition) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO challenges (id, course_id, week_number, activity, base_metric, base_time_seconds, xp_reward)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.CourseID, c.WeekNumber, c.Activity, c.BaseMetric, c.BaseTimeSeconds, c.XPReward,
	)
	if IsUniqueViolation(err) {
		return duplicate("gamification", "CreateChallenge", err)
	}
	if err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

func (r *ChallengeRepository) GetChallenge(ctx context.Context, id string) (*gamification.ChallengeDefinition, error) {
	var c gamification.ChallengeDefinition
	err := r.conn.QueryRow(ctx, `
		SELECT id, course_id, week_number, activity, base_metric, base_time_seconds, xp_reward
		FROM challenges WHERE id = $1`, id,
	).Scan(&c.ID, &c.CourseID, &c.WeekNumber, &c.Activity, &c.BaseMetric, &c.BaseTimeSeconds, &c.XPReward)
	if IsNoRows(err) {
		return nil, shared.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return &c, nil
}

func (r *ChallengeRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM challenges WHERE course_id = $1`, courseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count challenges: %w", err)
	}
	return n, nil
}

const attemptColumns = `id, enrollment_id, challenge_id, attempted, actual_metric, actual_time_seconds,
	completed, xp_earned, rewarded_at, validated, validated_at, instructor_notes, created_at, updated_at`

func scanAttempt(row pgx.Row) (*gamification.ChallengeAttempt, error) {
	var a gamification.ChallengeAttempt
	err := row.Scan(
		&a.ID, &a.EnrollmentID, &a.ChallengeID, &a.Attempted, &a.ActualMetric, &a.ActualTimeSeconds,
		&a.Completed, &a.XPEarned, &a.RewardedAt, &a.Validated, &a.ValidatedAt, &a.InstructorNotes,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ChallengeRepository) GetAttempt(ctx context.Context, enrollmentID, challengeID string) (*gamification.ChallengeAttempt, error) {
	a, err := scanAttempt(r.conn.QueryRow(ctx, `
		SELECT `+attemptColumns+` FROM challenge_attempts
		WHERE enrollment_id = $1 AND challenge_id = $2`, enrollmentID, challengeID))
	if IsNoRows(err) {
		return nil, shared.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge attempt: %w", err)
	}
	return a, nil
}

// UpsertAttempt keeps the stored id and created_at of an existing pair.
func (r *ChallengeRepository) UpsertAttempt(ctx context.Context, a *gamification.ChallengeAttempt) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO challenge_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (enrollment_id, challenge_id) DO UPDATE SET
			attempted = EXCLUDED.attempted,
			actual_metric = EXCLUDED.actual_metric,
			actual_time_seconds = EXCLUDED.actual_time_seconds,
			completed = EXCLUDED.completed,
			xp_earned = EXCLUDED.xp_earned,
			rewarded_at = EXCLUDED.rewarded_at,
			validated = EXCLUDED.validated,
			validated_at = EXCLUDED.validated_at,
			instructor_notes = EXCLUDED.instructor_notes,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.EnrollmentID, a.ChallengeID, a.Attempted, a.ActualMetric, a.ActualTimeSeconds,
		a.Completed, a.XPEarned, a.RewardedAt, a.Validated, a.ValidatedAt, a.InstructorNotes,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert challenge attempt: %w", err)
	}
	return nil
}

func (r *ChallengeRepository) ListAttemptsByEnrollment(ctx context.Context, enrollmentID string) ([]*gamification.ChallengeAttempt, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+attemptColumns+` FROM challenge_attempts
		WHERE enrollment_id = $1 ORDER BY challenge_id`, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("list challenge attempts: %w", err)
	}
	return collect(rows, scanAttempt)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATIONS
// ══════════════════════════════════════════════════════════════════════════════

// EvaluationRepository implements gamification.EvaluationRepository.
// Technique results and the physical test are stored as JSONB.
type EvaluationRepository struct {
	conn *Connection
}

var _ gamification.EvaluationRepository = (*EvaluationRepository)(nil)

// NewEvaluationRepository creates an EvaluationRepository.
func NewEvaluationRepository(conn *Connection) *EvaluationRepository {
	return &EvaluationRepository{conn: conn}
}

func (r *EvaluationRepository) Append(ctx context.Context, e *gamification.Evaluation) error {
	techniques := e.Techniques
	if techniques == nil {
		techniques = []gamification.TechniqueResult{}
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO evaluations (
			id, enrollment_id, type, lesson_number, techniques, physical,
			overall_score, passed, xp_awarded, evaluated_by, notes, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.EnrollmentID, e.Type, e.LessonNumber, techniques, e.Physical,
		e.OverallScore, e.Passed, e.XPAwarded, e.EvaluatedBy, e.Notes, e.EvaluatedAt,
	)
	if IsUniqueViolation(err) {
		return duplicate("gamification", "AppendEvaluation", err)
	}
	if err != nil {
		return fmt.Errorf("append evaluation: %w", err)
	}
	return nil
}

func (r *EvaluationRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]*gamification.Evaluation, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, enrollment_id, type, lesson_number, techniques, physical,
		       overall_score, passed, xp_awarded, evaluated_by, notes, evaluated_at
		FROM evaluations
		WHERE enrollment_id = $1
		ORDER BY evaluated_at`, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return collect(rows, func(row pgx.Row) (*gamification.Evaluation, error) {
		var e gamification.Evaluation
		err := row.Scan(
			&e.ID, &e.EnrollmentID, &e.Type, &e.LessonNumber, &e.Techniques, &e.Physical,
			&e.OverallScore, &e.Passed, &e.XPAwarded, &e.EvaluatedBy, &e.Notes, &e.EvaluatedAt,
		)
		return &e, err
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// TECHNIQUE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// TechniqueProgressRepository implements gamification.TechniqueProgressRepository.
type TechniqueProgressRepository struct {
	conn *Connection
}

var _ gamification.TechniqueProgressRepository = (*TechniqueProgressRepository)(nil)

// NewTechniqueProgressRepository creates a TechniqueProgressRepository.
func NewTechniqueProgressRepository(conn *Connection) *TechniqueProgressRepository {
	return &TechniqueProgressRepository{conn: conn}
}

const techniqueColumns = `enrollment_id, technique_id, technique_category, status, accuracy,
	attempts, instructor_validated, notes, mastered_at, updated_at`

func scanTechnique(row pgx.Row) (*gamification.TechniqueProgress, error) {
	var p gamification.TechniqueProgress
	err := row.Scan(
		&p.EnrollmentID, &p.TechniqueID, &p.TechniqueCategory, &p.Status, &p.Accuracy,
		&p.Attempts, &p.InstructorValidated, &p.Notes, &p.MasteredAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *TechniqueProgressRepository) Get(ctx context.Context, enrollmentID, techniqueID string) (*gamification.TechniqueProgress, error) {
	p, err := scanTechnique(r.conn.QueryRow(ctx, `
		SELECT `+techniqueColumns+` FROM technique_progress
		WHERE enrollment_id = $1 AND technique_id = $2`, enrollmentID, techniqueID))
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get technique progress: %w", err)
	}
	return p, nil
}

func (r *TechniqueProgressRepository) Upsert(ctx context.Context, p *gamification.TechniqueProgress) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO technique_progress (`+techniqueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (enrollment_id, technique_id) DO UPDATE SET
			technique_category = EXCLUDED.technique_category,
			status = EXCLUDED.status,
			accuracy = EXCLUDED.accuracy,
			attempts = EXCLUDED.attempts,
			instructor_validated = EXCLUDED.instructor_validated,
			notes = EXCLUDED.notes,
			mastered_at = EXCLUDED.mastered_at,
			updated_at = EXCLUDED.updated_at`,
		p.EnrollmentID, p.TechniqueID, p.TechniqueCategory, p.Status, p.Accuracy,
		p.Attempts, p.InstructorValidated, p.Notes, p.MasteredAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert technique progress: %w", err)
	}
	return nil
}

func (r *TechniqueProgressRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]*gamification.TechniqueProgress, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+techniqueColumns+` FROM technique_progress
		WHERE enrollment_id = $1 ORDER BY technique_id`, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("list technique progress: %w", err)
	}
	return collect(rows, scanTechnique)
}
