package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/progression-engine/internal/application/command"
	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/internal/infrastructure/persistence/memory"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func attendLessons(t *testing.T, store *memory.Store, studentID, courseID string, lessons int) {
	t.Helper()
	for n := 1; n <= lessons; n++ {
		created, err := store.Attendance().Record(context.Background(), &graduation.AttendanceRecord{
			ID:           fmt.Sprintf("att-%s-%d", studentID, n),
			StudentID:    studentID,
			CourseID:     courseID,
			LessonNumber: n,
			CheckInAt:    checkInTime.AddDate(0, 0, -n),
			Present:      true,
		})
		require.NoError(t, err)
		require.True(t, created)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Streak
// ──────────────────────────────────────────────────────────────────────────────

func TestRecordActivity_GraceWindow(t *testing.T) {
	e, store := newEngine(t)
	seedStudent(t, store, "s1", student.CategoryAdult)
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	record := func(at time.Time) *command.RecordActivityResult {
		res, err := e.RecordActivity(ctx, command.RecordActivityCommand{StudentID: "s1", Timestamp: at})
		require.NoError(t, err)
		return res
	}

	assert.Equal(t, 1, record(day).CurrentStreak)

	same := record(day.Add(2 * time.Hour))
	assert.Equal(t, 1, same.CurrentStreak)
	assert.False(t, same.StreakUpdated)

	assert.Equal(t, 2, record(day.AddDate(0, 0, 2)).CurrentStreak)

	broken := record(day.AddDate(0, 0, 6))
	assert.Equal(t, 1, broken.CurrentStreak)
	assert.True(t, broken.StreakBroken)
	assert.Equal(t, 2, broken.LongestStreak)
}

// ──────────────────────────────────────────────────────────────────────────────
// Challenges
// ──────────────────────────────────────────────────────────────────────────────

func TestSubmitChallengeAttempt_AdjustedTargetRewardsOnce(t *testing.T) {
	e, store := newEngine(t)
	enr := seedStudent(t, store, "s1", student.CategoryHero1)
	ctx := context.Background()
	require.NoError(t, store.Challenges().CreateChallenge(ctx, &gamification.ChallengeDefinition{
		ID: "ch-1", CourseID: enr.CourseID, WeekNumber: 1, Activity: "push-ups", BaseMetric: 50, XPReward: 100,
	}))

	first, err := e.SubmitChallengeAttempt(ctx, command.SubmitChallengeCommand{
		EnrollmentID: enr.ID, ChallengeID: "ch-1", Metric: intPtr(32),
	})
	require.NoError(t, err)
	assert.True(t, first.Completed)
	assert.Equal(t, 30, first.AdjustedMetric)
	assert.Positive(t, first.XPAwarded)

	again, err := e.SubmitChallengeAttempt(ctx, command.SubmitChallengeCommand{
		EnrollmentID: enr.ID, ChallengeID: "ch-1", Metric: intPtr(40),
	})
	require.NoError(t, err)
	assert.True(t, again.Completed)
	assert.Zero(t, again.XPAwarded)

	st, err := store.Students().GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, student.XP(first.XPAwarded), st.TotalXP)
}

func TestSubmitChallengeAttempt_UnknownEnrollment(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.SubmitChallengeAttempt(context.Background(), command.SubmitChallengeCommand{
		EnrollmentID: "missing", ChallengeID: "ch-1", Metric: intPtr(1),
	})
	assert.True(t, shared.IsNotFound(err), err)
}

func TestSubmitChallengeAttempt_OtherCourse(t *testing.T) {
	e, store := newEngine(t)
	enr := seedStudent(t, store, "s1", student.CategoryAdult)
	other := seedStudent(t, store, "s2", student.CategoryAdult)
	ctx := context.Background()
	require.NoError(t, store.Challenges().CreateChallenge(ctx, &gamification.ChallengeDefinition{
		ID: "ch-other", CourseID: other.CourseID, WeekNumber: 1, Activity: "squats", BaseMetric: 20, XPReward: 100,
	}))

	_, err := e.SubmitChallengeAttempt(ctx, command.SubmitChallengeCommand{
		EnrollmentID: enr.ID, ChallengeID: "ch-other", Metric: intPtr(50),
	})
	assert.True(t, shared.IsValidation(err), err)

	_, err = e.ValidateChallengeAttempt(ctx, command.ValidateChallengeCommand{
		EnrollmentID: enr.ID, ChallengeID: "ch-other", Approved: true,
	})
	assert.True(t, shared.IsValidation(err), err)

	st, err := store.Students().GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, st.TotalXP)
}

func TestValidateChallengeAttempt_ApproveThenReject(t *testing.T) {
	e, store := newEngine(t)
	enr := seedStudent(t, store, "s1", student.CategoryAdult)
	ctx := context.Background()
	require.NoError(t, store.Challenges().CreateChallenge(ctx, &gamification.ChallengeDefinition{
		ID: "ch-1", CourseID: enr.CourseID, WeekNumber: 1, Activity: "plank", BaseMetric: 60, XPReward: 80,
	}))

	short, err := e.SubmitChallengeAttempt(ctx, command.SubmitChallengeCommand{
		EnrollmentID: enr.ID, ChallengeID: "ch-1", Metric: intPtr(10),
	})
	require.NoError(t, err)
	assert.False(t, short.Completed)
	assert.Zero(t, short.XPAwarded)

	approved, err := e.ValidateChallengeAttempt(ctx, command.ValidateChallengeCommand{
		EnrollmentID: enr.ID, ChallengeID: "ch-1", Approved: true,
	})
	require.NoError(t, err)
	assert.True(t, approved.Completed)
	assert.Equal(t, 80, approved.XPAwarded)

	rejected, err := e.ValidateChallengeAttempt(ctx, command.ValidateChallengeCommand{
		EnrollmentID: enr.ID, ChallengeID: "ch-1", Approved: false,
	})
	require.NoError(t, err)
	assert.False(t, rejected.Completed)
	assert.Zero(t, rejected.XPAwarded)
}

// ──────────────────────────────────────────────────────────────────────────────
// Evaluations
// ──────────────────────────────────────────────────────────────────────────────

func TestRecordEvaluation_ProficiencyAndNextHint(t *testing.T) {
	e, store := newEngine(t)
	enr := seedStudent(t, store, "s1", student.CategoryAdult)

	res, err := e.RecordEvaluation(context.Background(), command.RecordEvaluationCommand{
		EnrollmentID: enr.ID,
		LessonNumber: 8,
		Techniques: []gamification.TechniqueResult{
			{TechniqueID: "jab", TechniqueCategory: "strikes", Accuracy: floatPtr(96), Passed: true},
			{TechniqueID: "block", TechniqueCategory: "defenses", Accuracy: floatPtr(60), Passed: true},
		},
		EvaluatedBy: "sensei",
	})
	require.NoError(t, err)

	require.Len(t, res.Techniques, 2)
	assert.Equal(t, gamification.ProficiencyMastered, res.Techniques[0].Status)
	assert.Equal(t, gamification.ProficiencyPracticing, res.Techniques[1].Status)
	assert.Positive(t, res.XPAwarded)

	require.NotNil(t, res.NextEvaluation)
	assert.Equal(t, 16, res.NextEvaluation.LessonNumber)
}

func TestRecordEvaluation_RejectsBadAccuracy(t *testing.T) {
	e, store := newEngine(t)
	enr := seedStudent(t, store, "s1", student.CategoryAdult)

	_, err := e.RecordEvaluation(context.Background(), command.RecordEvaluationCommand{
		EnrollmentID: enr.ID,
		LessonNumber: 8,
		Techniques:   []gamification.TechniqueResult{{TechniqueID: "jab", Accuracy: floatPtr(140)}},
	})
	assert.True(t, shared.IsValidation(err), err)
}

// ──────────────────────────────────────────────────────────────────────────────
// Degrees and graduation
// ──────────────────────────────────────────────────────────────────────────────

func TestRecordDegrees_Idempotent(t *testing.T) {
	e, store := newEngine(t)
	enr := seedStudent(t, store, "s1", student.CategoryAdult)
	ctx := context.Background()
	attendLessons(t, store, "s1", enr.CourseID, 10)

	first, err := e.RecordDegrees(ctx, command.RecordDegreeCommand{StudentID: "s1", CourseID: enr.CourseID})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, first.Recorded)

	second, err := e.RecordDegrees(ctx, command.RecordDegreeCommand{StudentID: "s1", CourseID: enr.CourseID})
	require.NoError(t, err)
	assert.Empty(t, second.Recorded)

	degrees, err := store.Degrees().ListByStudentCourse(ctx, "s1", enr.CourseID)
	require.NoError(t, err)
	assert.Len(t, degrees, 1)

	view, err := e.ComputeProgression(ctx, "s1", enr.CourseID)
	require.NoError(t, err)
	assert.Equal(t, 10, view.CompletedLessons)
	assert.Equal(t, 1, view.CurrentDegree)
	assert.Equal(t, []int{1}, view.DegreesRecorded)
	assert.Equal(t, "white", view.CurrentBelt)
	assert.Equal(t, "yellow", view.NextBelt)
}

func TestApproveGraduation(t *testing.T) {
	e, store := newEngine(t)
	enr := seedStudent(t, store, "s1", student.CategoryAdult)
	ctx := context.Background()
	require.NoError(t, store.Requirements().Upsert(ctx, &graduation.Requirements{
		CourseID:          enr.CourseID,
		FromBelt:          "white",
		ToBelt:            "yellow",
		TotalDegrees:      1,
		DegreeIncrement:   20,
		MinAttendanceRate: 80,
		MinQualityRating:  3,
		MinRepetitions:    10,
		MinMonthsEnrolled: 0.5,
	}))
	attendLessons(t, store, "s1", enr.CourseID, 10)

	approve := command.ApproveGraduationCommand{StudentID: "s1", CourseID: enr.CourseID, ApprovedBy: "sensei"}

	_, err := e.ApproveGraduation(ctx, approve)
	assert.True(t, shared.IsNotEligible(err), "no repetitions yet: %v", err)

	_, err = e.RecordActivityExecution(ctx, command.RecordActivityExecutionCommand{
		StudentID: "s1", CourseID: enr.CourseID, LessonNumber: 10, Activity: "kata", Repetitions: 20, QualityRating: 4,
	})
	require.NoError(t, err)

	res, err := e.ApproveGraduation(ctx, approve)
	require.NoError(t, err)
	assert.Equal(t, "white", res.Graduation.FromBelt)
	assert.Equal(t, "yellow", res.Graduation.ToBelt)
	assert.NotEmpty(t, res.Graduation.Fingerprint)
	assert.True(t, res.Progression.IsEligibleForBeltChange)

	got, err := store.Enrollments().GetByID(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, student.EnrollmentCompleted, got.Status)

	view, err := e.ComputeProgression(ctx, "s1", enr.CourseID)
	require.NoError(t, err)
	assert.Equal(t, "yellow", view.CurrentBelt)
	assert.Empty(t, view.NextBelt)

	_, err = e.ApproveGraduation(ctx, approve)
	assert.True(t, shared.IsAlreadyRecorded(err), "repeat approval: %v", err)

	history, err := store.Graduations().ListByStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestApproveGraduation_RejectsTamperedHistory(t *testing.T) {
	e, store := newEngine(t)
	enr := seedStudent(t, store, "s1", student.CategoryAdult)
	ctx := context.Background()

	forged := graduation.BeltGraduation{
		ID: "g-forged", StudentID: "s1", CourseID: enr.CourseID,
		FromBelt: "white", ToBelt: "yellow", ApprovedBy: "sensei",
		GraduatedAt: checkInTime.Add(-time.Hour),
	}
	forged.Fingerprint = forged.ComputeFingerprint()
	forged.ToBelt = "black"
	require.NoError(t, store.Graduations().Append(ctx, &forged))

	_, err := e.ApproveGraduation(ctx, command.ApproveGraduationCommand{
		StudentID: "s1", CourseID: enr.CourseID, ApprovedBy: "sensei", ToBelt: "orange",
	})
	assert.True(t, shared.IsValidation(err), err)
}

func TestRecordActivityExecution_RejectsBadRating(t *testing.T) {
	e, store := newEngine(t)
	enr := seedStudent(t, store, "s1", student.CategoryAdult)

	_, err := e.RecordActivityExecution(context.Background(), command.RecordActivityExecutionCommand{
		StudentID: "s1", CourseID: enr.CourseID, Activity: "kata", Repetitions: 5, QualityRating: 6,
	})
	assert.True(t, shared.IsValidation(err), err)
}

// ──────────────────────────────────────────────────────────────────────────────
// Bonus, profile and leaderboard
// ──────────────────────────────────────────────────────────────────────────────

func TestGrantInstructorBonus_StatsAndLeaderboard(t *testing.T) {
	e, store := newEngine(t)
	seedStudent(t, store, "s1", student.CategoryAdult)
	seedStudent(t, store, "s2", student.CategoryAdult)
	ctx := context.Background()

	_, err := e.GrantInstructorBonus(ctx, command.GrantBonusCommand{StudentID: "s1", Amount: 150, Reason: "helped a peer", GrantedBy: "sensei"})
	require.NoError(t, err)
	_, err = e.GrantInstructorBonus(ctx, command.GrantBonusCommand{StudentID: "s2", Amount: 300, Reason: "tournament", GrantedBy: "sensei"})
	require.NoError(t, err)

	stats, err := e.StudentStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 150, stats.TotalXP)
	assert.Equal(t, 2, stats.Level)

	board, err := e.Leaderboard(ctx, org, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "s2", board[0].StudentID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "s1", board[1].StudentID)

	txs, err := store.Transactions().ListByStudent(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, gamification.SourceBonus, txs[0].Source)
}

func TestGrantInstructorBonus_RejectsNonPositive(t *testing.T) {
	e, store := newEngine(t)
	seedStudent(t, store, "s1", student.CategoryAdult)

	_, err := e.GrantInstructorBonus(context.Background(), command.GrantBonusCommand{StudentID: "s1", Amount: 0, GrantedBy: "sensei"})
	assert.True(t, shared.IsValidation(err), err)
}
