package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/graduation"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
)

func TestStudentRepo_CopiesAndRanks(t *testing.T) {
	ctx := context.Background()
	repo := New().Students()

	for i, xp := range []student.XP{300, 900, 300} {
		st, err := student.NewStudent(student.NewStudentParams{ID: string(rune('a' + i)), OrganizationID: "org"})
		require.NoError(t, err)
		st.TotalXP = xp
		require.NoError(t, repo.Create(ctx, st))
	}
	other, err := student.NewStudent(student.NewStudentParams{ID: "z", OrganizationID: "other"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, other))

	assert.True(t, shared.IsAlreadyExists(repo.Create(ctx, other)))

	top, err := repo.ListTopByXP(ctx, "org", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].ID)
	assert.Equal(t, "a", top[1].ID, "ties break by id")

	all, err := repo.ListTopByXP(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	// Mutating a returned value does not touch the store.
	top[0].TotalXP = 0
	got, err := repo.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, student.XP(900), got.TotalXP)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestAchievementRepo_Uniqueness(t *testing.T) {
	ctx := context.Background()
	repo := New().Achievements()

	def := &gamification.AchievementDefinition{ID: "d1", OrganizationID: "org", Key: "first_class"}
	created, err := repo.CreateDefinition(ctx, def)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateDefinition(ctx, &gamification.AchievementDefinition{ID: "d2", OrganizationID: "org", Key: "first_class"})
	require.NoError(t, err)
	assert.False(t, created, "same key in the same organization")

	created, err = repo.CreateDefinition(ctx, &gamification.AchievementDefinition{ID: "d3", OrganizationID: "org2", Key: "first_class"})
	require.NoError(t, err)
	assert.True(t, created)

	ok, err := repo.CreateUnlock(ctx, &gamification.AchievementUnlock{StudentID: "s1", AchievementID: "d1"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.CreateUnlock(ctx, &gamification.AchievementUnlock{StudentID: "s1", AchievementID: "d1"})
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := repo.CountUnlocked(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTransactionRepo_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := New().Transactions()
	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Append(ctx, &gamification.PointsTransaction{ID: string(rune('0' + i)), StudentID: "s1", Amount: i}))
	}
	require.NoError(t, repo.Append(ctx, &gamification.PointsTransaction{ID: "x", StudentID: "s2"}))

	txs, err := repo.ListByStudent(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "3", txs[0].ID)
	assert.Equal(t, "2", txs[1].ID)
}

func TestAttendanceRepo_OnePerLessonPerDay(t *testing.T) {
	ctx := context.Background()
	repo := New().Attendance()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	rec := func(id string, lesson int, when time.Time) *graduation.AttendanceRecord {
		return &graduation.AttendanceRecord{ID: id, StudentID: "s1", CourseID: "c1", LessonNumber: lesson, CheckInAt: when, Present: true}
	}

	created, err := repo.Record(ctx, rec("r1", 1, at))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Record(ctx, rec("r2", 1, at.Add(3*time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)

	created, err = repo.Record(ctx, rec("r3", 1, at.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Record(ctx, rec("r4", 2, at))
	require.NoError(t, err)
	assert.True(t, created)

	checkIns, err := repo.ListCheckIns(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, checkIns, 3)
}

func TestDegreeRepo_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := New().Degrees()
	d := &graduation.DegreeAchievement{ID: "d1", StudentID: "s1", CourseID: "c1", Degree: 1}

	created, err := repo.CreateIfAbsent(ctx, d)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateIfAbsent(ctx, &graduation.DegreeAchievement{ID: "d2", StudentID: "s1", CourseID: "c1", Degree: 1})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestStudentRepo_SaveProgressRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := New().Students()
	st, err := student.NewStudent(student.NewStudentParams{ID: "s1", OrganizationID: "org"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, st))

	first, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)

	first.TotalXP = 10
	require.NoError(t, repo.SaveProgress(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	second.TotalXP = 20
	err = repo.SaveProgress(ctx, second)
	assert.True(t, shared.IsConcurrentModification(err), err)

	got, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, student.XP(10), got.TotalXP)

	assert.True(t, shared.IsNotFound(repo.SaveProgress(ctx, &student.Student{ID: "missing"})))
}
