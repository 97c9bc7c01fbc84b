package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/progression-engine/internal/application/command"
	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/internal/infrastructure/lock"
	"github.com/dojo-hub/progression-engine/internal/infrastructure/persistence/memory"
)

const org = "dojo-1"

var checkInTime = time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)

func newEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	return newEngineOver(t, store, lock.NewKeyedMutex()), store
}

// newEngineOver builds an engine on a shared store, standing in for one
// process among several.
func newEngineOver(t *testing.T, store *memory.Store, locker Locker) *Engine {
	t.Helper()
	tables := gamification.DefaultTables()
	require.NoError(t, tables.Normalize())

	e, err := New(Deps{
		Repos: Repositories{
			Students:     store.Students(),
			Enrollments:  store.Enrollments(),
			Courses:      store.Courses(),
			Achievements: store.Achievements(),
			Transactions: store.Transactions(),
			Challenges:   store.Challenges(),
			Evaluations:  store.Evaluations(),
			Techniques:   store.Techniques(),
			Requirements: store.Requirements(),
			Attendance:   store.Attendance(),
			Activities:   store.Activities(),
			Degrees:      store.Degrees(),
			Graduations:  store.Graduations(),
		},
		Tables:   tables,
		Locker:   locker,
		LockWait: time.Second,
		Clock:    func() time.Time { return checkInTime },
	})
	require.NoError(t, err)
	return e
}

func seedStudent(t *testing.T, store *memory.Store, id string, category student.Category) *student.Enrollment {
	t.Helper()
	ctx := context.Background()

	st, err := student.NewStudent(student.NewStudentParams{ID: id, OrganizationID: org, Name: "Aluno " + id, Category: category})
	require.NoError(t, err)
	require.NoError(t, store.Students().Create(ctx, st))

	course := &student.Course{ID: "course-" + id, OrganizationID: org, Name: "Fundamentos", Belt: "yellow", TotalLessons: 48, RequiredTechniques: 10}
	require.NoError(t, store.Courses().Create(ctx, course))

	enr := &student.Enrollment{
		ID:           "enr-" + id,
		StudentID:    id,
		CourseID:     course.ID,
		Status:       student.EnrollmentActive,
		Category:     category,
		CurrentLevel: 1,
		EnrolledAt:   checkInTime.AddDate(0, -1, 0),
	}
	require.NoError(t, store.Enrollments().Create(ctx, enr))
	return enr
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	store := memory.New()
	_, err = New(Deps{Repos: Repositories{Students: store.Students()}})
	assert.Error(t, err)
}

func TestStudentLockKey(t *testing.T) {
	assert.Equal(t, "student:abc", StudentLockKey("abc"))
}

func TestAwardXP_RequiresStudent(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.AwardXP(context.Background(), command.AwardXPCommand{Amount: 10, Source: gamification.SourceManual})
	assert.True(t, shared.IsValidation(err))
}

func TestAwardXP_ConcurrentAwardsAreSerialized(t *testing.T) {
	e, store := newEngine(t)
	seedStudent(t, store, "s1", student.CategoryAdult)

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.AwardXP(context.Background(), command.AwardXPCommand{
				StudentID: "s1",
				Amount:    10,
				Source:    gamification.SourceManual,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	st, err := store.Students().GetByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, student.XP(n*10), st.TotalXP)
	assert.Equal(t, student.Level(3), st.GlobalLevel)

	txs, err := store.Transactions().ListByStudent(context.Background(), "s1", -1)
	require.NoError(t, err)
	assert.Len(t, txs, n)
}

func TestAwardXP_UnknownStudent(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.AwardXP(context.Background(), command.AwardXPCommand{StudentID: "ghost", Amount: 10, Source: gamification.SourceManual})
	assert.True(t, shared.IsNotFound(err), err)
}

func TestAwardXP_ProcessesWithLocalLocksOnlyDoNotLoseUpdates(t *testing.T) {
	store := memory.New()
	seedStudent(t, store, "s1", student.CategoryAdult)
	engines := []*Engine{
		newEngineOver(t, store, lock.NewLayered(nil, lock.Config{}, nil)),
		newEngineOver(t, store, lock.NewLayered(nil, lock.Config{}, nil)),
	}

	const perEngine = 150
	var wg sync.WaitGroup
	errs := make(chan error, perEngine*len(engines))
	for _, e := range engines {
		for i := 0; i < perEngine; i++ {
			wg.Add(1)
			go func(e *Engine) {
				defer wg.Done()
				_, err := e.AwardXP(context.Background(), command.AwardXPCommand{
					StudentID: "s1",
					Amount:    1,
					Source:    gamification.SourceManual,
				})
				errs <- err
			}(e)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	st, err := store.Students().GetByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, student.XP(perEngine*len(engines)), st.TotalXP)
	assert.Equal(t, int64(perEngine*len(engines)), st.Version)
}

func TestAwardXP_CategoryMultiplier(t *testing.T) {
	e, store := newEngine(t)
	seedStudent(t, store, "s1", student.CategoryMaster2)

	res, err := e.AwardXP(context.Background(), command.AwardXPCommand{StudentID: "s1", Amount: 100, Source: gamification.SourceManual})
	require.NoError(t, err)
	assert.Equal(t, 120, res.XPAwarded)
	assert.Equal(t, 120, res.TotalXP)
	assert.Equal(t, 2, res.NewLevel)
	assert.True(t, res.LeveledUp)
}

func TestSeedDefaultAchievements_Idempotent(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()

	first, err := e.SeedDefaultAchievements(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, len(gamification.DefaultCatalog()), first.Created)
	assert.Zero(t, first.Skipped)

	second, err := e.SeedDefaultAchievements(ctx, org)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, first.Created, second.Skipped)

	catalog, err := store.Achievements().ListCatalog(ctx, org)
	require.NoError(t, err)
	assert.Len(t, catalog, first.Created)

	_, err = e.SeedDefaultAchievements(ctx, "")
	assert.True(t, shared.IsValidation(err))
}

func TestProcessCheckIn_Pipeline(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()
	enr := seedStudent(t, store, "s1", student.CategoryAdult)
	_, err := e.SeedDefaultAchievements(ctx, org)
	require.NoError(t, err)

	res, err := e.ProcessCheckIn(ctx, command.ProcessCheckInCommand{
		StudentID:           "s1",
		CourseID:            enr.CourseID,
		LessonNumber:        1,
		TechniquesPracticed: 2,
		Timestamp:           checkInTime,
	})
	require.NoError(t, err)
	require.NoError(t, res.GamificationError)

	assert.False(t, res.Duplicate)
	assert.True(t, res.FirstOfMonth)
	require.NotNil(t, res.Streak)
	assert.Equal(t, 1, res.Streak.CurrentStreak)

	// 50 base + 2 techniques x 10 + 25 first-of-month
	assert.Equal(t, 95, res.XPAwarded)
	// plus the 50 XP first class achievement
	assert.Equal(t, 145, res.TotalXP)
	assert.Len(t, res.UnlockedAchievementIDs, 1)

	unlocked, err := store.Achievements().ListUnlocked(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, unlocked, 1)

	again, err := e.ProcessCheckIn(ctx, command.ProcessCheckInCommand{
		StudentID:    "s1",
		CourseID:     enr.CourseID,
		LessonNumber: 1,
		Timestamp:    checkInTime.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Zero(t, again.XPAwarded)

	st, err := store.Students().GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, student.XP(145), st.TotalXP)
}

func TestProcessCheckIn_UnknownEnrollment(t *testing.T) {
	e, store := newEngine(t)
	seedStudent(t, store, "s1", student.CategoryAdult)

	_, err := e.ProcessCheckIn(context.Background(), command.ProcessCheckInCommand{
		StudentID:    "s1",
		CourseID:     "missing",
		LessonNumber: 1,
	})
	assert.True(t, shared.IsNotFound(err))
}

func TestEvaluateAchievements_NoDoubleUnlock(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()
	seedStudent(t, store, "s1", student.CategoryAdult)
	_, err := e.SeedDefaultAchievements(ctx, org)
	require.NoError(t, err)

	// 700 XP reaches level 5; the level_5 reward is granted exactly once.
	_, err = e.AwardXP(ctx, command.AwardXPCommand{StudentID: "s1", Amount: 700, Source: gamification.SourceManual})
	require.NoError(t, err)

	out, err := e.EvaluateAchievements(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, out.Unlocked)

	n, err := store.Achievements().CountUnlocked(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEvaluateAchievements_TransitiveCascade(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()
	seedStudent(t, store, "s1", student.CategoryAdult)

	for _, def := range []*gamification.AchievementDefinition{
		{ID: "a", Key: "xp_100", Criteria: gamification.Criteria{Type: gamification.CriteriaXPEarned, Target: 100}, XPReward: 600},
		{ID: "b", Key: "level_5", Criteria: gamification.Criteria{Type: gamification.CriteriaLevelReached, Target: 5}, XPReward: 5},
		{ID: "c", Key: "xp_705", Criteria: gamification.Criteria{Type: gamification.CriteriaXPEarned, Target: 705}, XPReward: 5},
	} {
		def.OrganizationID = org
		def.Category = gamification.CategoryProgression
		created, err := store.Achievements().CreateDefinition(ctx, def)
		require.NoError(t, err)
		require.True(t, created)
	}

	res, err := e.AwardXP(ctx, command.AwardXPCommand{StudentID: "s1", Amount: 100, Source: gamification.SourceManual})
	require.NoError(t, err)
	require.NoError(t, res.AchievementError)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, res.UnlockedAchievementIDs)
	assert.Equal(t, 610, res.AchievementBonusXP)
	assert.Equal(t, 710, res.TotalXP)
	assert.Equal(t, 5, res.NewLevel)

	again, err := e.EvaluateAchievements(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, again.Unlocked)

	st, err := store.Students().GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, student.XP(710), st.TotalXP)
	assert.Equal(t, student.Level(5), st.GlobalLevel)

	n, err := store.Achievements().CountUnlocked(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
