package gamification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/progression-engine/internal/domain/student"
)

func TestDefaultTables_Valid(t *testing.T) {
	require.NoError(t, DefaultTables().Normalize())
}

func TestLevelFor(t *testing.T) {
	tables := DefaultTables()

	tests := []struct {
		xp    int
		level int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{249, 2},
		{250, 3},
		{300, 3},
		{1000, 6},
		{10449, 19},
		{10450, 20},
		{1_000_000, 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, tables.LevelFor(tt.xp), "xp=%d", tt.xp)
	}
}

func TestLevelFor_MonotonicAndMatchesTable(t *testing.T) {
	tables := DefaultTables()
	prev := tables.LevelFor(0)
	for xp := 0; xp <= 12000; xp += 7 {
		lvl := tables.LevelFor(xp)
		assert.GreaterOrEqual(t, lvl, prev)
		assert.GreaterOrEqual(t, xp, tables.LevelThresholds[lvl-1])
		if lvl < tables.MaxLevel() {
			assert.Less(t, xp, tables.LevelThresholds[lvl])
		}
		prev = lvl
	}
}

func TestNextLevelHelpers(t *testing.T) {
	tables := DefaultTables()

	assert.Equal(t, 75, tables.XPForNextLevel(175))
	assert.InDelta(t, 50.0, tables.ProgressToNextLevel(175), 1e-9)

	assert.Equal(t, 0, tables.XPForNextLevel(10450))
	assert.Equal(t, 100.0, tables.ProgressToNextLevel(20000))
}

func TestAdjustXP(t *testing.T) {
	tables := DefaultTables()

	assert.Equal(t, 100, tables.AdjustXP(student.CategoryAdult, 100))
	assert.Equal(t, 130, tables.AdjustXP(student.CategoryMaster3, 100))
	assert.Equal(t, 70, tables.AdjustXP(student.CategoryHero1, 100))
	assert.Equal(t, 100, tables.AdjustXP("UNKNOWN", 100))
	// 15 × 1.1 = 16.5 rounds half away from zero
	assert.Equal(t, 17, tables.AdjustXP(student.CategoryMaster1, 15))
}

func TestStreakMultiplier(t *testing.T) {
	tables := DefaultTables()

	assert.Equal(t, 1.0, tables.StreakMultiplier(0))
	assert.Equal(t, 1.0, tables.StreakMultiplier(6))
	assert.Equal(t, 1.5, tables.StreakMultiplier(7))
	assert.Equal(t, 2.0, tables.StreakMultiplier(30))
	assert.Equal(t, 2.5, tables.StreakMultiplier(99))
	assert.Equal(t, 3.0, tables.StreakMultiplier(365))
}

func TestProficiencyFor(t *testing.T) {
	tables := DefaultTables()

	assert.Equal(t, ProficiencyMastered, tables.ProficiencyFor(96))
	assert.Equal(t, ProficiencyMastered, tables.ProficiencyFor(95))
	assert.Equal(t, ProficiencyExpert, tables.ProficiencyFor(85))
	assert.Equal(t, ProficiencyProficient, tables.ProficiencyFor(80))
	assert.Equal(t, ProficiencyCompetent, tables.ProficiencyFor(65))
	assert.Equal(t, ProficiencyPracticing, tables.ProficiencyFor(60))
	assert.Equal(t, ProficiencyLearning, tables.ProficiencyFor(49.9))
}

func TestCheckInXP(t *testing.T) {
	tables := DefaultTables()

	assert.Equal(t, 50, tables.CheckInXP(1.0, 0, false))
	assert.Equal(t, 120, tables.CheckInXP(1.5, 2, true))
	assert.Equal(t, 150, tables.CheckInXP(3.0, 0, false))
}

func TestEvaluationXP(t *testing.T) {
	tables := DefaultTables()

	// 75 × 2 + 3 steps × 10 + 50
	assert.Equal(t, 230, tables.EvaluationXP(EvaluationProgress, 8, 85, true))
	// 75 × 1 − 4 steps × 10
	assert.Equal(t, 35, tables.EvaluationXP(EvaluationProgress, 0, 50, false))
	// 200 × 7 + 6 × 10 + 50
	assert.Equal(t, 1510, tables.EvaluationXP(EvaluationGrading, 48, 100, true))
	// floored at the minimum
	assert.Equal(t, 25, tables.EvaluationXP(EvaluationFitness, 0, 0, false))
}

func TestMetricAdjuster(t *testing.T) {
	adj := NewMetricAdjuster(DefaultTables())

	assert.Equal(t, 30, adj.Adjust(50, student.CategoryHero1, student.GenderMale))
	assert.Equal(t, 30, adj.Adjust(50, student.CategoryHero1, ""))
	assert.Equal(t, 24, adj.Adjust(50, student.CategoryHero1, student.GenderFemale))
	assert.Equal(t, 50, adj.Adjust(50, "UNKNOWN", student.GenderFemale))
	assert.Nil(t, adj.AdjustOptional(nil, student.CategoryAdult, ""))
}

func TestTablesValidate_RejectsBrokenThresholds(t *testing.T) {
	tables := DefaultTables()
	tables.LevelThresholds = []int{10, 5}

	err := tables.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "level 1 threshold must be 0")
	assert.Contains(t, err.Error(), "level 2 threshold 5")
}

func TestTablesNormalize_SortsTiers(t *testing.T) {
	tables := DefaultTables()
	tables.StreakTiers = []StreakTier{{MinDays: 7, Multiplier: 1.5}, {MinDays: 30, Multiplier: 2}}

	require.NoError(t, tables.Normalize())
	assert.Equal(t, 2.0, tables.StreakMultiplier(45))
}
