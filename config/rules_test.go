package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
)

func TestParseTables_Embedded(t *testing.T) {
	tables, schedule, err := ParseTables(embeddedTables)
	require.NoError(t, err)

	assert.Len(t, tables.LevelThresholds, 20)
	assert.Equal(t, 1.2, tables.XPMultipliers[student.CategoryMaster2])
	assert.Equal(t, 0.48, tables.MetricAdjustments[student.CategoryHero1].Female)
	assert.Equal(t, 100, tables.StreakTiers[0].MinDays, "tiers are sorted by descending threshold")
	assert.Equal(t, gamification.ProficiencyMastered, tables.Proficiency[0].Level)
	assert.Equal(t, 200, tables.Evaluation.BaseByType[gamification.EvaluationGrading])

	require.Len(t, schedule, 6)
	assert.Equal(t, "FINAL_EXAM", schedule[5].Name)
	assert.Equal(t, 48, schedule[5].LessonNumber)
}

func TestParseTables_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "levels: [0, 100"},
		{"unknown category", "xp_multipliers: {KID: 1.0}"},
		{"unknown evaluation type", "evaluation: {base_by_type: {QUIZ: 10}}"},
		{"bad schedule", "schedule: [{name: X, lesson: 0, type: PROGRESS}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseTables([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseCatalog_Embedded(t *testing.T) {
	catalog, err := ParseCatalog(embeddedCatalog)
	require.NoError(t, err)
	assert.Len(t, catalog, len(gamification.DefaultCatalog()))

	keys := make(map[string]bool)
	for _, def := range catalog {
		keys[def.Key] = true
	}
	assert.True(t, keys["first_class"])
	assert.True(t, keys["perfect_week"])
}

func TestParseCatalog_RejectsDuplicates(t *testing.T) {
	doc := `
- {key: a, name: A, category: attendance, criteria: {type: total_classes, target: 1}, xp_reward: 10, rarity: common}
- {key: a, name: B, category: attendance, criteria: {type: total_classes, target: 2}, xp_reward: 10, rarity: common}
`
	_, err := ParseCatalog([]byte(doc))
	assert.ErrorContains(t, err, "duplicate key")
}

func TestLoadRules_FallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("xp_multipliers: {KID: 2}"), 0o600))

	rules := LoadRules(path, nil)
	assert.Equal(t, gamification.DefaultTables().LevelThresholds, rules.Tables.LevelThresholds)
	assert.Len(t, rules.Schedule, len(gamification.DefaultSchedule()))
	assert.NotEmpty(t, rules.Catalog)
}

func TestLoadRules_MissingFileUsesEmbedded(t *testing.T) {
	rules := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Len(t, rules.Schedule, 6)
	assert.Equal(t, 50, rules.Tables.CheckIn.Base)
}
