package gamification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMeasurement(t *testing.T) {
	tables := DefaultTables()
	tp := &TechniqueProgress{EnrollmentID: "e1", TechniqueID: "jab"}

	tp.RecordMeasurement(f64(60), "", day(1, 10), tables)
	assert.Equal(t, ProficiencyPracticing, tp.Status)
	assert.Equal(t, 1, tp.Attempts)
	assert.Nil(t, tp.MasteredAt)

	tp.RecordMeasurement(f64(96), "clean", day(2, 10), tables)
	assert.Equal(t, ProficiencyMastered, tp.Status)
	require.NotNil(t, tp.MasteredAt)
	assert.True(t, tp.MasteredAt.Equal(day(2, 10)))
	assert.Equal(t, "clean", tp.Notes)

	// unmeasured attempt keeps the bucket
	tp.RecordMeasurement(nil, "", day(3, 10), tables)
	assert.Equal(t, ProficiencyMastered, tp.Status)
	assert.Equal(t, 96.0, tp.Accuracy)
	assert.Equal(t, 3, tp.Attempts)

	// a measured drop moves it down, the first mastery date stays
	tp.RecordMeasurement(f64(80), "", day(4, 10), tables)
	assert.Equal(t, ProficiencyProficient, tp.Status)
	assert.True(t, tp.MasteredAt.Equal(day(2, 10)))
	assert.True(t, tp.IsLearned())
	assert.False(t, tp.IsMastered())
}

func TestRecordMeasurement_FirstUnmeasured(t *testing.T) {
	tp := &TechniqueProgress{}

	tp.RecordMeasurement(nil, "", day(1, 10), DefaultTables())

	assert.Equal(t, ProficiencyLearning, tp.Status)
	assert.Equal(t, 1, tp.Attempts)
}

func TestProficiencyLevel_AtLeast(t *testing.T) {
	assert.True(t, ProficiencyExpert.AtLeast(ProficiencyProficient))
	assert.False(t, ProficiencyCompetent.AtLeast(ProficiencyProficient))
	assert.False(t, ProficiencyLevel("BLACK").IsValid())
}
