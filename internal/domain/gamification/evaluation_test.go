package gamification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
)

func f64(v float64) *float64 { return &v }

func TestComputeOutcome(t *testing.T) {
	results := []TechniqueResult{
		{TechniqueID: "jab", Accuracy: f64(90)},
		{TechniqueID: "cross", Accuracy: f64(70)},
		{TechniqueID: "hook"},
	}

	score, passed := ComputeOutcome(results, nil, 75)
	assert.InDelta(t, 80.0, score, 1e-9)
	assert.True(t, passed)

	_, passed = ComputeOutcome(results, nil, 85)
	assert.False(t, passed)

	_, passed = ComputeOutcome(results, &PhysicalTest{Type: "pushups", Completed: 10, Target: 20}, 75)
	assert.False(t, passed, "a failed physical test fails the evaluation")

	score, passed = ComputeOutcome([]TechniqueResult{{TechniqueID: "jab"}}, nil, 0)
	assert.Equal(t, 0.0, score)
	assert.False(t, passed, "nothing measured")
}

func TestValidateResults(t *testing.T) {
	assert.NoError(t, ValidateResults([]TechniqueResult{{TechniqueID: "jab", Accuracy: f64(100)}}, nil))
	assert.ErrorIs(t, ValidateResults([]TechniqueResult{{TechniqueID: "jab", Accuracy: f64(101)}}, nil), shared.ErrValueOutOfRange)
	assert.ErrorIs(t, ValidateResults([]TechniqueResult{{TechniqueID: "jab", Accuracy: f64(-1)}}, nil), shared.ErrInvalidAccuracy)
	assert.True(t, shared.IsValidation(ValidateResults([]TechniqueResult{{}}, nil)))
	assert.ErrorIs(t, ValidateResults(nil, &PhysicalTest{Completed: -1}), shared.ErrNegativeValue)
}

func TestSchedule(t *testing.T) {
	schedule := DefaultSchedule()

	s, ok := ScheduledAt(schedule, 16)
	require.True(t, ok)
	assert.Equal(t, "MINI_TEST_2", s.Name)
	assert.Equal(t, 75.0, s.PassingScore)

	_, ok = ScheduledAt(schedule, 17)
	assert.False(t, ok)

	next := NextAfter(schedule, 8, 12)
	require.NotNil(t, next)
	assert.Equal(t, 16, next.LessonNumber)
	assert.False(t, next.CanTakeNow)

	next = NextAfter(schedule, 40, 48)
	require.NotNil(t, next)
	assert.Equal(t, EvaluationGrading, next.Type)
	assert.True(t, next.CanTakeNow)

	assert.Nil(t, NextAfter(schedule, 48, 48))
}
