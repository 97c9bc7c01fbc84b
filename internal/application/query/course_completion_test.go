package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeCompletion_Blend(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c := ComputeCompletion(CompletionInput{
		LessonsCompleted:    24,
		TotalLessons:        48,
		TechniquesLearned:   5,
		RequiredTechniques:  10,
		ChallengesCompleted: 2,
		TotalChallenges:     4,
		EvaluationsPassed:   3,
		EnrolledAt:          now.AddDate(0, 0, -70),
		Now:                 now,
	})

	assert.InDelta(t, 50, c.Attendance, 1e-9)
	assert.InDelta(t, 50, c.Technique, 1e-9)
	assert.InDelta(t, 50, c.Challenge, 1e-9)
	assert.InDelta(t, 50, c.Evaluation, 1e-9)
	assert.InDelta(t, 50, c.Overall, 1e-9)

	assert.Equal(t, 10, c.WeeksEnrolled)
	assert.InDelta(t, 5, c.WeeklyRate, 1e-9)
	assert.Equal(t, 10, c.EstimatedWeeksRemaining)
	assert.Equal(t, now.AddDate(0, 0, 70), c.EstimatedCompletion)
}

func TestComputeCompletion_ZeroDenominators(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c := ComputeCompletion(CompletionInput{EnrolledAt: now, Now: now})

	assert.Zero(t, c.Attendance)
	assert.Equal(t, 100.0, c.Technique)
	assert.Equal(t, 100.0, c.Challenge)
	assert.InDelta(t, 0, c.Evaluation, 1e-9)
	// 0.3 + 0.2 of the weight come from empty technique and challenge sets
	assert.InDelta(t, 50, c.Overall, 1e-9)
	assert.Zero(t, c.WeeksEnrolled)
	assert.Equal(t, 1, c.EstimatedWeeksRemaining)
}

func TestComputeCompletion_ClampsAndFinishes(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c := ComputeCompletion(CompletionInput{
		LessonsCompleted:    60,
		TotalLessons:        48,
		TechniquesLearned:   12,
		RequiredTechniques:  10,
		ChallengesCompleted: 4,
		TotalChallenges:     4,
		EvaluationsPassed:   6,
		EnrolledAt:          now.AddDate(0, -6, 0),
		Now:                 now,
	})

	assert.Equal(t, 100.0, c.Attendance)
	assert.Equal(t, 100.0, c.Technique)
	assert.InDelta(t, 100, c.Overall, 1e-9)
	assert.Zero(t, c.EstimatedWeeksRemaining)
	assert.Equal(t, now, c.EstimatedCompletion)
}
