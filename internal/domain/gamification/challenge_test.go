package gamification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
)

func intp(v int) *int { return &v }

func TestScoreChallenge(t *testing.T) {
	adj := NewMetricAdjuster(DefaultTables())
	timed := &ChallengeDefinition{ID: "c1", BaseMetric: 50, BaseTimeSeconds: intp(100), XPReward: 40}
	untimed := &ChallengeDefinition{ID: "c2", BaseMetric: 50, XPReward: 40}

	tests := []struct {
		name      string
		def       *ChallengeDefinition
		metric    *int
		time      *int
		category  student.Category
		completed bool
	}{
		{"hero target met", untimed, intp(32), nil, student.CategoryHero1, true},
		{"hero target missed", untimed, intp(29), nil, student.CategoryHero1, false},
		{"adult exact target", untimed, intp(50), nil, student.CategoryAdult, true},
		{"no metric", untimed, nil, nil, student.CategoryAdult, false},
		{"timed within limit", timed, intp(50), intp(100), student.CategoryAdult, true},
		{"timed over limit", timed, intp(50), intp(101), student.CategoryAdult, false},
		{"timed without time", timed, intp(60), nil, student.CategoryAdult, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ScoreChallenge(tt.def, tt.metric, tt.time, tt.category, student.GenderMale, adj)
			assert.Equal(t, tt.completed, s.Completed)
		})
	}
}

func TestScoreChallenge_AdjustsTarget(t *testing.T) {
	adj := NewMetricAdjuster(DefaultTables())
	def := &ChallengeDefinition{BaseMetric: 50, BaseTimeSeconds: intp(100)}

	s := ScoreChallenge(def, intp(32), intp(60), student.CategoryHero1, student.GenderMale, adj)

	assert.Equal(t, 30, s.AdjustedMetric)
	if assert.NotNil(t, s.AdjustedTimeSeconds) {
		assert.Equal(t, 60, *s.AdjustedTimeSeconds)
	}
	assert.True(t, s.Completed)
}

func TestValidateSubmission(t *testing.T) {
	assert.NoError(t, ValidateSubmission(nil, nil))
	assert.NoError(t, ValidateSubmission(intp(0), intp(0)))
	assert.ErrorIs(t, ValidateSubmission(intp(-1), nil), shared.ErrNegativeValue)
	assert.ErrorIs(t, ValidateSubmission(nil, intp(-3)), shared.ErrNegativeMetric)
}

func TestChallengeAttempt_RewardOnce(t *testing.T) {
	a := NewChallengeAttempt("a1", "e1", "c1", day(4, 10))

	assert.False(t, a.ApplySubmission(intp(10), nil, false, day(4, 11)))
	assert.True(t, a.Attempted)

	due := a.ApplySubmission(intp(40), nil, true, day(5, 11))
	assert.True(t, due)
	a.MarkRewarded(40, day(5, 11))

	// a later failed attempt overwrites the metrics but keeps the reward
	assert.False(t, a.ApplySubmission(intp(5), nil, false, day(6, 11)))
	assert.False(t, a.Completed)
	assert.Equal(t, 5, *a.ActualMetric)
	assert.Equal(t, 40, a.XPEarned)

	// completing again does not pay twice
	assert.False(t, a.ApplySubmission(intp(45), nil, true, day(7, 11)))
}

func TestChallengeAttempt_Validation(t *testing.T) {
	a := NewChallengeAttempt("a1", "e1", "c1", day(4, 10))
	a.ApplySubmission(intp(10), nil, false, day(4, 11))

	due := a.ApplyValidation(true, "good form", nil, nil, day(4, 12))
	assert.True(t, due)
	assert.True(t, a.Completed)
	assert.True(t, a.Validated)
	assert.Equal(t, 10, *a.ActualMetric)
	a.MarkRewarded(40, day(4, 12))

	assert.False(t, a.ApplyValidation(false, "not counted", intp(8), nil, day(4, 13)))
	assert.False(t, a.Completed)
	assert.Equal(t, 8, *a.ActualMetric)
	assert.NotNil(t, a.RewardedAt)

	assert.False(t, a.ApplyValidation(true, "", nil, nil, day(4, 14)), "already rewarded")
}
