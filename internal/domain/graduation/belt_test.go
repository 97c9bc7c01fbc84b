package graduation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
)

func TestNewDegreeAchievement(t *testing.T) {
	res := Calculate(ProgressionInput{
		StudentID:    "s1",
		CourseID:     "c1",
		TotalLessons: 20,
		Requirements: DefaultRequirements("c1"),
		Attendance:   present(lessonsRange(1, 9)...),
	})

	d, err := NewDegreeAchievement("d1", res, 2, 20, enrolled)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Degree)
	assert.Equal(t, 40.0, d.DegreePercentage)
	assert.Equal(t, 9, d.CompletedLessons)

	_, err = NewDegreeAchievement("d2", res, 3, 20, enrolled)
	assert.True(t, shared.IsNotEligible(err))

	_, err = NewDegreeAchievement("d3", res, 0, 20, enrolled)
	assert.True(t, shared.IsValidation(err))
}

func TestApprove(t *testing.T) {
	res := Calculate(eligibleInput())
	p := ApprovalParams{ID: "g1", FromBelt: "white", ToBelt: "yellow", ApprovedBy: "sensei", At: enrolled}

	g, err := Approve(res, p)
	require.NoError(t, err)
	assert.Equal(t, "yellow", g.ToBelt)
	assert.Equal(t, 16, g.CompletedLessons)
	assert.Len(t, g.Fingerprint, 64)
	assert.True(t, g.Verify())

	g.ToBelt = "black"
	assert.False(t, g.Verify(), "tampering changes the fingerprint")
}

func TestApprove_NotEligible(t *testing.T) {
	in := eligibleInput()
	in.Activities = nil
	res := Calculate(in)

	_, err := Approve(res, ApprovalParams{ID: "g1", ToBelt: "yellow", ApprovedBy: "sensei"})

	require.Error(t, err)
	assert.True(t, shared.IsNotEligible(err))
	assert.Contains(t, err.Error(), "average_quality")
	assert.Contains(t, err.Error(), "total_repetitions")
}

func TestApprove_RequiresApprover(t *testing.T) {
	_, err := Approve(Calculate(eligibleInput()), ApprovalParams{ToBelt: "yellow"})
	assert.True(t, shared.IsValidation(err))
}

func TestCurrentBelt(t *testing.T) {
	assert.Equal(t, "white", CurrentBelt(nil, "white"))
	assert.Equal(t, "yellow", CurrentBelt(&BeltGraduation{ToBelt: "yellow"}, "white"))
}
