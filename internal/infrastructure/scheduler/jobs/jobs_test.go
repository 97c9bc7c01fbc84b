package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/progression-engine/internal/application/command"
	"github.com/dojo-hub/progression-engine/internal/application/query"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/internal/infrastructure/persistence/memory"
)

type fakeRanking struct {
	rebuilt map[string][]query.RankedStudent
	fail    string
}

func (f *fakeRanking) Rebuild(_ context.Context, org string, entries []query.RankedStudent) error {
	if org == f.fail {
		return errors.New("redis down")
	}
	if f.rebuilt == nil {
		f.rebuilt = make(map[string][]query.RankedStudent)
	}
	f.rebuilt[org] = entries
	return nil
}

func addStudent(t *testing.T, store *memory.Store, id, org string, xp int) {
	t.Helper()
	st, err := student.NewStudent(student.NewStudentParams{ID: id, OrganizationID: org})
	require.NoError(t, err)
	st.TotalXP = student.XP(xp)
	require.NoError(t, store.Students().Create(context.Background(), st))
}

func TestRebuildRankingJob(t *testing.T) {
	store := memory.New()
	addStudent(t, store, "a", "org1", 100)
	addStudent(t, store, "b", "org1", 400)
	addStudent(t, store, "c", "org1", 250)
	addStudent(t, store, "d", "org2", 50)

	ranking := &fakeRanking{fail: "org2"}
	job := NewRebuildRankingJob(store.Students(), ranking, []string{"org1", "org2"}, 2, nil)

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "org2")

	require.Len(t, ranking.rebuilt["org1"], 2)
	assert.Equal(t, query.RankedStudent{StudentID: "b", TotalXP: 400}, ranking.rebuilt["org1"][0])
	assert.Equal(t, "c", ranking.rebuilt["org1"][1].StudentID)

	_, err = job.RebuildOrganization(context.Background(), "")
	assert.Error(t, err)
}

type fakeRecorder struct {
	calls []string
	fail  string
}

func (f *fakeRecorder) RecordDegrees(_ context.Context, cmd command.RecordDegreeCommand) (*command.RecordDegreeResult, error) {
	f.calls = append(f.calls, cmd.StudentID)
	if cmd.StudentID == f.fail {
		return nil, errors.New("requirements unreadable")
	}
	return &command.RecordDegreeResult{Recorded: []int{1}}, nil
}

func TestBackfillDegreesJob(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, e := range []student.Enrollment{
		{ID: "e1", StudentID: "s1", CourseID: "c1", Status: student.EnrollmentActive},
		{ID: "e2", StudentID: "s2", CourseID: "c1", Status: student.EnrollmentActive},
		{ID: "e3", StudentID: "s3", CourseID: "c1", Status: student.EnrollmentCancelled},
		{ID: "e4", StudentID: "s4", CourseID: "c2", Status: student.EnrollmentActive},
	} {
		e := e
		require.NoError(t, store.Enrollments().Create(ctx, &e))
	}

	recorder := &fakeRecorder{fail: "s2"}
	job := NewBackfillDegreesJob(store.Enrollments(), recorder, []string{"c1"}, nil)

	stats, err := job.BackfillCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, BackfillStats{Enrollments: 2, Recorded: 1, Failed: 1}, stats)
	assert.ElementsMatch(t, []string{"s1", "s2"}, recorder.calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, job.Run(cancelled), context.Canceled)
}
