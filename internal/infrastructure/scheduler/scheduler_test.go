package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs int32
	err  error
	wait chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	if j.wait != nil {
		select {
		case <-j.wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func TestDailySchedule_Next(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	s, err := ParseDaily("03:30")
	require.NoError(t, err)

	before := time.Date(2026, 5, 10, 1, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 5, 10, 3, 30, 0, 0, loc), s.Next(before))

	exact := time.Date(2026, 5, 10, 3, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 5, 11, 3, 30, 0, 0, loc), s.Next(exact))

	_, err = ParseDaily("25:00")
	assert.Error(t, err)
}

func TestIntervalSchedule_Next(t *testing.T) {
	now := time.Date(2026, 5, 10, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(15*time.Minute), Every(15*time.Minute).Next(now))
	assert.Equal(t, "@every 15m0s", Every(15*time.Minute).String())
}

func TestScheduler_Register(t *testing.T) {
	s := New(Config{})
	job := &countingJob{name: "a"}

	require.NoError(t, s.Register(job, Every(time.Hour)))
	assert.ErrorIs(t, s.Register(job, Every(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, Every(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "b"}, nil), ErrNilSchedule)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := New(Config{Tick: 5 * time.Millisecond})
	job := &countingJob{name: "fast"}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&job.runs) >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	info := s.Jobs()
	require.Len(t, info, 1)
	assert.GreaterOrEqual(t, info[0].RunCount, int64(2))
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(Config{})
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	require.NoError(t, s.Register(failing, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "failing")
	assert.EqualError(t, err, "boom")
	assert.Equal(t, "failing", res.JobName)

	info := s.Jobs()
	assert.Equal(t, int64(1), info[0].FailCount)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := New(Config{Tick: 2 * time.Millisecond})
	slow := &countingJob{name: "slow", wait: make(chan struct{})}
	require.NoError(t, s.Register(slow, Every(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&slow.runs) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&slow.runs))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobBusy)

	close(slow.wait)
	require.NoError(t, s.Stop())
}
