package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job " + j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func mustInterval(t *testing.T, d time.Duration) *IntervalSchedule {
	t.Helper()
	s, err := NewIntervalSchedule(d)
	require.NoError(t, err)
	return s
}

func TestRegister_Validation(t *testing.T) {
	s := New(DefaultConfig())
	assert.ErrorIs(t, s.Register(nil, mustInterval(t, time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&countingJob{name: "a"}, mustInterval(t, time.Second)))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, mustInterval(t, time.Second)), ErrJobAlreadyExists)

	_, err := NewIntervalSchedule(0)
	assert.Error(t, err)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := New(Config{TickInterval: 5 * time.Millisecond, RunOnStart: true})
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, mustInterval(t, 20*time.Millisecond)))

	var mu sync.Mutex
	var results []JobResult
	s.OnJobComplete(func(r JobResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, results)
	assert.True(t, results[0].Success)
	assert.Equal(t, "tick", results[0].JobName)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, "@every 20ms", infos[0].Schedule)
	assert.EqualValues(t, job.runs.Load(), infos[0].RunCount)
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := New(Config{TickInterval: 2 * time.Millisecond, RunOnStart: true})
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, mustInterval(t, time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, job.runs.Load())

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	require.NoError(t, s.Stop())
}

func TestRunNow(t *testing.T) {
	boom := errors.New("boom")
	s := New(DefaultConfig())
	job := &countingJob{name: "manual", err: boom}
	require.NoError(t, s.Register(job, mustInterval(t, time.Hour)))

	res, err := s.RunNow(context.Background(), "manual")
	assert.ErrorIs(t, err, boom)
	assert.False(t, res.Success)
	assert.True(t, res.Manual)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.EqualValues(t, 1, infos[0].FailCount)
	require.NotNil(t, infos[0].LastResult)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
