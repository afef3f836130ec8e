package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type blockingJob struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	runs    atomic.Int32
}

func newBlockingJob() *blockingJob {
	return &blockingJob{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	j.once.Do(func() { close(j.started) })
	<-j.release
	return nil
}

func TestGuardedSkipsOverlappingTick(t *testing.T) {
	s := NewCronScheduler()
	s.Start(context.Background())
	defer s.Stop()

	job := newBlockingJob()
	tick := s.guarded(job)

	done := make(chan struct{})
	go func() {
		tick()
		close(done)
	}()
	<-job.started

	// Second tick while the first run is still inside Run.
	tick()
	require.EqualValues(t, 1, job.runs.Load())

	close(job.release)
	<-done

	// With the first run finished the guard admits the next tick.
	tick()
	require.EqualValues(t, 2, job.runs.Load())
}

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := NewCronScheduler()
	require.Error(t, s.AddJob(newBlockingJob(), "not a cron spec"))
	require.NoError(t, s.AddJob(newBlockingJob(), "*/5 * * * *"))
}
