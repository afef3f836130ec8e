// Package schedule drives the background jobs on cron expressions: the
// periodic detection re-score and the stale plot sweep. A job still busy
// when its next tick fires is skipped, not queued.
package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Job is one schedulable unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type CronScheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

// NewCronScheduler builds a scheduler accepting standard 5-field cron specs.
func NewCronScheduler() *CronScheduler {
	return &CronScheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
	}
}

func (s *CronScheduler) AddJob(job Job, spec string) error {
	if _, err := s.cron.AddFunc(spec, s.guarded(job)); err != nil {
		return fmt.Errorf("schedule %s on %q: %w", job.Name(), spec, err)
	}
	logutil.GetLogger(context.Background()).Info("job scheduled",
		zap.String("job", job.Name()), zap.String("spec", spec))
	return nil
}

// Start begins firing ticks. ctx is handed to every job run; cancelling it
// makes running jobs wind down, Stop then waits for them.
func (s *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	s.cron.Start()
}

func (s *CronScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// guarded serializes a job with itself: ticks arriving while a previous run
// is still active are dropped. A detect re-score over a large window can
// outlast its cron interval, and overlapping runs would race on the result
// window they replace.
func (s *CronScheduler) guarded(job Job) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logutil.GetLogger(s.runCtx()).Warn("previous run still active, skipping tick",
				zap.String("job", job.Name()))
			return
		}
		defer running.Store(false)

		ctx := s.runCtx()
		logger := logutil.GetLogger(ctx).With(zap.String("job", job.Name()))
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			logger.Error("job failed", zap.Error(err), zap.Duration("took", time.Since(start)))
			return
		}
		logger.Info("job done", zap.Duration("took", time.Since(start)))
	}
}

func (s *CronScheduler) runCtx() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
