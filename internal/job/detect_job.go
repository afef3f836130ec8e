package job

import (
	"context"
	"time"

	"github.com/railsense/railsense/internal/detect"
	"github.com/railsense/railsense/internal/repo"
)

// DetectJob periodically re-scores the tail of the data so results keep up
// with ongoing ingestion. The window reaches back far enough to refit the
// per-sensor models from scratch.
type DetectJob struct {
	detector *detect.Detector
	readings *repo.ReadingRepo
	lookback time.Duration
}

func NewDetectJob(detector *detect.Detector, readings *repo.ReadingRepo, lookback time.Duration) *DetectJob {
	return &DetectJob{detector: detector, readings: readings, lookback: lookback}
}

func (j *DetectJob) Name() string {
	return "detect"
}

func (j *DetectJob) Run(ctx context.Context) error {
	latest, err := j.readings.LatestTs(ctx)
	if err != nil {
		return err
	}
	if latest.IsZero() {
		return nil
	}
	_, err = j.detector.Run(ctx, latest.Add(-j.lookback), latest)
	return err
}
