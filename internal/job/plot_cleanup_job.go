package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/railsense/railsense/internal/filestore"
)

// PlotCleanupJob deletes plot images past their TTL. Conversation turns
// referencing them are gone by then anyway; sessions expire much sooner.
type PlotCleanupJob struct {
	store filestore.Store
	ttl   time.Duration
}

func NewPlotCleanupJob(store filestore.Store, ttl time.Duration) *PlotCleanupJob {
	return &PlotCleanupJob{store: store, ttl: ttl}
}

func (j *PlotCleanupJob) Name() string {
	return "plot_cleanup"
}

func (j *PlotCleanupJob) Run(ctx context.Context) error {
	keys, err := j.store.ListOlderThan(ctx, j.ttl)
	if err != nil {
		return err
	}
	var deleted int
	for _, key := range keys {
		if err := j.store.Delete(ctx, key); err != nil {
			logutil.GetLogger(ctx).Warn("delete plot failed", zap.String("key", key), zap.Error(err))
			continue
		}
		deleted++
	}
	if deleted > 0 {
		logutil.GetLogger(ctx).Info("stale plots removed", zap.Int("count", deleted))
	}
	return nil
}
