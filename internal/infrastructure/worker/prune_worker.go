package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner removes stored artifacts older than a cutoff
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// PruneWorker enforces a retention window on archived exports
type PruneWorker struct {
	tickLoop
	pruner    Pruner
	retention time.Duration
	now       func() time.Time
}

// NewPruneWorker creates a worker that deletes archive files older than retention
func NewPruneWorker(pruner Pruner, interval, retention time.Duration, logger *zap.Logger) *PruneWorker {
	w := &PruneWorker{
		pruner:    pruner,
		retention: retention,
		now:       time.Now,
	}
	w.tickLoop = tickLoop{
		name:       "archive_prune",
		interval:   interval,
		runOnStart: true,
		task:       w.prune,
		logger:     logger,
	}
	return w
}

func (w *PruneWorker) prune(ctx context.Context) {
	cutoff := w.now().Add(-w.retention)
	removed, err := w.pruner.Prune(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("Archive prune failed", zap.Int("removed", removed), zap.Error(err))
		return
	}
	if removed > 0 {
		w.logger.Info("Archive pruned", zap.Int("removed", removed), zap.Time("cutoff", cutoff))
	}
}
