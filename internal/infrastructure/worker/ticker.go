package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tickLoop runs a task on a fixed interval until stopped. The task runs once
// immediately on start when runOnStart is set.
type tickLoop struct {
	name       string
	interval   time.Duration
	runOnStart bool
	task       func(ctx context.Context)
	logger     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (l *tickLoop) Name() string { return l.name }

func (l *tickLoop) Start(ctx context.Context) error {
	if l.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive, got %s", l.name, l.interval)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return fmt.Errorf("%s: already started", l.name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(runCtx, l.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight task to return
func (l *tickLoop) Stop() error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (l *tickLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("Worker loop started",
		zap.String("worker_name", l.name),
		zap.Duration("interval", l.interval))

	if l.runOnStart {
		l.task(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Worker loop stopped", zap.String("worker_name", l.name))
			return
		case <-ticker.C:
			l.task(ctx)
		}
	}
}
