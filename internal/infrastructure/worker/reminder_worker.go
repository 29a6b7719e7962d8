package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ReminderSender re-notifies reviewers of idle pending claims
type ReminderSender interface {
	SendReminders(ctx context.Context, after time.Duration, limit int) (int, error)
}

// ReminderConfig holds configuration for the reminder worker
type ReminderConfig struct {
	Interval  time.Duration // How often to scan
	After     time.Duration // Idle time before a claim is reminded
	BatchSize int           // Max claims per scan
}

// DefaultReminderConfig returns default configuration
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Interval:  time.Hour,
		After:     24 * time.Hour,
		BatchSize: 100,
	}
}

// ReminderWorker periodically reminds reviewers about claims waiting on them
type ReminderWorker struct {
	tickLoop
	sender ReminderSender
	config ReminderConfig
}

// NewReminderWorker creates a new reminder worker. Zero config fields fall
// back to the defaults.
func NewReminderWorker(sender ReminderSender, config ReminderConfig, logger *zap.Logger) *ReminderWorker {
	defaults := DefaultReminderConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.After <= 0 {
		config.After = defaults.After
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	w := &ReminderWorker{sender: sender, config: config}
	w.tickLoop = tickLoop{
		name:     "reminder",
		interval: config.Interval,
		task:     w.scan,
		logger:   logger,
	}
	return w
}

func (w *ReminderWorker) scan(ctx context.Context) {
	sent, err := w.sender.SendReminders(ctx, w.config.After, w.config.BatchSize)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("Reminder scan failed", zap.Int("sent", sent), zap.Error(err))
		return
	}
	if sent > 0 {
		w.logger.Info("Reminders sent", zap.Int("count", sent))
	}
}
