package lock

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/garyjia/expense-approval/internal/application/port"
)

//go:embed release.lua
var releaseScript string

// ErrLockTimeout is returned when a claim stays locked past the wait budget
var ErrLockTimeout = errors.New("timed out waiting for claim lock")

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// RedisConfig tunes the distributed lock
type RedisConfig struct {
	KeyPrefix string
	// TTL bounds how long a crashed holder can keep a claim locked
	TTL          time.Duration
	WaitTimeout  time.Duration
	RetryBackoff time.Duration
}

// RedisLocker serializes claims across processes with SET NX PX and a
// per-acquisition token; release deletes the key only if the token matches.
type RedisLocker struct {
	redis   *redis.Client
	script  *redis.Script
	cfg     RedisConfig
	logger  Logger
	newUUID func() string
}

// NewRedisLocker creates a distributed claim locker
func NewRedisLocker(client *redis.Client, cfg RedisConfig, logger Logger) *RedisLocker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "expense:claim-lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}

	return &RedisLocker{
		redis:   client,
		script:  redis.NewScript(releaseScript),
		cfg:     cfg,
		logger:  logger,
		newUUID: uuid.NewString,
	}
}

// Key returns the redis key guarding a claim
func (l *RedisLocker) Key(claimID int64) string {
	return fmt.Sprintf("%s%d", l.cfg.KeyPrefix, claimID)
}

// Lock polls SET NX until acquired, ctx is done, or the wait budget runs out
func (l *RedisLocker) Lock(ctx context.Context, claimID int64) (func(), error) {
	key := l.Key(claimID)
	token := l.newUUID()
	deadline := time.Now().Add(l.cfg.WaitTimeout)

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			l.logger.Error("redis SETNX failed", "key", key, "error", err)
			return nil, fmt.Errorf("failed to acquire lock for claim %d: %w", claimID, err)
		}
		if ok {
			l.logger.Debug("claim lock acquired", "key", key)
			return l.unlocker(key, token), nil
		}

		if time.Now().After(deadline) {
			l.logger.Warn("claim lock wait exceeded", "key", key, "wait", l.cfg.WaitTimeout)
			return nil, fmt.Errorf("claim %d: %w", claimID, ErrLockTimeout)
		}

		timer := time.NewTimer(l.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) unlocker(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true

		// release even when the caller's context is already cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		deleted, err := l.script.Run(ctx, l.redis, []string{key}, token).Int64()
		if err != nil {
			l.logger.Error("claim lock release failed", "key", key, "error", err)
			return
		}
		if deleted == 0 {
			l.logger.Warn("claim lock expired before release", "key", key)
			return
		}
		l.logger.Debug("claim lock released", "key", key)
	}
}

var _ port.ClaimLocker = (*RedisLocker)(nil)
