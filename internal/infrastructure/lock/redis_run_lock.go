package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	appintegration "github.com/mobilsoft/edire/internal/application/integration"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "edire:run:"

// RedisRunLock serializes source runs across worker instances with a Redis lease.
// The lease is not refreshed, so the TTL must outlive the run budget.
type RedisRunLock struct {
	locker    *redislock.Client
	ttl       time.Duration
	keyPrefix string
	owner     string
	logger    *zap.Logger
}

// RedisRunLockOption configures a RedisRunLock
type RedisRunLockOption func(*RedisRunLock)

// WithKeyPrefix overrides the "edire:run:" key prefix
func WithKeyPrefix(prefix string) RedisRunLockOption {
	return func(l *RedisRunLock) {
		if prefix != "" {
			l.keyPrefix = prefix
		}
	}
}

// WithOwner records an owner label (hostname, pod name) as lock metadata
func WithOwner(owner string) RedisRunLockOption {
	return func(l *RedisRunLock) {
		l.owner = owner
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) RedisRunLockOption {
	return func(l *RedisRunLock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisRunLock creates a run lock over an existing client
func NewRedisRunLock(client redis.UniversalClient, ttl time.Duration, opts ...RedisRunLockOption) *RedisRunLock {
	l := &RedisRunLock{
		locker:    redislock.New(client),
		ttl:       ttl,
		keyPrefix: defaultKeyPrefix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisRunLock) key(sourceID string) string {
	return l.keyPrefix + sourceID
}

// Acquire obtains the lease for sourceID without waiting
func (l *RedisRunLock) Acquire(ctx context.Context, sourceID string) (func(context.Context) error, error) {
	lease, err := l.locker.Obtain(ctx, l.key(sourceID), l.ttl, &redislock.Options{
		RetryStrategy: redislock.NoRetry(),
		Metadata:      l.owner,
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", integration.ErrSourceBusy, sourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain run lock for %s: %w", sourceID, err)
	}

	return func(ctx context.Context) error {
		err := lease.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("run lock expired before release",
				zap.String("source_id", sourceID),
				zap.Duration("ttl", l.ttl),
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to release run lock for %s: %w", sourceID, err)
		}
		return nil
	}, nil
}

var _ appintegration.RunLock = (*RedisRunLock)(nil)
