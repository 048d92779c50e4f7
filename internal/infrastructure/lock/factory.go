package lock

import (
	"context"
	"fmt"
	"time"

	appintegration "github.com/mobilsoft/edire/internal/application/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory builds the run lock for the worker
type Factory struct {
	redisConfig   config.RedisConfig
	ttl           time.Duration
	owner         string
	logger        *zap.Logger
	allowFallback bool
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithFactoryLogger sets the logger handed to the created lock
func WithFactoryLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithLocalFallback controls whether an unreachable Redis degrades to a LocalRunLock
func WithLocalFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowFallback = allow
	}
}

// WithLockOwner sets the owner label stored with each lease
func WithLockOwner(owner string) FactoryOption {
	return func(f *Factory) {
		f.owner = owner
	}
}

// NewFactory creates a factory; fallback to a local lock is allowed by default
func NewFactory(cfg config.RedisConfig, ttl time.Duration, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:   cfg,
		ttl:           ttl,
		logger:        zap.NewNop(),
		allowFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns a Redis-backed lock and its client, or a LocalRunLock and a nil
// client when Redis is unreachable and fallback is allowed.
func (f *Factory) Create(ctx context.Context) (appintegration.RunLock, *redis.Client, error) {
	client, err := NewRedisClient(ctx, f.redisConfig)
	if err == nil {
		f.logger.Info("using redis run lock", zap.String("addr", f.redisConfig.Addr()))
		return NewRedisRunLock(client, f.ttl, WithOwner(f.owner), WithLogger(f.logger)), client, nil
	}
	if !f.allowFallback {
		return nil, nil, fmt.Errorf("redis required for run locking but unavailable: %w", err)
	}
	f.logger.Warn("redis unavailable, falling back to in-process run lock",
		zap.Error(err),
	)
	return NewLocalRunLock(), nil, nil
}
