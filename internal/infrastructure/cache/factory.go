package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/adsync/backend/internal/infrastructure/config"
)

// PartitionLockerFactory creates partition lockers based on configuration
type PartitionLockerFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// PartitionLockerFactoryOption is a functional option for configuring the factory
type PartitionLockerFactoryOption func(*PartitionLockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) PartitionLockerFactoryOption {
	return func(f *PartitionLockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory locker when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) PartitionLockerFactoryOption {
	return func(f *PartitionLockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewPartitionLockerFactory creates a new factory
func NewPartitionLockerFactory(cfg config.RedisConfig, opts ...PartitionLockerFactoryOption) *PartitionLockerFactory {
	f := &PartitionLockerFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateRedisLocker creates a Redis-backed locker
func (f *PartitionLockerFactory) CreateRedisLocker() (PartitionLocker, error) {
	locker, err := NewRedisPartitionLocker(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis partition locker: %w", err)
	}
	return locker, nil
}

// CreateLocker tries Redis first and falls back to the in-memory locker when allowed
func (f *PartitionLockerFactory) CreateLocker() (PartitionLocker, error) {
	if f.redisConfig.Host == "" {
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis host not configured and in-memory fallback disabled")
		}
		f.logger.Info("Redis not configured, using in-memory partition locker")
		return NewInMemoryPartitionLocker(), nil
	}

	locker, err := f.CreateRedisLocker()
	if err == nil {
		f.logger.Info("Using Redis partition locker")
		return locker, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for partition locks but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory partition locker. "+
		"Claims are then only serialised inside this process.",
		zap.Error(err),
	)
	return NewInMemoryPartitionLocker(), nil
}
