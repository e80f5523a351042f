package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockKeyPrefix = "adsync:lock:"

// releaseScript deletes the key only while it still carries the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisPartitionLocker implements PartitionLocker with SET NX PX and a token-checked release.
// It is suitable for deployments where several processes claim from the same queue.
type RedisPartitionLocker struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisPartitionLocker connects to Redis and verifies the connection
func NewRedisPartitionLocker(cfg RedisConfig) (*RedisPartitionLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisPartitionLockerWithClient(client, ""), nil
}

// NewRedisPartitionLockerWithClient creates a locker on an existing client
func NewRedisPartitionLockerWithClient(client *redis.Client, keyPrefix string) *RedisPartitionLocker {
	if keyPrefix == "" {
		keyPrefix = defaultLockKeyPrefix
	}
	return &RedisPartitionLocker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// TryLock sets the key with a fresh token if it does not exist
func (l *RedisPartitionLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lock{Key: key, Token: token}, nil
}

// Unlock deletes the key when the token still matches
func (l *RedisPartitionLocker) Unlock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	n, err := releaseScript.Run(ctx, l.client, []string{l.keyPrefix + lock.Key}, lock.Token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %q: %w", lock.Key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Close closes the Redis client
func (l *RedisPartitionLocker) Close() error {
	return l.client.Close()
}

// Client returns the underlying Redis client
func (l *RedisPartitionLocker) Client() *redis.Client {
	return l.client
}

var _ PartitionLocker = (*RedisPartitionLocker)(nil)
