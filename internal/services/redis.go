package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockTimeout is returned when a lock cannot be acquired before the context ends
var ErrLockTimeout = errors.New("timed out waiting for lock")

const lockPrefix = "quiz:lock:"

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	LockTTL  time.Duration
}

// RedisProvider reports Redis readiness and serves as a cross-instance lock
type RedisProvider struct {
	BaseProvider
	client  *redis.Client
	lockTTL time.Duration
	log     *zap.Logger
}

// NewRedisProvider connects to Redis and verifies the connection
func NewRedisProvider(ctx context.Context, cfg RedisConfig, log *zap.Logger) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	return &RedisProvider{
		BaseProvider: BaseProvider{serviceType: "redis"},
		client:       client,
		lockTTL:      ttl,
		log:          log,
	}, nil
}

// Lock acquires a lock on key with SET NX, retrying until ctx is done.
// The lock expires after the configured TTL if never released.
func (p *RedisProvider) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockPrefix + key
	token := uuid.NewString()

	backoff := 10 * time.Millisecond
	for {
		ok, err := p.client.SetNX(ctx, redisKey, token, p.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 200*time.Millisecond)
	}

	return func() {
		// Release on a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, p.client, []string{redisKey}, token).Err(); err != nil {
			p.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// HealthCheck verifies Redis connectivity
func (p *RedisProvider) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (p *RedisProvider) Close() error {
	return p.client.Close()
}
