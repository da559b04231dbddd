package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/config"
	"github.com/indexvault-go/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "indexvault:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds locks as SETNX keys with a TTL, so a crashed holder
// cannot block the lifecycle forever.
type RedisLocker struct {
	client *redis.Client
	opts   Options
	logger logger.Logger
}

func NewRedisLocker(client *redis.Client, opts Options, log logger.Logger) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisLocker{client: client, opts: opts, logger: log}
}

func NewRedisLockerFromConfig(cfg config.LockConfig, opts Options, log logger.Logger) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisLocker(client, opts, log), nil
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (ports.Lock, error) {
	key := redisKeyPrefix + name
	token := uuid.New().String()

	err := poll(ctx, l.opts, func(ctx context.Context) (bool, error) {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return false, fmt.Errorf("redis lock error: %w", err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("Acquired redis lock", "key", key, "ttl", l.opts.TTL)
	return &redisLock{client: l.client, key: key, token: token, logger: l.logger}, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
	logger logger.Logger
}

func (r *redisLock) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release redis lock: %w", err)
	}
	if deleted == 0 {
		r.logger.Warn("Redis lock expired before release", "key", r.key)
	}
	return nil
}
