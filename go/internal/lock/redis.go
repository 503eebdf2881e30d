package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes the lock key only if it still holds the caller's token
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// ErrLockHeld is returned by TryLock when another holder owns the key
var ErrLockHeld = errors.New("lock held")

// RedisConfig holds the connection and lock parameters
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" env:"REDIS_DB"`
	TTL          time.Duration `yaml:"ttl" env:"REDIS_LOCK_TTL"`
	Timeout      time.Duration `yaml:"timeout" env:"REDIS_LOCK_TIMEOUT"`
	PollInterval time.Duration `yaml:"poll_interval" env:"REDIS_LOCK_POLL"`
}

// RedisLocker is a Locker shared by several server instances using SETNX with
// a TTL and a Lua-based conditional unlock
type RedisLocker struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	cfg      RedisConfig
}

// NewRedis connects to Redis and verifies connectivity
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisLocker, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisLocker{
		rdb:      rdb,
		unlockSc: redis.NewScript(unlockLua),
		cfg:      cfg,
	}, nil
}

func lockKey(key string) string {
	return "lock:" + key
}

// TryLock makes a single SETNX attempt
func (r *RedisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := r.rdb.SetNX(ctx, lk, token, r.cfg.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Background context so unlock works after the caller's ctx is done.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.unlockSc.Run(unlockCtx, r.rdb, []string{lk}, token).Err()
		})
	}, nil
}

// Lock implements Locker by polling TryLock until the configured timeout
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	acquireCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		unlock, err := r.TryLock(acquireCtx, key)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		select {
		case <-acquireCtx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}

// Ping checks the Redis connection
func (r *RedisLocker) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the client
func (r *RedisLocker) Close() error {
	return r.rdb.Close()
}

var _ Locker = (*RedisLocker)(nil)
