package lock

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DistributedLock is a try-lock shared across service instances.
type DistributedLock interface {
	// Acquire tries once to take key for ttl. It reports whether the lock was taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release gives up key if this holder still owns it.
	Release(ctx context.Context, key string) error
}

var errNotAcquired = errors.New("lock held elsewhere")

// releaseScript deletes the key only when the stored token is ours,
// so a holder whose TTL lapsed cannot free someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX EX lock with per-instance ownership tokens.
type RedisLock struct {
	client *redis.Client
	token  string
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client, token: uuid.NewString()}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "lock:"+key, l.token, ttl).Result()
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.client, []string{"lock:" + key}, l.token).Err()
}

// Lock blocks until key is acquired or ctx ends, retrying with exponential backoff.
func (l *RedisLock) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	op := func() (struct{}, error) {
		ok, err := l.Acquire(ctx, key, ttl)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if !ok {
			return struct{}{}, errNotAcquired
		}
		return struct{}{}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	if _, err := backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(0)); err != nil {
		return nil, err
	}

	return func() {
		// release with a fresh context: the caller's may already be cancelled
		_ = l.Release(context.Background(), key)
	}, nil
}
