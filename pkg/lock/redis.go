package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const acquirePoll = 50 * time.Millisecond

// releaseScript deletes the key only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript extends the lease only when the caller still owns the key.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX plus an owner token.
type RedisLocker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client *redis.Client, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, logger: logger}
}

// Acquire polls SET NX until it wins, the wait elapses or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, key string, lease, wait time.Duration) (*Handle, error) {
	owner := uuid.New().String()
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.client.SetNX(ctx, key, owner, lease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Handle{Key: key, Owner: owner}, nil
		}
		if time.Now().After(deadline) {
			l.logger.Debug("lock wait exhausted", zap.String("key", key))
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePoll):
		}
	}
}

func (l *RedisLocker) Release(ctx context.Context, h *Handle) error {
	n, err := releaseScript.Run(ctx, l.client, []string{h.Key}, h.Owner).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *RedisLocker) Renew(ctx context.Context, h *Handle, lease time.Duration) error {
	n, err := renewScript.Run(ctx, l.client, []string{h.Key}, h.Owner, lease.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
