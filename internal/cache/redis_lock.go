package cache

import (
	"context"
	"sync"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry out only if the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock is a SET NX PX lease that keeps a single poller active across
// instances. While held, the lease is renewed every refresh interval.
type RedisLock struct {
	rdb     *redis.Client
	key     string
	ttl     time.Duration
	refresh time.Duration
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{rdb: rdb, key: key, ttl: ttl, refresh: ttl / 3}
}

// WithRefresh overrides the renewal interval (ttl/3 by default).
func (l *RedisLock) WithRefresh(d time.Duration) *RedisLock {
	if d > 0 {
		l.refresh = d
	}
	return l
}

// TryLock returns ok=false without error when another holder has the key.
// The returned context is canceled once the lease can no longer be
// confirmed (taken over, expired or unreachable), and by unlock.
func (l *RedisLock) TryLock(ctx context.Context) (context.Context, func(), bool, error) {
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, nil, false, err
	}
	if !ok {
		return nil, nil, false, nil
	}

	held, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go l.keepAlive(held, cancel, token, stopped)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			cancel()
			<-stopped

			rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer rcancel()
			_ = releaseScript.Run(rctx, l.rdb, []string{l.key}, token).Err()
		})
	}
	return held, unlock, true, nil
}

func (l *RedisLock) keepAlive(ctx context.Context, lost context.CancelFunc, token string, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
		n, err := renewScript.Run(rctx, l.rdb, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil || n == 0 {
			if ctx.Err() != nil {
				return
			}
			logger.Component("redis-lock").WithError(err).WithField("key", l.key).Warn("poll lock lease lost")
			lost()
			return
		}
	}
}
