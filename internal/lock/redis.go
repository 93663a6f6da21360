package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkgerrors "rentshare-backend/internal/errors"
	"rentshare-backend/internal/logger"
)

const keyNamespace = "rentshare:item-lock"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another instance is left alone.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// refreshScript extends the key's TTL only while it still holds our token.
const refreshScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

type cmdable interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

type RedisOptions struct {
	// TTL bounds how long a crashed holder can keep an item locked. A live
	// holder extends it every TTL/3 until it unlocks.
	TTL time.Duration
	// Wait bounds acquisition.
	Wait time.Duration
	// RetryInterval is the pause between SETNX attempts.
	RetryInterval time.Duration
}

// RedisLocker is an ItemLocker shared by every instance that talks to the
// same Redis.
type RedisLocker struct {
	client cmdable
	opts   RedisOptions
}

func NewRedisLocker(client cmdable, opts RedisOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = 5 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 25 * time.Millisecond
	}
	return &RedisLocker{client: client, opts: opts}
}

func (l *RedisLocker) key(itemID int32) string {
	return fmt.Sprintf("%s:%d", keyNamespace, itemID)
}

func (l *RedisLocker) Lock(ctx context.Context, itemID int32) (func(), error) {
	key := l.key(itemID)
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.opts.Wait)
	defer cancel()

	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, pkgerrors.Wrap(pkgerrors.KindUnavailable, pkgerrors.ErrLockTimeout, ctx.Err().Error())
			}
			return nil, pkgerrors.Wrap(pkgerrors.KindUnavailable, err, "redis lock acquisition failed")
		}
		if ok {
			return l.unlockFunc(key, token, l.keepAlive(key, token)), nil
		}

		select {
		case <-ctx.Done():
			return nil, pkgerrors.Wrap(pkgerrors.KindUnavailable, pkgerrors.ErrLockTimeout, ctx.Err().Error())
		case <-ticker.C:
		}
	}
}

// keepAlive refreshes the key until the returned stop func is called. It
// gives up once the key no longer holds token.
func (l *RedisLocker) keepAlive(key, token string) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	interval := l.opts.TTL / 3
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ttlMillis := l.opts.TTL.Milliseconds()

	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			held, err := l.client.Eval(ctx, refreshScript, []string{key}, token, ttlMillis).Int64()
			cancel()
			if err != nil {
				logger.Warn("Failed to refresh item lock", "key", key, "error", err)
				continue
			}
			if held == 0 {
				logger.Warn("Item lock lost before unlock", "key", key)
				return
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}

func (l *RedisLocker) unlockFunc(key, token string, stopRefresh func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			stopRefresh()
			// The caller's context may already be done; release on a fresh one.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			logger.ExternalServiceCall("redis", "unlock", "key", key)
			err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err()
			logger.ExternalServiceResult("redis", "unlock", err, "key", key)
		})
	}
}
