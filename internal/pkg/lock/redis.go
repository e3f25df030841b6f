package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrEmptyKey = errors.New("lock key must not be empty")

type RedisOptions struct {
	Prefix     string
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:     "parcelmarket:lock:",
		Expiry:     10 * time.Second,
		Tries:      64,
		RetryDelay: 50 * time.Millisecond,
	}
}

// RedisLocker is a RedLock based Locker shared by every API instance pointing at the same Redis.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts RedisOptions
	log  *zap.Logger
}

func NewRedisLocker(client goredislib.UniversalClient, opts RedisOptions, log *zap.Logger) *RedisLocker {
	if opts.Tries < 1 {
		opts.Tries = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
		log:  log.Named("lock"),
	}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return ErrEmptyKey
	}
	mutex := l.rs.NewMutex(
		l.opts.Prefix+key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	defer func() {
		// a background context so a cancelled request still frees the lock
		if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
			l.log.Warn("release lock failed", zap.String("key", key), zap.Bool("ok", ok), zap.Error(err))
		}
	}()

	return fn(ctx)
}
