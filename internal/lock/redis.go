package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"corebanking/internal/domain"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix        = "corebanking:lock:account:"
	redisRetryDelay  = 20 * time.Millisecond
	redisDriftFactor = 0.01
)

// Redis is a distributed Locker built on redsync, for running several ledger
// instances against one database.
type Redis struct {
	rs      *redsync.Redsync
	timeout time.Duration
	expiry  time.Duration
	logger  *zap.Logger
}

var _ Locker = (*Redis)(nil)

func NewRedis(client *goredislib.Client, timeout, expiry time.Duration, logger *zap.Logger) *Redis {
	return &Redis{
		rs:      redsync.New(goredis.NewPool(client)),
		timeout: timeout,
		expiry:  expiry,
		logger:  logger,
	}
}

func (r *Redis) Acquire(ctx context.Context, keys ...string) (Release, error) {
	ordered := orderKeys(keys)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tries := 1
	if r.timeout > 0 {
		tries = int(r.timeout/redisRetryDelay) + 1
	}

	held := make([]*redsync.Mutex, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			// The caller's context may already be done; unlock must still run.
			if ok, err := held[i].UnlockContext(context.Background()); !ok || err != nil {
				r.logger.Warn("Failed to release account lock",
					zap.String("lock_key", held[i].Name()), zap.Bool("unlock_ok", ok), zap.Error(err))
			}
		}
	}

	for _, key := range ordered {
		mutex := r.rs.NewMutex(
			keyPrefix+key,
			redsync.WithExpiry(r.expiry),
			redsync.WithTries(tries),
			redsync.WithRetryDelay(redisRetryDelay),
			redsync.WithDriftFactor(redisDriftFactor),
		)
		if err := mutex.LockContext(ctx); err != nil {
			r.logger.Debug("Failed to acquire account lock", zap.String("account", key), zap.Error(err))
			release()
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrLockTimeout, key, err)
		}
		held = append(held, mutex)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
