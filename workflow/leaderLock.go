package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/config"
	"github.com/bsm/redislock"
)

// WithLeaderLock runs fn only on the instance holding the named redis
// lock. Losing the race is not an error: the holder does the work.
// Without a redis connection (local runs, tests) fn runs unguarded.
func WithLeaderLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	locker := config.GetRedisLock()
	if locker == nil {
		return fn(ctx)
	}

	lock, err := locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil
	}
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	return fn(ctx)
}
