package cron

import (
	"context"
	"time"

	"github.com/angelmondragon/smm-storefront/pkg/redis"
)

// Lock coordinates exclusive job runs across cron workers.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory returns a fresh lock for one run of the named job.
type LockFactory func(name string, ttl time.Duration) (Lock, error)

// RedisLocks backs job locks with SETNX leases under "cron:<env>:<job>".
func RedisLocks(client *redis.Client, env string) LockFactory {
	return func(name string, ttl time.Duration) (Lock, error) {
		return redis.NewLock(client, "cron:"+env+":"+name, ttl)
	}
}
