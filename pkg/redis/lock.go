package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lock is a SETNX lease with an owner token so only the holder can release it.
type Lock struct {
	client *Client
	key    string
	ttl    time.Duration
	owner  string
}

// NewLock builds a lock on the namespaced key for name.
func NewLock(client *Client, name string, ttl time.Duration) (*Lock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	return &Lock{client: client, key: client.LockKey(name), ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release frees the lock only if the owner value still matches.
func (l *Lock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	value, err := l.client.Get(ctx, l.key)
	if err != nil {
		if IsNil(err) {
			l.owner = ""
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		l.owner = ""
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	l.owner = ""
	return nil
}
