package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/smm-storefront/pkg/redis"
)

const (
	ScopeStripe = "stripe-webhook"
	ScopeSquare = "square-webhook"
)

// IdempotencyGuard remembers provider event ids so a redelivered webhook is
// acknowledged without being applied twice.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark returns true when eventID was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete forgets eventID so the provider's retry is processed.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
