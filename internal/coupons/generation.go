package coupons

import (
	"context"
	"strconv"

	"github.com/angelmondragon/smm-storefront/pkg/redis"
)

// Generations is a counter shared by every API replica. It moves whenever a
// coupon is issued so other replicas know their bloom snapshot is stale.
type Generations interface {
	Current(ctx context.Context) (int64, error)
	Bump(ctx context.Context) (int64, error)
}

type redisGenerations struct {
	client *redis.Client
	key    string
}

func NewRedisGenerations(client *redis.Client) Generations {
	return &redisGenerations{client: client, key: client.CacheKey("coupons", "generation")}
}

func (g *redisGenerations) Current(ctx context.Context) (int64, error) {
	raw, err := g.client.Get(ctx, g.key)
	if err != nil {
		if redis.IsNil(err) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (g *redisGenerations) Bump(ctx context.Context) (int64, error) {
	return g.client.IncrWithTTL(ctx, g.key, 0)
}
