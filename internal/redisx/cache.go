package redisx

import (
	"context"
	"fmt"

	"github.com/ariefcatur/order-reconciler/internal/orders"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StatusCache implements orders.StatusCache. Redis errors degrade to a miss.
type StatusCache struct {
	rdb redis.UniversalClient
	log zerolog.Logger
}

func NewStatusCache(rdb redis.UniversalClient, log zerolog.Logger) *StatusCache {
	return &StatusCache{rdb: rdb, log: log}
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (orders.Status, bool) {
	s, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Str("order_id", orderID).Msg("status cache get")
		}
		return "", false
	}
	st := orders.Status(s)
	return st, st.Valid()
}

func (c *StatusCache) Set(ctx context.Context, orderID string, status orders.Status) {
	if err := c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), string(status), TTLStatusCache).Err(); err != nil {
		c.log.Warn().Err(err).Str("order_id", orderID).Msg("status cache set")
	}
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) {
	if err := c.rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err(); err != nil {
		c.log.Warn().Err(err).Str("order_id", orderID).Msg("status cache invalidate")
	}
}
