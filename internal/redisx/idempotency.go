package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore maps a client idempotency key to the order it created.
type IdempotencyStore struct {
	rdb redis.UniversalClient
}

func NewIdempotencyStore(rdb redis.UniversalClient) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (string, bool) {
	id, err := s.rdb.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Result()
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

func (s *IdempotencyStore) Remember(ctx context.Context, key, orderID string) {
	_ = s.rdb.SetNX(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
}
