package redisx

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Deduper remembers handled event ids for TTLDedup.
type Deduper struct {
	rdb     redis.UniversalClient
	service string
}

func NewDeduper(rdb redis.UniversalClient, service string) *Deduper {
	return &Deduper{rdb: rdb, service: service}
}

func (d *Deduper) key(eventID string) string {
	return fmt.Sprintf(KeyDedup, d.service, eventID)
}

func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	ok, err := Exists(ctx, d.rdb, d.key(eventID))
	return ok, errors.Wrap(err, "dedup exists")
}

func (d *Deduper) Mark(ctx context.Context, eventID string) error {
	return errors.Wrap(d.rdb.Set(ctx, d.key(eventID), "1", TTLDedup).Err(), "dedup mark")
}
