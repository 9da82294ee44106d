package orders

import "context"

// StatusCache is a read-through cache for order status. Only reads fill it;
// transitions invalidate the entry, so two racing transitions cannot leave
// the older status behind. Misses and write failures are tolerated; the
// repository stays the source of truth.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (Status, bool)
	Set(ctx context.Context, orderID string, status Status)
	Invalidate(ctx context.Context, orderID string)
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (Status, bool) { return "", false }
func (nopCache) Set(context.Context, string, Status)        {}
func (nopCache) Invalidate(context.Context, string)         {}
