package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/order-reconciler/internal/payment"
	"github.com/pkg/errors"
)

type MemoryRepo struct {
	mu         sync.RWMutex
	orders     map[string]*Order
	byExternal map[string]string
	payments   payment.Store
	now        func() time.Time
}

// NewMemoryRepo writes payments through to the given store so the tracker
// sees the PENDING payment created with each order.
func NewMemoryRepo(payments payment.Store) *MemoryRepo {
	return &MemoryRepo{
		orders:     map[string]*Order{},
		byExternal: map[string]string{},
		payments:   payments,
		now:        time.Now,
	}
}

func (r *MemoryRepo) Create(ctx context.Context, o *Order, p payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return errors.Errorf("order %s already exists", o.ID)
	}
	if o.ExternalID != "" {
		if _, ok := r.byExternal[o.ExternalID]; ok {
			return errors.Wrapf(ErrDuplicateExternalID, "external id %s", o.ExternalID)
		}
	}
	if err := r.payments.Insert(ctx, p); err != nil {
		return err
	}
	r.orders[o.ID] = o.clone()
	if o.ExternalID != "" {
		r.byExternal[o.ExternalID] = o.ID
	}
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", id)
	}
	return o.clone(), nil
}

func (r *MemoryRepo) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	r.mu.RLock()
	id, ok := r.byExternal[externalID]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "external id %s", externalID)
	}
	return r.Get(ctx, id)
}

func (r *MemoryRepo) CompareAndSetStatus(_ context.Context, id string, from, to Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, errors.Wrapf(ErrNotFound, "%s", id)
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = r.now()
	return true, nil
}

func (r *MemoryRepo) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]string, error) {
	r.mu.RLock()
	var stale []*Order
	for _, o := range r.orders {
		if o.Status == StatusPending && o.CreatedAt.Before(before) {
			stale = append(stale, o)
		}
	}
	r.mu.RUnlock()

	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	ids := make([]string, 0, len(stale))
	for _, o := range stale {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, o.ID)
	}
	return ids, nil
}
