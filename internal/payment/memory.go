package payment

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type MemoryStore struct {
	mu      sync.Mutex
	byOrder map[string]Payment
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byOrder: map[string]Payment{}, now: time.Now}
}

func (s *MemoryStore) Insert(_ context.Context, p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byOrder[p.OrderID]; ok {
		return errors.Wrapf(ErrDuplicate, "order %s", p.OrderID)
	}
	s.byOrder[p.OrderID] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orderID string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byOrder[orderID]
	if !ok {
		return Payment{}, errors.Wrapf(ErrNotFound, "order %s", orderID)
	}
	return p, nil
}

func (s *MemoryStore) CompareAndSet(_ context.Context, orderID string, c Change) (Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byOrder[orderID]
	if !ok {
		return Payment{}, false, errors.Wrapf(ErrNotFound, "order %s", orderID)
	}
	if p.Status != c.From {
		return p, false, nil
	}
	p.Status = c.To
	if c.Ref != nil {
		ref := *c.Ref
		p.TransactionRef = &ref
	}
	if c.PaidAt != nil {
		at := *c.PaidAt
		p.PaidAt = &at
	}
	p.UpdatedAt = s.now()
	s.byOrder[orderID] = p
	return p, true, nil
}
