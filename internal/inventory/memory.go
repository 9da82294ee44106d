package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type key struct{ product, location string }

type row struct {
	mu  sync.Mutex
	rec Record
}

// MemoryStore keeps one mutex per key, so unrelated keys never contend.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[key]*row
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[key]*row{}, now: time.Now}
}

func (s *MemoryStore) lookup(productID, location string) (*row, error) {
	s.mu.RLock()
	r, ok := s.rows[key{productID, location}]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s@%s", productID, location)
	}
	return r, nil
}

func (s *MemoryStore) update(productID, location string, fn func(*Record) error) error {
	r, err := s.lookup(productID, location)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.rec
	if err := fn(&next); err != nil {
		return errors.Wrapf(err, "%s@%s", productID, location)
	}
	next.UpdatedAt = s.now()
	r.rec = next
	return nil
}

func (s *MemoryStore) Reserve(_ context.Context, productID, location string, qty int) error {
	return s.update(productID, location, func(rec *Record) error {
		if rec.Available() < qty {
			return ErrInsufficientStock
		}
		rec.Reserved += qty
		return nil
	})
}

func (s *MemoryStore) Commit(_ context.Context, productID, location string, qty int) error {
	return s.update(productID, location, func(rec *Record) error {
		if rec.Reserved < qty {
			return ErrInvalidState
		}
		rec.OnHand -= qty
		rec.Reserved -= qty
		return nil
	})
}

func (s *MemoryStore) Release(_ context.Context, productID, location string, qty int) error {
	return s.update(productID, location, func(rec *Record) error {
		if rec.Reserved < qty {
			return ErrInvalidState
		}
		rec.Reserved -= qty
		return nil
	})
}

func (s *MemoryStore) Restock(_ context.Context, productID, location string, qty int) error {
	return s.update(productID, location, func(rec *Record) error {
		rec.OnHand += qty
		return nil
	})
}

func (s *MemoryStore) Get(_ context.Context, productID, location string) (Record, error) {
	r, err := s.lookup(productID, location)
	if err != nil {
		return Record{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec, nil
}

func (s *MemoryStore) Upsert(_ context.Context, productID, location string, onHand int) error {
	s.mu.Lock()
	r, ok := s.rows[key{productID, location}]
	if !ok {
		r = &row{rec: Record{ProductID: productID, Location: location}}
		s.rows[key{productID, location}] = r
	}
	s.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if onHand < r.rec.Reserved {
		return errors.Wrapf(ErrInvalidState, "on hand %d below reserved %d", onHand, r.rec.Reserved)
	}
	r.rec.OnHand = onHand
	r.rec.UpdatedAt = s.now()
	return nil
}
