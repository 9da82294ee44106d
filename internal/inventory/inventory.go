package inventory

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound          = errors.New("inventory record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("inventory ledger in invalid state")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Record is one (product, location) row. 0 <= Reserved <= OnHand always holds.
type Record struct {
	ProductID string    `json:"product_id"`
	Location  string    `json:"location"`
	OnHand    int       `json:"on_hand"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r Record) Available() int { return r.OnHand - r.Reserved }

// Store mutates inventory rows with single-row atomic updates. Operations on
// the same key are linearizable; different keys are independent.
type Store interface {
	Reserve(ctx context.Context, productID, location string, qty int) error
	Commit(ctx context.Context, productID, location string, qty int) error
	Release(ctx context.Context, productID, location string, qty int) error
	Restock(ctx context.Context, productID, location string, qty int) error
	Get(ctx context.Context, productID, location string) (Record, error)
	Upsert(ctx context.Context, productID, location string, onHand int) error
}
