package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("payment not found")
	ErrAlreadyFinalized  = errors.New("payment already finalized")
	ErrInvalidTransition = errors.New("invalid payment transition")
	ErrDuplicate         = errors.New("payment already exists for order")
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSuccess  Status = "SUCCESS"
	StatusFailed   Status = "FAILED"
	StatusRefunded Status = "REFUNDED"
)

type Payment struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	Amount         decimal.Decimal `json:"amount"`
	Status         Status          `json:"status"`
	TransactionRef *string         `json:"transaction_ref,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Open builds the PENDING payment created together with its order.
func Open(orderID string, amount decimal.Decimal, now time.Time) Payment {
	return Payment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Change is a guarded status update. Ref and PaidAt are left as they are
// when nil.
type Change struct {
	From   Status
	To     Status
	Ref    *string
	PaidAt *time.Time
}

type Store interface {
	Insert(ctx context.Context, p Payment) error
	Get(ctx context.Context, orderID string) (Payment, error)
	// CompareAndSet applies c only if the payment is in c.From. It returns the
	// stored payment either way and whether the change was applied.
	CompareAndSet(ctx context.Context, orderID string, c Change) (Payment, bool, error)
}
