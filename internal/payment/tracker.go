package payment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Tracker owns every payment status transition:
// PENDING -> SUCCESS | FAILED, SUCCESS -> REFUNDED.
type Tracker struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewTracker(store Store, log zerolog.Logger) *Tracker {
	return &Tracker{store: store, log: log.With().Str("component", "payment").Logger(), now: time.Now}
}

func (t *Tracker) Get(ctx context.Context, orderID string) (Payment, error) {
	return t.store.Get(ctx, orderID)
}

// RecordResult applies a gateway result. A repeated result reports
// changed=false with no error; a conflicting one returns ErrAlreadyFinalized.
func (t *Tracker) RecordResult(ctx context.Context, orderID string, succeeded bool, ref string) (Payment, bool, error) {
	c := Change{From: StatusPending, To: StatusFailed}
	if ref != "" {
		c.Ref = &ref
	}
	if succeeded {
		now := t.now()
		c.To = StatusSuccess
		c.PaidAt = &now
	}

	p, applied, err := t.store.CompareAndSet(ctx, orderID, c)
	if err != nil {
		return p, false, err
	}
	if applied {
		t.log.Info().Str("order_id", orderID).Str("status", string(p.Status)).Msg("payment result recorded")
		return p, true, nil
	}
	if p.Status == c.To || (succeeded && p.Status == StatusRefunded) {
		return p, false, nil
	}
	return p, false, errors.Wrapf(ErrAlreadyFinalized, "order %s payment is %s, got %s", orderID, p.Status, c.To)
}

// MarkAbandoned fails a still-pending payment whose order was cancelled, so a
// late success surfaces as a conflict instead of silently confirming.
func (t *Tracker) MarkAbandoned(ctx context.Context, orderID string) (Payment, error) {
	p, applied, err := t.store.CompareAndSet(ctx, orderID, Change{From: StatusPending, To: StatusFailed})
	if err != nil {
		return p, err
	}
	if !applied && p.Status != StatusFailed {
		return p, errors.Wrapf(ErrAlreadyFinalized, "order %s payment is %s", orderID, p.Status)
	}
	return p, nil
}

func (t *Tracker) Refund(ctx context.Context, orderID, ref string) (Payment, error) {
	c := Change{From: StatusSuccess, To: StatusRefunded}
	if ref != "" {
		c.Ref = &ref
	}
	p, applied, err := t.store.CompareAndSet(ctx, orderID, c)
	if err != nil {
		return p, err
	}
	if !applied && p.Status != StatusRefunded {
		return p, errors.Wrapf(ErrInvalidTransition, "refund from %s", p.Status)
	}
	return p, nil
}
