package inventory

import (
	"context"

	"github.com/ariefcatur/order-reconciler/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Ledger is the entry point other components use. It validates quantities
// and records every operation; atomicity comes from the Store.
type Ledger struct {
	store Store
	log   zerolog.Logger
}

func NewLedger(store Store, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, log: log.With().Str("component", "inventory").Logger()}
}

func (l *Ledger) Reserve(ctx context.Context, productID, location string, qty int) error {
	return l.apply(ctx, "reserve", productID, location, qty, l.store.Reserve)
}

func (l *Ledger) Commit(ctx context.Context, productID, location string, qty int) error {
	return l.apply(ctx, "commit", productID, location, qty, l.store.Commit)
}

func (l *Ledger) Release(ctx context.Context, productID, location string, qty int) error {
	return l.apply(ctx, "release", productID, location, qty, l.store.Release)
}

// Restock returns committed goods to on-hand stock.
func (l *Ledger) Restock(ctx context.Context, productID, location string, qty int) error {
	return l.apply(ctx, "restock", productID, location, qty, l.store.Restock)
}

func (l *Ledger) Get(ctx context.Context, productID, location string) (Record, error) {
	return l.store.Get(ctx, productID, location)
}

func (l *Ledger) Upsert(ctx context.Context, productID, location string, onHand int) error {
	if onHand < 0 {
		return errors.Wrapf(ErrInvalidQuantity, "on hand %d", onHand)
	}
	return l.store.Upsert(ctx, productID, location, onHand)
}

func (l *Ledger) apply(ctx context.Context, op, productID, location string, qty int,
	fn func(context.Context, string, string, int) error) error {
	if qty <= 0 {
		metrics.InventoryOps.WithLabelValues(op, "invalid").Inc()
		return errors.Wrapf(ErrInvalidQuantity, "%s %s@%s qty=%d", op, productID, location, qty)
	}
	err := fn(ctx, productID, location, qty)
	metrics.InventoryOps.WithLabelValues(op, metrics.Outcome(err)).Inc()

	ev := l.log.Debug()
	if errors.Is(err, ErrInvalidState) {
		ev = l.log.Error()
	}
	ev.Str("op", op).Str("product_id", productID).Str("location", location).
		Int("qty", qty).Err(err).Msg("inventory op")
	return err
}
