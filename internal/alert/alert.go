package alert

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/order-reconciler/internal/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Kind string

const (
	// KindIntegrity: a ledger rejected commit/release arithmetic.
	KindIntegrity Kind = "integrity"
	// KindStateConflict: an event disagreed with the recorded state.
	KindStateConflict Kind = "state_conflict"
	// KindRefundRequired: money was captured for an order that is cancelled.
	KindRefundRequired Kind = "refund_required"
	// KindUnknownOrder: an event referenced an order that does not exist.
	KindUnknownOrder Kind = "unknown_order"
	// KindDeliveryFailed: an event was acknowledged without being applied
	// because storage failed; it needs to be replayed.
	KindDeliveryFailed Kind = "delivery_failed"
)

type Alert struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	OrderID   string    `json:"order_id"`
	Operation string    `json:"operation"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	Save(ctx context.Context, a Alert) error
}

// Reporter records conditions that need an operator. Raise never fails:
// if the store is unavailable the alert is still logged and counted.
type Reporter struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewReporter(store Store, log zerolog.Logger) *Reporter {
	return &Reporter{store: store, log: log.With().Str("component", "alert").Logger(), now: time.Now}
}

func (r *Reporter) Raise(ctx context.Context, kind Kind, orderID, op string, cause error) Alert {
	a := Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		OrderID:   orderID,
		Operation: op,
		CreatedAt: r.now(),
	}
	if cause != nil {
		a.Detail = cause.Error()
	}
	metrics.ReconciliationAlerts.WithLabelValues(string(kind)).Inc()
	r.log.Error().
		Str("alert_id", a.ID).
		Str("kind", string(kind)).
		Str("order_id", orderID).
		Str("op", op).
		Err(cause).
		Msg("reconciliation alert")

	if r.store != nil {
		if err := r.store.Save(context.WithoutCancel(ctx), a); err != nil {
			r.log.Error().Err(err).Str("alert_id", a.ID).Msg("persist alert")
		}
	}
	return a
}

type MemoryStore struct {
	mu     sync.Mutex
	alerts []Alert
}

func (s *MemoryStore) Save(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *MemoryStore) List() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Alert(nil), s.alerts...)
}

func (s *MemoryStore) ByKind(kind Kind) []Alert {
	var out []Alert
	for _, a := range s.List() {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type PostgresStore struct{ DB *pgxpool.Pool }

func (s *PostgresStore) Save(ctx context.Context, a Alert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO reconciliation_alerts(id, kind, order_id, operation, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, string(a.Kind), a.OrderID, a.Operation, a.Detail, a.CreatedAt)
	return errors.Wrap(err, "insert alert")
}
