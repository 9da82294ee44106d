package dispatch

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/order-reconciler/internal/metrics"
	"github.com/ariefcatur/order-reconciler/internal/orders"
	"github.com/ariefcatur/order-reconciler/internal/tracing"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// PaymentHandler is the order state machine's event entry point.
type PaymentHandler interface {
	HandlePaymentEvent(ctx context.Context, orderID string, succeeded bool, ref string)
}

// Deduper short-circuits redelivered events. It is an optimisation only:
// the state machine stays idempotent without it.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Dispatcher struct {
	handler PaymentHandler
	dedup   Deduper
	log     zerolog.Logger
}

func New(handler PaymentHandler, dedup Deduper, log zerolog.Logger) *Dispatcher {
	if dedup == nil {
		dedup = NewMemoryDeduper()
	}
	return &Dispatcher{handler: handler, dedup: dedup, log: log.With().Str("component", "dispatch").Logger()}
}

// HandleMessage is the kafka consumer handler. It always returns nil so the
// offset is committed: poison messages are logged, not redelivered forever.
func (d *Dispatcher) HandleMessage(ctx context.Context, m kafkago.Message) error {
	ctx = tracing.ExtractKafka(ctx, m.Headers)
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		metrics.EventsConsumed.WithLabelValues("poison").Inc()
		d.log.Error().Err(err).
			Str("topic", m.Topic).Int("partition", m.Partition).Int64("offset", m.Offset).
			Msg("undecodable event dropped")
		return nil
	}
	d.Deliver(ctx, env)
	return nil
}

// Deliver applies one envelope. Like HandleMessage it never fails.
func (d *Dispatcher) Deliver(ctx context.Context, env orders.Envelope) {
	p, err := orders.DecodePaymentResult(env)
	if err != nil {
		metrics.EventsConsumed.WithLabelValues("poison").Inc()
		d.log.Error().Err(err).Str("event_id", env.EventID).Str("event_type", env.EventType).Msg("invalid event dropped")
		return
	}

	seen, err := d.dedup.Seen(ctx, env.EventID)
	if err != nil {
		d.log.Warn().Err(err).Str("event_id", env.EventID).Msg("dedup lookup failed")
	}
	if seen {
		metrics.EventsConsumed.WithLabelValues("duplicate").Inc()
		d.log.Debug().Str("event_id", env.EventID).Str("order_id", p.OrderID).Msg("duplicate event skipped")
		return
	}

	d.handler.HandlePaymentEvent(ctx, p.OrderID, p.Succeeded, p.TransactionRef)
	metrics.EventsConsumed.WithLabelValues("delivered").Inc()

	if err := d.dedup.Mark(ctx, env.EventID); err != nil {
		d.log.Warn().Err(err).Str("event_id", env.EventID).Msg("dedup mark failed")
	}
}
