package dispatch

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/order-reconciler/internal/kafka"
	"github.com/ariefcatur/order-reconciler/internal/orders"
	"github.com/ariefcatur/order-reconciler/internal/tracing"
	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher hands a payment result to the bus. A nil error means the event
// is durable and will be delivered at least once.
type Publisher interface {
	Publish(ctx context.Context, env orders.Envelope) error
}

// KafkaPublisher writes envelopes keyed by order id so one order's events
// share a partition.
type KafkaPublisher struct {
	producer *kafka.Producer
}

func NewKafkaPublisher(p *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: p}
}

func (k *KafkaPublisher) Publish(ctx context.Context, env orders.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	headers := tracing.InjectKafka(ctx, []kafkago.Header{
		{Key: "x-event-type", Value: []byte(env.EventType)},
		{Key: "x-event-version", Value: []byte("1")},
	})
	return k.producer.Publish(ctx, orders.PartitionKey(env.CorrelationID), value, headers...)
}
