package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/order-reconciler/internal/orders"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	orderID   string
	succeeded bool
	ref       string
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) HandlePaymentEvent(_ context.Context, orderID string, succeeded bool, ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{orderID, succeeded, ref})
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func envelope(t *testing.T, orderID string, ok bool) orders.Envelope {
	t.Helper()
	env, err := orders.NewPaymentResultEnvelope("test", "", orders.PaymentResultPayload{
		OrderID: orderID, Succeeded: ok, TransactionRef: "tx-" + orderID,
	})
	require.NoError(t, err)
	return env
}

func TestDeliverDeduplicatesByEventID(t *testing.T) {
	rec := &recorder{}
	d := New(rec, NewMemoryDeduper(), zerolog.Nop())
	env := envelope(t, "o1", true)

	d.Deliver(context.Background(), env)
	d.Deliver(context.Background(), env)
	d.Deliver(context.Background(), envelope(t, "o1", true))

	calls := rec.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, call{"o1", true, "tx-o1"}, calls[0])
}

func TestHandleMessageAcksPoison(t *testing.T) {
	rec := &recorder{}
	d := New(rec, nil, zerolog.Nop())

	assert.NoError(t, d.HandleMessage(context.Background(), kafkago.Message{Value: []byte("{not json")}))

	bad := envelope(t, "o1", true)
	bad.EventType = "OrderShipped"
	b, err := json.Marshal(bad)
	require.NoError(t, err)
	assert.NoError(t, d.HandleMessage(context.Background(), kafkago.Message{Value: b}))

	mismatch := envelope(t, "o1", true)
	mismatch.EventType = orders.EventTypePaymentFailed
	d.Deliver(context.Background(), mismatch)

	assert.Empty(t, rec.snapshot())
}

func TestHandleMessageDelivers(t *testing.T) {
	rec := &recorder{}
	d := New(rec, nil, zerolog.Nop())
	b, err := json.Marshal(envelope(t, "o9", false))
	require.NoError(t, err)

	require.NoError(t, d.HandleMessage(context.Background(), kafkago.Message{Value: b}))
	assert.Equal(t, []call{{"o9", false, "tx-o9"}}, rec.snapshot())
}

func TestLocalBusDeliversAndDrains(t *testing.T) {
	rec := &recorder{}
	d := New(rec, nil, zerolog.Nop())
	bus := NewLocalBus(16)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx, d) }()

	for _, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, bus.Publish(ctx, envelope(t, id, true)))
	}
	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, bus.Publish(context.Background(), envelope(t, "o4", true)), ErrBusClosed)
}
