package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	EventTypePaymentSucceeded = "PaymentSucceeded"
	EventTypePaymentFailed    = "PaymentFailed"

	EnvelopeVersion = 1
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// PaymentResultPayload is the internal notification produced from a gateway
// callback. It is delivered at least once.
type PaymentResultPayload struct {
	OrderID        string `json:"order_id"`
	Succeeded      bool   `json:"succeeded"`
	TransactionRef string `json:"transaction_ref"`
}

func NewPaymentResultEnvelope(producer, traceID string, p PaymentResultPayload) (Envelope, error) {
	if p.OrderID == "" {
		return Envelope{}, errors.Wrap(ErrValidation, "order_id is required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, errors.Wrap(err, "marshal payment result")
	}
	typ := EventTypePaymentFailed
	if p.Succeeded {
		typ = EventTypePaymentSucceeded
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     typ,
		EventVersion:  EnvelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: p.OrderID,
		Payload:       body,
	}, nil
}

// DecodePaymentResult validates an envelope and returns its payload.
func DecodePaymentResult(env Envelope) (PaymentResultPayload, error) {
	var p PaymentResultPayload
	switch env.EventType {
	case EventTypePaymentSucceeded, EventTypePaymentFailed:
	default:
		return p, errors.Wrapf(ErrValidation, "unexpected event type %q", env.EventType)
	}
	if env.EventID == "" {
		return p, errors.Wrap(ErrValidation, "event_id is required")
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return p, errors.Wrap(ErrValidation, "decode payload: "+err.Error())
	}
	if p.OrderID == "" {
		return p, errors.Wrap(ErrValidation, "payload order_id is required")
	}
	if p.Succeeded != (env.EventType == EventTypePaymentSucceeded) {
		return p, errors.Wrapf(ErrValidation, "event type %s disagrees with payload", env.EventType)
	}
	return p, nil
}
