package orders

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:  {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

type EventKind string

const (
	EventPaymentSucceeded EventKind = "PaymentSucceeded"
	EventPaymentFailed    EventKind = "PaymentFailed"
	EventCancel           EventKind = "Cancel"
	EventAdvance          EventKind = "Advance"
)

// Event drives Transition. Next is only read for EventAdvance.
type Event struct {
	Kind EventKind
	Next Status
}

type Effect string

const (
	EffectCommitStock      Effect = "commit_stock"
	EffectReleaseStock     Effect = "release_stock"
	EffectRestockCommitted Effect = "restock_committed"
	EffectReleaseCoupon    Effect = "release_coupon"
	EffectFinalizeCoupon   Effect = "finalize_coupon"
	EffectAbandonPayment   Effect = "abandon_payment"
	EffectRequestRefund    Effect = "request_refund"
)

type rule struct {
	to      Status
	effects []Effect
}

var transitions = map[Status]map[EventKind]rule{
	StatusPending: {
		EventPaymentSucceeded: {StatusConfirmed, []Effect{EffectCommitStock, EffectFinalizeCoupon}},
		EventPaymentFailed:    {StatusCancelled, []Effect{EffectReleaseStock, EffectReleaseCoupon}},
		EventCancel:           {StatusCancelled, []Effect{EffectReleaseStock, EffectReleaseCoupon, EffectAbandonPayment}},
	},
	StatusConfirmed: {
		EventCancel: {StatusCancelled, []Effect{EffectRestockCommitted, EffectReleaseCoupon, EffectRequestRefund}},
	},
}

type Outcome struct {
	From    Status
	To      Status
	Effects []Effect
	Applied bool
}

// Transition is a pure function of (state, event). An event that does not
// match the current state yields Applied=false and no effects, which is what
// makes redelivered events harmless.
func Transition(from Status, ev Event) Outcome {
	out := Outcome{From: from, To: from}
	if ev.Kind == EventAdvance {
		if ev.Next != StatusCancelled && CanTransition(from, ev.Next) {
			out.To, out.Applied = ev.Next, true
		}
		return out
	}
	r, ok := transitions[from][ev.Kind]
	if !ok {
		return out
	}
	out.To = r.to
	out.Effects = append([]Effect(nil), r.effects...)
	out.Applied = true
	return out
}
