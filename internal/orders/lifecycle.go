package orders

import (
	"context"
	"slices"
	"time"

	"github.com/ariefcatur/order-reconciler/internal/alert"
	"github.com/ariefcatur/order-reconciler/internal/metrics"
	"github.com/ariefcatur/order-reconciler/internal/payment"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const (
	outcomeApplied  = "applied"
	outcomeIgnored  = "ignored"
	outcomeConflict = "conflict"
	outcomeUnknown  = "unknown_order"
	outcomeError    = "error"

	timeoutActor = "system:timeout"
)

// HandlePaymentEvent applies a gateway result. It never returns an error:
// problems are logged and raised as reconciliation alerts so the event
// source can acknowledge and move on.
func (s *Service) HandlePaymentEvent(ctx context.Context, orderID string, succeeded bool, ref string) {
	ctx, span := tracer.Start(ctx, "orders.HandlePaymentEvent")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Bool("payment.succeeded", succeeded))

	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	outcome := s.handlePayment(ctx, orderID, succeeded, ref)
	metrics.PaymentEvents.WithLabelValues(result, outcome).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))
}

func (s *Service) handlePayment(ctx context.Context, orderID string, succeeded bool, ref string) string {
	const op = "payment_event"
	o, err := s.repo.Get(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		s.alerts.Raise(ctx, alert.KindUnknownOrder, orderID, op, err)
		return outcomeUnknown
	}
	if err != nil {
		s.alerts.Raise(ctx, alert.KindDeliveryFailed, orderID, op, err)
		return outcomeError
	}

	p, changed, err := s.payments.RecordResult(ctx, orderID, succeeded, ref)
	if errors.Is(err, payment.ErrAlreadyFinalized) {
		kind := alert.KindStateConflict
		if succeeded {
			// money was captured for a payment we already gave up on
			kind = alert.KindRefundRequired
		}
		s.alerts.Raise(ctx, kind, orderID, op, err)
		return outcomeConflict
	}
	if err != nil {
		s.alerts.Raise(ctx, alert.KindDeliveryFailed, orderID, op, err)
		return outcomeError
	}

	ev := Event{Kind: EventPaymentFailed}
	if succeeded {
		ev.Kind = EventPaymentSucceeded
	}
	for attempt := 0; attempt < casAttempts; attempt++ {
		out := Transition(o.Status, ev)
		if !out.Applied {
			// A cancel that won the race still has to fail the payment; when
			// it finds SUCCESS it raises the refund alert itself.
			s.log.Info().
				Str("order_id", orderID).
				Str("status", string(o.Status)).
				Str("event", string(ev.Kind)).
				Str("payment_status", string(p.Status)).
				Bool("payment_changed", changed).
				Msg("payment event ignored")
			return outcomeIgnored
		}
		ok, err := s.repo.CompareAndSetStatus(ctx, orderID, out.From, out.To)
		if err != nil {
			s.alerts.Raise(ctx, alert.KindDeliveryFailed, orderID, op, err)
			return outcomeError
		}
		if ok {
			s.afterTransition(ctx, o, out, op)
			return outcomeApplied
		}
		if o, err = s.repo.Get(ctx, orderID); err != nil {
			s.alerts.Raise(ctx, alert.KindDeliveryFailed, orderID, op, err)
			return outcomeError
		}
	}
	s.alerts.Raise(ctx, alert.KindStateConflict, orderID, op, ErrConcurrentUpdate)
	return outcomeConflict
}

// CancelOrder cancels a PENDING or CONFIRMED order. Cancelling a CONFIRMED
// order returns committed stock to on-hand and flags the captured payment
// for refund.
func (s *Service) CancelOrder(ctx context.Context, orderID, actor string) (Status, error) {
	return s.cancel(ctx, orderID, actor, StatusPending, StatusConfirmed)
}

// cancel only acts while the order is in one of from. A re-read after a lost
// compare-and-set is checked against from again, so a caller that only
// meant to cancel an unpaid order never cancels one a payment confirmed.
func (s *Service) cancel(ctx context.Context, orderID, actor string, from ...Status) (Status, error) {
	ctx, span := tracer.Start(ctx, "orders.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("actor", actor))

	for attempt := 0; attempt < casAttempts; attempt++ {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return "", err
		}
		if !slices.Contains(from, o.Status) {
			return o.Status, errors.Wrapf(ErrNotCancellable, "order %s is %s", orderID, o.Status)
		}
		out := Transition(o.Status, Event{Kind: EventCancel})
		if !out.Applied {
			return o.Status, errors.Wrapf(ErrNotCancellable, "order %s is %s", orderID, o.Status)
		}
		ok, err := s.repo.CompareAndSetStatus(ctx, orderID, out.From, out.To)
		if err != nil {
			return "", err
		}
		if ok {
			s.log.Info().Str("order_id", orderID).Str("actor", actor).Str("from", string(out.From)).Msg("order cancelled")
			s.afterTransition(ctx, o, out, "cancel")
			return out.To, nil
		}
	}
	return "", errors.Wrapf(ErrConcurrentUpdate, "cancel %s", orderID)
}

// AdvanceFulfillment moves a confirmed order one fulfillment step forward.
func (s *Service) AdvanceFulfillment(ctx context.Context, orderID string, next Status) (Status, error) {
	ctx, span := tracer.Start(ctx, "orders.AdvanceFulfillment")
	defer span.End()

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	out := Transition(o.Status, Event{Kind: EventAdvance, Next: next})
	if !out.Applied {
		return o.Status, errors.Wrapf(ErrInvalidTransition, "%s -> %s", o.Status, next)
	}
	ok, err := s.repo.CompareAndSetStatus(ctx, orderID, out.From, out.To)
	if err != nil {
		return "", err
	}
	if !ok {
		return o.Status, errors.Wrapf(ErrInvalidTransition, "order %s changed while advancing to %s", orderID, next)
	}
	s.afterTransition(ctx, o, out, "advance")
	return out.To, nil
}

// ExpireStale cancels up to limit orders still PENDING since before. An
// order a late payment confirmed after the scan is left alone.
func (s *Service) ExpireStale(ctx context.Context, before time.Time, limit int) (int, error) {
	ids, err := s.repo.ListPendingBefore(ctx, before, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		_, err := s.cancel(ctx, id, timeoutActor, StatusPending)
		switch {
		case err == nil:
			n++
			metrics.ExpiredOrders.Inc()
		case errors.Is(err, ErrNotCancellable), errors.Is(err, ErrConcurrentUpdate):
			s.log.Debug().Str("order_id", id).Err(err).Msg("stale order resolved concurrently")
		default:
			s.log.Error().Str("order_id", id).Err(err).Msg("expire order")
		}
	}
	return n, nil
}

// afterTransition runs once per applied transition, by whichever caller won
// the status compare-and-set.
func (s *Service) afterTransition(ctx context.Context, o *Order, out Outcome, op string) {
	ctx = context.WithoutCancel(ctx)
	metrics.OrderTransitions.WithLabelValues(string(out.From), string(out.To)).Inc()
	s.cache.Invalidate(ctx, o.ID)
	for _, e := range out.Effects {
		s.applyEffect(ctx, o, e, op)
	}
	s.log.Info().
		Str("order_id", o.ID).
		Str("from", string(out.From)).
		Str("to", string(out.To)).
		Str("op", op).
		Msg("order transitioned")
}

func (s *Service) applyEffect(ctx context.Context, o *Order, e Effect, op string) {
	fail := func(kind alert.Kind, err error) {
		s.alerts.Raise(ctx, kind, o.ID, op+":"+string(e), err)
	}
	switch e {
	case EffectCommitStock, EffectReleaseStock, EffectRestockCommitted:
		fn := s.stock.Commit
		switch e {
		case EffectReleaseStock:
			fn = s.stock.Release
		case EffectRestockCommitted:
			fn = s.stock.Restock
		}
		for i, it := range o.Items {
			if err := fn(ctx, it.ProductID, it.Location, it.Quantity); err != nil {
				fail(alert.KindIntegrity, errors.Wrapf(err, "line %d", i+1))
			}
		}
	case EffectReleaseCoupon:
		if o.CouponID == "" {
			return
		}
		if _, err := s.coupons.Release(ctx, o.CouponID, o.ID); err != nil {
			fail(alert.KindIntegrity, err)
		}
	case EffectFinalizeCoupon:
		if o.CouponID == "" {
			return
		}
		if err := s.coupons.Finalize(ctx, o.CouponID, o.ID); err != nil {
			fail(alert.KindIntegrity, err)
		}
	case EffectAbandonPayment:
		p, err := s.payments.MarkAbandoned(ctx, o.ID)
		if errors.Is(err, payment.ErrAlreadyFinalized) && p.Status == payment.StatusSuccess {
			fail(alert.KindRefundRequired, err)
		} else if err != nil {
			fail(alert.KindStateConflict, err)
		}
	case EffectRequestRefund:
		fail(alert.KindRefundRequired, errors.Errorf("order %s cancelled after payment of %s", o.ID, o.FinalAmount.StringFixed(2)))
	}
}
