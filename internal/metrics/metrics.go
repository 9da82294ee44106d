package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reconciler"

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Orders persisted in PENDING state.",
	})

	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Applied order status transitions.",
	}, []string{"from", "to"})

	PaymentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_events_total",
		Help:      "Payment result events handled, by result and outcome.",
	}, []string{"result", "outcome"})

	InventoryOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_operations_total",
		Help:      "Inventory ledger operations, by operation and outcome.",
	}, []string{"op", "outcome"})

	CouponRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "coupon_redemptions_total",
		Help:      "Coupon redemption attempts, by outcome.",
	}, []string{"outcome"})

	ReconciliationAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliation_alerts_total",
		Help:      "Alerts raised for operator intervention.",
	}, []string{"kind"})

	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_consumed_total",
		Help:      "Events taken off the bus, by outcome.",
	}, []string{"outcome"})

	ExpiredOrders = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "expired_orders_total",
		Help:      "PENDING orders cancelled by the timeout scheduler.",
	})
)

// Outcome maps an error to a low-cardinality label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
