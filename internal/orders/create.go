package orders

import (
	"context"

	"github.com/ariefcatur/order-reconciler/internal/alert"
	"github.com/ariefcatur/order-reconciler/internal/coupon"
	"github.com/ariefcatur/order-reconciler/internal/inventory"
	"github.com/ariefcatur/order-reconciler/internal/metrics"
	"github.com/ariefcatur/order-reconciler/internal/payment"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type undoStep struct {
	name string
	fn   func(context.Context) error
}

// compensation is a stack of undo steps run in reverse on failure.
type compensation struct {
	steps []undoStep
}

func (c *compensation) push(name string, fn func(context.Context) error) {
	c.steps = append(c.steps, undoStep{name: name, fn: fn})
}

func (c *compensation) unwind(ctx context.Context, s *Service, orderID string) {
	ctx = context.WithoutCancel(ctx)
	for i := len(c.steps) - 1; i >= 0; i-- {
		st := c.steps[i]
		if err := st.fn(ctx); err != nil {
			s.alerts.Raise(ctx, alert.KindIntegrity, orderID, "compensate_"+st.name, err)
		}
	}
	c.steps = nil
}

// CreateOrder prices the lines, redeems the coupon, reserves every line and
// persists the order with a PENDING payment. Any failure releases everything
// acquired so far, so the caller sees all or nothing.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrder")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.ExternalID != "" {
		o, err := s.repo.GetByExternalID(ctx, req.ExternalID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	now := s.now()
	o := &Order{
		ID:              uuid.NewString(),
		ExternalID:      req.ExternalID,
		UserID:          req.UserID,
		Status:          StatusPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.ShippingAddress,
		DiscountAmount:  decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.BillingAddress != nil {
		o.BillingAddress = *req.BillingAddress
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	if err := s.priceLines(ctx, o, req.Items); err != nil {
		return nil, err
	}

	var undo compensation
	if req.CouponCode != "" {
		if err := s.applyCoupon(ctx, o, req.CouponCode, &undo); err != nil {
			return nil, err
		}
	}
	o.FinalAmount = o.TotalAmount.Sub(o.DiscountAmount)

	for i, it := range o.Items {
		if err := s.stock.Reserve(ctx, it.ProductID, it.Location, it.Quantity); err != nil {
			undo.unwind(ctx, s, o.ID)
			if errors.Is(err, inventory.ErrNotFound) {
				err = errors.Wrapf(inventory.ErrInsufficientStock, "%s not stocked at %s", it.ProductID, it.Location)
			}
			return nil, errors.Wrapf(err, "line %d", i+1)
		}
		undo.push("release_stock", func(ctx context.Context) error {
			return s.stock.Release(ctx, it.ProductID, it.Location, it.Quantity)
		})
	}

	if err := s.repo.Create(ctx, o, payment.Open(o.ID, o.FinalAmount, now)); err != nil {
		undo.unwind(ctx, s, o.ID)
		if errors.Is(err, ErrDuplicateExternalID) {
			return s.repo.GetByExternalID(ctx, req.ExternalID)
		}
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	s.log.Info().
		Str("order_id", o.ID).
		Str("user_id", o.UserID).
		Str("total", o.TotalAmount.StringFixed(2)).
		Str("discount", o.DiscountAmount.StringFixed(2)).
		Int("lines", len(o.Items)).
		Msg("order created")
	return o, nil
}

func (s *Service) priceLines(ctx context.Context, o *Order, items []ItemInput) error {
	total := decimal.Zero
	o.Items = make([]Item, 0, len(items))
	for _, in := range items {
		price, err := s.catalog.UnitPrice(ctx, in.ProductID)
		if err != nil {
			return err
		}
		loc := in.Location
		if loc == "" {
			loc = s.defaultLocation
		}
		line := Item{
			ProductID: in.ProductID,
			Location:  loc,
			Quantity:  in.Qty,
			UnitPrice: price,
			LineTotal: price.Mul(decimal.NewFromInt(int64(in.Qty))).Round(2),
		}
		total = total.Add(line.LineTotal)
		o.Items = append(o.Items, line)
	}
	o.TotalAmount = total
	return nil
}

func (s *Service) applyCoupon(ctx context.Context, o *Order, code string, undo *compensation) error {
	c, err := s.coupons.FindByCode(ctx, code)
	if errors.Is(err, coupon.ErrNotFound) {
		metrics.CouponRedemptions.WithLabelValues("unknown").Inc()
		return errors.Wrapf(coupon.ErrCouponInvalid, "unknown coupon code %s", code)
	}
	if err != nil {
		return err
	}

	qty := 0
	for _, it := range o.Items {
		qty += it.Quantity
	}
	candidate, err := s.calc.Candidate(c, coupon.Quote{UserID: o.UserID, Total: o.TotalAmount, Items: qty})
	if err != nil {
		metrics.CouponRedemptions.WithLabelValues("not_applicable").Inc()
		return err
	}
	granted, err := s.coupons.TryRedeem(ctx, c.ID, o.UserID, o.ID, candidate)
	if err != nil {
		metrics.CouponRedemptions.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.CouponRedemptions.WithLabelValues("granted").Inc()

	undo.push("release_coupon", func(ctx context.Context) error {
		_, err := s.coupons.Release(ctx, c.ID, o.ID)
		return err
	})
	o.CouponID = c.ID
	o.CouponCode = c.Code
	o.DiscountAmount = granted
	return nil
}
