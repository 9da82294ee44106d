package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/order-reconciler/internal/alert"
	"github.com/ariefcatur/order-reconciler/internal/coupon"
	"github.com/ariefcatur/order-reconciler/internal/payment"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/ariefcatur/order-reconciler/internal/orders")

// casAttempts bounds how often a transition is re-evaluated after losing a
// status compare-and-set to a concurrent writer.
const casAttempts = 3

// Stock is the part of the inventory ledger the order lifecycle drives.
type Stock interface {
	Reserve(ctx context.Context, productID, location string, qty int) error
	Commit(ctx context.Context, productID, location string, qty int) error
	Release(ctx context.Context, productID, location string, qty int) error
	Restock(ctx context.Context, productID, location string, qty int) error
}

type Deps struct {
	Repo            Repository
	Catalog         Catalog
	Stock           Stock
	Coupons         coupon.Store
	Calculator      *coupon.Calculator
	Payments        *payment.Tracker
	Alerts          *alert.Reporter
	Cache           StatusCache
	Log             zerolog.Logger
	DefaultLocation string
}

// Service owns the order aggregate and orchestrates the inventory ledger,
// coupon accounting and payment tracker around it.
type Service struct {
	repo            Repository
	catalog         Catalog
	stock           Stock
	coupons         coupon.Store
	calc            *coupon.Calculator
	payments        *payment.Tracker
	alerts          *alert.Reporter
	cache           StatusCache
	log             zerolog.Logger
	defaultLocation string
	now             func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:            d.Repo,
		catalog:         d.Catalog,
		stock:           d.Stock,
		coupons:         d.Coupons,
		calc:            d.Calculator,
		payments:        d.Payments,
		alerts:          d.Alerts,
		cache:           d.Cache,
		log:             d.Log.With().Str("component", "orders").Logger(),
		defaultLocation: d.DefaultLocation,
		now:             time.Now,
	}
	if s.cache == nil {
		s.cache = nopCache{}
	}
	if s.alerts == nil {
		s.alerts = alert.NewReporter(nil, d.Log)
	}
	if s.defaultLocation == "" {
		s.defaultLocation = "main"
	}
	return s
}

func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// GetStatus serves from the status cache and falls back to the repository.
func (s *Service) GetStatus(ctx context.Context, id string) (Status, error) {
	if st, ok := s.cache.Get(ctx, id); ok {
		return st, nil
	}
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	s.cache.Set(ctx, id, o.Status)
	return o.Status, nil
}

func (s *Service) GetPayment(ctx context.Context, orderID string) (payment.Payment, error) {
	return s.payments.Get(ctx, orderID)
}

func (s *Service) GetCouponStats(ctx context.Context, couponID string) (coupon.Stats, error) {
	return s.coupons.Stats(ctx, couponID)
}
