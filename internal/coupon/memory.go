package coupon

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type entry struct {
	mu          sync.Mutex
	coupon      Coupon
	redemptions map[string]Redemption // by order id
}

type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*entry
	byCode map[string]string
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]*entry{}, byCode: map[string]string{}, now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, c Coupon) error {
	if err := c.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	code := strings.ToUpper(c.Code)
	if _, ok := s.byCode[code]; ok {
		return errors.Errorf("coupon code %s already exists", c.Code)
	}
	if _, ok := s.byID[c.ID]; ok {
		return errors.Errorf("coupon %s already exists", c.ID)
	}
	s.byID[c.ID] = &entry{coupon: c, redemptions: map[string]Redemption{}}
	s.byCode[code] = c.ID
	return nil
}

func (s *MemoryStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "coupon %s", id)
	}
	return e, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Coupon, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Coupon{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.coupon, nil
}

func (s *MemoryStore) FindByCode(ctx context.Context, code string) (Coupon, error) {
	s.mu.RLock()
	id, ok := s.byCode[strings.ToUpper(code)]
	s.mu.RUnlock()
	if !ok {
		return Coupon{}, errors.Wrapf(ErrNotFound, "code %s", code)
	}
	return s.Get(ctx, id)
}

func (s *MemoryStore) TryRedeem(_ context.Context, couponID, userID, orderID string, candidate decimal.Decimal) (decimal.Decimal, error) {
	e, err := s.lookup(couponID)
	if err != nil {
		return decimal.Zero, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.redemptions[orderID]; ok {
		return r.Discount, nil
	}
	userUsages := 0
	for _, r := range e.redemptions {
		if r.UserID == userID {
			userUsages++
		}
	}
	if err := e.coupon.checkRedeemable(s.now(), userUsages); err != nil {
		return decimal.Zero, err
	}

	granted := e.coupon.grant(candidate)
	e.coupon.TotalUsages++
	e.coupon.TotalDiscount = e.coupon.TotalDiscount.Add(granted)
	e.redemptions[orderID] = Redemption{
		CouponID:  couponID,
		OrderID:   orderID,
		UserID:    userID,
		Discount:  granted,
		Status:    RedemptionReserved,
		CreatedAt: s.now(),
	}
	return granted, nil
}

// Release of a coupon that no longer exists is a no-op: orders only keep a
// snapshot of the coupon they used.
func (s *MemoryStore) Release(_ context.Context, couponID, orderID string) (bool, error) {
	e, err := s.lookup(couponID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.redemptions[orderID]
	if !ok {
		return false, nil
	}
	delete(e.redemptions, orderID)
	e.coupon.TotalUsages--
	e.coupon.TotalDiscount = e.coupon.TotalDiscount.Sub(r.Discount)
	return true, nil
}

func (s *MemoryStore) Finalize(_ context.Context, couponID, orderID string) error {
	e, err := s.lookup(couponID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.redemptions[orderID]; ok {
		r.Status = RedemptionFinalized
		e.redemptions[orderID] = r
	}
	return nil
}

func (s *MemoryStore) Stats(_ context.Context, couponID string) (Stats, error) {
	e, err := s.lookup(couponID)
	if err != nil {
		return Stats{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	users := map[string]struct{}{}
	for _, r := range e.redemptions {
		users[r.UserID] = struct{}{}
	}
	return ComputeStats(e.coupon, len(users)), nil
}

// Redemption exposes one ledger row, mostly for tests and operators.
func (s *MemoryStore) Redemption(couponID, orderID string) (Redemption, bool) {
	e, err := s.lookup(couponID)
	if err != nil {
		return Redemption{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.redemptions[orderID]
	return r, ok
}
