package coupon

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                = errors.New("coupon not found")
	ErrCouponInvalid           = errors.New("coupon invalid")
	ErrCouponExpired           = errors.New("coupon expired")
	ErrCouponLimitExceeded     = errors.New("coupon usage limit exceeded")
	ErrCouponUserLimitExceeded = errors.New("coupon per-user limit exceeded")
	ErrNotApplicable           = errors.New("coupon not applicable to order")
)

type DiscountType string

const (
	Percentage  DiscountType = "PERCENTAGE"
	FixedAmount DiscountType = "FIXED_AMOUNT"
)

type RedemptionStatus string

const (
	RedemptionReserved  RedemptionStatus = "RESERVED"
	RedemptionFinalized RedemptionStatus = "FINALIZED"
)

type Coupon struct {
	ID             string           `json:"id" yaml:"id"`
	Code           string           `json:"code" yaml:"code"`
	DiscountType   DiscountType     `json:"discount_type" yaml:"discount_type"`
	DiscountValue  decimal.Decimal  `json:"discount_value" yaml:"discount_value"`
	MaxDiscount    *decimal.Decimal `json:"max_discount,omitempty" yaml:"max_discount"`
	MinOrderAmount decimal.Decimal  `json:"min_order_amount" yaml:"min_order_amount"`
	UsageLimit     *int             `json:"usage_limit,omitempty" yaml:"usage_limit"`
	PerUserLimit   *int             `json:"per_user_limit,omitempty" yaml:"per_user_limit"`
	ValidFrom      time.Time        `json:"valid_from" yaml:"valid_from"`
	ValidTo        time.Time        `json:"valid_to" yaml:"valid_to"`
	Active         bool             `json:"active" yaml:"active"`
	// Condition is an optional CEL expression over total, items and user_id.
	Condition     string          `json:"condition,omitempty" yaml:"condition"`
	TotalUsages   int             `json:"total_usages" yaml:"total_usages"`
	TotalDiscount decimal.Decimal `json:"total_discount" yaml:"total_discount"`
}

type Redemption struct {
	CouponID  string
	OrderID   string
	UserID    string
	Discount  decimal.Decimal
	Status    RedemptionStatus
	CreatedAt time.Time
}

// Store is the coupon usage ledger. TryRedeem is serialized per coupon.
type Store interface {
	Create(ctx context.Context, c Coupon) error
	Get(ctx context.Context, id string) (Coupon, error)
	FindByCode(ctx context.Context, code string) (Coupon, error)
	// TryRedeem returns the granted discount. Redeeming twice for the same
	// order returns the first grant unchanged.
	TryRedeem(ctx context.Context, couponID, userID, orderID string, candidate decimal.Decimal) (decimal.Decimal, error)
	// Release reports whether a redemption existed. A missing one is not an error.
	Release(ctx context.Context, couponID, orderID string) (bool, error)
	Finalize(ctx context.Context, couponID, orderID string) error
	Stats(ctx context.Context, couponID string) (Stats, error)
}

// checkRedeemable runs the guards in the order callers rely on for error kinds.
func (c Coupon) checkRedeemable(now time.Time, userUsages int) error {
	if !c.Active {
		return errors.Wrapf(ErrCouponInvalid, "coupon %s inactive", c.Code)
	}
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return errors.Wrapf(ErrCouponInvalid, "coupon %s not yet valid", c.Code)
	}
	if !c.ValidTo.IsZero() && now.After(c.ValidTo) {
		return errors.Wrapf(ErrCouponExpired, "coupon %s", c.Code)
	}
	if c.UsageLimit != nil && c.TotalUsages >= *c.UsageLimit {
		return errors.Wrapf(ErrCouponLimitExceeded, "coupon %s", c.Code)
	}
	if c.PerUserLimit != nil && userUsages >= *c.PerUserLimit {
		return errors.Wrapf(ErrCouponUserLimitExceeded, "coupon %s", c.Code)
	}
	return nil
}

func (c Coupon) grant(candidate decimal.Decimal) decimal.Decimal {
	if candidate.IsNegative() {
		return decimal.Zero
	}
	if c.MaxDiscount != nil && candidate.GreaterThan(*c.MaxDiscount) {
		return *c.MaxDiscount
	}
	return candidate
}

func (c Coupon) validate() error {
	if c.ID == "" || c.Code == "" {
		return errors.New("coupon id and code are required")
	}
	switch c.DiscountType {
	case Percentage:
		if c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return errors.New("percentage discount above 100")
		}
	case FixedAmount:
	default:
		return errors.Errorf("unknown discount type %q", c.DiscountType)
	}
	if c.DiscountValue.IsNegative() {
		return errors.New("negative discount value")
	}
	return nil
}
