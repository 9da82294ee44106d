package coupon

import "github.com/shopspring/decimal"

// Stats is the read-only usage projection of one coupon. Nil RemainingUsage
// and UsageRate mean the coupon has no usage limit.
type Stats struct {
	CouponID              string           `json:"coupon_id"`
	Code                  string           `json:"code"`
	TotalUsages           int              `json:"total_usages"`
	UniqueUsers           int              `json:"unique_users"`
	TotalDiscountGiven    decimal.Decimal  `json:"total_discount_given"`
	UsageLimit            *int             `json:"usage_limit"`
	RemainingUsage        *int             `json:"remaining_usage"`
	AverageDiscountPerUse decimal.Decimal  `json:"average_discount_per_use"`
	UsageRate             *decimal.Decimal `json:"usage_rate"`
	Exhausted             bool             `json:"exhausted"`
}

func ComputeStats(c Coupon, uniqueUsers int) Stats {
	s := Stats{
		CouponID:              c.ID,
		Code:                  c.Code,
		TotalUsages:           c.TotalUsages,
		UniqueUsers:           uniqueUsers,
		TotalDiscountGiven:    c.TotalDiscount,
		UsageLimit:            c.UsageLimit,
		AverageDiscountPerUse: decimal.Zero,
	}
	if c.TotalUsages > 0 {
		s.AverageDiscountPerUse = c.TotalDiscount.Div(decimal.NewFromInt(int64(c.TotalUsages))).Round(2)
	}
	if c.UsageLimit != nil {
		remaining := *c.UsageLimit - c.TotalUsages
		if remaining < 0 {
			remaining = 0
		}
		s.RemainingUsage = &remaining
		s.Exhausted = c.TotalUsages >= *c.UsageLimit
		if *c.UsageLimit > 0 {
			rate := decimal.NewFromInt(int64(c.TotalUsages)).
				Mul(hundred).
				Div(decimal.NewFromInt(int64(*c.UsageLimit))).
				Round(2)
			s.UsageRate = &rate
		}
	}
	return s
}
