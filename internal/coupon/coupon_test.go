package coupon

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func baseCoupon() Coupon {
	return Coupon{
		ID:            "c1",
		Code:          "SAVE10",
		DiscountType:  Percentage,
		DiscountValue: dec("10"),
		Active:        true,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidTo:       time.Now().Add(time.Hour),
	}
}

func newStore(t *testing.T, c Coupon) (*MemoryStore, context.Context) {
	t.Helper()
	s := NewMemoryStore()
	require.NoError(t, s.Create(context.Background(), c))
	return s, context.Background()
}

func TestStatsScenario(t *testing.T) {
	c := baseCoupon()
	c.UsageLimit = intp(100)
	c.TotalUsages = 37
	c.TotalDiscount = dec("370.00")

	st := ComputeStats(c, 30)
	require.NotNil(t, st.RemainingUsage)
	assert.Equal(t, 63, *st.RemainingUsage)
	require.NotNil(t, st.UsageRate)
	assert.True(t, st.UsageRate.Equal(dec("37.0")), "usage rate %s", st.UsageRate)
	assert.True(t, st.AverageDiscountPerUse.Equal(dec("10.00")))
	assert.False(t, st.Exhausted)
}

func TestStatsEdgeCases(t *testing.T) {
	t.Run("unlimited", func(t *testing.T) {
		c := baseCoupon()
		c.TotalUsages = 5
		st := ComputeStats(c, 5)
		assert.Nil(t, st.RemainingUsage)
		assert.Nil(t, st.UsageRate)
		assert.False(t, st.Exhausted)
	})
	t.Run("no usages", func(t *testing.T) {
		c := baseCoupon()
		c.UsageLimit = intp(10)
		st := ComputeStats(c, 0)
		assert.True(t, st.AverageDiscountPerUse.IsZero())
		assert.True(t, st.UsageRate.IsZero())
	})
	t.Run("average rounds half up", func(t *testing.T) {
		c := baseCoupon()
		c.TotalUsages = 8
		c.TotalDiscount = dec("10.00") // 1.25
		assert.True(t, ComputeStats(c, 1).AverageDiscountPerUse.Equal(dec("1.25")))
		c.TotalUsages = 3
		c.TotalDiscount = dec("10.00") // 3.333..
		assert.True(t, ComputeStats(c, 1).AverageDiscountPerUse.Equal(dec("3.33")))
		c.TotalDiscount = dec("0.05") // 0.01666..
		assert.True(t, ComputeStats(c, 1).AverageDiscountPerUse.Equal(dec("0.02")))
	})
	t.Run("exhausted", func(t *testing.T) {
		c := baseCoupon()
		c.UsageLimit = intp(2)
		c.TotalUsages = 2
		st := ComputeStats(c, 2)
		assert.True(t, st.Exhausted)
		assert.Equal(t, 0, *st.RemainingUsage)
	})
}

func TestTryRedeemGuards(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Coupon)
		want   error
	}{
		{"inactive", func(c *Coupon) { c.Active = false }, ErrCouponInvalid},
		{"not yet valid", func(c *Coupon) { c.ValidFrom = time.Now().Add(time.Hour) }, ErrCouponInvalid},
		{"expired", func(c *Coupon) { c.ValidTo = time.Now().Add(-time.Minute) }, ErrCouponExpired},
		{"limit reached", func(c *Coupon) { c.UsageLimit = intp(3); c.TotalUsages = 3 }, ErrCouponLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := baseCoupon()
			tt.mutate(&c)
			s, ctx := newStore(t, c)
			_, err := s.TryRedeem(ctx, c.ID, "u1", "o1", dec("5"))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			_, recorded := s.Redemption(c.ID, "o1")
			assert.False(t, recorded)
		})
	}
}

func TestTryRedeemPerUserLimit(t *testing.T) {
	c := baseCoupon()
	c.PerUserLimit = intp(1)
	s, ctx := newStore(t, c)

	_, err := s.TryRedeem(ctx, c.ID, "u1", "o1", dec("5"))
	require.NoError(t, err)
	_, err = s.TryRedeem(ctx, c.ID, "u1", "o2", dec("5"))
	assert.True(t, errors.Is(err, ErrCouponUserLimitExceeded))
	_, err = s.TryRedeem(ctx, c.ID, "u2", "o3", dec("5"))
	assert.NoError(t, err)
}

func TestTryRedeemCapsAndIsIdempotentPerOrder(t *testing.T) {
	c := baseCoupon()
	c.MaxDiscount = decp("7.50")
	s, ctx := newStore(t, c)

	granted, err := s.TryRedeem(ctx, c.ID, "u1", "o1", dec("20"))
	require.NoError(t, err)
	assert.True(t, granted.Equal(dec("7.50")))

	again, err := s.TryRedeem(ctx, c.ID, "u1", "o1", dec("20"))
	require.NoError(t, err)
	assert.True(t, again.Equal(granted))

	st, err := s.Stats(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalUsages)
	assert.True(t, st.TotalDiscountGiven.Equal(dec("7.50")))
}

func TestReleaseOfUnknownCouponIsNoop(t *testing.T) {
	s, ctx := newStore(t, baseCoupon())
	released, err := s.Release(ctx, "deleted-coupon", "o1")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestReleaseIsIdempotent(t *testing.T) {
	c := baseCoupon()
	c.UsageLimit = intp(1)
	s, ctx := newStore(t, c)

	_, err := s.TryRedeem(ctx, c.ID, "u1", "o1", dec("4"))
	require.NoError(t, err)

	released, err := s.Release(ctx, c.ID, "o1")
	require.NoError(t, err)
	assert.True(t, released)
	released, err = s.Release(ctx, c.ID, "o1")
	require.NoError(t, err)
	assert.False(t, released)

	st, _ := s.Stats(ctx, c.ID)
	assert.Equal(t, 0, st.TotalUsages)
	assert.True(t, st.TotalDiscountGiven.IsZero())
	assert.Equal(t, 0, st.UniqueUsers)

	// the freed slot can be used again
	_, err = s.TryRedeem(ctx, c.ID, "u2", "o2", dec("4"))
	assert.NoError(t, err)
}

func TestFinalizeMarksRedemption(t *testing.T) {
	c := baseCoupon()
	s, ctx := newStore(t, c)
	_, err := s.TryRedeem(ctx, c.ID, "u1", "o1", dec("4"))
	require.NoError(t, err)

	require.NoError(t, s.Finalize(ctx, c.ID, "o1"))
	r, ok := s.Redemption(c.ID, "o1")
	require.True(t, ok)
	assert.Equal(t, RedemptionFinalized, r.Status)

	assert.NoError(t, s.Finalize(ctx, c.ID, "missing"))
}

func TestConcurrentRedeemLastSlot(t *testing.T) {
	const n = 50
	c := baseCoupon()
	c.UsageLimit = intp(1)
	s, ctx := newStore(t, c)

	var ok, limited int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.TryRedeem(ctx, c.ID, fmt.Sprintf("u%d", i), fmt.Sprintf("o%d", i), dec("1"))
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case errors.Is(err, ErrCouponLimitExceeded):
				atomic.AddInt64(&limited, 1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), ok)
	assert.Equal(t, int64(n-1), limited)
	st, _ := s.Stats(ctx, c.ID)
	assert.Equal(t, 1, st.TotalUsages)
	assert.True(t, st.Exhausted)
}

func TestFindByCodeIsCaseInsensitive(t *testing.T) {
	s, ctx := newStore(t, baseCoupon())
	c, err := s.FindByCode(ctx, "save10")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)

	_, err = s.FindByCode(ctx, "NOPE")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCreateRejectsDuplicates(t *testing.T) {
	s, ctx := newStore(t, baseCoupon())
	dup := baseCoupon()
	dup.ID = "c2"
	assert.Error(t, s.Create(ctx, dup))
}
