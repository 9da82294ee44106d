package orders

import (
	"testing"

	"github.com/ariefcatur/order-reconciler/internal/coupon"
	"github.com/ariefcatur/order-reconciler/internal/inventory"
	"github.com/ariefcatur/order-reconciler/internal/payment"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
		code string
	}{
		{errors.Wrap(ErrValidation, "x"), KindValidation, "VALIDATION_ERROR"},
		{errors.Wrap(inventory.ErrInsufficientStock, "line 2"), KindBusinessConflict, "INSUFFICIENT_STOCK"},
		{coupon.ErrCouponExpired, KindBusinessConflict, "COUPON_EXPIRED"},
		{coupon.ErrNotApplicable, KindBusinessConflict, "COUPON_INVALID"},
		{coupon.ErrCouponLimitExceeded, KindBusinessConflict, "COUPON_LIMIT_EXCEEDED"},
		{coupon.ErrCouponUserLimitExceeded, KindBusinessConflict, "COUPON_USER_LIMIT_EXCEEDED"},
		{ErrNotCancellable, KindStateConflict, "NOT_CANCELLABLE"},
		{payment.ErrAlreadyFinalized, KindStateConflict, "ALREADY_FINALIZED"},
		{inventory.ErrInvalidState, KindIntegrity, "INVALID_STATE"},
		{errors.Wrap(ErrNotFound, "o1"), KindNotFound, "NOT_FOUND"},
		{errors.New("boom"), KindInternal, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}
