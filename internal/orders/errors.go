package orders

import (
	"github.com/ariefcatur/order-reconciler/internal/coupon"
	"github.com/ariefcatur/order-reconciler/internal/inventory"
	"github.com/ariefcatur/order-reconciler/internal/payment"
	"github.com/pkg/errors"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("order not found")
	ErrNotCancellable      = errors.New("order not cancellable")
	ErrInvalidTransition   = errors.New("invalid order transition")
	ErrDuplicateExternalID = errors.New("order external id already used")
	ErrConcurrentUpdate    = errors.New("order changed concurrently")
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindBusinessConflict
	KindStateConflict
	KindIntegrity
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusinessConflict:
		return "business_conflict"
	case KindStateConflict:
		return "state_conflict"
	case KindIntegrity:
		return "integrity"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

type classified struct {
	target error
	kind   ErrorKind
	code   string
}

// Order matters: the first matching sentinel wins.
var taxonomy = []classified{
	{ErrValidation, KindValidation, "VALIDATION_ERROR"},
	{inventory.ErrInvalidQuantity, KindValidation, "VALIDATION_ERROR"},
	{inventory.ErrInsufficientStock, KindBusinessConflict, "INSUFFICIENT_STOCK"},
	{coupon.ErrCouponInvalid, KindBusinessConflict, "COUPON_INVALID"},
	{coupon.ErrNotApplicable, KindBusinessConflict, "COUPON_INVALID"},
	{coupon.ErrCouponExpired, KindBusinessConflict, "COUPON_EXPIRED"},
	{coupon.ErrCouponLimitExceeded, KindBusinessConflict, "COUPON_LIMIT_EXCEEDED"},
	{coupon.ErrCouponUserLimitExceeded, KindBusinessConflict, "COUPON_USER_LIMIT_EXCEEDED"},
	{ErrNotCancellable, KindStateConflict, "NOT_CANCELLABLE"},
	{ErrInvalidTransition, KindStateConflict, "INVALID_TRANSITION"},
	{ErrConcurrentUpdate, KindStateConflict, "CONCURRENT_UPDATE"},
	{payment.ErrAlreadyFinalized, KindStateConflict, "ALREADY_FINALIZED"},
	{payment.ErrInvalidTransition, KindStateConflict, "INVALID_TRANSITION"},
	{inventory.ErrInvalidState, KindIntegrity, "INVALID_STATE"},
	{ErrNotFound, KindNotFound, "NOT_FOUND"},
	{coupon.ErrNotFound, KindNotFound, "NOT_FOUND"},
	{payment.ErrNotFound, KindNotFound, "NOT_FOUND"},
	{inventory.ErrNotFound, KindNotFound, "NOT_FOUND"},
}

func classify(err error) classified {
	for _, c := range taxonomy {
		if errors.Is(err, c.target) {
			return c
		}
	}
	return classified{kind: KindInternal, code: "INTERNAL"}
}

// KindOf places err in the error taxonomy shared by the HTTP layer and logs.
func KindOf(err error) ErrorKind { return classify(err).kind }

// Code is the stable, caller-facing name of err.
func Code(err error) string { return classify(err).code }
