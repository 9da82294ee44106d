package coupon

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quote is what a coupon condition can see about an order.
type Quote struct {
	UserID string
	Total  decimal.Decimal
	Items  int
}

// Calculator computes the candidate discount for an order. Limits and
// validity are checked later by Store.TryRedeem under the coupon lock.
type Calculator struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

func NewCalculator() (*Calculator, error) {
	env, err := cel.NewEnv(
		cel.Variable("total", cel.DoubleType),
		cel.Variable("items", cel.IntType),
		cel.Variable("user_id", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cel env")
	}
	return &Calculator{env: env, programs: map[string]cel.Program{}}, nil
}

func (c *Calculator) Candidate(cp Coupon, q Quote) (decimal.Decimal, error) {
	if q.Total.LessThan(cp.MinOrderAmount) {
		return decimal.Zero, errors.Wrapf(ErrNotApplicable, "order total %s below minimum %s", q.Total, cp.MinOrderAmount)
	}
	if cp.Condition != "" {
		ok, err := c.eval(cp.Condition, q)
		if err != nil {
			return decimal.Zero, err
		}
		if !ok {
			return decimal.Zero, errors.Wrapf(ErrNotApplicable, "condition %q not met", cp.Condition)
		}
	}

	var d decimal.Decimal
	switch cp.DiscountType {
	case Percentage:
		d = q.Total.Mul(cp.DiscountValue).Div(hundred)
	case FixedAmount:
		d = cp.DiscountValue
	default:
		return decimal.Zero, errors.Wrapf(ErrCouponInvalid, "discount type %q", cp.DiscountType)
	}
	if d.GreaterThan(q.Total) {
		d = q.Total
	}
	return d.Round(2), nil
}

// Compile checks an expression without evaluating it.
func (c *Calculator) Compile(expr string) error {
	_, err := c.program(expr)
	return err
}

func (c *Calculator) eval(expr string, q Quote) (bool, error) {
	prg, err := c.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"total":   q.Total.InexactFloat64(),
		"items":   int64(q.Items),
		"user_id": q.UserID,
	})
	if err != nil {
		return false, errors.Wrapf(ErrCouponInvalid, "evaluate condition %q: %v", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, errors.Wrapf(ErrCouponInvalid, "condition %q is not boolean", expr)
	}
	return b, nil
}

func (c *Calculator) program(expr string) (cel.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.programs[expr]; ok {
		return p, nil
	}
	ast, iss := c.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(ErrCouponInvalid, "compile condition %q: %v", expr, iss.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(ErrCouponInvalid, "program %q: %v", expr, err)
	}
	c.programs[expr] = prg
	return prg, nil
}
