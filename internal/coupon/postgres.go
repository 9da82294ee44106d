package coupon

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PostgresStore serializes redemptions per coupon by locking the coupon row
// (SELECT ... FOR UPDATE) for the length of the transaction.
type PostgresStore struct {
	DB  *pgxpool.Pool
	Now func() time.Time
}

const couponColumns = `id, code, discount_type, discount_value, max_discount, min_order_amount,
	usage_limit, per_user_limit, valid_from, valid_to, active, condition, total_usages, total_discount`

func (s *PostgresStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func scanCoupon(row pgx.Row) (Coupon, error) {
	var (
		c        Coupon
		maxDisc  decimal.NullDecimal
		from, to *time.Time
	)
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &maxDisc, &c.MinOrderAmount,
		&c.UsageLimit, &c.PerUserLimit, &from, &to, &c.Active, &c.Condition, &c.TotalUsages, &c.TotalDiscount)
	if err != nil {
		return Coupon{}, err
	}
	if maxDisc.Valid {
		c.MaxDiscount = &maxDisc.Decimal
	}
	if from != nil {
		c.ValidFrom = *from
	}
	if to != nil {
		c.ValidTo = *to
	}
	return c, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *PostgresStore) Create(ctx context.Context, c Coupon) error {
	if err := c.validate(); err != nil {
		return err
	}
	var maxDisc decimal.NullDecimal
	if c.MaxDiscount != nil {
		maxDisc = decimal.NewNullDecimal(*c.MaxDiscount)
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO coupons(`+couponColumns+`)
		VALUES ($1, upper($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue, maxDisc, c.MinOrderAmount,
		c.UsageLimit, c.PerUserLimit, nullTime(c.ValidFrom), nullTime(c.ValidTo), c.Active,
		c.Condition, c.TotalUsages, c.TotalDiscount)
	return errors.Wrapf(err, "insert coupon %s", c.Code)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Coupon, error) {
	c, err := scanCoupon(s.DB.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
	return c, notFound(err, "coupon "+id)
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (Coupon, error) {
	c, err := scanCoupon(s.DB.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = upper($1)`, code))
	return c, notFound(err, "code "+code)
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(ErrNotFound, what)
	}
	return errors.Wrap(err, what)
}

func (s *PostgresStore) TryRedeem(ctx context.Context, couponID, userID, orderID string, candidate decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "begin redeem")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := scanCoupon(tx.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1 FOR UPDATE`, couponID))
	if err != nil {
		return decimal.Zero, notFound(err, "coupon "+couponID)
	}

	var prior decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT discount FROM coupon_redemptions WHERE coupon_id = $1 AND order_id = $2`,
		couponID, orderID).Scan(&prior)
	if err == nil {
		return prior, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, errors.Wrap(err, "lookup redemption")
	}

	var userUsages int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID).Scan(&userUsages); err != nil {
		return decimal.Zero, errors.Wrap(err, "count user redemptions")
	}
	if err := c.checkRedeemable(s.now(), userUsages); err != nil {
		return decimal.Zero, err
	}

	granted := c.grant(candidate)
	if _, err := tx.Exec(ctx, `
		UPDATE coupons SET total_usages = total_usages + 1, total_discount = total_discount + $2
		WHERE id = $1`, couponID, granted); err != nil {
		return decimal.Zero, errors.Wrap(err, "bump coupon usage")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO coupon_redemptions(coupon_id, order_id, user_id, discount, status)
		VALUES ($1, $2, $3, $4, $5)`, couponID, orderID, userID, granted, string(RedemptionReserved)); err != nil {
		return decimal.Zero, errors.Wrap(err, "insert redemption")
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, errors.Wrap(err, "commit redeem")
	}
	return granted, nil
}

func (s *PostgresStore) Release(ctx context.Context, couponID, orderID string) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, errors.Wrap(err, "begin release")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT 1 FROM coupons WHERE id = $1 FOR UPDATE`, couponID); err != nil {
		return false, errors.Wrap(err, "lock coupon")
	}
	var discount decimal.Decimal
	err = tx.QueryRow(ctx, `
		DELETE FROM coupon_redemptions WHERE coupon_id = $1 AND order_id = $2
		RETURNING discount`, couponID, orderID).Scan(&discount)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "delete redemption")
	}
	if _, err := tx.Exec(ctx, `
		UPDATE coupons SET total_usages = total_usages - 1, total_discount = total_discount - $2
		WHERE id = $1`, couponID, discount); err != nil {
		return false, errors.Wrap(err, "reverse coupon usage")
	}
	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "commit release")
	}
	return true, nil
}

func (s *PostgresStore) Finalize(ctx context.Context, couponID, orderID string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE coupon_redemptions SET status = $3
		WHERE coupon_id = $1 AND order_id = $2`, couponID, orderID, string(RedemptionFinalized))
	return errors.Wrap(err, "finalize redemption")
}

func (s *PostgresStore) Stats(ctx context.Context, couponID string) (Stats, error) {
	c, err := s.Get(ctx, couponID)
	if err != nil {
		return Stats{}, err
	}
	var users int
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(DISTINCT user_id) FROM coupon_redemptions WHERE coupon_id = $1`,
		couponID).Scan(&users); err != nil {
		return Stats{}, errors.Wrap(err, "count unique users")
	}
	return ComputeStats(c, users), nil
}
