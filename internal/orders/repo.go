package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/order-reconciler/internal/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Repository interface {
	// Create persists the order, its items and its PENDING payment atomically.
	Create(ctx context.Context, o *Order, p payment.Payment) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	// CompareAndSetStatus moves the order from -> to only if it is still in from.
	CompareAndSetStatus(ctx context.Context, id string, from, to Status) (bool, error)
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]string, error)
}

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, COALESCE(external_id, ''), user_id, total_amount, COALESCE(coupon_id, ''),
	COALESCE(coupon_code, ''), discount_amount, final_amount, status, payment_method,
	shipping_address, billing_address, created_at, updated_at`

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repo) Create(ctx context.Context, o *Order, p payment.Payment) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin create order")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, user_id, total_amount, coupon_id, coupon_code,
			discount_amount, final_amount, status, payment_method, shipping_address,
			billing_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, nullable(o.ExternalID), o.UserID, o.TotalAmount, nullable(o.CouponID), nullable(o.CouponCode),
		o.DiscountAmount, o.FinalAmount, string(o.Status), o.PaymentMethod, o.ShippingAddress,
		o.BillingAddress, o.CreatedAt, o.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "orders_external_id_key" {
		return errors.Wrapf(ErrDuplicateExternalID, "external id %s", o.ExternalID)
	}
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, product_id, location, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, i+1, it.ProductID, it.Location, it.Quantity, it.UnitPrice, it.LineTotal); err != nil {
			return errors.Wrapf(err, "insert order item %d", i+1)
		}
	}
	if err := payment.InsertWith(ctx, tx, p); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit create order")
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	return r.getWhere(ctx, `id = $1`, id)
}

func (r *Repo) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	return r.getWhere(ctx, `external_id = $1`, externalID)
}

func (r *Repo) getWhere(ctx context.Context, where string, arg string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg).Scan(
		&o.ID, &o.ExternalID, &o.UserID, &o.TotalAmount, &o.CouponID, &o.CouponCode,
		&o.DiscountAmount, &o.FinalAmount, &o.Status, &o.PaymentMethod,
		&o.ShippingAddress, &o.BillingAddress, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "%s", arg)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, location, quantity, unit_price, line_total
		FROM order_items WHERE order_id = $1 ORDER BY line_no`, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "get order items")
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Location, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		o.Items = append(o.Items, it)
	}
	return &o, errors.Wrap(rows.Err(), "iterate order items")
}

func (r *Repo) CompareAndSetStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, errors.Wrap(err, "update order status")
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "order exists")
	}
	if !exists {
		return false, errors.Wrapf(ErrNotFound, "%s", id)
	}
	return false, nil
}

func (r *Repo) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id FROM orders WHERE status = $1 AND created_at < $2
		ORDER BY created_at LIMIT $3`, string(StatusPending), before, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list stale orders")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, errors.Wrap(err, "collect stale orders")
}
