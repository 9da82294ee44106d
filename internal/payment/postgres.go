package payment

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// DBTX is satisfied by both the pool and a transaction, so the order
// repository can insert the payment inside its own transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct{ DB *pgxpool.Pool }

const paymentColumns = `id, order_id, amount, status, transaction_ref, paid_at, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Status, &p.TransactionRef, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) Insert(ctx context.Context, p Payment) error {
	return InsertWith(ctx, s.DB, p)
}

func InsertWith(ctx context.Context, db DBTX, p Payment) error {
	_, err := db.Exec(ctx, `
		INSERT INTO payments(id, order_id, amount, status, transaction_ref, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.OrderID, p.Amount, string(p.Status), p.TransactionRef, p.PaidAt, p.CreatedAt, p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.Wrapf(ErrDuplicate, "order %s", p.OrderID)
	}
	return errors.Wrap(err, "insert payment")
}

func (s *PostgresStore) Get(ctx context.Context, orderID string) (Payment, error) {
	p, err := scanPayment(s.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, errors.Wrapf(ErrNotFound, "order %s", orderID)
	}
	return p, errors.Wrap(err, "get payment")
}

func (s *PostgresStore) CompareAndSet(ctx context.Context, orderID string, c Change) (Payment, bool, error) {
	p, err := scanPayment(s.DB.QueryRow(ctx, `
		UPDATE payments
		SET status = $3,
		    transaction_ref = COALESCE($4, transaction_ref),
		    paid_at = COALESCE($5, paid_at),
		    updated_at = now()
		WHERE order_id = $1 AND status = $2
		RETURNING `+paymentColumns, orderID, string(c.From), string(c.To), c.Ref, c.PaidAt))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, false, errors.Wrap(err, "update payment status")
	}
	p, err = s.Get(ctx, orderID)
	return p, false, err
}
