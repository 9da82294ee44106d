package inventory

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PostgresStore applies every mutation as one conditional UPDATE; a row that
// does not satisfy the guard is left untouched and reports zero rows.
type PostgresStore struct{ DB *pgxpool.Pool }

func (s *PostgresStore) Reserve(ctx context.Context, productID, location string, qty int) error {
	return s.exec(ctx, "reserve", ErrInsufficientStock, `
		UPDATE inventory SET reserved = reserved + $3, updated_at = now()
		WHERE product_id = $1 AND location = $2 AND on_hand - reserved >= $3`,
		productID, location, qty)
}

func (s *PostgresStore) Commit(ctx context.Context, productID, location string, qty int) error {
	return s.exec(ctx, "commit", ErrInvalidState, `
		UPDATE inventory SET on_hand = on_hand - $3, reserved = reserved - $3, updated_at = now()
		WHERE product_id = $1 AND location = $2 AND reserved >= $3`,
		productID, location, qty)
}

func (s *PostgresStore) Release(ctx context.Context, productID, location string, qty int) error {
	return s.exec(ctx, "release", ErrInvalidState, `
		UPDATE inventory SET reserved = reserved - $3, updated_at = now()
		WHERE product_id = $1 AND location = $2 AND reserved >= $3`,
		productID, location, qty)
}

func (s *PostgresStore) Restock(ctx context.Context, productID, location string, qty int) error {
	return s.exec(ctx, "restock", ErrNotFound, `
		UPDATE inventory SET on_hand = on_hand + $3, updated_at = now()
		WHERE product_id = $1 AND location = $2`,
		productID, location, qty)
}

func (s *PostgresStore) exec(ctx context.Context, op string, guard error, sql string, productID, location string, qty int) error {
	ct, err := s.DB.Exec(ctx, sql, productID, location, qty)
	if err != nil {
		return errors.Wrapf(err, "%s %s@%s", op, productID, location)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	exists, err := s.exists(ctx, productID, location)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(ErrNotFound, "%s %s@%s", op, productID, location)
	}
	return errors.Wrapf(guard, "%s %s@%s qty=%d", op, productID, location, qty)
}

func (s *PostgresStore) exists(ctx context.Context, productID, location string) (bool, error) {
	var ok bool
	err := s.DB.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM inventory WHERE product_id = $1 AND location = $2)`,
		productID, location).Scan(&ok)
	return ok, errors.Wrap(err, "inventory exists")
}

func (s *PostgresStore) Get(ctx context.Context, productID, location string) (Record, error) {
	rec := Record{ProductID: productID, Location: location}
	err := s.DB.QueryRow(ctx, `
		SELECT on_hand, reserved, updated_at FROM inventory
		WHERE product_id = $1 AND location = $2`, productID, location).
		Scan(&rec.OnHand, &rec.Reserved, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, errors.Wrapf(ErrNotFound, "%s@%s", productID, location)
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "get inventory")
	}
	return rec, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, productID, location string, onHand int) error {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO inventory(product_id, location, on_hand, reserved)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (product_id, location) DO UPDATE
		SET on_hand = EXCLUDED.on_hand, updated_at = now()
		WHERE inventory.reserved <= EXCLUDED.on_hand`, productID, location, onHand)
	if err != nil {
		return errors.Wrap(err, "upsert inventory")
	}
	if ct.RowsAffected() == 0 {
		return errors.Wrapf(ErrInvalidState, "on hand %d below reserved for %s@%s", onHand, productID, location)
	}
	return nil
}
