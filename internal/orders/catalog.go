package orders

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Catalog prices order lines. Prices are never taken from the client.
type Catalog interface {
	UnitPrice(ctx context.Context, productID string) (decimal.Decimal, error)
	Upsert(ctx context.Context, p Product) error
}

type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemoryCatalog(products ...Product) *MemoryCatalog {
	c := &MemoryCatalog{products: map[string]Product{}}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *MemoryCatalog) UnitPrice(_ context.Context, productID string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrValidation, "product not found: %s", productID)
	}
	return p.Price, nil
}

func (c *MemoryCatalog) Upsert(_ context.Context, p Product) error {
	if p.ID == "" || p.Price.IsNegative() {
		return errors.Wrap(ErrValidation, "product needs an id and a non-negative price")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
	return nil
}

type PostgresCatalog struct{ DB *pgxpool.Pool }

func (c *PostgresCatalog) UnitPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := c.DB.QueryRow(ctx, `SELECT price FROM products WHERE id = $1`, productID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, errors.Wrapf(ErrValidation, "product not found: %s", productID)
	}
	return price, errors.Wrap(err, "lookup price")
}

func (c *PostgresCatalog) Upsert(ctx context.Context, p Product) error {
	if p.ID == "" || p.Price.IsNegative() {
		return errors.Wrap(ErrValidation, "product needs an id and a non-negative price")
	}
	_, err := c.DB.Exec(ctx, `
		INSERT INTO products(id, name, price) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = now()`,
		p.ID, p.Name, p.Price)
	return errors.Wrap(err, "upsert product")
}
