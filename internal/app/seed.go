package app

import (
	"context"
	"os"

	"github.com/ariefcatur/order-reconciler/internal/coupon"
	"github.com/ariefcatur/order-reconciler/internal/inventory"
	"github.com/ariefcatur/order-reconciler/internal/orders"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type SeedProduct struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Price    decimal.Decimal `yaml:"price"`
	Location string          `yaml:"location"`
	OnHand   int             `yaml:"on_hand"`
}

// Seed is the catalog, stock and coupon fixture loaded at startup.
type Seed struct {
	Products []SeedProduct   `yaml:"products"`
	Coupons  []coupon.Coupon `yaml:"coupons"`
}

func LoadSeed(path string) (Seed, error) {
	var s Seed
	b, err := os.ReadFile(path)
	if err != nil {
		return s, errors.Wrap(err, "read seed file")
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, errors.Wrapf(err, "parse seed file %s", path)
	}
	return s, nil
}

type stockSeeder interface {
	Get(ctx context.Context, productID, location string) (inventory.Record, error)
	Upsert(ctx context.Context, productID, location string, onHand int) error
}

// Apply is safe to repeat: prices are overwritten, while existing stock rows
// and coupons are left alone so restarts keep their counters.
func (s Seed) Apply(ctx context.Context, catalog orders.Catalog, stock stockSeeder, coupons coupon.Store, defaultLocation string) error {
	for _, p := range s.Products {
		if err := catalog.Upsert(ctx, orders.Product{ID: p.ID, Name: p.Name, Price: p.Price}); err != nil {
			return errors.Wrapf(err, "seed product %s", p.ID)
		}
		loc := p.Location
		if loc == "" {
			loc = defaultLocation
		}
		_, err := stock.Get(ctx, p.ID, loc)
		switch {
		case errors.Is(err, inventory.ErrNotFound):
			if err := stock.Upsert(ctx, p.ID, loc, p.OnHand); err != nil {
				return errors.Wrapf(err, "seed stock %s@%s", p.ID, loc)
			}
		case err != nil:
			return errors.Wrapf(err, "seed stock %s@%s", p.ID, loc)
		}
	}
	for _, c := range s.Coupons {
		_, err := coupons.Get(ctx, c.ID)
		switch {
		case errors.Is(err, coupon.ErrNotFound):
			if err := coupons.Create(ctx, c); err != nil {
				return errors.Wrapf(err, "seed coupon %s", c.Code)
			}
		case err != nil:
			return errors.Wrapf(err, "seed coupon %s", c.Code)
		}
	}
	return nil
}
