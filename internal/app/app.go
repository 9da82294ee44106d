package app

import (
	"context"
	"net/http"

	"github.com/ariefcatur/order-reconciler/internal/alert"
	"github.com/ariefcatur/order-reconciler/internal/config"
	"github.com/ariefcatur/order-reconciler/internal/coupon"
	"github.com/ariefcatur/order-reconciler/internal/dispatch"
	"github.com/ariefcatur/order-reconciler/internal/httpx"
	"github.com/ariefcatur/order-reconciler/internal/inventory"
	kafkax "github.com/ariefcatur/order-reconciler/internal/kafka"
	"github.com/ariefcatur/order-reconciler/internal/logging"
	"github.com/ariefcatur/order-reconciler/internal/orders"
	"github.com/ariefcatur/order-reconciler/internal/payment"
	"github.com/ariefcatur/order-reconciler/internal/postgres"
	"github.com/ariefcatur/order-reconciler/internal/redisx"
	"github.com/ariefcatur/order-reconciler/internal/timeout"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// App holds the wired components of one process.
type App struct {
	cfg config.Config
	log zerolog.Logger

	Orders     *orders.Service
	Dispatcher *dispatch.Dispatcher
	Publisher  dispatch.Publisher
	// Bus is set in memory mode, where it replaces the kafka topic.
	Bus *dispatch.LocalBus

	idem    httpx.IdempotencyCache
	closers []func()
}

type stores struct {
	repo     orders.Repository
	catalog  orders.Catalog
	stock    inventory.Store
	coupons  coupon.Store
	payments payment.Store
	alerts   alert.Store
	cache    orders.StatusCache
	dedup    dispatch.Deduper
}

// New builds the app for cfg.Store. Postgres mode also connects redis and
// kafka; memory mode is self-contained.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	var st stores
	var err error
	switch cfg.Store {
	case config.StoreMemory:
		st = a.memoryStores()
	default:
		st, err = a.externalStores(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	calc, err := coupon.NewCalculator()
	if err != nil {
		a.Close()
		return nil, err
	}
	ledger := inventory.NewLedger(st.stock, logging.Component(log, "inventory"))
	a.Orders = orders.NewService(orders.Deps{
		Repo:            st.repo,
		Catalog:         st.catalog,
		Stock:           ledger,
		Coupons:         st.coupons,
		Calculator:      calc,
		Payments:        payment.NewTracker(st.payments, logging.Component(log, "payment")),
		Alerts:          alert.NewReporter(st.alerts, log),
		Cache:           st.cache,
		Log:             log,
		DefaultLocation: cfg.DefaultLocation,
	})
	a.Dispatcher = dispatch.New(a.Orders, st.dedup, log)

	if cfg.Store == config.StoreMemory {
		a.Bus = dispatch.NewLocalBus(1024)
		a.Publisher = a.Bus
	}

	if cfg.SeedFile != "" {
		seed, err := LoadSeed(cfg.SeedFile)
		if err == nil {
			err = seed.Apply(ctx, st.catalog, ledger, st.coupons, cfg.DefaultLocation)
		}
		if err != nil {
			a.Close()
			return nil, err
		}
		log.Info().Int("products", len(seed.Products)).Int("coupons", len(seed.Coupons)).Msg("seed applied")
	}
	return a, nil
}

func (a *App) memoryStores() stores {
	payments := payment.NewMemoryStore()
	return stores{
		repo:     orders.NewMemoryRepo(payments),
		catalog:  orders.NewMemoryCatalog(),
		stock:    inventory.NewMemoryStore(),
		coupons:  coupon.NewMemoryStore(),
		payments: payments,
		alerts:   &alert.MemoryStore{},
		dedup:    dispatch.NewMemoryDeduper(),
	}
}

func (a *App) externalStores(ctx context.Context) (stores, error) {
	db, err := postgres.Connect(ctx, a.cfg.PostgresDSN)
	if err != nil {
		return stores{}, errors.Wrap(err, "db connect")
	}
	a.closers = append(a.closers, db.Close)
	if err := postgres.Migrate(ctx, db); err != nil {
		return stores{}, err
	}

	rdb := redisx.New(a.cfg.RedisAddr)
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	if err := redisx.Ping(ctx, rdb); err != nil {
		return stores{}, err
	}
	a.idem = redisx.NewIdempotencyStore(rdb)

	prod := kafkax.NewProducer(a.cfg.KafkaBrokers, a.cfg.PaymentTopic)
	a.closers = append(a.closers, func() { _ = prod.Close() })
	a.Publisher = dispatch.NewKafkaPublisher(prod)

	return stores{
		repo:     &orders.Repo{DB: db},
		catalog:  &orders.PostgresCatalog{DB: db},
		stock:    &inventory.PostgresStore{DB: db},
		coupons:  &coupon.PostgresStore{DB: db},
		payments: &payment.PostgresStore{DB: db},
		alerts:   &alert.PostgresStore{DB: db},
		cache:    redisx.NewStatusCache(rdb, logging.Component(a.log, "cache")),
		dedup:    redisx.NewDeduper(rdb, a.cfg.ServiceName),
	}, nil
}

// Handler is the HTTP API with health and metrics endpoints.
func (a *App) Handler() http.Handler {
	r := httpx.NewRouter()
	(&httpx.OrdersHandler{
		Orders:    a.Orders,
		Idem:      a.idem,
		Publisher: a.Publisher,
		Service:   a.cfg.ServiceName,
		Log:       logging.Component(a.log, "http"),
	}).Register(r)
	return r
}

func (a *App) Scheduler() *timeout.Scheduler {
	return timeout.New(a.Orders, a.cfg.PendingTTL, a.cfg.TimeoutScanInterval, a.cfg.TimeoutBatch, a.log)
}

// Consumer reads payment results from kafka. Memory mode delivers through
// Bus instead.
func (a *App) Consumer() (*kafkax.Consumer, error) {
	if a.cfg.Store == config.StoreMemory {
		return nil, errors.New("memory store has no kafka consumer")
	}
	return kafkax.NewConsumer(a.cfg.KafkaBrokers, a.cfg.ConsumerGroup, a.cfg.PaymentTopic, a.cfg.ConsumerWorkers, a.log), nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
