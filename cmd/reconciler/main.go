package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/order-reconciler/internal/app"
	"github.com/ariefcatur/order-reconciler/internal/config"
	"github.com/ariefcatur/order-reconciler/internal/logging"
	"github.com/ariefcatur/order-reconciler/internal/tracing"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// reconciler consumes payment results and expires unpaid orders.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.LogLevel, cfg.ServiceName+"-reconciler")
	if cfg.Store == config.StoreMemory {
		logger.Fatal().Msg("reconciler needs STORE=postgres; memory mode runs inside the api")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName+"-reconciler", cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build app")
	}
	consumer, err := a.Consumer()
	if err != nil {
		a.Close()
		logger.Fatal().Err(err).Msg("consumer")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("topic", cfg.PaymentTopic).Str("group", cfg.ConsumerGroup).Msg("consuming payment results")
		return consumer.Start(gctx, a.Dispatcher.HandleMessage)
	})
	g.Go(func() error { return a.Scheduler().Run(gctx) })

	err = g.Wait()
	if err != nil {
		logger.Error().Err(err).Msg("reconciler stopped")
	} else {
		logger.Info().Msg("reconciler stopped")
	}
	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = shutdownTracing(tctx)
	a.Close()
	if err != nil {
		os.Exit(1)
	}
}
