package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/order-reconciler/internal/app"
	"github.com/ariefcatur/order-reconciler/internal/config"
	"github.com/ariefcatur/order-reconciler/internal/httpx"
	"github.com/ariefcatur/order-reconciler/internal/logging"
	"github.com/ariefcatur/order-reconciler/internal/tracing"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.LogLevel, cfg.ServiceName+"-api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName+"-api", cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build app")
	}

	srv := httpx.NewServer(cfg.HTTPAddr, a.Handler())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.Store).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	// memory mode has no separate reconciler process
	if a.Bus != nil {
		g.Go(func() error { return a.Bus.Run(gctx, a.Dispatcher) })
		g.Go(func() error { return a.Scheduler().Run(gctx) })
	}

	err = g.Wait()
	if err != nil {
		logger.Error().Err(err).Msg("api stopped")
	}
	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if terr := shutdownTracing(tctx); terr != nil {
		logger.Warn().Err(terr).Msg("tracing shutdown")
	}
	a.Close()
	if err != nil {
		os.Exit(1)
	}
}
