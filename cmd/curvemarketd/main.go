// Command curvemarketd runs the bonding-curve prediction market daemon: it
// loads configuration, migrates the sqlite store, rehydrates markets, and
// serves the HTTP API and WebSocket event feed until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/curvemarkets/curvemarkets/pkg/config"
	"github.com/curvemarkets/curvemarkets/pkg/fixedpoint"
	"github.com/curvemarkets/curvemarkets/pkg/market"
	"github.com/curvemarkets/curvemarkets/pkg/marketapi"
	"github.com/curvemarkets/curvemarkets/pkg/marketstore"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	marketstore.EnsureMigrations(cfg.DB.Path)
	store, err := marketstore.NewSqliteStore(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	var defaultK *uint256.Int
	if cfg.Market.DefaultK != "" {
		defaultK, err = fixedpoint.FromDecimal(cfg.Market.DefaultK)
		if err != nil {
			log.Fatal().Err(err).Msg("bad default_k")
		}
	}

	hub := marketapi.NewHub(logger)
	engine := market.NewEngine(market.Params{
		Ledger:     store,
		Collateral: store,
		Access:     market.SingleHolder{Account: cfg.Market.Admin},
		Events:     market.MultiSink{hub, market.LogSink{Log: logger}},
		Persister:  store,
		Logger:     logger,
		Operator:   cfg.Market.Operator,
		DefaultK:   defaultK,
	})

	persisted, err := store.LoadMarkets(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load markets")
	}
	if err := engine.Restore(persisted); err != nil {
		log.Fatal().Err(err).Msg("failed to restore markets")
	}
	logger.Info().Int("markets", len(persisted)).Str("addr", cfg.Server.Addr).
		Msg("curvemarketd starting")

	api := marketapi.NewServer(engine, store, hub, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("curvemarketd exited with error")
	}
	logger.Info().Msg("curvemarketd stopped")
}
