package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"signalserver/internal/config"
	"signalserver/internal/ipfs"
	"signalserver/internal/manager"
	"signalserver/internal/metrics"
	"signalserver/internal/server"
	"signalserver/internal/store"
	"signalserver/internal/worker"
	"signalserver/internal/worker/binance"
	"signalserver/internal/worker/coingecko"
	"signalserver/pkg/logger"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the long-lived price-signal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting signalserver")

	var st store.Store
	if cfg.StoreInMemory {
		st = store.NewMemory()
		log.Info().Msg("using in-memory store")
	} else {
		badgerStore, err := store.New(store.Config{Path: cfg.StorePath, Name: "signalserver"})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open store")
		}
		defer badgerStore.Close()
		st = badgerStore
		log.Info().Str("path", cfg.StorePath).Msg("using badger store")
	}

	versionReq, err := manager.NewMinVersionRange(cfg.RegistryMinVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid registry_min_version")
	}
	ipfsClient := ipfs.NewHTTPGatewayClient(cfg.IPFSGatewayURL)

	mgr := manager.New(st, ipfsClient, cfg.StaleThresholdSeconds, versionReq)

	binanceConnector := binance.NewConnector(cfg.BinanceURL)
	binanceStore := store.NewWorkerStore(st, "binance")
	binanceDriver := worker.NewWebsocketDriver(
		"binance",
		binanceConnector,
		binanceStore,
		time.Duration(cfg.IdleTimeoutSeconds)*time.Second,
		metrics.NewWebsocketMetrics(prometheus.DefaultRegisterer, "binance"),
		log,
	)
	mgr.AddWorker("binance", binanceDriver)

	coingeckoProvider := coingecko.NewProvider(cfg.CoinGeckoURL)
	coingeckoStore := store.NewWorkerStore(st, "coingecko")
	coingeckoDriver := worker.NewRestDriver(
		"coingecko",
		coingeckoProvider,
		coingeckoStore,
		time.Duration(cfg.RestPollIntervalSeconds)*time.Second,
		metrics.NewRestMetrics(prometheus.DefaultRegisterer, "coingecko"),
		log,
	)
	mgr.AddWorker("coingecko", coingeckoDriver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go binanceDriver.Run(ctx)
	go coingeckoDriver.Run(ctx)
	log.Info().Msg("asset workers started")

	srv := server.New(server.Config{
		Log:           log,
		Manager:       mgr,
		Port:          cfg.Port,
		DevMode:       cfg.DevMode,
		BothanVersion: bothanVersion,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
	return nil
}
