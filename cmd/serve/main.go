// Package main provides the whale tracking engine's process entry point: it
// wires storage, collectors, the backfill orchestrator, live ingest loops,
// the scheduler, the copy-trading session manager, and the HTTP API server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/api"
	"github.com/whalewatch/engine/internal/backfill"
	"github.com/whalewatch/engine/internal/broadcast"
	"github.com/whalewatch/engine/internal/collector"
	"github.com/whalewatch/engine/internal/config"
	"github.com/whalewatch/engine/internal/copier"
	"github.com/whalewatch/engine/internal/ingest"
	"github.com/whalewatch/engine/internal/logging"
	"github.com/whalewatch/engine/internal/metrics"
	"github.com/whalewatch/engine/internal/priceoracle"
	"github.com/whalewatch/engine/internal/scheduler"
	"github.com/whalewatch/engine/internal/storage"
	"github.com/whalewatch/engine/internal/types"
)

func main() {
	fmt.Println("Whalewatch Engine")
	log.Println("Server starting...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	whales := storage.NewWhaleRepository(postgres)
	holdings := storage.NewHoldingRepository(postgres)
	metricsRepo := storage.NewMetricsRepository(postgres)
	backfillRepo := storage.NewBackfillRepository(postgres)
	backtestRepo := storage.NewBacktestRepository(postgres)
	checkpoints := storage.NewCheckpointRepository(postgres)
	trades := storage.NewTradeRepository(clickhouse)
	events := storage.NewEventRepository(clickhouse)
	priceHistory := storage.NewPriceHistoryRepository(clickhouse)

	priceClient := priceoracle.NewClient(cfg.Sources.PriceAPIBaseURL, cfg.Ingestion.RequestTimeout)
	oracle := priceoracle.NewOracle(priceClient, redis, priceHistory, cfg.Cache.SpotTTL)

	engine := metrics.NewEngine(trades, holdings, metricsRepo, oracle)

	thresholds := collector.EventThresholds{
		LargeSwap:     decimalFromFloat(cfg.Thresholds.LargeSwap),
		LargeTransfer: decimalFromFloat(cfg.Thresholds.LargeTransfer),
		ExchangeFlow:  decimalFromFloat(cfg.Thresholds.ExchangeFlow),
		PerpTrade:     decimalFromFloat(cfg.Thresholds.PerpTrade),
	}

	logger.Info("Initializing source collectors...")
	collectors := make(map[types.ChainID]collector.Collector)

	if cfg.Sources.EVMRPCHTTPURL != "" {
		evmCollector, err := collector.NewEVMCollector(cfg.Sources.EVMRPCHTTPURL, checkpoints, trades, events, oracle, thresholds)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize EVM collector")
		} else {
			collectors[types.ChainEVM] = evmCollector
			logger.Info("EVM collector initialized")
		}
	} else {
		logger.Warn("EVM_RPC_HTTP_URL not set, skipping EVM collector")
	}

	if cfg.Sources.UTXOAPIBaseURL != "" {
		collectors[types.ChainUTXO] = collector.NewUTXOCollector(cfg.Sources.UTXOAPIBaseURL, cfg.Ingestion.RequestTimeout, checkpoints, trades, events, oracle, thresholds)
		logger.Info("UTXO collector initialized")
	} else {
		logger.Warn("UTXO_API_BASE_URL not set, skipping UTXO collector")
	}

	if cfg.Sources.PerpInfoURL != "" {
		collectors[types.ChainPerp] = collector.NewPerpCollector(cfg.Sources.PerpInfoURL, cfg.Ingestion.RequestTimeout, checkpoints, trades, events, holdings, oracle, thresholds)
		logger.Info("PERP collector initialized")
	} else {
		logger.Warn("PERP_INFO_URL not set, skipping PERP collector")
	}

	orchestrator := backfill.NewOrchestrator(backfillRepo, whales, trades, events, holdings, checkpoints, metricsRepo, engine, collectors, cfg.Ingestion.BackfillWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orchestrator.Start(ctx)

	broadcaster := broadcast.NewBroadcaster()

	if cfg.Ingestion.EnableIngestors {
		logger.Info("Starting live ingest loops...")
		pollIntervals := map[types.ChainID]time.Duration{
			types.ChainEVM:  cfg.Ingestion.EVMPollInterval,
			types.ChainUTXO: cfg.Ingestion.UTXOPollInterval,
			types.ChainPerp: cfg.Ingestion.PerpPollInterval,
		}
		for source, c := range collectors {
			interval := pollIntervals[source]
			if interval <= 0 {
				interval = 15 * time.Second
			}
			loop := ingest.NewLoop(source, interval, c, whales, engine, broadcaster, redis)
			go loop.Run(ctx)
			logger.WithFields(map[string]interface{}{
				"source":   string(source),
				"interval": interval.String(),
			}).Info("Ingest loop started")
		}
	} else {
		logger.Warn("Ingestors disabled via ENABLE_INGESTORS=false")
	}

	if cfg.Ingestion.EnableScheduler {
		sched := scheduler.NewScheduler(whales, trades, metricsRepo, engine, oracle, redis, cfg.Classifier, cfg.Ingestion.TrackedAssets)
		sched.Start(ctx)
		logger.Info("Scheduler started")
	} else {
		logger.Warn("Scheduler disabled via ENABLE_SCHEDULER=false")
	}

	sessions := copier.NewManager(backtestRepo, trades)
	if err := sessions.ResumeActive(ctx); err != nil {
		logger.WithError(err).Warn("Failed to resume active copier sessions")
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RequestsPerSec:  50,
	}

	server := api.NewServer(serverConfig, whales, trades, events, holdings, metricsRepo, backfillRepo, backtestRepo, engine, oracle, orchestrator, broadcaster, sessions)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
