package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/veridoc/registry-indexer/internal/adapter"
	"github.com/veridoc/registry-indexer/internal/block"
	"github.com/veridoc/registry-indexer/internal/config"
	"github.com/veridoc/registry-indexer/internal/ingest"
	"github.com/veridoc/registry-indexer/internal/logger"
	"github.com/veridoc/registry-indexer/internal/messaging"
	"github.com/veridoc/registry-indexer/internal/providers/ethereum"
	"github.com/veridoc/registry-indexer/internal/providers/jetstream"
	"github.com/veridoc/registry-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "", "Path to environment file")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadIndexerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "indexer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Registry Indexer")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(db); err != nil {
			logger.FatalCtx(ctx, "Failed to migrate database", zap.Error(err))
		}
	}
	logger.InfoCtx(ctx, "Connected to database")

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clockAdapter := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()
	natsJS := adapter.NewNatsJetStream()

	// Initialize ethereum client
	ethDialer := adapter.NewEthClientDialer()
	ethClient, err := ethDialer.Dial(ctx, cfg.Ethereum.RPCURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to dial Ethereum RPC", zap.Error(err), zap.String("rpc_url", cfg.Ethereum.RPCURL))
	}
	defer ethClient.Close()

	// Initialize block provider
	blockProvider, err := block.NewProvider(
		ethereum.NewEthereumBlockFetcher(ethClient),
		block.Config{
			TTL:                cfg.Ethereum.BlockHeadTTL,
			StaleWindow:        cfg.Ethereum.BlockHeadStaleWindow,
			TimestampCacheSize: cfg.Ethereum.TimestampCacheSize,
		},
		clockAdapter,
	)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create block provider", zap.Error(err))
	}

	// Initialize decoder and log source
	decoder, err := ethereum.NewDecoder(cfg.Ethereum.ChainID)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create decoder", zap.Error(err))
	}
	logSource := ethereum.NewLogSource(ethClient, cfg.Ethereum.ContractAddress, cfg.Ethereum.LogChunkSize)

	// Initialize NATS publisher when configured
	var publisher messaging.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = jetstream.NewPublisher(jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, natsJS, jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create NATS publisher", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		defer publisher.Close()
		logger.InfoCtx(ctx, "Connected to NATS JetStream")
	} else {
		logger.WarnCtx(ctx, "NATS URL not configured, change notifications disabled")
	}

	// Initialize contract reader for backfill when enabled
	var reader ingest.RegistryReader
	if cfg.Ingest.BackfillEnabled {
		registryReader, err := ethereum.NewRegistryReader(ethClient, cfg.Ethereum.ContractAddress)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create registry reader", zap.Error(err))
		}
		reader = registryReader
	}

	// Create ingester
	ingester := ingest.NewIngester(
		logSource,
		decoder,
		dataStore,
		blockProvider,
		publisher,
		reader,
		clockAdapter,
		ingest.Config{
			Chain:             cfg.Ethereum.ChainID,
			StartBlock:        cfg.Ingest.StartBlock,
			Confirmations:     cfg.Ingest.Confirmations,
			PollInterval:      cfg.Ingest.PollInterval,
			MaxBlocksPerCycle: cfg.Ingest.MaxBlocksPerCycle,
			DecodeWorkers:     cfg.Ingest.DecodeWorkers,
		},
	)

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel for ingester errors
	errCh := make(chan error, 1)

	// Start the ingester
	go func() {
		if err := ingester.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "ingester"))
		cancel()
	}

	// Give some time for graceful shutdown
	time.Sleep(time.Second)

	// Use non-context logger for final shutdown message since context is already canceled
	logger.Info("Registry Indexer stopped")
}
