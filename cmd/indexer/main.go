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

	"github.com/intersect-mbo/treasury-indexer/internal/adapter"
	"github.com/intersect-mbo/treasury-indexer/internal/applier"
	"github.com/intersect-mbo/treasury-indexer/internal/config"
	"github.com/intersect-mbo/treasury-indexer/internal/extractor"
	"github.com/intersect-mbo/treasury-indexer/internal/guard"
	"github.com/intersect-mbo/treasury-indexer/internal/listener"
	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/metadata"
	"github.com/intersect-mbo/treasury-indexer/internal/registry"
	"github.com/intersect-mbo/treasury-indexer/internal/server"
	"github.com/intersect-mbo/treasury-indexer/internal/store"
	"github.com/intersect-mbo/treasury-indexer/internal/store/schema"
	"github.com/intersect-mbo/treasury-indexer/internal/tracker"
)

var (
	configPath = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "", "Path to the directory holding .env files")
)

func main() {
	flag.Parse()

	config.ChdirRepoRoot()

	// Load configuration
	cfg, err := config.LoadIndexerConfig(*configPath, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"service": "treasury-indexer"},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.Info("Starting treasury indexer")

	// Connect to database
	db, err := store.Open(cfg.Database.DSN())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
		cfg.Database.ConnMaxIdleTime,
	); err != nil {
		logger.Fatal("Failed to configure connection pool", zap.Error(err))
	}
	if err := store.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Connected to database")

	dataStore := store.NewPGStore(db)

	if err := recordStakeAddress(context.Background(), dataStore, cfg.Treasury); err != nil {
		logger.Fatal("Failed to record treasury stake address", zap.Error(err))
	}

	// Initialize adapters
	jsonAdapter := adapter.NewJSON()
	natsJS := adapter.NewNatsJetStream()
	clock := adapter.NewClock()
	httpClient := adapter.NewHTTPClient(cfg.Anchor.FetchTimeout, cfg.Anchor.MaxRetries)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build the pipeline
	addressRegistry := registry.NewAddressRegistry(cfg.Treasury.PaymentAddress, cfg.Treasury.ScriptHash)
	if err := addressRegistry.Seed(ctx, dataStore); err != nil {
		logger.Fatal("Failed to seed address registry", zap.Error(err))
	}

	duplicateGuard := guard.NewDuplicateGuard(dataStore, cfg.Guard.CacheLimit)
	contractExtractor := extractor.NewVendorContractExtractor(dataStore, addressRegistry, cfg.Treasury.PaymentAddress)
	eventApplier := applier.NewTreasuryEventApplier(
		dataStore,
		duplicateGuard,
		contractExtractor,
		clock,
		cfg.Treasury.ScriptHash,
		cfg.Treasury.PaymentAddress,
	)

	anchorFetcher := metadata.NewAnchorFetcher(httpClient, cfg.Anchor.MaxBytes)
	decoder := metadata.NewDecoder(anchorFetcher)
	slotTracker := tracker.NewSlotTracker(dataStore, cfg.Treasury.StartSlot)

	chainListener, err := listener.NewListener(
		listener.Config{
			URL:               cfg.NATS.URL,
			StreamName:        cfg.NATS.StreamName,
			ConsumerName:      cfg.NATS.ConsumerName,
			ConnectionName:    cfg.NATS.ConnectionName,
			MaxReconnects:     cfg.NATS.MaxReconnects,
			ReconnectWait:     cfg.NATS.ReconnectWait,
			AckWaitTimeout:    cfg.NATS.AckWait,
			MaxDeliver:        cfg.NATS.MaxDeliver,
			Workers:           cfg.Worker.PoolSize,
			QueueSize:         cfg.Worker.QueueSize,
			MaturityScanEvery: cfg.Worker.MaturityScanEvery,
		},
		natsJS,
		jsonAdapter,
		decoder,
		eventApplier,
		addressRegistry,
		slotTracker,
	)
	if err != nil {
		logger.Fatal("Failed to create chain event listener", zap.Error(err))
	}
	defer chainListener.Close()

	opsServer := server.New(
		server.Config{
			Debug:        cfg.Debug,
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		},
		dataStore,
		slotTracker,
		duplicateGuard,
	)

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	go func() {
		if err := chainListener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	go func() {
		if err := opsServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or component failure
	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.Error(err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(err)
	}

	logger.Info("Treasury indexer stopped")
}

// recordStakeAddress stores the configured stake address on the treasury
// instance row. The stake address is deployment configuration, not part of
// any on-chain event, so it is reconciled once at startup.
func recordStakeAddress(ctx context.Context, dataStore store.Store, cfg config.TreasuryConfig) error {
	if cfg.StakeAddress == "" {
		return nil
	}

	instance, err := dataStore.GetInstanceByScriptHash(ctx, cfg.ScriptHash)
	if err != nil {
		return err
	}
	if instance == nil {
		instance = &schema.TreasuryInstance{
			ScriptHash:     cfg.ScriptHash,
			PaymentAddress: cfg.PaymentAddress,
		}
	}
	if instance.StakeAddress != nil && *instance.StakeAddress == cfg.StakeAddress {
		return nil
	}

	stakeAddress := cfg.StakeAddress
	instance.StakeAddress = &stakeAddress
	return dataStore.SaveInstance(ctx, instance)
}
