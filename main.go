package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"krakenOrderTracker/config"
	"krakenOrderTracker/internal/adapters/binanceref"
	"krakenOrderTracker/internal/adapters/krakenws"
	"krakenOrderTracker/internal/adapters/logger"
	"krakenOrderTracker/internal/adapters/sqlite"
	"krakenOrderTracker/internal/analytics"
	"krakenOrderTracker/internal/app"
	"krakenOrderTracker/internal/events"
	"krakenOrderTracker/internal/feed"
	"krakenOrderTracker/internal/orders"
	"krakenOrderTracker/internal/ports"
	"krakenOrderTracker/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Fill Journal (Database Adapter)
	journal, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize fill journal")
		log.Fatalf("FATAL: Failed to initialize fill journal: %v", err) // Also log to stderr
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing fill journal")
		}
	}()
	appLogger.Info(context.Background(), "Fill journal initialized")

	// 4. Initialize Event Dispatcher
	dispatcher, err := events.NewDispatcher(appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize event dispatcher")
		log.Fatalf("FATAL: Failed to initialize event dispatcher: %v", err)
	}

	// 5. Initialize Order Manager
	manager, err := orders.NewManager(orders.Config{
		Logger:     appLogger,
		Dispatcher: dispatcher,
		Journal:    journal,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize order manager")
		log.Fatalf("FATAL: Failed to initialize order manager: %v", err)
	}

	// 6. Initialize Feed Reconciler
	reconciler, err := feed.NewReconciler(feed.Config{
		Logger:     appLogger,
		Manager:    manager,
		Dispatcher: dispatcher,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize feed reconciler")
		log.Fatalf("FATAL: Failed to initialize feed reconciler: %v", err)
	}

	// 7. Initialize Reference Price Source (optional)
	var refPrices ports.ReferencePriceSource
	if cfg.ReferencePriceSource == config.RefSourceBinance {
		refClient, err := binanceref.New(binanceref.Config{
			Logger:     appLogger,
			UseTestnet: cfg.BinanceTestnet,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize reference price source")
			log.Fatalf("FATAL: Failed to initialize reference price source: %v", err)
		}
		refPrices = refClient
		appLogger.Info(context.Background(), "Reference price source initialized", map[string]interface{}{
			"source":  cfg.ReferencePriceSource,
			"testnet": cfg.BinanceTestnet,
		})
	}

	// 8. Initialize Analytics Engine
	engine, err := analytics.NewEngine(analytics.Config{
		Logger:    appLogger,
		RefPrices: refPrices,
		Risk: risk.RiskConfig{
			MaxDrawdownPct:  cfg.MaxDrawdownPct,
			MaxPositionSize: cfg.MaxPositionSize,
			MaxDailyLoss:    cfg.MaxDailyLoss,
		},
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize analytics engine")
		log.Fatalf("FATAL: Failed to initialize analytics engine: %v", err)
	}

	// 9. Initialize Kraken Feed Client
	feedClient, err := krakenws.New(krakenws.Config{
		URL:                  cfg.WSURL,
		Token:                cfg.WSToken,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Kraken feed client")
		log.Fatalf("FATAL: Failed to initialize Kraken feed client: %v", err)
	}
	appLogger.Info(context.Background(), "Kraken feed client initialized")

	// 10. Initialize Application Service
	trackerService, err := app.NewTrackerService(
		appLogger,
		feedClient, // Pass the concrete implementation, service expects the interface
		manager,
		reconciler,
		dispatcher,
		engine,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize tracker service")
		log.Fatalf("FATAL: Failed to initialize tracker service: %v", err)
	}
	appLogger.Info(context.Background(), "Tracker service initialized")

	// 11. Start the Service
	// Use context.Background() as the base context for the application run
	if err := trackerService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Tracker service exited with error")
		log.Fatalf("FATAL: Tracker service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
