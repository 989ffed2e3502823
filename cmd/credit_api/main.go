package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/provider-credit-ledger/internal/api_gateway"
	"github.com/provider-credit-ledger/internal/api_gateway/service"
	"github.com/provider-credit-ledger/internal/config"
	"github.com/provider-credit-ledger/internal/credits"
	"github.com/provider-credit-ledger/internal/data/mongo"
	"github.com/provider-credit-ledger/internal/data/postgres"
	"github.com/provider-credit-ledger/internal/logger"
	"github.com/provider-credit-ledger/internal/payments"
	"github.com/provider-credit-ledger/internal/platform/gateway"
	"github.com/provider-credit-ledger/internal/platform/messaging/producers"
	"github.com/provider-credit-ledger/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("credit_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Manual interaction tracking publishes to the interaction topic
	eventProducer, err := producers.NewInteractionEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize interaction event producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	ledgerStore := postgres.NewLedgerStore(log, postgresDB, cfg.Credits.SignupBonus)
	purchaseRepo := postgres.NewPurchaseRepository(log, postgresDB, ledgerStore)
	catalogRepo := postgres.NewCatalogRepository(log, postgresDB)
	activityRepo := mongo.NewActivityRepository(log, mongoDB.Database())

	// Initialize services
	ledger := credits.NewLedger(log, ledgerStore)
	flutterwave := gateway.NewFlutterwaveClient(log, &cfg.Gateway)
	reconciler := payments.NewReconciler(log, catalogRepo, purchaseRepo, flutterwave, cfg.Purchases.Currency)

	creditService := service.NewCreditService(log, ledger, activityRepo, eventProducer)
	purchaseService := service.NewPurchaseService(catalogRepo, reconciler)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, creditService, purchaseService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before closing what they depend on
	var shutdownErr error
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
		shutdownErr = err
	}

	if err := eventProducer.Close(); err != nil {
		log.Error("Error closing interaction event producer", "error", err)
		shutdownErr = err
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		shutdownErr = err
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if shutdownErr != nil {
		log.Error("Server shutdown completed with errors")
		os.Exit(1)
	}
	log.Info("Server shutdown completed successfully")
}
