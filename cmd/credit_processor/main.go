package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/provider-credit-ledger/internal/config"
	"github.com/provider-credit-ledger/internal/credit_processor/consumer"
	"github.com/provider-credit-ledger/internal/credit_processor/dispatcher"
	"github.com/provider-credit-ledger/internal/credit_processor/grants"
	"github.com/provider-credit-ledger/internal/credit_processor/outbox_poller"
	"github.com/provider-credit-ledger/internal/credit_processor/scheduler"
	"github.com/provider-credit-ledger/internal/credits"
	"github.com/provider-credit-ledger/internal/data/mongo"
	"github.com/provider-credit-ledger/internal/data/postgres"
	"github.com/provider-credit-ledger/internal/logger"
	"github.com/provider-credit-ledger/internal/payments"
	"github.com/provider-credit-ledger/internal/platform/gateway"
	"github.com/provider-credit-ledger/internal/platform/messaging/consumers"
	"github.com/provider-credit-ledger/internal/platform/messaging/producers"
	"github.com/provider-credit-ledger/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("credit_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Credit Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context; PostgreSQL runs the migrations
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

	if err := mongoDB.EnsureIndexes(appCtx, mongo.ActivityCollectionName, mongo.ActivityIndexes()); err != nil {
		log.Error("Failed to ensure activity indexes", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	ledgerStore := postgres.NewLedgerStore(log, postgresDB, cfg.Credits.SignupBonus)
	purchaseRepo := postgres.NewPurchaseRepository(log, postgresDB, ledgerStore)
	catalogRepo := postgres.NewCatalogRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	activityRepo := mongo.NewActivityRepository(log, mongoDB.Database())

	ledger := credits.NewLedger(log, ledgerStore)
	costs := credits.NewCostCatalog(log, catalogRepo, cfg.Credits.DefaultCosts)

	// Debit dispatcher behind the worker pool
	poolDispatcher, err := dispatcher.NewWorkerPoolDispatcher(
		dispatcher.NewDispatcher(log, ledger, costs),
		dispatcher.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		log,
	)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka consumer
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// Initialize Kafka DLQ producer
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	// Keep the handler's publisher a true nil interface when the DLQ is disabled
	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}
	eventHandler := consumer.NewInteractionEventHandler(log, poolDispatcher, deadLetters)

	// Initialize outbox poller
	activityPublisher := outbox_poller.NewActivityPublisher(outboxRepo, activityRepo, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, outboxRepo, activityPublisher, log)

	// Scheduled jobs
	grantJob := grants.NewGrantJob(log, ledger, grants.Config{
		Amount:      cfg.Credits.MonthlyGrant,
		BatchSize:   cfg.Credits.GrantBatchSize,
		Concurrency: cfg.Credits.GrantConcurrency,
	})
	reconciler := payments.NewReconciler(log, catalogRepo, purchaseRepo, gateway.NewFlutterwaveClient(log, &cfg.Gateway), cfg.Purchases.Currency)
	sweeper := payments.NewPurchaseSweeper(log, reconciler, purchaseRepo, cfg.Purchases.PendingTTL, cfg.Purchases.SweepBatchSize)

	jobs := scheduler.NewScheduler(log)
	if err := jobs.Register(grantJob.Name(), cfg.Credits.GrantSchedule, func(ctx context.Context, now time.Time) error {
		_, err := grantJob.Run(ctx, now)
		return err
	}); err != nil {
		log.Error("Failed to schedule monthly grant", "error", err)
		os.Exit(1)
	}
	if err := jobs.Register(sweeper.Name(), cfg.Purchases.SweepSchedule, func(ctx context.Context, now time.Time) error {
		_, err := sweeper.Run(ctx, now)
		return err
	}); err != nil {
		log.Error("Failed to schedule purchase sweep", "error", err)
		os.Exit(1)
	}

	// Create error channel for service errors
	errChan := make(chan error, 1)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	log.Info("Starting Kafka consumer",
		"topic", cfg.Kafka.InteractionTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Subscribe(appCtx, eventHandler.HandleMessage); err != nil {
		errChan <- fmt.Errorf("kafka consumer error: %w", err)
	}

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	jobs.Start()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	if err := jobs.Stop(shutdownCtx); err != nil {
		log.Warn("Scheduled jobs did not stop in time", "error", err)
	}

	// Wait for the poller to finish its current batch
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Close Kafka consumer before the pool so no new dispatches arrive
	var shutdownErr error
	if err := kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
		shutdownErr = err
	}

	poolDispatcher.Shutdown()

	// dlqProducer is nil when no DLQ topic is configured
	if dlqProducer != nil {
		if err := dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
			shutdownErr = err
		}
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		shutdownErr = err
	}

	// Final status
	if serviceErr != nil {
		log.Error("Credit Processor shutdown with errors", "error", serviceErr)
	}
	if shutdownErr != nil {
		log.Error("Credit Processor shutdown completed with errors")
		os.Exit(1)
	}
	log.Info("Credit Processor shutdown completed successfully")
}
