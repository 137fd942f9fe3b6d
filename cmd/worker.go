package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/workfin/finance-core/internal/core/events"
	"github.com/workfin/finance-core/internal/expense"
	expensepg "github.com/workfin/finance-core/internal/expense/postgres"
	"github.com/workfin/finance-core/internal/notifier"
	"github.com/workfin/finance-core/internal/workflow"
	workflowpg "github.com/workfin/finance-core/internal/workflow/postgres"
	"github.com/workfin/finance-core/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background worker processes",
	Long:  `Start and manage background workers: the notification dispatcher and the recurring expense generator.`,
}

// Notifier worker command
var notifierWorkerCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Start the notification dispatcher worker pool",
	Long:  `Start the worker pool that delivers status-change events to the configured webhook`,
	Run: func(cmd *cobra.Command, args []string) {
		startNotifierWorker()
	},
}

// Recurring expense generator command
var recurringWorkerCmd = &cobra.Command{
	Use:   "recurring",
	Short: "Start the recurring expense generator",
	Long:  `Start the cron-driven worker that clones approved recurring expenses into fresh pending submissions`,
	Run: func(cmd *cobra.Command, args []string) {
		startRecurringWorker()
	},
}

var (
	maxWorkers     int
	jobQueueSize   int
	workerPoolSize int
	webhookURL     string
	recurringSpec  string
)

func startNotifierWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.LoggerWrapper()

	notifierConfig := config.Notifier
	if webhookURL != "" {
		notifierConfig.WebhookURL = webhookURL
	}
	if maxWorkers > 0 {
		notifierConfig.MaxWorkers = maxWorkers
	}
	if jobQueueSize > 0 {
		notifierConfig.JobQueueSize = jobQueueSize
	}
	if workerPoolSize > 0 {
		notifierConfig.WorkerPoolSize = workerPoolSize
	}

	if notifierConfig.WebhookURL == "" {
		fmt.Fprintln(os.Stderr, "notifier webhook_url is not configured")
		os.Exit(1)
	}

	log.Info("starting notification worker",
		"max_workers", notifierConfig.MaxWorkers,
		"job_queue_size", notifierConfig.JobQueueSize,
		"worker_pool_size", notifierConfig.WorkerPoolSize,
		"webhook_url", notifierConfig.WebhookURL)

	bus := events.NewEventBus(log)
	dispatcher := notifier.NewDispatcher(notifierConfig, log)
	dispatcher.SubscribeAll(bus)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("notification worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	log.Info("received signal, shutting down notification worker", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		dispatcher.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		log.Info("notification worker shutdown complete")
	case <-ctx.Done():
		log.Warn("shutdown timeout reached, forcing exit")
	}
}

func startRecurringWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := initGorm(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize orm: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewEventBus(log)
	engine := workflow.NewEngine(workflowpg.NewExpenseChainStore(gormDB), log)
	expenseService := expense.NewService(expensepg.NewExpenseRepository(gormDB), engine, bus, log)

	spec := config.Scheduler.RecurringSpec
	if recurringSpec != "" {
		spec = recurringSpec
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		created, err := expenseService.GenerateRecurring(ctx, time.Now())
		if err != nil {
			log.Error("recurring expense generation failed", "error", err)
			return
		}
		log.Info("recurring expense run finished", "created", created)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid cron spec %q: %v\n", spec, err)
		os.Exit(1)
	}

	scheduler.Start()
	log.Info("recurring expense worker started", "spec", spec)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received signal, shutting down recurring worker", "signal", sig)

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Warn("shutdown timeout reached, forcing exit")
	}

	log.Info("recurring worker shutdown complete")
}

func init() {
	notifierWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	notifierWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	notifierWorkerCmd.Flags().IntVar(&workerPoolSize, "worker-pool-size", 0, "Worker pool channel size (overrides config)")
	notifierWorkerCmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Webhook delivery URL (overrides config)")

	recurringWorkerCmd.Flags().StringVar(&recurringSpec, "spec", "", "Cron spec for the recurring run (overrides config)")

	workerCmd.AddCommand(notifierWorkerCmd)
	workerCmd.AddCommand(recurringWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
