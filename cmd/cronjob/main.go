package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"rentshare-backend/internal/clock"
	"rentshare-backend/internal/config"
	"rentshare-backend/internal/jobs"
	"rentshare-backend/internal/lock"
	"rentshare-backend/internal/logger"
	"rentshare-backend/internal/metrics"
	"rentshare-backend/internal/notify"
	"rentshare-backend/internal/repository/postgres"
	"rentshare-backend/internal/scheduler"
	"rentshare-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'complete-reservations', 'all')")
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Rentshare Cronjob Runner...", "log_level", cfg.Log.Level)

	ctx := context.Background()

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := postgres.Open(ctx, cfg.GetDatabaseConnectionString(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize Repositories
	store := postgres.NewStore(db)

	locker, closeLocker, err := buildLocker(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize item locker: %v", err)
	}
	defer closeLocker()

	notifier, closeNotifier, err := buildNotifier(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize notifier: %v", err)
	}
	defer closeNotifier()

	m := metrics.New(prometheus.DefaultRegisterer)
	stopMetrics := serveMetrics(cfg.Metrics.Address)
	defer stopMetrics()

	// Initialize Services
	reservationService := service.NewReservationService(
		store.ReservationRepository,
		store.ItemRepository,
		store.UserRepository,
		locker,
		notifier,
		nil,
		clock.Real(),
		m,
	)

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(store.ReservationRepository, reservationService, clock.Real(), cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := runJobOnce(jobRunner, *runOnce); err != nil {
			logger.Error("Unknown job name", "job", *runOnce)
			fmt.Printf("Available jobs:\n")
			fmt.Printf("  - complete-reservations\n")
			fmt.Printf("  - all\n")
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) error {
	switch jobName {
	case "complete-reservations":
		jobRunner.CompleteElapsedReservations()
	case "all":
		jobRunner.RunAll()
	default:
		return fmt.Errorf("unknown job %q", jobName)
	}
	return nil
}

func buildLocker(ctx context.Context, cfg *config.Config) (lock.ItemLocker, func(), error) {
	if cfg.Locking.Backend != config.LockBackendRedis {
		logger.Info("Using in-process item locks", "timeout", cfg.Locking.Timeout)
		return lock.NewKeyedLocker(cfg.Locking.Timeout), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Address, err)
	}
	logger.Info("Using redis item locks", "address", cfg.Redis.Address, "ttl", cfg.Locking.TTL)
	locker := lock.NewRedisLocker(client, lock.RedisOptions{
		TTL:           cfg.Locking.TTL,
		Wait:          cfg.Locking.Timeout,
		RetryInterval: cfg.Locking.RetryInterval,
	})
	return locker, func() { _ = client.Close() }, nil
}

func buildNotifier(cfg *config.Config) (service.Notifier, func(), error) {
	logNotifier := notify.NewLogNotifier()
	if cfg.Notifier.Backend != config.NotifierBackendAMQP {
		return logNotifier, func() {}, nil
	}

	conn, ch, err := notify.DialAMQP(cfg.AMQP.URL, cfg.Notifier.Queue)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Publishing notifications to AMQP", "queue", cfg.Notifier.Queue)
	amqpNotifier := notify.NewAMQPNotifier(ch, cfg.Notifier.Queue, notify.BreakerSettings{
		FailureRatio: cfg.Notifier.FailureRatio,
		OpenTimeout:  cfg.Notifier.OpenTimeout,
	})
	closeFn := func() {
		_ = ch.Close()
		_ = conn.Close()
	}
	return notify.Fanout{logNotifier, amqpNotifier}, closeFn, nil
}

func serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

