package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/config"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/consumer"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/repository"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/routes"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/scheduler"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/services"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/logger"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/metrics"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel, "text")
	logr.Info("starting notification worker", slog.String("app", cfg.AppName))

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	defer rdb.Close()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logr.Error("failed to connect rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	ledgerStore := repository.NewLedgerStore(db)
	tokenStore := repository.NewTokenStore(db)
	contactStore := repository.NewContactStore(db)
	presence := repository.NewPresenceDirectory(rdb)
	digests := repository.NewDigestStore(rdb, cfg.DigestTTL)

	metricsCollector := metrics.New()

	publishRetry := retry.Config{
		MaxAttempts:    cfg.PublishMaxAttempts,
		InitialBackoff: cfg.PublishInitialBackoff,
		MaxBackoff:     cfg.PublishMaxBackoff,
	}
	jobScheduler, err := scheduler.New(conn, cfg.RetryQueue, metricsCollector, logr, publishRetry)
	if err != nil {
		logr.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	defer jobScheduler.Close()

	ledgerManager := services.NewLedgerManager(ledgerStore, jobScheduler, logr)

	fcmProvider := services.NewFCMProvider(cfg.FCMServerKey, cfg.FCMEndpoint, cfg.ProviderTimeout, logr)
	orchestrator := services.NewOrchestrator(
		presence,
		tokenStore,
		fcmProvider,
		ledgerManager,
		metricsCollector,
		logr,
		cfg.PresenceRole,
		cfg.BatchSize,
		cfg.BatchPause,
	)

	smsSender := services.NewHTTPSMSSender(cfg.SMSGatewayURL, cfg.SMSGatewayToken, cfg.ProviderTimeout)
	emailSender := services.NewGomailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	escalation := services.NewEscalationHandler(
		contactStore,
		smsSender,
		emailSender,
		digests,
		ledgerManager,
		cfg.CriticalCategories,
		cfg.OpportunityCategories,
		metricsCollector,
		logr,
	)

	base := consumer.NewBaseConsumer(
		conn,
		cfg.RetryQueue,
		cfg.DeadLetterQueue,
		cfg.PrefetchCount,
		cfg.WorkerCount,
		logr,
	)
	// Retries run without a live callback here; the session gateway owns the
	// connections and embeds the orchestrator directly for direct sends.
	worker := consumer.NewRetryWorker(base, orchestrator, ledgerManager, escalation, jobScheduler, nil, metricsCollector, logr, 3)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanup := consumer.NewCleanupJob(ledgerManager, cfg.CleanupRetention, cfg.CleanupInterval, logr)
	go cleanup.Run(ctx)

	started := time.Now()
	httpSrv := startHTTPServer(cfg.HTTPPort, metricsCollector, ledgerManager, logr, started)

	if err := worker.Start(ctx); err != nil {
		logr.Error("retry worker exited", slog.Any("error", err))
	}

	shutdownHTTP(httpSrv, logr)
	logr.Info("notification worker stopped")
}

func startHTTPServer(port string, m *metrics.Metrics, ledger routes.LedgerReporter, logr *slog.Logger, started time.Time) *http.Server {
	if port == "" {
		port = "8083"
	}
	handler := routes.NewRouter(m, ledger, started)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
