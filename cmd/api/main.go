package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/boma-settlement/internal/config"
	"github.com/josh-kwaku/boma-settlement/internal/gateway"
	"github.com/josh-kwaku/boma-settlement/internal/gateway/azampay"
	"github.com/josh-kwaku/boma-settlement/internal/gateway/razorpay"
	"github.com/josh-kwaku/boma-settlement/internal/handler"
	"github.com/josh-kwaku/boma-settlement/internal/ledger"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
	"github.com/josh-kwaku/boma-settlement/internal/notify"
	"github.com/josh-kwaku/boma-settlement/internal/policy"
	"github.com/josh-kwaku/boma-settlement/internal/pricing"
	"github.com/josh-kwaku/boma-settlement/internal/repository"
	"github.com/josh-kwaku/boma-settlement/internal/service/booking"
	"github.com/josh-kwaku/boma-settlement/internal/service/payment"
	"github.com/josh-kwaku/boma-settlement/internal/service/reconcile"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Init("boma-api", cfg.LogLevel, cfg.AppEnv, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		PingAttempts:     cfg.DBPingAttempts,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	sink, err := newSink(cfg, logger)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(sink, cfg.NotifyBuffer, logger.With("component", "notify"))
	go dispatcher.Run()

	rules, err := policy.ParseRules(cfg.CancellationRules)
	if err != nil {
		return fmt.Errorf("CANCELLATION_RULES: %w", err)
	}

	gateways := newGatewayRegistry(cfg)
	logger.Info("payment gateways enabled", "gateways", gateways.Names(), "default", cfg.DefaultGateway)

	bookings := repository.NewBookingRepository(db)
	payments := repository.NewPaymentRepository(db)
	refunds := repository.NewRefundRepository(db)
	book := ledger.New(repository.NewLedgerRepository(db))

	bookingSvc := booking.NewService(
		bookings,
		repository.NewPropertyRepository(db),
		repository.NewAvailabilityGuard(db),
		payments,
		refunds,
		book,
		pricing.NewCalculator(cfg.PlatformFeePct),
		policy.NewEngine(rules),
		dispatcher,
		db,
		booking.Settings{
			PaymentWindow:   cfg.PaymentWindow,
			DepositHold:     cfg.DepositHold,
			StoreTimeout:    cfg.StoreTimeout,
			ConflictRetries: cfg.ConflictRetries,
		},
	)

	orchestrator := payment.NewOrchestrator(
		payments,
		repository.NewPaymentEventRepository(db),
		repository.NewAnomalyRepository(db),
		repository.NewGatewayEventRepository(db),
		refunds,
		book,
		bookingSvc,
		gateways,
		dispatcher,
		db,
		payment.Settings{
			DefaultGateway:  cfg.DefaultGateway,
			GatewayFeePct:   decimal.NewFromFloat(cfg.GatewayFeePct),
			PaymentTimeout:  cfg.PaymentTimeout,
			MaxAttempts:     cfg.PaymentMaxAttempts,
			StoreTimeout:    cfg.StoreTimeout,
			ConflictRetries: cfg.ConflictRetries,
		},
	)

	job := reconcile.NewJob(payments, bookings, orchestrator, bookingSvc, logger.With("component", "reconcile"), reconcile.Settings{
		Interval:   cfg.ReconcileInterval,
		StaleAfter: cfg.ReconcileStale,
	})
	jobCtx, cancelJob := context.WithCancel(context.Background())
	jobDone := make(chan struct{})
	go func() {
		defer close(jobDone)
		job.Start(jobCtx)
	}()

	routes, err := newRouter(routerDeps{
		cfg:         cfg,
		db:          db,
		rdb:         rdb,
		bookings:    handler.NewBookingHandler(bookingSvc),
		payments:    handler.NewPaymentHandler(orchestrator),
		webhooks:    handler.NewWebhookHandler(orchestrator),
		ledger:      handler.NewLedgerHandler(book),
		idempotency: idempotencyStore(rdb, cfg.IdempotencyTTL),
	})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           routes,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	cancelJob()
	<-jobDone

	if err := dispatcher.Close(); err != nil {
		logger.Error("notification sink close failed", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func newSink(cfg *config.Config, logger *slog.Logger) (notify.Sink, error) {
	switch cfg.NotifyBackend {
	case "amqp":
		s, err := notify.NewAMQPSink(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("notification sink: %w", err)
		}
		return s, nil
	case "kafka":
		return notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return notify.NewLogSink(logger.With("component", "notify")), nil
	}
}

func newGatewayRegistry(cfg *config.Config) *gateway.Registry {
	var adapters []gateway.Adapter
	if cfg.AzamPay.Enabled() {
		adapters = append(adapters, azampay.NewClient(azampay.Config{
			AuthURL:         cfg.AzamPay.AuthURL,
			APIURL:          cfg.AzamPay.APIURL,
			AppName:         cfg.AzamPay.AppName,
			ClientID:        cfg.AzamPay.ClientID,
			ClientSecret:    cfg.AzamPay.ClientSecret,
			WebhookSecret:   cfg.AzamPay.WebhookSecret,
			DefaultProvider: cfg.AzamPay.DefaultProvider,
			Timeout:         cfg.AzamPay.Timeout,
			MaxRetries:      cfg.AzamPay.MaxRetries,
		}))
	}
	if cfg.Razorpay.Enabled() {
		adapters = append(adapters, razorpay.NewClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.WebhookSecret))
	}
	return gateway.NewRegistry(adapters...)
}

func idempotencyStore(rdb *redis.Client, ttl time.Duration) *repository.IdempotencyRepository {
	if rdb == nil {
		return nil
	}
	return repository.NewIdempotencyRepository(rdb, ttl)
}
