// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vendor-billing-engine/internal/config"
	"vendor-billing-engine/internal/domain/ports/adapter"
	pg "vendor-billing-engine/internal/infra/db/postgres"
	"vendor-billing-engine/internal/infra/logging"
	"vendor-billing-engine/internal/infra/metrics"
	pay "vendor-billing-engine/internal/infra/payment"
	red "vendor-billing-engine/internal/infra/redis"
	"vendor-billing-engine/internal/infra/sched"
	"vendor-billing-engine/internal/infra/web"
	"vendor-billing-engine/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (pretty logs, noop gateway fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	// ---- Plan catalog ----
	catalog, err := cfg.BuildCatalog()
	if err != nil {
		logger.Fatal().Err(err).Msg("plan catalog")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, int32(cfg.Database.PoolSize))
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	subRepo := pg.NewSubscriptionRepo(pool)
	ledgerRepo := pg.NewLedgerRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Gateway.SecretKey != "" {
		gateway = pay.NewPayMongoGateway(cfg.Gateway.SecretKey, cfg.Gateway.BaseURL, cfg.Gateway.Timeout)
	} else if cfg.Runtime.Dev {
		logger.Warn().Msg("gateway.secret_key not set; using noop gateway (dev only)")
		gateway = pay.NewNoopGateway()
	} else {
		logger.Fatal().Msgf("no payment provider configured: set gateway.secret_key in %s", *cfgPath)
	}
	logger.Info().Str("gateway", gateway.Name()).Msg("payment gateway ready")

	// ---- Use cases ----
	subUC := usecase.NewSubscriptionUseCase(subRepo, ledgerRepo, catalog, gateway, txManager, cfg.Billing.Currency, logger)
	billingUC := usecase.NewBillingUseCase(subRepo, ledgerRepo, catalog, gateway, txManager, locker, cfg.Billing.SweepSecret, cfg.Billing.Currency, logger)
	webhookUC := usecase.NewWebhookUseCase(subRepo, ledgerRepo, gateway, txManager, cfg.Billing.Currency, logger)

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- HTTP server ----
	srv := web.NewServer(cfg, subUC, billingUC, webhookUC, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Billing worker ----
	worker := sched.NewBillingWorker(cfg.Billing.SweepInterval, cfg.Billing.SweepSecret, billingUC, logger)
	go func() { _ = worker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
