package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/madina-market/madina_pay/internal/config"
	"github.com/madina-market/madina_pay/internal/escrow"
	"github.com/madina-market/madina_pay/internal/infra"
	"github.com/madina-market/madina_pay/internal/ledger"
	"github.com/madina-market/madina_pay/internal/logging"
	"github.com/madina-market/madina_pay/internal/notification"
	"github.com/madina-market/madina_pay/internal/outbox"
	"github.com/madina-market/madina_pay/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	if err := infra.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	ledgerBackend := ledger.NewPostgresLedger(db)

	var notifier notification.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier := notification.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafkaNotifier.Close(); err != nil {
				logger.Warn("close kafka writer", "error", err)
			}
		}()
		notifier = kafkaNotifier
		logger.Info("notifications via kafka", "topic", cfg.KafkaTopic)
	} else {
		notifier = notification.NewLoggerNotifier(logger)
	}

	dispatcher := outbox.NewDispatcher(ledgerBackend, notifier, logger, cfg.OutboxInterval)
	go dispatcher.Run(ctx)

	escrowSvc := escrow.NewService(ledgerBackend, cfg.CommissionRate, cfg.DefaultCurrency, cfg.AutoReleaseDays)
	releaser := escrow.NewAutoReleaser(escrowSvc, logger, cfg.AutoReleaseInterval)
	go releaser.Run(ctx)

	srv, err := server.New(cfg, db, cache, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	logger.Info("starting",
		"app", cfg.AppName,
		"env", cfg.AppEnv,
		"port", cfg.Port,
		"currency", cfg.DefaultCurrency,
		"commission_rate", cfg.CommissionRate.String(),
	)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
