package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/app"
	"github.com/spec-kit/msp-sla/internal/config"
	"github.com/spec-kit/msp-sla/internal/observability"
	"github.com/spec-kit/msp-sla/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise", zap.Error(err))
	}
	defer a.Close()

	scheduler, err := worker.NewScheduler(logger)
	if err != nil {
		logger.Fatal("failed to create scheduler", zap.Error(err))
	}
	if err := scheduler.RegisterScanJob(a.Escalations, cfg.Escalation); err != nil {
		logger.Fatal("failed to register escalation scan", zap.Error(err))
	}
	scheduler.Start()
	logger.Info("escalation worker started", zap.Duration("interval", cfg.Escalation.ScanInterval))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	if err := scheduler.Stop(); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
}
