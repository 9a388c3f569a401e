package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/msp-sla/internal/api/http"
	"github.com/spec-kit/msp-sla/internal/api/http/handlers"
	"github.com/spec-kit/msp-sla/internal/app"
	"github.com/spec-kit/msp-sla/internal/auth"
	"github.com/spec-kit/msp-sla/internal/config"
	"github.com/spec-kit/msp-sla/internal/observability"
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

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	authMiddleware := auth.NewAuthMiddleware(tokens, a.StaffRepo)

	server := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  cfg.App.RequestTimeout(),
		WriteTimeout: cfg.App.RequestTimeout(),
	})
	httptransport.RegisterMiddlewares(server, logger, a.Metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": a.Postgres,
			"redis":    a.Redis,
		}),
		Policies:       handlers.NewSLAPolicyHandler(a.Policies, nil),
		TicketSLA:      handlers.NewTicketSLAHandler(a.Tickets, nil),
		Escalations:    handlers.NewEscalationHandler(a.Escalations, nil),
		Workflows:      handlers.NewWorkflowHandler(a.Workflows, nil),
		AuthMiddleware: authMiddleware,
		Gatherer:       a.Registry,
	})

	go func() {
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
