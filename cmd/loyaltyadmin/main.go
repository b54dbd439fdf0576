package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkeloo/loyalty-program/internal/app"
	"github.com/mkeloo/loyalty-program/internal/auth"
	"github.com/mkeloo/loyalty-program/internal/observability"
	"github.com/mkeloo/loyalty-program/internal/platform/cache"
	"github.com/mkeloo/loyalty-program/internal/platform/db"
	"github.com/mkeloo/loyalty-program/internal/rewards"
	"github.com/mkeloo/loyalty-program/internal/shared"
	"github.com/mkeloo/loyalty-program/internal/tiers"
	"github.com/mkeloo/loyalty-program/internal/view"
)

func main() {
	_ = godotenv.Load()

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "loyalty_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	broker := shared.NewBroker(ctx, redisClient, logger)
	defer broker.Close()

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, cfg.AuthCallTimeout)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, broker, metrics)
	guard := auth.NewGuard(logger, broker, sessionManager)

	auditLogger := shared.NewAuditLogger(dbpool)

	rewardsRepo := rewards.NewRepository(dbpool)
	rewardsService := rewards.NewService(rewardsRepo, auditLogger, logger)
	rewardsHandler := rewards.NewHandler(logger, rewardsService, templates, csrfManager)

	tiersRepo := tiers.NewRepository(dbpool)
	tiersService := tiers.NewService(tiersRepo, auditLogger, logger)
	tiersHandler := tiers.NewHandler(logger, tiersService, templates, csrfManager)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		Guard:          guard,
		RewardsHandler: rewardsHandler,
		TiersHandler:   tiersHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
