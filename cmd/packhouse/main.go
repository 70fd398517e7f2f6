package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/packhouse-erp/packhouse/internal/app"
	"github.com/packhouse-erp/packhouse/internal/auth"
	"github.com/packhouse-erp/packhouse/internal/cartons"
	"github.com/packhouse-erp/packhouse/internal/observability"
	"github.com/packhouse-erp/packhouse/internal/orgs"
	"github.com/packhouse-erp/packhouse/internal/packaging"
	"github.com/packhouse-erp/packhouse/internal/platform/db"
	"github.com/packhouse-erp/packhouse/internal/receipts"
	"github.com/packhouse-erp/packhouse/internal/shared"
	"github.com/packhouse-erp/packhouse/internal/shipments"
	"github.com/packhouse-erp/packhouse/jobs"
)

func main() {
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "packhouse_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	validate := validator.New()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, validate)

	orgsRepo := orgs.NewRepository(dbpool)
	gate := orgs.NewService(orgsRepo)
	orgsHandler := orgs.NewHandler(gate, validate)

	packagingRepo := packaging.NewRepository(dbpool)
	packagingService := packaging.NewService(packagingRepo, gate, auditLogger, logger)
	packagingHandler := packaging.NewHandler(packagingService, validate, metrics)

	receiptsRepo := receipts.NewRepository(dbpool)
	receiptsService := receipts.NewService(receiptsRepo, gate, auditLogger, logger)
	receiptsHandler := receipts.NewHandler(receiptsService, validate, metrics)

	shipmentsRepo := shipments.NewRepository(dbpool)
	shipmentsService := shipments.NewService(shipmentsRepo, gate, auditLogger, logger)
	shipmentsHandler := shipments.NewHandler(shipmentsService, validate, metrics)

	cartonsRepo := cartons.NewRepository(dbpool)
	cartonsService := cartons.NewService(cartonsRepo, gate, auditLogger, logger)
	cartonsHandler := cartons.NewHandler(cartonsService, validate, metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		OrgsHandler:      orgsHandler,
		PackagingHandler: packagingHandler,
		ReceiptsHandler:  receiptsHandler,
		ShipmentsHandler: shipmentsHandler,
		CartonsHandler:   cartonsHandler,
		JobsHandler:      jobsHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
}
