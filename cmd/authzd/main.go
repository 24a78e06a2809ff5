package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-authz/authzd/internal/app"
	"github.com/odyssey-authz/authzd/internal/authz/admin"
	"github.com/odyssey-authz/authzd/internal/authz/assignments"
	"github.com/odyssey-authz/authzd/internal/authz/audit"
	"github.com/odyssey-authz/authzd/internal/authz/bindings"
	"github.com/odyssey-authz/authzd/internal/authz/engine"
	"github.com/odyssey-authz/authzd/internal/authz/permissions"
	"github.com/odyssey-authz/authzd/internal/authz/resourceaccess"
	"github.com/odyssey-authz/authzd/internal/authz/roles"
	"github.com/odyssey-authz/authzd/internal/observability"
	"github.com/odyssey-authz/authzd/internal/platform/cache"
	"github.com/odyssey-authz/authzd/internal/platform/db"
	"github.com/odyssey-authz/authzd/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, decision cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sink := audit.NewSink(audit.NewPGWriter(pool), logger, cfg.AuditBuffer)
	defer sink.Close()

	metrics := observability.NewMetrics()

	decisionCache := engine.NewDecisionCache(redisClient, cfg.CheckCacheTTL)
	eng := engine.New(engine.NewPGStore(pool), decisionCache, sink, logger)
	eng.WithDecisionObserver(metrics.ObserveDecision)

	adminHandler := admin.NewHandler(
		logger,
		roles.NewService(roles.NewRepository(pool)),
		permissions.NewService(permissions.NewRepository(pool)),
		bindings.NewService(bindings.NewRepository(pool)),
		assignments.NewService(assignments.NewRepository(pool)),
		resourceaccess.NewService(resourceaccess.NewRepository(pool)),
		eng,
		sink,
	)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AdminHandler: adminHandler,
		JobsHandler:  jobs.NewHandler(inspector, logger),
		Metrics:      metrics,
		Pool:         pool,
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
