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

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/userdesk/internal/app"
	"github.com/odyssey-erp/userdesk/internal/observability"
	"github.com/odyssey-erp/userdesk/internal/platform/cache"
	"github.com/odyssey-erp/userdesk/internal/shared"
	"github.com/odyssey-erp/userdesk/internal/users"
	"github.com/odyssey-erp/userdesk/internal/view"
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

	logger, flushLogs := app.NewLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("userdesk stopped", slog.Any("error", err))
		_ = flushLogs(context.Background())
		os.Exit(1)
	}
	_ = flushLogs(context.Background())
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	shutdownTracing, err := app.SetupTracing(ctx, cfg)
	if err != nil {
		logger.Warn("tracing disabled", slog.Any("error", err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "userdesk_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	apiClient := users.NewClient(cfg.UsersAPIURL, cfg.UsersAPITimeout, users.WithCallMetrics(metrics.Calls()))
	clock := users.SystemClock{}
	registry := users.NewRegistry(func() *users.Controller {
		return users.NewController(apiClient, users.NewNotifier(clock, cfg.NotificationTTL), logger)
	}, cfg.ViewIdleTTL, clock)
	defer registry.Close()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		UsersHandler:   users.NewHandler(logger, registry, templates, csrfManager),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("users_api", cfg.UsersAPIURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
