package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/config"
	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/handler"
	"github.com/boddenberg/envelope-ledger/internal/infra/events"
	"github.com/boddenberg/envelope-ledger/internal/infra/observability"
	"github.com/boddenberg/envelope-ledger/internal/infra/sqlstore"
	"github.com/boddenberg/envelope-ledger/internal/port"
	"github.com/boddenberg/envelope-ledger/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("db_driver", cfg.DBDriver),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("max_writers", cfg.MaxWriters),
		zap.Bool("events_enabled", cfg.AMQPURL != ""),
	)

	ctx := context.Background()

	// --- Tracing ---
	shutdown, err := observability.InitTracer(ctx, "envelope-ledger", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Store ---
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:         cfg.DBDriver,
		DSN:            cfg.DatabaseURL,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxWriters:     cfg.MaxWriters,
	}, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	// --- Profile ---
	var profileID string
	profile, err := service.ResolveProfile(ctx, store, cfg.ProfileID)
	var setupErr *domain.ErrSetup
	switch {
	case err == nil:
		profileID = profile.ID
		logger.Info("profile resolved", zap.String("profile_id", profile.ID), zap.String("profile_name", profile.Name))
	case errors.As(err, &setupErr):
		logger.Warn("ledger routes will fail until a profile exists", zap.Error(err))
	default:
		logger.Fatal("failed to resolve profile", zap.Error(err))
	}

	// --- Events ---
	var publisher port.EventPublisher
	if cfg.AMQPURL != "" {
		p, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal("failed to connect to broker", zap.Error(err))
		}
		defer p.Close()
		publisher = p
		logger.Info("ledger events enabled", zap.String("exchange", cfg.AMQPExchange))
	}

	// --- Services ---
	ledger := service.NewLedger(store, publisher, profileID, metrics, logger)
	budget := service.NewBudgetService(store, profileID, logger)

	// --- Router ---
	router := handler.NewRouter(handler.RouterDeps{
		Ledger:     ledger,
		Budget:     budget,
		Store:      store,
		Metrics:    metrics,
		CORSOrigin: cfg.CORSOrigin,
		Logger:     logger,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
