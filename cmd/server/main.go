package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hongminglow/rdbs-admin-be/internal/config"
	"github.com/hongminglow/rdbs-admin-be/internal/logging"
	"github.com/hongminglow/rdbs-admin-be/internal/server"
	"github.com/hongminglow/rdbs-admin-be/internal/storage"
	"github.com/hongminglow/rdbs-admin-be/internal/storage/memory"
	postgres "github.com/hongminglow/rdbs-admin-be/internal/storage/postgres"
)

func main() {
	envLoaded := godotenv.Load() == nil

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	if !envLoaded {
		logger.Info("no .env file found; relying on existing environment")
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init storage", zap.Error(err))
	}
	defer store.Close()

	srv, err := server.New(cfg, store, logger)
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	go func() {
		logger.Info("RDBS admin gateway listening",
			zap.String("addr", cfg.HTTPAddress()),
			zap.String("env", cfg.AppEnv),
			zap.String("backend", cfg.APIBaseURL),
			logging.Secret("session_secret", cfg.SessionSecret),
		)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set; using in-memory role catalogue and audit log")
		return memory.NewStore(), nil
	}
	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}
