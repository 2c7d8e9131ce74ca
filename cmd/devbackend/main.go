package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/rdbs-admin-be/internal/devbackend"
	"github.com/hongminglow/rdbs-admin-be/internal/logging"
)

func main() {
	_ = godotenv.Load()

	logger, err := logging.New(os.Getenv("LOG_LEVEL"), "console")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	channel := os.Getenv("AUTH_CHANNEL")
	if channel == "" {
		channel = "ADMIN_WEB"
	}
	addr := os.Getenv("DEV_BACKEND_ADDR")
	if addr == "" {
		addr = ":9090"
	}

	handler, err := devbackend.New(channel, devbackend.DefaultUsers(), bcrypt.DefaultCost, logger)
	if err != nil {
		logger.Fatal("init dev backend", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("dev backend listening", zap.String("addr", addr), zap.String("channel", channel))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
}
