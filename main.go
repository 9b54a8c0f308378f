package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xiaot623/gogo/kernel/internal/config"
	"github.com/xiaot623/gogo/kernel/internal/service"
	httptransport "github.com/xiaot623/gogo/kernel/internal/transport/http"
	"github.com/xiaot623/gogo/kernel/internal/transport/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting kernel",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("database", cfg.DatabaseURL),
		zap.String("artifact_backend", cfg.ArtifactBackend),
		zap.String("memory_backend", cfg.MemoryBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize kernel
	svc, err := service.Boot(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to boot kernel", zap.Error(err))
	}

	// Initialize observe hub
	hub := ws.NewHub(cfg.ObserveBuffer, logger)
	go hub.Run(ctx)
	unsubscribe := svc.Observe().Subscribe(hub.Notify)
	wsServer := ws.NewServer(ws.DefaultConfig(), hub, logger)

	server := httptransport.NewServer(svc, wsServer, logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("kernel API started", zap.Int("port", cfg.HTTPPort))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down kernel")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown server gracefully", zap.Error(err))
	}
	unsubscribe()
	cancel()
	if err := svc.Close(); err != nil {
		logger.Warn("failed to close kernel resources", zap.Error(err))
	}

	logger.Info("kernel stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	return config.Build()
}
