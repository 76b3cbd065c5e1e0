// Package main runs the knowledge base HTTP API server.
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

	"github.com/joho/godotenv"

	"github.com/plantdocs/scada-rag/internal/config"
	"github.com/plantdocs/scada-rag/internal/registry"
	"github.com/plantdocs/scada-rag/internal/server"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	reg, err := registry.New(cfg, logger)
	if err != nil {
		return err
	}
	defer reg.Close()

	if err := reg.Vectors.EnsureCollection(ctx); err != nil {
		return err
	}

	srv := server.New(reg, logger).HTTPServer(cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
