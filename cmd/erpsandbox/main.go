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

	"github.com/lojaerp/erp-console/internal/app"
	"github.com/lojaerp/erp-console/internal/observability"
	"github.com/lojaerp/erp-console/internal/sandbox"
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

	logger := app.NewLogger(cfg, os.Stderr)

	var seed *sandbox.Seed
	if cfg.SandboxSeed != "" {
		loaded, err := loadSeed(cfg.SandboxSeed)
		if err != nil {
			logger.Error("load seed", slog.String("path", cfg.SandboxSeed), slog.Any("error", err))
			os.Exit(1)
		}
		seed = &loaded
	}

	srv, err := sandbox.New(sandbox.Options{
		Logger:     logger,
		Users:      map[string]string{cfg.SandboxUser: cfg.SandboxPassword},
		Seed:       seed,
		Metrics:    observability.NewMetrics("erp_sandbox"),
		LoginRate:  cfg.SandboxRate,
		Production: cfg.IsProduction(),
	})
	if err != nil {
		logger.Error("build sandbox", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.SandboxAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting sandbox", slog.String("addr", cfg.SandboxAddr), slog.String("user", cfg.SandboxUser))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func loadSeed(path string) (sandbox.Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return sandbox.Seed{}, err
	}
	defer f.Close()
	return sandbox.LoadSeed(f)
}
