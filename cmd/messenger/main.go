package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"learnhub/internal/infra/config"
	"learnhub/internal/infra/obs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger(getenv("APP_ENV", "dev")).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)
	if cfg.JWTSecret == "" && cfg.AuthInsecureDev {
		logger.Warn("AUTH_INSECURE_DEV set, bearer tokens are accepted without signature checks")
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	if err := app.loadUserFixtures(ctx, cfg.UserFixtures, logger); err != nil {
		logger.Warn("user fixtures load failed", "error", err)
	}

	var workers sync.WaitGroup
	for name, run := range app.background {
		workers.Add(1)
		go func(name string, run func(context.Context) error) {
			defer workers.Done()
			logger.Info("background worker started", "worker", name)
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background worker stopped", "worker", name, "error", err)
			}
		}(name, run)
	}

	server := app.server
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageBackend, "attachments", cfg.AttachmentBackend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		stop()
		workers.Wait()
		app.close(logger)
		os.Exit(1)
	}
	stop()
	workers.Wait()
	logger.Info("HTTP server stopped")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
