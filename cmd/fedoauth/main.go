package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FedOAuth/FedOAuth/internal/app"
	"github.com/FedOAuth/FedOAuth/internal/config"
	"github.com/FedOAuth/FedOAuth/internal/logger"
)

func main() {

	logger.Init()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("startup failed", map[string]any{
			"error": err.Error(),
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", map[string]any{
				"error": err.Error(),
			})
		}
	case <-ctx.Done():
		logger.Info("shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := a.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", map[string]any{
				"error": err.Error(),
			})
			os.Exit(1)
		}
	}

	logger.Info("stopped", nil)
}
