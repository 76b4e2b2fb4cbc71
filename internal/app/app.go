package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/FedOAuth/FedOAuth/internal/config"
	"github.com/FedOAuth/FedOAuth/internal/logger"
	"github.com/FedOAuth/FedOAuth/internal/trust"
)

type App struct {
	cfg    config.Config
	server *http.Server
	wiring *wiring

	sweepStop chan struct{}
}

func New(ctx context.Context, cfg config.Config) (*App, error) {

	w, err := setupHTTP(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg: cfg,
		server: &http.Server{
			Addr:    ":" + cfg.AppPort,
			Handler: w.router,
		},
		wiring:    w,
		sweepStop: make(chan struct{}),
	}, nil
}

// TrustDecider exposes the trust-root decider for protocol builders
// mounted alongside the core routes.
func (a *App) TrustDecider() *trust.Decider {
	return a.wiring.decider
}

func (a *App) Run() error {

	go a.sweepLoop()

	logger.Info("server starting", map[string]any{
		"port": a.cfg.AppPort,
	})

	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {

	close(a.sweepStop)

	err := a.server.Shutdown(ctx)

	if cerr := a.wiring.cleanup(); cerr != nil && err == nil {
		err = cerr
	}

	return err
}

// sweepLoop purges expired remembered records and abandoned
// transactions on a timer. Reads already drop expired records they hit,
// so this only reaps the never-read.
func (a *App) sweepLoop() {
	interval := time.Duration(a.cfg.CleanupInterval) * time.Minute
	if interval <= 0 {
		logger.Warn("cleanup sweep disabled", map[string]any{
			"interval_minutes": a.cfg.CleanupInterval,
		})
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.sweepStop:
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

func (a *App) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	records, err := a.wiring.remembered.Cleanup(ctx)
	if err != nil {
		logger.Error("remembered cleanup failed", map[string]any{
			"error": err.Error(),
		})
	}

	transactions, err := a.wiring.transactions.Cleanup(ctx,
		time.Duration(a.cfg.TransactionsTimeout)*time.Minute)
	if err != nil {
		logger.Error("transaction cleanup failed", map[string]any{
			"error": err.Error(),
		})
	}

	if records > 0 || transactions > 0 {
		logger.Info("cleanup sweep done", map[string]any{
			"remembered_removed":   records,
			"transactions_removed": transactions,
		})
	}
}
