// Command reconcile runs a single refund reconciliation pass and exits.
// Meant for cron when the in-process sweep is disabled with RECONCILE_INTERVAL=0.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/app"
	"github.com/Freeeeeet/tutor_booking/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	issued := application.SweepRefunds(ctx)
	logger.Info("Refund reconciliation finished", zap.Int("issued", issued), zap.Int("batch", cfg.ReconcileBatch))
}
