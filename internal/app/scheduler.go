package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// RefundReconciler retries refunds that were requested but never recorded
type RefundReconciler interface {
	ReconcilePending(ctx context.Context, limit int) ([]*model.RefundResult, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	reconciler RefundReconciler
	interval   time.Duration
	batch      int
	logger     *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(reconciler RefundReconciler, interval time.Duration, batch int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		batch:      batch,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Refund reconciliation sweep disabled")
		return
	}

	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.runRefundSweep(ctx)
}

// Stop останавливает фоновые задачи и ждёт текущий проход
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// runRefundSweep периодически дозавершает возвраты по отменённым оплаченным бронированиям
func (s *Scheduler) runRefundSweep(ctx context.Context) {
	defer s.wg.Done()

	// Первый запуск сразу при старте
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-s.stopChan:
			s.logger.Info("Refund sweep stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Refund sweep stopped by context")
			return
		}
	}
}

// SweepOnce runs a single reconciliation pass and reports how many refunds were issued
func (s *Scheduler) SweepOnce(ctx context.Context) int {
	results, err := s.reconciler.ReconcilePending(ctx, s.batch)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Refund sweep failed", zap.Error(err))
	}

	issued := 0
	for _, r := range results {
		if r != nil && r.Issued {
			issued++
		}
	}

	if len(results) > 0 {
		s.logger.Info("Refund sweep completed",
			zap.Int("processed", len(results)),
			zap.Int("issued", issued),
		)
	}
	return issued
}
