package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// Sandbox is an in-process gateway for local runs without a payment provider.
// It honours idempotency keys like the real one.
type Sandbox struct {
	mu       sync.Mutex
	refunds  map[string]*model.RefundReceipt
	refunded map[string]string
	logger   *zap.Logger
}

func NewSandbox(logger *zap.Logger) *Sandbox {
	return &Sandbox{
		refunds:  make(map[string]*model.RefundReceipt),
		refunded: make(map[string]string),
		logger:   logger,
	}
}

func (s *Sandbox) Refund(_ context.Context, paymentID, reason, idempotencyKey string) (*model.RefundReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.refunds[idempotencyKey]; ok {
		c := *r
		return &c, nil
	}
	if key, ok := s.refunded[paymentID]; ok {
		return nil, fmt.Errorf("payment %s already refunded under key %s", paymentID, key)
	}

	r := &model.RefundReceipt{Reference: "rf_sandbox_" + uuid.NewString()}
	s.refunds[idempotencyKey] = r
	s.refunded[paymentID] = idempotencyKey

	s.logger.Info("Sandbox refund issued",
		zap.String("payment_id", paymentID),
		zap.String("refund_reference", r.Reference),
		zap.String("reason", reason),
	)

	c := *r
	return &c, nil
}
