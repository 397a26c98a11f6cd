package base

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// TxManager runs functions inside serializable transactions and reruns them
// when Postgres reports a serialization failure.
type TxManager struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	maxRetries uint64
	baseDelay  time.Duration
}

// NewTxManager создаёт менеджер транзакций
func NewTxManager(pool *pgxpool.Pool, logger *zap.Logger) *TxManager {
	return &TxManager{
		pool:       pool,
		logger:     logger,
		maxRetries: 5,
		baseDelay:  10 * time.Millisecond,
	}
}

// WithinTx runs fn in a serializable transaction bound to the context passed to fn.
// Nested calls join the outer transaction. fn may run more than once.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	backoff := retry.WithMaxRetries(m.maxRetries, retry.WithJitter(m.baseDelay, retry.NewExponential(m.baseDelay)))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := m.runOnce(ctx, fn)
		if err != nil && IsRetryable(err) {
			m.logger.Debug("Retrying serializable transaction",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
