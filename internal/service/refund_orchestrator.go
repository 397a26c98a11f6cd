package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/metrics"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/notify"
)

// RefundOrchestrator brings a cancelled paid booking to REFUNDED exactly once.
//
// A reconciliation claims the booking in a short transaction, calls the gateway
// outside of it and records the result in a second transaction. The claim keeps
// other processes away from the gateway until it expires; the idempotency key
// covers the window after expiry.
type RefundOrchestrator struct {
	tx          Transactor
	bookingRepo BookingRepository
	gateway     PaymentGateway
	events      EventPublisher
	claimTTL    time.Duration
	now         Clock
	group       singleflight.Group
	logger      *zap.Logger
}

func NewRefundOrchestrator(
	tx Transactor,
	bookingRepo BookingRepository,
	gateway PaymentGateway,
	events EventPublisher,
	claimTTL time.Duration,
	now Clock,
	logger *zap.Logger,
) *RefundOrchestrator {
	if events == nil {
		events = noopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &RefundOrchestrator{
		tx:          tx,
		bookingRepo: bookingRepo,
		gateway:     gateway,
		events:      events,
		claimTTL:    claimTTL,
		now:         now,
		logger:      logger,
	}
}

// IdempotencyKey is the key sent to the gateway for the refund of a booking
func IdempotencyKey(bookingID int64) string {
	return "booking-" + strconv.FormatInt(bookingID, 10) + "-refund"
}

// Reconcile issues the refund of the booking unless one is already recorded.
// Concurrent calls for the same booking in this process share one run.
// A gateway failure is returned as *apperror.GatewayError together with the result.
func (o *RefundOrchestrator) Reconcile(ctx context.Context, bookingID int64, reason string) (*model.RefundResult, error) {
	v, err, _ := o.group.Do(strconv.FormatInt(bookingID, 10), func() (any, error) {
		return o.reconcile(context.WithoutCancel(ctx), bookingID, reason)
	})
	result, _ := v.(*model.RefundResult)
	if result != nil {
		c := *result
		result = &c
	}
	return result, err
}

func (o *RefundOrchestrator) reconcile(ctx context.Context, bookingID int64, reason string) (*model.RefundResult, error) {
	token := uuid.NewString()
	claimedAt := o.now()

	var (
		booking *model.Booking
		done    *model.RefundResult
	)

	err := o.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking, done = nil, nil

		b, err := o.bookingRepo.GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("get booking: %w", err)
		}
		if b == nil {
			return apperror.NotFound("booking", bookingID)
		}

		if b.HasRefund() {
			done = &model.RefundResult{BookingID: b.ID, AlreadyRefunded: true, Amount: b.RefundAmount}
			if b.RefundReference != nil {
				done.RefundReference = *b.RefundReference
			}
			return nil
		}

		if b.Status != model.BookingStatusCancelled {
			return &apperror.InvalidTransitionError{From: string(b.Status), To: string(model.BookingStatusRefunded)}
		}

		if !b.IsPaid() {
			done = &model.RefundResult{BookingID: b.ID}
			return nil
		}

		if b.RefundClaimToken != nil && b.RefundClaimedAt != nil && claimedAt.Sub(*b.RefundClaimedAt) < o.claimTTL {
			return apperror.ErrRefundInProgress
		}

		if err := o.bookingRepo.ClaimRefund(ctx, b.ID, token, claimedAt); err != nil {
			return fmt.Errorf("claim refund: %w", err)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if done != nil {
		if done.AlreadyRefunded {
			metrics.IncRefund("already_refunded")
			o.logger.Info("Refund already recorded", zap.Int64("booking_id", bookingID))
		} else {
			metrics.IncRefund("not_paid")
			o.logger.Info("Booking has no payment, nothing to refund", zap.Int64("booking_id", bookingID))
		}
		return done, nil
	}

	receipt, err := o.gateway.Refund(ctx, *booking.PaymentID, reason, IdempotencyKey(booking.ID))
	if err == nil && receipt == nil {
		err = errors.New("gateway returned no receipt")
	}
	if err != nil {
		return o.fail(ctx, booking, token, err)
	}
	if receipt.Amount.IsZero() {
		receipt.Amount = booking.Price
	}

	refundedAt := o.now()
	err = o.tx.WithinTx(ctx, func(ctx context.Context) error {
		return o.bookingRepo.MarkRefunded(ctx, booking.ID, token, *receipt, refundedAt)
	})
	if err != nil {
		// Шлюз вернул деньги, но запись не удалась; повторная сверка с тем же ключом вернёт тот же возврат
		o.logger.Error("Refund issued but not recorded",
			zap.Int64("booking_id", booking.ID),
			zap.String("refund_reference", receipt.Reference),
			zap.Error(err),
		)
		metrics.IncRefund("unrecorded")
		return nil, fmt.Errorf("record refund for booking %d: %w", booking.ID, err)
	}

	metrics.IncRefund("issued")
	o.logger.Info("Refund issued",
		zap.Int64("booking_id", booking.ID),
		zap.String("payment_id", *booking.PaymentID),
		zap.String("refund_reference", receipt.Reference),
		zap.String("amount", receipt.Amount.String()),
	)

	amount := receipt.Amount
	refunded := booking.Clone()
	refunded.Status = model.BookingStatusRefunded
	refunded.RefundReference = &receipt.Reference
	refunded.RefundAmount = &amount
	refunded.RefundedAt = &refundedAt
	o.events.Publish(notify.BookingEvent(notify.EventBookingRefunded, refunded))

	return &model.RefundResult{
		BookingID:       booking.ID,
		Issued:          true,
		RefundReference: receipt.Reference,
		Amount:          &amount,
	}, nil
}

func (o *RefundOrchestrator) fail(ctx context.Context, booking *model.Booking, token string, cause error) (*model.RefundResult, error) {
	gwErr := &apperror.GatewayError{Op: "refund", PaymentID: *booking.PaymentID, Err: cause}

	o.logger.Error("Refund failed, booking stays CANCELLED until reconciled",
		zap.Int64("booking_id", booking.ID),
		zap.String("payment_id", *booking.PaymentID),
		zap.Int("attempt", booking.RefundAttempts+1),
		zap.Error(cause),
	)
	metrics.IncRefund("failed")

	err := o.tx.WithinTx(ctx, func(ctx context.Context) error {
		return o.bookingRepo.ReleaseRefundClaim(ctx, booking.ID, token, cause.Error())
	})
	if err != nil {
		o.logger.Error("Failed to release refund claim", zap.Int64("booking_id", booking.ID), zap.Error(err))
	}

	return &model.RefundResult{BookingID: booking.ID, Error: gwErr.Error()}, gwErr
}

// ReconcilePending sweeps cancelled paid bookings still waiting for a refund
func (o *RefundOrchestrator) ReconcilePending(ctx context.Context, limit int) ([]*model.RefundResult, error) {
	pending, err := o.bookingRepo.ListPendingRefunds(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending refunds: %w", err)
	}

	o.logger.Info("Reconciling pending refunds", zap.Int("count", len(pending)))

	results := make([]*model.RefundResult, 0, len(pending))
	for _, b := range pending {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := o.Reconcile(ctx, b.ID, "scheduled reconciliation")
		if err != nil {
			if errors.Is(err, apperror.ErrRefundInProgress) {
				o.logger.Debug("Refund claimed elsewhere, skipping", zap.Int64("booking_id", b.ID))
				continue
			}
			o.logger.Warn("Refund reconciliation failed", zap.Int64("booking_id", b.ID), zap.Error(err))
			if result == nil {
				result = &model.RefundResult{BookingID: b.ID, Error: err.Error()}
			}
		}
		results = append(results, result)
	}

	return results, nil
}
