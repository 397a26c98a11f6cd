package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
)

const bookingColumns = `
	b.id, b.student_id, b.tutor_id, tp.user_id, b.scheduled_at, b.duration_minutes, b.status,
	b.price::text, b.payment_id, b.cancelled_at, b.cancelled_by, b.is_late_cancellation,
	b.refund_reference, b.refund_amount::text, b.refunded_at, b.refund_requested_at,
	b.refund_claim_token, b.refund_claimed_at, b.refund_attempts, b.refund_last_error,
	b.created_at, b.updated_at
`

type BookingRepository struct {
	*base.Repository
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{Repository: base.NewRepository(pool)}
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b            model.Booking
		price        string
		refundAmount *string
	)

	err := row.Scan(
		&b.ID,
		&b.StudentID,
		&b.TutorID,
		&b.TutorUserID,
		&b.ScheduledAt,
		&b.Duration,
		&b.Status,
		&price,
		&b.PaymentID,
		&b.CancelledAt,
		&b.CancelledBy,
		&b.IsLateCancellation,
		&b.RefundReference,
		&refundAmount,
		&b.RefundedAt,
		&b.RefundRequestedAt,
		&b.RefundClaimToken,
		&b.RefundClaimedAt,
		&b.RefundAttempts,
		&b.RefundLastError,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if b.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if refundAmount != nil {
		amount, err := decimal.NewFromString(*refundAmount)
		if err != nil {
			return nil, fmt.Errorf("parse refund amount: %w", err)
		}
		b.RefundAmount = &amount
	}

	return &b, nil
}

func (r *BookingRepository) getOne(ctx context.Context, query string, args ...any) (*model.Booking, error) {
	booking, err := scanBooking(r.QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return booking, nil
}

// Create создаёт новое бронирование
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (student_id, tutor_id, scheduled_at, duration_minutes, ends_at, status, price, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		booking.StudentID,
		booking.TutorID,
		booking.ScheduledAt,
		booking.Duration,
		booking.EndsAt(),
		booking.Status,
		booking.Price.String(),
		booking.PaymentID,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)

	if err != nil {
		if base.IsExclusionViolation(err) {
			return r.conflictError(ctx, err)
		}
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// conflictError describes the booking that already holds the slot. The
// transaction is aborted at this point, so the lookup goes through the pool.
func (r *BookingRepository) conflictError(ctx context.Context, err error) error {
	existing, ok := base.ParseExclusionConflict(err)
	if !ok {
		return &apperror.ConflictError{}
	}

	conflict := &apperror.ConflictError{ScheduledAt: existing.Start, EndsAt: existing.End}
	query := `
		SELECT id FROM bookings
		WHERE tutor_id = $1 AND scheduled_at = $2 AND ends_at = $3
		  AND status NOT IN ('CANCELLED', 'REFUNDED')
		LIMIT 1
	`
	// диапазон уже известен, без id ответ всё равно полезен
	_ = r.Pool().QueryRow(ctx, query, existing.TutorID, existing.Start, existing.End).Scan(&conflict.BookingID)
	return conflict
}

// GetByID получает бронирование по ID
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN tutor_profiles tp ON tp.id = b.tutor_id
		WHERE b.id = $1
	`

	booking, err := r.getOne(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get booking by id: %w", err)
	}
	return booking, nil
}

// GetByIDForUpdate reads the booking and locks its row until the transaction ends
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN tutor_profiles tp ON tp.id = b.tutor_id
		WHERE b.id = $1
		FOR UPDATE OF b
	`

	booking, err := r.getOne(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get booking for update: %w", err)
	}
	return booking, nil
}

// GetActiveByTutorID получает все бронирования учителя, занимающие время
func (r *BookingRepository) GetActiveByTutorID(ctx context.Context, tutorID int64) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN tutor_profiles tp ON tp.id = b.tutor_id
		WHERE b.tutor_id = $1 AND b.status NOT IN ('CANCELLED', 'REFUNDED')
		ORDER BY b.scheduled_at ASC
	`

	return r.list(ctx, "get active bookings by tutor", query, tutorID)
}

// ListPendingRefunds returns refund-eligible cancelled bookings without a refund reference
func (r *BookingRepository) ListPendingRefunds(ctx context.Context, limit int) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN tutor_profiles tp ON tp.id = b.tutor_id
		WHERE b.status = 'CANCELLED'
		  AND b.refund_requested_at IS NOT NULL
		  AND b.refund_reference IS NULL
		  AND b.payment_id IS NOT NULL
		ORDER BY b.refund_requested_at ASC
		LIMIT $1
	`

	return r.list(ctx, "list pending refunds", query, limit)
}

func (r *BookingRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Booking, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}

	return bookings, nil
}

// Reschedule moves the booking and resets it to PENDING
func (r *BookingRepository) Reschedule(ctx context.Context, id int64, scheduledAt time.Time, duration int) error {
	query := `
		UPDATE bookings
		SET scheduled_at = $1, duration_minutes = $2, ends_at = $3, status = 'PENDING', updated_at = now()
		WHERE id = $4 AND status IN ('PENDING', 'CONFIRMED')
	`

	endsAt := scheduledAt.Add(time.Duration(duration) * time.Minute)
	affected, err := r.ExecAffected(ctx, query, scheduledAt, duration, endsAt, id)
	if err != nil {
		if base.IsExclusionViolation(err) {
			return r.conflictError(ctx, err)
		}
		return fmt.Errorf("reschedule booking: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("booking not found or not reschedulable")
	}

	return nil
}

// UpdateStatus обновляет статус бронирования
func (r *BookingRepository) UpdateStatus(ctx context.Context, id int64, status model.BookingStatus) error {
	query := `
		UPDATE bookings
		SET status = $1, updated_at = now()
		WHERE id = $2
	`

	affected, err := r.ExecAffected(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("booking not found")
	}

	return nil
}

// MarkCancelled records the cancellation. The cancellation fields are written once:
// the update only matches a booking that was never cancelled.
func (r *BookingRepository) MarkCancelled(ctx context.Context, c model.Cancellation) error {
	query := `
		UPDATE bookings
		SET status = 'CANCELLED',
		    cancelled_at = $1,
		    cancelled_by = $2,
		    is_late_cancellation = $3,
		    refund_requested_at = CASE WHEN $4::boolean THEN $1 ELSE NULL END,
		    updated_at = now()
		WHERE id = $5 AND status IN ('PENDING', 'CONFIRMED') AND cancelled_at IS NULL
	`

	affected, err := r.ExecAffected(ctx, query, c.At, c.By, c.IsLate, c.RefundRequested, c.BookingID)
	if err != nil {
		return fmt.Errorf("mark booking cancelled: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("booking %d is not cancellable", c.BookingID)
	}

	return nil
}

// CountLateCancellations counts late cancellations the student made themselves.
// A zero since counts over all time.
func (r *BookingRepository) CountLateCancellations(ctx context.Context, studentID int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE student_id = $1
		  AND cancelled_by = $1
		  AND is_late_cancellation
		  AND ($2::timestamptz IS NULL OR cancelled_at >= $2)
	`

	var sinceArg *time.Time
	if !since.IsZero() {
		sinceArg = &since
	}

	var count int
	if err := r.QueryRow(ctx, query, studentID, sinceArg).Scan(&count); err != nil {
		return 0, fmt.Errorf("count late cancellations: %w", err)
	}

	return count, nil
}

// ClaimRefund stores a claim token so that only one reconciliation talks to the gateway
func (r *BookingRepository) ClaimRefund(ctx context.Context, id int64, token string, at time.Time) error {
	query := `
		UPDATE bookings
		SET refund_claim_token = $1, refund_claimed_at = $2, refund_requested_at = COALESCE(refund_requested_at, $2), updated_at = now()
		WHERE id = $3 AND status = 'CANCELLED' AND refund_reference IS NULL
	`

	affected, err := r.ExecAffected(ctx, query, token, at, id)
	if err != nil {
		return fmt.Errorf("claim refund: %w", err)
	}

	if affected == 0 {
		return model.ErrRefundClaimLost
	}

	return nil
}

// MarkRefunded records the gateway refund and moves CANCELLED -> REFUNDED
func (r *BookingRepository) MarkRefunded(ctx context.Context, id int64, token string, receipt model.RefundReceipt, at time.Time) error {
	query := `
		UPDATE bookings
		SET status = 'REFUNDED',
		    refund_reference = $1,
		    refund_amount = $2::numeric,
		    refunded_at = $3,
		    refund_claim_token = NULL,
		    refund_claimed_at = NULL,
		    refund_attempts = refund_attempts + 1,
		    refund_last_error = NULL,
		    updated_at = now()
		WHERE id = $4 AND status = 'CANCELLED' AND refund_claim_token = $5
	`

	affected, err := r.ExecAffected(ctx, query, receipt.Reference, receipt.Amount.String(), at, id, token)
	if err != nil {
		return fmt.Errorf("mark booking refunded: %w", err)
	}

	if affected == 0 {
		return model.ErrRefundClaimLost
	}

	return nil
}

// ReleaseRefundClaim drops the claim after a failed gateway call and keeps the error for operators
func (r *BookingRepository) ReleaseRefundClaim(ctx context.Context, id int64, token, lastError string) error {
	query := `
		UPDATE bookings
		SET refund_claim_token = NULL,
		    refund_claimed_at = NULL,
		    refund_attempts = refund_attempts + 1,
		    refund_last_error = $1,
		    updated_at = now()
		WHERE id = $2 AND refund_claim_token = $3
	`

	affected, err := r.ExecAffected(ctx, query, lastError, id, token)
	if err != nil {
		return fmt.Errorf("release refund claim: %w", err)
	}

	if affected == 0 {
		return model.ErrRefundClaimLost
	}

	return nil
}
