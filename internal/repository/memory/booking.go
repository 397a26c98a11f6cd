package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/policy"
)

type BookingRepository struct {
	s *Store
}

func (s *Store) Bookings() *BookingRepository {
	return &BookingRepository{s: s}
}

// overlapping mirrors the exclusion constraint of the bookings table
func (s *Store) overlapping(b *model.Booking) *model.Booking {
	for _, other := range s.bookings {
		if other.ID == b.ID || other.TutorID != b.TutorID || !other.Status.BlocksSlot() {
			continue
		}
		if policy.Overlaps(b.ScheduledAt, b.EndsAt(), other.ScheduledAt, other.EndsAt()) {
			return other
		}
	}
	return nil
}

func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	defer r.s.lock(ctx)()

	tutor, ok := r.s.tutors[booking.TutorID]
	if !ok {
		return fmt.Errorf("create booking: tutor %d does not exist", booking.TutorID)
	}
	if booking.Status.BlocksSlot() && r.s.overlapping(booking) != nil {
		return &apperror.ConflictError{}
	}

	booking.ID = r.s.id()
	booking.TutorUserID = tutor.UserID
	booking.CreatedAt = r.s.now()
	booking.UpdatedAt = booking.CreatedAt
	r.s.bookings[booking.ID] = booking.Clone()
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	defer r.s.lock(ctx)()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *BookingRepository) GetActiveByTutorID(ctx context.Context, tutorID int64) ([]*model.Booking, error) {
	defer r.s.lock(ctx)()

	var list []*model.Booking
	for _, b := range r.s.bookings {
		if b.TutorID == tutorID && b.Status.BlocksSlot() {
			list = append(list, b.Clone())
		}
	}
	sortBookings(list)
	return list, nil
}

func (r *BookingRepository) ListPendingRefunds(ctx context.Context, limit int) ([]*model.Booking, error) {
	defer r.s.lock(ctx)()

	var list []*model.Booking
	for _, b := range r.s.bookings {
		if b.Status == model.BookingStatusCancelled && b.RefundRequestedAt != nil && b.RefundReference == nil && b.IsPaid() {
			list = append(list, b.Clone())
		}
	}
	sortBookings(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *BookingRepository) Reschedule(ctx context.Context, id int64, scheduledAt time.Time, duration int) error {
	defer r.s.lock(ctx)()

	b, ok := r.s.bookings[id]
	if !ok || (b.Status != model.BookingStatusPending && b.Status != model.BookingStatusConfirmed) {
		return fmt.Errorf("booking not found or not reschedulable")
	}

	moved := b.Clone()
	moved.ScheduledAt = scheduledAt
	moved.Duration = duration
	if r.s.overlapping(moved) != nil {
		return &apperror.ConflictError{}
	}

	moved.Status = model.BookingStatusPending
	moved.UpdatedAt = r.s.now()
	r.s.bookings[id] = moved
	return nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id int64, status model.BookingStatus) error {
	defer r.s.lock(ctx)()

	b, ok := r.s.bookings[id]
	if !ok {
		return fmt.Errorf("booking not found")
	}
	b.Status = status
	b.UpdatedAt = r.s.now()
	return nil
}

func (r *BookingRepository) MarkCancelled(ctx context.Context, c model.Cancellation) error {
	defer r.s.lock(ctx)()

	b, ok := r.s.bookings[c.BookingID]
	if !ok || b.CancelledAt != nil ||
		(b.Status != model.BookingStatusPending && b.Status != model.BookingStatusConfirmed) {
		return fmt.Errorf("booking %d is not cancellable", c.BookingID)
	}

	at := c.At
	by := c.By
	b.Status = model.BookingStatusCancelled
	b.CancelledAt = &at
	b.CancelledBy = &by
	b.IsLateCancellation = c.IsLate
	if c.RefundRequested {
		requested := c.At
		b.RefundRequestedAt = &requested
	}
	b.UpdatedAt = r.s.now()
	return nil
}

func (r *BookingRepository) CountLateCancellations(ctx context.Context, studentID int64, since time.Time) (int, error) {
	defer r.s.lock(ctx)()

	count := 0
	for _, b := range r.s.bookings {
		if b.StudentID != studentID || !b.IsLateCancellation || b.CancelledBy == nil || *b.CancelledBy != studentID {
			continue
		}
		if !since.IsZero() && (b.CancelledAt == nil || b.CancelledAt.Before(since)) {
			continue
		}
		count++
	}
	return count, nil
}

func (r *BookingRepository) ClaimRefund(ctx context.Context, id int64, token string, at time.Time) error {
	defer r.s.lock(ctx)()

	b, ok := r.s.bookings[id]
	if !ok || b.Status != model.BookingStatusCancelled || b.RefundReference != nil {
		return model.ErrRefundClaimLost
	}

	claimedAt := at
	b.RefundClaimToken = &token
	b.RefundClaimedAt = &claimedAt
	if b.RefundRequestedAt == nil {
		requested := at
		b.RefundRequestedAt = &requested
	}
	b.UpdatedAt = r.s.now()
	return nil
}

func (r *BookingRepository) MarkRefunded(ctx context.Context, id int64, token string, receipt model.RefundReceipt, at time.Time) error {
	defer r.s.lock(ctx)()

	b, ok := r.s.bookings[id]
	if !ok || b.Status != model.BookingStatusCancelled || b.RefundClaimToken == nil || *b.RefundClaimToken != token {
		return model.ErrRefundClaimLost
	}

	ref := receipt.Reference
	amount := receipt.Amount
	refundedAt := at
	b.Status = model.BookingStatusRefunded
	b.RefundReference = &ref
	b.RefundAmount = &amount
	b.RefundedAt = &refundedAt
	b.RefundClaimToken = nil
	b.RefundClaimedAt = nil
	b.RefundAttempts++
	b.RefundLastError = nil
	b.UpdatedAt = r.s.now()
	return nil
}

func (r *BookingRepository) ReleaseRefundClaim(ctx context.Context, id int64, token, lastError string) error {
	defer r.s.lock(ctx)()

	b, ok := r.s.bookings[id]
	if !ok || b.RefundClaimToken == nil || *b.RefundClaimToken != token {
		return model.ErrRefundClaimLost
	}

	b.RefundClaimToken = nil
	b.RefundClaimedAt = nil
	b.RefundAttempts++
	b.RefundLastError = &lastError
	b.UpdatedAt = r.s.now()
	return nil
}
