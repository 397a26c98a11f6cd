package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/notify"
	"github.com/Freeeeeet/tutor_booking/internal/policy"
)

func TestCreate_AcceptsSlotInsideAvailability(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, f.student, monday(10, 0), 60, "")

	assert.NotZero(t, b.ID)
	assert.Equal(t, model.BookingStatusPending, b.Status)
	assert.Equal(t, f.student.UserID, b.StudentID)
	assert.Equal(t, f.tutor.UserID, b.TutorUserID)
	assert.Equal(t, []notify.EventType{notify.EventBookingRequested}, f.events.types())
}

func TestCreate_RejectsOverlappingSlot(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.student, monday(10, 0), 60, "")

	_, err := f.bookings.Create(context.Background(), f.student2, CreateBookingInput{
		TutorID:     f.tutorID,
		ScheduledAt: monday(10, 30),
		Duration:    60,
		Price:       decimal.NewFromInt(40),
	})

	var conflict *apperror.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.ScheduledAt.Equal(monday(10, 0)))
	assert.True(t, conflict.EndsAt.Equal(monday(11, 0)))
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  model.Actor
		in     CreateBookingInput
		target any
	}{
		{
			name:   "tutor cannot book",
			actor:  f.tutor,
			in:     CreateBookingInput{TutorID: f.tutorID, ScheduledAt: monday(10, 0), Duration: 60},
			target: new(*apperror.ForbiddenError),
		},
		{
			name:   "less than lead time",
			actor:  f.student,
			in:     CreateBookingInput{TutorID: f.tutorID, ScheduledAt: friday.Add(2 * time.Hour), Duration: 60},
			target: new(*apperror.InvalidTimeError),
		},
		{
			name:   "unaligned start",
			actor:  f.student,
			in:     CreateBookingInput{TutorID: f.tutorID, ScheduledAt: monday(10, 15), Duration: 60},
			target: new(*apperror.InvalidTimeError),
		},
		{
			name:   "outside availability",
			actor:  f.student,
			in:     CreateBookingInput{TutorID: f.tutorID, ScheduledAt: monday(16, 30), Duration: 60},
			target: new(*apperror.NotAvailableError),
		},
		{
			name:   "unknown tutor",
			actor:  f.student,
			in:     CreateBookingInput{TutorID: 9999, ScheduledAt: monday(10, 0), Duration: 60},
			target: new(*apperror.NotFoundError),
		},
		{
			name:   "negative price",
			actor:  f.student,
			in:     CreateBookingInput{TutorID: f.tutorID, ScheduledAt: monday(10, 0), Duration: 60, Price: decimal.NewFromInt(-1)},
			target: new(*apperror.ValidationError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.bookings.Create(ctx, tt.actor, tt.in)
			require.Error(t, err)
			assert.ErrorAs(t, err, tt.target)
		})
	}
}

func TestCreate_HugeDurationDoesNotReserveSlot(t *testing.T) {
	f := newFixture(t)

	_, err := f.bookings.Create(context.Background(), f.student, CreateBookingInput{
		TutorID:     f.tutorID,
		ScheduledAt: monday(10, 0),
		Duration:    math.MaxInt / 30 * 30,
		Price:       decimal.NewFromInt(40),
	})
	var invalid *apperror.InvalidTimeError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, apperror.RuleDuration, invalid.Rule)

	b := f.book(t, f.student2, monday(10, 0), 60, "")
	assert.Equal(t, model.BookingStatusPending, b.Status)
}

func TestCreate_ConcurrentOverlappingRequestsAtMostOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.bookings.Create(ctx, f.student, CreateBookingInput{
				TutorID:     f.tutorID,
				ScheduledAt: monday(10, 0).Add(time.Duration(i%2) * 30 * time.Minute),
				Duration:    60,
				Price:       decimal.NewFromInt(40),
			})
			mu.Lock()
			defer mu.Unlock()
			var conflict *apperror.ConflictError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &conflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicts)

	active, err := f.store.Bookings().GetActiveByTutorID(ctx, f.tutorID)
	require.NoError(t, err)
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			assert.False(t, policy.Overlaps(active[i].ScheduledAt, active[i].EndsAt(), active[j].ScheduledAt, active[j].EndsAt()))
		}
	}
}

func TestGet_ScopedToParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, f.student, monday(10, 0), 60, "")

	for _, actor := range []model.Actor{f.student, f.tutor, f.admin} {
		got, err := f.bookings.Get(ctx, actor, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)
	}

	for _, actor := range []model.Actor{f.student2, f.otherTutor} {
		_, err := f.bookings.Get(ctx, actor, b.ID)
		var forbidden *apperror.ForbiddenError
		assert.ErrorAs(t, err, &forbidden)
	}

	_, err := f.bookings.Get(ctx, f.admin, 424242)
	var notFound *apperror.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.book(t, f.student, monday(10, 0), 60, "")
	_, err := f.bookings.Apply(ctx, f.tutor, b.ID, StatusChange{Status: "CONFIRMED"})
	require.NoError(t, err)

	// moving onto its own former slot is not a conflict
	moved, err := f.bookings.Apply(ctx, f.student, b.ID, Reschedule{ScheduledAt: monday(10, 30)})
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, moved.Status)
	assert.True(t, moved.ScheduledAt.Equal(monday(10, 30)))
	assert.Equal(t, 60, moved.Duration)

	other := f.book(t, f.student2, monday(14, 0), 60, "")
	_, err = f.bookings.Apply(ctx, f.student, b.ID, Reschedule{ScheduledAt: monday(14, 30)})
	var conflict *apperror.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, other.ID, conflict.BookingID)

	_, err = f.bookings.Apply(ctx, f.tutor, b.ID, Reschedule{ScheduledAt: monday(12, 0)})
	var forbidden *apperror.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	_, err = f.bookings.Apply(ctx, f.student, b.ID, Reschedule{ScheduledAt: monday(12, 10)})
	var invalidTime *apperror.InvalidTimeError
	assert.ErrorAs(t, err, &invalidTime)

	assert.Contains(t, f.events.types(), notify.EventBookingRescheduled)
}

func TestChangeStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, f.student, monday(10, 0), 60, "")

	_, err := f.bookings.Apply(ctx, f.student, b.ID, StatusChange{Status: "CONFIRMED"})
	var forbidden *apperror.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	_, err = f.bookings.Apply(ctx, f.otherTutor, b.ID, StatusChange{Status: "CONFIRMED"})
	require.ErrorAs(t, err, &forbidden)

	_, err = f.bookings.Apply(ctx, f.tutor, b.ID, StatusChange{Status: "COMPLETED"})
	var transition *apperror.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, "PENDING", transition.From)

	_, err = f.bookings.Apply(ctx, f.tutor, b.ID, StatusChange{Status: "LOST"})
	var validation *apperror.ValidationError
	require.ErrorAs(t, err, &validation)

	confirmed, err := f.bookings.Apply(ctx, f.tutor, b.ID, StatusChange{Status: "CONFIRMED"})
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, confirmed.Status)

	completed, err := f.bookings.Apply(ctx, f.admin, b.ID, StatusChange{Status: "COMPLETED"})
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, completed.Status)

	// terminal states have no exits
	for _, op := range []Operation{StatusChange{Status: "CANCELLED"}, StatusChange{Status: "REFUNDED"}, Cancel{}} {
		_, err = f.bookings.Apply(ctx, f.admin, b.ID, op)
		require.ErrorAs(t, err, &transition, "%T", op)
	}
	assert.Equal(t, model.BookingStatusCompleted, f.reload(t, b.ID).Status)
}

func TestCancel_StudentLateCancellation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, f.student, monday(20, 0), 60, "pay_late")

	f.clock.Set(monday(10, 0))
	cancelled, err := f.bookings.Apply(ctx, f.student, b.ID, Cancel{})
	require.NoError(t, err)

	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	assert.True(t, cancelled.IsLateCancellation)
	assert.Equal(t, f.student.UserID, *cancelled.CancelledBy)
	assert.True(t, cancelled.CancelledAt.Equal(monday(10, 0)))

	// student cancellations are not refunded automatically
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Nil(t, cancelled.RefundRequestedAt)

	// one late cancellation is below the threshold
	assert.Nil(t, f.user(t, f.student.UserID).PenaltyUntil)
}

func TestCancel_OnTimeIsNotLate(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.student, monday(10, 0), 60, "")

	cancelled, err := f.bookings.Cancel(context.Background(), f.student, b.ID, "changed plans")
	require.NoError(t, err)
	assert.False(t, cancelled.IsLateCancellation)
}

func TestCancel_ForbiddenForStrangers(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.student, monday(10, 0), 60, "")

	for _, actor := range []model.Actor{f.student2, f.otherTutor} {
		_, err := f.bookings.Cancel(context.Background(), actor, b.ID, "")
		var forbidden *apperror.ForbiddenError
		assert.ErrorAs(t, err, &forbidden)
	}
	assert.Equal(t, model.BookingStatusPending, f.reload(t, b.ID).Status)
}

func TestCancel_ThirdLateCancellationPenalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.pastLateCancellation(f.student.UserID, friday.Add(-7*24*time.Hour))
	f.pastLateCancellation(f.student.UserID, friday.Add(-3*24*time.Hour))

	b := f.book(t, f.student, monday(10, 0), 60, "")
	cancelAt := monday(0, 0)
	f.clock.Set(cancelAt)

	cancelled, err := f.bookings.Cancel(ctx, f.student, b.ID, "")
	require.NoError(t, err)
	require.True(t, cancelled.IsLateCancellation)

	penaltyUntil := f.user(t, f.student.UserID).PenaltyUntil
	require.NotNil(t, penaltyUntil)
	assert.True(t, penaltyUntil.Equal(cancelled.CancelledAt.Add(7*24*time.Hour)))
	assert.Contains(t, f.events.types(), notify.EventPenaltyApplied)

	// a penalized student cannot cancel
	f.clock.Set(friday)
	next := f.book(t, f.student, monday(12, 0), 60, "")
	f.clock.Set(cancelAt.Add(time.Hour))
	_, err = f.bookings.Cancel(ctx, f.student, next.ID, "")
	var penalized *apperror.PenalizedError
	require.ErrorAs(t, err, &penalized)
	assert.True(t, penalized.Until.Equal(*penaltyUntil))
	assert.Equal(t, model.BookingStatusPending, f.reload(t, next.ID).Status)

	// after expiry an on-time cancellation does not extend the penalty
	f.clock.Set(time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC))
	later := f.book(t, f.student, time.Date(2024, 3, 18, 10, 0, 0, 0, time.UTC), 60, "")
	_, err = f.bookings.Cancel(ctx, f.student, later.ID, "")
	require.NoError(t, err)

	after := f.user(t, f.student.UserID).PenaltyUntil
	require.NotNil(t, after)
	assert.True(t, after.Equal(*penaltyUntil))
}

func TestCancel_TutorCancellationDoesNotPenalizeStudent(t *testing.T) {
	f := newFixture(t)
	f.pastLateCancellation(f.student.UserID, friday.Add(-7*24*time.Hour))
	f.pastLateCancellation(f.student.UserID, friday.Add(-3*24*time.Hour))

	b := f.book(t, f.student, monday(10, 0), 60, "")
	f.clock.Set(monday(8, 0))

	cancelled, err := f.bookings.Cancel(context.Background(), f.tutor, b.ID, "sick")
	require.NoError(t, err)
	assert.True(t, cancelled.IsLateCancellation)
	assert.Nil(t, f.user(t, f.student.UserID).PenaltyUntil)
}

func TestTutorRejectsPaidBooking_RefundsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, f.student, monday(10, 0), 60, "pay_d")

	f.gateway.On("Refund", mock.Anything, "pay_d", mock.Anything, IdempotencyKey(b.ID)).
		Return(receipt("rf_d"), nil).Once()

	result, err := f.bookings.Apply(ctx, f.tutor, b.ID, StatusChange{Status: "CANCELLED"})
	require.NoError(t, err)

	assert.Equal(t, model.BookingStatusRefunded, result.Status)
	require.NotNil(t, result.RefundReference)
	assert.Equal(t, "rf_d", *result.RefundReference)
	require.NotNil(t, result.CancelledAt)
	assert.Equal(t, f.tutor.UserID, *result.CancelledBy)

	again, err := f.refunds.Reconcile(ctx, b.ID, "retry")
	require.NoError(t, err)
	assert.True(t, again.AlreadyRefunded)
	assert.False(t, again.Issued)
	assert.Equal(t, "rf_d", again.RefundReference)

	f.gateway.AssertNumberOfCalls(t, "Refund", 1)
	assert.Equal(t, []notify.EventType{
		notify.EventBookingRequested,
		notify.EventBookingCancelled,
		notify.EventBookingRefunded,
	}, f.events.types())
}

func TestCancel_GatewayFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, f.student, monday(10, 0), 60, "pay_fail")

	f.gateway.On("Refund", mock.Anything, "pay_fail", mock.Anything, IdempotencyKey(b.ID)).
		Return(nil, errors.New("gateway unavailable")).Once()

	cancelled, err := f.bookings.Cancel(ctx, f.admin, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)

	stored := f.reload(t, b.ID)
	assert.Equal(t, model.BookingStatusCancelled, stored.Status)
	assert.Nil(t, stored.RefundReference)
	assert.Nil(t, stored.RefundClaimToken)
	assert.Equal(t, 1, stored.RefundAttempts)
	require.NotNil(t, stored.RefundLastError)
	assert.Contains(t, *stored.RefundLastError, "gateway unavailable")

	// the sweep retries with the same idempotency key
	f.gateway.On("Refund", mock.Anything, "pay_fail", mock.Anything, IdempotencyKey(b.ID)).
		Return(receipt("rf_late"), nil).Once()

	results, err := f.refunds.ReconcilePending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Issued)
	assert.Equal(t, model.BookingStatusRefunded, f.reload(t, b.ID).Status)
	f.gateway.AssertNumberOfCalls(t, "Refund", 2)
}

func TestReconcileRefund_AdminOnly(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, f.student, monday(10, 0), 60, "")

	_, err := f.bookings.ReconcileRefund(context.Background(), f.tutor, b.ID, "")
	var forbidden *apperror.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	_, err = f.bookings.ReconcileRefund(context.Background(), f.admin, b.ID, "")
	var transition *apperror.InvalidTransitionError
	assert.ErrorAs(t, err, &transition)
}
