package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/notify"
)

// Transactor runs fn inside one serializable transaction.
// Repositories called with the ctx passed to fn take part in it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id int64) (*model.Booking, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Booking, error)
	GetActiveByTutorID(ctx context.Context, tutorID int64) ([]*model.Booking, error)
	ListPendingRefunds(ctx context.Context, limit int) ([]*model.Booking, error)
	Reschedule(ctx context.Context, id int64, scheduledAt time.Time, duration int) error
	UpdateStatus(ctx context.Context, id int64, status model.BookingStatus) error
	MarkCancelled(ctx context.Context, c model.Cancellation) error
	CountLateCancellations(ctx context.Context, studentID int64, since time.Time) (int, error)
	ClaimRefund(ctx context.Context, id int64, token string, at time.Time) error
	MarkRefunded(ctx context.Context, id int64, token string, receipt model.RefundReceipt, at time.Time) error
	ReleaseRefundClaim(ctx context.Context, id int64, token, lastError string) error
}

type TutorRepository interface {
	GetProfile(ctx context.Context, id int64) (*model.TutorProfile, error)
	LockProfile(ctx context.Context, id int64) (*model.TutorProfile, error)
	GetActiveAvailability(ctx context.Context, tutorID int64) ([]*model.TutorAvailability, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.User, error)
	SetPenaltyUntil(ctx context.Context, id int64, until *time.Time) error
}

type AppealRepository interface {
	Create(ctx context.Context, appeal *model.CancellationAppeal) error
	GetByID(ctx context.Context, id int64) (*model.CancellationAppeal, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.CancellationAppeal, error)
	GetPendingByUser(ctx context.Context, userID int64) (*model.CancellationAppeal, error)
	Review(ctx context.Context, id int64, status model.AppealStatus, notes string, reviewedBy int64, reviewedAt time.Time) error
}

// PaymentGateway issues refunds. The idempotency key makes a repeated call
// for the same booking return the original refund.
type PaymentGateway interface {
	Refund(ctx context.Context, paymentID, reason, idempotencyKey string) (*model.RefundReceipt, error)
}

// EventPublisher receives events after the transaction has committed. It must not block.
type EventPublisher interface {
	Publish(e notify.Event)
}

// Clock returns the current instant
type Clock func() time.Time

type noopPublisher struct{}

func (noopPublisher) Publish(notify.Event) {}
