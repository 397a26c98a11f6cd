package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"   // waiting for the tutor
	BookingStatusConfirmed BookingStatus = "CONFIRMED" // accepted by the tutor
	BookingStatusCompleted BookingStatus = "COMPLETED" // session took place
	BookingStatusCancelled BookingStatus = "CANCELLED" // cancelled by any party
	BookingStatusRefunded  BookingStatus = "REFUNDED"  // payment returned after cancellation
)

// ParseBookingStatus validates a status coming from the outside world
func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch st := BookingStatus(s); st {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCompleted,
		BookingStatusCancelled, BookingStatusRefunded:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether no requested transition may leave the status.
// CANCELLED still moves to REFUNDED, but only through refund reconciliation.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled || s == BookingStatusRefunded
}

// BlocksSlot reports whether a booking in this status occupies the tutor's time
func (s BookingStatus) BlocksSlot() bool {
	return s != BookingStatusCancelled && s != BookingStatusRefunded
}

type Booking struct {
	ID          int64           `json:"id"`
	StudentID   int64           `json:"studentId"`
	TutorID     int64           `json:"tutorId"`
	TutorUserID int64           `json:"tutorUserId"`
	ScheduledAt time.Time       `json:"scheduledAt"`
	Duration    int             `json:"duration"` // minutes
	Status      BookingStatus   `json:"status"`
	Price       decimal.Decimal `json:"price"`
	PaymentID   *string         `json:"paymentId"`

	CancelledAt        *time.Time `json:"cancelledAt"`
	CancelledBy        *int64     `json:"cancelledBy"`
	IsLateCancellation bool       `json:"isLateCancellation"`

	RefundReference *string          `json:"refundReference"`
	RefundAmount    *decimal.Decimal `json:"refundAmount"`
	RefundedAt      *time.Time       `json:"refundedAt"`

	// Reconciliation bookkeeping, never rendered to clients
	RefundRequestedAt *time.Time `json:"-"`
	RefundClaimToken  *string    `json:"-"`
	RefundClaimedAt   *time.Time `json:"-"`
	RefundAttempts    int        `json:"-"`
	RefundLastError   *string    `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EndsAt returns the exclusive end of the session
func (b *Booking) EndsAt() time.Time {
	return b.ScheduledAt.Add(time.Duration(b.Duration) * time.Minute)
}

// IsPaid checks if the booking has a payment at the gateway
func (b *Booking) IsPaid() bool {
	return b.PaymentID != nil && *b.PaymentID != ""
}

// HasRefund checks if a refund was already recorded
func (b *Booking) HasRefund() bool {
	return b.Status == BookingStatusRefunded || (b.RefundReference != nil && *b.RefundReference != "")
}

// Clone returns a deep copy, used by stores that must not leak internal pointers
func (b *Booking) Clone() *Booking {
	c := *b
	c.PaymentID = cloneString(b.PaymentID)
	c.CancelledAt = cloneTime(b.CancelledAt)
	c.CancelledBy = cloneInt64(b.CancelledBy)
	c.RefundReference = cloneString(b.RefundReference)
	c.RefundedAt = cloneTime(b.RefundedAt)
	c.RefundRequestedAt = cloneTime(b.RefundRequestedAt)
	c.RefundClaimToken = cloneString(b.RefundClaimToken)
	c.RefundClaimedAt = cloneTime(b.RefundClaimedAt)
	c.RefundLastError = cloneString(b.RefundLastError)
	if b.RefundAmount != nil {
		amount := *b.RefundAmount
		c.RefundAmount = &amount
	}
	return &c
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
