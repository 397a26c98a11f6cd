// Package notify delivers booking notifications after the state change has committed.
// Delivery is best effort: failures are logged and never reach the booking operation.
package notify

import (
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

type EventType string

const (
	EventBookingRequested   EventType = "BOOKING_REQUESTED"
	EventBookingConfirmed   EventType = "BOOKING_CONFIRMED"
	EventBookingRescheduled EventType = "BOOKING_RESCHEDULED"
	EventBookingCancelled   EventType = "BOOKING_CANCELLED"
	EventBookingRefunded    EventType = "BOOKING_REFUNDED"
	EventPenaltyApplied     EventType = "PENALTY_APPLIED"
	EventAppealReviewed     EventType = "APPEAL_REVIEWED"
)

// Event is the message emitted after a committed state change
type Event struct {
	Type            EventType  `json:"type"`
	BookingID       int64      `json:"bookingId,omitempty"`
	AppealID        int64      `json:"appealId,omitempty"`
	StudentID       int64      `json:"studentId,omitempty"`
	TutorUserID     int64      `json:"tutorUserId,omitempty"`
	UserID          int64      `json:"userId,omitempty"`
	ScheduledAt     *time.Time `json:"scheduledAt,omitempty"`
	Duration        int        `json:"duration,omitempty"`
	Status          string     `json:"status,omitempty"`
	CancelledBy     int64      `json:"cancelledBy,omitempty"`
	IsLate          bool       `json:"isLate,omitempty"`
	PenaltyUntil    *time.Time `json:"penaltyUntil,omitempty"`
	RefundReference string     `json:"refundReference,omitempty"`
	Amount          string     `json:"amount,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	OccurredAt      time.Time  `json:"occurredAt"`
}

// BookingEvent builds an event describing the booking as it is now
func BookingEvent(t EventType, b *model.Booking) Event {
	at := b.ScheduledAt
	e := Event{
		Type:        t,
		BookingID:   b.ID,
		StudentID:   b.StudentID,
		TutorUserID: b.TutorUserID,
		ScheduledAt: &at,
		Duration:    b.Duration,
		Status:      string(b.Status),
		IsLate:      b.IsLateCancellation,
		Amount:      b.Price.StringFixed(2),
	}
	if b.CancelledBy != nil {
		e.CancelledBy = *b.CancelledBy
	}
	if b.RefundReference != nil {
		e.RefundReference = *b.RefundReference
	}
	if b.RefundAmount != nil {
		e.Amount = b.RefundAmount.StringFixed(2)
	}
	return e
}

// PenaltyEvent builds the event sent to a student who just got penalized
func PenaltyEvent(studentID int64, until time.Time, bookingID int64) Event {
	return Event{
		Type:         EventPenaltyApplied,
		BookingID:    bookingID,
		UserID:       studentID,
		PenaltyUntil: &until,
	}
}

// AppealEvent builds the event sent when an admin decided on an appeal
func AppealEvent(a *model.CancellationAppeal) Event {
	return Event{
		Type:     EventAppealReviewed,
		AppealID: a.ID,
		UserID:   a.UserID,
		Status:   string(a.Status),
		Reason:   a.AdminNotes,
	}
}

// Recipients returns the users an event concerns
func (e Event) Recipients() []int64 {
	var ids []int64
	for _, id := range []int64{e.StudentID, e.TutorUserID, e.UserID} {
		if id != 0 && !contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
