package policy

import (
	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// transitions is the booking status graph. REFUNDED is reachable only as a
// side effect of refund reconciliation and is never requestable.
var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.BookingStatusPending:   {model.BookingStatusConfirmed, model.BookingStatusCancelled},
	model.BookingStatusConfirmed: {model.BookingStatusCompleted, model.BookingStatusCancelled},
	model.BookingStatusCancelled: {model.BookingStatusRefunded},
}

// CanTransition reports whether from -> to is an edge of the status graph
func CanTransition(from, to model.BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition fails with InvalidTransitionError for any pair outside the graph
func ValidateTransition(from, to model.BookingStatus) error {
	if !CanTransition(from, to) {
		return invalidTransition(from, to)
	}
	return nil
}

// ValidateStatusChange gates the status-change path: tutor of the booking or admin only,
// and only along requestable edges.
func ValidateStatusChange(actor model.Actor, b *model.Booking, to model.BookingStatus) error {
	if !actor.IsAdmin() && !actor.OwnsAsTutor(b) {
		return apperror.Forbidden("only the tutor of the booking or an admin may change its status")
	}

	if to == model.BookingStatusRefunded || b.Status.IsTerminal() {
		return invalidTransition(b.Status, to)
	}

	return ValidateTransition(b.Status, to)
}

// ValidateCancel gates the cancellation path: any party of the booking or admin
func ValidateCancel(actor model.Actor, b *model.Booking) error {
	if !actor.CanView(b) {
		return apperror.Forbidden("only a party of the booking or an admin may cancel it")
	}

	return ValidateTransition(b.Status, model.BookingStatusCancelled)
}

// ValidateReschedule gates the reschedule path: the student of the booking only,
// while the booking is still PENDING or CONFIRMED. Rescheduling resets to PENDING.
func ValidateReschedule(actor model.Actor, b *model.Booking) error {
	if !actor.OwnsAsStudent(b) {
		return apperror.Forbidden("only the student of the booking may reschedule it")
	}

	if b.Status != model.BookingStatusPending && b.Status != model.BookingStatusConfirmed {
		return invalidTransition(b.Status, model.BookingStatusPending)
	}

	return nil
}

func invalidTransition(from, to model.BookingStatus) error {
	return &apperror.InvalidTransitionError{From: string(from), To: string(to)}
}
