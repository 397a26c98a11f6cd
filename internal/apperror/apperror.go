// Package apperror holds the error taxonomy of the booking engine.
// Every type is returned as a pointer and matched with errors.As.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError is returned when a booking, appeal, user or tutor does not exist
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError
func NotFound(resource string, id int64) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ForbiddenError is a role or ownership violation
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Reason
}

// Forbidden builds a ForbiddenError
func Forbidden(reason string) error {
	return &ForbiddenError{Reason: reason}
}

// UnauthorizedError means the caller could not be identified
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: " + e.Reason
}

// ValidationError is a malformed or incomplete request payload
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid builds a ValidationError
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Rules checked by the time window validator
const (
	RuleFuture      = "future"
	RuleLeadTime    = "lead_time"
	RuleGranularity = "granularity"
	RuleDuration    = "duration"
)

// InvalidTimeError names the time rule a requested slot violates
type InvalidTimeError struct {
	Rule   string
	Detail string
}

func (e *InvalidTimeError) Error() string {
	return fmt.Sprintf("invalid booking time (%s): %s", e.Rule, e.Detail)
}

// NotAvailableError means the slot is outside every active availability window
type NotAvailableError struct {
	TutorID     int64
	ScheduledAt time.Time
	Duration    int
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("tutor %d is not available at %s for %d minutes",
		e.TutorID, e.ScheduledAt.Format(time.RFC3339), e.Duration)
}

// ConflictError names the booking that overlaps the requested slot
type ConflictError struct {
	BookingID   int64
	ScheduledAt time.Time
	EndsAt      time.Time
}

func (e *ConflictError) Error() string {
	if e.ScheduledAt.IsZero() {
		return "time slot overlaps an existing booking"
	}
	return fmt.Sprintf("time slot overlaps booking %d (%s - %s)",
		e.BookingID, e.ScheduledAt.Format(time.RFC3339), e.EndsAt.Format(time.RFC3339))
}

// InvalidTransitionError carries the rejected status pair
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// PenalizedError blocks a student cancellation until the penalty ends
type PenalizedError struct {
	Until time.Time
}

func (e *PenalizedError) Error() string {
	return fmt.Sprintf("cancellations are blocked until %s due to repeated late cancellations; file an appeal to contest the penalty",
		e.Until.Format(time.RFC3339))
}

// AlreadyReviewedError means an appeal already has an outcome
type AlreadyReviewedError struct {
	AppealID int64
	Status   string
}

func (e *AlreadyReviewedError) Error() string {
	return fmt.Sprintf("appeal %d was already reviewed (%s)", e.AppealID, e.Status)
}

// GatewayError wraps a failed call to the payment gateway
type GatewayError struct {
	Op        string
	PaymentID string
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s for payment %s: %v", e.Op, e.PaymentID, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ErrRefundInProgress is returned when another reconciliation holds the refund claim
var ErrRefundInProgress = errors.New("refund reconciliation already in progress")

// IsClientError reports whether err belongs to the taxonomy surfaced to callers as 4xx
func IsClientError(err error) bool {
	var (
		notFound     *NotFoundError
		forbidden    *ForbiddenError
		unauthorized *UnauthorizedError
		validation   *ValidationError
		invalidTime  *InvalidTimeError
		notAvailable *NotAvailableError
		conflict     *ConflictError
		transition   *InvalidTransitionError
		penalized    *PenalizedError
		reviewed     *AlreadyReviewedError
	)
	return errors.As(err, &notFound) || errors.As(err, &forbidden) || errors.As(err, &unauthorized) ||
		errors.As(err, &validation) || errors.As(err, &invalidTime) || errors.As(err, &notAvailable) ||
		errors.As(err, &conflict) || errors.As(err, &transition) || errors.As(err, &penalized) ||
		errors.As(err, &reviewed)
}
