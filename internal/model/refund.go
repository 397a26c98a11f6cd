package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRefundClaimLost is returned by stores when the refund claim token no longer matches
var ErrRefundClaimLost = errors.New("refund claim lost")

// Cancellation is the set-once record written when a booking enters CANCELLED
type Cancellation struct {
	BookingID       int64
	By              int64
	At              time.Time
	IsLate          bool
	RefundRequested bool
}

// RefundReceipt is what the payment gateway returns for a successful refund
type RefundReceipt struct {
	Reference string          `json:"refundReference"`
	Amount    decimal.Decimal `json:"amount"`
}

// RefundResult is the outcome of one reconciliation run
type RefundResult struct {
	BookingID       int64            `json:"bookingId"`
	Issued          bool             `json:"issued"`
	AlreadyRefunded bool             `json:"alreadyRefunded"`
	RefundReference string           `json:"refundReference,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Error           string           `json:"error,omitempty"`
}
