package model

import "time"

type AppealStatus string

// Appeal status constants
const (
	AppealStatusPending  AppealStatus = "PENDING"
	AppealStatusApproved AppealStatus = "APPROVED"
	AppealStatusRejected AppealStatus = "REJECTED"
)

// CancellationAppeal represents a student's contestation of a cancellation penalty
type CancellationAppeal struct {
	ID         int64        `json:"id"`
	UserID     int64        `json:"userId"`
	Reason     string       `json:"reason"`
	Status     AppealStatus `json:"status"`
	AdminNotes string       `json:"adminNotes"`
	ReviewedBy *int64       `json:"reviewedBy"`
	ReviewedAt *time.Time   `json:"reviewedAt"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// IsPending checks if appeal still waits for an admin
func (a *CancellationAppeal) IsPending() bool {
	return a.Status == AppealStatusPending
}

// IsApproved checks if appeal is approved
func (a *CancellationAppeal) IsApproved() bool {
	return a.Status == AppealStatusApproved
}

// Clone returns a deep copy
func (a *CancellationAppeal) Clone() *CancellationAppeal {
	c := *a
	c.ReviewedBy = cloneInt64(a.ReviewedBy)
	c.ReviewedAt = cloneTime(a.ReviewedAt)
	return &c
}
