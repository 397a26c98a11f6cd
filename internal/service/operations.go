package service

import "time"

// Operation is one of the mutations accepted on an existing booking:
// Reschedule, StatusChange or Cancel.
type Operation interface {
	operation()
}

// Reschedule moves the booking to a new start time and resets it to PENDING
type Reschedule struct {
	ScheduledAt time.Time
}

// StatusChange moves the booking along the status graph
type StatusChange struct {
	Status string
}

// Cancel cancels the booking on behalf of the actor
type Cancel struct {
	Reason string
}

func (Reschedule) operation()   {}
func (StatusChange) operation() {}
func (Cancel) operation()       {}
