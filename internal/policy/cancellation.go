package policy

import (
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// CancellationPolicy classifies cancellations and escalates penalties
// for students who cancel late too often.
type CancellationPolicy struct {
	LateCutoff      time.Duration
	Threshold       int
	CountWindow     time.Duration
	PenaltyDuration time.Duration
}

// CheckPenalty blocks a penalized student from cancelling
func (p CancellationPolicy) CheckPenalty(student *model.User, now time.Time) error {
	if student.IsPenalized(now) {
		return &apperror.PenalizedError{Until: *student.PenaltyUntil}
	}
	return nil
}

// IsLate reports whether the notice given is shorter than the cutoff.
// Applies to every initiator.
func (p CancellationPolicy) IsLate(scheduledAt, now time.Time) bool {
	return scheduledAt.Sub(now) < p.LateCutoff
}

// CountSince returns the lower bound for counting prior late cancellations.
// The zero time means all-time counting.
func (p CancellationPolicy) CountSince(now time.Time) time.Time {
	if p.CountWindow <= 0 {
		return time.Time{}
	}
	return now.Add(-p.CountWindow)
}

// Escalate returns the new penalty end when the late cancellation being recorded,
// added to priorLate, exceeds the threshold. Returns nil when no penalty applies.
func (p CancellationPolicy) Escalate(priorLate int, now time.Time) *time.Time {
	if priorLate+1 <= p.Threshold {
		return nil
	}
	until := now.Add(p.PenaltyDuration)
	return &until
}
