package policy

import (
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// Overlaps reports whether half-open intervals [aStart, aEnd) and [bStart, bEnd) intersect
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// ConflictDetector checks a slot against the tutor's existing bookings
type ConflictDetector struct{}

// Detect fails with ConflictError on the first slot-blocking booking overlapping
// [at, at+duration). excludeID skips the booking being rescheduled.
func (ConflictDetector) Detect(existing []*model.Booking, at time.Time, duration int, excludeID int64) error {
	end := at.Add(time.Duration(duration) * time.Minute)

	for _, b := range existing {
		if b.ID == excludeID || !b.Status.BlocksSlot() {
			continue
		}
		if Overlaps(at, end, b.ScheduledAt, b.EndsAt()) {
			return &apperror.ConflictError{
				BookingID:   b.ID,
				ScheduledAt: b.ScheduledAt,
				EndsAt:      b.EndsAt(),
			}
		}
	}

	return nil
}
