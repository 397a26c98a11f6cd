package policy

import (
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// AvailabilityMatcher checks a slot against a tutor's recurring weekly windows
type AvailabilityMatcher struct {
	Location *time.Location
}

// Match succeeds if the slot lies fully inside at least one active window
func (m AvailabilityMatcher) Match(tutorID int64, windows []*model.TutorAvailability, at time.Time, duration int) error {
	loc := m.Location
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	startMinute := local.Hour()*60 + local.Minute()

	for _, w := range windows {
		if w.Contains(local.Weekday(), startMinute, duration) {
			return nil
		}
	}

	return &apperror.NotAvailableError{TutorID: tutorID, ScheduledAt: at, Duration: duration}
}
