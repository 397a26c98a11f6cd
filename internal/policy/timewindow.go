package policy

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// TimeWindowValidator checks that a requested slot is legal on its own,
// without looking at the tutor's calendar.
type TimeWindowValidator struct {
	MinLeadTime time.Duration
	Granularity time.Duration
	MaxDuration time.Duration
	Location    *time.Location
}

// Validate checks duration, future-dating, minimum lead time and slot alignment
func (v TimeWindowValidator) Validate(now, at time.Time, duration int) error {
	if err := v.validateDuration(duration); err != nil {
		return err
	}

	if !at.After(now) {
		return &apperror.InvalidTimeError{
			Rule:   apperror.RuleFuture,
			Detail: "booking time must be in the future",
		}
	}

	if at.Sub(now) < v.MinLeadTime {
		return &apperror.InvalidTimeError{
			Rule:   apperror.RuleLeadTime,
			Detail: fmt.Sprintf("bookings must be made at least %s in advance", formatDuration(v.MinLeadTime)),
		}
	}

	if !v.aligned(at) {
		return &apperror.InvalidTimeError{
			Rule:   apperror.RuleGranularity,
			Detail: fmt.Sprintf("booking time must start on a %s boundary", formatDuration(v.Granularity)),
		}
	}

	return nil
}

func (v TimeWindowValidator) validateDuration(duration int) error {
	if duration <= 0 {
		return &apperror.InvalidTimeError{Rule: apperror.RuleDuration, Detail: "duration must be positive"}
	}

	step := v.granularityMinutes()
	if step > 0 && duration%step != 0 {
		return &apperror.InvalidTimeError{
			Rule:   apperror.RuleDuration,
			Detail: fmt.Sprintf("duration must be a multiple of %d minutes", step),
		}
	}

	// сравниваем в минутах: перевод в time.Duration переполняется на огромных значениях
	if duration > model.MinutesPerDay || (v.MaxDuration > 0 && duration > int(v.MaxDuration/time.Minute)) {
		return &apperror.InvalidTimeError{
			Rule:   apperror.RuleDuration,
			Detail: fmt.Sprintf("duration must not exceed %s", formatDuration(v.maxDuration())),
		}
	}

	return nil
}

// aligned checks the start against slot boundaries counted from local midnight
func (v TimeWindowValidator) aligned(at time.Time) bool {
	step := v.granularityMinutes()
	if step <= 0 {
		return true
	}

	loc := v.Location
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	if local.Second() != 0 || local.Nanosecond() != 0 {
		return false
	}

	return (local.Hour()*60+local.Minute())%step == 0
}

func (v TimeWindowValidator) maxDuration() time.Duration {
	if v.MaxDuration > 0 && v.MaxDuration < model.MinutesPerDay*time.Minute {
		return v.MaxDuration
	}
	return model.MinutesPerDay * time.Minute
}

func (v TimeWindowValidator) granularityMinutes() int {
	return int(v.Granularity / time.Minute)
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	default:
		return d.String()
	}
}
