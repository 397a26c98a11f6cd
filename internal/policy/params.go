// Package policy contains the side-effect free rules of the booking lifecycle:
// time window legality, availability matching, overlap detection, status
// transitions and the cancellation penalty policy.
package policy

import "time"

// Params are the tunable policy constants of the platform
type Params struct {
	Location        *time.Location
	MinLeadTime     time.Duration
	Granularity     time.Duration
	MaxDuration     time.Duration
	LateCutoff      time.Duration
	LateThreshold   int
	LateWindow      time.Duration // zero counts late cancellations over all time
	PenaltyDuration time.Duration
	RefundClaimTTL  time.Duration
}

// DefaultParams returns the values observed in production copy and behaviour
func DefaultParams() Params {
	return Params{
		Location:        time.UTC,
		MinLeadTime:     24 * time.Hour,
		Granularity:     30 * time.Minute,
		MaxDuration:     4 * time.Hour,
		LateCutoff:      12 * time.Hour,
		LateThreshold:   2,
		PenaltyDuration: 7 * 24 * time.Hour,
		RefundClaimTTL:  5 * time.Minute,
	}
}

func (p Params) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// TimeWindow builds the validator for requested slots
func (p Params) TimeWindow() TimeWindowValidator {
	return TimeWindowValidator{
		MinLeadTime: p.MinLeadTime,
		Granularity: p.Granularity,
		MaxDuration: p.MaxDuration,
		Location:    p.location(),
	}
}

// Availability builds the weekly window matcher
func (p Params) Availability() AvailabilityMatcher {
	return AvailabilityMatcher{Location: p.location()}
}

// Cancellation builds the cancellation policy
func (p Params) Cancellation() CancellationPolicy {
	return CancellationPolicy{
		LateCutoff:      p.LateCutoff,
		Threshold:       p.LateThreshold,
		CountWindow:     p.LateWindow,
		PenaltyDuration: p.PenaltyDuration,
	}
}
