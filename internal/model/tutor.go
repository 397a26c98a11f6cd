package model

import "time"

// TutorProfile is the bookable side of a tutor user
type TutorProfile struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	DisplayName string    `json:"displayName"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TutorAvailability is a recurring weekly window of a tutor profile
type TutorAvailability struct {
	ID          int64        `json:"id"`
	TutorID     int64        `json:"tutorId"`
	Weekday     time.Weekday `json:"weekday"`     // 0 = Sunday, 6 = Saturday
	StartMinute int          `json:"startMinute"` // minutes since midnight, inclusive
	EndMinute   int          `json:"endMinute"`   // minutes since midnight, exclusive, up to 1440
	IsActive    bool         `json:"isActive"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// MinutesPerDay bounds window edges and session durations
const MinutesPerDay = 24 * 60

// Contains checks if [start, start+duration) lies inside the window
func (a *TutorAvailability) Contains(weekday time.Weekday, startMinute, duration int) bool {
	if !a.IsActive || a.Weekday != weekday {
		return false
	}
	if duration <= 0 || duration > MinutesPerDay || startMinute < 0 || startMinute >= MinutesPerDay {
		return false
	}
	return startMinute >= a.StartMinute && startMinute+duration <= a.EndMinute
}
