package model

import "time"

type User struct {
	ID           int64      `json:"id"`
	TelegramID   *int64     `json:"telegramId,omitempty"`
	Email        string     `json:"email"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Role         Role       `json:"role"`
	PenaltyUntil *time.Time `json:"penaltyUntil"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// IsPenalized checks if the user is blocked from cancelling at the given moment.
// Expiry is lazy: nothing clears the field once the moment has passed.
func (u *User) IsPenalized(now time.Time) bool {
	return u.PenaltyUntil != nil && now.Before(*u.PenaltyUntil)
}

// Clone returns a deep copy
func (u *User) Clone() *User {
	c := *u
	c.TelegramID = cloneInt64(u.TelegramID)
	c.PenaltyUntil = cloneTime(u.PenaltyUntil)
	return &c
}
