package model

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTutor   Role = "TUTOR"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole validates a role claim
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleStudent, RoleTutor, RoleAdmin:
		return r, true
	}
	return "", false
}

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsAdmin() bool   { return a.Role == RoleAdmin }
func (a Actor) IsStudent() bool { return a.Role == RoleStudent }
func (a Actor) IsTutor() bool   { return a.Role == RoleTutor }

// OwnsAsStudent checks if the actor is the student of the booking
func (a Actor) OwnsAsStudent(b *Booking) bool {
	return a.IsStudent() && b.StudentID == a.UserID
}

// OwnsAsTutor checks if the actor is the tutor of the booking
func (a Actor) OwnsAsTutor(b *Booking) bool {
	return a.IsTutor() && b.TutorUserID == a.UserID
}

// CanView checks if the actor may read the booking
func (a Actor) CanView(b *Booking) bool {
	return a.IsAdmin() || a.OwnsAsStudent(b) || a.OwnsAsTutor(b)
}
