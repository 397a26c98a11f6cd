// Package memory is an in-process implementation of the booking stores.
// Transactions are serialized by a single mutex and rolled back from a snapshot,
// which gives the same isolation guarantees the Postgres stores get from SERIALIZABLE.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

type txKey struct{}

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users        map[int64]*model.User
	tutors       map[int64]*model.TutorProfile
	availability map[int64]*model.TutorAvailability
	bookings     map[int64]*model.Booking
	appeals      map[int64]*model.CancellationAppeal

	nextID int64
}

func NewStore() *Store {
	return &Store{
		now:          time.Now,
		users:        make(map[int64]*model.User),
		tutors:       make(map[int64]*model.TutorProfile),
		availability: make(map[int64]*model.TutorAvailability),
		bookings:     make(map[int64]*model.Booking),
		appeals:      make(map[int64]*model.CancellationAppeal),
	}
}

// SetClock replaces the clock used for created_at and updated_at stamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// WithinTx runs fn exclusively. An error restores the state fn started from.
// Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// lock takes the store mutex unless ctx already runs inside WithinTx
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

type snapshot struct {
	users        map[int64]*model.User
	tutors       map[int64]*model.TutorProfile
	availability map[int64]*model.TutorAvailability
	bookings     map[int64]*model.Booking
	appeals      map[int64]*model.CancellationAppeal
	nextID       int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:        make(map[int64]*model.User, len(s.users)),
		tutors:       make(map[int64]*model.TutorProfile, len(s.tutors)),
		availability: make(map[int64]*model.TutorAvailability, len(s.availability)),
		bookings:     make(map[int64]*model.Booking, len(s.bookings)),
		appeals:      make(map[int64]*model.CancellationAppeal, len(s.appeals)),
		nextID:       s.nextID,
	}
	for id, u := range s.users {
		snap.users[id] = u.Clone()
	}
	for id, t := range s.tutors {
		c := *t
		snap.tutors[id] = &c
	}
	for id, a := range s.availability {
		c := *a
		snap.availability[id] = &c
	}
	for id, b := range s.bookings {
		snap.bookings[id] = b.Clone()
	}
	for id, a := range s.appeals {
		snap.appeals[id] = a.Clone()
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.tutors = snap.tutors
	s.availability = snap.availability
	s.bookings = snap.bookings
	s.appeals = snap.appeals
	s.nextID = snap.nextID
}

// AddUser stores a user and assigns its id
func (s *Store) AddUser(u *model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.ID = s.id()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[u.ID] = u.Clone()
	return u
}

// AddTutor stores an active tutor profile for an existing user
func (s *Store) AddTutor(userID int64, displayName string) *model.TutorProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &model.TutorProfile{
		ID:          s.id(),
		UserID:      userID,
		DisplayName: displayName,
		IsActive:    true,
		CreatedAt:   s.now(),
	}
	c := *t
	s.tutors[t.ID] = &c
	return t
}

// AddAvailability stores a weekly window of a tutor
func (s *Store) AddAvailability(w *model.TutorAvailability) *model.TutorAvailability {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.ID = s.id()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}
	c := *w
	s.availability[w.ID] = &c
	return w
}

// PutBooking stores a booking as is, bypassing every rule. Used to prepare history.
func (s *Store) PutBooking(b *model.Booking) *model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == 0 {
		b.ID = s.id()
	}
	if t, ok := s.tutors[b.TutorID]; ok {
		b.TutorUserID = t.UserID
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
		b.UpdatedAt = b.CreatedAt
	}
	s.bookings[b.ID] = b.Clone()
	return b
}

func sortBookings(list []*model.Booking) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].ScheduledAt.Equal(list[j].ScheduledAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].ScheduledAt.Before(list[j].ScheduledAt)
	})
}
