package memory

import (
	"context"
	"sort"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

type TutorRepository struct {
	s *Store
}

func (s *Store) Tutors() *TutorRepository {
	return &TutorRepository{s: s}
}

func (r *TutorRepository) GetProfile(ctx context.Context, id int64) (*model.TutorProfile, error) {
	defer r.s.lock(ctx)()

	t, ok := r.s.tutors[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (r *TutorRepository) LockProfile(ctx context.Context, id int64) (*model.TutorProfile, error) {
	return r.GetProfile(ctx, id)
}

func (r *TutorRepository) GetActiveAvailability(ctx context.Context, tutorID int64) ([]*model.TutorAvailability, error) {
	defer r.s.lock(ctx)()

	var list []*model.TutorAvailability
	for _, w := range r.s.availability {
		if w.TutorID == tutorID && w.IsActive {
			c := *w
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Weekday == list[j].Weekday {
			return list[i].StartMinute < list[j].StartMinute
		}
		return list[i].Weekday < list[j].Weekday
	})
	return list, nil
}
