package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

type UserRepository struct {
	s *Store
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return u.Clone(), nil
}

func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.User, error) {
	return r.GetByID(ctx, id)
}

func (r *UserRepository) SetPenaltyUntil(ctx context.Context, id int64, until *time.Time) error {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return fmt.Errorf("user not found")
	}
	if until == nil {
		u.PenaltyUntil = nil
		return nil
	}
	v := *until
	u.PenaltyUntil = &v
	return nil
}
