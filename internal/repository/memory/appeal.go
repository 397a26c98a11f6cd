package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

type AppealRepository struct {
	s *Store
}

func (s *Store) Appeals() *AppealRepository {
	return &AppealRepository{s: s}
}

func (r *AppealRepository) Create(ctx context.Context, appeal *model.CancellationAppeal) error {
	defer r.s.lock(ctx)()

	if appeal.IsPending() {
		for _, a := range r.s.appeals {
			if a.UserID == appeal.UserID && a.IsPending() {
				return fmt.Errorf("create appeal: user %d already has a pending appeal", appeal.UserID)
			}
		}
	}

	appeal.ID = r.s.id()
	appeal.CreatedAt = r.s.now()
	r.s.appeals[appeal.ID] = appeal.Clone()
	return nil
}

func (r *AppealRepository) GetByID(ctx context.Context, id int64) (*model.CancellationAppeal, error) {
	defer r.s.lock(ctx)()

	a, ok := r.s.appeals[id]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (r *AppealRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.CancellationAppeal, error) {
	return r.GetByID(ctx, id)
}

func (r *AppealRepository) GetPendingByUser(ctx context.Context, userID int64) (*model.CancellationAppeal, error) {
	defer r.s.lock(ctx)()

	for _, a := range r.s.appeals {
		if a.UserID == userID && a.IsPending() {
			return a.Clone(), nil
		}
	}
	return nil, nil
}

func (r *AppealRepository) Review(ctx context.Context, id int64, status model.AppealStatus, notes string, reviewedBy int64, reviewedAt time.Time) error {
	defer r.s.lock(ctx)()

	a, ok := r.s.appeals[id]
	if !ok || !a.IsPending() {
		return fmt.Errorf("appeal %d is not pending", id)
	}

	by := reviewedBy
	at := reviewedAt
	a.Status = status
	a.AdminNotes = notes
	a.ReviewedBy = &by
	a.ReviewedAt = &at
	return nil
}
