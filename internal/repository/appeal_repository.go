package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
)

const appealColumns = `id, user_id, reason, status, admin_notes, reviewed_by, reviewed_at, created_at`

type AppealRepository struct {
	*base.Repository
}

func NewAppealRepository(pool *pgxpool.Pool) *AppealRepository {
	return &AppealRepository{Repository: base.NewRepository(pool)}
}

// Create создает апелляцию
func (r *AppealRepository) Create(ctx context.Context, appeal *model.CancellationAppeal) error {
	query := `
		INSERT INTO cancellation_appeals (user_id, reason, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.QueryRow(
		ctx, query,
		appeal.UserID,
		appeal.Reason,
		appeal.Status,
	).Scan(&appeal.ID, &appeal.CreatedAt)

	if err != nil {
		return fmt.Errorf("create appeal: %w", err)
	}

	return nil
}

// GetByID получает апелляцию по ID
func (r *AppealRepository) GetByID(ctx context.Context, id int64) (*model.CancellationAppeal, error) {
	appeal, err := r.getOne(ctx, `SELECT `+appealColumns+` FROM cancellation_appeals WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get appeal: %w", err)
	}
	return appeal, nil
}

// GetByIDForUpdate reads the appeal and locks it for review
func (r *AppealRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.CancellationAppeal, error) {
	appeal, err := r.getOne(ctx, `SELECT `+appealColumns+` FROM cancellation_appeals WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("get appeal for update: %w", err)
	}
	return appeal, nil
}

// GetPendingByUser получает pending апелляцию студента
func (r *AppealRepository) GetPendingByUser(ctx context.Context, userID int64) (*model.CancellationAppeal, error) {
	query := `SELECT ` + appealColumns + `
		FROM cancellation_appeals
		WHERE user_id = $1 AND status = 'PENDING'
		ORDER BY created_at DESC
		LIMIT 1
	`

	appeal, err := r.getOne(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get pending appeal: %w", err)
	}
	return appeal, nil
}

func (r *AppealRepository) getOne(ctx context.Context, query string, args ...any) (*model.CancellationAppeal, error) {
	var appeal model.CancellationAppeal
	err := r.QueryRow(ctx, query, args...).Scan(
		&appeal.ID,
		&appeal.UserID,
		&appeal.Reason,
		&appeal.Status,
		&appeal.AdminNotes,
		&appeal.ReviewedBy,
		&appeal.ReviewedAt,
		&appeal.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return &appeal, nil
}

// Review records the single outcome of a pending appeal
func (r *AppealRepository) Review(ctx context.Context, id int64, status model.AppealStatus, notes string, reviewedBy int64, reviewedAt time.Time) error {
	query := `
		UPDATE cancellation_appeals
		SET status = $1, admin_notes = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $5 AND status = 'PENDING'
	`

	affected, err := r.ExecAffected(ctx, query, status, notes, reviewedBy, reviewedAt, id)
	if err != nil {
		return fmt.Errorf("review appeal: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("appeal not found or already reviewed")
	}

	return nil
}
