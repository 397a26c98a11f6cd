package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
)

// TutorRepository reads tutor profiles and their weekly availability windows
type TutorRepository struct {
	*base.Repository
	logger *zap.Logger
}

// NewTutorRepository создаёт новый репозиторий
func NewTutorRepository(pool *pgxpool.Pool, logger *zap.Logger) *TutorRepository {
	return &TutorRepository{
		Repository: base.NewRepository(pool),
		logger:     logger,
	}
}

// GetProfile получает профиль учителя по ID
func (r *TutorRepository) GetProfile(ctx context.Context, id int64) (*model.TutorProfile, error) {
	return r.getProfile(ctx, `
		SELECT id, user_id, display_name, is_active, created_at
		FROM tutor_profiles
		WHERE id = $1
	`, id)
}

// LockProfile reads the profile with FOR UPDATE. Holding this lock serializes
// every booking write for the tutor.
func (r *TutorRepository) LockProfile(ctx context.Context, id int64) (*model.TutorProfile, error) {
	return r.getProfile(ctx, `
		SELECT id, user_id, display_name, is_active, created_at
		FROM tutor_profiles
		WHERE id = $1
		FOR UPDATE
	`, id)
}

func (r *TutorRepository) getProfile(ctx context.Context, query string, id int64) (*model.TutorProfile, error) {
	profile := &model.TutorProfile{}
	err := r.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.DisplayName,
		&profile.IsActive,
		&profile.CreatedAt,
	)

	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tutor profile: %w", err)
	}

	return profile, nil
}

// GetActiveAvailability получает активные окна доступности учителя
func (r *TutorRepository) GetActiveAvailability(ctx context.Context, tutorID int64) ([]*model.TutorAvailability, error) {
	query := `
		SELECT id, tutor_id, weekday, start_minute, end_minute, is_active, created_at
		FROM tutor_availability
		WHERE tutor_id = $1 AND is_active = true
		ORDER BY weekday, start_minute
	`

	rows, err := r.Query(ctx, query, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get availability by tutor: %w", err)
	}
	defer rows.Close()

	var windows []*model.TutorAvailability
	for rows.Next() {
		var (
			w       model.TutorAvailability
			weekday int
		)
		err := rows.Scan(
			&w.ID,
			&w.TutorID,
			&weekday,
			&w.StartMinute,
			&w.EndMinute,
			&w.IsActive,
			&w.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		w.Weekday = time.Weekday(weekday)
		windows = append(windows, &w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability: %w", err)
	}

	r.logger.Debug("Loaded availability windows",
		zap.Int64("tutor_id", tutorID),
		zap.Int("count", len(windows)),
	)

	return windows, nil
}
