package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
)

const userColumns = `id, telegram_id, email, first_name, last_name, role, penalty_until, created_at`

type UserRepository struct {
	*base.Repository
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{Repository: base.NewRepository(pool)}
}

// GetByID получает пользователя по ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := r.getOne(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// GetByIDForUpdate reads the user and locks the row. Every penalty
// read-modify-write goes through this lock.
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	user, err := r.getOne(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get user for update: %w", err)
	}
	return user, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	var user model.User
	err := r.QueryRow(ctx, query, args...).Scan(
		&user.ID,
		&user.TelegramID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.PenaltyUntil,
		&user.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Пользователь не найден
		}
		return nil, err
	}

	return &user, nil
}

// SetPenaltyUntil sets or clears (nil) the cancellation penalty
func (r *UserRepository) SetPenaltyUntil(ctx context.Context, id int64, until *time.Time) error {
	query := `
		UPDATE users
		SET penalty_until = $1
		WHERE id = $2
	`

	affected, err := r.ExecAffected(ctx, query, until, id)
	if err != nil {
		return fmt.Errorf("set penalty: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}
