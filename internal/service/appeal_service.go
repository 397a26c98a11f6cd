package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/metrics"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/notify"
)

const maxAppealReasonLength = 2000

// AppealService handles students contesting a cancellation penalty
type AppealService struct {
	tx         Transactor
	appealRepo AppealRepository
	userRepo   UserRepository
	events     EventPublisher
	now        Clock
	logger     *zap.Logger
}

func NewAppealService(
	tx Transactor,
	appealRepo AppealRepository,
	userRepo UserRepository,
	events EventPublisher,
	now Clock,
	logger *zap.Logger,
) *AppealService {
	if events == nil {
		events = noopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &AppealService{
		tx:         tx,
		appealRepo: appealRepo,
		userRepo:   userRepo,
		events:     events,
		now:        now,
		logger:     logger,
	}
}

// Create files an appeal for the calling student. Only a penalized student
// without another pending appeal may file one.
func (s *AppealService) Create(ctx context.Context, actor model.Actor, reason string) (*model.CancellationAppeal, error) {
	if !actor.IsStudent() {
		return nil, apperror.Forbidden("only students may appeal a penalty")
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Invalid("reason", "is required")
	}
	if len(reason) > maxAppealReasonLength {
		return nil, apperror.Invalid("reason", fmt.Sprintf("must be at most %d characters", maxAppealReasonLength))
	}

	now := s.now()
	appeal := &model.CancellationAppeal{
		UserID: actor.UserID,
		Reason: reason,
		Status: model.AppealStatusPending,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		user, err := s.userRepo.GetByIDForUpdate(ctx, actor.UserID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if user == nil {
			return apperror.NotFound("user", actor.UserID)
		}
		if !user.IsPenalized(now) {
			return apperror.Invalid("penaltyUntil", "there is no active penalty to appeal")
		}

		pending, err := s.appealRepo.GetPendingByUser(ctx, actor.UserID)
		if err != nil {
			return fmt.Errorf("get pending appeal: %w", err)
		}
		if pending != nil {
			return apperror.Invalid("appeal", fmt.Sprintf("appeal %d is still pending", pending.ID))
		}

		if err := s.appealRepo.Create(ctx, appeal); err != nil {
			return fmt.Errorf("create appeal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Appeal created",
		zap.Int64("appeal_id", appeal.ID),
		zap.Int64("user_id", appeal.UserID),
	)

	return appeal, nil
}

// Get returns the appeal to its author or an admin
func (s *AppealService) Get(ctx context.Context, actor model.Actor, id int64) (*model.CancellationAppeal, error) {
	appeal, err := s.appealRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appeal: %w", err)
	}
	if appeal == nil {
		return nil, apperror.NotFound("appeal", id)
	}
	if !actor.IsAdmin() && appeal.UserID != actor.UserID {
		return nil, apperror.Forbidden("not the author of the appeal")
	}
	return appeal, nil
}

// Review records the admin decision. Approval lifts the student's penalty
// in the same transaction.
func (s *AppealService) Review(ctx context.Context, actor model.Actor, id int64, decision model.AppealStatus, notes string) (*model.CancellationAppeal, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("only admins may review appeals")
	}
	if decision != model.AppealStatusApproved && decision != model.AppealStatusRejected {
		return nil, apperror.Invalid("status", "must be APPROVED or REJECTED")
	}

	now := s.now()
	var reviewed *model.CancellationAppeal

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appeal, err := s.appealRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("get appeal: %w", err)
		}
		if appeal == nil {
			return apperror.NotFound("appeal", id)
		}
		if !appeal.IsPending() {
			return &apperror.AlreadyReviewedError{AppealID: id, Status: string(appeal.Status)}
		}

		if err := s.appealRepo.Review(ctx, id, decision, notes, actor.UserID, now); err != nil {
			return fmt.Errorf("review appeal: %w", err)
		}
		appeal.Status = decision

		if appeal.IsApproved() {
			if err := s.userRepo.SetPenaltyUntil(ctx, appeal.UserID, nil); err != nil {
				return fmt.Errorf("clear penalty: %w", err)
			}
		}

		reviewed, err = s.appealRepo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("reload appeal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncAppealReviewed(string(decision))
	s.logger.Info("Appeal reviewed",
		zap.Int64("appeal_id", id),
		zap.Int64("user_id", reviewed.UserID),
		zap.Int64("admin_id", actor.UserID),
		zap.String("decision", string(decision)),
	)
	s.events.Publish(notify.AppealEvent(reviewed))

	return reviewed, nil
}
