package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/metrics"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/notify"
	"github.com/Freeeeeet/tutor_booking/internal/policy"
)

type BookingService struct {
	tx           Transactor
	bookingRepo  BookingRepository
	tutorRepo    TutorRepository
	userRepo     UserRepository
	refunds      *RefundOrchestrator
	events       EventPublisher
	timeWindow   policy.TimeWindowValidator
	availability policy.AvailabilityMatcher
	conflicts    policy.ConflictDetector
	cancellation policy.CancellationPolicy
	now          Clock
	logger       *zap.Logger
}

func NewBookingService(
	tx Transactor,
	bookingRepo BookingRepository,
	tutorRepo TutorRepository,
	userRepo UserRepository,
	refunds *RefundOrchestrator,
	events EventPublisher,
	params policy.Params,
	now Clock,
	logger *zap.Logger,
) *BookingService {
	if events == nil {
		events = noopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		tx:           tx,
		bookingRepo:  bookingRepo,
		tutorRepo:    tutorRepo,
		userRepo:     userRepo,
		refunds:      refunds,
		events:       events,
		timeWindow:   params.TimeWindow(),
		availability: params.Availability(),
		cancellation: params.Cancellation(),
		now:          now,
		logger:       logger,
	}
}

// CreateBookingInput is a student's request for a session
type CreateBookingInput struct {
	TutorID     int64
	ScheduledAt time.Time
	Duration    int
	Price       decimal.Decimal
	PaymentID   *string
}

// Create books a PENDING session for the calling student
func (s *BookingService) Create(ctx context.Context, actor model.Actor, in CreateBookingInput) (*model.Booking, error) {
	if !actor.IsStudent() {
		return nil, apperror.Forbidden("only students may book sessions")
	}
	if in.TutorID <= 0 {
		return nil, apperror.Invalid("tutorId", "is required")
	}
	if in.Price.IsNegative() {
		return nil, apperror.Invalid("price", "must not be negative")
	}
	if in.PaymentID != nil && strings.TrimSpace(*in.PaymentID) == "" {
		in.PaymentID = nil
	}

	now := s.now()
	if err := s.timeWindow.Validate(now, in.ScheduledAt, in.Duration); err != nil {
		return nil, err
	}

	booking := &model.Booking{
		StudentID:   actor.UserID,
		TutorID:     in.TutorID,
		ScheduledAt: in.ScheduledAt,
		Duration:    in.Duration,
		Status:      model.BookingStatusPending,
		Price:       in.Price,
		PaymentID:   in.PaymentID,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Блокируем профиль учителя, чтобы параллельные записи к нему шли по очереди
		tutor, err := s.tutorRepo.LockProfile(ctx, in.TutorID)
		if err != nil {
			return fmt.Errorf("lock tutor profile: %w", err)
		}
		if tutor == nil || !tutor.IsActive {
			return apperror.NotFound("tutor", in.TutorID)
		}

		if err := s.checkSlot(ctx, in.TutorID, in.ScheduledAt, in.Duration, 0); err != nil {
			return err
		}

		booking.TutorUserID = tutor.UserID
		if err := s.bookingRepo.Create(ctx, booking); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCreated()
	s.logger.Info("Booking created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("student_id", booking.StudentID),
		zap.Int64("tutor_id", booking.TutorID),
		zap.Time("scheduled_at", booking.ScheduledAt),
		zap.Int("duration", booking.Duration),
	)
	s.events.Publish(notify.BookingEvent(notify.EventBookingRequested, booking))

	return booking, nil
}

// checkSlot verifies the tutor's weekly availability and the absence of overlapping bookings
func (s *BookingService) checkSlot(ctx context.Context, tutorID int64, at time.Time, duration int, excludeID int64) error {
	windows, err := s.tutorRepo.GetActiveAvailability(ctx, tutorID)
	if err != nil {
		return fmt.Errorf("get tutor availability: %w", err)
	}
	if err := s.availability.Match(tutorID, windows, at, duration); err != nil {
		return err
	}

	existing, err := s.bookingRepo.GetActiveByTutorID(ctx, tutorID)
	if err != nil {
		return fmt.Errorf("get tutor bookings: %w", err)
	}
	return s.conflicts.Detect(existing, at, duration, excludeID)
}

// Get returns the booking if the actor is a party of it or an admin
func (s *BookingService) Get(ctx context.Context, actor model.Actor, id int64) (*model.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, apperror.NotFound("booking", id)
	}
	if !actor.CanView(booking) {
		return nil, apperror.Forbidden("not a party of the booking")
	}
	return booking, nil
}

// Apply runs one operation on an existing booking
func (s *BookingService) Apply(ctx context.Context, actor model.Actor, id int64, op Operation) (*model.Booking, error) {
	switch op := op.(type) {
	case Reschedule:
		return s.Reschedule(ctx, actor, id, op.ScheduledAt)
	case StatusChange:
		status, ok := model.ParseBookingStatus(op.Status)
		if !ok {
			return nil, apperror.Invalid("status", fmt.Sprintf("unknown status %q", op.Status))
		}
		return s.ChangeStatus(ctx, actor, id, status)
	case Cancel:
		return s.Cancel(ctx, actor, id, op.Reason)
	default:
		return nil, apperror.Invalid("operation", "unsupported operation")
	}
}

// Reschedule moves a booking of the calling student and resets it to PENDING.
// Duration is kept.
func (s *BookingService) Reschedule(ctx context.Context, actor model.Actor, id int64, scheduledAt time.Time) (*model.Booking, error) {
	now := s.now()
	var updated *model.Booking

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking, err := s.bookingRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("get booking: %w", err)
		}
		if booking == nil {
			return apperror.NotFound("booking", id)
		}

		if err := policy.ValidateReschedule(actor, booking); err != nil {
			return err
		}
		if err := s.timeWindow.Validate(now, scheduledAt, booking.Duration); err != nil {
			return err
		}

		if _, err := s.tutorRepo.LockProfile(ctx, booking.TutorID); err != nil {
			return fmt.Errorf("lock tutor profile: %w", err)
		}
		if err := s.checkSlot(ctx, booking.TutorID, scheduledAt, booking.Duration, booking.ID); err != nil {
			return err
		}

		if err := s.bookingRepo.Reschedule(ctx, booking.ID, scheduledAt, booking.Duration); err != nil {
			return fmt.Errorf("reschedule booking: %w", err)
		}

		updated, err = s.bookingRepo.GetByID(ctx, booking.ID)
		if err != nil {
			return fmt.Errorf("reload booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingRescheduled()
	s.logger.Info("Booking rescheduled",
		zap.Int64("booking_id", id),
		zap.Int64("student_id", actor.UserID),
		zap.Time("scheduled_at", scheduledAt),
	)
	s.events.Publish(notify.BookingEvent(notify.EventBookingRescheduled, updated))

	return updated, nil
}

// ChangeStatus moves a booking along the status graph on behalf of its tutor or an admin.
// CANCELLED goes through the cancellation path so that the record is written once.
func (s *BookingService) ChangeStatus(ctx context.Context, actor model.Actor, id int64, to model.BookingStatus) (*model.Booking, error) {
	if to == model.BookingStatusCancelled {
		return s.cancel(ctx, actor, id, "", true)
	}

	var updated *model.Booking

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking, err := s.bookingRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("get booking: %w", err)
		}
		if booking == nil {
			return apperror.NotFound("booking", id)
		}

		if err := policy.ValidateStatusChange(actor, booking, to); err != nil {
			return err
		}

		if err := s.bookingRepo.UpdateStatus(ctx, id, to); err != nil {
			return fmt.Errorf("update booking status: %w", err)
		}

		updated, err = s.bookingRepo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("reload booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncStatusChange(string(to))
	s.logger.Info("Booking status changed",
		zap.Int64("booking_id", id),
		zap.Int64("actor_id", actor.UserID),
		zap.String("status", string(to)),
	)
	if to == model.BookingStatusConfirmed {
		s.events.Publish(notify.BookingEvent(notify.EventBookingConfirmed, updated))
	}

	return updated, nil
}

// Cancel cancels a booking on behalf of any of its parties or an admin
func (s *BookingService) Cancel(ctx context.Context, actor model.Actor, id int64, reason string) (*model.Booking, error) {
	return s.cancel(ctx, actor, id, reason, false)
}

type cancelOutcome struct {
	booking         *model.Booking
	penaltyUntil    *time.Time
	refundRequested bool
}

func (s *BookingService) cancel(ctx context.Context, actor model.Actor, id int64, reason string, viaStatus bool) (*model.Booking, error) {
	now := s.now()
	var out cancelOutcome

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		out = cancelOutcome{}

		booking, err := s.bookingRepo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("get booking: %w", err)
		}
		if booking == nil {
			return apperror.NotFound("booking", id)
		}

		if viaStatus {
			err = policy.ValidateStatusChange(actor, booking, model.BookingStatusCancelled)
		} else {
			err = policy.ValidateCancel(actor, booking)
		}
		if err != nil {
			return err
		}

		isLate := s.cancellation.IsLate(booking.ScheduledAt, now)
		studentInitiated := actor.OwnsAsStudent(booking)

		if studentInitiated {
			penaltyUntil, err := s.applyStudentPolicy(ctx, booking.StudentID, isLate, now)
			if err != nil {
				return err
			}
			out.penaltyUntil = penaltyUntil
		}

		out.refundRequested = !studentInitiated && booking.IsPaid()

		err = s.bookingRepo.MarkCancelled(ctx, model.Cancellation{
			BookingID:       booking.ID,
			By:              actor.UserID,
			At:              now,
			IsLate:          isLate,
			RefundRequested: out.refundRequested,
		})
		if err != nil {
			return fmt.Errorf("mark booking cancelled: %w", err)
		}

		out.booking, err = s.bookingRepo.GetByID(ctx, booking.ID)
		if err != nil {
			return fmt.Errorf("reload booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	booking := out.booking
	metrics.IncCancellation(strings.ToLower(string(initiator(actor, booking))), booking.IsLateCancellation)
	s.logger.Info("Booking cancelled",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("cancelled_by", actor.UserID),
		zap.String("role", string(actor.Role)),
		zap.Bool("late", booking.IsLateCancellation),
		zap.String("reason", reason),
	)
	s.events.Publish(notify.BookingEvent(notify.EventBookingCancelled, booking))

	if out.penaltyUntil != nil {
		metrics.IncPenaltyApplied()
		s.logger.Warn("Student penalized for late cancellations",
			zap.Int64("student_id", booking.StudentID),
			zap.Time("penalty_until", *out.penaltyUntil),
		)
		s.events.Publish(notify.PenaltyEvent(booking.StudentID, *out.penaltyUntil, booking.ID))
	}

	if out.refundRequested && s.refunds != nil {
		if reason == "" {
			reason = "booking cancelled by " + strings.ToLower(string(actor.Role))
		}
		// Ошибка шлюза не отменяет отмену: бронь остаётся CANCELLED до сверки
		if _, err := s.refunds.Reconcile(ctx, booking.ID, reason); err != nil {
			s.logger.Warn("Refund not issued, left for reconciliation",
				zap.Int64("booking_id", booking.ID),
				zap.Error(err),
			)
			return booking, nil
		}

		refreshed, err := s.bookingRepo.GetByID(ctx, booking.ID)
		if err != nil {
			s.logger.Error("Failed to reload refunded booking", zap.Int64("booking_id", booking.ID), zap.Error(err))
			return booking, nil
		}
		if refreshed != nil {
			booking = refreshed
		}
	}

	return booking, nil
}

// applyStudentPolicy blocks penalized students and escalates late cancellations.
// Runs inside the cancellation transaction with the student row locked.
func (s *BookingService) applyStudentPolicy(ctx context.Context, studentID int64, isLate bool, now time.Time) (*time.Time, error) {
	student, err := s.userRepo.GetByIDForUpdate(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	if student == nil {
		return nil, apperror.NotFound("user", studentID)
	}

	if err := s.cancellation.CheckPenalty(student, now); err != nil {
		return nil, err
	}

	if !isLate {
		return nil, nil
	}

	prior, err := s.bookingRepo.CountLateCancellations(ctx, studentID, s.cancellation.CountSince(now))
	if err != nil {
		return nil, fmt.Errorf("count late cancellations: %w", err)
	}

	until := s.cancellation.Escalate(prior, now)
	if until == nil {
		return nil, nil
	}

	if err := s.userRepo.SetPenaltyUntil(ctx, studentID, until); err != nil {
		return nil, fmt.Errorf("set penalty: %w", err)
	}
	return until, nil
}

// ReconcileRefund lets an admin retry the refund of a cancelled paid booking
func (s *BookingService) ReconcileRefund(ctx context.Context, actor model.Actor, id int64, reason string) (*model.RefundResult, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("only admins may reconcile refunds")
	}
	if reason == "" {
		reason = "manual reconciliation"
	}
	return s.refunds.Reconcile(ctx, id, reason)
}

func initiator(actor model.Actor, b *model.Booking) model.Role {
	switch {
	case actor.OwnsAsStudent(b):
		return model.RoleStudent
	case actor.OwnsAsTutor(b):
		return model.RoleTutor
	default:
		return actor.Role
	}
}
