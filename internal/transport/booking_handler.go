package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/Freeeeeet/tutor_booking/internal/transport/middleware"
)

// BookingService is what the booking endpoints need from the domain
type BookingService interface {
	Create(ctx context.Context, actor model.Actor, in service.CreateBookingInput) (*model.Booking, error)
	Get(ctx context.Context, actor model.Actor, id int64) (*model.Booking, error)
	Apply(ctx context.Context, actor model.Actor, id int64, op service.Operation) (*model.Booking, error)
	ReconcileRefund(ctx context.Context, actor model.Actor, id int64, reason string) (*model.RefundResult, error)
}

type BookingHandler struct {
	bookingService BookingService
	logger         *zap.Logger
}

func NewBookingHandler(bookingService BookingService, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{bookingService: bookingService, logger: logger}
}

type createBookingRequest struct {
	TutorID     int64           `json:"tutorId"`
	ScheduledAt time.Time       `json:"scheduledAt"`
	Duration    int             `json:"duration"`
	Price       decimal.Decimal `json:"price"`
	PaymentID   *string         `json:"paymentId"`
}

// patchBookingRequest carries exactly one of the fields
type patchBookingRequest struct {
	ScheduledAt *time.Time `json:"scheduledAt"`
	Status      *string    `json:"status"`
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperror.Invalid("body", err.Error()))
		return
	}

	booking, err := h.bookingService.Create(c.Request.Context(), actor, service.CreateBookingInput{
		TutorID:     req.TutorID,
		ScheduledAt: req.ScheduledAt,
		Duration:    req.Duration,
		Price:       req.Price,
		PaymentID:   req.PaymentID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	booking, err := h.bookingService.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// UpdateBooking routes to reschedule with {scheduledAt} or to a status change with {status}
func (h *BookingHandler) UpdateBooking(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	var req patchBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperror.Invalid("body", err.Error()))
		return
	}

	var op service.Operation
	switch {
	case req.ScheduledAt != nil && req.Status != nil:
		respondError(c, h.logger, apperror.Invalid("body", "send either scheduledAt or status, not both"))
		return
	case req.ScheduledAt != nil:
		op = service.Reschedule{ScheduledAt: *req.ScheduledAt}
	case req.Status != nil:
		op = service.StatusChange{Status: *req.Status}
	default:
		respondError(c, h.logger, apperror.Invalid("body", "scheduledAt or status is required"))
		return
	}

	booking, err := h.bookingService.Apply(c.Request.Context(), actor, id, op)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *BookingHandler) CancelBooking(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	req, ok := h.bindReason(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.Apply(c.Request.Context(), actor, id, service.Cancel{Reason: req.Reason})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ReconcileRefund retries the refund of a cancelled paid booking (admin only)
func (h *BookingHandler) ReconcileRefund(c *gin.Context) {
	id, ok := h.bookingID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	req, ok := h.bindReason(c)
	if !ok {
		return
	}

	result, err := h.bookingService.ReconcileRefund(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *BookingHandler) bookingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, h.logger, apperror.Invalid("id", "invalid booking id"))
		return 0, false
	}
	return id, true
}

// bindReason reads an optional {reason} body
func (h *BookingHandler) bindReason(c *gin.Context) (reasonRequest, bool) {
	var req reasonRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, h.logger, apperror.Invalid("body", err.Error()))
		return req, false
	}
	return req, true
}
