package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
	"github.com/Freeeeeet/tutor_booking/internal/transport/middleware"
)

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusOf maps the error taxonomy to an HTTP status and a machine readable code
func statusOf(err error) (int, string) {
	var (
		notFound     *apperror.NotFoundError
		forbidden    *apperror.ForbiddenError
		unauthorized *apperror.UnauthorizedError
		validation   *apperror.ValidationError
		invalidTime  *apperror.InvalidTimeError
		notAvailable *apperror.NotAvailableError
		conflict     *apperror.ConflictError
		transition   *apperror.InvalidTransitionError
		penalized    *apperror.PenalizedError
		reviewed     *apperror.AlreadyReviewedError
		gateway      *apperror.GatewayError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &forbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.As(err, &conflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, apperror.ErrRefundInProgress):
		return http.StatusConflict, "REFUND_IN_PROGRESS"
	case errors.As(err, &validation):
		return http.StatusBadRequest, "VALIDATION"
	case errors.As(err, &invalidTime):
		return http.StatusBadRequest, "INVALID_TIME"
	case errors.As(err, &notAvailable):
		return http.StatusBadRequest, "NOT_AVAILABLE"
	case errors.As(err, &transition):
		return http.StatusBadRequest, "INVALID_TRANSITION"
	case errors.As(err, &penalized):
		return http.StatusBadRequest, "PENALIZED"
	case errors.As(err, &reviewed):
		return http.StatusBadRequest, "ALREADY_REVIEWED"
	case errors.As(err, &gateway):
		return http.StatusBadGateway, "GATEWAY"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, code := statusOf(err)

	msg := err.Error()
	if !apperror.IsClientError(err) && status < http.StatusInternalServerError {
		logger.Warn("Request not completed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request error",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}
