package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Freeeeeet/tutor_booking/internal/apperror"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperror.NotFound("booking", 1), http.StatusNotFound, "NOT_FOUND"},
		{apperror.Forbidden("no"), http.StatusForbidden, "FORBIDDEN"},
		{&apperror.UnauthorizedError{}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{apperror.Invalid("price", "negative"), http.StatusBadRequest, "VALIDATION"},
		{&apperror.InvalidTimeError{}, http.StatusBadRequest, "INVALID_TIME"},
		{&apperror.NotAvailableError{}, http.StatusBadRequest, "NOT_AVAILABLE"},
		{&apperror.ConflictError{}, http.StatusConflict, "CONFLICT"},
		{&apperror.InvalidTransitionError{From: "COMPLETED", To: "CANCELLED"}, http.StatusBadRequest, "INVALID_TRANSITION"},
		{&apperror.PenalizedError{}, http.StatusBadRequest, "PENALIZED"},
		{&apperror.AlreadyReviewedError{}, http.StatusBadRequest, "ALREADY_REVIEWED"},
		{apperror.ErrRefundInProgress, http.StatusConflict, "REFUND_IN_PROGRESS"},
		{&apperror.GatewayError{Op: "refund", Err: errors.New("503")}, http.StatusBadGateway, "GATEWAY"},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "TIMEOUT"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
		{fmt.Errorf("wrapped: %w", apperror.NotFound("appeal", 2)), http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := statusOf(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
